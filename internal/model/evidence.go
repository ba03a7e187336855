package model

// SearchHit is one web-search result.
type SearchHit struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
	Rank    int    `json:"rank"` // 1-based
}

// SearchMeta describes a search performed for one query.
type SearchMeta struct {
	Query    string   `json:"query"`
	Language string   `json:"language"` // ISO 639-1
	Links    []string `json:"links"`    // ordered by search rank
}

// LinkIndex returns the 0-based position of link in the result list, or -1.
func (m SearchMeta) LinkIndex(link string) int {
	for i, l := range m.Links {
		if l == link {
			return i
		}
	}
	return -1
}

// FetchedDocument is the cleaned text of one search result page.
type FetchedDocument struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Rank    int    `json:"rank"`
}

// RankedPassage is a chunk of a fetched document scored against the query.
type RankedPassage struct {
	Text   string  `json:"text"`
	Source string  `json:"source"` // URL of the originating document
	Score  float64 `json:"score"`
	Doc    int     `json:"doc"`   // index of the document in fetch order
	Chunk  int     `json:"chunk"` // index of the chunk within the document
}

// Match bases for citations.
const (
	MatchExact  = "exact"
	MatchFuzzy  = "fuzzy"
	MatchMarker = "marker"
)

// Citation attributes a span of verdict text to a source URL.
type Citation struct {
	Quote      string  `json:"quote"`
	URL        string  `json:"url"`
	Basis      string  `json:"basis"`
	Confidence float64 `json:"confidence"`
}
