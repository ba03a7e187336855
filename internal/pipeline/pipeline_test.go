package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/swift/internal/model"
)

type fakeFetcher struct {
	err   error
	calls atomic.Int32
}

func (f *fakeFetcher) Fetch(_ context.Context, query string) ([]model.FetchedDocument, model.SearchMeta, error) {
	f.calls.Add(1)
	meta := model.SearchMeta{Query: query, Language: "en", Links: []string{"https://refill.example"}}
	if f.err != nil {
		return nil, meta, f.err
	}
	docs := []model.FetchedDocument{{
		URL:     "https://refill.example",
		Content: "Refill stations cut single-use bottle waste in pilot cities.",
		Rank:    1,
	}}
	return docs, meta, nil
}

type fakeRetriever struct {
	err error
}

func (r *fakeRetriever) RetrieveEmbeddings(_ context.Context, docs []model.FetchedDocument, _ []string, _ string) ([]model.RankedPassage, error) {
	if r.err != nil {
		return nil, r.err
	}
	var out []model.RankedPassage
	for i, d := range docs {
		out = append(out, model.RankedPassage{Text: d.Content, Source: d.URL, Score: 1, Doc: i})
	}
	return out, nil
}

// fakeJudge answers deterministically from the query text. Queries that
// contain failOn return an error.
type fakeJudge struct {
	failOn   string
	delay    time.Duration
	mu       sync.Mutex
	contexts []string
}

func (j *fakeJudge) GetAnswer(ctx context.Context, query, formattedContext, _ string, _ model.EvaluationConfig) (string, error) {
	j.mu.Lock()
	j.contexts = append(j.contexts, formattedContext)
	j.mu.Unlock()

	if j.delay > 0 {
		select {
		case <-time.After(j.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if j.failOn != "" && strings.Contains(query, j.failOn) {
		return "", errors.New("quota exceeded")
	}
	if strings.Contains(strings.ToLower(query), "vague") {
		return "1. Yes - remove idea\n2. 12\n3. Too vague.", nil
	}
	return "1. No - keep idea\n2. 80\n3. \"Refill stations cut single-use bottle waste in pilot cities.\"", nil
}

func testConfig() model.EvaluationConfig {
	return model.EvaluationConfig{Strictness: model.StrictnessNormal, MaxTokens: 200}
}

func ideas(problems ...string) []model.Idea {
	out := make([]model.Idea, len(problems))
	for i, p := range problems {
		out[i] = model.Idea{ID: string(rune('A' + i)), Row: i, Problem: p, Solution: "solution " + p}
	}
	return out
}

func newTestPipeline(j Judge) *Pipeline {
	return New(Stages{Fetcher: &fakeFetcher{}, Retriever: &fakeRetriever{}, Judge: j}, DefaultOptions())
}

func TestRunPlasticBottlesScenario(t *testing.T) {
	rows := []model.Idea{
		{ID: "A", Row: 0, Problem: "The usage of plastic bottles", Solution: "refill station service"},
		{ID: "B", Row: 1, Problem: "", Solution: "n/a"},
	}

	res, err := newTestPipeline(&fakeJudge{}).Run(context.Background(), rows, testConfig(), 10)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "A", res.Items[0].Idea.ID)
	assert.Equal(t, []int{1}, res.Skipped)
	assert.Equal(t, model.DecisionKeep, res.Items[0].Verdict.Decision)
	assert.Equal(t, []string{"https://refill.example"}, res.Items[0].Sources)
}

func TestRunLimitZeroProcessesNothing(t *testing.T) {
	j := &fakeJudge{}
	res, err := newTestPipeline(j).Run(context.Background(), ideas("a", "b"), testConfig(), 0)
	require.NoError(t, err)
	assert.Empty(t, res.Items)
	assert.Empty(t, j.contexts)
}

func TestRunLimitCountsOnlyValidRows(t *testing.T) {
	in := ideas("a", "", "b", "c")
	res, err := newTestPipeline(&fakeJudge{}).Run(context.Background(), in, testConfig(), 2)
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "a", res.Items[0].Idea.Problem)
	assert.Equal(t, "b", res.Items[1].Idea.Problem)
	assert.Equal(t, []int{1}, res.Skipped)

	res, err = newTestPipeline(&fakeJudge{}).Run(context.Background(), in, testConfig(), 100)
	require.NoError(t, err)
	assert.Len(t, res.Items, 3)
}

func TestRunPreservesInputOrder(t *testing.T) {
	var problems []string
	for i := range 20 {
		p := "idea " + string(rune('a'+i))
		if i%3 == 0 {
			p += " vague"
		}
		problems = append(problems, p)
	}
	p := New(Stages{Judge: &fakeJudge{delay: time.Millisecond}}, Options{Concurrency: 8})

	res, err := p.Run(context.Background(), ideas(problems...), testConfig(), len(problems))
	require.NoError(t, err)
	require.Len(t, res.Items, len(problems))
	for i, it := range res.Items {
		assert.Equal(t, problems[i], it.Idea.Problem)
		assert.Equal(t, i%3 == 0, it.Verdict.Filtered(), it.Idea.Problem)
	}

	kept, filtered, degraded := res.Counts()
	assert.Equal(t, 13, kept)
	assert.Equal(t, 7, filtered)
	assert.Equal(t, 0, degraded)
	assert.Len(t, res.Filtered(), 7)
	assert.Len(t, res.Kept(), 13)
}

func TestRunPartialInferenceFailure(t *testing.T) {
	in := ideas("first", "broken", "third")
	res, err := newTestPipeline(&fakeJudge{failOn: "broken"}).Run(context.Background(), in, testConfig(), 10)
	require.NoError(t, err)
	require.Len(t, res.Items, 3)

	assert.False(t, res.Items[0].Verdict.Degraded)
	assert.False(t, res.Items[2].Verdict.Degraded)
	require.NotNil(t, res.Items[2].Verdict.Score)

	bad := res.Items[1].Verdict
	assert.True(t, bad.Degraded)
	assert.Equal(t, model.DecisionKeep, bad.Decision)
	assert.Contains(t, bad.Rationale, "quota exceeded")
	assert.Contains(t, bad.Rationale, "inference")
}

func TestRunIsIdempotent(t *testing.T) {
	in := ideas("plastic bottles", "vague idea", "modular phones")
	p := newTestPipeline(&fakeJudge{})

	first, err := p.Run(context.Background(), in, testConfig(), 10)
	require.NoError(t, err)
	second, err := p.Run(context.Background(), in, testConfig(), 10)
	require.NoError(t, err)

	assert.Equal(t, first.Items, second.Items)
	assert.Equal(t, first.Skipped, second.Skipped)
}

func TestRunCitationsComeFromSources(t *testing.T) {
	res, err := newTestPipeline(&fakeJudge{}).Run(context.Background(), ideas("plastic"), testConfig(), 1)
	require.NoError(t, err)
	v := res.Items[0].Verdict
	require.Len(t, v.Citations, 1)
	assert.Equal(t, model.MatchExact, v.Citations[0].Basis)
	assert.Contains(t, res.Items[0].Sources, v.Citations[0].URL)
}

func TestRunFetchFailureDegradesToUngrounded(t *testing.T) {
	j := &fakeJudge{}
	p := New(Stages{Fetcher: &fakeFetcher{err: errors.New("timeout")}, Retriever: &fakeRetriever{}, Judge: j}, DefaultOptions())

	res, err := p.Run(context.Background(), ideas("plastic"), testConfig(), 1)
	require.NoError(t, err)
	v := res.Items[0].Verdict
	assert.False(t, v.Degraded)
	require.NotEmpty(t, v.Issues)
	assert.Contains(t, v.Issues[0], "fetch")
	assert.Empty(t, v.Citations)
	assert.Equal(t, []string{""}, j.contexts)
}

func TestRunRetrievalFailureDegradesToUngrounded(t *testing.T) {
	j := &fakeJudge{}
	p := New(Stages{Fetcher: &fakeFetcher{}, Retriever: &fakeRetriever{err: errors.New("embedding quota")}, Judge: j}, DefaultOptions())

	res, err := p.Run(context.Background(), ideas("plastic"), testConfig(), 1)
	require.NoError(t, err)
	v := res.Items[0].Verdict
	require.NotEmpty(t, v.Issues)
	assert.True(t, strings.HasPrefix(v.Issues[0], "retrieval error"))
	assert.Equal(t, []string{""}, j.contexts)
}

func TestRunWithoutGrounding(t *testing.T) {
	f := &fakeFetcher{}
	opts := DefaultOptions()
	opts.Grounding = false
	p := New(Stages{Fetcher: f, Retriever: &fakeRetriever{}, Judge: &fakeJudge{}}, opts)

	res, err := p.Run(context.Background(), ideas("plastic"), testConfig(), 1)
	require.NoError(t, err)
	assert.Len(t, res.Items, 1)
	assert.Equal(t, int32(0), f.calls.Load())
	assert.Empty(t, res.Items[0].Sources)
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.MaxTokens = 5000
	_, err := newTestPipeline(&fakeJudge{}).Run(context.Background(), ideas("a"), cfg, 1)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindValidation))

	_, err = New(Stages{}, DefaultOptions()).Run(context.Background(), ideas("a"), testConfig(), 1)
	assert.True(t, model.IsKind(err, model.KindValidation))
}

func TestRunCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	j := &fakeJudge{}
	res, err := newTestPipeline(j).Run(ctx, ideas("a", "b", "c"), testConfig(), 10)
	require.NoError(t, err)
	require.Len(t, res.Items, 3)
	for _, it := range res.Items {
		assert.True(t, it.Verdict.Degraded)
		assert.Equal(t, model.DecisionKeep, it.Verdict.Decision)
		assert.Contains(t, it.Verdict.Rationale, "cancelled")
	}
	assert.Empty(t, j.contexts)
}

// cancellingJudge cancels the run on its first call.
type cancellingJudge struct {
	cancel context.CancelFunc
	calls  atomic.Int32
}

func (j *cancellingJudge) GetAnswer(_ context.Context, _, _, _ string, _ model.EvaluationConfig) (string, error) {
	j.calls.Add(1)
	j.cancel()
	return "1. No - keep idea\n2. 70", nil
}

func TestRunCancelledMidRunStartsNoFurtherItems(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	j := &cancellingJudge{cancel: cancel}
	opts := DefaultOptions()
	opts.Concurrency = 1
	p := New(Stages{Fetcher: &fakeFetcher{}, Retriever: &fakeRetriever{}, Judge: j}, opts)

	res, err := p.Run(ctx, ideas("a", "b", "c", "d"), testConfig(), 10)
	require.NoError(t, err)
	require.Len(t, res.Items, 4)
	assert.Equal(t, int32(1), j.calls.Load())

	assert.False(t, res.Items[0].Verdict.Degraded)
	for _, it := range res.Items[1:] {
		assert.True(t, it.Verdict.Degraded, it.Idea.ID)
		assert.Equal(t, model.DecisionKeep, it.Verdict.Decision)
		assert.Contains(t, it.Verdict.Rationale, "cancelled")
	}
}

type recordingGrouper struct{ err error }

func (g recordingGrouper) Group(_ context.Context, items []model.ItemResult) error {
	if g.err != nil {
		return g.err
	}
	for i := range items {
		items[i].DuplicateGroup = 1
	}
	return nil
}

type stubDigester struct{ got int }

func (d *stubDigester) Compose(_ context.Context, kept []model.ItemResult) ([]string, error) {
	d.got = len(kept)
	return []string{"two ideas worth a look"}, nil
}

func TestRunGroupsAndDigests(t *testing.T) {
	d := &stubDigester{}
	p := New(Stages{Judge: &fakeJudge{}, Grouper: recordingGrouper{}, Digester: d}, DefaultOptions())

	res, err := p.Run(context.Background(), ideas("a", "b vague", "c"), testConfig(), 10)
	require.NoError(t, err)
	for _, it := range res.Items {
		assert.Equal(t, 1, it.DuplicateGroup)
	}
	assert.Equal(t, 2, d.got)
	assert.Equal(t, []string{"two ideas worth a look"}, res.Digest)
}

func TestRunGrouperFailureIsNotFatal(t *testing.T) {
	p := New(Stages{Judge: &fakeJudge{}, Grouper: recordingGrouper{err: errors.New("embed down")}}, DefaultOptions())
	res, err := p.Run(context.Background(), ideas("a", "b"), testConfig(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Items[0].DuplicateGroup)
}

func TestDryRun(t *testing.T) {
	in := ideas("a", "", "b", "c")

	plan := newTestPipeline(&fakeJudge{}).DryRun(in, 2)
	assert.Equal(t, Plan{Rows: 4, Valid: 3, Skipped: 1, Selected: 2, Grounded: true, Calls: 6}, plan)

	plan = New(Stages{Judge: &fakeJudge{}}, DefaultOptions()).DryRun(in, 10)
	assert.False(t, plan.Grounded)
	assert.Equal(t, 3, plan.Calls)
}

func TestSelect(t *testing.T) {
	sel, skipped := Select(ideas("", "  ", "x"), 0)
	assert.Empty(t, sel)
	assert.Equal(t, []int{0, 1}, skipped)
}
