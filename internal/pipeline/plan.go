package pipeline

import "github.com/TobiSchelling/swift/internal/model"

// Plan describes what a run would do.
type Plan struct {
	Rows     int  `json:"rows"`
	Valid    int  `json:"valid"`
	Skipped  int  `json:"skipped"`
	Selected int  `json:"selected"`
	Grounded bool `json:"grounded"`
	// Calls is the number of external service calls: search, embedding and
	// chat per grounded item, chat only otherwise.
	Calls int `json:"calls"`
}

// DryRun reports the selection and call estimate for a run without
// touching the network.
func (p *Pipeline) DryRun(ideas []model.Idea, limit int) Plan {
	selected, skipped := Select(ideas, limit)
	plan := Plan{
		Rows:     len(ideas),
		Valid:    len(ideas) - len(skipped),
		Skipped:  len(skipped),
		Selected: len(selected),
		Grounded: p.grounded(),
	}
	perItem := 1
	if plan.Grounded {
		perItem = 3
	}
	plan.Calls = plan.Selected * perItem
	return plan
}
