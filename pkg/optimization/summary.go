// Package optimization provides shared data structures for optimization results.
package optimization

// Candidate is one evaluated value of the optimized field.
type Candidate struct {
	Value     float64 `json:"value"`
	Objective float64 `json:"objective"`
	Feasible  bool    `json:"feasible"`
	Note      string  `json:"note,omitempty"`
}

// Summary captures the result of a single optimization directive.
type Summary struct {
	Scope           string      `json:"scope"`
	Field           string      `json:"field"`
	Objective       string      `json:"objective"`
	Original        float64     `json:"original"`
	Value           float64     `json:"value"`
	OriginalScore   float64     `json:"originalScore"`
	BestScore       float64     `json:"bestScore"`
	Improvement     float64     `json:"improvement"`
	Candidates      []Candidate `json:"candidates"`
	Iterations      int         `json:"iterations"`
	Converged       bool        `json:"converged"`
	Notes           []string    `json:"notes,omitempty"`
	OriginalDisplay string      `json:"originalDisplay,omitempty"`
	ValueDisplay    string      `json:"valueDisplay,omitempty"`
}

// Changed reports whether the optimizer moved the field.
func (s Summary) Changed() bool {
	return s.Converged && s.Value != s.Original
}
