package models

// Step is one combination (A,B) -> Result in a path.
type Step struct {
	A           string `json:"a" yaml:"a"`
	B           string `json:"b" yaml:"b"`
	ResultName  string `json:"resultName" yaml:"resultName"`
	ResultEmoji string `json:"resultEmoji" yaml:"resultEmoji"`
	Provisional bool   `json:"provisional" yaml:"provisional,omitempty"`
}

// Path is an ordered list of steps from the starters to a target.
type Path struct {
	Steps []Step `json:"steps" yaml:"steps"`
}

// Provisional reports whether any step is not yet in the catalog.
func (p Path) Provisional() bool {
	for _, s := range p.Steps {
		if s.Provisional {
			return true
		}
	}
	return false
}

// SavePathResult summarises an admin path save.
type SavePathResult struct {
	Created   int             `json:"created"`
	Skipped   int             `json:"skipped"`
	Conflicts []PathConflict  `json:"conflicts,omitempty"`
	Errors    []PathStepError `json:"errors,omitempty"`
}

// PathConflict is a step whose key already maps to a different result.
type PathConflict struct {
	Key       string `json:"key"`
	Existing  string `json:"existing"`
	Requested string `json:"requested"`
}

// PathStepError is a step that could not be persisted.
type PathStepError struct {
	Index   int    `json:"index"`
	Message string `json:"message"`
}
