package rewrite

import (
	"fmt"
	"sync"

	"github.com/mqtap/mqtap/internal/jsonpath"
)

// Rule is one configured path replacement
type Rule struct {
	JSONPath    string `json:"json_path"`
	Placeholder string `json:"placeholder"`
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`

	parseOnce sync.Once
	path      jsonpath.Path
	parseErr  error
}

// Path parses the rule's JSONPath on first use and caches the result for the
// lifetime of the rule
func (r *Rule) Path() (jsonpath.Path, error) {
	r.parseOnce.Do(func() {
		r.path, r.parseErr = jsonpath.Parse(r.JSONPath)
	})
	return r.path, r.parseErr
}

// Label formats the applied-rule entry recorded once per replacement
func (r *Rule) Label() string {
	return fmt.Sprintf("%s → %s", r.JSONPath, r.Placeholder)
}
