package rewrite

import (
	"strings"

	"go.uber.org/zap"

	"github.com/mqtap/mqtap/internal/config"
	"github.com/mqtap/mqtap/internal/jsontree"
	"github.com/mqtap/mqtap/internal/logger"
)

// Result carries the processed text and one applied entry per replacement
type Result struct {
	Output  string   `json:"output"`
	Applied []string `json:"applied"`
}

// Engine applies configured replacement rules to raw message bodies
type Engine struct {
	enabled bool
	rules   []*Rule
	logger  *logger.Logger
}

// New creates a rule engine from the replacement configuration
func New(cfg config.ReplaceConfig, log *logger.Logger) *Engine {
	engine := &Engine{
		enabled: cfg.Enabled,
		rules:   make([]*Rule, 0, len(cfg.Rules)),
		logger:  log,
	}

	for _, rc := range cfg.Rules {
		engine.rules = append(engine.rules, &Rule{
			JSONPath:    rc.JSONPath,
			Placeholder: rc.Placeholder,
			Description: rc.Description,
			Enabled:     rc.Enabled,
		})
	}

	log.Info("Replacement engine initialized",
		zap.Bool("enabled", cfg.Enabled),
		zap.Int("total_rules", len(engine.rules)),
		zap.Int("enabled_rules", engine.countEnabledRules()),
	)

	return engine
}

// Process runs every enabled rule against text. When the engine is disabled,
// the payload was not classified as JSON, or no rule is enabled, the input
// passes through byte for byte without being parsed. Unparseable input also
// passes through untouched; otherwise the mutated tree is re-serialized as
// indented JSON even when no rule matched.
func (e *Engine) Process(text string, looksLikeJSON bool) Result {
	if !e.enabled || !looksLikeJSON || e.countEnabledRules() == 0 {
		return Result{Output: text, Applied: []string{}}
	}

	root, err := jsontree.ParseString(text)
	if err != nil {
		e.logger.Debug("Body is not parseable JSON, passing through", zap.Error(err))
		return Result{Output: text, Applied: []string{}}
	}

	applied := make([]string, 0)
	for _, rule := range e.rules {
		if !rule.Enabled {
			continue
		}

		path, err := rule.Path()
		if err != nil {
			e.logger.Warn("Skipping rule with malformed path",
				zap.String("json_path", rule.JSONPath),
				zap.Error(err),
			)
			continue
		}

		count := ReplaceAll(root, path, rule.Placeholder)
		for i := 0; i < count; i++ {
			applied = append(applied, rule.Label())
		}

		if count > 0 {
			e.logger.Debug("Replacement rule applied",
				zap.String("json_path", rule.JSONPath),
				zap.String("placeholder", rule.Placeholder),
				zap.Int("count", count),
			)
		}
	}

	return Result{Output: string(root.MarshalIndent()), Applied: applied}
}

// Rules returns the configured rules in their configured order
func (e *Engine) Rules() []*Rule {
	return e.rules
}

// Enabled reports whether replacement is switched on globally
func (e *Engine) Enabled() bool {
	return e.enabled
}

// countEnabledRules returns the number of enabled replacement rules
func (e *Engine) countEnabledRules() int {
	count := 0
	for _, rule := range e.rules {
		if rule.Enabled {
			count++
		}
	}
	return count
}

// LooksLikeJSON reports whether trimmed text is shaped like a JSON document,
// starting with { or [ and ending with the matching bracket. Callers classify
// each payload with it and pass the verdict to Process.
func LooksLikeJSON(text string) bool {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < 2 {
		return false
	}

	switch trimmed[0] {
	case '{':
		return trimmed[len(trimmed)-1] == '}'
	case '[':
		return trimmed[len(trimmed)-1] == ']'
	}
	return false
}
