package loadtest

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"go.uber.org/zap"

	"github.com/mqtap/mqtap/internal/capture"
	"github.com/mqtap/mqtap/internal/config"
)

var jmxTmpl = template.Must(template.New("jmx").Funcs(template.FuncMap{
	"xml": escapeXML,
}).Parse(jmxTemplate))

// Generator builds JMeter test plans from captured traffic
type Generator struct {
	config config.LoadTestConfig
	logger *zap.Logger
}

// plan is the template context for one generated test plan
type plan struct {
	Name          string
	Scheme        string
	Domain        string
	Port          string
	Path          string
	Threads       int
	RampUpSeconds int
	LoopCount     int
	Samplers      []sampler
}

// sampler is one HTTP request replaying a captured body
type sampler struct {
	Name string
	Body string
}

// New creates a test plan generator
func New(cfg config.LoadTestConfig, logger *zap.Logger) *Generator {
	return &Generator{
		config: cfg,
		logger: logger,
	}
}

// Generate renders a JMX document replaying the given events against the
// configured target URL. Events with empty bodies are skipped.
func (g *Generator) Generate(name string, events []capture.Event) ([]byte, error) {
	target, err := url.Parse(g.config.TargetURL)
	if err != nil {
		return nil, fmt.Errorf("invalid target url %q: %w", g.config.TargetURL, err)
	}
	if target.Host == "" {
		return nil, fmt.Errorf("target url %q has no host", g.config.TargetURL)
	}

	samplers := make([]sampler, 0, len(events))
	for i, event := range events {
		if event.Body == "" {
			continue
		}
		samplerName := fmt.Sprintf("message %d", i+1)
		if event.MessageID != "" {
			samplerName = fmt.Sprintf("%s %s", event.Source, event.MessageID)
		}
		samplers = append(samplers, sampler{
			Name: samplerName,
			Body: event.Body,
		})
	}

	if len(samplers) == 0 {
		return nil, fmt.Errorf("no replayable events")
	}

	requestPath := target.RequestURI()
	if requestPath == "" {
		requestPath = "/"
	}

	ctx := plan{
		Name:          name,
		Scheme:        target.Scheme,
		Domain:        target.Hostname(),
		Port:          target.Port(),
		Path:          requestPath,
		Threads:       g.config.Threads,
		RampUpSeconds: g.config.RampUpSeconds,
		LoopCount:     g.config.LoopCount,
		Samplers:      samplers,
	}

	var buf bytes.Buffer
	if err := jmxTmpl.Execute(&buf, ctx); err != nil {
		return nil, fmt.Errorf("failed to render test plan: %w", err)
	}

	g.logger.Info("Test plan generated",
		zap.String("name", name),
		zap.Int("samplers", len(samplers)),
		zap.Int("threads", g.config.Threads),
		zap.String("target", g.config.TargetURL))

	return buf.Bytes(), nil
}

// WritePlan generates a plan and writes it into the configured output
// directory, returning the file path
func (g *Generator) WritePlan(name string, events []capture.Event) (string, error) {
	data, err := g.Generate(name, events)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(g.config.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	filename := fmt.Sprintf("%s-%s.jmx", sanitizeName(name), time.Now().Format("20060102-150405"))
	path := filepath.Join(g.config.OutputDir, filename)

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write test plan: %w", err)
	}

	g.logger.Info("Test plan written", zap.String("path", path))
	return path, nil
}

// sanitizeName reduces a plan name to a safe file name fragment
func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	cleaned := strings.Trim(b.String(), "-")
	if cleaned == "" {
		return "plan"
	}
	return cleaned
}

// escapeXML escapes a string for embedding in XML character data
func escapeXML(s string) string {
	var buf bytes.Buffer
	// EscapeText only fails on writer errors, which bytes.Buffer never returns
	xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
