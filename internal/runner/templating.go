package runner

import (
	"bytes"
	"math/rand"
	"sort"
	"strings"
	"text/template"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// DefaultHeaders identify the virtual user and iteration on every request.
func DefaultHeaders() map[string]string {
	return map[string]string{
		"X-VU-ID":     "{{.VU}}",
		"X-Iteration": "{{.Iter}}",
		"X-User-ID":   "user-{{.VU}}",
	}
}

// TemplateEngine handles parsing and executing header templates
type TemplateEngine struct {
	funcMap template.FuncMap
}

// TemplateData is passed to the execution context
type TemplateData struct {
	VU   int64
	Iter int64
}

// NewTemplateEngine initializes the engine and its functions
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{}

	e.funcMap = template.FuncMap{
		"randomInt":    e.randomInt,
		"randomUUID":   e.randomUUID,
		"randomChoice": e.randomChoice,
		"uuid":         e.randomUUID, // Alias
	}

	return e
}

// Preprocess converts simple variables {{vu}} to Go template syntax {{.VU}}
func (e *TemplateEngine) Preprocess(input string) string {
	s := input
	s = strings.ReplaceAll(s, "{{vu}}", "{{.VU}}")
	s = strings.ReplaceAll(s, "{{iter}}", "{{.Iter}}")
	s = strings.ReplaceAll(s, "{{iteration}}", "{{.Iter}}")
	return s
}

// Parse creates a new template with the engine's functions
func (e *TemplateEngine) Parse(name, text string) (*template.Template, error) {
	readyText := e.Preprocess(text)
	return template.New(name).Funcs(e.funcMap).Option("missingkey=error").Parse(readyText)
}

// Execute runs the template with data
func (e *TemplateEngine) Execute(t *template.Template, data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

type headerTemplate struct {
	name string
	tmpl *template.Template
}

// compileHeaders merges defaults with extra headers, parses them once and
// dry-runs each one.
// Extra headers override defaults with the same canonical name.
func (e *TemplateEngine) compileHeaders(extra map[string]string) ([]headerTemplate, error) {
	merged := DefaultHeaders()
	for k, v := range extra {
		for dk := range merged {
			if strings.EqualFold(dk, k) {
				delete(merged, dk)
			}
		}
		merged[k] = v
	}

	names := make([]string, 0, len(merged))
	for k := range merged {
		names = append(names, k)
	}
	sort.Strings(names)

	out := make([]headerTemplate, 0, len(names))
	for _, name := range names {
		t, err := e.Parse(name, merged[name])
		if err != nil {
			return nil, errors.Wrapf(err, "header %s", name)
		}
		// Field and argument mistakes only surface on execution.
		if _, err := e.Execute(t, TemplateData{VU: 1}); err != nil {
			return nil, errors.Wrapf(err, "header %s", name)
		}
		out = append(out, headerTemplate{name: name, tmpl: t})
	}
	return out, nil
}

// --- Functions ---

func (e *TemplateEngine) randomInt(min, max int) int {
	if max <= min {
		return min
	}
	return rand.Intn(max-min) + min
}

func (e *TemplateEngine) randomUUID() string {
	return uuid.New().String()
}

func (e *TemplateEngine) randomChoice(choices ...string) string {
	if len(choices) == 0 {
		return ""
	}
	return choices[rand.Intn(len(choices))]
}
