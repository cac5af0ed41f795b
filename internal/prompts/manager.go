package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed templates/*.yaml
var templateFS embed.FS

// Template names.
const (
	System            = "system"
	Questions         = "questions"
	Chat              = "chat"
	EvaluateAnswer    = "evaluate_answer"
	SessionEvaluation = "session_evaluation"
)

// PromptTemplate is one YAML file under templates/.
type PromptTemplate struct {
	Description string                       `yaml:"description"`
	Template    string                       `yaml:"template"`
	Variants    map[string]map[string]string `yaml:"variants"`
}

// Manager holds the parsed prompt templates. It is safe for concurrent use
// once constructed.
type Manager struct {
	templates map[string]*template.Template
	variants  map[string]map[string]map[string]string // name -> group -> key -> text
}

var funcs = template.FuncMap{
	"join":      func(items []string) string { return strings.Join(items, ", ") },
	"truncate":  truncate,
	"orDefault": orDefault,
	"inc":       func(i int) int { return i + 1 },
}

// NewManager loads and parses every embedded template.
func NewManager() (*Manager, error) {
	m := &Manager{
		templates: make(map[string]*template.Template),
		variants:  make(map[string]map[string]map[string]string),
	}
	if err := m.load(); err != nil {
		return nil, fmt.Errorf("loading prompt templates: %w", err)
	}
	return m, nil
}

func (m *Manager) load() error {
	entries, err := templateFS.ReadDir("templates")
	if err != nil {
		return fmt.Errorf("reading templates directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}

		data, err := templateFS.ReadFile("templates/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading template file %s: %w", entry.Name(), err)
		}

		var pt PromptTemplate
		if err := yaml.Unmarshal(data, &pt); err != nil {
			return fmt.Errorf("parsing template file %s: %w", entry.Name(), err)
		}

		name := strings.TrimSuffix(entry.Name(), ".yaml")
		tmpl, err := template.New(name).Funcs(funcs).Option("missingkey=error").Parse(pt.Template)
		if err != nil {
			return fmt.Errorf("compiling template %s: %w", name, err)
		}
		m.templates[name] = tmpl
		if len(pt.Variants) > 0 {
			m.variants[name] = pt.Variants
		}
	}
	return nil
}

// Render executes the named template against data.
func (m *Manager) Render(name string, data any) (string, error) {
	tmpl, ok := m.templates[name]
	if !ok {
		return "", fmt.Errorf("template not found: %s", name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering %s: %w", name, err)
	}
	return buf.String(), nil
}

// Variant returns the text stored under variants.group.key of the named
// template. ok is false when any level is missing.
func (m *Manager) Variant(name, group, key string) (text string, ok bool) {
	text, ok = m.variants[name][group][key]
	return text, ok
}

// Names returns the loaded template names.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.templates))
	for n := range m.templates {
		names = append(names, n)
	}
	return names
}

// truncate keeps at most n runes of s.
func truncate(n int, s string) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func orDefault(def, s string) string {
	if s == "" {
		return def
	}
	return s
}
