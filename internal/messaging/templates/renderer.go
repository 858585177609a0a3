package templates

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"text/template"
)

// Renderer holds named reply templates compiled with strict missing-key semantics.
type Renderer struct {
	mu        sync.RWMutex
	templates map[string]*template.Template
}

// NewRenderer returns an empty renderer.
func NewRenderer() *Renderer {
	return &Renderer{templates: make(map[string]*template.Template)}
}

var funcs = template.FuncMap{
	"upper": strings.ToUpper,
	"join":  strings.Join,
}

// Register compiles tmpl under name, replacing any earlier template of that name.
func (r *Renderer) Register(name, tmpl string) error {
	if strings.TrimSpace(tmpl) == "" {
		return fmt.Errorf("templates: template text required for %q", name)
	}
	t, err := template.New(name).Option("missingkey=error").Funcs(funcs).Parse(tmpl)
	if err != nil {
		return fmt.Errorf("templates: parse %q: %w", name, err)
	}
	r.mu.Lock()
	r.templates[name] = t
	r.mu.Unlock()
	return nil
}

// Render executes the named template.
func (r *Renderer) Render(name string, data any) (string, error) {
	r.mu.RLock()
	t, ok := r.templates[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("templates: unknown template %q", name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("templates: execute %q: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}
