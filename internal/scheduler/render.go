package scheduler

import (
	"fmt"
	"sync"

	"github.com/osteele/liquid"
)

// Renderer substitutes lead variables into subject and body templates
// using the Liquid template language ({{first_name}}, filters, defaults).
// Parsed templates are cached by source since the same variant renders for
// every lead in a campaign.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

// NewRenderer creates a renderer with the default filter.
func NewRenderer() *Renderer {
	engine := liquid.NewEngine()

	// {{ first_name | default: "there" }}
	engine.RegisterFilter("default", func(value interface{}, fallback string) interface{} {
		if value == nil {
			return fallback
		}
		if s := fmt.Sprintf("%v", value); s == "" || s == "<nil>" {
			return fallback
		}
		return value
	})

	return &Renderer{engine: engine}
}

// Render executes one template against the job's variables.
func (r *Renderer) Render(source string, vars map[string]interface{}) (string, error) {
	if source == "" {
		return "", nil
	}

	var tpl *liquid.Template
	if cached, ok := r.cache.Load(source); ok {
		tpl = cached.(*liquid.Template)
	} else {
		parsed, err := r.engine.ParseString(source)
		if err != nil {
			return "", fmt.Errorf("parse template: %w", err)
		}
		r.cache.Store(source, parsed)
		tpl = parsed
	}

	out, err := tpl.RenderString(vars)
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return out, nil
}

// RenderMessage renders subject and body in one call.
func (r *Renderer) RenderMessage(subject, body string, vars map[string]interface{}) (string, string, error) {
	renderedSubject, err := r.Render(subject, vars)
	if err != nil {
		return "", "", fmt.Errorf("subject: %w", err)
	}
	renderedBody, err := r.Render(body, vars)
	if err != nil {
		return "", "", fmt.Errorf("body: %w", err)
	}
	return renderedSubject, renderedBody, nil
}
