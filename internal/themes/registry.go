// Package themes holds the reusable visual identities a run can apply:
// a mascot description for the planner, a style suffix for visual
// prompts, an optional reference image and a narrator hint.
package themes

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed themes.yaml
var defaultThemesYAML []byte

// Theme is one preset identity.
type Theme struct {
	ID             string `yaml:"id" json:"id"`
	Label          string `yaml:"label" json:"label"`
	Identity       string `yaml:"identity" json:"identity"`
	StyleSuffix    string `yaml:"style_suffix" json:"style_suffix"`
	ReferenceImage string `yaml:"reference_image,omitempty" json:"reference_image,omitempty"`
	NarratorHint   string `yaml:"narrator_hint,omitempty" json:"narrator_hint,omitempty"`
}

// DecoratePrompt appends the theme's style suffix to a visual prompt.
// Safe to call on a nil theme.
func (t *Theme) DecoratePrompt(prompt string) string {
	if t == nil || t.StyleSuffix == "" {
		return prompt
	}
	return strings.TrimSpace(prompt) + ", " + t.StyleSuffix
}

// IdentityBlock is the paragraph injected into the planner's system
// prompt. Empty without a theme.
func (t *Theme) IdentityBlock() string {
	if t == nil {
		return ""
	}
	return strings.TrimSpace(t.Identity)
}

type registryFile struct {
	Themes []Theme `yaml:"themes"`
}

// Registry resolves theme IDs.
type Registry struct {
	themes map[string]Theme
	order  []string
}

// Load builds a registry from the embedded defaults. A non-empty path
// replaces the registry wholesale with the file's contents.
func Load(path string) (*Registry, error) {
	data := defaultThemesYAML
	if path != "" {
		fileData, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read themes file: %w", err)
		}
		data = fileData
	}

	var parsed registryFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse themes: %w", err)
	}

	reg := &Registry{themes: make(map[string]Theme, len(parsed.Themes))}
	for _, theme := range parsed.Themes {
		if theme.ID == "" {
			return nil, fmt.Errorf("theme without an id in registry")
		}
		if _, dup := reg.themes[theme.ID]; dup {
			return nil, fmt.Errorf("duplicate theme id %q", theme.ID)
		}
		reg.themes[theme.ID] = theme
		reg.order = append(reg.order, theme.ID)
	}
	return reg, nil
}

// Select resolves an ID into a theme. Empty and "none" disable
// theming and return nil without error.
func (r *Registry) Select(id string) (*Theme, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" || id == "none" {
		return nil, nil
	}
	theme, ok := r.themes[id]
	if !ok {
		return nil, fmt.Errorf("unknown theme %q", id)
	}
	return &theme, nil
}

// All lists themes in registry order.
func (r *Registry) All() []Theme {
	out := make([]Theme, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.themes[id])
	}
	return out
}
