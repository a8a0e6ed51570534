package service

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Palette maps event categories to display colours.
type Palette struct {
	Default        string            `yaml:"default"`
	Muted          string            `yaml:"muted"`
	Organizational string            `yaml:"organizational"`
	Categories     map[string]string `yaml:"categories"`
}

// DefaultPalette is used when no palette file is configured.
func DefaultPalette() *Palette {
	return &Palette{
		Default:        "#3b82f6",
		Muted:          "#9ca3af",
		Organizational: "#f59e0b",
		Categories: map[string]string{
			"work":      "#2563eb",
			"personal":  "#10b981",
			"health":    "#ef4444",
			"social":    "#8b5cf6",
			"volunteer": "#f97316",
		},
	}
}

// LoadPalette reads a YAML palette from path. Missing keys fall back to
// DefaultPalette values; an empty path returns the defaults.
func LoadPalette(path string) (*Palette, error) {
	palette := DefaultPalette()
	if path == "" {
		return palette, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read palette %s: %w", path, err)
	}

	var file Palette
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse palette %s: %w", path, err)
	}
	if file.Default != "" {
		palette.Default = file.Default
	}
	if file.Muted != "" {
		palette.Muted = file.Muted
	}
	if file.Organizational != "" {
		palette.Organizational = file.Organizational
	}
	for category, colour := range file.Categories {
		palette.Categories[strings.ToLower(category)] = colour
	}
	return palette, nil
}

// ColorFor returns the colour of category, falling back to the default.
func (p *Palette) ColorFor(category string) string {
	if p == nil {
		return ""
	}
	if colour, ok := p.Categories[strings.ToLower(strings.TrimSpace(category))]; ok {
		return colour
	}
	return p.Default
}
