// Package catalog holds the fixed set of applications the detector recognises.
package catalog

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/kandev/agenthost/internal/apps/models"
)

//go:embed catalog.yaml
var catalogYAML []byte

// MacApp is matched by bundle identifier.
type MacApp struct {
	Name       string          `yaml:"name"`
	Identifier string          `yaml:"identifier"`
	Category   models.Category `yaml:"category"`
}

// WindowsApp is matched by the first existing candidate. A candidate without
// a separator is a bare executable resolved with `where`.
type WindowsApp struct {
	Name       string          `yaml:"name"`
	Identifier string          `yaml:"identifier"`
	Category   models.Category `yaml:"category"`
	Candidates []string        `yaml:"candidates"`
}

// LinuxApp is matched by the first command resolvable on PATH.
type LinuxApp struct {
	Name       string          `yaml:"name"`
	Identifier string          `yaml:"identifier"`
	Category   models.Category `yaml:"category"`
	Commands   []string        `yaml:"commands"`
}

// Catalog is the parsed application catalog.
type Catalog struct {
	MacOS struct {
		Directories []string `yaml:"directories"`
		Apps        []MacApp `yaml:"apps"`
	} `yaml:"macos"`
	Windows struct {
		Apps []WindowsApp `yaml:"apps"`
	} `yaml:"windows"`
	Linux struct {
		Apps []LinuxApp `yaml:"apps"`
	} `yaml:"linux"`
}

// Load parses the embedded catalog.
func Load() (*Catalog, error) {
	return Parse(catalogYAML)
}

// Parse decodes and validates a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse app catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// MacByIdentifier indexes the macOS apps by bundle id.
func (c *Catalog) MacByIdentifier() map[string]MacApp {
	out := make(map[string]MacApp, len(c.MacOS.Apps))
	for _, app := range c.MacOS.Apps {
		out[app.Identifier] = app
	}
	return out
}

func (c *Catalog) validate() error {
	check := func(section, name, id string, cat models.Category) error {
		if id == "" {
			return fmt.Errorf("app catalog: %s entry %q has no identifier", section, name)
		}
		if !cat.Valid() {
			return fmt.Errorf("app catalog: %s entry %q has invalid category %q", section, id, cat)
		}
		return nil
	}
	for _, a := range c.MacOS.Apps {
		if err := check("macos", a.Name, a.Identifier, a.Category); err != nil {
			return err
		}
	}
	for _, a := range c.Windows.Apps {
		if err := check("windows", a.Name, a.Identifier, a.Category); err != nil {
			return err
		}
		if len(a.Candidates) == 0 {
			return fmt.Errorf("app catalog: windows entry %q has no candidates", a.Identifier)
		}
	}
	for _, a := range c.Linux.Apps {
		if err := check("linux", a.Name, a.Identifier, a.Category); err != nil {
			return err
		}
		if len(a.Commands) == 0 {
			return fmt.Errorf("app catalog: linux entry %q has no commands", a.Identifier)
		}
	}
	return nil
}
