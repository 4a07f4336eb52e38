// Package catalog defines the builtin agent CLIs and loads user-defined ones.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/kandev/agenthost/internal/agents/models"
)

// ErrAgentNotFound is returned when an id matches neither a builtin nor a custom agent.
var ErrAgentNotFound = errors.New("agent not found")

// VersionPattern extracts the first semantic version from probe output.
var VersionPattern = regexp.MustCompile(`(\d+\.\d+\.\d+)`)

// SessionFlags are the CLI flags an agent accepts to pin a conversation id.
// Agents without them start a fresh conversation every time.
type SessionFlags struct {
	Fresh  string // first spawn: <Fresh> <id>
	Resume string // respawn:     <Resume> <id>
}

// Supported reports whether the agent accepts session flags.
func (f SessionFlags) Supported() bool { return f.Fresh != "" && f.Resume != "" }

// Definition is everything needed to probe and spawn an agent.
type Definition struct {
	ID          string
	Name        string
	Command     string
	VersionFlag string
	Session     SessionFlags
	Builtin     bool
}

// Argv splits Command into an executable and its fixed arguments.
func (d Definition) Argv() []string {
	return strings.Fields(d.Command)
}

var builtins = []Definition{
	{ID: "claude", Name: "Claude", Command: "claude", VersionFlag: "--version",
		Session: SessionFlags{Fresh: "--session-id", Resume: "--resume"}},
	{ID: "codex", Name: "Codex", Command: "codex", VersionFlag: "--version"},
	{ID: "droid", Name: "Droid", Command: "droid", VersionFlag: "--version"},
	{ID: "gemini", Name: "Gemini", Command: "gemini", VersionFlag: "--version"},
	{ID: "auggie", Name: "Auggie", Command: "auggie", VersionFlag: "--version"},
	{ID: "cursor", Name: "Cursor", Command: "cursor-agent", VersionFlag: "--version"},
}

func init() {
	for i := range builtins {
		builtins[i].Builtin = true
	}
}

// Builtins returns the builtin agent definitions in display order.
func Builtins() []Definition {
	return append([]Definition(nil), builtins...)
}

// Builtin returns the builtin definition for id.
func Builtin(id string) (Definition, bool) {
	for _, d := range builtins {
		if d.ID == id {
			return d, true
		}
	}
	return Definition{}, false
}

// FromCustom converts a user-defined agent into a definition.
func FromCustom(a models.CustomAgent) Definition {
	flag := a.VersionFlag
	if flag == "" {
		flag = "--version"
	}
	name := a.Name
	if name == "" {
		name = a.ID
	}
	return Definition{ID: a.ID, Name: name, Command: a.Command, VersionFlag: flag}
}

// Resolve finds the definition for id, consulting custom agents after builtins.
func Resolve(id string, custom []models.CustomAgent) (Definition, error) {
	if d, ok := Builtin(id); ok {
		return d, nil
	}
	for _, a := range custom {
		if a.ID == id {
			return FromCustom(a), nil
		}
	}
	return Definition{}, fmt.Errorf("%w: %s", ErrAgentNotFound, id)
}

type customFile struct {
	Agents []models.CustomAgent `toml:"agent"`
}

// LoadCustomAgents reads user-defined agents from a TOML file:
//
//	[[agent]]
//	id = "aider"
//	name = "Aider"
//	command = "aider"
//
// A missing file yields no agents and no error.
func LoadCustomAgents(path string) ([]models.CustomAgent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading custom agents: %w", err)
	}

	var file customFile
	if _, err := toml.Decode(string(data), &file); err != nil {
		return nil, fmt.Errorf("parsing custom agents %s: %w", path, err)
	}
	if err := ValidateCustom(file.Agents); err != nil {
		return nil, err
	}
	return file.Agents, nil
}

// ValidateCustom rejects ids that would shadow builtins or WSL variants.
func ValidateCustom(agents []models.CustomAgent) error {
	seen := make(map[string]bool, len(agents))
	for _, a := range agents {
		switch {
		case a.ID == "":
			return fmt.Errorf("custom agent %q: id is required", a.Name)
		case strings.TrimSpace(a.Command) == "":
			return fmt.Errorf("custom agent %q: command is required", a.ID)
		case strings.HasSuffix(a.ID, models.WSLSuffix):
			return fmt.Errorf("custom agent %q: id must not end in %s", a.ID, models.WSLSuffix)
		case seen[a.ID]:
			return fmt.Errorf("custom agent %q: duplicate id", a.ID)
		}
		if _, ok := Builtin(a.ID); ok {
			return fmt.Errorf("custom agent %q: id collides with a builtin agent", a.ID)
		}
		seen[a.ID] = true
	}
	return nil
}

// MergeCustom combines file-defined agents with request-supplied ones.
// Request entries win on id conflicts.
func MergeCustom(base, overrides []models.CustomAgent) []models.CustomAgent {
	out := make([]models.CustomAgent, 0, len(base)+len(overrides))
	index := make(map[string]int, len(base)+len(overrides))
	for _, list := range [][]models.CustomAgent{base, overrides} {
		for _, a := range list {
			if i, ok := index[a.ID]; ok {
				out[i] = a
				continue
			}
			index[a.ID] = len(out)
			out = append(out, a)
		}
	}
	return out
}
