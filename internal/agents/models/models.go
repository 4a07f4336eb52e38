package models

import (
	"strings"
	"time"
)

// Environment is where an agent CLI runs.
type Environment string

const (
	EnvironmentNative Environment = "native"
	EnvironmentWSL    Environment = "wsl"
)

// WSLSuffix marks the id of the WSL-routed variant of an agent.
const WSLSuffix = "-wsl"

// WSLID returns the WSL variant id for a native agent id.
func WSLID(id string) string { return id + WSLSuffix }

// SplitWSLID reports whether id names a WSL variant and returns the base id.
func SplitWSLID(id string) (base string, isWSL bool) {
	if strings.HasSuffix(id, WSLSuffix) {
		return strings.TrimSuffix(id, WSLSuffix), true
	}
	return id, false
}

// AgentCliInfo describes one agent CLI in one environment. Native and WSL
// entries for the same agent are separate records.
type AgentCliInfo struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Command     string      `json:"command"`
	Installed   bool        `json:"installed"`
	Version     string      `json:"version,omitempty"`
	IsBuiltin   bool        `json:"isBuiltin"`
	Environment Environment `json:"environment"`
}

// AgentCliStatus is one detection pass. It is replaced wholesale, never patched.
type AgentCliStatus struct {
	Agents     []AgentCliInfo `json:"agents"`
	DetectedAt time.Time      `json:"detectedAt"`
}

// Find returns the entry with the given id.
func (s *AgentCliStatus) Find(id string) (AgentCliInfo, bool) {
	if s == nil {
		return AgentCliInfo{}, false
	}
	for _, a := range s.Agents {
		if a.ID == id {
			return a, true
		}
	}
	return AgentCliInfo{}, false
}

// CustomAgent is a user-defined agent CLI.
type CustomAgent struct {
	ID          string `json:"id" toml:"id"`
	Name        string `json:"name" toml:"name"`
	Command     string `json:"command" toml:"command"`
	Description string `json:"description,omitempty" toml:"description"`
	VersionFlag string `json:"versionFlag,omitempty" toml:"version_flag"`
}
