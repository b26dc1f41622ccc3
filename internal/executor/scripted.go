package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ScriptEntry is one canned response for a capability. Tokens, when set,
// are streamed through the request's OnToken hook before the final output.
type ScriptEntry struct {
	Capability string   `yaml:"capability"`
	Status     string   `yaml:"status"`
	Output     string   `yaml:"output"`
	Detail     string   `yaml:"detail"`
	Tokens     []string `yaml:"tokens"`
}

type scriptFile struct {
	Entries []ScriptEntry `yaml:"capabilities"`
}

// Scripted replays canned results per capability. It stands in for the
// external retrieval, generation, and persistence collaborators in the CLI
// demo and in tests.
type Scripted struct {
	entries map[string]ScriptEntry
}

func NewScripted(entries []ScriptEntry) (*Scripted, error) {
	m := map[string]ScriptEntry{}
	for _, entry := range entries {
		capability := strings.TrimSpace(entry.Capability)
		if capability == "" {
			return nil, fmt.Errorf("script entry capability is required")
		}
		switch Status(entry.Status) {
		case StatusOK, StatusTransientError, StatusFatalError:
		case "":
			entry.Status = string(StatusOK)
		default:
			return nil, fmt.Errorf("script entry %s: invalid status %q", capability, entry.Status)
		}
		if _, exists := m[capability]; exists {
			return nil, fmt.Errorf("duplicate script entry for capability %q", capability)
		}
		m[capability] = entry
	}
	return &Scripted{entries: m}, nil
}

// LoadScripted reads a YAML capability script.
func LoadScripted(path string) (*Scripted, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read capability script: %w", err)
	}
	var parsed scriptFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse capability script: %w", err)
	}
	return NewScripted(parsed.Entries)
}

func (s *Scripted) Execute(ctx context.Context, req Request) (Result, error) {
	entry, ok := s.entries[req.Step.Capability]
	if !ok {
		return Result{Status: StatusFatalError, Detail: fmt.Sprintf("no script for capability %q", req.Step.Capability)}, nil
	}
	for _, token := range entry.Tokens {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if req.OnToken != nil {
			req.OnToken(token)
		}
	}
	output, err := json.Marshal(map[string]string{"text": entry.Output})
	if err != nil {
		return Result{}, fmt.Errorf("marshal scripted output: %w", err)
	}
	return Result{
		Status: Status(entry.Status),
		Output: output,
		Detail: entry.Detail,
	}, nil
}

// Register wires the scripted executor under every scripted capability.
func (s *Scripted) Register(registry *Registry) error {
	for capability := range s.entries {
		if err := registry.Register(capability, s); err != nil {
			return err
		}
	}
	return nil
}
