package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/beraterkanelcelik/home-work-sportradar-sub001/internal/workflow"
)

func TestRegistryRejectsDuplicates(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	fn := Func(func(ctx context.Context, req Request) (Result, error) {
		return Result{Status: StatusOK}, nil
	})
	if err := registry.Register("feed.search", fn); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := registry.Register("feed.search", fn); err == nil {
		t.Fatal("duplicate registration must fail")
	}
	if err := registry.Register("", fn); err == nil {
		t.Fatal("empty capability must fail")
	}
	if err := registry.Register("x", nil); err == nil {
		t.Fatal("nil executor must fail")
	}
}

func TestRegistryLookupAndCapabilities(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	fn := Func(func(ctx context.Context, req Request) (Result, error) {
		return Result{Status: StatusOK}, nil
	})
	for _, capability := range []string{"desk.compose", "feed.search"} {
		if err := registry.Register(capability, fn); err != nil {
			t.Fatalf("Register(%s): %v", capability, err)
		}
	}
	if _, ok := registry.Lookup("feed.search"); !ok {
		t.Fatal("registered capability not found")
	}
	if _, ok := registry.Lookup("stats.extract"); ok {
		t.Fatal("unregistered capability found")
	}
	caps := registry.Capabilities()
	if len(caps) != 2 || caps[0] != "desk.compose" || caps[1] != "feed.search" {
		t.Fatalf("Capabilities = %v", caps)
	}
}

func TestScriptedStreamsTokensThenResult(t *testing.T) {
	t.Parallel()

	scripted, err := NewScripted([]ScriptEntry{
		{
			Capability: "desk.compose",
			Status:     string(StatusOK),
			Output:     "United edged City 2-1.",
			Tokens:     []string{"United ", "edged ", "City."},
		},
	})
	if err != nil {
		t.Fatalf("NewScripted: %v", err)
	}

	streamed := []string{}
	result, err := scripted.Execute(context.Background(), Request{
		SessionID: "ses-1",
		Step:      workflow.Step{Capability: "desk.compose", Action: workflow.ActionCompose},
		OnToken:   func(text string) { streamed = append(streamed, text) },
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Status != StatusOK {
		t.Fatalf("status = %s", result.Status)
	}
	if len(streamed) != 3 || streamed[0] != "United " {
		t.Fatalf("streamed tokens = %v", streamed)
	}
}

func TestScriptedClassifiesFailures(t *testing.T) {
	t.Parallel()

	scripted, err := NewScripted([]ScriptEntry{
		{Capability: "feed.search", Status: string(StatusTransientError), Detail: "feed unavailable"},
		{Capability: "desk.publish", Status: string(StatusFatalError), Detail: "store rejected write"},
	})
	if err != nil {
		t.Fatalf("NewScripted: %v", err)
	}

	result, err := scripted.Execute(context.Background(), Request{
		Step: workflow.Step{Capability: "feed.search"},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Status != StatusTransientError || result.Detail != "feed unavailable" {
		t.Fatalf("transient result = %+v", result)
	}

	result, err = scripted.Execute(context.Background(), Request{
		Step: workflow.Step{Capability: "desk.publish"},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Status != StatusFatalError {
		t.Fatalf("fatal result = %+v", result)
	}

	// An unscripted capability is a fatal, not an infrastructure error.
	result, err = scripted.Execute(context.Background(), Request{
		Step: workflow.Step{Capability: "stats.extract"},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Status != StatusFatalError {
		t.Fatalf("unscripted capability status = %s, want fatal", result.Status)
	}
}

func TestLoadScriptedFromYAML(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "capabilities.yaml")
	raw := `capabilities:
  - capability: feed.search
    output: "box score retrieved"
  - capability: desk.compose
    status: ok
    output: "match report drafted"
    tokens: ["match ", "report "]
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}

	scripted, err := LoadScripted(path)
	if err != nil {
		t.Fatalf("LoadScripted: %v", err)
	}
	registry := NewRegistry()
	if err := scripted.Register(registry); err != nil {
		t.Fatalf("Register: %v", err)
	}
	caps := registry.Capabilities()
	if len(caps) != 2 {
		t.Fatalf("Capabilities = %v", caps)
	}

	result, err := scripted.Execute(context.Background(), Request{
		Step: workflow.Step{Capability: "feed.search"},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Status != StatusOK {
		t.Fatalf("defaulted status = %s, want ok", result.Status)
	}
}

func TestNewScriptedValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewScripted([]ScriptEntry{{Capability: ""}}); err == nil {
		t.Fatal("empty capability must fail")
	}
	if _, err := NewScripted([]ScriptEntry{{Capability: "a", Status: "maybe"}}); err == nil {
		t.Fatal("invalid status must fail")
	}
	if _, err := NewScripted([]ScriptEntry{{Capability: "a"}, {Capability: "a"}}); err == nil {
		t.Fatal("duplicate capability must fail")
	}
}
