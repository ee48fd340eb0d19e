package prompt

import (
	"strings"
	"testing"
)

func TestComposeOrder(t *testing.T) {
	got := Compose("BASE", []string{"A1", "A2"}, nil, "FIXED")
	want := "BASE\n\nFIXED\n\nA1\n\nA2"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestComposeEmptyBasePromptOmitted(t *testing.T) {
	got := Compose("", nil, nil, "FIXED")
	if got != "FIXED" {
		t.Fatalf("got %q", got)
	}
}

func TestComposeKeepsDuplicates(t *testing.T) {
	got := Compose("", []string{"same", "same"}, nil, "F")
	if strings.Count(got, "same") != 2 {
		t.Fatalf("duplicates must be kept: %q", got)
	}
}

func TestComposeUserProfile(t *testing.T) {
	user := &User{Name: "Ada", DisplayName: "Ada L", Email: "ada@example.com"}
	got := Compose("B", nil, user, "F")
	if !strings.Contains(got, "Authenticated user profile (source of truth): name=Ada L, email=ada@example.com.") {
		t.Fatalf("missing profile sentence: %q", got)
	}

	// Display name falls back to name; a user with neither name nor email
	// contributes nothing.
	got = Compose("B", nil, &User{Name: "Ada"}, "F")
	if !strings.Contains(got, "name=Ada") {
		t.Fatalf("missing name fallback: %q", got)
	}
	got = Compose("B", nil, &User{Provider: "google"}, "F")
	if strings.Contains(got, "Authenticated user profile") {
		t.Fatalf("empty profile must be omitted: %q", got)
	}
}

func TestStateAppendAndCompose(t *testing.T) {
	state := NewState("BASE")
	state.Append("extra")
	state.Append("")
	got := state.Compose(nil)
	if !strings.HasPrefix(got, "BASE\n\n") || !strings.HasSuffix(got, "\n\nextra") {
		t.Fatalf("unexpected composed prompt: %q", got)
	}
}

func TestExportStateRoundTrip(t *testing.T) {
	state := NewState("B")
	state.Append("A1")
	exported := state.ExportState()

	restored := NewState("")
	restored.LoadState(exported)
	if restored.Compose(nil) != state.Compose(nil) {
		t.Fatalf("composed prompt changed across export/import")
	}
}

func TestLoadStateFlatSystemPromptFallback(t *testing.T) {
	state := NewState("B")
	state.LoadState(map[string]any{"system_prompt": "OLD"})
	_, additional := state.Snapshot()
	if len(additional) != 1 || additional[0] != "OLD" {
		t.Fatalf("expected flat system_prompt fallback, got %v", additional)
	}
}

func TestLoadStateIgnoresMalformedInput(t *testing.T) {
	state := NewState("B")
	state.Append("keep")
	state.LoadState(nil)
	state.LoadState(map[string]any{"prompt_state": "not a map"})
	state.LoadState(map[string]any{"prompt_state": map[string]any{"additional": 42}})
	base, additional := state.Snapshot()
	if base != "B" || len(additional) != 1 || additional[0] != "keep" {
		t.Fatalf("malformed loads must be ignored: base=%q additional=%v", base, additional)
	}
}

func TestLoadStateJSONDecodedAdditional(t *testing.T) {
	state := NewState("")
	state.LoadState(map[string]any{
		"prompt_state": map[string]any{
			"base_prompt": "B2",
			"additional":  []any{"x", 3, "y"},
		},
	})
	base, additional := state.Snapshot()
	if base != "B2" {
		t.Fatalf("base not restored: %q", base)
	}
	if len(additional) != 2 || additional[0] != "x" || additional[1] != "y" {
		t.Fatalf("unexpected additional: %v", additional)
	}
}

func TestRegistrySharesStatePerAgent(t *testing.T) {
	registry := NewRegistry()
	agent := struct{ name string }{"a"}
	first := registry.StateFor(&agent, "BASE")
	second := registry.StateFor(&agent, "ignored")
	if first != second {
		t.Fatalf("expected the same state for the same agent identity")
	}
	first.Append("shared")
	_, additional := second.Snapshot()
	if len(additional) != 1 || additional[0] != "shared" {
		t.Fatalf("append must be visible through every handle: %v", additional)
	}
}
