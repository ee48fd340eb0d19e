// Package prompt composes the system prompt sent on every model run: the
// agent's base prompt, the fixed environment instructions, an optional
// authenticated-user profile sentence, and any instructions appended at
// runtime, joined in that order.
package prompt

import (
	"strings"
	"sync"
)

// EnvironmentInstructions is always composed into the system prompt,
// regardless of the agent's own base prompt.
const EnvironmentInstructions = "You are also a helpful AI assistant integrated with the Golgue environment." +
	"The environment supports auto injection of html, i.e., if you respond with raw HTML it will be rendered as HTML." +
	"The environment also supports markdown rendering, so you can use markdown syntax for formatting." +
	"Finally the environment supports mermaid diagrams, so you can create diagrams using mermaid syntax. with ```mermaid ... ``` blocks." +
	"Always generate (block appropriate) css based colorful mermaid diagrams (e.g., classDef evaporation fill:#add8e6,stroke:#333,stroke-width:2px) when appropriate to illustrate concepts." +
	"also ensure in mermaid blocks you wrap the text with double quotes to avoid syntax errors, and <br> for line breaks instead of \\n" +
	"prefer vertical layouts for flowcharts and sequence diagrams. " +
	"Render math using LaTeX syntax within $$ ... $$ blocks or inline with $ ... $." +
	"when embedding HTML do not wrap it inside ```html ... ``` blocks, just output the raw HTML directly. Do not add <html> or <body> tags." +
	"Just because you can respond with HTML or generate mermaid diagrams does not mean you should always do that. Apart from accuracy of response, your next biggest goals is to save as many tokens as possible while ensuring the response is clear and complete."

// User carries the authenticated user identity attached to a session.
type User struct {
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
	Provider    string `json:"provider,omitempty"`
}

// Compose joins the prompt segments in fixed order: base prompt (if any),
// the fixed instructions, a synthesized user-profile sentence (if the user
// has a name or email), then each additional instruction in insertion order.
// Nothing is deduplicated or reordered.
func Compose(basePrompt string, additional []string, user *User, fixed string) string {
	var segments []string
	if basePrompt != "" {
		segments = append(segments, basePrompt)
	}
	segments = append(segments, fixed)
	if sentence := userProfileSentence(user); sentence != "" {
		segments = append(segments, sentence)
	}
	segments = append(segments, additional...)
	return strings.Join(segments, "\n\n")
}

func userProfileSentence(user *User) string {
	if user == nil {
		return ""
	}
	displayName := user.DisplayName
	if displayName == "" {
		displayName = user.Name
	}
	var parts []string
	if displayName != "" {
		parts = append(parts, "name="+displayName)
	}
	if user.Email != "" {
		parts = append(parts, "email="+user.Email)
	}
	if len(parts) == 0 {
		return ""
	}
	return "Authenticated user profile (source of truth): " + strings.Join(parts, ", ") +
		". Use this identity when the user asks who they are or asks for personalization."
}

// State is the mutable prompt state of one underlying agent: the base prompt
// fixed at construction plus an append-only list of extra instructions.
// A State is typically shared by every responder wrapping the same agent, so
// concurrent sessions observe each other's appends; callers needing isolation
// must construct a distinct agent (and thus State) per session.
type State struct {
	mu         sync.Mutex
	basePrompt string
	additional []string
}

func NewState(basePrompt string) *State {
	return &State{basePrompt: basePrompt}
}

// Append adds an instruction fragment to the end of the additional list.
// Empty fragments are ignored; duplicates are kept.
func (s *State) Append(instructions string) {
	if instructions == "" {
		return
	}
	s.mu.Lock()
	s.additional = append(s.additional, instructions)
	s.mu.Unlock()
}

// Snapshot returns the base prompt and a copy of the additional list.
func (s *State) Snapshot() (string, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	additional := make([]string, len(s.additional))
	copy(additional, s.additional)
	return s.basePrompt, additional
}

// Compose builds the full system prompt for the given user.
func (s *State) Compose(user *User) string {
	base, additional := s.Snapshot()
	return Compose(base, additional, user, EnvironmentInstructions)
}

// ExportState returns a full snapshot for persistence: the raw prompt state
// plus the composed system prompt (without any user profile).
func (s *State) ExportState() map[string]any {
	base, additional := s.Snapshot()
	return map[string]any{
		"prompt_state": map[string]any{
			"base_prompt": base,
			"additional":  additional,
		},
		"system_prompt": Compose(base, additional, nil, EnvironmentInstructions),
	}
}

// LoadState restores prompt state from exported metadata. Absent or
// wrong-typed fields are ignored. As a backward-compatibility fallback, a
// flat system_prompt string (older export format) becomes the sole
// additional entry.
func (s *State) LoadState(meta map[string]any) {
	if meta == nil {
		return
	}
	exported, _ := meta["prompt_state"].(map[string]any)
	s.mu.Lock()
	defer s.mu.Unlock()
	if raw, ok := exported["base_prompt"]; ok {
		base, _ := raw.(string)
		s.basePrompt = base
	}
	switch list := exported["additional"].(type) {
	case []any:
		additional := make([]string, 0, len(list))
		for _, item := range list {
			if str, ok := item.(string); ok {
				additional = append(additional, str)
			}
		}
		s.additional = additional
		return
	case []string:
		s.additional = append([]string(nil), list...)
		return
	}
	if flat, ok := meta["system_prompt"].(string); ok {
		s.additional = []string{flat}
	}
}

// Registry maps agent identities to their shared prompt State. It replaces
// the pattern of stashing state on a foreign agent object: ownership is
// explicit and lookups are race-free, but the sharing semantics are
// unchanged (last writer wins across sessions sharing one agent).
type Registry struct {
	mu     sync.Mutex
	states map[any]*State
}

func NewRegistry() *Registry {
	return &Registry{states: map[any]*State{}}
}

// StateFor returns the State registered for the given agent identity,
// creating it with basePrompt on first use. Later calls ignore basePrompt.
func (r *Registry) StateFor(key any, basePrompt string) *State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if state, ok := r.states[key]; ok {
		return state
	}
	state := NewState(basePrompt)
	r.states[key] = state
	return state
}
