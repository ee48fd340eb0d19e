package chat

import "encoding/json"

// Export is the persisted transcript format: the UI cards plus responder
// metadata (prompt state and composed system prompt). Meta stays loosely
// typed so older or partial exports load without erroring.
type Export struct {
	Cards []Card         `json:"cards"`
	Meta  map[string]any `json:"meta,omitempty"`
}

// ParseExport decodes a transcript payload. Malformed JSON or wrong-typed
// fields degrade to an empty transcript; they are never an error.
func ParseExport(data []byte) Export {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Export{}
	}
	out := Export{}
	if meta, ok := raw["meta"].(map[string]any); ok {
		out.Meta = meta
	}
	rawCards, ok := raw["cards"].([]any)
	if !ok {
		return out
	}
	for _, rc := range rawCards {
		m, ok := rc.(map[string]any)
		if !ok {
			continue
		}
		out.Cards = append(out.Cards, Card{
			ID:         asString(m["id"]),
			Question:   asString(m["question"]),
			Answer:     asString(m["answer"]),
			AnswerText: asString(m["answer_text"]),
		})
	}
	return out
}

// JSON serializes the transcript. Cards and meta marshal cleanly, so the
// error from encoding/json is not reachable in practice.
func (e Export) JSON() []byte {
	if e.Cards == nil {
		e.Cards = []Card{}
	}
	data, err := json.Marshal(e)
	if err != nil {
		return []byte(`{"cards":[]}`)
	}
	return data
}

// ParseMessages decodes a transcript given in the generic role/content shape
// (`{"messages": [{"role": ..., "content": ...}]}`). Same tolerance as
// ParseExport: anything malformed degrades to an empty list.
func ParseMessages(data []byte) []Message {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	rawMsgs, ok := raw["messages"].([]any)
	if !ok {
		return nil
	}
	var out []Message
	for _, rm := range rawMsgs {
		m, ok := rm.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, Message{Role: asString(m["role"]), Content: asString(m["content"])})
	}
	return out
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
