// Package chat holds the conversation data model shared by responders,
// sessions, and the persistence layer: question/answer cards as shown in the
// UI, role-tagged messages as replayed into a model, and the JSON transcript
// format used for export and import.
package chat

import (
	"html"
	"regexp"
	"strconv"
	"strings"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Card is one user-question/assistant-answer pair in the UI transcript.
// Answer may contain inline HTML (tool output wrappers, status divs);
// AnswerText caches the sanitized plain-text form used for model replay.
type Card struct {
	ID         string `json:"id"`
	Question   string `json:"question"`
	Answer     string `json:"answer"`
	AnswerText string `json:"answer_text,omitempty"`
}

// SanitizedAnswer returns the plain-text form of the answer, computing and
// caching it on first use.
func (c *Card) SanitizedAnswer() string {
	if c.AnswerText == "" {
		c.AnswerText = SanitizeAnswer(c.Answer)
	}
	return c.AnswerText
}

// Message is the role-tagged content unit replayed into a model run.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

var (
	toolHTMLPattern = regexp.MustCompile(`(?s)<div class="tool-html">.*?</div>`)
	tagPattern      = regexp.MustCompile(`<[^>]+>`)
)

// SanitizeAnswer strips rendered tool output and all other markup from an
// answer so it can be replayed into a model as plain text. Each tool-html
// wrapper block collapses to a fixed placeholder sentence, remaining tags are
// removed, entities are unescaped, and the result is trimmed. Unescaping can
// surface new tags (and, when entities are double-escaped, new entities), so
// the pass repeats until the text is stable. The operation is idempotent and
// never fails on malformed HTML.
func SanitizeAnswer(answer string) string {
	text := answer
	for i := 0; i < 10; i++ {
		next := sanitizePass(text)
		if next == text {
			break
		}
		text = next
	}
	return text
}

func sanitizePass(text string) string {
	if text == "" {
		return ""
	}
	text = toolHTMLPattern.ReplaceAllString(text, "Rendered tool output.")
	text = tagPattern.ReplaceAllString(text, "")
	return strings.TrimSpace(html.UnescapeString(text))
}

// CardsToMessages converts UI cards into the message list replayed into a
// model run. A system message is prepended when systemPrompt is non-empty.
// A card with no sanitized answer contributes only its user message; a
// trailing in-flight question is legitimately history-incomplete.
func CardsToMessages(cards []Card, systemPrompt string) []Message {
	var out []Message
	if systemPrompt != "" {
		out = append(out, Message{Role: RoleSystem, Content: systemPrompt})
	}
	for i := range cards {
		card := &cards[i]
		out = append(out, Message{Role: RoleUser, Content: card.Question})
		// The cache normally holds sanitized text already; imported payloads
		// may not honor that, and sanitizing is idempotent.
		answerText := SanitizeAnswer(card.SanitizedAnswer())
		if answerText != "" {
			out = append(out, Message{Role: RoleAssistant, Content: answerText})
		}
	}
	return out
}

// MessagesToCards pairs consecutive user/assistant messages back into cards.
// System messages are skipped. An unpaired leading assistant message and any
// user message without a following assistant reply are discarded.
func MessagesToCards(messages []Message) []Card {
	var out []Card
	var question string
	var pending bool
	for _, msg := range messages {
		switch msg.Role {
		case RoleUser:
			question = msg.Content
			pending = true
		case RoleAssistant:
			if !pending {
				continue
			}
			out = append(out, Card{
				ID:         strconv.Itoa(len(out)),
				Question:   question,
				Answer:     msg.Content,
				AnswerText: SanitizeAnswer(msg.Content),
			})
			pending = false
		}
	}
	return out
}
