package chat

import "testing"

func TestSanitizeAnswerReplacesToolHTML(t *testing.T) {
	in := `<div class="tool-html"><iframe srcdoc="x"></iframe></div> ok`
	got := SanitizeAnswer(in)
	if got != "Rendered tool output. ok" {
		t.Fatalf("unexpected sanitized answer: %q", got)
	}
}

func TestSanitizeAnswerMultipleWrappers(t *testing.T) {
	in := `a <div class="tool-html">one</div> b <div class="tool-html">two</div> c`
	got := SanitizeAnswer(in)
	if got != "a Rendered tool output. b Rendered tool output. c" {
		t.Fatalf("unexpected sanitized answer: %q", got)
	}
}

func TestSanitizeAnswerStripsTagsAndEntities(t *testing.T) {
	got := SanitizeAnswer("  <b>bold</b> &amp; <i>quiet</i>  ")
	if got != "bold & quiet" {
		t.Fatalf("unexpected sanitized answer: %q", got)
	}
}

func TestSanitizeAnswerIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"plain text",
		`<div class="tool-html">x</div> ok`,
		`<p>broken <div class="tool-html">nested <div>inner</div></div>`,
		"&lt;not a tag&gt;",
		"&amp;lt;b&amp;gt;",
		"&lt;div class=\"tool-html\"&gt;escaped wrapper&lt;/div&gt; tail",
	}
	for _, in := range inputs {
		once := SanitizeAnswer(in)
		twice := SanitizeAnswer(once)
		if once != twice {
			t.Fatalf("sanitize not idempotent for %q: %q vs %q", in, once, twice)
		}
	}
}

func TestSanitizeAnswerEscapedMarkupReachesFixedPoint(t *testing.T) {
	// Unescaping surfaces a tag, the next pass removes it. The output must
	// already be stable so a replayed transcript sanitizes to the same text.
	if got := SanitizeAnswer("&lt;b&gt;wrapped&lt;/b&gt; tail"); got != "wrapped tail" {
		t.Fatalf("escaped markup: %q", got)
	}
	if got := SanitizeAnswer("&amp;lt;b&amp;gt;deep&amp;lt;/b&amp;gt;"); got != "deep" {
		t.Fatalf("double-escaped markup: %q", got)
	}
}

func TestCardsToMessages(t *testing.T) {
	cards := []Card{
		{Question: "hi", Answer: `<div class="tool-html">x</div> ok`},
		{Question: "pending"},
	}
	msgs := CardsToMessages(cards, "SYS")
	want := []Message{
		{Role: RoleSystem, Content: "SYS"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "Rendered tool output. ok"},
		{Role: RoleUser, Content: "pending"},
	}
	if len(msgs) != len(want) {
		t.Fatalf("expected %d messages, got %d: %v", len(want), len(msgs), msgs)
	}
	for i := range want {
		if msgs[i] != want[i] {
			t.Fatalf("message %d: got %+v want %+v", i, msgs[i], want[i])
		}
	}
}

func TestCardsToMessagesNoSystemPrompt(t *testing.T) {
	msgs := CardsToMessages([]Card{{Question: "q", Answer: "a"}}, "")
	if len(msgs) != 2 || msgs[0].Role != RoleUser {
		t.Fatalf("unexpected messages: %v", msgs)
	}
}

func TestCardsToMessagesPrefersAnswerTextCache(t *testing.T) {
	cards := []Card{{Question: "q", Answer: "<b>ignored</b>", AnswerText: "cached"}}
	msgs := CardsToMessages(cards, "")
	if msgs[1].Content != "cached" {
		t.Fatalf("expected cached answer text, got %q", msgs[1].Content)
	}
}

func TestCardsToMessagesFillsAnswerTextCache(t *testing.T) {
	cards := []Card{{Question: "q", Answer: "<b>bold</b>"}}
	CardsToMessages(cards, "")
	if cards[0].AnswerText != "bold" {
		t.Fatalf("cache not filled: %+v", cards[0])
	}
}

func TestSanitizedAnswerCaches(t *testing.T) {
	card := Card{Answer: "<i>hi</i>"}
	if got := card.SanitizedAnswer(); got != "hi" {
		t.Fatalf("sanitized answer = %q", got)
	}
	card.Answer = "<i>changed</i>"
	if got := card.SanitizedAnswer(); got != "hi" {
		t.Fatalf("cache must win: %q", got)
	}
}

func TestMessagesToCardsPairsTurns(t *testing.T) {
	msgs := []Message{
		{Role: RoleAssistant, Content: "stray"},
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "q1"},
		{Role: RoleAssistant, Content: "a1"},
		{Role: RoleUser, Content: "in flight"},
	}
	cards := MessagesToCards(msgs)
	if len(cards) != 1 {
		t.Fatalf("expected one card, got %d: %v", len(cards), cards)
	}
	if cards[0].Question != "q1" || cards[0].Answer != "a1" {
		t.Fatalf("unexpected card: %+v", cards[0])
	}
}

func TestParseExportTolerantOfGarbage(t *testing.T) {
	for _, payload := range []string{"", "not json", `{"cards": 42}`, `{"cards": [7, {"question": "q"}], "meta": "flat"}`} {
		ex := ParseExport([]byte(payload))
		if len(ex.Cards) > 1 {
			t.Fatalf("payload %q: unexpected cards %v", payload, ex.Cards)
		}
	}
	ex := ParseExport([]byte(`{"cards": [7, {"question": "q", "answer": "a"}]}`))
	if len(ex.Cards) != 1 || ex.Cards[0].Question != "q" {
		t.Fatalf("expected the one well-formed card, got %v", ex.Cards)
	}
}

func TestParseMessages(t *testing.T) {
	msgs := ParseMessages([]byte(`{"messages":[{"role":"user","content":"q"},{"role":"assistant","content":"a"},7]}`))
	if len(msgs) != 2 || msgs[0].Role != RoleUser || msgs[1].Content != "a" {
		t.Fatalf("unexpected messages: %v", msgs)
	}
	for _, payload := range []string{"", "not json", `{"messages": 42}`, `{"cards": []}`} {
		if got := ParseMessages([]byte(payload)); got != nil {
			t.Fatalf("payload %q: expected no messages, got %v", payload, got)
		}
	}
}

func TestMessagesToCardsAssignsSequentialIDs(t *testing.T) {
	cards := MessagesToCards([]Message{
		{Role: RoleUser, Content: "q1"},
		{Role: RoleAssistant, Content: "a1"},
		{Role: RoleUser, Content: "q2"},
		{Role: RoleAssistant, Content: "a2"},
	})
	if len(cards) != 2 || cards[0].ID != "0" || cards[1].ID != "1" {
		t.Fatalf("unexpected ids: %v", cards)
	}
}

func TestExportRoundTrip(t *testing.T) {
	ex := Export{
		Cards: []Card{{ID: "0", Question: "hi", Answer: "yo", AnswerText: "yo"}},
		Meta:  map[string]any{"system_prompt": "S"},
	}
	back := ParseExport(ex.JSON())
	if len(back.Cards) != 1 || back.Cards[0] != ex.Cards[0] {
		t.Fatalf("cards did not round trip: %v", back.Cards)
	}
	if back.Meta["system_prompt"] != "S" {
		t.Fatalf("meta did not round trip: %v", back.Meta)
	}
}
