// Package fragment renders the incremental output units the adapter emits:
// compact tool status divs, collapsible tool-call summaries, and the wrapper
// container for embeddable tool HTML. It also resolves stored-HTML token
// references in tool results.
package fragment

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/golgue/golgue/internal/embeds"
)

const truncateLimit = 100

// SafeJSON pretty-prints a value for display. Strings that parse as JSON are
// reformatted (sorted keys, two-space indent); other strings pass through
// unchanged. Serialization failures fall back to fmt stringification; this
// never fails.
func SafeJSON(value any) string {
	if value == nil {
		return "{}"
	}
	if str, ok := value.(string); ok {
		var parsed any
		if err := json.Unmarshal([]byte(str), &parsed); err != nil {
			return str
		}
		if out, err := json.MarshalIndent(parsed, "", "  "); err == nil {
			return string(out)
		}
		return str
	}
	if out, err := json.MarshalIndent(value, "", "  "); err == nil {
		return string(out)
	}
	out, _ := json.MarshalIndent(fmt.Sprintf("%v", value), "", "  ")
	return string(out)
}

// Truncate keeps the head and tail of an oversized string with an elision
// marker in between.
func Truncate(text string) string {
	runes := []rune(text)
	if len(runes) <= truncateLimit {
		return text
	}
	half := truncateLimit / 2
	return string(runes[:half]) + " ... (truncated) ... " + string(runes[len(runes)-half:])
}

// SafeDOMID reduces a value to characters safe in an HTML id attribute.
func SafeDOMID(value string) string {
	var sb strings.Builder
	for _, ch := range value {
		if ch == '-' || ch == '_' ||
			(ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') {
			sb.WriteRune(ch)
		}
	}
	if sb.Len() == 0 {
		return "tool-status"
	}
	return sb.String()
}

// StatusRunning renders the compact "tool running" status div. The label is
// the tool's purpose argument when supplied, else a title-cased form of the
// tool name.
func StatusRunning(toolName string, args map[string]any, callID string) string {
	label := purposeLabel(args)
	if label == "" {
		if toolName != "" {
			label = titleCase(toolName)
		} else {
			label = "Working"
		}
	}
	statusID := SafeDOMID("tool-status-" + callID)
	return fmt.Sprintf("<div id=%q class=\"tool-status tool-status--running\">%s</div><br />\n\n",
		statusID, html.EscapeString(label))
}

// StatusDone renders the compact "tool done" status update, targeted at the
// matching running status by DOM id.
func StatusDone(args map[string]any, callID string) string {
	label := strings.TrimSpace(purposeLabel(args))
	if label == "" {
		label = "Completed"
	}
	statusID := SafeDOMID("tool-status-" + callID)
	return fmt.Sprintf("<div class=\"tool-status-update\" data-target-id=%q>%s</div><br />\n\n",
		statusID, html.EscapeString(label))
}

// Summary renders the collapsible detail block with the tool's name,
// pretty-printed args, and truncated pretty-printed result.
func Summary(toolName string, args, result any) string {
	label := toolName
	if label == "" {
		label = "tool"
	}
	return "\n\n" +
		fmt.Sprintf("<details class=\"tool-call\"><summary>Tool: %s</summary>", html.EscapeString(label)) +
		"<div><strong>Args</strong></div>" +
		fmt.Sprintf("<pre><code>%s</code></pre>", html.EscapeString(SafeJSON(args))) +
		"<div><strong>Result</strong></div>" +
		fmt.Sprintf("<pre><code>%s</code></pre></details>\n\n", html.EscapeString(Truncate(SafeJSON(result))))
}

// ResolveHTML consumes a stored-HTML token reference in a tool result.
// It returns the stored HTML, or "" when the result carries no token or the
// token is already consumed or expired.
func ResolveHTML(result any) string {
	m, ok := result.(map[string]any)
	if !ok {
		return ""
	}
	token, ok := m[embeds.TokenKey].(string)
	if !ok {
		return ""
	}
	stored, ok := embeds.Take(token)
	if !ok {
		return ""
	}
	return stored
}

// ShouldRenderRaw reports whether a tool result looks like HTML the tool
// produced directly and should be rendered, not summarized.
func ShouldRenderRaw(result any) bool {
	str, ok := result.(string)
	if !ok {
		return false
	}
	return strings.HasPrefix(strings.TrimLeft(str, " \t\r\n"), "<")
}

// Wrap puts tool HTML inside the container div the UI recognizes. Content
// already wrapped passes through unchanged, so double-wrapping never occurs.
func Wrap(toolHTML string) string {
	stripped := strings.TrimSpace(toolHTML)
	if strings.HasPrefix(stripped, "<div") && strings.HasSuffix(stripped, "</div>") {
		return toolHTML
	}
	return `<div class="tool-html">` + toolHTML + `</div>`
}

func purposeLabel(args map[string]any) string {
	if args == nil {
		return ""
	}
	purpose, _ := args["purpose"].(string)
	return purpose
}

func titleCase(toolName string) string {
	words := strings.Fields(strings.ReplaceAll(toolName, "_", " "))
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}
