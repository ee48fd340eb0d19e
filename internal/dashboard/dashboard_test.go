package dashboard

import (
	"errors"
	"strings"
	"testing"

	"github.com/golgue/golgue/internal/embeds"
)

func renderOK(t *testing.T, result any) string {
	t.Helper()
	m, ok := result.(map[string]any)
	if !ok {
		t.Fatalf("expected token map, got %v", result)
	}
	if m["message"] != "Chart rendered." {
		t.Fatalf("message = %v", m["message"])
	}
	token, _ := m[embeds.TokenKey].(string)
	doc, found := embeds.Take(token)
	if !found {
		t.Fatalf("token %q not stored", token)
	}
	return doc
}

func TestRenderBasicChart(t *testing.T) {
	result := Render(nil, "", `chart = {mark: "bar", width: 200, height: 100};`)
	doc := renderOK(t, result)
	if !strings.Contains(doc, "chart-embed") {
		t.Fatalf("expected iframe wrapper: %q", doc)
	}
	if !strings.Contains(doc, "width:240px") || !strings.Contains(doc, "height:140px") {
		t.Fatalf("expected sized iframe: %q", doc)
	}
	if !strings.Contains(doc, "vega-embed") {
		t.Fatalf("expected vega scripts in srcdoc: %q", doc)
	}
}

func TestRenderBindsQueryRows(t *testing.T) {
	queryFn := func(query string) ([]map[string]any, error) {
		if query != "SELECT 1" {
			t.Fatalf("query = %q", query)
		}
		return []map[string]any{{"n": 1}}, nil
	}
	result := Render(queryFn, "SELECT 1", `chart = {mark: "line", count: rows.length};`)
	doc := renderOK(t, result)
	// Rows without an explicit data key are injected as inline values.
	if !strings.Contains(doc, "values") {
		t.Fatalf("expected inline data values: %q", doc)
	}
	if !strings.Contains(doc, "count") {
		t.Fatalf("code must see the rows binding: %q", doc)
	}
}

func TestRenderQueryError(t *testing.T) {
	queryFn := func(string) ([]map[string]any, error) {
		return nil, errors.New("table missing")
	}
	result := Render(queryFn, "SELECT x", `chart = {};`)
	str, ok := result.(string)
	if !ok || !strings.Contains(str, "table missing") {
		t.Fatalf("result = %v", result)
	}
}

func TestRenderCodeError(t *testing.T) {
	result := Render(nil, "", `throw new Error("bad plot");`)
	str, ok := result.(string)
	if !ok || !strings.Contains(str, "Error executing chart code") {
		t.Fatalf("result = %v", result)
	}
}

func TestRenderMissingChartVariable(t *testing.T) {
	result := Render(nil, "", `var other = 1;`)
	str, ok := result.(string)
	if !ok || !strings.Contains(str, "chart variable") {
		t.Fatalf("result = %v", result)
	}
}

func TestRenderWrongChartType(t *testing.T) {
	result := Render(nil, "", `chart = "not a spec";`)
	str, ok := result.(string)
	if !ok || !strings.Contains(str, "not a spec object") {
		t.Fatalf("result = %v", result)
	}
}

func TestRenderEmptyCode(t *testing.T) {
	result := Render(nil, "", "   ")
	if _, ok := result.(string); !ok {
		t.Fatalf("result = %v", result)
	}
}

func TestChartSizeFallbacks(t *testing.T) {
	w, h := chartSize(map[string]any{})
	if w != defaultWidth || h != defaultHeight {
		t.Fatalf("defaults = %d x %d", w, h)
	}
	w, h = chartSize(map[string]any{
		"config": map[string]any{"view": map[string]any{
			"continuousWidth": float64(400), "continuousHeight": float64(250),
		}},
	})
	if w != 400 || h != 250 {
		t.Fatalf("view config = %d x %d", w, h)
	}
	w, h = chartSize(map[string]any{"width": int64(120), "height": float64(80)})
	if w != 120 || h != 80 {
		t.Fatalf("explicit = %d x %d", w, h)
	}
}
