// Package dashboard executes agent-supplied charting code and turns the
// result into an embeddable HTML fragment. The code runs in a JavaScript VM
// with the query results bound to `rows` and must assign a Vega-Lite spec
// object to a variable named `chart`. The rendered document is stored in the
// embed cache; callers get back a single-use token reference.
//
// The VM restricts what the code can reach to the bindings installed here,
// but this is not a hardened sandbox: the code is arbitrary model output and
// runs in-process.
package dashboard

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/golgue/golgue/internal/embeds"
)

// QueryFunc runs a data query and returns flat records.
type QueryFunc func(query string) ([]map[string]any, error)

const (
	execTimeout   = 5 * time.Second
	defaultWidth  = 300
	defaultHeight = 300
)

// Render executes charting code against optional query results and returns
// either a map carrying an embed token reference or a descriptive error
// string. It never returns an error value and never panics: it runs inside an
// agent tool-call boundary where an escaped failure would abort the whole
// response stream.
func Render(queryFn QueryFunc, query, code string) (result any) {
	defer func() {
		if r := recover(); r != nil {
			result = fmt.Sprintf("Error executing chart code: %v", r)
		}
	}()

	if strings.TrimSpace(code) == "" {
		return "Error executing chart code: no code supplied"
	}

	var rows []map[string]any
	if queryFn != nil && strings.TrimSpace(query) != "" {
		var err error
		rows, err = queryFn(query)
		if err != nil {
			return fmt.Sprintf("Error running chart query: %v", err)
		}
	}

	spec, err := executeChartCode(code, rows)
	if err != nil {
		return fmt.Sprintf("Error executing chart code: %v", err)
	}

	if _, ok := spec["data"]; !ok && rows != nil {
		spec["data"] = map[string]any{"values": rows}
	}

	doc, err := chartDocument(spec)
	if err != nil {
		return fmt.Sprintf("Error serializing chart: %v", err)
	}

	return map[string]any{
		embeds.TokenKey: embeds.Store(doc),
		"message":       "Chart rendered.",
	}
}

// executeChartCode runs the code in a fresh VM and extracts the `chart`
// variable as a spec object. A watchdog interrupts runaway scripts.
func executeChartCode(code string, rows []map[string]any) (map[string]any, error) {
	vm := goja.New()
	if rows == nil {
		rows = []map[string]any{}
	}
	if err := vm.Set("rows", rows); err != nil {
		return nil, err
	}

	timer := time.AfterFunc(execTimeout, func() {
		vm.Interrupt("chart code timed out")
	})
	defer timer.Stop()

	if _, err := vm.RunString(code); err != nil {
		return nil, err
	}

	chartValue := vm.GlobalObject().Get("chart")
	if chartValue == nil || goja.IsUndefined(chartValue) || goja.IsNull(chartValue) {
		return nil, fmt.Errorf("code did not assign a chart variable")
	}
	spec, ok := chartValue.Export().(map[string]any)
	if !ok {
		return nil, fmt.Errorf("chart variable is not a spec object")
	}
	return spec, nil
}

// chartDocument builds the standalone HTML document embedded via iframe
// srcdoc. A polling script grows the iframe to the rendered chart's intrinsic
// size so the embed never clips or guesses fixed dimensions.
func chartDocument(spec map[string]any) (string, error) {
	specJSON, err := json.Marshal(spec)
	if err != nil {
		return "", err
	}

	width, height := chartSize(spec)
	inner := fmt.Sprintf(chartDocTemplate, string(specJSON))
	return fmt.Sprintf(
		`<iframe class="chart-embed" style="width:%dpx;height:%dpx;border:none;overflow:hidden;" srcdoc="%s"></iframe>`,
		width+40, height+40, html.EscapeString(inner),
	), nil
}

// chartSize reads explicit dimensions from the spec, falling back to the
// config.view continuous defaults, then to fixed defaults.
func chartSize(spec map[string]any) (int, int) {
	width := specDimension(spec, "width", "continuousWidth", defaultWidth)
	height := specDimension(spec, "height", "continuousHeight", defaultHeight)
	return width, height
}

func specDimension(spec map[string]any, key, viewKey string, fallback int) int {
	if n, ok := asInt(spec[key]); ok {
		return n
	}
	if config, ok := spec["config"].(map[string]any); ok {
		if view, ok := config["view"].(map[string]any); ok {
			if n, ok := asInt(view[viewKey]); ok {
				return n
			}
		}
	}
	return fallback
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

const chartDocTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<script src="https://cdn.jsdelivr.net/npm/vega@5"></script>
<script src="https://cdn.jsdelivr.net/npm/vega-lite@5"></script>
<script src="https://cdn.jsdelivr.net/npm/vega-embed@6"></script>
<style>
  html, body { margin: 0; padding: 8px; background: transparent; }
  #chart { width: 100%%; }
</style>
</head>
<body>
<div id="chart"></div>
<script>
  var spec = %s;
  vegaEmbed("#chart", spec, {actions: false}).then(function () {
    var frame = window.frameElement;
    if (!frame) { return; }
    var settled = 0;
    function fit() {
      var w = document.documentElement.scrollWidth;
      var h = document.documentElement.scrollHeight;
      if (frame.style.height !== h + "px" || frame.style.width !== w + "px") {
        frame.style.width = w + "px";
        frame.style.height = h + "px";
        settled = 0;
      } else {
        settled++;
      }
      if (settled < 30) { requestAnimationFrame(fit); }
    }
    requestAnimationFrame(fit);
  });
</script>
</body>
</html>`
