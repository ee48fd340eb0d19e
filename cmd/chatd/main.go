package main

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golgue/golgue/internal/ai"
	"github.com/golgue/golgue/internal/api"
	"github.com/golgue/golgue/internal/config"
	"github.com/golgue/golgue/internal/dashboard"
	"github.com/golgue/golgue/internal/prompt"
	"github.com/golgue/golgue/internal/query"
	"github.com/golgue/golgue/internal/session"
	"github.com/golgue/golgue/internal/state"
	"github.com/golgue/golgue/internal/stream"
	"github.com/golgue/golgue/internal/web"
)

func main() {
	cfg := config.Load()
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("create data dir: %v", err)
	}

	db, err := state.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	store := state.NewStore(db)

	dataQuery := query.SQLite(db)
	if cfg.PostgresDSN != "" {
		runner, closeFn, err := query.Postgres(context.Background(), cfg.PostgresDSN)
		if err != nil {
			log.Printf("postgres disabled: %v", err)
		} else {
			defer closeFn()
			dataQuery = runner
		}
	}

	newResponder := responderFactory(cfg, dataQuery)

	apiServer := &api.Server{
		Store:        store,
		NewResponder: newResponder,
		StartedAt:    time.Now(),
	}
	webServer := &web.Server{Dir: cfg.WebDir}

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer.Handler())
	mux.Handle("/", webServer.Handler())

	listener, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}

	serverCtx, serverCancel := context.WithCancel(context.Background())
	httpServer := &http.Server{
		Handler:           loggingMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return serverCtx
		},
	}

	go func() {
		log.Printf("chatd listening on %s", listener.Addr())
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	serverCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
	_ = httpServer.Close()
}

// responderFactory builds per-chat responders. Without LLM credentials the
// server falls back to the echo responder so the UI stays usable.
func responderFactory(cfg config.Config, dataQuery query.Runner) func() session.Responder {
	if cfg.LLMModel == "" || cfg.LLMAPIKey == "" {
		log.Printf("LLM disabled: missing model or api key, using echo responder")
		return func() session.Responder { return session.NewEchoResponder() }
	}

	runner, err := ai.NewRunner(ai.Config{
		Provider: cfg.LLMProvider,
		Model:    cfg.LLMModel,
		APIKey:   cfg.LLMAPIKey,
	}, agentTools(dataQuery)...)
	if err != nil {
		log.Printf("LLM disabled: %v, using echo responder", err)
		return func() session.Responder { return session.NewEchoResponder() }
	}

	// All chats share the one runner, so they share its prompt state too:
	// instructions appended in one chat are visible to every other.
	registry := prompt.NewRegistry()
	return func() session.Responder {
		return stream.NewResponder(runner, registry.StateFor(runner, basePrompt), cfg.ShowToolDetails)
	}
}

const basePrompt = "You are a helpful data assistant. Answer in markdown. " +
	"Use the execute_sql tool to look up data and the render_chart tool to visualize it."

// agentTools are the built-in tools exposed to the model. Every tool takes a
// required purpose string used for the progress labels shown to the user.
func agentTools(dataQuery query.Runner) []ai.Tool {
	return []ai.Tool{
		{
			Name:        "execute_sql",
			Description: "Run a read-only SQL SELECT query and return the matching rows.",
			Schema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"purpose": {"type": "string", "description": "Short user-facing label for what this query is for."},
					"query": {"type": "string", "description": "A single SELECT statement."}
				},
				"required": ["purpose", "query"]
			}`),
			Fn: func(ctx context.Context, args map[string]any) (any, error) {
				q, _ := args["query"].(string)
				rows, err := dataQuery(q)
				if err != nil {
					return nil, err
				}
				return map[string]any{"rows": rows, "count": len(rows)}, nil
			},
		},
		{
			Name:        "render_chart",
			Description: "Render a Vega-Lite chart from JavaScript code. The code sees query results as `rows` and must assign the chart spec object to a variable named `chart`.",
			Schema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"purpose": {"type": "string", "description": "Short user-facing label for what this chart shows."},
					"query": {"type": "string", "description": "Optional SELECT statement supplying the chart data."},
					"code": {"type": "string", "description": "JavaScript that assigns a Vega-Lite spec to ` + "`chart`" + `."}
				},
				"required": ["purpose", "code"]
			}`),
			Fn: func(ctx context.Context, args map[string]any) (any, error) {
				q, _ := args["query"].(string)
				code, _ := args["code"].(string)
				return dashboard.Render(dashboard.QueryFunc(dataQuery), q, code), nil
			},
		},
	}
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}
