package app

import (
	"errors"
	"net/http"
	"time"

	"github.com/seawire/vela/internal/router"
)

const (
	ContentTypeJSON        = "application/json"
	ContentTypeEventStream = "text/event-stream"
	ContentTypeHeader      = "Content-Type"
)

func (a *Application) startWebServer() {
	cfg := a.getConfig()
	a.logger.Info("Starting WebServer...", "host", cfg.Server.Host, "port", cfg.Server.Port)

	mux := http.NewServeMux()
	a.registerRoutes()

	relayChain := []router.Middleware{
		a.loggingMiddleware(),
		a.sizeLimiter.Middleware,
		a.rateLimiter.Middleware(false),
	}
	plainChain := []router.Middleware{
		a.loggingMiddleware(),
		a.rateLimiter.Middleware(true),
	}
	a.registry.WireUp(mux, relayChain, plainChain)

	a.server.Handler = mux
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("HTTP server error", "error", err)
			a.errCh <- err
		}
	}()
	a.logger.Info("Started WebServer", "bind", a.server.Addr)
}

func (a *Application) registerRoutes() {
	a.registry.RegisterRelayRoute("/v1/messages", a.messagesHandler, "Anthropic Messages relay", "POST")
	a.registry.RegisterRelayRoute("/v1/chat/completions", a.completionsHandler, "OpenAI chat completions relay", "POST")
	a.registry.RegisterWithMethod("/internal/health", a.healthHandler, "Health check endpoint", "GET")
	a.registry.RegisterWithMethod("/internal/status", a.statusHandler, "Cookie pool status", "GET")
}

// streaming responses must not sit in the server's write-deadline window; the
// timeout applies per-write via the response controller instead
func extendWriteDeadline(w http.ResponseWriter, d time.Duration) {
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Now().Add(d))
}
