package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/seawire/vela/internal/adapter/claude"
	"github.com/seawire/vela/internal/adapter/cookie"
	"github.com/seawire/vela/internal/adapter/prompt"
	"github.com/seawire/vela/internal/config"
	"github.com/seawire/vela/internal/logger"
	"github.com/seawire/vela/internal/router"
	"github.com/seawire/vela/internal/session"
)

// Application wires the cookie pool, the upstream client and the HTTP surface
// together and owns their lifecycles.
type Application struct {
	configMu sync.RWMutex
	config   *config.Config

	server      *http.Server
	logger      *logger.StyledLogger
	registry    *router.RouteRegistry
	pool        *cookie.Pool
	sessions    *session.Manager
	rateLimiter *RateLimiter
	sizeLimiter *RequestSizeLimiter

	startedAt  time.Time
	poolCancel context.CancelFunc
	errCh      chan error
}

// New builds the application: configuration with hot reload, cookie pool,
// upstream client and session manager.
func New(log *logger.StyledLogger) (*Application, error) {
	app := &Application{
		logger:   log,
		registry: router.NewRouteRegistry(log),
		errCh:    make(chan error, 1),
	}

	cfg, err := config.Load(func() {
		// config file changed on disk; re-read and reseed what is safe to
		// swap at runtime
		if err := viper.ReadInConfig(); err != nil {
			log.Error("Failed to re-read config file", "error", err)
			return
		}
		newConfig := config.DefaultConfig()
		if err := viper.Unmarshal(newConfig); err != nil {
			log.Error("Failed to unmarshal new config", "error", err)
			return
		}
		if err := newConfig.Validate(); err != nil {
			log.Error("Reloaded config is invalid, keeping previous", "error", err)
			return
		}
		app.setConfig(newConfig)
		app.sessions.SetConfig(newConfig)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := app.pool.Seed(ctx, newConfig.Cookies); err != nil {
			log.Error("Failed to reseed cookie pool", "error", err)
			return
		}
		log.Info("Configuration reloaded")
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	app.setConfig(cfg)

	app.pool = cookie.NewPool(cfg.Cookies, log)

	client := claude.NewClient(&cfg.Upstream, log)
	transformer := prompt.NewTransformer(cfg.Settings.MaxTokens, cfg.Upstream.Timezone)
	app.sessions = session.NewManager(cfg, client, transformer, app.pool, log)

	app.rateLimiter = NewRateLimiter(cfg.Server.RateLimits, log)
	app.sizeLimiter = NewRequestSizeLimiter(cfg.Server.RequestLimits, log)

	app.server = &http.Server{
		Addr:         cfg.Server.GetAddress(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return app, nil
}

// Start launches the pool actor and the web server. It returns once the
// server is listening; fatal startup errors arrive on the error channel.
func (a *Application) Start(ctx context.Context) error {
	a.startedAt = time.Now()

	poolCtx, cancel := context.WithCancel(context.Background())
	a.poolCancel = cancel
	go a.pool.Run(poolCtx)

	go func() {
		select {
		case err := <-a.errCh:
			a.logger.Error("Server startup error", "error", err)
		case <-ctx.Done():
			return
		}
	}()

	a.startWebServer()
	a.logger.InfoWithUpstream("vela started, relaying to", a.getConfig().Upstream.Endpoint,
		"bind", a.server.Addr)
	return nil
}

// Stop shuts the web server down gracefully, then stops the pool actor and
// the rate limiter's cleanup loop.
func (a *Application) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.getConfig().Server.ShutdownTimeout)
	defer cancel()

	var firstErr error
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("Failed to shutdown HTTP server", "error", err)
		firstErr = err
	}
	if a.poolCancel != nil {
		a.poolCancel()
	}
	a.rateLimiter.Stop()
	a.logger.Info("vela stopped")
	return firstErr
}

func (a *Application) setConfig(cfg *config.Config) {
	a.configMu.Lock()
	a.config = cfg
	a.configMu.Unlock()
}

func (a *Application) getConfig() *config.Config {
	a.configMu.RLock()
	defer a.configMu.RUnlock()
	return a.config
}
