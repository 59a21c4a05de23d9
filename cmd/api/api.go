package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/farxc/rcs-reporting/internal/logger"
	"github.com/farxc/rcs-reporting/internal/push"
	"github.com/farxc/rcs-reporting/internal/report"
	"github.com/farxc/rcs-reporting/internal/scheduler"
	"github.com/farxc/rcs-reporting/internal/store"
)

const component = "API"

type application struct {
	config   config
	store    store.Storage
	reports  *report.Repository
	pusher   *push.Pusher
	autoExec *scheduler.AutoExecutor
	logger   *logger.Logger
}

type config struct {
	addr        string
	logLevel    string
	corsOrigins []string
	db          dbConfig
	docstore    docstoreConfig
	push        pushConfig
	autoExec    autoExecConfig
	credentials string
}

type dbConfig struct {
	driver       string
	addr         string
	maxOpenConns int
	maxIdleConns int
	maxIdleTime  string
	autoMigrate  bool
}

type docstoreConfig struct {
	uri      string
	database string
}

type pushConfig struct {
	apiKey         string
	depositLoanURL string
	jewelURL       string
	upstreamKey    string
	timeout        time.Duration
	rps            float64
	dryRun         bool
	chunkSize      int
}

type autoExecConfig struct {
	queryID     string
	submitterID string
	cron        string
}

func (app *application) mount() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: app.config.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Api-Key"},
		MaxAge:         300,
	}))

	// Pushing a large batch upstream can take a while; everything else is
	// bounded tighter below.
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Post("/save-report", app.handleSaveReport)
		r.Post("/get-report", app.handleGetReport)
		r.Get("/last-submitted-data", app.handleLastSubmitted)
		r.Get("/clients/auto-execute", app.handleAutoExecute)
	})

	r.Route("/push", func(r chi.Router) {
		r.Use(app.requireAPIKey)
		r.Post("/rcs", app.handlePushRCS)
		r.Post("/local", app.handlePushLocal)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", app.healthCheckHandler)
	})

	return r
}

func (app *application) run(ctx context.Context, mux http.Handler) error {
	srv := &http.Server{
		Addr:         app.config.addr,
		Handler:      mux,
		WriteTimeout: 6 * time.Minute,
		ReadTimeout:  40 * time.Second,
		IdleTimeout:  time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info(component, "Server started on %s", app.config.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	app.logger.Info(component, "Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
