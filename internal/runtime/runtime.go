// Package runtime wires configuration, telemetry, the session engine, the
// journal and the control bus into the phonex daemon.
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/phonex/internal/bus"
	"github.com/loqalabs/phonex/internal/config"
	"github.com/loqalabs/phonex/internal/control"
	"github.com/loqalabs/phonex/internal/journal"
	"github.com/loqalabs/phonex/internal/natsserver"
	"github.com/loqalabs/phonex/internal/session"
)

const shutdownTimeout = 10 * time.Second

type Runtime struct {
	cfg        config.Config
	logger     *slog.Logger
	httpServer *http.Server
	engine     *session.Engine
	journal    *journal.Journal
	sessionID  string
	nats       *natsserver.EmbeddedServer
	bus        *bus.Client
	control    atomic.Pointer[control.Service]
	ready      atomic.Bool
	wg         sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start runs the daemon until ctx is cancelled.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tel, err := setupTelemetry(ctx, r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slogError(err))
		}
	}()

	if err := r.startSession(ctx); err != nil {
		return err
	}
	defer r.stopSession()

	if r.cfg.Bus.Enabled {
		if err := r.startBus(ctx); err != nil {
			return err
		}
		defer r.stopBus()
	}

	if r.cfg.HTTP.Enabled {
		addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
		r.httpServer = &http.Server{
			Addr:              addr,
			Handler:           r.routes(tel.metrics),
			ReadHeaderTimeout: 5 * time.Second,
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				r.logger.Error("http server failed", slogError(err))
			}
		}()
		r.logger.Info("http listening", slog.String("addr", addr))
	}

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("session", r.cfg.SessionName), slog.String("session_id", r.sessionID))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	if r.httpServer != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()
		if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("http shutdown error", slogError(err))
		}
	}
	r.wg.Wait()
	return nil
}

func (r *Runtime) startSession(ctx context.Context) error {
	comps, err := Assemble(r.cfg, r.logger)
	if err != nil {
		return err
	}
	jr, err := journal.Open(ctx, r.cfg.Journal, r.logger.With(slog.String("component", "journal")))
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	sessionID, err := jr.StartSession(ctx, r.cfg.SessionName)
	if err != nil {
		_ = jr.Close()
		return err
	}

	opts := comps.EngineOptions(r.cfg, r.logger)
	opts.Recorder = jr.Recorder(sessionID)
	opts.OnChange = r.publish
	engine, err := session.New(opts)
	if err != nil {
		_ = jr.Close()
		return fmt.Errorf("create session: %w", err)
	}
	r.journal = jr
	r.sessionID = sessionID
	r.engine = engine
	return nil
}

func (r *Runtime) stopSession() {
	r.engine.Close()
	if err := r.journal.Close(); err != nil {
		r.logger.Warn("journal close error", slogError(err))
	}
}

func (r *Runtime) startBus(ctx context.Context) error {
	busCfg := r.cfg.Bus
	srv, err := natsserver.Start(busCfg, r.logger.With(slog.String("component", "nats")))
	if err != nil {
		return err
	}
	r.nats = srv
	if srv != nil {
		busCfg.Servers = []string{srv.ClientURL()}
	}

	client, err := bus.Connect(ctx, busCfg, "phonex-"+r.cfg.SessionName, r.logger.With(slog.String("component", "bus")))
	if err != nil {
		r.nats.Shutdown()
		return err
	}
	r.bus = client

	timeout := time.Duration(r.cfg.Synth.TimeoutMS) * time.Millisecond
	svc := control.NewService(ctx, client, r.engine, busCfg.SubjectPrefix, r.sessionID, timeout, r.logger)
	if err := svc.Start(); err != nil {
		client.Close()
		r.nats.Shutdown()
		return err
	}
	r.control.Store(svc)
	return nil
}

func (r *Runtime) stopBus() {
	if svc := r.control.Swap(nil); svc != nil {
		svc.Close()
	}
	r.bus.Close()
	r.nats.Shutdown()
}

func (r *Runtime) publish(snap session.Snapshot) {
	if svc := r.control.Load(); svc != nil {
		svc.Publish(snap)
	}
}

func (r *Runtime) routes(metrics http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	mux.HandleFunc("/state", r.handleState)
	mux.HandleFunc("/journal", r.handleJournal)
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}
	return mux
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	ready := r.ready.Load()
	if r.cfg.Bus.Enabled {
		svc := r.control.Load()
		ready = ready && svc != nil && svc.Healthy()
	}
	if ready {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func (r *Runtime) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, r.logger, control.Status(r.sessionID, r.engine.Snapshot()))
}

func (r *Runtime) handleJournal(w http.ResponseWriter, req *http.Request) {
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	entries, err := r.journal.List(req.Context(), r.sessionID, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	type entry struct {
		Operation string    `json:"operation"`
		From      string    `json:"from"`
		To        string    `json:"to"`
		Specs     int       `json:"specs"`
		Samples   int       `json:"samples"`
		Voice     string    `json:"voice"`
		Error     string    `json:"error,omitempty"`
		At        time.Time `json:"at"`
	}
	out := make([]entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, entry{e.Operation, e.From, e.To, e.Specs, e.Samples, e.Voice, e.Error, e.CreatedAt})
	}
	writeJSON(w, r.logger, out)
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to write response", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
