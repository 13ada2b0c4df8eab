package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/armon/go-metrics"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	tmdb "github.com/tendermint/tm-db"

	"github.com/GPTx-global/gora/oracle/config"
	"github.com/GPTx-global/gora/oracle/log"
	"github.com/GPTx-global/gora/oracle/worker"
)

// Daemon serves the request tooling over a local HTTP API.
type Daemon struct {
	cfg      *config.Config
	db       tmdb.DB
	sink     *metrics.InmemSink
	pool     *worker.Pool
	previews *previewStore
	health   *HealthChecker
	router   *mux.Router
	started  time.Time
}

// OpenDB opens the daemon database configured in cfg.
func OpenDB(cfg *config.Config) (tmdb.DB, error) {
	db, err := tmdb.NewDB("gorad", tmdb.BackendType(cfg.Daemon.DBBackend), cfg.DBDir())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Daemon.DBBackend, err)
	}
	return db, nil
}

// New wires the API. The sink, when set, is served at /metrics.
func New(cfg *config.Config, db tmdb.DB, sink *metrics.InmemSink) *Daemon {
	d := &Daemon{
		cfg:      cfg,
		db:       db,
		sink:     sink,
		pool:     worker.NewPool(worker.NewExecutor(cfg.PreviewTimeout(), cfg.Preview.UserAgent), cfg.Preview.Workers),
		previews: &previewStore{db: db},
		health:   NewHealthChecker(),
		started:  time.Now(),
	}

	d.health.AddCheck(CheckFunc{CheckName: "db", Fn: func(context.Context) error {
		_, err := db.Has(keyPreviewCount)
		return err
	}})
	d.health.AddCheck(CheckFunc{CheckName: "params", Fn: func(context.Context) error {
		_, err := cfg.Params()
		return err
	}})

	d.router = d.registerRoutes()
	return d
}

// Handler returns the router behind the CORS policy.
func (d *Daemon) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: d.cfg.Daemon.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(d.router)
}

// Serve runs the API on ln until ctx is done.
func (d *Daemon) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           d.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	log.Infof("daemon listening on %s", ln.Addr())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	log.Infof("daemon stopped")
	return nil
}

// Start listens on the configured address.
func (d *Daemon) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", d.cfg.Daemon.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", d.cfg.Daemon.ListenAddr, err)
	}
	return d.Serve(ctx, ln)
}

func (d *Daemon) Close() error {
	return d.db.Close()
}
