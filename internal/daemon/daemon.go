package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/forgeworks/forge/internal/api"
	"github.com/forgeworks/forge/internal/app/forge"
	"github.com/forgeworks/forge/internal/app/gateway"
	"github.com/forgeworks/forge/internal/app/perkdb"
	"github.com/forgeworks/forge/internal/app/reconcile"
	"github.com/forgeworks/forge/internal/app/session"
	"github.com/forgeworks/forge/internal/domain"
	"github.com/forgeworks/forge/internal/infra/gemini"
	"github.com/forgeworks/forge/internal/infra/observability"
	"github.com/forgeworks/forge/internal/infra/remote"
	"github.com/forgeworks/forge/internal/infra/sqlite"
)

// Daemon is the wired service.
type Daemon struct {
	Config  Config
	DB      *sqlite.DB
	Journal *observability.Journal
	Catalog *perkdb.Database
	Session *session.Session

	syncer *remote.Syncer
	gen    *gemini.Generator
}

// SessionConfig maps the file config onto the session's components.
func (c Config) SessionConfig() session.Config {
	return session.Config{
		Forge: forge.Config{
			Enabled:       c.Forge.Enabled,
			CPPerResponse: c.Forge.CPPerResponse,
			Threshold:     c.Forge.Threshold,
			BankMax:       c.Forge.BankMax,
			Debug:         c.Forge.Debug,
		},
		Reconcile: reconcile.Config{
			Enabled:             c.Forge.Enabled,
			AutoParseCheckpoint: c.Forge.AutoParseCheckpoint,
			Debug:               c.Forge.Debug,
		},
		CharacterName: c.Forge.CharacterName,
	}
}

// New opens storage, connects the optional remote and generator, and opens
// conversation.
func New(ctx context.Context, cfg Config, conversation string) (*Daemon, error) {
	db, err := sqlite.Open(cfg.Storage.Dir)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	d := &Daemon{Config: cfg, DB: db}
	d.Journal = observability.NewJournal(observability.DefaultJournalConfig(), nil)

	var (
		gwOpts []gateway.Option
		dbOpts = []perkdb.Option{perkdb.WithNotifier(d.Journal)}
	)

	if cfg.Remote.Enabled {
		store, err := remote.NewSupabaseStore(cfg.Remote.SupabaseURL, cfg.Remote.SupabaseKey, cfg.Remote.Table)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("connect remote: %w", err)
		}
		timeout := parseDuration(cfg.Remote.Timeout, gateway.DefaultRemoteTimeout)
		scfg := remote.DefaultSyncerConfig()
		scfg.Timeout = timeout
		scfg.MaxRetries = cfg.Remote.MaxRetries
		d.syncer = remote.NewSyncer(store, scfg, d.Journal)
		d.syncer.Start()
		gwOpts = append(gwOpts, gateway.WithRemote(store, d.syncer, timeout))
		dbOpts = append(dbOpts, perkdb.WithPublisher(d.syncer))
		log.Printf("[daemon] remote mirror enabled (table %s)", cfg.Remote.Table)
	}

	if cfg.Generation.Enabled {
		gen, err := gemini.New(ctx, cfg.Generation.APIKey, cfg.Generation.Model)
		switch {
		case errors.Is(err, domain.ErrNoGenerator):
			log.Printf("[daemon] generation enabled but no api_key set; guides must be written by hand")
		case err != nil:
			d.Close()
			return nil, err
		default:
			d.gen = gen
			dbOpts = append(dbOpts, perkdb.WithGenerator(gen, parseDuration(cfg.Generation.Timeout, perkdb.DefaultGuideTimeout)))
		}
	}

	d.Catalog, err = perkdb.Open(db, dbOpts...)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("open perk database: %w", err)
	}

	gw := gateway.New(db, gwOpts...)
	d.Session, err = session.New(ctx, cfg.SessionConfig(), session.Deps{
		KV:       db,
		Marks:    db,
		Gateway:  gw,
		Catalog:  d.Catalog,
		Notifier: d.Journal,
	}, conversation)
	if err != nil {
		d.Close()
		return nil, err
	}

	if cfg.Remote.Enabled {
		if ok, err := d.Session.SyncCatalog(ctx); err != nil {
			log.Printf("[daemon] catalog pull failed: %v", err)
		} else if ok {
			log.Printf("[daemon] adopted remote perk database")
		}
	}
	return d, nil
}

// Handler returns the HTTP handler for the configured API.
func (d *Daemon) Handler() http.Handler {
	srv := api.NewServer(d.Session, d.Journal)
	if d.Config.API.Metrics {
		srv.EnableMetrics()
	}
	return srv.Handler()
}

// Serve listens until ctx is cancelled, then shuts down gracefully.
func (d *Daemon) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              d.Config.Addr(),
		Handler:           d.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("[daemon] listening on http://%s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// Close waits for background guide requests, flushes pending remote writes
// and closes storage.
func (d *Daemon) Close() error {
	if d.Catalog != nil {
		d.Catalog.Wait()
	}
	if d.syncer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := d.syncer.Flush(ctx); err != nil {
			log.Printf("[daemon] %d remote writes not flushed: %v", d.syncer.Pending(), err)
		}
		cancel()
		d.syncer.Close()
	}
	if d.gen != nil {
		d.gen.Close()
	}
	return d.DB.Close()
}
