package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	authadapter "github.com/bnema/terms-cli/internal/adapters/auth"
	pebblecache "github.com/bnema/terms-cli/internal/adapters/cache/pebble"
	"github.com/bnema/terms-cli/internal/adapters/config"
	"github.com/bnema/terms-cli/internal/adapters/graph"
	"github.com/bnema/terms-cli/internal/adapters/logging"
	"github.com/bnema/terms-cli/internal/adapters/metrics"
	chainstore "github.com/bnema/terms-cli/internal/adapters/secrets/chain"
	"github.com/bnema/terms-cli/internal/application"
	"github.com/bnema/terms-cli/internal/ports"
)

const keyringService = "terms"

// app holds what every command needs before it runs. Services that touch
// the network, the secret store or the cache are built per command by open.
type app struct {
	loader *config.Loader
	cfg    config.Config
	clock  ports.Clock
	// httpClient is shared by the token and Graph clients.
	httpClient *http.Client
}

// services is the fully wired client for one command invocation.
type services struct {
	cfg         config.Config
	logger      *slog.Logger
	events      *application.EventBus
	metrics     *metrics.Prometheus
	credentials *application.CredentialManager
	model       *application.Model
	cursors     *application.CursorStore
	engine      *application.SyncEngine
	mutations   *application.MutationQueue
	cache       ports.SnapshotCache
	closers     []io.Closer
}

func wireApp() (*app, error) {
	dir := os.Getenv("TERMS_CONFIG_DIR")
	if dir == "" {
		var err error
		dir, err = config.DefaultDir()
		if err != nil {
			return nil, err
		}
	}

	loader := config.NewLoader(dir)
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return &app{
		loader:     loader,
		cfg:        cfg,
		clock:      ports.SystemClock{},
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// open wires the client stack. The caller must Close the result; closing
// wipes every credential held in memory.
func (a *app) open(ctx context.Context, logOutput io.Writer) (*services, error) {
	if err := a.cfg.Validate(); err != nil {
		if errors.Is(err, config.ErrMissingClientID) {
			return nil, fmt.Errorf("%w: set client_id in %s", err, a.loader.Path())
		}
		return nil, fmt.Errorf("validate config: %w", err)
	}

	logger, logCloser, err := logging.New(logging.Options{
		Level:    a.cfg.Log.Level,
		Format:   a.cfg.Log.Format,
		File:     a.cfg.Log.File,
		Fallback: logOutput,
	})
	if err != nil {
		return nil, fmt.Errorf("wire logger: %w", err)
	}

	svc := &services{
		cfg:     a.cfg,
		logger:  logger,
		events:  application.NewEventBus(a.clock),
		metrics: metrics.New(),
		model:   application.NewModel(),
		cursors: application.NewCursorStore(),
		closers: []io.Closer{logCloser},
	}

	store, err := a.secretStore(svc)
	if err != nil {
		_ = svc.Close()
		return nil, err
	}

	tokens := authadapter.Client{
		API:            authadapter.NewAPI(a.cfg.Authority, a.cfg.TenantID),
		ClientID:       a.cfg.ClientID,
		Scopes:         authadapter.DefaultScopes,
		HTTPClient:     a.httpClient,
		RequestTimeout: 30 * time.Second,
	}
	svc.credentials = application.NewCredentialManager(tokens, store, application.CredentialOptions{
		RefreshMargin: a.cfg.Auth.RefreshMargin,
		FlowTimeout:   a.cfg.Auth.Timeout,
		Callback:      authadapter.Loopback{ListenAddr: a.cfg.Auth.Listen},
		Challenges:    authadapter.Challenges{},
		Events:        svc.events,
		Clock:         a.clock,
		Logger:        logger.With("component", "credentials"),
		Metrics:       svc.metrics,
	})

	if a.cfg.Cache.Enabled {
		cache, err := pebblecache.Open(a.cfg.Cache.Path)
		if err != nil {
			_ = svc.Close()
			return nil, fmt.Errorf("wire snapshot cache: %w", err)
		}
		svc.cache = cache
	}

	gateway := graph.NewClient(graph.Options{
		BaseURL:    a.cfg.GraphURL,
		HTTPClient: a.httpClient,
		Clock:      a.clock,
	})
	svc.engine = application.NewSyncEngine(gateway, svc.credentials, svc.model, svc.cursors, application.SyncOptions{
		Interval:     a.cfg.Sync.Interval,
		RecentWindow: a.cfg.Sync.RecentWindow,
		MaxRetries:   a.cfg.Sync.MaxRetries,
		Concurrency:  a.cfg.Sync.Concurrency,
		Cache:        svc.cache,
		Events:       svc.events,
		Clock:        a.clock,
		Logger:       logger.With("component", "sync"),
		Metrics:      svc.metrics,
	})
	svc.mutations = application.NewMutationQueue(gateway, svc.credentials, svc.model, application.MutationOptions{
		MaxRetries: a.cfg.Mutations.MaxRetries,
		Events:     svc.events,
		Clock:      a.clock,
		Logger:     logger.With("component", "mutations"),
		Metrics:    svc.metrics,
	})

	if err := svc.credentials.Restore(ctx); err != nil {
		_ = svc.Close()
		return nil, err
	}
	if svc.cache != nil {
		restored, err := svc.engine.LoadCache(ctx)
		if err != nil {
			logger.Warn("load snapshot cache", "err", err)
		} else {
			logger.Debug("loaded snapshot cache", "conversations", restored)
		}
	}

	return svc, nil
}

// secretStore wires the configured OS store in front of the file fallback.
// Fallback use is reported through the credential manager, which is built
// after the store.
func (a *app) secretStore(svc *services) (ports.SecretStore, error) {
	notify := chainstore.WithFallbackNotifier(func(op string, primaryErr error) {
		if svc.credentials != nil {
			svc.credentials.StorageFallback(op, primaryErr)
		}
	})

	var (
		store *chainstore.Store
		err   error
	)
	switch a.cfg.Secrets.Backend {
	case "pass":
		store, err = chainstore.NewPassFirstWithFileFallback(a.cfg.Secrets.FileDir, notify)
	default:
		store, err = chainstore.NewKeyringFirstWithFileFallback(keyringService, a.cfg.Secrets.FileDir, notify)
	}
	if err != nil {
		return nil, fmt.Errorf("wire secret store chain: %w", err)
	}
	return store, nil
}

// Close stops queued work and wipes credentials. Mutations still queued are
// rolled back.
func (s *services) Close() error {
	if s.mutations != nil {
		s.mutations.Close()
	}
	if s.credentials != nil {
		s.credentials.Close()
	}

	var errs []error
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close snapshot cache: %w", err))
		}
	}
	s.events.Close()
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
