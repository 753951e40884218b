package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"pocketllm/internal/catalog"
	"pocketllm/internal/chat"
	"pocketllm/internal/common/fsutil"
	"pocketllm/internal/config"
	"pocketllm/internal/download"
	"pocketllm/internal/httpapi"
	"pocketllm/internal/registry"
	"pocketllm/internal/session"
	"pocketllm/internal/store"
)

// components is the wired core shared by serve and pull.
type components struct {
	kv       *store.BadgerStore
	library  *registry.Library
	manifest *store.Manifest
	settings *store.Settings
	sessions *session.Store
	resolver *catalog.Resolver
	orch     *download.Orchestrator
}

func buildComponents(cfg config.Config, log zerolog.Logger) (*components, error) {
	lib, err := registry.New(cfg.ModelsDir)
	if err != nil {
		return nil, fmt.Errorf("models dir: %w", err)
	}
	if err := lib.EnsureDir(); err != nil {
		return nil, err
	}
	dataDir, err := fsutil.ExpandHome(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}
	kv, err := store.Open(dataDir, log)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	manifest := store.NewManifest(kv, log)
	orch := download.New(download.Config{
		Client:   download.NewHTTPTransferClient(),
		Manifest: manifest,
		Library:  lib,
		Logger:   log,
	})
	orch.SetAvailable(catalog.Fallback())
	return &components{
		kv:       kv,
		library:  lib,
		manifest: manifest,
		settings: store.NewSettings(kv, log),
		sessions: session.NewStore(kv, log),
		resolver: catalog.NewResolver(cfg.Catalog.BaseURL, log),
		orch:     orch,
	}, nil
}

func buildServeCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Short:   "Run the HTTP service",
		Example: "  pocketllm serve --addr :8080",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			return runServe(cfg, newLogger(opts.logLevel))
		},
	}
}

func runServe(cfg config.Config, log zerolog.Logger) error {
	core, err := buildComponents(cfg, log)
	if err != nil {
		return err
	}
	defer core.kv.Close()

	mgr := chat.NewManager(chat.NewEngine(), core.library, cfg.Chat, nil, log)
	defer mgr.Close()

	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	httpapi.SetLogger(log)
	httpapi.SetBaseContext(baseCtx)
	httpapi.SetCORSOptions(cfg.CORSEnabled, cfg.CORSAllowedOrigins,
		[]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		[]string{"Accept", "Content-Type", "X-Log-Level"})

	srv := httpapi.NewServer(httpapi.Deps{
		Orchestrator: core.orch,
		Chat:         mgr,
		Resolver:     core.resolver,
		Sessions:     core.sessions,
		Settings:     core.settings,
		Manifest:     core.manifest,
		Library:      core.library,
		KV:           core.kv,
		CatalogCfg:   cfg.Catalog,
	})
	httpSrv := &http.Server{Addr: cfg.Addr, Handler: httpapi.NewMux(srv)}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("models_dir", core.library.Dir()).
			Bool("inference", chat.EngineBuilt()).Msg("pocketllm listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-stop:
	}
	cancelBase()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	return nil
}
