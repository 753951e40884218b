package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pocketllm/internal/catalog"
)

func buildPullCmd(opts *cliOptions) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:     "pull <model-id>...",
		Short:   "Download model artifacts into the local library",
		Example: "  pocketllm pull phi-2-q4 tinyllama-1.1b-q4",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			log := newLogger(opts.logLevel)
			core, err := buildComponents(cfg, log)
			if err != nil {
				return err
			}
			defer core.kv.Close()

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if refresh {
				if models := core.resolver.Search(ctx, catalog.SearchOptions{
					MaxSizeBytes: cfg.Catalog.MaxSizeBytes,
					MinDownloads: cfg.Catalog.MinDownloads,
					Limit:        cfg.Catalog.Limit,
				}); len(models) > 0 {
					core.orch.SetAvailable(models)
				}
			}

			downloaded, failed := core.orch.StartTransfers(ctx, args)
			for _, id := range downloaded {
				fmt.Fprintf(os.Stdout, "downloaded %s\n", id)
			}
			for _, id := range failed {
				fmt.Fprintf(os.Stderr, "failed %s\n", id)
			}
			if len(failed) > 0 {
				return fmt.Errorf("%d of %d downloads failed", len(failed), len(args))
			}
			if len(downloaded) == 0 {
				return fmt.Errorf("no matching models (try --refresh or pocketllm models)")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Refresh the catalog from the remote index before resolving ids")
	return cmd
}
