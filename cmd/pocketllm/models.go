package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"pocketllm/internal/catalog"
	"pocketllm/internal/download"
)

func buildModelsCmd(opts *cliOptions) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:     "models",
		Short:   "List catalog models and their local state",
		Example: "  pocketllm models\n  pocketllm models --refresh",
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

			ctx := context.Background()
			models := catalog.Fallback()
			if refresh {
				models = core.resolver.Search(ctx, catalog.SearchOptions{
					MaxSizeBytes: cfg.Catalog.MaxSizeBytes,
					MinDownloads: cfg.Catalog.MinDownloads,
					Limit:        cfg.Catalog.Limit,
				})
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSIZE\tCONTEXT\tSTATE")
			for _, mdl := range models {
				state := "available"
				if core.manifest.Contains(ctx, mdl.ID) {
					state = "downloaded"
				} else if core.library.Exists(mdl.Filename) {
					state = "on disk"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
					mdl.ID, mdl.Name, download.FormatFileSize(mdl.Size), mdl.ContextSize, state)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Query the remote index instead of the builtin catalog")
	return cmd
}
