package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"quicklook-go/internal/ingest"
	"quicklook-go/internal/watch"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		pattern string
		settle  = watch.DefaultSettle
	)
	cmd := &cobra.Command{
		Use:   "watch <dir>...",
		Short: "Fit every exposure file written to the given directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			p, err := newPipeline(a.cfg, store, a.log)
			if err != nil {
				return err
			}
			w, err := watch.New(args, pattern, settle, a.log)
			if err != nil {
				return err
			}

			errCh := make(chan error, 1)
			go func() { errCh <- w.Run(ctx) }()
			a.log.Info().Strs("dirs", args).Str("pattern", pattern).Msg("watching for exposures")

			for path := range w.Files {
				data, err := os.ReadFile(path)
				if err != nil {
					a.log.Warn().Err(err).Str("path", path).Msg("read failed")
					continue
				}
				kind, err := ingest.DocumentType(data)
				if err != nil || kind != ingest.DocumentExposure {
					a.log.Debug().Str("path", path).Str("type", kind).Msg("not an exposure, skipped")
					continue
				}
				if _, err := p.fitFile(path, "watch"); err != nil {
					a.log.Error().Err(err).Str("path", path).Msg("fit failed")
				}
			}
			return <-errCh
		},
	}
	cmd.Flags().StringVar(&pattern, "pattern", "*.cbor", "File name pattern to fit")
	cmd.Flags().DurationVar(&settle, "settle", settle, "Quiet period before a file is fitted")
	return cmd
}
