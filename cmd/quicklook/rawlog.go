package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/spf13/cobra"

	"quicklook-go/internal/output"
)

var errLimitReached = errors.New("record limit reached")

func newRawlogCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "rawlog <file.bin>",
		Short: "Dump a raw ingest log as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			count := 0
			err := output.ReadRawLog(args[0], func(ts time.Time, payload []byte) error {
				if limit > 0 && count >= limit {
					return errLimitReached
				}
				defer func() { count++ }()

				var decoded any
				if err := cbor.Unmarshal(payload, &decoded); err != nil {
					a.log.Warn().Err(err).Int("record", count).Msg("CBOR decode error")
					return nil
				}
				pretty, err := json.MarshalIndent(map[string]any{
					"record":    count,
					"timestamp": ts.Format(time.RFC3339Nano),
					"size":      len(payload),
					"message":   output.NormalizeJSONValue(decoded),
				}, "", "  ")
				if err != nil {
					a.log.Warn().Err(err).Int("record", count).Msg("JSON encode error")
					return nil
				}
				_, err = fmt.Fprintln(out, string(pretty))
				return err
			})
			if err != nil && !errors.Is(err, errLimitReached) {
				return err
			}
			a.log.Debug().Int("records", count).Msg("raw log dumped")
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Number of records to dump (0 means all)")
	return cmd
}
