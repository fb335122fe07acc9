package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"quicklook-go/internal/ingest"
	"quicklook-go/internal/processing"
)

func newInspectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <path>...",
		Short: "Summarize exposure, result and stream message CBOR files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			counts := map[string]int{}
			for _, arg := range args {
				files, err := listFiles(arg)
				if err != nil {
					return err
				}
				for _, file := range files {
					summary, err := inspectFile(file)
					if err != nil {
						a.log.Warn().Err(err).Str("path", file).Msg("inspect failed")
						counts["invalid"]++
						continue
					}
					counts[summary["type"].(string)]++
					if err := enc.Encode(summary); err != nil {
						return err
					}
				}
			}
			a.log.Info().Interface("counts", counts).Msg("inspect summary")
			return nil
		},
	}
}

func inspectFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	kind, err := ingest.DocumentType(data)
	if err != nil {
		return nil, err
	}
	summary := map[string]any{"path": path, "type": kind, "bytes": len(data)}

	switch kind {
	case ingest.DocumentExposure:
		raw, err := ingest.DecodeExposure(data)
		if err != nil {
			return nil, err
		}
		summary["exposure_id"] = raw.ExposureID
		summary["shape"] = raw.Counts.Shape
		summary["dtype"] = fmt.Sprintf("%T", raw.Counts.Values)
		summary["times"] = raw.Times
		if raw.ReadTime > 0 {
			summary["read_time"] = raw.ReadTime
		}
		summary["masked"] = raw.Mask != nil
		if raw.Noise != nil {
			summary["noise"] = raw.Noise
		}
		if _, err := processing.BuildExposure(raw); err != nil {
			summary["error"] = err.Error()
		}
	case ingest.DocumentResult:
		res, err := ingest.DecodeResult(data)
		if err != nil {
			return nil, err
		}
		summary["exposure_id"] = res.ExposureID
		summary["shape"] = []int{res.Rows, res.Cols}
		summary["stats"] = processing.Summarize(res)
		summary["diagnostics"] = res.Excluded != nil
	default:
		msg, err := ingest.DecodeMessage(data)
		if err != nil {
			return nil, err
		}
		summary["exposure_id"] = msg.ExposureID
		switch msg.Type {
		case ingest.MessageStart:
			summary["start"] = msg.Start
		case ingest.MessageRead:
			summary["read_index"] = msg.Read.ReadIndex
			summary["elapsed_time"] = msg.Read.Time
			summary["shape"] = msg.Read.Data.Shape
			summary["dtype"] = fmt.Sprintf("%T", msg.Read.Data.Values)
		}
	}
	return summary, nil
}

func listFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if filepath.Ext(entry.Name()) == ".cbor" {
			files = append(files, filepath.Join(path, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

