package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/iksnae/analyst-stream/internal"
	"github.com/iksnae/analyst-stream/internal/export"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	format         string
	outputDir      string
	conversationID string
	clearCache     bool
	keepDuplicates bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export conversations to file",
	Long: `Export recorded conversations to various formats (jsonl, md, yaml, json).

You can export every conversation or a single one with --id.
Use "--out -" to write to stdout instead of one file per conversation.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		exporter, err := export.NewExporter(format, cfg.NewRendererRegistry())
		if err != nil {
			return err
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		loader := newLoader(store)
		if clearCache {
			if err := newCacheManager().ClearCache(); err != nil {
				internal.LogWarn("Failed to clear cache: %v", err)
			} else {
				internal.LogInfo("Cache cleared")
			}
		}

		ctx := cmd.Context()
		var transcripts []*internal.Transcript
		var steps []internal.ProgressStep
		if conversationID != "" {
			t, err := loader.Load(ctx, conversationID)
			if err != nil {
				return fmt.Errorf("conversation not found: %s (use 'analyst-stream list' to see available conversations): %w", conversationID, err)
			}
			transcripts = []*internal.Transcript{t}
		} else {
			steps = append(steps, internal.ProgressStep{
				Message: "Replaying conversations",
				Fn: func() error {
					all, err := loader.LoadAll(ctx)
					if err != nil {
						return err
					}
					if !keepDuplicates {
						all = internal.NewDeduplicator().Deduplicate(all)
					}
					transcripts = all
					return nil
				},
			})
		}

		if outputDir == "-" {
			if err := internal.ShowProgressWithSteps(ctx, steps); err != nil {
				return err
			}
			for _, t := range transcripts {
				if err := exporter.Export(t, cmd.OutOrStdout()); err != nil {
					return err
				}
			}
			return nil
		}

		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}

		steps = append(steps, internal.ProgressStep{
			Message: "Writing " + exporter.Extension() + " files to " + outputDir,
			Fn: func() error {
				return exportFiles(exporter, transcripts, outputDir, cfg.Workers)
			},
		})
		if err := internal.ShowProgressWithSteps(ctx, steps); err != nil {
			return err
		}

		internal.PrintSuccess(fmt.Sprintf("Export complete: %d conversation(s) exported to %s", len(transcripts), outputDir))
		return nil
	},
}

// exportFiles writes one file per transcript. Failures are logged and the
// rest of the batch continues; the first failure is returned at the end.
func exportFiles(exporter export.Exporter, transcripts []*internal.Transcript, dir string, workers int) error {
	var g errgroup.Group
	g.SetLimit(max(workers, 1))

	for _, t := range transcripts {
		if t == nil {
			internal.LogWarn("Skipping nil transcript")
			continue
		}
		t := t
		g.Go(func() error {
			path := filepath.Join(dir, fmt.Sprintf("conversation_%s.%s", t.ID, exporter.Extension()))
			if err := exportFile(exporter, t, path); err != nil {
				internal.LogError("Failed to export conversation %s: %v", t.ID, err)
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

func exportFile(exporter export.Exporter, t *internal.Transcript, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return &internal.ExportError{Format: exporter.Extension(), Path: path, Err: err}
	}
	if err := exporter.Export(t, file); err != nil {
		_ = file.Close()
		return &internal.ExportError{Format: exporter.Extension(), Path: path, Err: err}
	}
	return file.Close()
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&format, "format", "f", "jsonl", "Export format (jsonl, md, yaml, json)")
	exportCmd.Flags().StringVarP(&outputDir, "out", "o", "./exports", "Output directory, or - for stdout")
	exportCmd.Flags().StringVar(&conversationID, "id", "", "Export a single conversation by id or prefix")
	exportCmd.Flags().BoolVar(&clearCache, "clear-cache", false, "Clear the cache before running")
	exportCmd.Flags().BoolVar(&keepDuplicates, "keep-duplicates", false, "Export conversations recorded more than once")
}
