package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sarg-check/internal/extractor"
	"sarg-check/internal/model"
	"sarg-check/internal/scanner"
)

func newScanCmd(root *rootOptions) *cobra.Command {
	var (
		srcPath  string
		excludes []string
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan source files for SQL and analyze every statement found",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(srcPath); err != nil {
				return fmt.Errorf("source path does not exist: %s", srcPath)
			}
			s, err := root.open(cmd)
			if err != nil {
				return err
			}

			mgr := extractor.NewDefaultManager()
			walker := scanner.NewFileWalker(mgr.Extensions(), excludes, s.log)
			ctx := cmd.Context()
			paths, errs := walker.Walk(ctx, srcPath)

			pool := scanner.NewWorkerPool(s.cfg.Workers, func(path string) ([]model.SegmentReport, error) {
				segments, err := mgr.Extract(path)
				if err != nil {
					return nil, err
				}
				return s.auditor.Audit(segments)
			})

			s.log.Info("scanning started", "src", srcPath, "workers", s.cfg.Workers)
			var reports []model.SegmentReport
			for _, res := range scanner.Collect(pool.Start(ctx, paths)) {
				if res.Error != nil {
					s.log.Warn("failed to process file", "file", res.File, "error", res.Error)
					continue
				}
				reports = append(reports, res.Reports...)
			}
			if err := <-errs; err != nil {
				s.close()
				return fmt.Errorf("scan %s: %w", srcPath, err)
			}
			s.log.Info("scan complete", "statements", len(reports))

			return root.finish(s, reports)
		},
	}
	cmd.Flags().StringVarP(&srcPath, "src", "s", ".", "Path to source code to scan")
	cmd.Flags().StringSliceVarP(&excludes, "exclude", "e", []string{".git", "vendor", "node_modules", "*_test.go"}, "Glob patterns to exclude from scan")
	cmd.Flags().Int("workers", 10, "Number of files processed concurrently")
	return cmd
}
