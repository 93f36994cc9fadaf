package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"sarg-check/internal/extractor"
	"sarg-check/internal/model"
)

func newAnalyzeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze [SQL]",
		Short: "Analyze SQL given as an argument or on stdin",
		Example: `  sarg-check analyze --schema schema.sql "SELECT id FROM users WHERE LOWER(email) = 'a@b.c'"
  cat queries.sql | sarg-check analyze --dialect mysql`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var input []byte
			if len(args) == 1 {
				input = []byte(args[0])
			} else {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				input = data
			}
			segments, err := extractor.NewSQLFileExtractor().Extract("<input>", input)
			if err != nil {
				return err
			}
			if len(segments) == 0 {
				return fmt.Errorf("no SQL given")
			}

			s, err := root.open(cmd)
			if err != nil {
				return err
			}
			reports := make([]model.SegmentReport, 0, len(segments))
			for _, seg := range segments {
				r, err := s.auditor.AuditSQL(seg.SQL)
				if err != nil {
					s.close()
					return fmt.Errorf("line %d: %q: %w", seg.Location.Line, strings.TrimSpace(seg.SQL), err)
				}
				reports = append(reports, model.SegmentReport{Segment: seg, Report: r})
			}
			return root.finish(s, reports)
		},
	}
}
