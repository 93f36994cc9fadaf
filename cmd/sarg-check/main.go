package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"sarg-check/internal/auditor"
	"sarg-check/internal/catalog"
	"sarg-check/internal/config"
	"sarg-check/internal/logger"
	"sarg-check/internal/model"
	"sarg-check/internal/parser"
	"sarg-check/internal/reporter"
)

// errBlocking makes the process exit with status 1 without printing an error.
var errBlocking = errors.New("non-sargable statements found")

// rootOptions holds the flags shared by every subcommand.
type rootOptions struct {
	configPath     string
	schemaPath     string
	catalogPath    string
	reportFmt      string
	outputFile     string
	failOnBlocking bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "sarg-check",
		Short: "A static analysis tool for non-sargable SQL predicates",
		Long: `sarg-check finds SQL predicates that prevent index use. It parses
statements, inspects WHERE, JOIN ON, ORDER BY and GROUP BY clauses against an
index catalog, and reports findings with suggested rewrites.

The catalog comes from DDL (--schema) or a YAML fixture (--catalog).
Settings are read from --config, then SARGCHECK_* environment variables,
then flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML config file")
	pf.StringVarP(&opts.schemaPath, "schema", "S", "", "Path to a DDL file with CREATE TABLE / CREATE INDEX statements")
	pf.StringVar(&opts.catalogPath, "catalog", "", "Path to a YAML index catalog")
	pf.StringVarP(&opts.reportFmt, "report", "r", "console", "Report format (console, json)")
	pf.StringVarP(&opts.outputFile, "out", "o", "", "Output file path (default: stdout)")
	pf.BoolVar(&opts.failOnBlocking, "fail-on-blocking", false, "Exit with status 1 when a statement is non-sargable")
	pf.String("dialect", "postgres", "Target database (postgres, mysql, sqlserver)")
	pf.StringSlice("rules", nil, "Only run these rules, e.g. R1,R5")
	pf.String("log-level", "info", "Log level (debug, info, warn, error)")
	pf.String("log-format", "text", "Log format (text, json)")

	root.AddCommand(newScanCmd(opts), newAnalyzeCmd(opts))
	return root
}

// session is the state a subcommand runs with.
type session struct {
	cfg      *config.Config
	log      *slog.Logger
	auditor  *auditor.Auditor
	reporter model.Reporter
	close    func() error
}

func (o *rootOptions) open(cmd *cobra.Command) (*session, error) {
	cfg, err := config.Load(o.configPath, cmd.Flags())
	if err != nil {
		return nil, err
	}
	logger.Init(cfg.Log)
	log := logger.Get()

	p := parser.NewSQLParser()
	analysisOpts, err := cfg.Options(p.ParseExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cat, err := o.loadCatalog(p)
	if err != nil {
		return nil, err
	}
	log.Debug("catalog loaded", "indexes", cat.Len(), "dialect", analysisOpts.Dialect)

	var (
		out     io.Writer = cmd.OutOrStdout()
		closeFn           = func() error { return nil }
	)
	if o.outputFile != "" {
		f, err := os.Create(o.outputFile)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file: %w", err)
		}
		out, closeFn = f, f.Close
	}

	var rpt model.Reporter
	switch o.reportFmt {
	case "json":
		rpt = reporter.NewJSONReporter(out)
	case "console", "":
		rpt = reporter.NewConsoleReporter(out)
	default:
		closeFn()
		return nil, fmt.Errorf("unknown report format %q", o.reportFmt)
	}

	return &session{
		cfg:      cfg,
		log:      log,
		auditor:  auditor.NewAuditor(cat, p, analysisOpts, log),
		reporter: rpt,
		close:    closeFn,
	}, nil
}

func (o *rootOptions) loadCatalog(p *parser.SQLParser) (*catalog.Catalog, error) {
	switch {
	case o.schemaPath != "" && o.catalogPath != "":
		return nil, errors.New("--schema and --catalog cannot be used together")
	case o.schemaPath != "":
		cat, err := p.LoadSchema(o.schemaPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load schema: %w", err)
		}
		return cat, nil
	case o.catalogPath != "":
		cat, err := catalog.LoadFile(o.catalogPath, p.ParseExpr)
		if err != nil {
			return nil, fmt.Errorf("failed to load catalog: %w", err)
		}
		return cat, nil
	}
	return catalog.Empty(), nil
}

// finish writes the reports and applies --fail-on-blocking.
func (o *rootOptions) finish(s *session, reports []model.SegmentReport) error {
	err := s.reporter.Report(reports)
	if cerr := s.close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("reporting failed: %w", err)
	}
	if o.failOnBlocking {
		for _, sr := range reports {
			if sr.Report.Sargability == model.NonSargable {
				return errBlocking
			}
		}
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, errBlocking) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
