package auditor

import (
	"errors"
	"log/slog"

	"sarg-check/internal/catalog"
	"sarg-check/internal/model"
	"sarg-check/internal/parser"
)

// Auditor parses extracted SQL segments and analyzes each statement against a
// shared catalog.
type Auditor struct {
	parser  *parser.SQLParser
	catalog *catalog.Catalog
	options model.Options
	log     *slog.Logger
}

func NewAuditor(cat *catalog.Catalog, p *parser.SQLParser, opts model.Options, log *slog.Logger) *Auditor {
	if cat == nil {
		cat = catalog.Empty()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Auditor{
		parser:  p,
		catalog: cat,
		options: opts,
		log:     log,
	}
}

// AuditSQL analyzes one statement.
func (a *Auditor) AuditSQL(sql string) (*model.Report, error) {
	stmt, err := a.parser.Parse(sql)
	if err != nil {
		return nil, err
	}
	return Analyze(stmt, a.catalog, a.options), nil
}

// Audit analyzes every segment that parses. Segments that fail to parse or
// hold statements without predicates are logged and skipped.
func (a *Auditor) Audit(segments []model.SQLSegment) ([]model.SegmentReport, error) {
	reports := make([]model.SegmentReport, 0, len(segments))
	for _, seg := range segments {
		r, err := a.AuditSQL(seg.SQL)
		switch {
		case errors.Is(err, parser.ErrUnsupportedStatement):
			a.log.Debug("skipping statement", "location", seg.Location.String(), "error", err)
			continue
		case err != nil:
			a.log.Warn("failed to parse SQL", "location", seg.Location.String(), "error", err)
			continue
		}
		reports = append(reports, model.SegmentReport{Segment: seg, Report: r})
	}
	return reports, nil
}
