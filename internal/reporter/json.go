package reporter

import (
	"encoding/json"
	"io"
	"os"

	"sarg-check/internal/model"
)

// JSONReporter writes all reports as one indented JSON document.
type JSONReporter struct {
	out io.Writer
}

func NewJSONReporter(w io.Writer) *JSONReporter {
	if w == nil {
		w = os.Stdout
	}
	return &JSONReporter{out: w}
}

type jsonDocument struct {
	Reports []model.SegmentReport `json:"reports"`
	Summary Totals                `json:"summary"`
}

func (r *JSONReporter) Report(reports []model.SegmentReport) error {
	if reports == nil {
		reports = []model.SegmentReport{}
	}
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(jsonDocument{Reports: reports, Summary: Tally(reports)})
}
