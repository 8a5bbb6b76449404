package storage

import (
	"encoding/json"
	"io"
	"os"

	"github.com/san-kum/meshsim/internal/metrics"
)

type ExportData struct {
	Meta    RunMetadata        `json:"meta"`
	Summary map[string]float64 `json:"summary"`
	Series  []metrics.Sample   `json:"series"`
}

// ExportJSON writes the metadata and metric series of run, without frames.
func ExportJSON(w io.Writer, run *Run) error {
	data := ExportData{
		Meta:    run.Meta,
		Summary: metrics.Summarize(run.Series).AsMap(),
		Series:  run.Series,
	}
	if data.Series == nil {
		data.Series = []metrics.Sample{}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func ExportJSONFile(path string, run *Run) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return ExportJSON(file, run)
}
