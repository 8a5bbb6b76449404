package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/san-kum/meshsim/internal/dynamo"
	"github.com/san-kum/meshsim/internal/metrics"
)

const (
	metadataFile = "metadata.json"
	framesFile   = "frames.csv"
	metricsFile  = "metrics.csv"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Timestamp  time.Time          `json:"timestamp"`
	Seed       int64              `json:"seed"`
	Dt         float64            `json:"dt"`
	Ticks      int                `json:"ticks"`
	Width      int                `json:"width"`
	Height     int                `json:"height"`
	Backend    string             `json:"backend"`
	FrameEvery int                `json:"frame_every"`
	Params     map[string]float64 `json:"params"`
	Metrics    map[string]float64 `json:"metrics"`
}

// FrameRow is one vertex position of a stored frame.
type FrameRow struct {
	Tick  int     `csv:"tick"`
	Time  float64 `csv:"time"`
	Index int     `csv:"index"`
	X     float64 `csv:"x"`
	Y     float64 `csv:"y"`
	Z     float64 `csv:"z"`
}

// Run is everything Save writes for one simulation run.
type Run struct {
	Meta   RunMetadata
	Frames []FrameRow
	Series []metrics.Sample
}

// Save writes run into a fresh directory and returns its id.
func (s *Store) Save(run *Run) (string, error) {
	name := run.Meta.Name
	if name == "" {
		name = "run"
	}
	now := time.Now()
	runID := fmt.Sprintf("%s_%d", name, now.UnixNano())
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := run.Meta
	meta.ID = runID
	meta.Name = name
	if meta.Timestamp.IsZero() {
		meta.Timestamp = now
	}

	metaFile, err := os.Create(filepath.Join(runDir, metadataFile))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	if err := writeCSV(filepath.Join(runDir, framesFile), run.Frames); err != nil {
		return "", fmt.Errorf("writing frames: %w", err)
	}
	if err := writeCSV(filepath.Join(runDir, metricsFile), run.Series); err != nil {
		return "", fmt.Errorf("writing metrics: %w", err)
	}

	return runID, nil
}

func writeCSV[T any](path string, rows []T) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if rows == nil {
		rows = []T{}
	}
	return gocsv.MarshalFile(&rows, f)
}

// List returns every readable run, oldest first. Directories without valid
// metadata are skipped.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}

		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.Before(runs[j].Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}

	return &meta, nil
}

// LoadSeries reads the per-tick metric series of a run.
func (s *Store) LoadSeries(runID string) ([]metrics.Sample, error) {
	var series []metrics.Sample
	if err := readCSV(filepath.Join(s.baseDir, runID, metricsFile), &series); err != nil {
		return nil, err
	}
	return series, nil
}

// LoadFrames reads the stored position frames of a run.
func (s *Store) LoadFrames(runID string) ([]FrameRow, error) {
	var frames []FrameRow
	if err := readCSV(filepath.Join(s.baseDir, runID, framesFile), &frames); err != nil {
		return nil, err
	}
	return frames, nil
}

func readCSV[T any](path string, out *[]T) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := gocsv.UnmarshalFile(f, out); err != nil {
		if errors.Is(err, gocsv.ErrEmptyCSVFile) {
			*out = []T{}
			return nil
		}
		return err
	}
	return nil
}

// FrameRecorder is an observer that keeps every Nth frame as rows.
type FrameRecorder struct {
	every int
	rows  []FrameRow
}

func NewFrameRecorder(every int) *FrameRecorder {
	return &FrameRecorder{every: every}
}

func (r *FrameRecorder) OnTick(f dynamo.Frame) {
	if r.every <= 0 || f.Tick%r.every != 0 {
		return
	}
	for i, p := range f.Positions {
		r.rows = append(r.rows, FrameRow{Tick: f.Tick, Time: f.Time, Index: i, X: p.X, Y: p.Y, Z: p.Z})
	}
}

func (r *FrameRecorder) Rows() []FrameRow { return r.rows }

// GroupFrames splits stored rows back into per-tick position slices, in
// tick order.
func GroupFrames(rows []FrameRow) (ticks []int, frames [][]dynamo.Vec3) {
	byTick := make(map[int][]FrameRow)
	for _, r := range rows {
		byTick[r.Tick] = append(byTick[r.Tick], r)
	}
	for t := range byTick {
		ticks = append(ticks, t)
	}
	sort.Ints(ticks)

	frames = make([][]dynamo.Vec3, len(ticks))
	for k, t := range ticks {
		group := byTick[t]
		n := 0
		for _, r := range group {
			if r.Index+1 > n {
				n = r.Index + 1
			}
		}
		pos := make([]dynamo.Vec3, n)
		for _, r := range group {
			pos[r.Index] = dynamo.Vec3{X: r.X, Y: r.Y, Z: r.Z}
		}
		frames[k] = pos
	}
	return ticks, frames
}
