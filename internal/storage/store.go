// Package storage persists runs as a directory holding metadata.json,
// states.csv and jacobians.json.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/san-kum/simgrad/internal/experiment"
	"github.com/san-kum/simgrad/internal/jacobian"
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

type JacobianMetadata struct {
	Epsilon    float64 `json:"epsilon"`
	Lookahead  int     `json:"lookahead"`
	Method     string  `json:"method"`
	ClosedLoop string  `json:"closed_loop"`
	Every      int     `json:"every"`
}

type RunMetadata struct {
	ID         string             `json:"id"`
	Model      string             `json:"model"`
	Timestamp  time.Time          `json:"timestamp"`
	Seed       int64              `json:"seed"`
	Dt         float64            `json:"dt"`
	Steps      int                `json:"steps"`
	Integrator string             `json:"integrator"`
	Controller string             `json:"controller"`
	Reward     string             `json:"reward"`
	Nq         int                `json:"nq"`
	Nv         int                `json:"nv"`
	Nu         int                `json:"nu"`
	Jacobian   JacobianMetadata   `json:"jacobian"`
	Skipped    int                `json:"skipped"`
	Metrics    map[string]float64 `json:"metrics"`
}

// Duration is the simulated time span of the run.
func (m RunMetadata) Duration() float64 { return float64(m.Steps) * m.Dt }

// JacobianRecord is one differentiated step. Error is set instead of
// Jacobians when the step was skipped.
type JacobianRecord struct {
	Step      int                 `json:"step"`
	Time      float64             `json:"time"`
	Jacobians *jacobian.Jacobians `json:"jacobians,omitempty"`
	Error     string              `json:"error,omitempty"`
}

// Trajectory is the content of states.csv.
type Trajectory struct {
	Times   []float64
	QPos    [][]float64
	QVel    [][]float64
	Ctrl    [][]float64
	Rewards []float64
}

// States returns qpos‖qvel per row.
func (t *Trajectory) States() [][]float64 {
	out := make([][]float64, len(t.Times))
	for i := range out {
		out[i] = append(append([]float64(nil), t.QPos[i]...), t.QVel[i]...)
	}
	return out
}

// Save writes res under a fresh run id built from meta.Model. Shapes,
// skip count and metrics are taken from res.
func (s *Store) Save(meta RunMetadata, res *experiment.Result) (string, error) {
	runID := fmt.Sprintf("%s_%d", meta.Model, time.Now().UnixNano())
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta.ID = runID
	meta.Timestamp = time.Now()
	meta.Steps = len(res.Records)
	meta.Nq, meta.Nv, meta.Nu = res.Nq, res.Nv, res.Nu
	meta.Skipped = res.Skipped
	meta.Metrics = res.Metrics

	if err := writeJSON(filepath.Join(runDir, "metadata.json"), meta); err != nil {
		return "", err
	}
	if err := writeStates(filepath.Join(runDir, "states.csv"), res); err != nil {
		return "", err
	}

	var records []JacobianRecord
	for _, rec := range res.Records {
		if rec.Jacobians == nil && rec.Err == nil {
			continue
		}
		jr := JacobianRecord{Step: rec.Step, Time: rec.Time, Jacobians: rec.Jacobians}
		if rec.Err != nil {
			jr.Error = rec.Err.Error()
		}
		records = append(records, jr)
	}
	if len(records) > 0 {
		if err := writeJSON(filepath.Join(runDir, "jacobians.json"), records); err != nil {
			return "", err
		}
	}

	return runID, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func writeStates(path string, res *experiment.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)

	header := []string{"time"}
	for i := 0; i < res.Nq; i++ {
		header = append(header, fmt.Sprintf("q%d", i))
	}
	for i := 0; i < res.Nv; i++ {
		header = append(header, fmt.Sprintf("v%d", i))
	}
	for i := 0; i < res.Nu; i++ {
		header = append(header, fmt.Sprintf("u%d", i))
	}
	header = append(header, "reward")
	if err := w.Write(header); err != nil {
		return err
	}

	for _, rec := range res.Records {
		row := make([]string, 0, len(header))
		row = append(row, formatFloat(rec.Time))
		for _, val := range rec.State {
			row = append(row, formatFloat(val))
		}
		for _, val := range rec.Control {
			row = append(row, formatFloat(val))
		}
		row = append(row, formatFloat(rec.Reward))
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

// List returns every readable run, newest first.
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

	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	metaPath := filepath.Join(s.baseDir, runID, "metadata.json")
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}

	return &meta, nil
}

func (s *Store) LoadStates(runID string) (*Trajectory, error) {
	csvPath := filepath.Join(s.baseDir, runID, "states.csv")
	file, err := os.Open(csvPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	tr := &Trajectory{}
	if len(records) < 2 {
		return tr, nil
	}

	header := records[0]
	for i, record := range records[1:] {
		var q, v, u []float64
		for j, field := range record {
			val, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("states.csv row %d, column %s: %w", i+1, header[j], err)
			}
			switch name := header[j]; {
			case name == "time":
				tr.Times = append(tr.Times, val)
			case name == "reward":
				tr.Rewards = append(tr.Rewards, val)
			case strings.HasPrefix(name, "q"):
				q = append(q, val)
			case strings.HasPrefix(name, "v"):
				v = append(v, val)
			case strings.HasPrefix(name, "u"):
				u = append(u, val)
			}
		}
		tr.QPos = append(tr.QPos, q)
		tr.QVel = append(tr.QVel, v)
		tr.Ctrl = append(tr.Ctrl, u)
	}

	return tr, nil
}

// LoadJacobians returns the differentiated steps of a run; runs without
// Jacobians yield an empty slice.
func (s *Store) LoadJacobians(runID string) ([]JacobianRecord, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "jacobians.json"))
	if errors.Is(err, os.ErrNotExist) {
		if _, statErr := os.Stat(filepath.Join(s.baseDir, runID)); statErr != nil {
			return nil, statErr
		}
		return []JacobianRecord{}, nil
	}
	if err != nil {
		return nil, err
	}

	var records []JacobianRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}
