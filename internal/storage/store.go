package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/san-kum/orbitlab/internal/dynamo"
	"github.com/san-kum/orbitlab/internal/sim"
)

const (
	metadataFile = "metadata.json"
	samplesFile  = "samples.csv"
	catalogFile  = "catalog.db"
)

// Store keeps one directory per run (metadata JSON plus a samples CSV) and,
// when opened with Open, indexes runs in a SQLite catalog.
type Store struct {
	baseDir string
	catalog *Catalog
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// Open creates baseDir if needed and attaches the run catalog.
func Open(baseDir string) (*Store, error) {
	s := New(baseDir)
	if err := s.Init(); err != nil {
		return nil, err
	}
	c, err := OpenCatalog(filepath.Join(baseDir, catalogFile))
	if err != nil {
		return nil, err
	}
	s.catalog = c
	return s, nil
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

func (s *Store) Close() error {
	if s.catalog == nil {
		return nil
	}
	return s.catalog.Close()
}

// Catalog returns the attached catalog or nil.
func (s *Store) Catalog() *Catalog { return s.catalog }

type RunMetadata struct {
	ID             string             `json:"id"`
	Name           string             `json:"name"`
	Timestamp      time.Time          `json:"timestamp"`
	Integrator     string             `json:"integrator"`
	Tolerance      float64            `json:"tolerance"`
	Duration       float64            `json:"duration"`
	Bodies         []string           `json:"bodies"`
	G              float64            `json:"g,omitempty"`
	Masses         []float64          `json:"masses,omitempty"`
	Steps          int                `json:"steps"`
	Rectifications int                `json:"rectifications"`
	EnergyDrift    float64            `json:"energy_drift"`
	Metrics        map[string]float64 `json:"metrics"`
}

// Save writes a run and returns its ID. ID, Timestamp and the counters of
// meta are filled in from the result.
func (s *Store) Save(meta RunMetadata, result *sim.Result) (string, error) {
	meta.Timestamp = time.Now().UTC()
	meta.ID = fmt.Sprintf("%s_%d", meta.Name, meta.Timestamp.UnixNano())
	meta.Steps = result.Steps
	meta.Rectifications = result.Rectifications
	meta.EnergyDrift = result.EnergyDrift
	meta.Metrics = result.Metrics

	runDir := filepath.Join(s.baseDir, meta.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}
	if err := writeSamples(filepath.Join(runDir, samplesFile), meta.Bodies, result.Samples); err != nil {
		return "", err
	}

	if s.catalog != nil {
		if err := s.catalog.Record(meta); err != nil {
			return "", fmt.Errorf("catalog %s: %w", meta.ID, err)
		}
	}
	return meta.ID, nil
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
	return strconv.FormatFloat(v, 'g', 17, 64)
}

func writeSamples(path string, names []string, samples []sim.Sample) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)

	if len(samples) > 0 {
		header := []string{"time", "energy"}
		for i := range samples[0].Q {
			name := strconv.Itoa(i)
			if i < len(names) && names[i] != "" {
				name = names[i]
			}
			for _, c := range []string{"x", "y", "z", "vx", "vy", "vz"} {
				header = append(header, name+"."+c)
			}
		}
		if err := w.Write(header); err != nil {
			return err
		}
	}

	for _, smp := range samples {
		row := []string{formatFloat(smp.Time), formatFloat(smp.Energy)}
		for i := range smp.Q {
			for _, c := range smp.Q[i] {
				row = append(row, formatFloat(c))
			}
			for _, c := range smp.V[i] {
				row = append(row, formatFloat(c))
			}
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

// List returns every run, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	if s.catalog != nil {
		return s.catalog.List()
	}

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

// LoadSamples reads the samples of a run back.
func (s *Store) LoadSamples(runID string) ([]sim.Sample, error) {
	f, err := os.Open(filepath.Join(s.baseDir, runID, samplesFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return []sim.Sample{}, nil
	}

	samples := make([]sim.Sample, 0, len(records)-1)
	for line, record := range records[1:] {
		vals := make([]float64, len(record))
		for j, field := range record {
			if vals[j], err = strconv.ParseFloat(field, 64); err != nil {
				return nil, fmt.Errorf("%s line %d: %w", samplesFile, line+2, err)
			}
		}
		if (len(vals)-2)%6 != 0 {
			return nil, fmt.Errorf("%s line %d: %w", samplesFile, line+2, dynamo.ErrDimensionMismatch)
		}

		n := (len(vals) - 2) / 6
		smp := sim.Sample{
			Time:   vals[0],
			Energy: vals[1],
			Q:      make([]dynamo.Vec3, n),
			V:      make([]dynamo.Vec3, n),
		}
		for i := 0; i < n; i++ {
			k := 2 + 6*i
			smp.Q[i] = dynamo.Vec3{vals[k], vals[k+1], vals[k+2]}
			smp.V[i] = dynamo.Vec3{vals[k+3], vals[k+4], vals[k+5]}
		}
		samples = append(samples, smp)
	}
	return samples, nil
}

// SamplesPath returns the CSV file of a run.
func (s *Store) SamplesPath(runID string) string {
	return filepath.Join(s.baseDir, runID, samplesFile)
}
