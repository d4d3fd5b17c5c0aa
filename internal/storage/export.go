package storage

import (
	"encoding/json"
	"io"
	"os"

	"github.com/san-kum/orbitlab/internal/dynamo"
	"github.com/san-kum/orbitlab/internal/sim"
)

type ExportData struct {
	Run      RunMetadata `json:"run"`
	Times    []float64   `json:"times"`
	Energies []float64   `json:"energies"`
	// Positions[k][i] is body i at Times[k].
	Positions  [][]dynamo.Vec3 `json:"positions"`
	Velocities [][]dynamo.Vec3 `json:"velocities"`
}

func exportData(meta RunMetadata, samples []sim.Sample) ExportData {
	data := ExportData{
		Run:        meta,
		Times:      make([]float64, len(samples)),
		Energies:   make([]float64, len(samples)),
		Positions:  make([][]dynamo.Vec3, len(samples)),
		Velocities: make([][]dynamo.Vec3, len(samples)),
	}
	for k, s := range samples {
		data.Times[k] = s.Time
		data.Energies[k] = s.Energy
		data.Positions[k] = s.Q
		data.Velocities[k] = s.V
	}
	return data
}

// ExportJSON writes a run and its samples as one JSON document.
func ExportJSON(w io.Writer, meta RunMetadata, samples []sim.Sample) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(exportData(meta, samples))
}

func ExportJSONFile(path string, meta RunMetadata, samples []sim.Sample) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return ExportJSON(file, meta, samples)
}
