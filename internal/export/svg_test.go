package export

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"math"
	"strings"
	"testing"

	"github.com/san-kum/orbitlab/internal/dynamo"
	"github.com/san-kum/orbitlab/internal/sim"
)

func circleSamples(n int) []sim.Sample {
	samples := make([]sim.Sample, n)
	for k := range samples {
		th := 2 * math.Pi * float64(k) / float64(n-1)
		sun := dynamo.Vec3{0.001 * math.Cos(th), 0.001 * math.Sin(th), 0}
		samples[k] = sim.Sample{
			Time: th,
			Q:    []dynamo.Vec3{sun, sun.Add(dynamo.Vec3{math.Cos(th), math.Sin(th), 0})},
		}
	}
	return samples
}

func TestOrbitsToSVG(t *testing.T) {
	var buf bytes.Buffer
	opts := DefaultSVGOptions()
	opts.Names = []string{"sun", "planet<1>"}

	if err := OrbitsToSVG(&buf, circleSamples(64), opts); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	out := buf.String()

	if !strings.HasPrefix(out, "<?xml") {
		t.Error("expected xml header")
	}
	if strings.Count(out, "<polyline") != 1 {
		t.Errorf("expected one polyline per orbiting body, got %d", strings.Count(out, "<polyline"))
	}
	if !strings.Contains(out, "planet&lt;1&gt;") {
		t.Error("body name not escaped")
	}

	dec := xml.NewDecoder(strings.NewReader(out))
	for {
		_, err := dec.Token()
		if err != nil {
			if err != io.EOF {
				t.Fatalf("invalid xml: %v", err)
			}
			break
		}
	}
}

func TestOrbitsToSVG_FitsCanvas(t *testing.T) {
	var buf bytes.Buffer
	opts := DefaultSVGOptions()
	opts.Width, opts.Height = 200, 100
	if err := OrbitsToSVG(&buf, circleSamples(16), opts); err != nil {
		t.Fatal(err)
	}
	// Unit circle relative to the centre: radius 0.9*50 about (100, 50).
	if !strings.Contains(buf.String(), "145.00,50.00") {
		t.Errorf("expected the first point at 145,50:\n%s", buf.String())
	}
}

func TestOrbitsToSVG_Errors(t *testing.T) {
	var buf bytes.Buffer
	if err := OrbitsToSVG(&buf, circleSamples(1), DefaultSVGOptions()); !errors.Is(err, ErrTooFewSamples) {
		t.Errorf("expected ErrTooFewSamples, got %v", err)
	}

	opts := DefaultSVGOptions()
	opts.Plane = "xw"
	if err := OrbitsToSVG(&buf, circleSamples(4), opts); !errors.Is(err, dynamo.ErrParameterBounds) {
		t.Errorf("expected ErrParameterBounds, got %v", err)
	}

	samples := circleSamples(4)
	samples[2].Q = samples[2].Q[:1]
	if err := OrbitsToSVG(&buf, samples, DefaultSVGOptions()); !errors.Is(err, dynamo.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}
