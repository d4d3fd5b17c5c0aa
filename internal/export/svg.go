package export

import (
	"errors"
	"fmt"
	"html"
	"io"
	"math"
	"strings"

	"github.com/san-kum/orbitlab/internal/dynamo"
	"github.com/san-kum/orbitlab/internal/sim"
)

var ErrTooFewSamples = errors.New("export: need at least two samples")

// Palette cycles over bodies 1..n; the central body is drawn in Central.
var Palette = []string{"#00ccff", "#ff6b6b", "#feca57", "#5fd068", "#ff9ff3", "#a29bfe", "#ff8800"}

const Central = "#ffd700"

type SVGOptions struct {
	Width, Height int
	// Plane is one of "xy", "xz", "yz".
	Plane      string
	Background string
	Names      []string
}

func DefaultSVGOptions() SVGOptions {
	return SVGOptions{Width: 800, Height: 800, Plane: "xy", Background: "#0a0a0a"}
}

func axes(plane string) (int, int, error) {
	switch plane {
	case "", "xy":
		return 0, 1, nil
	case "xz":
		return 0, 2, nil
	case "yz":
		return 1, 2, nil
	}
	return 0, 0, fmt.Errorf("%w: unknown plane %q", dynamo.ErrParameterBounds, plane)
}

// OrbitsToSVG draws every body's path relative to the central body, one
// polyline per body, on equal axes.
func OrbitsToSVG(w io.Writer, samples []sim.Sample, opts SVGOptions) error {
	if len(samples) < 2 {
		return ErrTooFewSamples
	}
	ax, ay, err := axes(opts.Plane)
	if err != nil {
		return err
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return fmt.Errorf("%w: svg size must be positive", dynamo.ErrParameterBounds)
	}

	n := len(samples[0].Q)
	paths := make([][][2]float64, n)
	extent := 0.0
	for _, s := range samples {
		if len(s.Q) != n {
			return dynamo.ErrDimensionMismatch
		}
		for i := range s.Q {
			r := s.Q[i].Sub(s.Q[0])
			p := [2]float64{r[ax], r[ay]}
			paths[i] = append(paths[i], p)
			extent = math.Max(extent, math.Max(math.Abs(p[0]), math.Abs(p[1])))
		}
	}
	if extent == 0 {
		extent = 1
	}

	half := math.Min(float64(opts.Width), float64(opts.Height)) / 2
	scale := 0.9 * half / extent
	cx, cy := float64(opts.Width)/2, float64(opts.Height)/2
	screen := func(p [2]float64) (float64, float64) {
		return cx + p[0]*scale, cy - p[1]*scale
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="%s"/>
`, opts.Width, opts.Height, opts.Width, opts.Height, opts.Background)

	for i := 1; i < n; i++ {
		color := Palette[(i-1)%len(Palette)]
		sb.WriteString(`<polyline fill="none" stroke-width="1.2" stroke="` + color + `" points="`)
		for k, p := range paths[i] {
			x, y := screen(p)
			if k > 0 {
				sb.WriteByte(' ')
			}
			fmt.Fprintf(&sb, "%.2f,%.2f", x, y)
		}
		sb.WriteString("\"/>\n")

		x, y := screen(paths[i][len(paths[i])-1])
		fmt.Fprintf(&sb, "<circle cx=\"%.2f\" cy=\"%.2f\" r=\"3\" fill=\"%s\"/>\n", x, y, color)
	}
	fmt.Fprintf(&sb, "<circle cx=\"%.2f\" cy=\"%.2f\" r=\"5\" fill=\"%s\"/>\n", cx, cy, Central)

	for i := 0; i < n && i < len(opts.Names); i++ {
		color := Central
		if i > 0 {
			color = Palette[(i-1)%len(Palette)]
		}
		fmt.Fprintf(&sb, "<text x=\"10\" y=\"%d\" font-family=\"monospace\" font-size=\"12\" fill=\"%s\">%s</text>\n",
			20+16*i, color, html.EscapeString(opts.Names[i]))
	}
	fmt.Fprintf(&sb, "<text x=\"10\" y=\"%d\" font-family=\"monospace\" font-size=\"12\" fill=\"#888899\">t = %.6g</text>\n",
		opts.Height-10, samples[len(samples)-1].Time)

	sb.WriteString("</svg>\n")
	_, err = io.WriteString(w, sb.String())
	return err
}
