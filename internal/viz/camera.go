package viz

import (
	"math"

	"github.com/san-kum/orbitlab/internal/dynamo"
)

// Camera is an orthographic view of heliocentric space. Extent is the
// world distance shown from the centre to the nearer screen edge.
type Camera struct {
	RotX, RotY float64
	Zoom       float64
	Extent     float64
}

func NewCamera(extent float64) *Camera {
	if !(extent > 0) {
		extent = 1
	}
	return &Camera{Zoom: 1, Extent: extent}
}

func (c *Camera) RotateX(a float64) { c.RotX += a }
func (c *Camera) RotateY(a float64) { c.RotY += a }
func (c *Camera) ZoomIn()           { c.Zoom = math.Min(100, c.Zoom*1.25) }
func (c *Camera) ZoomOut()          { c.Zoom = math.Max(0.01, c.Zoom/1.25) }

// Rotate applies the view rotation, about x first and then y.
func (c *Camera) Rotate(p dynamo.Vec3) dynamo.Vec3 {
	cx, sx := math.Cos(c.RotX), math.Sin(c.RotX)
	p[1], p[2] = p[1]*cx-p[2]*sx, p[1]*sx+p[2]*cx
	cy, sy := math.Cos(c.RotY), math.Sin(c.RotY)
	p[0], p[2] = p[0]*cy+p[2]*sy, -p[0]*sy+p[2]*cy
	return p
}

// Project maps p to sub-pixel coordinates of a sw x sh screen and reports
// whether the point is on screen. Braille sub-pixels are close to square
// in common terminal fonts, so both axes share one scale.
func (c *Camera) Project(p dynamo.Vec3, sw, sh int) (int, int, bool) {
	r := c.Rotate(p)
	half := math.Min(float64(sw), float64(sh)) / 2
	scale := half * c.Zoom / c.Extent
	sx := int(math.Round(r[0]*scale)) + sw/2
	sy := int(math.Round(-r[1]*scale)) + sh/2
	return sx, sy, sx >= 0 && sx < sw && sy >= 0 && sy < sh
}
