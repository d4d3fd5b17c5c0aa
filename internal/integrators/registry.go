package integrators

import (
	"fmt"

	"github.com/san-kum/orbitlab/internal/dynamo"
)

// New returns a fresh baseline integrator by name.
func New(name string) (dynamo.Integrator, error) {
	switch name {
	case "rk4":
		return NewRK4(), nil
	case "rk45":
		return NewRK45(), nil
	case "leapfrog":
		return NewLeapfrog(), nil
	default:
		return nil, fmt.Errorf("%w: unknown integrator %q", dynamo.ErrParameterBounds, name)
	}
}
