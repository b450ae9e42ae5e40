package cluster

import (
	"fmt"
	"math"

	"github.com/dpup/scanplan/internal/lib/geo"
)

// Cluster is a center plus the arena indices of the points it covers. All is
// every point within Radius of Center; Unique is the subset credited to this
// cluster by the greedy cover. Both are sorted ascending.
type Cluster struct {
	Center  geo.Point
	All     []int
	Unique  []int
	Outcome Outcome
}

// Candidate is a possible center with its coverage set
type Candidate struct {
	Center geo.Point
	All    []int
}

// Outcome classifies a smallest-enclosing-circle refinement
type Outcome int

const (
	// OutcomeSkipped means refinement did not run for the cluster
	OutcomeSkipped Outcome = iota
	// OutcomeCentered means the cluster was moved to its enclosing circle's center
	OutcomeCentered
	// OutcomeRadiusTooBig means the smallest enclosing circle exceeds the radius
	OutcomeRadiusTooBig
	// OutcomeMissingPoints means the circle fit but a member fell outside it
	OutcomeMissingPoints
	// OutcomeNone means no circle could be built
	OutcomeNone
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeCentered:
		return "centered"
	case OutcomeRadiusTooBig:
		return "radius_too_big"
	case OutcomeMissingPoints:
		return "missing_points"
	case OutcomeNone:
		return "none"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Params configures a clustering run
type Params struct {
	Radius    float64
	MinPoints int
	// Fast selects grid candidates instead of caller-supplied ones
	Fast bool
	// Refine re-centers clusters on their smallest enclosing circle
	Refine bool
	Seed   int64
	// MaxAttempts bounds the SEC shuffles per cluster; 0 means DefaultMaxAttempts
	MaxAttempts int
	Workers     int
}

// DefaultMaxAttempts is the number of shuffled Welzl runs tried per cluster
const DefaultMaxAttempts = 100

// Validate checks the parameters that would make clustering meaningless
func (p Params) Validate() error {
	if math.IsNaN(p.Radius) || math.IsInf(p.Radius, 0) || p.Radius <= 0 {
		return fmt.Errorf("radius %v must be positive and finite", p.Radius)
	}
	if p.MinPoints < 1 {
		return fmt.Errorf("min points %d must be at least 1", p.MinPoints)
	}
	return nil
}

// Result holds the clusters of one run in selection order
type Result struct {
	Clusters []Cluster
	// Candidates is the number of candidates meeting MinPoints before the cover
	Candidates int
}

// Centers returns the cluster centers in order
func (r Result) Centers() []geo.Point {
	out := make([]geo.Point, len(r.Clusters))
	for i, c := range r.Clusters {
		out[i] = c.Center
	}
	return out
}
