package cluster

import (
	"math/rand"

	"github.com/dpup/scanplan/internal/lib/geo"
)

// containsEpsilon absorbs rounding in boundary circles during Welzl
const containsEpsilon = 1e-6

type secState int

const (
	secDispatch secState = iota // S0
	secPop                      // S1
	secTest                     // S2
	secRestore                  // S3
	secUnbound                  // S4
)

type secFrame struct {
	state secState
	p     int
}

// SmallestEnclosingCircle runs Welzl's algorithm over points in the given
// order. The recursion is unrolled onto an explicit frame stack so depth is
// bounded by the heap rather than the goroutine stack. It reports false when
// points is empty.
func SmallestEnclosingCircle(points []geo.Point) (geo.Circle, bool) {
	remaining := make([]int, len(points))
	for i := range remaining {
		remaining[i] = i
	}
	boundary := make([]int, 0, 3)

	var circle geo.Circle
	found := false

	stack := []secFrame{{state: secDispatch}}
	push := func(f secFrame) { stack = append(stack, f) }

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch f.state {
		case secDispatch:
			if len(remaining) == 0 || len(boundary) == 3 {
				circle, found = boundaryCircle(points, boundary)
			} else {
				push(secFrame{state: secPop})
			}
		case secPop:
			p := remaining[len(remaining)-1]
			remaining = remaining[:len(remaining)-1]
			push(secFrame{state: secTest, p: p})
			push(secFrame{state: secDispatch})
		case secTest:
			push(secFrame{state: secRestore, p: f.p})
			if !found || geo.Distance(circle.Center, points[f.p]) > circle.Radius+containsEpsilon {
				boundary = append(boundary, f.p)
				push(secFrame{state: secUnbound})
				push(secFrame{state: secDispatch})
			}
		case secRestore:
			remaining = append(remaining, f.p)
		case secUnbound:
			boundary = boundary[:len(boundary)-1]
		}
	}
	return circle, found
}

func boundaryCircle(points []geo.Point, boundary []int) (geo.Circle, bool) {
	switch len(boundary) {
	case 0:
		return geo.Circle{}, false
	case 1:
		return geo.Circle{Center: points[boundary[0]]}, true
	case 2:
		return geo.TwoPointCircle(points[boundary[0]], points[boundary[1]]), true
	default:
		return geo.SmallestThreePointCircle(points[boundary[0]], points[boundary[1]], points[boundary[2]]), true
	}
}

// Refinement is the result of re-centering one cluster
type Refinement struct {
	Center   geo.Point
	Radius   float64
	Outcome  Outcome
	Attempts int
}

// Refine looks for a center within radius of every member. The first attempt
// uses the members in order; later attempts reshuffle with rng. On failure
// the outcome of the final attempt is reported and Center is the fallback.
func Refine(members []geo.Point, fallback geo.Point, radius float64, maxAttempts int, rng *rand.Rand) Refinement {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	res := Refinement{Center: fallback, Outcome: OutcomeNone}
	if len(members) == 0 {
		return res
	}

	order := append([]geo.Point(nil), members...)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res.Attempts = attempt
		if attempt > 1 {
			rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		}

		circle, ok := SmallestEnclosingCircle(order)
		switch {
		case !ok || !circle.Center.IsFinite():
			res.Outcome = OutcomeNone
		case circle.Radius > radius:
			res.Outcome = OutcomeRadiusTooBig
		case !allWithin(circle.Center, members, radius):
			res.Outcome = OutcomeMissingPoints
		default:
			res.Center = circle.Center
			res.Radius = circle.Radius
			res.Outcome = OutcomeCentered
			return res
		}
	}
	return res
}

func allWithin(center geo.Point, points []geo.Point, radius float64) bool {
	for _, p := range points {
		if geo.Distance(p, center) > radius {
			return false
		}
	}
	return true
}
