package routing

import (
	"context"
	"math"
	"sort"

	"github.com/golang/geo/s2"

	"github.com/dpup/scanplan/internal/lib/geo"
)

// buckets above this size compute distances on the fly instead of caching a matrix
const maxMatrixSize = 1500

// twoOptEpsilon is the minimum improvement in meters for a 2-opt move
const twoOptEpsilon = 1e-9

// solveTour partitions centers by S2 parent at RouteSplitLevel, solves each
// bucket with nearest insertion plus 2-opt and stitches the buckets in cell id
// order. Each bucket is rotated so its last stop is the one nearest the next
// bucket. A cancelled solve returns the tour built from the current bucket
// states.
func solveTour(ctx context.Context, centers []geo.Point, p Params) ([]geo.Point, error) {
	sweeps := p.TwoOptSweeps
	if sweeps <= 0 {
		sweeps = DefaultTwoOptSweeps
	}

	groups := partition(centers, p.RouteSplitLevel)
	tours := make([][]int, len(groups))
	var ctxErr error
	for b, members := range groups {
		if ctxErr != nil {
			tours[b] = members
			continue
		}
		tours[b], ctxErr = solveBucket(ctx, centers, members, sweeps)
	}

	if len(tours) > 1 {
		for b := range tours {
			next := tours[(b+1)%len(tours)]
			tours[b] = rotateTowards(centers, tours[b], next)
		}
	}

	route := make([]geo.Point, 0, len(centers))
	for _, tour := range tours {
		for _, i := range tour {
			route = append(route, centers[i])
		}
	}
	return route, ctxErr
}

// partition groups center indices by S2 parent, buckets sorted by cell id and
// members in input order
func partition(centers []geo.Point, level int) [][]int {
	if level <= 0 {
		all := make([]int, len(centers))
		for i := range all {
			all[i] = i
		}
		return [][]int{all}
	}

	byCell := make(map[s2.CellID][]int)
	for i, c := range centers {
		parent := c.CellID().Parent(level)
		byCell[parent] = append(byCell[parent], i)
	}
	cells := make([]s2.CellID, 0, len(byCell))
	for id := range byCell {
		cells = append(cells, id)
	}
	sort.Slice(cells, func(i, j int) bool { return cells[i] < cells[j] })

	groups := make([][]int, len(cells))
	for k, id := range cells {
		groups[k] = byCell[id]
	}
	return groups
}

type distanceFunc func(a, b int) float64

func bucketDistance(centers []geo.Point, members []int) distanceFunc {
	n := len(members)
	if n > maxMatrixSize {
		return func(a, b int) float64 { return geo.Distance(centers[members[a]], centers[members[b]]) }
	}
	m := make([]float64, n*n)
	for a := 0; a < n; a++ {
		for b := a + 1; b < n; b++ {
			d := geo.Distance(centers[members[a]], centers[members[b]])
			m[a*n+b], m[b*n+a] = d, d
		}
	}
	return func(a, b int) float64 { return m[a*n+b] }
}

// solveBucket returns members reordered into a closed tour
func solveBucket(ctx context.Context, centers []geo.Point, members []int, sweeps int) ([]int, error) {
	if len(members) <= 3 {
		return members, nil
	}
	dist := bucketDistance(centers, members)
	local := nearestInsertion(len(members), dist)
	err := twoOpt(ctx, local, dist, sweeps)

	out := make([]int, len(local))
	for k, i := range local {
		out[k] = members[i]
	}
	return out, err
}

// nearestInsertion grows a tour from node 0 by repeatedly taking the node
// closest to the tour and inserting it where it lengthens the tour least.
func nearestInsertion(n int, dist distanceFunc) []int {
	inTour := make([]bool, n)
	nearest := make([]float64, n)
	for i := range nearest {
		nearest[i] = math.Inf(1)
	}

	tour := make([]int, 0, n)
	add := func(node int) {
		inTour[node] = true
		for i := 0; i < n; i++ {
			if !inTour[i] {
				nearest[i] = math.Min(nearest[i], dist(node, i))
			}
		}
	}

	tour = append(tour, 0)
	add(0)
	for len(tour) < n {
		next := -1
		for i := 0; i < n; i++ {
			if !inTour[i] && (next < 0 || nearest[i] < nearest[next]) {
				next = i
			}
		}

		pos, best := len(tour), math.Inf(1)
		for k := range tour {
			a, b := tour[k], tour[(k+1)%len(tour)]
			cost := dist(a, next) + dist(next, b) - dist(a, b)
			if len(tour) == 1 {
				cost = dist(a, next)
			}
			if cost < best {
				pos, best = k+1, cost
			}
		}
		tour = append(tour, 0)
		copy(tour[pos+1:], tour[pos:])
		tour[pos] = next
		add(next)
	}
	return tour
}

// twoOpt improves the closed tour in place, at most sweeps full passes. The
// context is checked before every pass.
func twoOpt(ctx context.Context, tour []int, dist distanceFunc, sweeps int) error {
	n := len(tour)
	for sweep := 0; sweep < sweeps; sweep++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		improved := false
		for i := 0; i < n-2; i++ {
			for j := i + 2; j < n; j++ {
				if i == 0 && j == n-1 {
					continue // shares an edge through the wrap
				}
				a, b := tour[i], tour[i+1]
				c, d := tour[j], tour[(j+1)%n]
				delta := dist(a, c) + dist(b, d) - dist(a, b) - dist(c, d)
				if delta < -twoOptEpsilon {
					reverseInts(tour[i+1 : j+1])
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}
	return nil
}

func reverseInts(s []int) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// rotateTowards rotates the cyclic tour so its last stop is the one closest to
// any stop of next.
func rotateTowards(centers []geo.Point, tour, next []int) []int {
	if len(tour) < 2 || len(next) == 0 {
		return tour
	}
	best, bestDist := 0, math.Inf(1)
	for k, i := range tour {
		for _, j := range next {
			if d := geo.Distance(centers[i], centers[j]); d < bestDist {
				best, bestDist = k, d
			}
		}
	}
	out := make([]int, 0, len(tour))
	out = append(out, tour[best+1:]...)
	return append(out, tour[:best+1]...)
}
