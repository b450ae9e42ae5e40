package cluster

import "container/heap"

type coverEntry struct {
	candidate int
	gain      int
	size      int
}

// coverHeap orders by gain desc, coverage size desc, candidate index asc
type coverHeap []coverEntry

func (h coverHeap) Len() int { return len(h) }
func (h coverHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.gain != b.gain {
		return a.gain > b.gain
	}
	if a.size != b.size {
		return a.size > b.size
	}
	return a.candidate < b.candidate
}
func (h coverHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *coverHeap) Push(x any)   { *h = append(*h, x.(coverEntry)) }
func (h *coverHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Greedy selects candidates by maximum marginal gain until no candidate
// covers an unseen point. Stale gains are upper bounds, so an entry whose
// recomputed gain is unchanged is the true maximum. The |Unique| sequence of
// the result is non-increasing and every point lands in at most one Unique.
func Greedy(candidates []Candidate, numPoints int) []Cluster {
	covered := make([]bool, numPoints)
	h := make(coverHeap, 0, len(candidates))
	for i, c := range candidates {
		if len(c.All) > 0 {
			h = append(h, coverEntry{candidate: i, gain: len(c.All), size: len(c.All)})
		}
	}
	heap.Init(&h)

	var clusters []Cluster
	for h.Len() > 0 {
		top := heap.Pop(&h).(coverEntry)
		all := candidates[top.candidate].All

		gain := 0
		for _, i := range all {
			if !covered[i] {
				gain++
			}
		}
		if gain == 0 {
			continue
		}
		if gain < top.gain {
			top.gain = gain
			heap.Push(&h, top)
			continue
		}

		unique := make([]int, 0, gain)
		for _, i := range all {
			if !covered[i] {
				covered[i] = true
				unique = append(unique, i)
			}
		}
		clusters = append(clusters, Cluster{
			Center: candidates[top.candidate].Center,
			All:    all,
			Unique: unique,
		})
	}
	return clusters
}
