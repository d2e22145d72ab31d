package spectra

// findPeaks locates well-separated local maxima in y. threshold is
// relative: a candidate must rise above min(y) + threshold*(max(y)-min(y)).
// minDist is the minimum index separation between kept peaks; when two
// candidates are closer, the taller one wins. Returned indices are sorted.
func findPeaks(y []float64, threshold float64, minDist int) []int {
	if len(y) < 3 {
		return nil
	}
	lo, hi := y[0], y[0]
	for _, v := range y[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if hi == lo {
		return nil
	}
	cut := lo + threshold*(hi-lo)

	var candidates []int
	for i := 1; i < len(y)-1; i++ {
		if y[i] <= cut {
			continue
		}
		if y[i] > y[i-1] && y[i] >= y[i+1] {
			candidates = append(candidates, i)
		}
	}
	if minDist <= 1 || len(candidates) < 2 {
		return candidates
	}

	// Greedy suppression: visit candidates tallest first, drop any peak
	// within minDist of one already kept.
	order := make([]int, len(candidates))
	copy(order, candidates)
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && y[order[j]] > y[order[j-1]]; j-- {
			order[j], order[j-1] = order[j-1], order[j]
		}
	}

	kept := make(map[int]bool)
	for _, idx := range order {
		ok := true
		for k := range kept {
			if abs(idx-k) < minDist {
				ok = false
				break
			}
		}
		if ok {
			kept[idx] = true
		}
	}

	out := make([]int, 0, len(kept))
	for _, idx := range candidates {
		if kept[idx] {
			out = append(out, idx)
		}
	}
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
