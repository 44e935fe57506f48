package quality

import (
	"slices"

	"github.com/verte-zerg/mtpe/internal/editdist"
)

const (
	maxShiftSpan       = 10
	maxShiftDistance   = 50
	maxShiftCandidates = 1000
	terBeam            = 25
)

// terEdits returns shifts plus the remaining word edit distance.
// Shifts are applied greedily while they lower the distance.
func terEdits(hyp, ref []string) int {
	if len(ref) == 0 {
		return len(hyp)
	}
	cur := slices.Clone(hyp)
	best := editdist.Distance(cur, ref)
	shifts := 0
	for best > 0 && shifts < len(hyp) {
		next := bestShift(cur, ref, best)
		if next == nil {
			break
		}
		cur = next
		best = editdist.Distance(cur, ref)
		shifts++
	}
	return shifts + best
}

// terAlignment marks which words take part in an edit and where each
// reference word sits in the hypothesis.
type terAlignment struct {
	hypErr   []bool
	refErr   []bool
	refToHyp []int
}

func alignWords(hyp, ref []string) terAlignment {
	a := terAlignment{
		hypErr:   make([]bool, len(hyp)),
		refErr:   make([]bool, len(ref)),
		refToHyp: make([]int, len(ref)),
	}
	h, r := -1, -1
	for _, op := range editdist.Align(hyp, ref) {
		switch op.Kind {
		case editdist.Equal:
			h++
			r++
			a.refToHyp[r] = h
		case editdist.Substitute:
			h++
			r++
			a.refToHyp[r] = h
			a.hypErr[h] = true
			a.refErr[r] = true
		case editdist.Delete:
			h++
			a.hypErr[h] = true
		case editdist.Insert:
			r++
			a.refToHyp[r] = h
			a.refErr[r] = true
		}
	}
	return a
}

// bestShift returns the shifted hypothesis with the lowest distance below
// limit, or nil. Only phrases containing an error that also occur at an
// erroneous reference position are moved, and only to the slots next to
// where that reference position aligns.
func bestShift(cur, ref []string, limit int) []string {
	al := alignWords(cur, ref)
	var bestSeq []string
	bestDist := limit
	tried := 0
	for start := range cur {
		lo := max(0, start-maxShiftDistance)
		hi := min(len(ref)-1, start+maxShiftDistance)
		for refStart := lo; refStart <= hi; refStart++ {
			for span := 1; span <= maxShiftSpan && start+span <= len(cur) && refStart+span <= len(ref); span++ {
				if cur[start+span-1] != ref[refStart+span-1] {
					break
				}
				if !slices.Contains(al.hypErr[start:start+span], true) ||
					!slices.Contains(al.refErr[refStart:refStart+span], true) {
					continue
				}
				if at := al.refToHyp[refStart]; at >= start && at < start+span {
					continue
				}
				prev := -1
				for offset := -1; offset < span; offset++ {
					dest := 0
					if refStart+offset >= 0 {
						dest = al.refToHyp[refStart+offset] + 1
					}
					if dest == prev {
						continue
					}
					prev = dest
					shifted := shiftPhrase(cur, start, span, dest)
					if d := beamDistance(shifted, ref); d < bestDist {
						bestDist = d
						bestSeq = shifted
					}
					tried++
					if tried >= maxShiftCandidates {
						return bestSeq
					}
				}
			}
		}
	}
	return bestSeq
}

// shiftPhrase moves words[start:start+span] so it lands before words[target].
func shiftPhrase(words []string, start, span, target int) []string {
	phrase := words[start : start+span]
	out := make([]string, 0, len(words))
	switch {
	case target < start:
		out = append(out, words[:target]...)
		out = append(out, phrase...)
		out = append(out, words[target:start]...)
		out = append(out, words[start+span:]...)
	case target > start+span:
		out = append(out, words[:start]...)
		out = append(out, words[start+span:target]...)
		out = append(out, phrase...)
		out = append(out, words[target:]...)
	default:
		cut := min(target+span, len(words))
		out = append(out, words[:start]...)
		out = append(out, words[start+span:cut]...)
		out = append(out, phrase...)
		out = append(out, words[cut:]...)
	}
	return out
}

// beamDistance is the word edit distance restricted to a band around the
// diagonal. It never underestimates editdist.Distance.
func beamDistance(hyp, ref []string) int {
	if len(hyp) == 0 || len(ref) == 0 || abs(len(hyp)-len(ref)) > terBeam {
		return editdist.Distance(hyp, ref)
	}
	inf := len(hyp) + len(ref) + 1
	prev := make([]int, len(ref)+1)
	curr := make([]int, len(ref)+1)
	for j := range prev {
		prev[j] = j
	}
	ratio := float64(len(ref)) / float64(len(hyp))
	for i := 1; i <= len(hyp); i++ {
		diag := int(float64(i) * ratio)
		lo := max(1, diag-terBeam)
		hi := min(len(ref), diag+terBeam)
		for j := range curr {
			curr[j] = inf
		}
		curr[0] = i
		for j := lo; j <= hi; j++ {
			cost := 1
			if hyp[i-1] == ref[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j-1]+cost, prev[j]+1, curr[j-1]+1)
		}
		prev, curr = curr, prev
	}
	return prev[len(ref)]
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
