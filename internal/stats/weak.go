package stats

import (
	"sort"

	"github.com/verte-zerg/mtpe/internal/model"
)

// SelectHeavyEdits selects the segments whose MT needed the most rewriting,
// by lowest CHRF. Segments without scores are ignored.
func SelectHeavyEdits(metrics []*model.EditMetric, top int) map[int]struct{} {
	heavy := map[int]struct{}{}
	candidates := make([]*model.EditMetric, 0, len(metrics))
	for _, m := range metrics {
		if m != nil && m.Quality != nil && m.Modified() {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 {
		return heavy
	}
	sort.Slice(candidates, func(i, j int) bool {
		ci := candidates[i].Quality.CHRF
		cj := candidates[j].Quality.CHRF
		if ci == cj {
			return candidates[i].SegmentID < candidates[j].SegmentID
		}
		return ci < cj
	})
	if top <= 0 || top > len(candidates) {
		top = len(candidates)
	}
	for i := 0; i < top; i++ {
		heavy[candidates[i].SegmentID] = struct{}{}
	}
	return heavy
}
