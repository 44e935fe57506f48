package stats

import (
	"sort"

	"github.com/verte-zerg/mtpe/internal/model"
)

// TopSegmentsByEffort returns the IDs of the n segments with the most active time.
func TopSegmentsByEffort(metrics []*model.EditMetric, n int) []int {
	done := Finalized(metrics)
	if n <= 0 || len(done) == 0 {
		return nil
	}
	sort.SliceStable(done, func(i, j int) bool {
		if done[i].EditTime == done[j].EditTime {
			return done[i].SegmentID < done[j].SegmentID
		}
		return done[i].EditTime > done[j].EditTime
	})
	n = min(n, len(done))
	out := make([]int, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, done[i].SegmentID)
	}
	return out
}
