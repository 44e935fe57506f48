package stats

import (
	"testing"

	"github.com/verte-zerg/mtpe/internal/model"
)

func TestTopSegmentsByEffort(t *testing.T) {
	metrics := []*model.EditMetric{
		{SegmentID: 0, EditTime: 4},
		nil,
		{SegmentID: 2, EditTime: 9},
		{SegmentID: 3, EditTime: 4},
	}
	top := TopSegmentsByEffort(metrics, 2)
	if len(top) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(top))
	}
	if top[0] != 2 || top[1] != 0 {
		t.Fatalf("unexpected order: %v", top)
	}
	if metrics[0].SegmentID != 0 || metrics[2].SegmentID != 2 {
		t.Fatalf("input order changed")
	}
}

func TestSelectHeavyEdits(t *testing.T) {
	metrics := []*model.EditMetric{
		{SegmentID: 0, MT: "a", Edited: "b", Quality: &model.QualityScores{CHRF: 20}},
		{SegmentID: 1, MT: "a", Edited: "a", Quality: &model.QualityScores{CHRF: 100}},
		{SegmentID: 2, MT: "a", Edited: "c", Quality: &model.QualityScores{CHRF: 60}},
		{SegmentID: 3, MT: "a", Edited: "d"},
	}
	heavy := SelectHeavyEdits(metrics, 1)
	if len(heavy) != 1 {
		t.Fatalf("expected one segment, got %v", heavy)
	}
	if _, ok := heavy[0]; !ok {
		t.Fatalf("expected segment 0, got %v", heavy)
	}
	if all := SelectHeavyEdits(metrics, 0); len(all) != 2 {
		t.Fatalf("expected both modified scored segments, got %v", all)
	}
}
