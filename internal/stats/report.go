package stats

import (
	"context"
	"fmt"
	"io"

	"github.com/verte-zerg/mtpe/internal/model"
	"github.com/verte-zerg/mtpe/internal/store"
)

// Report contains precomputed data for stats rendering.
type Report struct {
	Session    model.SessionState
	Summary    Summary
	TopEffort  []int
	HeavyEdits map[int]struct{}
}

// BuildReport loads the requested session, or the most recent one matching
// the config, and prepares it for rendering.
func BuildReport(ctx context.Context, st *store.Store, cfg model.ReportConfig) (Report, error) {
	id := cfg.SessionID
	if id == "" {
		sessions, err := st.ListSessions(ctx, cfg)
		if err != nil {
			return Report{}, err
		}
		if len(sessions) == 0 {
			return Report{}, store.ErrNotFound
		}
		id = sessions[0].ID
	}
	state, err := st.LoadSession(ctx, id)
	if err != nil {
		return Report{}, err
	}
	top := cfg.Top
	if top <= 0 {
		top = 5
	}
	return Report{
		Session:    state,
		Summary:    Summarize(state.Metrics),
		TopEffort:  TopSegmentsByEffort(state.Metrics, top),
		HeavyEdits: SelectHeavyEdits(state.Metrics, top),
	}, nil
}

// RenderReport prints the header, summary, segment table and curves.
func RenderReport(w io.Writer, r Report, window, totalWidth int, useColor bool) error {
	s := r.Session
	if _, err := fmt.Fprintf(w, "Session %s (%s mode", s.ID, s.Mode); err != nil {
		return err
	}
	if s.Operator != "" {
		if _, err := fmt.Fprintf(w, ", operator %s", s.Operator); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(w, ")"); err != nil {
		return err
	}
	if err := RenderSummary(w, r.Summary); err != nil {
		return err
	}
	if len(r.TopEffort) > 0 {
		labels := make([]string, len(r.TopEffort))
		for i, id := range r.TopEffort {
			labels[i] = fmt.Sprintf("#%d", id+1)
		}
		if _, err := fmt.Fprintf(w, "Most effort: %v\n\n", labels); err != nil {
			return err
		}
	}
	if err := RenderSegmentTable(w, s.Metrics, r.HeavyEdits); err != nil {
		return err
	}
	return RenderCurvesWithSize(w, s.Metrics, window, totalWidth, 10, useColor)
}
