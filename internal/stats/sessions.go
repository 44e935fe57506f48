package stats

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/verte-zerg/mtpe/internal/model"
)

// RenderSessionList prints stored sessions with relative timestamps.
func RenderSessionList(w io.Writer, sessions []model.SessionSummary, now time.Time) error {
	if len(sessions) == 0 {
		_, err := fmt.Fprintln(w, "No sessions found.")
		return err
	}
	headers := []string{"ID", "Operator", "Mode", "Progress", "Active", "Updated", "Status"}
	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		status := "open"
		if s.FinishedAt != nil {
			status = "finished " + humanize.RelTime(*s.FinishedAt, now, "ago", "from now")
		}
		operator := s.Operator
		if operator == "" {
			operator = "-"
		}
		rows = append(rows, []string{
			s.ID,
			operator,
			string(s.Mode),
			fmt.Sprintf("%d/%d", s.Completed, s.SegmentCount),
			formatMs(s.ActiveMs),
			humanize.RelTime(s.UpdatedAt, now, "ago", "from now"),
			status,
		})
	}
	for _, line := range formatTable(headers, rows, map[int]bool{3: true, 4: true}) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
