// Package export writes finalized session metrics as CSV, JSON or YAML.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/verte-zerg/mtpe/internal/model"
)

// Format selects the output encoding.
type Format string

const (
	CSV  Format = "csv"
	JSON Format = "json"
	YAML Format = "yaml"
)

// ParseFormat converts user input into a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case CSV, JSON, YAML:
		return f, nil
	case "yml":
		return YAML, nil
	default:
		return "", fmt.Errorf("unknown export format %q (want csv, json or yaml)", s)
	}
}

// Row is the exported shape of one finalized segment.
type Row struct {
	SegmentID      int      `json:"segment_id" yaml:"segment_id"`
	Source         string   `json:"source" yaml:"source"`
	MT             string   `json:"mt" yaml:"mt"`
	Edited         string   `json:"edited" yaml:"edited"`
	EditTime       float64  `json:"edit_time" yaml:"edit_time"`
	IdleTime       float64  `json:"idle_time" yaml:"idle_time"`
	PauseCount     int      `json:"pause_count" yaml:"pause_count"`
	Insertions     int      `json:"insertions" yaml:"insertions"`
	Deletions      int      `json:"deletions" yaml:"deletions"`
	CharInsertions int      `json:"char_insertions" yaml:"char_insertions"`
	CharDeletions  int      `json:"char_deletions" yaml:"char_deletions"`
	BLEU           *float64 `json:"bleu,omitempty" yaml:"bleu,omitempty"`
	CHRF           *float64 `json:"chrf,omitempty" yaml:"chrf,omitempty"`
	TER            *float64 `json:"ter,omitempty" yaml:"ter,omitempty"`
	NoTimeRecorded bool     `json:"no_time_recorded,omitempty" yaml:"no_time_recorded,omitempty"`
}

// Document is the JSON/YAML envelope.
type Document struct {
	SessionID  string     `json:"session_id" yaml:"session_id"`
	Operator   string     `json:"operator,omitempty" yaml:"operator,omitempty"`
	Mode       model.Mode `json:"mode" yaml:"mode"`
	CreatedAt  time.Time  `json:"created_at" yaml:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	Segments   []Row      `json:"segments" yaml:"segments"`
}

// NewDocument builds the export document from a session; unfinalized
// segments are skipped.
func NewDocument(state model.SessionState) Document {
	doc := Document{
		SessionID:  state.ID,
		Operator:   state.Operator,
		Mode:       state.Mode,
		CreatedAt:  state.CreatedAt,
		FinishedAt: state.FinishedAt,
		Segments:   []Row{},
	}
	for _, m := range state.Metrics {
		if m == nil {
			continue
		}
		doc.Segments = append(doc.Segments, NewRow(*m))
	}
	return doc
}

// NewRow converts a metric into its exported shape.
func NewRow(m model.EditMetric) Row {
	row := Row{
		SegmentID:      m.SegmentID,
		Source:         m.Source,
		MT:             m.MT,
		Edited:         m.Edited,
		EditTime:       m.EditTime,
		IdleTime:       m.IdleTime,
		PauseCount:     m.PauseCount,
		Insertions:     m.Insertions,
		Deletions:      m.Deletions,
		CharInsertions: m.CharInsertions,
		CharDeletions:  m.CharDeletions,
		NoTimeRecorded: m.NoTimeRecorded,
	}
	if q := m.Quality; q != nil {
		bleu, chrf, ter := q.BLEU, q.CHRF, q.TER
		row.BLEU, row.CHRF, row.TER = &bleu, &chrf, &ter
	}
	return row
}

// Write encodes the session in the requested format.
func Write(w io.Writer, format Format, state model.SessionState) error {
	doc := NewDocument(state)
	switch format {
	case CSV:
		return writeCSV(w, doc.Segments)
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

var csvHeader = []string{
	"segment_id", "source", "mt", "edited",
	"edit_time", "idle_time", "pause_count",
	"insertions", "deletions", "char_insertions", "char_deletions",
	"bleu", "chrf", "ter", "no_time_recorded",
}

func writeCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{
			strconv.Itoa(r.SegmentID),
			r.Source,
			r.MT,
			r.Edited,
			formatFloat(&r.EditTime),
			formatFloat(&r.IdleTime),
			strconv.Itoa(r.PauseCount),
			strconv.Itoa(r.Insertions),
			strconv.Itoa(r.Deletions),
			strconv.Itoa(r.CharInsertions),
			strconv.Itoa(r.CharDeletions),
			formatFloat(r.BLEU),
			formatFloat(r.CHRF),
			formatFloat(r.TER),
			strconv.FormatBool(r.NoTimeRecorded),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// formatFloat leaves missing scores empty.
func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
