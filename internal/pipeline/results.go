package pipeline

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/birdseye/internal/geometry"
)

// ToJSON serializes results (a frame, frames or sequences) to pretty JSON.
func ToJSON(v any) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToYAML serializes results to YAML.
func ToYAML(v any) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ToTextFrame renders a one-line human readable summary of a frame.
func ToTextFrame(res *FrameResult) (string, error) {
	if res == nil {
		return "", errors.New("nil result")
	}
	var sb strings.Builder
	name := res.Name
	if name == "" {
		name = "#" + strconv.Itoa(res.Index)
	}
	fmt.Fprintf(&sb, "%s: %s (%d segments)", name, res.Status, res.Segments)
	if res.Lane.Found {
		fmt.Fprintf(&sb, " left=%s right=%s", res.Lane.Left, res.Lane.Right)
	}
	if res.Transform != nil {
		r := res.Transform.Rows()
		fmt.Fprintf(&sb, "\n  H = [%s; %s; %s]", formatRow(r[0]), formatRow(r[1]), formatRow(r[2]))
	}
	if res.Error != "" {
		fmt.Fprintf(&sb, "\n  error: %s", res.Error)
	}
	return sb.String(), nil
}

// ToText renders frame summaries, one block per frame.
func ToText(results []*FrameResult) (string, error) {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		if r == nil {
			continue
		}
		s, err := ToTextFrame(r)
		if err != nil {
			return "", err
		}
		lines = append(lines, s)
	}
	return strings.Join(lines, "\n"), nil
}

// ToTextSequences renders every sequence with its frames and stats.
func ToTextSequences(seqs []*SequenceResult) (string, error) {
	var sb strings.Builder
	for i, s := range seqs {
		if s == nil {
			continue
		}
		if i > 0 {
			sb.WriteString("\n\n")
		}
		st := s.Stats
		fmt.Fprintf(&sb, "== %s (%d frames: %d rectified, %d no lane, %d degenerate, %d reused, %d resets)\n",
			s.Name, st.Frames, st.Rectified, st.NoLane, st.Degenerate, st.Reused, st.Resets)
		body, err := ToText(s.Frames)
		if err != nil {
			return "", err
		}
		sb.WriteString(body)
		for _, e := range s.Errors {
			fmt.Fprintf(&sb, "\n  error: %s", e)
		}
	}
	return sb.String(), nil
}

var csvHeader = []string{
	"session_id", "index", "name", "status", "segments",
	"left_x1", "left_y1", "left_x2", "left_y2",
	"right_x1", "right_y1", "right_x2", "right_y2",
	"parallelism",
	"h00", "h01", "h02", "h10", "h11", "h12", "h20", "h21", "h22",
	"error",
}

// ToCSV exports one row per frame with the selected lines and transform.
// Columns without a value are left empty.
func ToCSV(results []*FrameResult) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(csvHeader)
	for _, r := range results {
		if r == nil {
			continue
		}
		row := []string{r.SessionID, strconv.Itoa(r.Index), r.Name, string(r.Status), strconv.Itoa(r.Segments)}
		row = append(row, segmentCells(r.Lane.Left, r.Lane.Found)...)
		row = append(row, segmentCells(r.Lane.Right, r.Lane.Found)...)
		if r.Lane.FoundLeft && r.Lane.FoundRight {
			row = append(row, formatFloat(r.Lane.Parallelism))
		} else {
			row = append(row, "")
		}
		for i := range 9 {
			if r.Transform != nil {
				row = append(row, formatFloat(r.Transform[i]))
			} else {
				row = append(row, "")
			}
		}
		row = append(row, r.Error)
		_ = w.Write(row)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// SequenceFrames flattens the frame results of all sequences.
func SequenceFrames(seqs []*SequenceResult) []*FrameResult {
	var out []*FrameResult
	for _, s := range seqs {
		if s != nil {
			out = append(out, s.Frames...)
		}
	}
	return out
}

func segmentCells(s geometry.Segment, ok bool) []string {
	if !ok {
		return []string{"", "", "", ""}
	}
	return []string{
		formatFloat(s.Begin.X), formatFloat(s.Begin.Y),
		formatFloat(s.End.X), formatFloat(s.End.Y),
	}
}

func formatRow(r [3]float64) string {
	return formatFloat(r[0]) + " " + formatFloat(r[1]) + " " + formatFloat(r[2])
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}
