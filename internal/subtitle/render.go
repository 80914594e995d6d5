// Package subtitle renders transcription segments into the two output
// formats offered for download: plain text and SubRip (SRT).
package subtitle

import (
	"fmt"
	"math"
	"strings"

	"github.com/whisper-web/backend/internal/transcribe"
)

// FormatTimestamp converts seconds into the SRT timecode form
// HH:MM:SS,mmm (comma separator, 3-digit milliseconds).
func FormatTimestamp(seconds float64) string {
	if math.IsNaN(seconds) || seconds < 0 {
		seconds = 0
	}
	ms := int64(math.Round(seconds * 1000))
	hours := ms / 3_600_000
	ms %= 3_600_000
	minutes := ms / 60_000
	ms %= 60_000
	secs := ms / 1000
	ms %= 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, ms)
}

// RenderSRT produces an SRT document: 1-based index, timecode line, text,
// blank line between blocks. Segments are emitted in the order given.
func RenderSRT(segments []transcribe.Segment) string {
	if len(segments) == 0 {
		return ""
	}

	var sb strings.Builder
	for i, seg := range segments {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(fmt.Sprintf("%d\n", i+1))
		sb.WriteString(FormatTimestamp(seg.Start))
		sb.WriteString(" --> ")
		sb.WriteString(FormatTimestamp(seg.End))
		sb.WriteString("\n")
		sb.WriteString(strings.TrimSpace(seg.Text))
		sb.WriteString("\n")
	}
	return sb.String()
}

// RenderText produces the plain transcript: segment texts joined with single
// spaces in time order.
func RenderText(segments []transcribe.Segment) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, " ")
}
