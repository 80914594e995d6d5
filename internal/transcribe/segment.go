package transcribe

// Segment is one timed span of recognized speech. Times are seconds from the
// start of the media. Segments arrive from the engine in time order; that
// ordering is trusted, not re-validated.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Result is the materialized output of one transcription run.
type Result struct {
	Segments []Segment `json:"segments"`
	Language string    `json:"language"` // detected or requested language code
	Duration float64   `json:"duration"` // media duration in seconds, 0 if unknown
}
