package models

// Stream frame discriminators for the comparison endpoint.
const (
	FrameSchoolsData = "schools_data"
	FrameAIChunk     = "ai_chunk"
	FrameComplete    = "complete"
)

// StreamFrame is one newline-delimited `data: {json}` frame on the
// comparison stream. Type selects which of the other fields is set.
type StreamFrame struct {
	Type         string       `json:"type"`
	SchoolsData  []SchoolData `json:"schools_data,omitempty"`
	Text         string       `json:"text,omitempty"`
	ComparisonID string       `json:"comparison_id,omitempty"`
}
