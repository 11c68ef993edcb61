package model

import "strings"

// ExtractedContent is the output of the extraction stage.
type ExtractedContent struct {
	URL           string `json:"url"`
	Title         string `json:"title"`
	Text          string `json:"text"`
	WordCount     int    `json:"word_count"`
	CoverImageURL string `json:"cover_image_url,omitempty"`
	// Stub is set when every fetch strategy failed and the content is a
	// placeholder built from the URL alone. Stub content still flows through
	// the rest of the pipeline.
	Stub bool `json:"stub"`
}

// CountWords returns the number of whitespace-separated tokens in s.
func CountWords(s string) int {
	return len(strings.Fields(s))
}

// TruncateWords returns s cut to at most max words. It never adds an
// ellipsis; the caller decides presentation.
func TruncateWords(s string, max int) string {
	if max <= 0 {
		return ""
	}
	fields := strings.Fields(s)
	if len(fields) <= max {
		return s
	}
	return strings.Join(fields[:max], " ")
}

// AudioArtifact is the output of the audio rendering stage.
type AudioArtifact struct {
	Data        []byte `json:"-"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	// SpokenTranscript is the exact text rendered to speech, including the
	// preamble line.
	SpokenTranscript string `json:"spoken_transcript"`
}
