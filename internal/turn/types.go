package turn

// Wire shapes for the conversational service. Field names follow the
// service contract, not Go conventions.

const (
	statusSuccess = "success"

	turnPath  = "/api/v1/voice/turn"
	chunkPath = "/api/v1/voice/chunk-audio"
)

type TurnResponse struct {
	Status        string        `json:"status"`
	ResponseText  string        `json:"response_text"`
	ContentType   string        `json:"content_type"`
	ResponseAudio string        `json:"response_audio,omitempty"`
	Metadata      *TurnMetadata `json:"metadata,omitempty"`
}

type TurnMetadata struct {
	StoryMode       bool              `json:"story_mode"`
	TotalChunks     int               `json:"total_chunks,omitempty"`
	TotalWords      int               `json:"total_words,omitempty"`
	RemainingChunks []ChunkDescriptor `json:"remaining_chunks,omitempty"`
}

type ChunkDescriptor struct {
	ChunkID int    `json:"chunk_id"`
	Text    string `json:"text"`
}

type chunkAudioRequest struct {
	Text           string `json:"text"`
	ChunkID        int    `json:"chunk_id"`
	UserID         string `json:"user_id"`
	StorySessionID string `json:"story_session_id"`
}

type chunkAudioResponse struct {
	Status      string `json:"status"`
	AudioBase64 string `json:"audio_base64"`
}

// IsChunked reports whether the reply is a chunked narration rather than
// a single clip.
func (r *TurnResponse) IsChunked() bool {
	return r.Metadata != nil && r.Metadata.StoryMode
}
