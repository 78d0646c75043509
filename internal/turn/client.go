package turn

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/eleven-am/voice-client/internal/narration"
	"github.com/eleven-am/voice-client/internal/shared"
)

const (
	defaultTurnTimeout  = 60 * time.Second
	defaultChunkTimeout = 30 * time.Second
)

type ClientConfig struct {
	BaseURL      string
	TurnTimeout  time.Duration
	ChunkTimeout time.Duration
	HTTPClient   *http.Client
}

// Client talks to the conversational service: one multipart upload per
// voice turn, one JSON POST per narration chunk.
type Client struct {
	baseURL      string
	turnTimeout  time.Duration
	chunkTimeout time.Duration
	http         *http.Client
	log          *slog.Logger
}

func NewClient(cfg ClientConfig, log *slog.Logger) *Client {
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = defaultTurnTimeout
	}
	if cfg.ChunkTimeout <= 0 {
		cfg.ChunkTimeout = defaultChunkTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL:      cfg.BaseURL,
		turnTimeout:  cfg.TurnTimeout,
		chunkTimeout: cfg.ChunkTimeout,
		http:         cfg.HTTPClient,
		log:          log,
	}
}

// SendTurn uploads one encoded recording and returns the structured reply.
func (c *Client) SendTurn(ctx context.Context, encodedClip, sessionID, userID string) (*TurnResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.turnTimeout)
	defer cancel()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	fields := map[string]string{
		"sessionId":   sessionID,
		"userId":      userID,
		"audioBase64": encodedClip,
	}
	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("write field %s: %w", name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+turnPath, &body)
	if err != nil {
		return nil, fmt.Errorf("build turn request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send turn: %w: %v", shared.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, &shared.ServerError{Code: resp.StatusCode}
	}

	var tr TurnResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("decode turn response: %w", err)
	}
	if tr.Status != statusSuccess {
		return nil, &shared.ProcessingError{Message: tr.ResponseText}
	}

	return &tr, nil
}

// FetchChunk requests the audio for one narration chunk. It implements
// narration.Fetcher, so the context carries the session's cancellation
// token.
func (c *Client) FetchChunk(ctx context.Context, req narration.ChunkRequest) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.chunkTimeout)
	defer cancel()

	payload, err := json.Marshal(chunkAudioRequest{
		Text:           req.Text,
		ChunkID:        req.ChunkID,
		UserID:         req.UserID,
		StorySessionID: req.StorySessionID,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal chunk request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chunkPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build chunk request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("fetch chunk %d: %w: %v", req.ChunkID, shared.ErrChunkFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("fetch chunk %d: status %d: %w", req.ChunkID, resp.StatusCode, shared.ErrChunkFetchFailed)
	}

	var cr chunkAudioResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("decode chunk response: %w", err)
	}
	if cr.Status != statusSuccess || cr.AudioBase64 == "" {
		return nil, fmt.Errorf("chunk %d rejected by service: %w", req.ChunkID, shared.ErrChunkFetchFailed)
	}

	audio, err := base64.StdEncoding.DecodeString(cr.AudioBase64)
	if err != nil {
		return nil, fmt.Errorf("decode chunk %d audio: %w", req.ChunkID, shared.ErrChunkFetchFailed)
	}
	return audio, nil
}
