package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const realtimeVoice = "alloy"

// RealtimeClient mints ephemeral realtime-session credentials. The audio
// transport itself is handled entirely by the caller; this only exchanges
// assembled instructions for a short-lived token payload.
type RealtimeClient struct {
	BaseURL string
	APIKey  string
	Model   string
	Client  *http.Client
}

func NewRealtimeClient(baseURL, apiKey, model string) *RealtimeClient {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &RealtimeClient{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type realtimeSessionReq struct {
	Model        string `json:"model"`
	Voice        string `json:"voice"`
	Instructions string `json:"instructions"`
}

// CreateEphemeralSession returns the raw upstream session payload (client
// secret, model, expiry) so the transport layer can hand it to the browser
// untouched. Upstream failures keep their status via UpstreamError.
func (c *RealtimeClient) CreateEphemeralSession(ctx context.Context, instructions string) (json.RawMessage, error) {
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, errors.New("realtime: api key is required")
	}

	b, err := json.Marshal(realtimeSessionReq{
		Model:        c.Model,
		Voice:        realtimeVoice,
		Instructions: instructions,
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/realtime/sessions", strings.TrimRight(c.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("OpenAI-Beta", "realtime=v1")

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, upstreamFromResponse(resp)
	}

	var payload json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	return payload, nil
}
