package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// WorldInfoProvider returns keyword-triggered text snippets folded
// into the prompt. It is consumed only inside the generator.
type WorldInfoProvider interface {
	Snippets(ctx context.Context, roomExternalId, text string) ([]string, error)
}

// NoopWorldInfo is used when no world-info service is configured.
type NoopWorldInfo struct{}

func (NoopWorldInfo) Snippets(ctx context.Context, roomExternalId, text string) ([]string, error) {
	return nil, nil
}

type HTTPWorldInfo struct {
	url    string
	client *http.Client
}

func NewHTTPWorldInfo(url string) *HTTPWorldInfo {
	return &HTTPWorldInfo{url: url, client: http.DefaultClient}
}

func (w *HTTPWorldInfo) Snippets(ctx context.Context, roomExternalId, text string) ([]string, error) {
	body, err := json.Marshal(map[string]string{
		"room_id": roomExternalId,
		"text":    text,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("world info request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("world info request: status %d", resp.StatusCode)
	}

	var payload struct {
		Snippets []string `json:"snippets"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode world info response: %w", err)
	}

	return payload.Snippets, nil
}
