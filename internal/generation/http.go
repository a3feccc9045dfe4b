package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pbassett/roomrelay/internal/types"
)

const generateTimeout = 5 * time.Minute

// HTTPGenerator posts prompts to an external completion endpoint. One
// request per turn; world-info snippets are resolved here so the relay
// core never sees them.
type HTTPGenerator struct {
	log       *log.Logger
	url       string
	client    *http.Client
	worldInfo WorldInfoProvider
}

func NewHTTPGenerator(logger *log.Logger, url string, worldInfo WorldInfoProvider) *HTTPGenerator {
	if worldInfo == nil {
		worldInfo = NoopWorldInfo{}
	}

	return &HTTPGenerator{
		log:       logger,
		url:       url,
		client:    &http.Client{Timeout: generateTimeout},
		worldInfo: worldInfo,
	}
}

type generateRequest struct {
	AgentId   string          `json:"agent_id"`
	AgentName string          `json:"agent_name"`
	RoomId    string          `json:"room_id"`
	Continue  bool            `json:"continue"`
	Prompt    string          `json:"prompt"`
	History   []types.Message `json:"history,omitempty"`
	WorldInfo []string        `json:"world_info,omitempty"`
}

type generateResponse struct {
	Text string `json:"text"`
}

func (g *HTTPGenerator) Generate(ctx context.Context, req Request, done chan<- Result) {
	go func() {
		text, err := g.complete(ctx, req)
		done <- Result{
			MessageId: uuid.NewString(),
			Text:      text,
			Err:       err,
		}
	}()
}

func (g *HTTPGenerator) complete(ctx context.Context, req Request) (string, error) {
	snippets, err := g.worldInfo.Snippets(ctx, req.RoomExternalId, req.Prompt)
	if err != nil {
		// missing world info degrades the prompt, it doesn't fail the turn
		g.log.Println("world info:", err)
	}

	body, err := json.Marshal(generateRequest{
		AgentId:   req.Agent.Id,
		AgentName: req.Agent.DisplayName,
		RoomId:    req.RoomExternalId,
		Continue:  req.Continue,
		Prompt:    req.Prompt,
		History:   req.History,
		WorldInfo: snippets,
	})
	if err != nil {
		return "", fmt.Errorf("marshal generate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("generate request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generate request: status %d", resp.StatusCode)
	}

	var payload generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode generate response: %w", err)
	}

	return payload.Text, nil
}
