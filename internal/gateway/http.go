package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/driftline/chatsync/internal/model"
)

// HTTPClient talks to the reference gateway server's REST surface.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a gateway client for the server at baseURL.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// ListConversations fetches the conversation set.
func (c *HTTPClient) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	var out []model.Conversation
	if err := c.do(ctx, http.MethodGet, "/api/v1/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListMessages fetches the baseline messages for a conversation.
func (c *HTTPClient) ListMessages(ctx context.Context, conversationID int64) ([]model.Message, error) {
	var out []model.Message
	path := fmt.Sprintf("/api/v1/conversations/%d/messages", conversationID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateMessage posts a new message to a conversation.
func (c *HTTPClient) CreateMessage(ctx context.Context, conversationID int64, req model.CreateMessageRequest) (model.Message, error) {
	var out model.Message
	path := fmt.Sprintf("/api/v1/conversations/%d/messages", conversationID)
	if err := c.do(ctx, http.MethodPost, path, req, &out); err != nil {
		return model.Message{}, err
	}
	return out, nil
}

// UpdateReaction sets a reaction counter and returns the authoritative
// counts.
func (c *HTTPClient) UpdateReaction(ctx context.Context, messageID string, reactionType model.ReactionType, newValue int) (model.ReactionCounts, error) {
	var out model.ReactionCounts
	path := fmt.Sprintf("/api/v1/messages/%s/reactions", url.PathEscape(messageID))
	req := model.UpdateReactionRequest{Type: reactionType, Value: newValue}
	if err := c.do(ctx, http.MethodPut, path, req, &out); err != nil {
		return model.ReactionCounts{}, err
	}
	return out, nil
}

type wireError struct {
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Correlation-ID", uuid.New().String())

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var we wireError
		if err := json.NewDecoder(resp.Body).Decode(&we); err != nil {
			return fmt.Errorf("gateway returned status %d", resp.StatusCode)
		}
		return CodeToError(we.Code, we.Error)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
