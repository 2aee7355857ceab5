// Package rest pulls conversation snapshots over the HTTP API. It backs
// the sync controller when the socket cannot serve a snapshot, and the
// warm-start refresh before the first connect.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/fitpulse/fitchat/internal/socket"
	"github.com/fitpulse/fitchat/internal/wire"
)

const (
	requestTimeout = 10 * time.Second
	maxElapsed     = 30 * time.Second
)

// Client fetches snapshots from the chat API.
type Client struct {
	baseURL  string
	identity socket.Identity
	http     *http.Client
	logger   *zap.Logger
}

// New creates a snapshot client for the given API base URL.
func New(baseURL string, identity socket.Identity, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:  baseURL,
		identity: identity,
		http:     &http.Client{Timeout: requestTimeout},
		logger:   logger,
	}
}

// History fetches one conversation's message window.
func (c *Client) History(ctx context.Context, peerID string, limit, offset int) (wire.ConversationHistory, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	path := fmt.Sprintf("/api/conversations/%s/messages?%s", url.PathEscape(peerID), q.Encode())

	var msgs []wire.Message
	if err := c.get(ctx, path, &msgs); err != nil {
		return wire.ConversationHistory{}, err
	}
	return wire.ConversationHistory{PeerID: peerID, Messages: msgs}, nil
}

// List fetches the conversation summaries.
func (c *Client) List(ctx context.Context) (wire.ConversationsList, error) {
	var convs []wire.ConversationSummary
	if err := c.get(ctx, "/api/conversations", &convs); err != nil {
		return wire.ConversationsList{}, err
	}
	return wire.ConversationsList{Conversations: convs}, nil
}

// get performs an authenticated GET with exponential backoff on transient
// failures. A 4xx response fails immediately; the token will not get
// better on retry.
func (c *Client) get(ctx context.Context, path string, out any) error {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = maxElapsed

	return backoff.Retry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.identity.Token())
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			c.logger.Debug("snapshot request failed", zap.String("path", path), zap.Error(err))
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return backoff.Permanent(&StatusError{Path: path, Code: resp.StatusCode})
		default:
			c.logger.Debug("snapshot request rejected",
				zap.String("path", path), zap.Int("status", resp.StatusCode))
			return &StatusError{Path: path, Code: resp.StatusCode}
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode snapshot %s: %w", path, err))
		}
		return nil
	}, backoff.WithContext(policy, ctx))
}

// StatusError reports a non-200 API response.
type StatusError struct {
	Path string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("rest: %s returned %d", e.Path, e.Code)
}
