// Package adjutor checks identities against the Adjutor karma blacklist.
package adjutor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"wallet_ledger/internal/metrics"
)

var errUnexpectedResponse = errors.New("unexpected karma response shape")

type karmaResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    *struct {
		KarmaIdentity      string `json:"karma_identity"`
		AmountInContention any    `json:"amount_in_contention"`
		Reason             string `json:"reason"`
		DefaultDate        string `json:"default_date"`
	} `json:"data"`
}

type Client struct {
	baseURL    string
	apiKey     string
	failOpen   bool
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL, apiKey string, timeout time.Duration, failOpen bool, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		failOpen:   failOpen,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// IsFlagged reports whether identity is on the blacklist. It never returns an
// error: when no definite answer is available the failure policy decides.
func (c *Client) IsFlagged(ctx context.Context, identity string) bool {
	flagged, err := c.lookup(ctx, identity)
	if err != nil {
		c.logger.Error("Adjutor lookup failed",
			slog.String("identity", identity),
			slog.Any("err", err),
		)
		metrics.RecordIdentityCheck("unavailable")
		return c.verdictOnFailure()
	}
	if flagged {
		metrics.RecordIdentityCheck("flagged")
	} else {
		metrics.RecordIdentityCheck("clear")
	}
	return flagged
}

// verdictOnFailure is the single place the fail-open/fail-closed policy lives.
func (c *Client) verdictOnFailure() bool {
	return !c.failOpen
}

func (c *Client) lookup(ctx context.Context, identity string) (bool, error) {
	endpoint := c.baseURL + "/verification/karma/" + url.PathEscape(identity)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("call adjutor: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode == http.StatusOK:
		var body karmaResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return false, fmt.Errorf("decode karma response: %w", err)
		}
		if body.Data == nil {
			return false, errUnexpectedResponse
		}
		c.logger.Warn("Identity found on karma blacklist",
			slog.String("identity", identity),
			slog.String("reason", body.Data.Reason),
			slog.Any("amount_in_contention", body.Data.AmountInContention),
		)
		return true, nil
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("adjutor status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
}
