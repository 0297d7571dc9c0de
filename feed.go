package gtfsrt

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	gtfsproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"

	"transitboard.dev/gtfsrt/parse"
)

const (
	DefaultFeedTimeout = 20 * time.Second
	DefaultFeedMaxSize = 1 << 20 // 1 MB

	// The header carrying the API key, unless configured otherwise.
	DefaultAPIKeyHeader = "Authorization"
)

type FeedErrorKind int

const (
	// The request never completed (DNS, connect, timeout, ...).
	FeedErrorNetwork FeedErrorKind = iota

	// The server responded with something other than 200.
	FeedErrorStatus

	// The response body was not a valid FeedMessage.
	FeedErrorParse
)

func (k FeedErrorKind) String() string {
	switch k {
	case FeedErrorNetwork:
		return "network"
	case FeedErrorStatus:
		return "http_status"
	case FeedErrorParse:
		return "parse"
	}
	return "unknown"
}

// FeedError is how any realtime fetch failure surfaces. Failures are
// per-cycle: there is no automatic retry, the caller decides what to
// do with stale data.
type FeedError struct {
	Kind       FeedErrorKind
	Label      string
	StatusCode int
	Err        error
}

func (e *FeedError) Error() string {
	if e.Kind == FeedErrorStatus {
		return fmt.Sprintf("fetching %s: status %d", e.Label, e.StatusCode)
	}
	return fmt.Sprintf("fetching %s: %s: %v", e.Label, e.Kind, e.Err)
}

func (e *FeedError) Unwrap() error {
	return e.Err
}

// FeedClient fetches and decodes GTFS-RT protobuf feeds. Stateless
// per invocation; the same client serves both the trip update and the
// vehicle position feed.
type FeedClient struct {
	client  *http.Client
	headers map[string]string
	logger  *slog.Logger
}

// NewFeedClient builds a client attaching apiKey under headerName on
// every request. An empty apiKey means no auth header. An empty
// headerName falls back to DefaultAPIKeyHeader.
func NewFeedClient(apiKey, headerName string, logger *slog.Logger) *FeedClient {
	var headers map[string]string
	if apiKey != "" {
		if headerName == "" {
			headerName = DefaultAPIKeyHeader
		}
		headers = map[string]string{headerName: apiKey}
	}

	return &FeedClient{
		client:  &http.Client{Timeout: DefaultFeedTimeout},
		headers: headers,
		logger:  logger,
	}
}

// Fetch performs a bounded-timeout GET and decodes the body as a
// GTFS-RT FeedMessage. The label only serves diagnostics.
func (c *FeedClient) Fetch(ctx context.Context, url string, label string) (*gtfsproto.FeedMessage, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, &FeedError{Kind: FeedErrorNetwork, Label: label, Err: err}
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("feed request failed", "feed", label, "error", err)
		return nil, &FeedError{Kind: FeedErrorNetwork, Label: label, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("feed returned bad status", "feed", label, "status", resp.StatusCode)
		return nil, &FeedError{Kind: FeedErrorStatus, Label: label, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, DefaultFeedMaxSize))
	if err != nil {
		return nil, &FeedError{Kind: FeedErrorNetwork, Label: label, Err: err}
	}

	feed, err := parse.DecodeFeed(body)
	if err != nil {
		c.logger.Error("feed failed to decode", "feed", label, "error", err)
		return nil, &FeedError{Kind: FeedErrorParse, Label: label, Err: err}
	}

	c.logger.Debug("feed updated", "feed", label, "entities", len(feed.GetEntity()))

	return feed, nil
}
