// Package opensearch indexes gesture history events as OpenSearch (or
// Elasticsearch) documents over the REST API.
package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/loykin/jitter/internal/history"
)

// DefaultIndex is used when the DSN names no index.
const DefaultIndex = "gesture-history"

// Sink creates one document per event with PUT {base}/{index}/_create/{id}.
// The id is derived from the event, so a resent event is reported by the
// server as a conflict and treated as already stored.
type Sink struct {
	client  *http.Client
	baseURL string
	index   string
}

func New(baseURL, index string) *Sink {
	if index == "" {
		index = DefaultIndex
	}
	return &Sink{
		client:  &http.Client{Timeout: 5 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		index:   index,
	}
}

// DocumentID identifies e within its session.
func DocumentID(e history.Event) string {
	return fmt.Sprintf("%s-%s-%d-%s-%d", e.Session, e.Category, e.GestureID, e.Type, e.OccurredAt.UnixNano())
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	u := fmt.Sprintf("%s/%s/_create/%s", s.baseURL, url.PathEscape(s.index), url.PathEscape(DocumentID(e)))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	switch {
	case resp.StatusCode == http.StatusConflict:
		return nil
	case resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("opensearch sink status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}

func (s *Sink) Name() string { return "opensearch" }
