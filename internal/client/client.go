// Package client submits instructions to a running creator agent and reads
// back its progress stream.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jcmexdev/multihop-creator/internal/api-gateway/infra/httpx/middlewares"
	"github.com/jcmexdev/multihop-creator/internal/tracking"
)

// Message is one decoded server-sent event.
type Message struct {
	Event tracking.EventType
	Data  json.RawMessage
}

// Terminal reports whether no further messages follow m.
func (m Message) Terminal() bool {
	return m.Event == tracking.EventAllComplete || m.Event == tracking.EventError
}

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// Submit posts the instruction and calls onMessage for each event until the
// stream ends. It returns the last message received.
func (c *Client) Submit(ctx context.Context, instruction, idempotencyKey string, onMessage func(Message)) (Message, error) {
	body, err := json.Marshal(map[string]string{"instruction": instruction})
	if err != nil {
		return Message{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/create-job", bytes.NewReader(body))
	if err != nil {
		return Message{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if idempotencyKey != "" {
		req.Header.Set(middlewares.HeaderXIdempotencyKey, idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Message{}, fmt.Errorf("post create-job: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Message{}, fmt.Errorf("create-job returned %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}

	var last Message
	err = Read(resp.Body, func(m Message) bool {
		last = m
		if onMessage != nil {
			onMessage(m)
		}
		return !m.Terminal()
	})
	return last, err
}

// Read parses a text/event-stream body, calling fn per event until fn
// returns false or r is exhausted. Comment lines are skipped.
func Read(r io.Reader, fn func(Message) bool) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		event string
		data  []string
	)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if len(data) == 0 {
				event = ""
				continue
			}
			m := Message{Event: tracking.EventType(event), Data: json.RawMessage(strings.Join(data, "\n"))}
			event, data = "", nil
			if !fn(m) {
				return nil
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read event stream: %w", err)
	}
	return nil
}
