package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bissquit/incident-impact/internal/domain"
	"github.com/gorilla/websocket"
)

const streamPath = "/api/incidents/stream"

// Subscribe opens the incident stream and calls fn with every snapshot received.
// Calls to fn are sequential. The returned func closes the stream and is safe
// to call more than once; the stream also ends when ctx is cancelled.
func (c *Client) Subscribe(ctx context.Context, fn func([]domain.Incident)) (func(), error) {
	return c.Watch(ctx, fn, nil)
}

// Watch is Subscribe with an end notification. onEnd runs once, after the last
// call to fn, whenever the stream ends: closed by the server, dropped by the
// network, unsubscribed or cancelled. err is nil when the stream was closed
// locally. onEnd is never called when Watch returns an error.
func (c *Client) Watch(ctx context.Context, fn func([]domain.Incident), onEnd func(err error)) (func(), error) {
	token := c.Token()
	if token == "" {
		return nil, ErrNotAuthenticated
	}

	streamURL, err := c.streamURL(token)
	if err != nil {
		return nil, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.httpClient.Timeout,
	}
	conn, resp, err := dialer.DialContext(ctx, streamURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("open stream: %w", &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)})
		}
		return nil, fmt.Errorf("open stream: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			cancel()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
		})
	}

	go func() {
		<-streamCtx.Done()
		unsubscribe()
	}()

	go func() {
		var readErr error
		defer func() {
			unsubscribe()
			if onEnd != nil {
				onEnd(readErr)
			}
		}()
		for {
			var msg streamMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if streamCtx.Err() == nil {
					slog.Debug("incident stream closed", "error", err)
					readErr = err
				}
				return
			}
			if msg.Type != "snapshot" {
				continue
			}
			if streamCtx.Err() != nil {
				return
			}
			fn(toIncidents(msg.Data.Incidents))
		}
	}()

	return unsubscribe, nil
}

func (c *Client) streamURL(token string) (string, error) {
	u, err := url.Parse(c.baseURL + streamPath)
	if err != nil {
		return "", fmt.Errorf("parse stream url: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	q := u.Query()
	q.Set("access_token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
