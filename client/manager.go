// Package client owns the receiving half of one support conversation:
// it keeps the event stream alive, deduplicates deliveries, tracks
// connectivity and raises notifications for support replies arriving
// while the view is in the background.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"support-chat/contract"
	"support-chat/domain"
)

// LocalHistoryLimit caps the messages kept for rendering.
const LocalHistoryLimit = 100

const (
	defaultRetryInterval  = 3 * time.Second
	defaultErrorClear     = 3 * time.Second
	connectionLostMessage = "Connection lost. Retrying…"
)

// serverEvent mirrors the stream envelope sent by the server.
type serverEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// State is the reactive triple the presentation layer renders.
type State struct {
	Messages  []domain.Message
	Connected bool
	Error     string
}

// Manager maintains one logical conversation view. The event stream is
// the sole source of truth for its message list; SendMessage only posts
// the intent and lets the echo come back through the stream.
type Manager struct {
	log        *slog.Logger
	baseURL    string
	httpClient *http.Client
	notifier   contract.Notifier
	visibility contract.Visibility

	retryInterval time.Duration
	errorClear    time.Duration

	mu         sync.RWMutex
	messages   []domain.Message
	connected  bool
	errMsg     string
	lastSeenID uuid.UUID
}

func NewManager(log *slog.Logger, baseURL string,
	notifier contract.Notifier, visibility contract.Visibility) *Manager {
	return &Manager{
		log:           log,
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    &http.Client{},
		notifier:      notifier,
		visibility:    visibility,
		retryInterval: defaultRetryInterval,
		errorClear:    defaultErrorClear,
	}
}

// Run connects to the stream endpoint and processes events until ctx is
// canceled. The raw HTTP transport has no EventSource-style retry of its
// own, so Run re-dials after a short pause whenever the stream drops.
func (m *Manager) Run(ctx context.Context) error {
	for {
		err := m.stream(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			m.log.Debug("Stream dropped", "error", err)
		}
		m.markDisconnected(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(m.retryInterval):
		}
	}
}

// stream opens one connection and drains it frame by frame. Events are
// handled one at a time in arrival order; returning (with or without an
// error) means the connection is gone.
func (m *Manager) stream(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/api/chat/stream", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream endpoint returned %s", resp.Status)
	}

	m.markConnected()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}
		var evt serverEvent
		if err := json.Unmarshal([]byte(data), &evt); err != nil {
			m.log.Error("Failed to parse chat event", "error", err)
			continue
		}
		m.handleEvent(evt)
	}
	return scanner.Err()
}

// handleEvent applies one stream event to the local view.
func (m *Manager) handleEvent(evt serverEvent) {
	switch evt.Type {
	case "init":
		var msgs []domain.Message
		if err := json.Unmarshal(evt.Payload, &msgs); err != nil {
			m.log.Error("Failed to parse init payload", "error", err)
			return
		}
		m.mu.Lock()
		m.messages = msgs
		if len(msgs) > 0 {
			m.lastSeenID = msgs[len(msgs)-1].ID
		}
		m.mu.Unlock()
	case "message":
		var msg domain.Message
		if err := json.Unmarshal(evt.Payload, &msg); err != nil {
			m.log.Error("Failed to parse message payload", "error", err)
			return
		}
		m.receive(msg)
	}
}

// receive appends a live message, ignoring duplicate deliveries after a
// reconnect replay, and notifies on newly observed support replies.
func (m *Manager) receive(msg domain.Message) {
	m.mu.Lock()
	exists := lo.ContainsBy(m.messages, func(known domain.Message) bool {
		return known.ID == msg.ID
	})
	if exists {
		m.mu.Unlock()
		return
	}

	m.messages = append(m.messages, msg)
	if len(m.messages) > LocalHistoryLimit {
		m.messages = m.messages[len(m.messages)-LocalHistoryLimit:]
	}
	newlySeen := m.lastSeenID != msg.ID
	if newlySeen {
		m.lastSeenID = msg.ID
	}
	m.mu.Unlock()

	if newlySeen {
		m.maybeNotify(msg)
	}
}

// maybeNotify mirrors the suppression rules of the web client: support
// messages only, only while the view is hidden, only with permission.
// Notification failures never disturb the conversation.
func (m *Manager) maybeNotify(msg domain.Message) {
	if msg.Sender != domain.SenderSupport {
		return
	}
	if m.visibility != nil && m.visibility.Visible() {
		return
	}
	if m.notifier == nil || !m.notifier.CanNotify() {
		return
	}
	if err := m.notifier.Notify(msg); err != nil {
		m.log.Debug("Notification failed", "error", err)
	}
}

func (m *Manager) markConnected() {
	m.mu.Lock()
	m.connected = true
	m.errMsg = ""
	m.mu.Unlock()
}

// markDisconnected flags the drop and clears the transient error message
// after a short delay, matching the retry banner behavior of the web
// client. Reconnection itself is handled by the Run loop.
func (m *Manager) markDisconnected(ctx context.Context) {
	m.mu.Lock()
	m.connected = false
	m.errMsg = connectionLostMessage
	m.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-time.After(m.errorClear):
			m.mu.Lock()
			if m.errMsg == connectionLostMessage {
				m.errMsg = ""
			}
			m.mu.Unlock()
		}
	}()
}

// SendMessage publishes user content without blocking the caller. Blank
// content is a no-op. Failures are logged only: the conversation view
// stays driven by the stream, not by the send response.
func (m *Manager) SendMessage(content string) {
	if strings.TrimSpace(content) == "" {
		return
	}

	go func() {
		body, err := json.Marshal(domain.PostMessageCommand{
			Sender:  domain.SenderUser,
			Content: content,
		})
		if err != nil {
			m.log.Error("Failed to encode message", "error", err)
			return
		}

		resp, err := m.httpClient.Post(m.baseURL+"/api/chat/send", "application/json", bytes.NewReader(body))
		if err != nil {
			m.log.Warn("Failed to send message", "error", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			m.log.Warn("Send rejected", "status", resp.Status)
		}
	}()
}

// State returns a copy of the reactive view state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return State{
		Messages:  append([]domain.Message(nil), m.messages...),
		Connected: m.connected,
		Error:     m.errMsg,
	}
}
