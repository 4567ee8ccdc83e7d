package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"support-chat/domain"
	"support-chat/mocks"
)

func newTestManager() *Manager {
	return NewManager(slog.Default(), "http://localhost:0", nil, nil)
}

func messageEvent(t *testing.T, m domain.Message) serverEvent {
	t.Helper()
	payload, err := json.Marshal(m)
	require.NoError(t, err)
	return serverEvent{Type: "message", Payload: payload}
}

func initEvent(t *testing.T, msgs []domain.Message) serverEvent {
	t.Helper()
	payload, err := json.Marshal(msgs)
	require.NoError(t, err)
	return serverEvent{Type: "init", Payload: payload}
}

func TestManager_Receive_DeduplicatesById(t *testing.T) {
	req := require.New(t)
	m := newTestManager()

	msg := domain.NewMessage(domain.SenderUser, "Hello")

	// When the same message is delivered twice (reconnect replay)
	m.handleEvent(messageEvent(t, msg))
	m.handleEvent(messageEvent(t, msg))

	// Then the local list contains it once
	st := m.State()
	req.Len(st.Messages, 1)
	req.Equal(msg.ID, st.Messages[0].ID)
}

func TestManager_Init_ReplacesLocalList(t *testing.T) {
	req := require.New(t)
	m := newTestManager()

	m.handleEvent(messageEvent(t, domain.NewMessage(domain.SenderUser, "stale")))

	replay := []domain.Message{
		domain.NewMessage(domain.SenderSupport, "Welcome"),
		domain.NewMessage(domain.SenderUser, "Hi"),
	}
	m.handleEvent(initEvent(t, replay))

	st := m.State()
	req.Len(st.Messages, 2)
	req.Equal(replay[0].ID, st.Messages[0].ID)

	// And the last replayed id counts as already seen
	req.Equal(replay[1].ID, m.lastSeenID)
}

func TestManager_Receive_CapsLocalHistory(t *testing.T) {
	req := require.New(t)
	m := newTestManager()

	published := make([]domain.Message, 120)
	for i := range published {
		published[i] = domain.NewMessage(domain.SenderUser, fmt.Sprintf("message %d", i))
		m.handleEvent(messageEvent(t, published[i]))
	}

	st := m.State()
	req.Len(st.Messages, LocalHistoryLimit)
	req.Equal(published[20].ID, st.Messages[0].ID)
	req.Equal(published[119].ID, st.Messages[99].ID)
}

func TestManager_Notifications(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	newManagerWith := func(n *mocks.MockNotifier, v *mocks.MockVisibility) *Manager {
		return NewManager(slog.Default(), "http://localhost:0", n, v)
	}

	t.Run("should notify for a hidden support reply", func(t *testing.T) {
		notifier := mocks.NewMockNotifier(ctrl)
		visibility := mocks.NewMockVisibility(ctrl)
		m := newManagerWith(notifier, visibility)

		msg := domain.NewMessage(domain.SenderSupport, "We found a match")
		visibility.EXPECT().Visible().Return(false).Times(1)
		notifier.EXPECT().CanNotify().Return(true).Times(1)
		notifier.EXPECT().Notify(gomock.Any()).Return(nil).Times(1)

		m.handleEvent(messageEvent(t, msg))
	})

	t.Run("should stay silent while the view is visible", func(t *testing.T) {
		notifier := mocks.NewMockNotifier(ctrl)
		visibility := mocks.NewMockVisibility(ctrl)
		m := newManagerWith(notifier, visibility)

		visibility.EXPECT().Visible().Return(true).Times(1)
		notifier.EXPECT().CanNotify().Times(0)
		notifier.EXPECT().Notify(gomock.Any()).Times(0)

		m.handleEvent(messageEvent(t, domain.NewMessage(domain.SenderSupport, "hi")))
	})

	t.Run("should stay silent without permission", func(t *testing.T) {
		notifier := mocks.NewMockNotifier(ctrl)
		visibility := mocks.NewMockVisibility(ctrl)
		m := newManagerWith(notifier, visibility)

		visibility.EXPECT().Visible().Return(false).Times(1)
		notifier.EXPECT().CanNotify().Return(false).Times(1)
		notifier.EXPECT().Notify(gomock.Any()).Times(0)

		m.handleEvent(messageEvent(t, domain.NewMessage(domain.SenderSupport, "hi")))
	})

	t.Run("should never notify for user messages", func(t *testing.T) {
		notifier := mocks.NewMockNotifier(ctrl)
		visibility := mocks.NewMockVisibility(ctrl)
		m := newManagerWith(notifier, visibility)

		visibility.EXPECT().Visible().Times(0)
		notifier.EXPECT().Notify(gomock.Any()).Times(0)

		m.handleEvent(messageEvent(t, domain.NewMessage(domain.SenderUser, "hi")))
	})

	t.Run("should swallow notification failures", func(t *testing.T) {
		req := require.New(t)
		notifier := mocks.NewMockNotifier(ctrl)
		visibility := mocks.NewMockVisibility(ctrl)
		m := newManagerWith(notifier, visibility)

		visibility.EXPECT().Visible().Return(false).Times(1)
		notifier.EXPECT().CanNotify().Return(true).Times(1)
		notifier.EXPECT().Notify(gomock.Any()).Return(fmt.Errorf("platform error")).Times(1)

		msg := domain.NewMessage(domain.SenderSupport, "hi")
		m.handleEvent(messageEvent(t, msg))

		// The message still lands in the conversation
		req.Len(m.State().Messages, 1)
	})

	t.Run("should not re-notify an already seen id", func(t *testing.T) {
		notifier := mocks.NewMockNotifier(ctrl)
		visibility := mocks.NewMockVisibility(ctrl)
		m := newManagerWith(notifier, visibility)

		msg := domain.NewMessage(domain.SenderSupport, "Welcome back")
		m.handleEvent(initEvent(t, []domain.Message{msg}))

		// Redelivery of the replayed tail is deduplicated before any
		// notification decision
		notifier.EXPECT().Notify(gomock.Any()).Times(0)
		m.handleEvent(messageEvent(t, msg))
	})
}

func TestManager_SendMessage_BlankIsNoOp(t *testing.T) {
	req := require.New(t)

	var calls atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer ts.Close()

	m := NewManager(slog.Default(), ts.URL, nil, nil)
	m.SendMessage("   ")

	time.Sleep(100 * time.Millisecond)
	req.Equal(int64(0), calls.Load())
}

func TestManager_SendMessage_PostsUserMessage(t *testing.T) {
	req := require.New(t)

	bodies := make(chan domain.PostMessageCommand, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var cmd domain.PostMessageCommand
		_ = json.NewDecoder(r.Body).Decode(&cmd)
		bodies <- cmd
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	}))
	defer ts.Close()

	m := NewManager(slog.Default(), ts.URL, nil, nil)
	m.SendMessage("Hello")

	select {
	case cmd := <-bodies:
		req.Equal(domain.SenderUser, cmd.Sender)
		req.Equal("Hello", cmd.Content)
	case <-time.After(time.Second):
		req.Fail("send never reached the server")
	}
}

// streamScript serves one scripted SSE connection per request and counts
// connections, so reconnection behavior is observable.
func streamScript(connections *atomic.Int64, events ...serverEvent) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connections.Add(1)
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, evt := range events {
			data, _ := json.Marshal(evt)
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
		// Returning closes the stream, simulating a drop
	}
}

func TestManager_Run_ProcessesStreamAndReconnects(t *testing.T) {
	req := require.New(t)

	welcome := domain.NewMessage(domain.SenderSupport, "Welcome")
	live := domain.NewMessage(domain.SenderUser, "Hi")
	initPayload, err := json.Marshal([]domain.Message{welcome})
	req.NoError(err)
	livePayload, err := json.Marshal(live)
	req.NoError(err)

	var connections atomic.Int64
	ts := httptest.NewServer(streamScript(&connections,
		serverEvent{Type: "init", Payload: initPayload},
		serverEvent{Type: "message", Payload: livePayload},
	))
	defer ts.Close()

	m := NewManager(slog.Default(), ts.URL, nil, nil)
	m.retryInterval = 50 * time.Millisecond
	m.errorClear = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Run(ctx) }()

	// The scripted events land in order
	req.Eventually(func() bool {
		return len(m.State().Messages) == 2
	}, 2*time.Second, 10*time.Millisecond)

	st := m.State()
	req.Equal(welcome.ID, st.Messages[0].ID)
	req.Equal(live.ID, st.Messages[1].ID)

	// The drop is surfaced, then the transient error clears
	req.Eventually(func() bool {
		return !m.State().Connected
	}, 2*time.Second, 10*time.Millisecond)
	req.Eventually(func() bool {
		return m.State().Error == ""
	}, 2*time.Second, 10*time.Millisecond)

	// And the manager re-dialed on its own
	req.Eventually(func() bool {
		return connections.Load() >= 2
	}, 2*time.Second, 10*time.Millisecond)

	// Replayed events after reconnect stay deduplicated
	req.Eventually(func() bool {
		return len(m.State().Messages) == 2
	}, 2*time.Second, 10*time.Millisecond)
}
