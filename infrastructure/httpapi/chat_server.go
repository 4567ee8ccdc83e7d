// Package httpapi exposes the chat broker over HTTP: a JSON publish
// endpoint and one server-sent-events stream per subscriber.
package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"support-chat/domain"
	"support-chat/errors"
	"support-chat/observability"
	"support-chat/services"
	"support-chat/sink"
)

const (
	eventInit    = "init"
	eventMessage = "message"

	emptyMessageError = "Message cannot be empty."
)

// streamEvent is the wire envelope for one SSE frame. A frame is one
// "data: {json}" line followed by a blank line; an event is never split
// across frames.
type streamEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type ChatServer struct {
	log                  *slog.Logger
	chatService          services.IChatService
	stats                *observability.ChatStats
	connectionBufferSize int
}

func NewChatServer(log *slog.Logger, chatService services.IChatService,
	stats *observability.ChatStats, connectionBufferSize int) *ChatServer {
	return &ChatServer{
		log:                  log,
		chatService:          chatService,
		stats:                stats,
		connectionBufferSize: connectionBufferSize,
	}
}

// Router wires the chat endpoints onto a chi router.
func (s *ChatServer) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/api/chat/send", s.HandleSend)
	r.Get("/api/chat/stream", s.HandleStream)
	r.Get("/api/chat/stats", s.HandleStats)

	return r
}

// HandleSend accepts a publish intent. The response acknowledges the
// validated append only; the delayed auto-reply reaches the caller
// through the stream like any other message.
func (s *ChatServer) HandleSend(w http.ResponseWriter, r *http.Request) {
	var cmd domain.PostMessageCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		// An unreadable body is reported the same way as a blank one.
		writeError(w, http.StatusBadRequest, emptyMessageError)
		return
	}

	if err := s.chatService.PostMessage(r.Context(), cmd); err != nil {
		switch err {
		case errors.ErrEmptyMessage:
			writeError(w, http.StatusBadRequest, emptyMessageError)
		case errors.ErrUnknownSender:
			writeError(w, http.StatusBadRequest, "Unknown sender.")
		default:
			s.log.Error("Failed to publish message", "error", err)
			writeError(w, http.StatusInternalServerError, "Unable to deliver message.")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// HandleStream opens the long-lived push channel: an init frame with the
// current snapshot, then one message frame per subsequent append, until
// the client goes away. The sink is registered and the snapshot taken as
// one atomic unit, and always unregistered before the handler returns.
func (s *ChatServer) HandleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	streamSink := sink.NewStreamSink(s.connectionBufferSize)
	snapshot, handle := s.chatService.Join(streamSink)
	defer s.chatService.Leave(handle)

	if err := writeEvent(w, flusher, streamEvent{Type: eventInit, Payload: snapshot}); err != nil {
		s.log.Warn("Failed to send init event", "handle", handle, "error", err)
		return
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			s.log.Debug("Stream client disconnected", "handle", handle)
			return
		case m := <-streamSink.Events:
			if err := writeEvent(w, flusher, streamEvent{Type: eventMessage, Payload: m}); err != nil {
				s.log.Warn("Failed to push event to stream", "handle", handle, "error", err)
				return
			}
		}
	}
}

// HandleStats reports broker telemetry.
func (s *ChatServer) HandleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.stats.Snapshot())
}

func writeEvent(w io.Writer, flusher http.Flusher, evt streamEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if _, err = fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
