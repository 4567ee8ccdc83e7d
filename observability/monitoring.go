// Package observability aggregates runtime counters for the chat broker.
package observability

import (
	"runtime"
	"sync/atomic"
)

// ChatStats collects broker telemetry with atomic counters so the hot
// paths (append, fan-out) never take a lock for accounting.
type ChatStats struct {
	published         atomic.Uint64
	droppedDeliveries atomic.Uint64
	autoReplies       atomic.Uint64
	suppressedReplies atomic.Uint64
	openStreams       atomic.Int64
}

// StatsSnapshot is the JSON shape served by the stats endpoint.
type StatsSnapshot struct {
	Published         uint64 `json:"published"`
	DroppedDeliveries uint64 `json:"dropped_deliveries"`
	AutoReplies       uint64 `json:"auto_replies"`
	SuppressedReplies uint64 `json:"suppressed_replies"`
	OpenStreams       int64  `json:"open_streams"`
	AllocMemMb        uint64 `json:"alloc_mem_mb"`
	NumGC             uint32 `json:"num_gc"`
}

func NewChatStats() *ChatStats {
	return &ChatStats{}
}

func (s *ChatStats) IncrPublished() {
	s.published.Add(1)
}

// IncrDroppedDelivery counts one message that could not be handed to one
// sink (full buffer, panic). Other sinks are unaffected.
func (s *ChatStats) IncrDroppedDelivery() {
	s.droppedDeliveries.Add(1)
}

func (s *ChatStats) IncrAutoReply() {
	s.autoReplies.Add(1)
}

func (s *ChatStats) IncrSuppressedReply() {
	s.suppressedReplies.Add(1)
}

// SetOpenStreams tracks the size of the live sink set.
func (s *ChatStats) SetOpenStreams(n int64) {
	s.openStreams.Store(n)
}

// Snapshot reads every counter plus Go memory stats for the dashboard.
func (s *ChatStats) Snapshot() StatsSnapshot {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return StatsSnapshot{
		Published:         s.published.Load(),
		DroppedDeliveries: s.droppedDeliveries.Load(),
		AutoReplies:       s.autoReplies.Load(),
		SuppressedReplies: s.suppressedReplies.Load(),
		OpenStreams:       s.openStreams.Load(),
		AllocMemMb:        m.Alloc / 1024 / 1024,
		NumGC:             m.NumGC,
	}
}
