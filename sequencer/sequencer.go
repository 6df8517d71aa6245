// Package sequencer sits between a polling chat feed and the narrator. The
// upstream feed may redeliver messages already returned in a previous poll
// window and may hand back batches slightly out of order; the sequencer
// filters duplicates against a bounded memory of delivered ids and releases
// messages in publish-time order.
//
// A Sequencer is owned by exactly one loop: one poll cycle ingests a batch,
// then drains it fully before the next poll. It is not safe for concurrent
// use.
package sequencer

import (
	"container/heap"
	"iter"
	"log/slog"
	"time"
)

// DefaultSeenCapacity bounds the delivered-id memory when no explicit
// capacity is configured. At typical live chat rates this covers well over an
// hour of history.
const DefaultSeenCapacity = 2048

// Message is a single chat message from an upstream feed. The ID is opaque
// and assigned upstream; uniqueness is only guaranteed within the feed's own
// semantics, so the same id may show up across polls.
type Message struct {
	ID          string
	Author      string
	Text        string
	PublishedAt time.Time
}

// IngestStats summarizes one Ingest call so the caller can feed telemetry.
type IngestStats struct {
	Accepted   int // queued for delivery
	Duplicates int // dropped: id already delivered
	Malformed  int // skipped: missing id or text
	Evicted    int // seen ids evicted to stay under capacity
}

type entry struct {
	msg Message
	seq uint64 // arrival order, breaks PublishedAt ties
}

type deliveryQueue []entry

func (q deliveryQueue) Len() int { return len(q) }
func (q deliveryQueue) Less(i, j int) bool {
	if !q[i].msg.PublishedAt.Equal(q[j].msg.PublishedAt) {
		return q[i].msg.PublishedAt.Before(q[j].msg.PublishedAt)
	}
	return q[i].seq < q[j].seq
}
func (q deliveryQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *deliveryQueue) Push(x any)   { *q = append(*q, x.(entry)) }
func (q *deliveryQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = entry{}
	*q = old[:n-1]
	return e
}

// Sequencer deduplicates and orders messages between ingest and drain.
//
// Delivered ids live in a FIFO ring of fixed capacity: once full, accepting a
// new id forgets the oldest one. An evicted id that the feed redelivers later
// is treated as new and will be spoken again; that is the accepted cost of
// bounded memory on a long-running session, not a bug.
type Sequencer struct {
	capacity int
	seen     map[string]struct{}
	ring     []string
	head     int
	queue    deliveryQueue
	arrivals uint64
}

// New returns a Sequencer remembering up to seenCapacity delivered ids.
// Non-positive capacities fall back to DefaultSeenCapacity.
func New(seenCapacity int) *Sequencer {
	if seenCapacity < 1 {
		seenCapacity = DefaultSeenCapacity
	}
	return &Sequencer{
		capacity: seenCapacity,
		seen:     make(map[string]struct{}, seenCapacity),
		ring:     make([]string, 0, seenCapacity),
	}
}

// Ingest filters batch against the seen ids and queues the survivors for
// delivery. Malformed messages (empty id or text) are logged and skipped;
// they never abort the rest of the batch.
func (s *Sequencer) Ingest(batch []Message) IngestStats {
	var stats IngestStats
	for _, m := range batch {
		if m.ID == "" || m.Text == "" {
			stats.Malformed++
			slog.Warn("skipping malformed chat message", slog.String("id", m.ID), slog.String("author", m.Author))
			continue
		}
		if _, ok := s.seen[m.ID]; ok {
			stats.Duplicates++
			continue
		}
		if s.markSeen(m.ID) {
			stats.Evicted++
		}
		s.arrivals++
		heap.Push(&s.queue, entry{msg: m, seq: s.arrivals})
		stats.Accepted++
	}
	return stats
}

// markSeen records id in the FIFO ring, reporting whether an older id was
// evicted to make room.
func (s *Sequencer) markSeen(id string) bool {
	s.seen[id] = struct{}{}
	if len(s.ring) < s.capacity {
		s.ring = append(s.ring, id)
		return false
	}
	oldest := s.ring[s.head]
	delete(s.seen, oldest)
	s.ring[s.head] = id
	s.head = (s.head + 1) % s.capacity
	return true
}

// Drain yields the queued messages in non-decreasing PublishedAt order
// (arrival order on equal timestamps), removing each as it is yielded. The
// sequence is finite: it covers only what was queued when iteration reaches
// it, so draining twice without a new Ingest yields nothing the second time.
// Stopping iteration early leaves the remaining messages queued.
func (s *Sequencer) Drain() iter.Seq[Message] {
	return func(yield func(Message) bool) {
		for s.queue.Len() > 0 {
			e := heap.Pop(&s.queue).(entry)
			if !yield(e.msg) {
				return
			}
		}
	}
}

// Pending reports how many messages are queued for delivery.
func (s *Sequencer) Pending() int { return s.queue.Len() }

// SeenCount reports how many delivered ids are currently remembered.
func (s *Sequencer) SeenCount() int { return len(s.seen) }
