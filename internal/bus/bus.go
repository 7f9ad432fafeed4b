package bus

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// defaultQueueCap bounds each subscriber's pending queue.
	defaultQueueCap = 512

	// stateRetryWindow is how long delivery of a state-transition event may
	// stall on one subscriber before that subscriber is treated as
	// unreachable and disconnected.
	stateRetryWindow = 5 * time.Second

	// stateRetryStep is the initial backoff between delivery retries.
	stateRetryStep = 25 * time.Millisecond
)

// UsageSource supplies accumulated usage records for snapshots handed to
// late subscribers. Optional; typically backed by the SQLite usage store.
type UsageSource interface {
	UsageToday() (any, error)
}

// Snapshot is the current state of all sessions, handed to a newly
// subscribed client so it can render correct UI state without replaying
// history. NextSeq is the sequence number the live tail starts at.
type Snapshot struct {
	Sessions     map[string]string `json:"sessions"`
	Transcript   string            `json:"transcript"`
	Partial      string            `json:"partial"`
	LastWorkflow any               `json:"last_workflow,omitempty"`
	Usage        any               `json:"usage,omitempty"`
	NextSeq      uint64            `json:"next_seq"`
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.Sessions = make(map[string]string, len(s.Sessions))
	for k, v := range s.Sessions {
		out.Sessions[k] = v
	}
	return out
}

// Bus is the hub. All mutation of the subscriber list, the sequence counter,
// and the snapshot happens under one mutex, so concurrent Publish calls
// serialize and every subscriber observes strictly increasing sequence
// numbers. Enqueueing to a subscriber never blocks; slow consumers are
// handled by the per-subscriber pump.
type Bus struct {
	log      *logrus.Logger
	queueCap int

	mu       sync.Mutex
	seq      uint64
	subs     map[string]*subscriber
	snapshot Snapshot
	usage    UsageSource
}

// New allocates a bus with an empty snapshot.
func New(log *logrus.Logger) *Bus {
	return &Bus{
		log:      log,
		queueCap: defaultQueueCap,
		subs:     make(map[string]*subscriber),
		snapshot: Snapshot{Sessions: make(map[string]string)},
	}
}

// SetUsageSource registers the collaborator queried for accumulated usage
// records at Subscribe time.
func (b *Bus) SetUsageSource(src UsageSource) {
	b.mu.Lock()
	b.usage = src
	b.mu.Unlock()
}

// Publish assigns the next sequence number, folds the event into the session
// snapshot, and enqueues it on every current subscriber. It never blocks the
// calling producer. The stamped event is returned.
func (b *Bus) Publish(t Type, data any) Event {
	b.mu.Lock()
	b.seq++
	ev := Event{Type: t, Data: data, Seq: b.seq, TS: NowTS()}
	b.fold(ev)
	for _, s := range b.subs {
		s.offer(ev)
	}
	b.mu.Unlock()
	return ev
}

// Subscription is one client's view of the stream: the snapshot taken at
// subscribe time plus a live tail starting at Snapshot.NextSeq.
type Subscription struct {
	ID       string
	Snapshot Snapshot

	// Events delivers the live tail. Closed on Unsubscribe or when the
	// subscriber is disconnected as unreachable.
	Events <-chan Event
}

// Subscribe registers a new subscriber and returns its snapshot and live
// feed. The snapshot reflects every state transition published before
// Subscribe returned.
func (b *Bus) Subscribe() *Subscription {
	var usageSrc UsageSource

	b.mu.Lock()
	usageSrc = b.usage
	b.mu.Unlock()

	// Usage is a low-frequency data path; fetch it outside the bus lock.
	var usage any
	if usageSrc != nil {
		if u, err := usageSrc.UsageToday(); err == nil {
			usage = u
		}
	}

	b.mu.Lock()
	sub := &subscriber{
		id:  uuid.NewString(),
		cap: b.queueCap,
		out: make(chan Event, 32),
	}
	sub.cond = sync.NewCond(&sub.mu)
	b.subs[sub.id] = sub

	snap := b.snapshot.clone()
	snap.Usage = usage
	snap.NextSeq = b.seq + 1
	b.mu.Unlock()

	go sub.pump(func() { b.Unsubscribe(sub.id) })

	return &Subscription{ID: sub.id, Snapshot: snap, Events: sub.out}
}

// Unsubscribe releases the subscriber's queue. No effect on producers, and
// safe to call more than once.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()
	if ok {
		sub.close()
	}
}

// Subscribers returns the current subscriber count.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Seq returns the last assigned sequence number.
func (b *Bus) Seq() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

// fold updates the snapshot from a state-carrying event. Called with b.mu
// held, in the same critical section that assigns the sequence number, so a
// snapshot can never miss a transition published before Subscribe returned.
func (b *Bus) fold(ev Event) {
	switch data := ev.Data.(type) {
	case StateChange:
		b.snapshot.Sessions[data.Component] = data.To
	case RecordingInfo:
		if ev.Type == TypeRecordingStarted && data.Component == ComponentVoice {
			// A fresh voice session starts with an empty transcript.
			b.snapshot.Transcript = ""
			b.snapshot.Partial = ""
		}
	case TranscriptText:
		switch ev.Type {
		case TypePartialTranscript:
			b.snapshot.Partial = data.Text
		case TypeFinalTranscript:
			if b.snapshot.Transcript == "" {
				b.snapshot.Transcript = data.Text
			} else {
				b.snapshot.Transcript += " " + data.Text
			}
			b.snapshot.Partial = ""
		}
	default:
		if ev.Type == TypeWorkflowGenerated {
			b.snapshot.LastWorkflow = ev.Data
		}
	}
}

// subscriber holds one connection's pending queue and outbound channel. The
// queue is bounded: advisory events are evicted oldest-first to make room,
// state-transition events are never evicted.
type subscriber struct {
	id  string
	cap int
	out chan Event

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Event
	closed bool
}

// offer enqueues without blocking. Under backpressure, advisory events are
// dropped oldest-first; a state-transition event always lands in the queue,
// displacing the oldest advisory if needed.
func (s *subscriber) offer(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	if len(s.queue) >= s.cap {
		if !s.evictAdvisory() {
			if ev.Type.Advisory() {
				// Saturated with state events; staleness is harmless.
				return
			}
			// No advisory to evict. Exceed the soft cap rather than drop a
			// state event; the pump's retry window bounds how long this
			// subscriber can keep growing before it is disconnected.
		} else if ev.Type.Advisory() {
			// Drop-oldest semantics: the evicted slot goes to the new event.
		}
	}

	s.queue = append(s.queue, ev)
	s.cond.Signal()
}

// evictAdvisory removes the oldest advisory event from the queue. Reports
// whether anything was evicted. Caller holds s.mu.
func (s *subscriber) evictAdvisory() bool {
	for i := range s.queue {
		if s.queue[i].Type.Advisory() {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return true
		}
	}
	return false
}

// pump moves events from the queue to the outbound channel. Advisory events
// are delivered best-effort; state-transition events are retried with
// backoff for up to stateRetryWindow, after which the subscriber is
// disconnected as unreachable via the supplied callback.
func (s *subscriber) pump(disconnect func()) {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			close(s.out)
			return
		}
		ev := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		if ev.Type.Advisory() {
			select {
			case s.out <- ev:
			default:
			}
			continue
		}

		if !s.deliverState(ev) {
			disconnect()
			close(s.out)
			return
		}
	}
}

// deliverState blocks on the outbound channel with backoff-and-retry up to
// the retry window. Reports whether the event was delivered.
func (s *subscriber) deliverState(ev Event) bool {
	deadline := time.Now().Add(stateRetryWindow)
	wait := stateRetryStep
	for {
		select {
		case s.out <- ev:
			return true
		default:
		}
		if time.Now().After(deadline) || s.isClosed() {
			return false
		}

		timer := time.NewTimer(wait)
		select {
		case s.out <- ev:
			timer.Stop()
			return true
		case <-timer.C:
		}
		if wait < time.Second {
			wait *= 2
		}
	}
}

func (s *subscriber) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// close marks the subscriber dead. The pump is the only goroutine that
// closes the outbound channel, so a concurrent in-flight send can't panic.
func (s *subscriber) close() {
	s.mu.Lock()
	s.closed = true
	s.queue = nil
	s.cond.Broadcast()
	s.mu.Unlock()
}
