package fetch

import (
	"context"
	"strconv"
	"sync"
	"time"

	nanoid "github.com/matoous/go-nanoid/v2"

	"github.com/starford/workshopwatch/internal/models"
)

// Kind identifies the type of a stream Event.
type Kind uint8

const (
	KindItem Kind = iota + 1
	KindProgress
	KindDone
)

func (k Kind) String() string {
	switch k {
	case KindItem:
		return "item"
	case KindProgress:
		return "progress"
	case KindDone:
		return "done"
	}
	return "unknown"
}

// Event is one immutable message from a running fetch.
type Event struct {
	Kind Kind
	// Item is set for KindItem.
	Item models.RemoteDetails
	// Completed and Total are set for KindProgress and KindDone.
	Completed int
	Total     int
}

// Stream delivers the events of one fetch in order. The producer never
// blocks on a slow consumer: events queue without bound until read.
type Stream struct {
	ID    string
	Total int

	in  chan Event
	out chan Event

	stop     chan struct{}
	stopOnce sync.Once
	cancel   context.CancelFunc
}

func newStream(id string, total int, cancel context.CancelFunc) *Stream {
	s := &Stream{
		ID:     id,
		Total:  total,
		in:     make(chan Event),
		out:    make(chan Event),
		stop:   make(chan struct{}),
		cancel: cancel,
	}
	go s.pump()
	return s
}

// pump moves events from the producer to the consumer through an
// in-memory queue and closes out after the last one is delivered. After
// Stop it discards everything until the producer finishes.
func (s *Stream) pump() {
	defer close(s.out)
	var queue []Event
	in, stop := s.in, s.stop
	stopped := false
	for in != nil || len(queue) > 0 {
		var out chan Event
		var next Event
		if len(queue) > 0 {
			out = s.out
			next = queue[0]
		}
		select {
		case ev, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			if !stopped {
				queue = append(queue, ev)
			}
		case out <- next:
			queue[0] = Event{}
			queue = queue[1:]
		case <-stop:
			stop = nil
			stopped = true
			queue = nil
		}
	}
}

// Stop abandons the stream: the fetch's context is cancelled and undelivered
// events are dropped. Events is closed once the producer has finished. Stop
// is safe to call more than once and after the stream has ended.
func (s *Stream) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		if s.cancel != nil {
			s.cancel()
		}
	})
}

func (s *Stream) push(ev Event) { s.in <- ev }

func (s *Stream) closeInput() { close(s.in) }

// Events returns the ordered event channel. It is closed after Done.
func (s *Stream) Events() <-chan Event { return s.out }

// TryNext returns the next event if one is ready without waiting.
// ok is false when nothing is queued yet or the stream has ended.
func (s *Stream) TryNext() (ev Event, ok bool) {
	select {
	case ev, ok = <-s.out:
		return ev, ok
	default:
		return Event{}, false
	}
}

const (
	idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	idLength   = 10
)

func newOperationID() string {
	id, err := nanoid.Generate(idAlphabet, idLength)
	if err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return "f-" + id
}
