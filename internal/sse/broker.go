// Package sse implements a Server-Sent Events broker for live fetch progress
// and item changes.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/workshopwatch/internal/reconcile"
)

// Event types sent to clients.
const (
	TypeItemUpdated        = "item.updated"
	TypeFetchProgress      = "fetch.progress"
	TypeFetchDone          = "fetch.done"
	TypeContainerUpdated   = "container.updated"
	TypeContainerRescanned = "container.rescanned"
	TypeContainersReloaded = "containers.reloaded"
	TypeItemsUpdated       = "items.updated"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type itemPayload struct {
	ContainerID string          `json:"container_id"`
	Item        *reconcile.Item `json:"item"`
}

type containerPayload struct {
	ContainerID string `json:"container_id"`
}

// Broker manages SSE client connections and broadcasts events.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable state
// (clients + per-container throttle timestamps). Public methods communicate with
// this loop through channels, so no mutexes are required.
type Broker struct {
	itemsMin time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	changeCh      chan reconcile.Change
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker. itemsThrottle bounds how often
// items.updated is sent per container.
func NewBroker(itemsThrottle time.Duration) *Broker {
	if itemsThrottle <= 0 {
		itemsThrottle = 2 * time.Second
	}

	b := &Broker{
		itemsMin:      itemsThrottle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		changeCh:      make(chan reconcile.Change, 1024),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	lastItems := make(map[string]time.Time)

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		raw := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload))

		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
			}
		}
	}

	itemsChanged := func(containerID string) {
		now := time.Now()
		if now.Sub(lastItems[containerID]) >= b.itemsMin {
			lastItems[containerID] = now
			broadcast(Event{Type: TypeItemsUpdated, Data: containerPayload{ContainerID: containerID}})
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case c := <-b.changeCh:
			switch c.Kind {
			case reconcile.ChangeItem:
				broadcast(Event{Type: TypeItemUpdated, Data: itemPayload{ContainerID: c.ContainerID, Item: c.Item}})
				itemsChanged(c.ContainerID)
			case reconcile.ChangeFetchProgress:
				broadcast(Event{Type: TypeFetchProgress, Data: c.Fetch})
			case reconcile.ChangeFetchDone:
				broadcast(Event{Type: TypeFetchDone, Data: c.Fetch})
				// Always refresh views once a fetch settles.
				lastItems[c.ContainerID] = time.Now()
				broadcast(Event{Type: TypeItemsUpdated, Data: containerPayload{ContainerID: c.ContainerID}})
			case reconcile.ChangeContainer:
				broadcast(Event{Type: TypeContainerUpdated, Data: containerPayload{ContainerID: c.ContainerID}})
				itemsChanged(c.ContainerID)
			case reconcile.ChangeContainers:
				clear(lastItems)
				broadcast(Event{Type: TypeContainersReloaded, Data: struct{}{}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishRescan announces a watcher-driven rescan of a container.
func (b *Broker) PublishRescan(containerID string) {
	b.Publish(Event{Type: TypeContainerRescanned, Data: containerPayload{ContainerID: containerID}})
}

// StoreChanged implements reconcile.Observer. It runs on the store
// goroutine and never blocks it: changes are dropped when the backlog is
// full.
func (b *Broker) StoreChanged(c reconcile.Change) {
	if b.closed.Load() {
		return
	}
	select {
	case b.changeCh <- c:
	default:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
