package fetch

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/workshopwatch/internal/models"
)

type fakeRemote struct {
	mu      sync.Mutex
	batches [][]string
	fail    map[int]bool // 1-based batch numbers that error
}

func (r *fakeRemote) Details(_ context.Context, ids []string) ([]models.RemoteDetails, error) {
	r.mu.Lock()
	r.batches = append(r.batches, append([]string(nil), ids...))
	n := len(r.batches)
	r.mu.Unlock()
	if r.fail[n] {
		return nil, errors.New("boom")
	}
	out := make([]models.RemoteDetails, len(ids))
	for i, id := range ids {
		title := "title-" + id
		ts := "100"
		out[i] = models.RemoteDetails{ID: id, Title: &title, UpdatedAt: &ts}
	}
	return out, nil
}

func (r *fakeRemote) sizes() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int
	for _, b := range r.batches {
		out = append(out, len(b))
	}
	return out
}

func makeIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = strconv.Itoa(1000 + i)
	}
	return ids
}

type sleepRecorder struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) {
	s.mu.Lock()
	s.calls = append(s.calls, d)
	s.mu.Unlock()
}

func (s *sleepRecorder) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func newTestFetcher(remote Remote, rec *sleepRecorder, opts ...Option) *Fetcher {
	f := New(remote, opts...)
	f.sleep = rec.sleep
	return f
}

func collect(t *testing.T, s *Stream) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("stream did not finish")
		}
	}
}

func TestStart_ChunksOf50(t *testing.T) {
	remote := &fakeRemote{}
	rec := &sleepRecorder{}
	ids := makeIDs(125)

	events := collect(t, newTestFetcher(remote, rec).Start(context.Background(), ids))

	assert.Equal(t, []int{50, 50, 25}, remote.sizes())
	assert.Equal(t, ids[:50], remote.batches[0])
	assert.Equal(t, ids[100:], remote.batches[2])

	var progress [][2]int
	items := 0
	for i, ev := range events {
		switch ev.Kind {
		case KindItem:
			assert.Equal(t, ids[items], ev.Item.ID, "item order")
			items++
		case KindProgress:
			assert.Equal(t, items, ev.Completed, "progress follows its batch's items")
			progress = append(progress, [2]int{ev.Completed, ev.Total})
		case KindDone:
			assert.Equal(t, len(events)-1, i, "done must be last")
		}
	}
	assert.Equal(t, 125, items)
	assert.Equal(t, [][2]int{{50, 125}, {100, 125}, {125, 125}}, progress)
	assert.Equal(t, KindDone, events[len(events)-1].Kind)

	assert.Equal(t, 3, rec.count(), "delay follows every batch including the last")
	assert.Equal(t, DefaultDelay, rec.calls[0])
}

func TestStart_FailedBatchContributesNothing(t *testing.T) {
	remote := &fakeRemote{fail: map[int]bool{2: true}}
	rec := &sleepRecorder{}

	events := collect(t, newTestFetcher(remote, rec, WithBatchSize(2)).Start(context.Background(), makeIDs(5)))

	assert.Equal(t, []int{2, 2, 1}, remote.sizes(), "no retry")
	var kinds []Kind
	var progress []int
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
		if ev.Kind == KindProgress {
			progress = append(progress, ev.Completed)
		}
	}
	assert.Equal(t, []Kind{
		KindItem, KindItem, KindProgress,
		KindProgress,
		KindItem, KindProgress,
		KindDone,
	}, kinds)
	assert.Equal(t, []int{2, 2, 3}, progress)
	done := events[len(events)-1]
	assert.Equal(t, 3, done.Completed)
	assert.Equal(t, 5, done.Total)
}

func TestStart_NoIDs(t *testing.T) {
	remote := &fakeRemote{}
	rec := &sleepRecorder{}
	events := collect(t, newTestFetcher(remote, rec).Start(context.Background(), nil))

	require.Len(t, events, 1)
	assert.Equal(t, KindDone, events[0].Kind)
	assert.Equal(t, 0, events[0].Total)
	assert.Empty(t, remote.sizes())
	assert.Equal(t, 0, rec.count())
}

func TestStream_ProducerNeverWaitsForConsumer(t *testing.T) {
	remote := &fakeRemote{}
	rec := &sleepRecorder{}
	s := newTestFetcher(remote, rec, WithBatchSize(10)).Start(context.Background(), makeIDs(100))

	deadline := time.Now().Add(5 * time.Second)
	for rec.count() < 10 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, 10, rec.count(), "all batches should run with nobody reading")

	events := collect(t, s)
	assert.Len(t, events, 100+10+1)
}

func TestStream_TryNextPolling(t *testing.T) {
	remote := &fakeRemote{}
	rec := &sleepRecorder{}
	s := newTestFetcher(remote, rec).Start(context.Background(), makeIDs(3))

	var got []Event
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		ev, ok := s.TryNext()
		if !ok {
			time.Sleep(time.Millisecond)
			continue
		}
		got = append(got, ev)
		if ev.Kind == KindDone {
			break
		}
	}
	require.NotEmpty(t, got)
	assert.Len(t, got, 5)
	assert.Equal(t, KindDone, got[len(got)-1].Kind)

	_, ok := s.TryNext()
	assert.False(t, ok)
}

func TestStart_CopiesIDs(t *testing.T) {
	remote := &fakeRemote{}
	rec := &sleepRecorder{}
	ids := makeIDs(2)
	s := newTestFetcher(remote, rec).Start(context.Background(), ids)
	ids[0] = "mutated"
	collect(t, s)
	assert.Equal(t, "1000", remote.batches[0][0])
}

func TestOperationID(t *testing.T) {
	a, b := newOperationID(), newOperationID()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 2+idLength)
}

func TestSleepCtx_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	sleepCtx(ctx, time.Minute)
	assert.Less(t, time.Since(start), time.Second)
}

// blockingRemote waits for ctx to end and reports that it did.
type blockingRemote struct {
	cancelled chan struct{}
	once      sync.Once
}

func (r *blockingRemote) Details(ctx context.Context, _ []string) ([]models.RemoteDetails, error) {
	<-ctx.Done()
	r.once.Do(func() { close(r.cancelled) })
	return nil, ctx.Err()
}

func TestStream_StopCancelsAndEnds(t *testing.T) {
	remote := &blockingRemote{cancelled: make(chan struct{})}
	s := New(remote, WithBatchSize(1), WithDelay(time.Hour)).Start(context.Background(), makeIDs(3))

	s.Stop()
	s.Stop()

	select {
	case <-remote.cancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("fetch context was not cancelled")
	}
	for _, ev := range collect(t, s) {
		assert.NotEqual(t, KindItem, ev.Kind)
	}
}

func TestStream_StopAfterDone(t *testing.T) {
	rec := &sleepRecorder{}
	s := newTestFetcher(&fakeRemote{}, rec).Start(context.Background(), makeIDs(2))
	events := collect(t, s)
	require.NotEmpty(t, events)
	assert.Equal(t, KindDone, events[len(events)-1].Kind)
	s.Stop()
}
