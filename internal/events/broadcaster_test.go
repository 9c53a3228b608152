package events

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type BroadcasterSuite struct {
	suite.Suite
	broadcaster *Broadcaster
}

func (s *BroadcasterSuite) SetupTest() {
	s.broadcaster = NewBroadcaster()
}

func TestBroadcasterSuite(t *testing.T) {
	suite.Run(t, new(BroadcasterSuite))
}

// streamWriter is a goroutine-safe ResponseWriter with Flush.
type streamWriter struct {
	header     http.Header
	body       []byte
	statusCode int
	failWrites bool
	mu         sync.Mutex
}

func newStreamWriter() *streamWriter {
	return &streamWriter{header: make(http.Header), statusCode: http.StatusOK}
}

func (m *streamWriter) Header() http.Header { return m.header }

func (m *streamWriter) Write(data []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return 0, errors.New("broken pipe")
	}
	m.body = append(m.body, data...)
	return len(data), nil
}

func (m *streamWriter) WriteHeader(statusCode int) { m.statusCode = statusCode }
func (m *streamWriter) Flush()                     {}

func (m *streamWriter) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.body)
}

// drain returns every queued frame without blocking.
func drain(c *Client) []string {
	var frames []string
	for {
		select {
		case f := <-c.queue:
			frames = append(frames, string(f))
		default:
			return frames
		}
	}
}

func (s *BroadcasterSuite) TestSubscribe() {
	client := s.broadcaster.Subscribe(7)
	s.NotEmpty(client.ID)
	s.Equal(int64(7), client.OwnerID)
	s.Equal(1, s.broadcaster.ClientCount())
}

func (s *BroadcasterSuite) TestUnsubscribe() {
	client := s.broadcaster.Subscribe(1)
	s.broadcaster.Unsubscribe(client)
	s.Equal(0, s.broadcaster.ClientCount())

	select {
	case <-client.Done:
	default:
		s.Fail("Done channel should be closed")
	}

	s.broadcaster.Unsubscribe(client)
	s.Empty(s.broadcaster.owners)
}

func (s *BroadcasterSuite) TestPublish_OnlyOwner() {
	mine := s.broadcaster.Subscribe(1)
	theirs := s.broadcaster.Subscribe(2)

	s.broadcaster.Publish(1, TypeVersionCreated, map[string]string{"version": "1.1.0"})

	frames := drain(mine)
	s.Require().Len(frames, 1)
	s.True(strings.HasPrefix(frames[0], "id: 1\nevent: version.created\n"), frames[0])
	s.Contains(frames[0], `"type":"version.created"`)
	s.Contains(frames[0], `"version":"1.1.0"`)
	s.Empty(drain(theirs))
}

func (s *BroadcasterSuite) TestPublish_IDsIncrease() {
	client := s.broadcaster.Subscribe(1)
	s.broadcaster.Publish(1, TypePromptSaved, nil)
	s.broadcaster.Publish(2, TypePromptSaved, nil)
	s.broadcaster.Publish(1, TypeVersionDeleted, nil)

	frames := drain(client)
	s.Require().Len(frames, 2)
	s.True(strings.HasPrefix(frames[0], "id: 1\n"))
	s.True(strings.HasPrefix(frames[1], "id: 2\n"), "events with no subscribers do not consume an id")
}

func (s *BroadcasterSuite) TestPublishNoClients() {
	s.broadcaster.Publish(1, TypePromptSaved, nil)
	s.Equal(uint64(0), s.broadcaster.seq.Load())
}

func (s *BroadcasterSuite) TestPublish_DropsLaggingClients() {
	slow := s.broadcaster.Subscribe(1)
	fast := s.broadcaster.Subscribe(1)

	for i := 0; i < QueueSize; i++ {
		s.broadcaster.Publish(1, TypeVersionCreated, nil)
		drain(fast)
	}
	s.Equal(2, s.broadcaster.ClientCount())

	s.broadcaster.Publish(1, TypeVersionCreated, nil)
	s.Equal(1, s.broadcaster.ClientCount())
	select {
	case <-slow.Done:
	default:
		s.Fail("lagging client should be closed")
	}
	s.Len(drain(fast), 1)
}

func TestClientUniqueIDs(t *testing.T) {
	b := NewBroadcaster()
	ids := make(map[string]bool)

	for i := 0; i < 100; i++ {
		client := b.Subscribe(1)
		assert.False(t, ids[client.ID], "ID %s should be unique", client.ID)
		ids[client.ID] = true
	}
	assert.Equal(t, 100, b.ClientCount())
}

func TestHandleSSE(t *testing.T) {
	b := NewBroadcaster()
	rec := newStreamWriter()

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.HandleSSE(rec, req, 5)
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(rec.String(), `"type":"connected"`)
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	b.Publish(5, TypeVersionRolledBack, map[string]string{"to": "1.0.0"})
	b.Publish(6, TypeVersionDeleted, nil)
	require.Eventually(t, func() bool {
		return strings.Contains(rec.String(), "event: version.rolled_back")
	}, time.Second, 10*time.Millisecond)
	assert.NotContains(t, rec.String(), "version.deleted")

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("HandleSSE did not return after cancel")
	}
	assert.Equal(t, 0, b.ClientCount())
}

func TestHandleSSE_WriteFailure(t *testing.T) {
	b := NewBroadcaster()
	rec := newStreamWriter()
	rec.failWrites = true

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.HandleSSE(rec, httptest.NewRequest(http.MethodGet, "/api/events", nil), 5)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("HandleSSE should stop on a failed write")
	}
	assert.Equal(t, 0, b.ClientCount())
}

func TestHandleSSE_NoFlusher(t *testing.T) {
	b := NewBroadcaster()
	rec := &plainWriter{header: make(http.Header)}
	b.HandleSSE(rec, httptest.NewRequest(http.MethodGet, "/api/events", nil), 1)
	assert.Equal(t, http.StatusInternalServerError, rec.status)
	assert.Equal(t, 0, b.ClientCount())
}

type plainWriter struct {
	header http.Header
	status int
}

func (p *plainWriter) Header() http.Header         { return p.header }
func (p *plainWriter) Write(b []byte) (int, error) { return len(b), nil }
func (p *plainWriter) WriteHeader(code int)        { p.status = code }

func TestConcurrentPublish(t *testing.T) {
	b := NewBroadcaster()

	clients := make([]*Client, 0, 10)
	for i := 0; i < 10; i++ {
		clients = append(clients, b.Subscribe(int64(i%2)))
	}

	var wg sync.WaitGroup
	for i := 0; i < 2*QueueSize; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b.Publish(int64(i%2), TypePromptSaved, map[string]int{"index": i})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, b.ClientCount())
	for _, c := range clients {
		assert.Len(t, drain(c), QueueSize)
	}
}
