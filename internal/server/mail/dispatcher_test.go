package mail

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(workers, queue, retries int) DispatcherConfig {
	return DispatcherConfig{Workers: workers, QueueSize: queue, MaxRetries: retries, BaseBackoff: time.Millisecond, SendTimeout: time.Second}
}

// flakySender fails the first n sends.
type flakySender struct {
	captureSender
	failures int32
	calls    atomic.Int32
}

func (s *flakySender) Send(ctx context.Context, msg Message) error {
	if s.calls.Add(1) <= s.failures {
		return errors.New("temporary failure")
	}
	return s.captureSender.Send(ctx, msg)
}

// blockingSender blocks every send until release is closed.
type blockingSender struct {
	captureSender
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingSender() *blockingSender {
	return &blockingSender{started: make(chan struct{}), release: make(chan struct{})}
}

func (s *blockingSender) Send(ctx context.Context, msg Message) error {
	s.once.Do(func() { close(s.started) })
	<-s.release
	return s.captureSender.Send(ctx, msg)
}

func TestDispatcher_DeliversAndDrainsOnClose(t *testing.T) {
	s := &captureSender{}
	rec := newCountingRecorder()
	d := NewDispatcher(s, fastConfig(2, 16, 0), logging.Nop{}, rec)

	for i := 0; i < 10; i++ {
		require.NoError(t, d.Send(context.Background(), Message{To: "a@x.com"}))
	}
	require.NoError(t, d.Close(context.Background()))

	assert.Len(t, s.sent(), 10)
	assert.Equal(t, 10, rec.get(metrics.MailSent))
}

func TestDispatcher_RetriesThenSucceeds(t *testing.T) {
	s := &flakySender{failures: 2}
	rec := newCountingRecorder()
	d := NewDispatcher(s, fastConfig(1, 4, 3), logging.Nop{}, rec)

	require.NoError(t, d.Send(context.Background(), Message{To: "a@x.com"}))
	require.NoError(t, d.Close(context.Background()))

	assert.Len(t, s.sent(), 1)
	assert.Equal(t, int32(3), s.calls.Load())
	assert.Equal(t, 2, rec.get(metrics.MailRetried))
	assert.Equal(t, 1, rec.get(metrics.MailSent))
	assert.Equal(t, 0, rec.get(metrics.MailFailed))
}

func TestDispatcher_GivesUpAfterMaxRetries(t *testing.T) {
	s := &flakySender{failures: 100}
	rec := newCountingRecorder()
	d := NewDispatcher(s, fastConfig(1, 4, 1), logging.Nop{}, rec)

	require.NoError(t, d.Send(context.Background(), Message{To: "a@x.com"}))
	require.NoError(t, d.Close(context.Background()))

	assert.Equal(t, int32(2), s.calls.Load())
	assert.Equal(t, 1, rec.get(metrics.MailFailed))
	assert.Empty(t, s.sent())
}

func TestDispatcher_DropsWhenQueueFull(t *testing.T) {
	s := newBlockingSender()
	rec := newCountingRecorder()
	d := NewDispatcher(s, fastConfig(1, 1, 0), logging.Nop{}, rec)

	require.NoError(t, d.Send(context.Background(), Message{To: "first@x.com"}))
	<-s.started // the worker holds the first message

	require.NoError(t, d.Send(context.Background(), Message{To: "second@x.com"}))
	err := d.Send(context.Background(), Message{To: "third@x.com"})
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 1, rec.get(metrics.MailDropped))

	close(s.release)
	require.NoError(t, d.Close(context.Background()))
	assert.Len(t, s.sent(), 2)
}

func TestDispatcher_SendAfterClose(t *testing.T) {
	d := NewDispatcher(&captureSender{}, fastConfig(1, 1, 0), logging.Nop{}, nil)

	require.NoError(t, d.Close(context.Background()))
	require.NoError(t, d.Close(context.Background()))

	assert.ErrorIs(t, d.Send(context.Background(), Message{To: "a@x.com"}), ErrDispatcherClosed)
}

func TestDispatcher_CloseHonorsContext(t *testing.T) {
	s := newBlockingSender()
	d := NewDispatcher(s, fastConfig(1, 1, 0), logging.Nop{}, nil)

	require.NoError(t, d.Send(context.Background(), Message{To: "a@x.com"}))
	<-s.started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)

	close(s.release)
	require.NoError(t, d.Close(context.Background()))
}

func TestDispatcher_ConcurrentSendAndClose(t *testing.T) {
	d := NewDispatcher(&captureSender{}, fastConfig(4, 8, 0), logging.Nop{}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := d.Send(context.Background(), Message{To: "a@x.com"})
			if err != nil && !errors.Is(err, ErrQueueFull) && !errors.Is(err, ErrDispatcherClosed) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	require.NoError(t, d.Close(context.Background()))
	wg.Wait()
}
