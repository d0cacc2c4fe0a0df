package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reply struct {
	text string
	err  error
}

// scripted returns canned replies in order, repeating the last one.
type scripted struct {
	replies []reply
	calls   int
}

func (s *scripted) Complete(context.Context, string, string) (string, error) {
	r := s.replies[min(s.calls, len(s.replies)-1)]
	s.calls++
	return r.text, r.err
}

func fastRetry(p Provider) *Retrying {
	r := WithRetry(p, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r.backoff = func(int) time.Duration { return time.Millisecond }
	return r
}

func TestWithRetry_RetriesRetryableErrors(t *testing.T) {
	p := &scripted{replies: []reply{
		{err: &RetryableError{StatusCode: 503, Message: "overloaded"}},
		{err: &RetryableError{StatusCode: 429, Message: "slow down"}},
		{text: "answer"},
	}}

	out, err := fastRetry(p).Complete(context.Background(), "sys", "user")

	require.NoError(t, err)
	assert.Equal(t, "answer", out)
	assert.Equal(t, 3, p.calls)
}

func TestWithRetry_GivesUpAfterMaxRetries(t *testing.T) {
	p := &scripted{replies: []reply{{err: &RetryableError{StatusCode: 500}}}}

	_, err := fastRetry(p).Complete(context.Background(), "sys", "user")

	assert.True(t, IsRetryable(err))
	assert.Equal(t, MaxRetries+1, p.calls)
}

func TestWithRetry_PermanentErrorNotRetried(t *testing.T) {
	p := &scripted{replies: []reply{{err: errors.New("status 400")}}}

	_, err := fastRetry(p).Complete(context.Background(), "sys", "user")

	assert.EqualError(t, err, "status 400")
	assert.Equal(t, 1, p.calls)
}

func TestWithRetry_StopsOnCancelledContext(t *testing.T) {
	p := &scripted{replies: []reply{{err: &RetryableError{StatusCode: 503}}}}
	r := WithRetry(p, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Complete(ctx, "sys", "user")

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, p.calls)
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	for attempt, base := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		d := Backoff(attempt)
		assert.GreaterOrEqual(t, d, base)
		assert.Less(t, d, base+base/2)
	}
	assert.Less(t, Backoff(10), 45*time.Second)
}
