package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusErr int

func (e statusErr) Error() string   { return fmt.Sprintf("http %d", int(e)) }
func (e statusErr) HTTPStatus() int { return int(e) }

type tempErr struct{}

func (tempErr) Error() string   { return "database is locked" }
func (tempErr) Temporary() bool { return true }

// recorder captures waits instead of sleeping.
type recorder struct {
	waits []time.Duration
}

func (r *recorder) sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

func newTestPolicy(r *recorder, opts ...Option) *Policy {
	base := []Option{
		WithJitter(func() float64 { return 0 }),
		WithSleep(r.sleep),
	}
	return New(append(base, opts...)...)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"429", statusErr(429), Transient},
		{"500", statusErr(500), Transient},
		{"503 wrapped", fmt.Errorf("update: %w", statusErr(503)), Transient},
		{"400", statusErr(400), Fatal},
		{"401", statusErr(401), Fatal},
		{"403", statusErr(403), Fatal},
		{"404", statusErr(404), Fatal},
		{"unexpected eof", io.ErrUnexpectedEOF, Transient},
		{"conn reset", fmt.Errorf("read: %w", syscall.ECONNRESET), Transient},
		{"net op error", &net.OpError{Op: "dial", Err: errors.New("refused")}, Transient},
		{"temporary", tempErr{}, Transient},
		{"canceled", context.Canceled, Fatal},
		{"deadline", fmt.Errorf("read: %w", context.DeadlineExceeded), Fatal},
		{"client timeout", &url.Error{Op: "Post", URL: "https://shop.example/graphql", Err: context.DeadlineExceeded}, Transient},
		{"plain", errors.New("boom"), Unknown},
		{"nil", nil, Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestDo_RecoversFromRateLimit(t *testing.T) {
	r := &recorder{}
	p := newTestPolicy(r)

	calls := 0
	err := p.Do(context.Background(), "update", func(context.Context) error {
		calls++
		if calls < 3 {
			return statusErr(429)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, r.waits)
}

func TestDo_ForbiddenSurfacesImmediately(t *testing.T) {
	r := &recorder{}
	p := newTestPolicy(r)

	calls := 0
	err := p.Do(context.Background(), "update", func(context.Context) error {
		calls++
		return statusErr(403)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, r.waits)
	assert.False(t, errors.Is(err, ErrExhausted))
	assert.Equal(t, statusErr(403), err)
}

func TestDo_UnknownErrorNotRetried(t *testing.T) {
	r := &recorder{}
	p := newTestPolicy(r)

	calls := 0
	boom := errors.New("boom")
	err := p.Do(context.Background(), "read", func(context.Context) error {
		calls++
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestDo_Exhausted(t *testing.T) {
	r := &recorder{}
	p := newTestPolicy(r, WithMaxAttempts(4))

	calls := 0
	err := p.Do(context.Background(), "append", func(context.Context) error {
		calls++
		return statusErr(502)
	})

	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.Len(t, r.waits, 3)
	assert.ErrorIs(t, err, ErrExhausted)

	var se statusErr
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 502, int(se))
}

func TestDo_RetriesClientTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	client := &http.Client{Timeout: 20 * time.Millisecond}
	r := &recorder{}
	p := newTestPolicy(r)

	calls := 0
	err := p.Do(context.Background(), "graphql", func(ctx context.Context) error {
		calls++
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		return resp.Body.Close()
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, DefaultMaxAttempts, calls)
	assert.Len(t, r.waits, DefaultMaxAttempts-1)
}

func TestDo_CallerDeadlineNotRetried(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	r := &recorder{}
	p := newTestPolicy(r)

	calls := 0
	err := p.Do(ctx, "graphql", func(ctx context.Context) error {
		calls++
		return &url.Error{Op: "Post", URL: "https://shop.example/graphql", Err: ctx.Err()}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, r.waits)
	assert.False(t, errors.Is(err, ErrExhausted))
}

func TestDelay(t *testing.T) {
	p := New(WithJitter(func() float64 { return 0.5 }))

	assert.Equal(t, 3*time.Second, p.Delay(1))
	assert.Equal(t, 6*time.Second, p.Delay(2))
	assert.Equal(t, 12*time.Second, p.Delay(3))
	assert.Equal(t, 24*time.Second, p.Delay(4))
	assert.Equal(t, DefaultMaxDelay, p.Delay(5))
	assert.Equal(t, 3*time.Second, p.Delay(0))
}

func TestDo_ContextCanceledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := New(
		WithBaseDelay(time.Hour),
		WithSleep(func(ctx context.Context, _ time.Duration) error {
			cancel()
			<-ctx.Done()
			return ctx.Err()
		}),
	)

	err := p.Do(ctx, "read", func(context.Context) error {
		return statusErr(500)
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestValue(t *testing.T) {
	r := &recorder{}
	p := newTestPolicy(r)

	calls := 0
	got, err := Value(context.Background(), p, "read", func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", tempErr{}
		}
		return "header", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "header", got)
	assert.Equal(t, 2, calls)
}

func TestSleepContext(t *testing.T) {
	require.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
