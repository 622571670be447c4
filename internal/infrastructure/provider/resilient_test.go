package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"racebet/internal/domain"
	"racebet/internal/infrastructure/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubProvider struct {
	mu       sync.Mutex
	sessions map[domain.SessionKey]*Session
	list     []Session
	err      error
	calls    int
}

func (s *stubProvider) Session(_ context.Context, key domain.SessionKey, _ bool) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if sess, ok := s.sessions[key]; ok {
		return sess, nil
	}
	return nil, fmt.Errorf("%w: %d", domain.ErrSessionNotFound, key)
}

func (s *stubProvider) Sessions(context.Context, Query, bool) ([]Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.list, nil
}

func (s *stubProvider) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *stubProvider) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newResilient(t *testing.T, inner SessionProvider) *Resilient {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewResilient(inner, cache.NewJSONCache(client), ResilientConfig{
		CacheTTL:        time.Minute,
		MaxAttempts:     2,
		InitialBackoff:  time.Millisecond,
		BreakerFailures: 3,
		BreakerOpen:     time.Minute,
	}, zap.NewNop())
}

func monza() *Session {
	end := time.Date(2023, 9, 3, 15, 0, 0, 0, time.UTC)
	return &Session{Key: 9158, Name: "Race", End: &end, Drivers: []Driver{{Number: 44}, {Number: 1}}}
}

func TestResilientCachesSession(t *testing.T) {
	inner := &stubProvider{sessions: map[domain.SessionKey]*Session{9158: monza()}}
	p := newResilient(t, inner)
	ctx := context.Background()

	s, err := p.Session(ctx, 9158, false)
	require.NoError(t, err)
	assert.True(t, s.HasDriver(44))

	_, err = p.Session(ctx, 9158, false)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.callCount())

	// fresh 读取绕过缓存
	_, err = p.Session(ctx, 9158, true)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.callCount())
}

func TestResilientNotFoundIsCachedAndNotRetried(t *testing.T) {
	inner := &stubProvider{sessions: map[domain.SessionKey]*Session{}}
	p := newResilient(t, inner)
	ctx := context.Background()

	_, err := p.Session(ctx, 1, false)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = p.Session(ctx, 1, false)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.Equal(t, 1, inner.callCount())
}

func TestResilientFallsBackToCache(t *testing.T) {
	inner := &stubProvider{sessions: map[domain.SessionKey]*Session{9158: monza()}}
	p := newResilient(t, inner)
	ctx := context.Background()

	_, err := p.Session(ctx, 9158, false)
	require.NoError(t, err)

	inner.setErr(errors.New("connection refused"))
	s, err := p.Session(ctx, 9158, true)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionKey(9158), s.Key)

	_, err = p.Session(ctx, 7777, true)
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
}

func TestResilientRetriesThenOpensBreaker(t *testing.T) {
	inner := &stubProvider{err: errors.New("timeout")}
	p := newResilient(t, inner)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := p.Session(ctx, 9158, true)
		assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
	}
	// 每次调用重试 2 次
	assert.Equal(t, 6, inner.callCount())

	// 熔断打开后不再调用数据源
	_, err := p.Session(ctx, 9158, true)
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
	assert.Equal(t, 6, inner.callCount())
}

func TestResilientSessionsSkipsCacheWhenDriversMissing(t *testing.T) {
	inner := &stubProvider{list: []Session{*monza(), {Key: 2}}}
	p := newResilient(t, inner)
	ctx := context.Background()

	_, err := p.Sessions(ctx, Query{Year: 2023}, false)
	require.NoError(t, err)
	_, err = p.Sessions(ctx, Query{Year: 2023}, false)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.callCount())

	inner.list = []Session{*monza()}
	_, err = p.Sessions(ctx, Query{Year: 2024}, false)
	require.NoError(t, err)
	_, err = p.Sessions(ctx, Query{Year: 2024}, false)
	require.NoError(t, err)
	assert.Equal(t, 3, inner.callCount())
}

func TestRetryPolicyStopsOnNonRetryable(t *testing.T) {
	r := NewRetryPolicy(5, time.Millisecond)
	calls := 0
	err := r.Execute(context.Background(), func(context.Context) error {
		calls++
		return &StatusError{Code: 404}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	calls = 0
	err = r.Execute(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return &StatusError{Code: 503}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}
