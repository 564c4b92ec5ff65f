package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMemoryStore_CreateResolve(t *testing.T) {
	s := NewMemoryStore(time.Minute, clockwork.NewFakeClock())
	ctx := context.Background()

	a, err := s.Create(ctx, 7)
	require.NoError(t, err)
	b, err := s.Create(ctx, 7)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	uid, ok, err := s.Resolve(ctx, a)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(7), uid)

	_, ok, err = s.Resolve(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_SlidingExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewMemoryStore(time.Minute, clock)
	ctx := context.Background()

	id, err := s.Create(ctx, 1)
	require.NoError(t, err)

	clock.Advance(50 * time.Second)
	_, ok, _ := s.Resolve(ctx, id)
	require.True(t, ok)

	// the resolve above pushed expiry out another minute
	clock.Advance(50 * time.Second)
	_, ok, _ = s.Resolve(ctx, id)
	require.True(t, ok)

	clock.Advance(time.Minute)
	_, ok, _ = s.Resolve(ctx, id)
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStore_InvalidateOnce(t *testing.T) {
	s := NewMemoryStore(time.Minute, nil)
	ctx := context.Background()
	id, err := s.Create(ctx, 1)
	require.NoError(t, err)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := s.Invalidate(ctx, id); ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)

	_, ok, _ := s.Resolve(ctx, id)
	assert.False(t, ok)
}

func TestMemoryStore_InvalidateExpired(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewMemoryStore(time.Minute, clock)
	id, _ := s.Create(context.Background(), 1)

	clock.Advance(2 * time.Minute)
	ok, err := s.Invalidate(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_PurgeExpired(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewMemoryStore(time.Minute, clock)
	ctx := context.Background()
	_, _ = s.Create(ctx, 1)
	_, _ = s.Create(ctx, 2)
	clock.Advance(30 * time.Second)
	keep, _ := s.Create(ctx, 3)

	clock.Advance(45 * time.Second)
	n, err := s.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, s.Len())

	_, ok, _ := s.Resolve(ctx, keep)
	assert.True(t, ok)
}

type countingStore struct {
	*MemoryStore
	calls atomic.Int32
	err   error
}

func (c *countingStore) PurgeExpired(ctx context.Context) (int, error) {
	c.calls.Add(1)
	if c.err != nil {
		return 0, c.err
	}
	return c.MemoryStore.PurgeExpired(ctx)
}

func TestRunPurger(t *testing.T) {
	store := &countingStore{MemoryStore: NewMemoryStore(time.Minute, nil), err: errors.New("db down")}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunPurger(ctx, store, clockwork.NewRealClock(), 5*time.Millisecond, zap.NewNop().Sugar())
		close(done)
	}()

	assert.Eventually(t, func() bool { return store.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("purger did not stop")
	}
}

func TestRunPurger_DisabledInterval(t *testing.T) {
	store := &countingStore{MemoryStore: NewMemoryStore(time.Minute, nil)}
	RunPurger(context.Background(), store, clockwork.NewRealClock(), 0, zap.NewNop().Sugar())
	assert.Equal(t, int32(0), store.calls.Load())
}

func TestTokenCodec_RoundTrip(t *testing.T) {
	c := NewTokenCodec([]byte("secret"), "service-user")
	tok, err := c.Issue("sid-1")
	require.NoError(t, err)

	sid, err := c.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "sid-1", sid)
}

func TestTokenCodec_Rejects(t *testing.T) {
	c := NewTokenCodec([]byte("secret"), "service-user")
	tok, err := c.Issue("sid-1")
	require.NoError(t, err)

	other := NewTokenCodec([]byte("other"), "service-user")
	_, err = other.Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	wrongIss := NewTokenCodec([]byte("secret"), "someone-else")
	_, err = wrongIss.Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = c.Parse("")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = c.Parse("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{SessionID: "sid-1"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = c.Parse(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)

	empty := NewTokenCodec([]byte("secret"), "service-user")
	noSid, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "service-user"},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = empty.Parse(noSid)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
