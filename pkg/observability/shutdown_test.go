package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewShutdownManager_DefaultTimeout(t *testing.T) {
	sm := NewShutdownManager(NopLogger(), nil, 0)
	assert.Equal(t, DefaultShutdownTimeout, sm.timeout)
}

func TestShutdown_RunsFuncsInOrder(t *testing.T) {
	sm := NewShutdownManager(NopLogger(), nil, time.Second)

	var order []int
	for i := 0; i < 3; i++ {
		i := i
		sm.RegisterShutdownFunc(fmt.Sprintf("hook-%d", i), func(ctx context.Context) error {
			order = append(order, i)
			return nil
		})
	}

	require.NoError(t, sm.Shutdown(context.Background()))
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestShutdown_CollectsErrors(t *testing.T) {
	sm := NewShutdownManager(NopLogger(), nil, time.Second)

	ran := 0
	sm.RegisterShutdownFunc("store", func(ctx context.Context) error {
		ran++
		return errors.New("close failed")
	})
	sm.RegisterShutdownFunc("telemetry", func(ctx context.Context) error {
		ran++
		return nil
	})

	err := sm.Shutdown(context.Background())
	require.Error(t, err)
	assert.EqualError(t, err, "store: close failed")
	assert.Equal(t, 2, ran, "later functions still run")
}

func TestShutdown_ExpiredContext(t *testing.T) {
	sm := NewShutdownManager(NopLogger(), nil, time.Second)
	called := false
	sm.RegisterShutdownFunc("store", func(ctx context.Context) error {
		called = true
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, sm.Shutdown(ctx), ErrShutdownTimeout)
	assert.False(t, called)
}

func TestShutdown_StopsServer(t *testing.T) {
	server := &http.Server{Addr: "127.0.0.1:0"}
	sm := NewShutdownManager(NopLogger(), server, time.Second)

	require.NoError(t, sm.Shutdown(context.Background()))
	assert.ErrorIs(t, server.ListenAndServe(), http.ErrServerClosed)
}

func TestWaitForShutdown_ContextCancel(t *testing.T) {
	sm := NewShutdownManager(NopLogger(), nil, time.Second)
	done := make(chan struct{})
	sm.RegisterShutdownFunc("signal", func(ctx context.Context) error {
		close(done)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- sm.WaitForShutdown(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForShutdown did not return")
	}
	<-done
}
