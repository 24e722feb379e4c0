package shutdown

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShutdownReverseOrder(t *testing.T) {
	m := NewManager()
	var order []string
	m.OnShutdown("db", func(context.Context) error { order = append(order, "db"); return nil })
	m.OnShutdown("hook", func(context.Context) error { order = append(order, "hook"); return errors.New("flush failed") })
	m.OnShutdown("server", func(context.Context) error { order = append(order, "server"); return nil })

	err := m.Shutdown(context.Background())
	assert.EqualError(t, err, "flush failed")
	assert.Equal(t, []string{"server", "hook", "db"}, order)

	assert.NoError(t, m.Shutdown(context.Background()))
	assert.Len(t, order, 3)
}

func TestShutdownStopsOnExpiredContext(t *testing.T) {
	m := NewManager()
	called := false
	m.OnShutdown("db", func(context.Context) error { called = true; return nil })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.Shutdown(ctx), context.Canceled)
	assert.False(t, called)
}
