package hook

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSlot_EmptyByDefault(t *testing.T) {
	s := NewSlot()

	fn, name, ok := s.Load()
	require.False(t, ok)
	require.Nil(t, fn)
	require.Empty(t, name)
	require.False(t, s.Published())

	select {
	case <-s.Ready():
		t.Fatal("ready fired before any publish")
	default:
	}
}

func TestSlot_PublishFiresReadyOnce(t *testing.T) {
	s := NewSlot()
	calls := 0

	s.Publish("animate", func(context.Context) error {
		calls++
		return nil
	})

	select {
	case <-s.Ready():
	default:
		t.Fatal("ready not fired after publish")
	}

	fn, name, ok := s.Load()
	require.True(t, ok)
	require.Equal(t, "animate", name)
	require.NoError(t, fn(context.Background()))
	require.Equal(t, 1, calls)

	// a second publish replaces the hook and must not panic on the closed channel
	s.Publish("draw", func(context.Context) error { return nil })
	require.Equal(t, "draw", s.Name())
}

func TestSlot_Clear(t *testing.T) {
	s := NewSlot()
	s.Publish("animate", func(context.Context) error { return nil })
	s.Clear()

	require.False(t, s.Published())
	require.Empty(t, s.Name())

	// readiness is one-shot and stays fired
	select {
	case <-s.Ready():
	default:
		t.Fatal("ready should stay closed after clear")
	}
}

func TestSlot_PublishNilClears(t *testing.T) {
	s := NewSlot()
	s.Publish("animate", func(context.Context) error { return nil })
	s.Publish("animate", nil)
	require.False(t, s.Published())
}
