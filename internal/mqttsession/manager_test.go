package mqttsession

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerRegisterGetRemove(t *testing.T) {
	m := NewManager()
	s := New("device-1", true, 60, nil)

	prev := m.Register(s)
	assert.Nil(t, prev)

	got, ok := m.Get("device-1")
	require.True(t, ok)
	assert.Same(t, s, got)

	m.Remove("device-1", s)
	_, ok = m.Get("device-1")
	assert.False(t, ok)
}

func TestManagerRegisterReturnsPreviousSession(t *testing.T) {
	m := NewManager()
	first := New("device-1", true, 60, nil)
	second := New("device-1", true, 60, nil)

	m.Register(first)
	prev := m.Register(second)

	assert.Same(t, first, prev)
	got, _ := m.Get("device-1")
	assert.Same(t, second, got)
}

func TestManagerRemoveIgnoresStaleSession(t *testing.T) {
	m := NewManager()
	first := New("device-1", true, 60, nil)
	second := New("device-1", true, 60, nil)

	m.Register(first)
	m.Register(second)
	m.Remove("device-1", first)

	got, ok := m.Get("device-1")
	require.True(t, ok)
	assert.Same(t, second, got)
}

func TestManagerAllAndCount(t *testing.T) {
	m := NewManager()
	m.Register(New("a", true, 60, nil))
	m.Register(New("b", true, 60, nil))

	assert.Equal(t, 2, m.Count())
	assert.Len(t, m.All(), 2)
}
