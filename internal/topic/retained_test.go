package topic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetainedSetGetDelete(t *testing.T) {
	rs := NewRetainedStore()
	rs.Set("nas/panel/data", []byte(`{"x":1}`), 0)

	msg, ok := rs.Get("nas/panel/data")
	assert.True(t, ok)
	assert.Equal(t, []byte(`{"x":1}`), msg.Payload)
	assert.Equal(t, 1, rs.Count())

	rs.Delete("nas/panel/data")
	_, ok = rs.Get("nas/panel/data")
	assert.False(t, ok)
	assert.Equal(t, 0, rs.Count())
}

func TestRetainedSetWithEmptyPayloadDeletes(t *testing.T) {
	rs := NewRetainedStore()
	rs.Set("a/b", []byte("x"), 0)
	rs.Set("a/b", nil, 0)

	_, ok := rs.Get("a/b")
	assert.False(t, ok)
	assert.Equal(t, 0, rs.Count())
}

func TestRetainedMatchPlusWildcard(t *testing.T) {
	rs := NewRetainedStore()
	rs.Set("nas/panel1/data", []byte("a"), 0)
	rs.Set("nas/panel2/data", []byte("b"), 0)

	topics := rs.Match("nas/+/data")
	assert.ElementsMatch(t, []string{"nas/panel1/data", "nas/panel2/data"}, topics)
}

func TestRetainedMatchHashWildcard(t *testing.T) {
	rs := NewRetainedStore()
	rs.Set("nas/panel/data", []byte("a"), 0)
	rs.Set("nas/panel/status", []byte("b"), 0)
	rs.Set("nas", []byte("c"), 0)

	topics := rs.Match("nas/#")
	assert.ElementsMatch(t, []string{"nas/panel/data", "nas/panel/status", "nas"}, topics, "'#' also matches its parent level with zero additional levels")
}

func TestRetainedMatchHashExcludesDollarTopicsAtTopLevel(t *testing.T) {
	rs := NewRetainedStore()
	rs.Set("$SYS/broker/uptime", []byte("a"), 0)
	rs.Set("nas/status", []byte("b"), 0)

	topics := rs.Match("#")
	assert.ElementsMatch(t, []string{"nas/status"}, topics)
}

func TestRetainedMatchPlusExcludesDollarTopicsAtTopLevel(t *testing.T) {
	rs := NewRetainedStore()
	rs.Set("$SYS/uptime", []byte("a"), 0)
	rs.Set("nas/uptime", []byte("b"), 0)

	topics := rs.Match("+/uptime")
	assert.ElementsMatch(t, []string{"nas/uptime"}, topics)
}

func TestRetainedMatchExactDollarFilterStillWorks(t *testing.T) {
	rs := NewRetainedStore()
	rs.Set("$SYS/broker/uptime", []byte("a"), 0)

	topics := rs.Match("$SYS/broker/uptime")
	assert.Equal(t, []string{"$SYS/broker/uptime"}, topics)
}
