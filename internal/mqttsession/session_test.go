package mqttsession

import (
	"testing"
	"time"

	"github.com/nas-panel/panel-server/internal/mqttcodec"
	"github.com/stretchr/testify/assert"
)

func TestSessionLifecycle(t *testing.T) {
	s := New("device-1", true, 60, nil)
	assert.Equal(t, StateNew, s.State)

	s.Activate()
	assert.Equal(t, StateActive, s.State)

	s.Close()
	assert.Equal(t, StateClosed, s.State)
}

func TestSessionKeepAliveDeadlineUsesOneAndHalfFactor(t *testing.T) {
	s := New("device-1", true, 60, nil)
	s.LastSeen = time.Unix(1000, 0)

	deadline := s.KeepAliveDeadline()
	assert.Equal(t, s.LastSeen.Add(90*time.Second), deadline)
}

func TestSessionKeepAliveZeroDisablesDeadline(t *testing.T) {
	s := New("device-1", true, 0, nil)
	assert.True(t, s.KeepAliveDeadline().IsZero())
	assert.False(t, s.Expired(time.Now().Add(24*time.Hour)))
}

func TestSessionExpired(t *testing.T) {
	s := New("device-1", true, 1, nil)
	s.LastSeen = time.Now().Add(-10 * time.Second)
	assert.True(t, s.Expired(time.Now()))
}

func TestSessionTouchResetsDeadline(t *testing.T) {
	s := New("device-1", true, 1, nil)
	s.LastSeen = time.Now().Add(-10 * time.Second)
	require := s.Expired(time.Now())
	assert.True(t, require)

	s.Touch()
	assert.False(t, s.Expired(time.Now()))
}

func TestSessionSubscribeUnsubscribe(t *testing.T) {
	s := New("device-1", true, 60, nil)
	s.Subscribe("nas/panel/data", mqttcodec.QoS1)

	qos, ok := s.Subscriptions["nas/panel/data"]
	assert.True(t, ok)
	assert.Equal(t, mqttcodec.QoS1, qos)

	assert.True(t, s.Unsubscribe("nas/panel/data"))
	assert.False(t, s.Unsubscribe("nas/panel/data"))
}

func TestSessionWill(t *testing.T) {
	will := &Will{Topic: "nas/panel/status", Payload: []byte("offline"), QoS: mqttcodec.QoS1, Retain: true}
	s := New("device-1", false, 60, will)
	assert.Equal(t, "offline", string(s.Will.Payload))
}
