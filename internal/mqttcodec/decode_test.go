package mqttcodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectEncodeDecodeRoundTrip(t *testing.T) {
	in := &Packet{
		Kind:         CONNECT,
		ClientID:     "device-1",
		CleanSession: true,
		KeepAlive:    60,
		HasWill:      true,
		WillTopic:    "nas/panel/status",
		WillPayload:  []byte("offline"),
		WillQoS:      QoS1,
		WillRetain:   true,
		HasUsername:  true,
		Username:     "alice",
		HasPassword:  true,
		Password:     "secret",
	}

	wire := in.Encode()
	out, consumed, err := Decode(wire)
	require.NoError(t, err)
	assert.Equal(t, len(wire), consumed)
	assert.Equal(t, in.ClientID, out.ClientID)
	assert.Equal(t, in.CleanSession, out.CleanSession)
	assert.Equal(t, in.KeepAlive, out.KeepAlive)
	assert.Equal(t, in.WillTopic, out.WillTopic)
	assert.Equal(t, in.WillPayload, out.WillPayload)
	assert.Equal(t, in.WillQoS, out.WillQoS)
	assert.True(t, out.WillRetain)
	assert.Equal(t, in.Username, out.Username)
	assert.Equal(t, in.Password, out.Password)
}

func TestConnectEmptyClientIDRequiresCleanSession(t *testing.T) {
	in := &Packet{Kind: CONNECT, ClientID: "", CleanSession: false, KeepAlive: 30}
	_, _, err := Decode(in.Encode())
	assert.ErrorIs(t, err, ErrIdentifierRejected)
}

func TestConnectRejectsWrongProtocolName(t *testing.T) {
	wire := []byte{byte(CONNECT) << 4, 9, 0, 3, 'M', 'Q', 'X', 4, 2, 0, 10}
	_, _, err := Decode(wire)
	assert.ErrorIs(t, err, ErrMalformedPacket)
}

func TestPublishRoundTripQoS1(t *testing.T) {
	in := &Packet{Kind: PUBLISH, Topic: "nas/panel/data", Payload: []byte(`{"x":1}`), QoS: QoS1, Retain: true, PacketID: 42}
	out, consumed, err := Decode(in.Encode())
	require.NoError(t, err)
	assert.Equal(t, len(in.Encode()), consumed)
	assert.Equal(t, in.Topic, out.Topic)
	assert.Equal(t, in.Payload, out.Payload)
	assert.Equal(t, in.QoS, out.QoS)
	assert.True(t, out.Retain)
	assert.Equal(t, in.PacketID, out.PacketID)
}

func TestPublishQoS0HasNoPacketID(t *testing.T) {
	in := &Packet{Kind: PUBLISH, Topic: "a/b", Payload: []byte("x"), QoS: QoS0}
	out, _, err := Decode(in.Encode())
	require.NoError(t, err)
	assert.Equal(t, uint16(0), out.PacketID)
}

func TestPublishTopicWithWildcardIsMalformed(t *testing.T) {
	in := &Packet{Kind: PUBLISH, Topic: "a/+/b", Payload: []byte("x"), QoS: QoS0}
	_, _, err := Decode(in.Encode())
	assert.ErrorIs(t, err, ErrMalformedPacket)
}

func TestSubscribeRoundTrip(t *testing.T) {
	in := &Packet{
		Kind:       SUBSCRIBE,
		PacketID:   7,
		Filters:    []string{"nas/panel/data", "nas/panel/+"},
		RequestQoS: []QoS{QoS1, QoS0},
	}
	out, _, err := Decode(in.Encode())
	require.NoError(t, err)
	assert.Equal(t, in.Filters, out.Filters)
	assert.Equal(t, in.RequestQoS, out.RequestQoS)
}

func TestSubscribeWrongFlagsIsMalformed(t *testing.T) {
	wire := []byte{byte(SUBSCRIBE) << 4, 6, 0, 1, 0, 1, 'a', 0}
	_, _, err := Decode(wire)
	assert.ErrorIs(t, err, ErrMalformedPacket)
}

func TestPingreqPingrespDisconnectHaveZeroLength(t *testing.T) {
	for _, kind := range []Type{PINGREQ, DISCONNECT} {
		wire := (&Packet{Kind: kind}).Encode()
		assert.Equal(t, []byte{byte(kind) << 4, 0}, wire)
		out, consumed, err := Decode(wire)
		require.NoError(t, err)
		assert.Equal(t, kind, out.Kind)
		assert.Equal(t, 2, consumed)
	}
}

func TestDecodeNeedsMoreOnTruncatedPacket(t *testing.T) {
	in := &Packet{Kind: PUBLISH, Topic: "a/b", Payload: []byte("hello world"), QoS: QoS0}
	wire := in.Encode()
	_, _, err := Decode(wire[:len(wire)-3])
	assert.ErrorIs(t, err, ErrNeedMore)
}

func TestDecodeOversizedTopicLengthIsMalformed(t *testing.T) {
	// PUBLISH fixed header claims remaining length 4, but the embedded topic
	// length field (0x7FFF) claims a string far larger than what follows -
	// this is scenario S4 in spec.md §8.
	wire := []byte{byte(PUBLISH) << 4, 4, 0x7F, 0xFF, 'a', 'b'}
	_, _, err := Decode(wire)
	assert.ErrorIs(t, err, ErrMalformedPacket)
}
