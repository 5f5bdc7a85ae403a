package mqttcodec

import "errors"

// Sentinel errors for the packet kinds spec.md §7 distinguishes.
var (
	// ErrMalformedPacket is returned when the decoder rejects bytes from a client.
	ErrMalformedPacket = errors.New("mqttcodec: malformed packet")

	// ErrProtocolViolation names valid bytes in an illegal transition. The
	// codec never returns it; the broker detects PUBLISH, SUBSCRIBE or
	// UNSUBSCRIBE before CONNECT itself and reports them with its own errors.
	ErrProtocolViolation = errors.New("mqttcodec: protocol violation")

	// ErrNeedMore is returned by Decode when the buffer does not yet hold a
	// complete packet. It is not a protocol error.
	ErrNeedMore = errors.New("mqttcodec: need more data")

	// ErrIdentifierRejected is returned for an empty client-id on a
	// non-clean-session CONNECT.
	ErrIdentifierRejected = errors.New("mqttcodec: identifier rejected")
)

// ReasonCode enumerates the CONNACK return codes from spec.md §4.1.
type ReasonCode byte

const (
	ReasonAccepted             ReasonCode = 0
	ReasonUnacceptableProtocol ReasonCode = 1
	ReasonIdentifierRejected   ReasonCode = 2
	ReasonServerUnavailable    ReasonCode = 3
	ReasonBadCredentials       ReasonCode = 4
	ReasonNotAuthorized        ReasonCode = 5
)
