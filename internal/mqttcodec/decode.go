package mqttcodec

// Decode consumes a streaming byte buffer and returns the next complete
// packet plus the number of bytes consumed, or ErrNeedMore if buf does not
// yet hold a full packet. It never blocks and never mutates buf; the reader
// task re-slices buf by the returned consumed count. This matches spec.md
// §4.1's "Robustness" rule.
func Decode(buf []byte) (*Packet, int, error) {
	header, headerLen, err := decodeFixedHeader(buf)
	if err != nil {
		return nil, 0, err
	}

	total := headerLen + int(header.remainingLength)
	if len(buf) < total {
		return nil, 0, ErrNeedMore
	}
	body := buf[headerLen:total]

	var pkt *Packet
	switch header.kind {
	case CONNECT:
		pkt, err = decodeConnect(body)
	case CONNACK:
		if len(body) != 2 {
			return nil, 0, ErrMalformedPacket
		}
		pkt = &Packet{Kind: CONNACK, SessionPresent: body[0]&0x01 != 0, ReturnCode: ReasonCode(body[1])}
	case SUBACK:
		if len(body) < 3 {
			return nil, 0, ErrMalformedPacket
		}
		pkt = &Packet{Kind: SUBACK, PacketID: uint16(body[0])<<8 | uint16(body[1]), ReturnCodes: append([]byte(nil), body[2:]...)}
	case UNSUBACK:
		if len(body) != 2 {
			return nil, 0, ErrMalformedPacket
		}
		pkt = &Packet{Kind: UNSUBACK, PacketID: uint16(body[0])<<8 | uint16(body[1])}
	case PUBLISH:
		pkt, err = decodePublish(body, header.flags)
	case PUBACK:
		pkt, err = decodePuback(body)
	case SUBSCRIBE:
		pkt, err = decodeSubscribe(body, header.flags)
	case UNSUBSCRIBE:
		pkt, err = decodeUnsubscribe(body, header.flags)
	case PINGREQ, PINGRESP:
		if header.flags != 0 || len(body) != 0 {
			return nil, 0, ErrMalformedPacket
		}
		pkt = &Packet{Kind: header.kind}
	case DISCONNECT:
		if header.flags != 0 || len(body) != 0 {
			return nil, 0, ErrMalformedPacket
		}
		pkt = &Packet{Kind: DISCONNECT}
	default:
		return nil, 0, ErrMalformedPacket
	}
	if err != nil {
		return nil, 0, err
	}
	return pkt, total, nil
}

func decodeConnect(body []byte) (*Packet, error) {
	protoName, n, err := decodeString(body)
	if err != nil {
		return nil, ErrMalformedPacket
	}
	body = body[n:]
	if protoName != "MQTT" {
		return nil, ErrMalformedPacket
	}

	if len(body) < 1 {
		return nil, ErrMalformedPacket
	}
	level := body[0]
	body = body[1:]
	if level != 4 {
		return nil, ErrMalformedPacket
	}

	if len(body) < 1 {
		return nil, ErrMalformedPacket
	}
	flags := body[0]
	body = body[1:]
	hasUsername := flags&0x80 != 0
	hasPassword := flags&0x40 != 0
	willRetain := flags&0x20 != 0
	willQoS := QoS((flags & 0x18) >> 3)
	hasWill := flags&0x04 != 0
	cleanSession := flags&0x02 != 0
	if flags&0x01 != 0 || !willQoS.Valid() {
		return nil, ErrMalformedPacket
	}

	if len(body) < 2 {
		return nil, ErrMalformedPacket
	}
	keepAlive := uint16(body[0])<<8 | uint16(body[1])
	body = body[2:]

	clientID, n, err := decodeString(body)
	if err != nil {
		return nil, ErrMalformedPacket
	}
	body = body[n:]
	if clientID == "" && !cleanSession {
		return nil, ErrIdentifierRejected
	}

	pkt := &Packet{
		Kind:         CONNECT,
		ClientID:     clientID,
		CleanSession: cleanSession,
		KeepAlive:    keepAlive,
		HasWill:      hasWill,
		WillQoS:      willQoS,
		WillRetain:   willRetain,
	}

	if hasWill {
		topic, n, err := decodeString(body)
		if err != nil {
			return nil, ErrMalformedPacket
		}
		body = body[n:]

		if len(body) < 2 {
			return nil, ErrMalformedPacket
		}
		payloadLen := int(body[0])<<8 | int(body[1])
		body = body[2:]
		if len(body) < payloadLen {
			return nil, ErrMalformedPacket
		}
		pkt.WillTopic = topic
		pkt.WillPayload = append([]byte(nil), body[:payloadLen]...)
		body = body[payloadLen:]
	}

	if hasUsername {
		username, n, err := decodeString(body)
		if err != nil {
			return nil, ErrMalformedPacket
		}
		body = body[n:]
		pkt.HasUsername = true
		pkt.Username = username
	}

	if hasPassword {
		password, n, err := decodeString(body)
		if err != nil {
			return nil, ErrMalformedPacket
		}
		body = body[n:]
		pkt.HasPassword = true
		pkt.Password = password
	}

	return pkt, nil
}

func decodePublish(body []byte, flags byte) (*Packet, error) {
	dup := flags&0x08 != 0
	qos := QoS((flags & 0x06) >> 1)
	retain := flags&0x01 != 0
	if !qos.Valid() {
		return nil, ErrMalformedPacket
	}

	topic, n, err := decodeString(body)
	if err != nil {
		return nil, ErrMalformedPacket
	}
	body = body[n:]
	if containsWildcard(topic) {
		return nil, ErrMalformedPacket
	}

	var packetID uint16
	if qos > QoS0 {
		if len(body) < 2 {
			return nil, ErrMalformedPacket
		}
		packetID = uint16(body[0])<<8 | uint16(body[1])
		body = body[2:]
		if packetID == 0 {
			return nil, ErrMalformedPacket
		}
	}

	return &Packet{
		Kind:     PUBLISH,
		Topic:    topic,
		Payload:  append([]byte(nil), body...),
		QoS:      qos,
		Retain:   retain,
		Dup:      dup,
		PacketID: packetID,
	}, nil
}

func decodePuback(body []byte) (*Packet, error) {
	if len(body) != 2 {
		return nil, ErrMalformedPacket
	}
	return &Packet{Kind: PUBACK, PacketID: uint16(body[0])<<8 | uint16(body[1])}, nil
}

func decodeSubscribe(body []byte, flags byte) (*Packet, error) {
	if flags != 0x02 {
		return nil, ErrMalformedPacket
	}
	if len(body) < 2 {
		return nil, ErrMalformedPacket
	}
	packetID := uint16(body[0])<<8 | uint16(body[1])
	body = body[2:]

	var filters []string
	var reqQoS []QoS
	for len(body) > 0 {
		filter, n, err := decodeString(body)
		if err != nil {
			return nil, ErrMalformedPacket
		}
		body = body[n:]
		if len(body) < 1 {
			return nil, ErrMalformedPacket
		}
		qos := QoS(body[0] & 0x03)
		body = body[1:]
		filters = append(filters, filter)
		reqQoS = append(reqQoS, qos)
	}
	if len(filters) == 0 {
		return nil, ErrMalformedPacket
	}

	return &Packet{Kind: SUBSCRIBE, PacketID: packetID, Filters: filters, RequestQoS: reqQoS}, nil
}

func decodeUnsubscribe(body []byte, flags byte) (*Packet, error) {
	if flags != 0x02 {
		return nil, ErrMalformedPacket
	}
	if len(body) < 2 {
		return nil, ErrMalformedPacket
	}
	packetID := uint16(body[0])<<8 | uint16(body[1])
	body = body[2:]

	var filters []string
	for len(body) > 0 {
		filter, n, err := decodeString(body)
		if err != nil {
			return nil, ErrMalformedPacket
		}
		body = body[n:]
		filters = append(filters, filter)
	}
	if len(filters) == 0 {
		return nil, ErrMalformedPacket
	}

	return &Packet{Kind: UNSUBSCRIBE, PacketID: packetID, Filters: filters}, nil
}

func containsWildcard(topic string) bool {
	for i := 0; i < len(topic); i++ {
		if topic[i] == '+' || topic[i] == '#' {
			return true
		}
	}
	return false
}
