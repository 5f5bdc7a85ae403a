package broker

import (
	"bytes"
	"context"
	"errors"
	"net"

	"github.com/nas-panel/panel-server/internal/mqttcodec"
	"github.com/nas-panel/panel-server/internal/mqttsession"
)

// readBufSize is the chunk size used to grow the per-connection read
// buffer; it has no bearing on the maximum packet size, which is bounded
// by mqttcodec's 256MiB remaining-length ceiling.
const readBufSize = 4096

func (b *Broker) handleConn(nc net.Conn) {
	defer b.wg.Done()

	c := newConn(b.nextConnID(), nc, b.cfg.WriteQueueSize)
	go c.writeLoop()
	defer c.close()

	var buf bytes.Buffer
	chunk := make([]byte, readBufSize)

	for {
		n, err := nc.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
		}
		if err != nil {
			b.onConnectionLost(c)
			return
		}

		for {
			pkt, consumed, decErr := mqttcodec.Decode(buf.Bytes())
			if decErr == mqttcodec.ErrNeedMore {
				break
			}
			if decErr == mqttcodec.ErrIdentifierRejected {
				c.enqueue((&mqttcodec.Packet{Kind: mqttcodec.CONNACK, ReturnCode: mqttcodec.ReasonIdentifierRejected}).Encode())
				b.onConnectionLost(c)
				return
			}
			if decErr != nil {
				// Scenario S4: a malformed packet from one client is
				// isolated to that client's connection; it never takes
				// the broker down.
				b.log.Warn("malformed packet, closing connection", "conn", c.id, "error", decErr)
				b.onConnectionLost(c)
				return
			}

			remaining := append([]byte(nil), buf.Bytes()[consumed:]...)
			buf.Reset()
			buf.Write(remaining)

			if err := b.dispatch(c, pkt); err != nil {
				b.log.Warn("dispatch error, closing connection", "conn", c.id, "error", err)
				b.onConnectionLost(c)
				return
			}
			if pkt.Kind == mqttcodec.DISCONNECT {
				b.onCleanDisconnect(c)
				return
			}
		}
	}
}

func (b *Broker) dispatch(c *conn, pkt *mqttcodec.Packet) error {
	switch pkt.Kind {
	case mqttcodec.CONNECT:
		return b.handleConnect(c, pkt)
	case mqttcodec.PUBLISH:
		return b.handlePublish(c, pkt)
	case mqttcodec.SUBSCRIBE:
		return b.handleSubscribe(c, pkt)
	case mqttcodec.UNSUBSCRIBE:
		return b.handleUnsubscribe(c, pkt)
	case mqttcodec.PINGREQ:
		c.enqueue((&mqttcodec.Packet{Kind: mqttcodec.PINGRESP}).Encode())
		b.touch(c)
		return nil
	case mqttcodec.PUBACK:
		// Acknowledges a QoS1 delivery this broker made earlier. The
		// broker doesn't keep a redelivery queue to retire an entry from
		// (spec.md's Non-goals exclude QoS1 retransmission on the broker
		// side), so there's nothing further to do beyond treating the
		// packet as keep-alive activity; spec.md §4.2's state table has
		// Active | PUBACK -> Active, not a connection close.
		b.touch(c)
		return nil
	case mqttcodec.DISCONNECT:
		return nil
	default:
		return errors.New("broker: unexpected packet from client")
	}
}

func (b *Broker) handleConnect(c *conn, pkt *mqttcodec.Packet) error {
	b.mu.Lock()
	prevConn, dup := b.conns[pkt.ClientID]
	if dup && !pkt.CleanSession {
		// spec.md §7: a duplicate client ID with a non-clean session is
		// IdentifierRejected. The new connection is refused and the
		// existing one is left alone; only a clean-session reconnect is
		// allowed to evict the prior connection.
		b.mu.Unlock()
		c.enqueue((&mqttcodec.Packet{
			Kind:       mqttcodec.CONNACK,
			ReturnCode: mqttcodec.ReasonIdentifierRejected,
		}).Encode())
		return mqttsession.ErrAlreadyConnected
	}

	var will *mqttsession.Will
	if pkt.HasWill {
		will = &mqttsession.Will{Topic: pkt.WillTopic, Payload: pkt.WillPayload, QoS: pkt.WillQoS, Retain: pkt.WillRetain}
	}
	sess := mqttsession.New(pkt.ClientID, pkt.CleanSession, pkt.KeepAlive, will)
	sess.Activate()
	c.clientID = pkt.ClientID

	b.sessions.Register(sess)
	b.conns[pkt.ClientID] = c
	b.mu.Unlock()

	if dup {
		// Clean-session reconnect under the same client ID; the old
		// connection loses, matching the "exactly one client ID"
		// invariant.
		prevConn.close()
	}

	c.enqueue((&mqttcodec.Packet{
		Kind:           mqttcodec.CONNACK,
		SessionPresent: false,
		ReturnCode:     mqttcodec.ReasonAccepted,
	}).Encode())

	b.hooks.Fire(pkt.ClientID, OnConnect)
	return nil
}

func (b *Broker) handleSubscribe(c *conn, pkt *mqttcodec.Packet) error {
	if c.clientID == "" {
		return errors.New("broker: SUBSCRIBE before CONNECT")
	}

	codes := make([]byte, len(pkt.Filters))
	var retainedTopics []string
	for i, filter := range pkt.Filters {
		qos := pkt.RequestQoS[i]
		// spec.md §9 resolves QoS2 as a downgrade to QoS1 rather than a
		// silent accept or a rejection: the broker never maintains the
		// QoS2 exactly-once session state the teacher's qos.Handler does.
		if qos == mqttcodec.QoS2 {
			qos = mqttcodec.QoS1
		}

		matches, err := b.table.Subscribe(filter, c.clientID, qos)
		if err != nil {
			codes[i] = mqttcodec.SubackFailure
			continue
		}
		codes[i] = byte(qos)
		retainedTopics = append(retainedTopics, matches...)

		b.mu.Lock()
		if sess, ok := b.sessions.Get(c.clientID); ok {
			sess.Subscribe(filter, qos)
		}
		b.mu.Unlock()

		b.hooks.Fire(c.clientID, OnSubscribe, filter)
	}

	c.enqueue((&mqttcodec.Packet{Kind: mqttcodec.SUBACK, PacketID: pkt.PacketID, ReturnCodes: codes}).Encode())

	for _, t := range retainedTopics {
		if retained, ok := b.table.RetainedPayload(t); ok {
			c.enqueue((&mqttcodec.Packet{
				Kind:    mqttcodec.PUBLISH,
				Topic:   t,
				Payload: retained.Payload,
				QoS:     mqttcodec.QoS(retained.QoS),
				Retain:  true,
			}).Encode())
		}
	}

	b.touch(c)
	return nil
}

func (b *Broker) handleUnsubscribe(c *conn, pkt *mqttcodec.Packet) error {
	if c.clientID == "" {
		return errors.New("broker: UNSUBSCRIBE before CONNECT")
	}
	for _, filter := range pkt.Filters {
		b.table.Unsubscribe(filter, c.clientID)
		b.mu.Lock()
		if sess, ok := b.sessions.Get(c.clientID); ok {
			sess.Unsubscribe(filter)
		}
		b.mu.Unlock()
	}
	c.enqueue((&mqttcodec.Packet{Kind: mqttcodec.UNSUBACK, PacketID: pkt.PacketID}).Encode())
	b.touch(c)
	return nil
}

func (b *Broker) handlePublish(c *conn, pkt *mqttcodec.Packet) error {
	if c.clientID == "" {
		return errors.New("broker: PUBLISH before CONNECT")
	}
	if err := b.Publish(context.Background(), pkt.Topic, pkt.Payload, byte(pkt.QoS), pkt.Retain); err != nil {
		return err
	}
	b.hooks.Fire(c.clientID, OnPublish, pkt.Topic)
	if pkt.QoS == mqttcodec.QoS1 {
		c.enqueue((&mqttcodec.Packet{Kind: mqttcodec.PUBACK, PacketID: pkt.PacketID}).Encode())
	}
	b.touch(c)
	return nil
}

// Publish fans a message out to every current subscriber, storing it as
// retained first if requested. It implements the same Publisher
// interface the scheduler (internal/schedule) and external-broker
// adapter use, so either can drive traffic through this broker's routing
// table.
func (b *Broker) Publish(ctx context.Context, topicName string, payload []byte, qos byte, retain bool) error {
	subs := b.table.Publish(topicName, payload, qos, retain)

	type recipient struct {
		conn *conn
		qos  mqttcodec.QoS
	}

	b.mu.Lock()
	recipients := make([]recipient, 0, len(subs))
	for _, sub := range subs {
		// Looked up by client ID, not by position: a subscriber whose
		// conn already went away (onConnectionLost/onCleanDisconnect
		// drop b.conns before b.table.UnsubscribeAll runs) is simply
		// skipped here, never shifting a later subscriber's granted QoS
		// onto the wrong recipient.
		rc, ok := b.conns[sub.ClientID]
		if !ok {
			continue
		}
		recipients = append(recipients, recipient{conn: rc, qos: sub.QoS})
	}
	b.mu.Unlock()

	for _, r := range recipients {
		// spec.md §4.3 step 2: effective QoS is the minimum of the
		// publisher's QoS and the subscriber's granted QoS.
		deliverQoS := minQoS(mqttcodec.QoS(qos), r.qos)
		frame := (&mqttcodec.Packet{
			Kind:    mqttcodec.PUBLISH,
			Topic:   topicName,
			Payload: payload,
			QoS:     deliverQoS,
		}).Encode()

		if !r.conn.enqueue(frame) {
			// Slow consumer: drop the connection and fire its will
			// rather than growing the queue unbounded (spec.md §4.6 /
			// scenario S5).
			b.hooks.Fire(r.conn.clientID, OnPublishDropped, topicName)
			b.dropSlowConsumer(r.conn)
		}
	}
	return nil
}

func minQoS(a, b mqttcodec.QoS) mqttcodec.QoS {
	if a < b {
		return a
	}
	return b
}

func (b *Broker) touch(c *conn) {
	b.mu.Lock()
	if sess, ok := b.sessions.Get(c.clientID); ok {
		sess.Touch()
	}
	b.mu.Unlock()
}

func (b *Broker) dropSlowConsumer(c *conn) {
	c.close()
	b.onConnectionLost(c)
}

// onConnectionLost handles an abrupt disconnect: EOF, a read error, a
// malformed packet, or the slow-consumer policy. It removes the session,
// cleans up subscriptions, and fires the will if one is registered.
func (b *Broker) onConnectionLost(c *conn) {
	if c.clientID == "" {
		return
	}

	b.mu.Lock()
	if b.conns[c.clientID] != c {
		// A newer connection has taken over this client ID, or this one
		// was already cleaned up; the session and subscriptions under the
		// ID are not this connection's to remove.
		b.mu.Unlock()
		return
	}
	delete(b.conns, c.clientID)
	sess, ok := b.sessions.Get(c.clientID)
	if ok {
		b.sessions.Remove(c.clientID, sess)
	}
	b.mu.Unlock()

	b.table.UnsubscribeAll(c.clientID)

	if ok {
		b.fireWill(sess)
		b.hooks.Fire(c.clientID, OnDisconnect)
	}
}

// onCleanDisconnect handles a client-initiated DISCONNECT, which MQTT
// 3.1.1 defines as discarding any will message before closing (spec.md
// §4.1).
func (b *Broker) onCleanDisconnect(c *conn) {
	defer c.close()
	if c.clientID == "" {
		return
	}

	b.mu.Lock()
	sess, ok := b.sessions.Get(c.clientID)
	if ok {
		b.sessions.Remove(c.clientID, sess)
	}
	if b.conns[c.clientID] == c {
		delete(b.conns, c.clientID)
	}
	b.mu.Unlock()

	b.table.UnsubscribeAll(c.clientID)
	if ok {
		b.hooks.Fire(c.clientID, OnDisconnect)
	}
}

func (b *Broker) fireWill(sess *mqttsession.Session) {
	if sess.Will == nil {
		return
	}
	b.hooks.Fire(sess.ClientID, OnWill, sess.Will.Topic)
	_ = b.Publish(context.Background(), sess.Will.Topic, sess.Will.Payload, byte(sess.Will.QoS), sess.Will.Retain)
}
