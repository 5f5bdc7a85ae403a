package broker

import "time"

// reapLoop periodically scans for sessions whose keep-alive deadline has
// passed, or whose last activity is older than ReaperCeiling whatever
// their keep-alive, and tears them down, independent of any
// per-connection read deadline. This catches clients that stopped sending
// traffic but never closed the TCP connection (spec.md §4.4).
func (b *Broker) reapLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.cfg.ReaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.reapExpired()
		case <-b.ctx.Done():
			return
		}
	}
}

func (b *Broker) reapExpired() {
	now := time.Now()

	b.mu.Lock()
	var expired []*conn
	for _, sess := range b.sessions.All() {
		if sess.Expired(now) || now.Sub(sess.LastSeen) > b.cfg.ReaperCeiling {
			if c, ok := b.conns[sess.ClientID]; ok {
				expired = append(expired, c)
			}
		}
	}
	b.mu.Unlock()

	for _, c := range expired {
		b.log.Info("reaping keep-alive-expired session", "client_id", c.clientID)
		c.close()
		b.onConnectionLost(c)
	}
}
