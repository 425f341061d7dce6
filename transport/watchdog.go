package transport

import (
	"time"
)

var (
	watchdogInterval = 2000 * time.Millisecond
	silenceTimeout   = 2000 * time.Millisecond

	// to allow testing
	now = time.Now
)

// check is the watchdog tick. It reconnects when nothing has arrived since
// connect or the last datagram is older than silenceTimeout. There is no
// backoff: every tick retries until data flows again.
func (s *Session) check() {
	if !s.lastReceived.IsZero() && now().Sub(s.lastReceived) < silenceTimeout {
		return
	}
	s.log.WithField("lastReceived", s.lastReceived).Warn("no data received, reconnecting")
	s.metrics.Reconnects.WithLabelValues(s.cfg.Name).Inc()

	if s.cb.Stale != nil {
		s.cb.Stale()
		return
	}
	if err := s.Connect(); err != nil {
		s.log.WithField("err", err).Error("unable to reconnect")
	}
}
