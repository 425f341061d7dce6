package transport

import (
	"github.com/google/uuid"
	"github.com/jd3nn1s/shiftlights/loop"
	"github.com/jd3nn1s/shiftlights/metrics"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"net"
	"strconv"
	"time"
)

const maxDatagramSize = 2048

type Scheduler interface {
	Post(func()) bool
	Every(time.Duration, func()) loop.Timer
}

type Config struct {
	// Name identifies the owning client in logs and metrics.
	Name string
	Host string
	Port int
	// LocalPort binds the endpoint, required when the peer pushes data
	// unsolicited. Zero picks an ephemeral port.
	LocalPort int
}

type Callbacks struct {
	Datagram func(data []byte)
	// Stale replaces the watchdog's default Disconnect+Connect so the owner
	// can tear down its own protocol state first.
	Stale func()
}

// Session owns one UDP endpoint. Every method must be called from the
// scheduler's loop.
type Session struct {
	cfg     Config
	sched   Scheduler
	metrics *metrics.Metrics
	cb      Callbacks
	log     *log.Entry

	conn       *net.UDPConn
	peer       *net.UDPAddr
	watchdog   loop.Timer
	generation uint64
	id         uuid.UUID

	lastReceived time.Time
}

func NewSession(cfg Config, sched Scheduler, m *metrics.Metrics, cb Callbacks) *Session {
	return &Session{
		cfg:     cfg,
		sched:   sched,
		metrics: m,
		cb:      cb,
		log:     log.WithField("client", cfg.Name),
	}
}

// Connect tears down any existing endpoint, opens a new one and starts the
// watchdog. The watchdog keeps running even if opening fails so the next tick
// retries.
func (s *Session) Connect() error {
	s.Disconnect()
	s.lastReceived = time.Time{}
	s.watchdog = s.sched.Every(watchdogInterval, s.check)
	return s.open()
}

func (s *Session) open() error {
	peer, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)))
	if err != nil {
		return errors.Wrapf(err, "unable to resolve %s:%d", s.cfg.Host, s.cfg.Port)
	}
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: s.cfg.LocalPort})
	if err != nil {
		return errors.Wrapf(err, "unable to open udp endpoint on port %d", s.cfg.LocalPort)
	}

	s.conn = conn
	s.peer = peer
	s.generation++
	s.id = uuid.New()
	s.log.WithFields(log.Fields{
		"session": s.id,
		"local":   conn.LocalAddr(),
		"peer":    peer,
	}).Info("udp endpoint opened")

	go s.receive(conn, s.generation)
	return nil
}

// Disconnect stops the watchdog and closes the endpoint. Safe to call when
// already disconnected.
func (s *Session) Disconnect() {
	if s.watchdog != nil {
		s.watchdog.Stop()
		s.watchdog = nil
	}
	s.closeEndpoint()
}

func (s *Session) closeEndpoint() {
	if s.conn == nil {
		return
	}
	// drops datagrams already queued from the old endpoint
	s.generation++
	if err := s.conn.Close(); err != nil {
		s.log.WithField("err", err).Warn("unable to close udp endpoint")
	}
	s.conn = nil
	s.log.WithField("session", s.id).Info("udp endpoint closed")
}

// Send transmits one datagram to the peer. A failed send closes the
// endpoint; the watchdog reconnects on its next tick.
func (s *Session) Send(data []byte) error {
	if s.conn == nil {
		return errors.Errorf("%s: not connected", s.cfg.Name)
	}
	if _, err := s.conn.WriteToUDP(data, s.peer); err != nil {
		s.metrics.SendErrors.WithLabelValues(s.cfg.Name).Inc()
		s.closeEndpoint()
		return errors.Wrapf(err, "unable to send to %s", s.peer)
	}
	return nil
}

func (s *Session) Connected() bool {
	return s.conn != nil
}

func (s *Session) LocalAddr() *net.UDPAddr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr().(*net.UDPAddr)
}

func (s *Session) receive(conn *net.UDPConn, generation uint64) {
	buf := make([]byte, maxDatagramSize)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.log.WithField("err", err).Warn("udp read failed")
			}
			return
		}
		// buffer is reused for the next read
		data := make([]byte, n)
		copy(data, buf[:n])
		if !s.sched.Post(func() {
			s.deliver(generation, data)
		}) {
			return
		}
	}
}

func (s *Session) deliver(generation uint64, data []byte) {
	if generation != s.generation || s.conn == nil {
		return
	}
	s.lastReceived = now()
	s.metrics.DatagramsReceived.WithLabelValues(s.cfg.Name).Inc()
	if s.cb.Datagram != nil {
		s.cb.Datagram(data)
	}
}
