package dirt

import (
	"github.com/jd3nn1s/shiftlights/metrics"
	"github.com/jd3nn1s/shiftlights/transport"
	log "github.com/sirupsen/logrus"
)

const (
	Name        = "dirt"
	DefaultPort = 20777
)

type Callbacks struct {
	Disconnected func()
	CarInfo      func(Telemetry)
}

type Config struct {
	Host string
	Port int
}

type session interface {
	Connect() error
	Disconnect()
}

// to allow testing
var newSession = func(cfg transport.Config, sched transport.Scheduler, m *metrics.Metrics, cb transport.Callbacks) session {
	return transport.NewSession(cfg, sched, m, cb)
}

// Client listens for telemetry the game pushes to a local port. There is no
// handshake, so data arriving is the only sign of a live connection.
type Client struct {
	cb      Callbacks
	metrics *metrics.Metrics
	session session
	log     *log.Entry

	connected bool
	seenFirst bool
}

func NewClient(cfg Config, sched transport.Scheduler, m *metrics.Metrics, cb Callbacks) *Client {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	c := &Client{
		cb:      cb,
		metrics: m,
		log:     log.WithField("client", Name),
	}
	c.session = newSession(transport.Config{
		Name:      Name,
		Host:      cfg.Host,
		Port:      cfg.Port,
		LocalPort: cfg.Port,
	}, sched, m, transport.Callbacks{
		Datagram: c.handleDatagram,
		Stale:    c.reconnect,
	})
	return c
}

func (c *Client) Connect() error {
	c.seenFirst = false
	if err := c.session.Connect(); err != nil {
		return err
	}
	c.connected = true
	return nil
}

func (c *Client) Disconnect() {
	c.session.Disconnect()
	if !c.connected {
		return
	}
	c.connected = false
	c.log.Info("disconnected")
	if c.cb.Disconnected != nil {
		c.cb.Disconnected()
	}
}

func (c *Client) reconnect() {
	c.Disconnect()
	if err := c.Connect(); err != nil {
		c.log.WithField("err", err).Error("reconnect failed")
	}
}

func (c *Client) handleDatagram(data []byte) {
	t, err := Decode(data)
	if err != nil {
		c.metrics.DecodeErrors.WithLabelValues(Name).Inc()
		c.log.WithFields(log.Fields{
			"length": len(data),
			"err":    err,
		}).Warn("discarding datagram")
		return
	}
	if !c.seenFirst {
		c.seenFirst = true
		c.log.Infof("first telemetry: %+v", t)
	}
	if c.cb.CarInfo != nil {
		c.cb.CarInfo(t)
	}
}
