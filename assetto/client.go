package assetto

import (
	"github.com/jd3nn1s/shiftlights/frame"
	"github.com/jd3nn1s/shiftlights/metrics"
	"github.com/jd3nn1s/shiftlights/transport"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	Name        = "assetto"
	DefaultPort = 9996
)

type State int

const (
	Disconnected State = iota
	HandshakePending
	Subscribed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case HandshakePending:
		return "handshake-pending"
	case Subscribed:
		return "subscribed"
	}
	return "unknown"
}

type Callbacks struct {
	Connected    func(HandshakeResponse)
	Disconnected func()
	CarInfo      func(*CarInfo)
	Lap          func(Lap)
}

type Config struct {
	Host string
	Port int
	// Spot subscribes to lap events instead of the car info stream.
	Spot bool
}

type session interface {
	Connect() error
	Disconnect()
	Send([]byte) error
	Connected() bool
}

// to allow testing
var newSession = func(cfg transport.Config, sched transport.Scheduler, m *metrics.Metrics, cb transport.Callbacks) session {
	return transport.NewSession(cfg, sched, m, cb)
}

// Client speaks the handshake protocol: handshake, subscribe, then a stream
// of car info (or lap) datagrams until dismissed. All methods must run on
// the scheduler's loop.
type Client struct {
	cfg     Config
	cb      Callbacks
	metrics *metrics.Metrics
	session session
	log     *log.Entry

	state     State
	seenFirst bool
}

func NewClient(cfg Config, sched transport.Scheduler, m *metrics.Metrics, cb Callbacks) *Client {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	c := &Client{
		cfg:     cfg,
		cb:      cb,
		metrics: m,
		log:     log.WithField("client", Name),
	}
	c.session = newSession(transport.Config{
		Name: Name,
		Host: cfg.Host,
		Port: cfg.Port,
	}, sched, m, transport.Callbacks{
		Datagram: c.handleDatagram,
		Stale:    c.reconnect,
	})
	return c
}

func (c *Client) State() State {
	return c.state
}

// Connect opens a fresh session and sends the handshake request. Errors
// opening the socket are returned to the caller.
func (c *Client) Connect() error {
	c.state = HandshakePending
	c.seenFirst = false
	if err := c.session.Connect(); err != nil {
		return errors.Wrap(err, "unable to connect")
	}
	c.send(OpHandshake)
	return nil
}

// Disconnect dismisses an active subscription, closes the session and
// emits Disconnected.
func (c *Client) Disconnect() {
	if c.state == Subscribed && c.session.Connected() {
		c.send(OpDismiss)
	}
	c.session.Disconnect()
	if c.state == Disconnected {
		return
	}
	c.state = Disconnected
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

func (c *Client) send(op Operation) {
	c.log.WithField("operation", op).Debug("sending request")
	if err := c.session.Send(Request(op)); err != nil {
		// the session is torn down and the watchdog will reconnect
		c.log.WithFields(log.Fields{
			"operation": op,
			"err":       err,
		}).Warn("unable to send request")
	}
}

func (c *Client) handleDatagram(data []byte) {
	switch c.state {
	case HandshakePending:
		c.handleHandshake(data)
	case Subscribed:
		if c.cfg.Spot {
			c.handleLap(data)
		} else {
			c.handleCarInfo(data)
		}
	default:
		c.log.WithField("length", len(data)).Debug("ignoring datagram while disconnected")
	}
}

func (c *Client) handleHandshake(data []byte) {
	resp, err := DecodeHandshakeResponse(data)
	if err != nil {
		c.discard(data, err)
		return
	}
	c.state = Subscribed
	c.log.WithFields(log.Fields{
		"carName":     resp.CarName,
		"driverName":  resp.DriverName,
		"identifier":  resp.Identifier,
		"version":     resp.Version,
		"trackName":   resp.TrackName,
		"trackConfig": resp.TrackConfig,
	}).Info("connected")

	op := OpSubscribeUpdate
	if c.cfg.Spot {
		op = OpSubscribeSpot
	}
	c.send(op)

	if c.cb.Connected != nil {
		c.cb.Connected(resp)
	}
}

func (c *Client) handleCarInfo(data []byte) {
	ci, err := DecodeCarInfo(data)
	if err != nil {
		c.discard(data, err)
		return
	}
	if !c.seenFirst {
		c.seenFirst = true
		c.log.Infof("first car info: %+v", *ci)
	}
	if c.cb.CarInfo != nil {
		c.cb.CarInfo(ci)
	}
}

func (c *Client) handleLap(data []byte) {
	lap, err := DecodeLap(data)
	if err != nil {
		c.discard(data, err)
		return
	}
	c.log.WithFields(log.Fields{
		"car":    lap.CarName,
		"driver": lap.DriverName,
		"lap":    lap.Lap,
		"time":   lap.Time,
	}).Info("lap completed")
	if c.cb.Lap != nil {
		c.cb.Lap(lap)
	}
}

// discard drops a malformed datagram; connection state is left untouched.
func (c *Client) discard(data []byte, err error) {
	c.metrics.DecodeErrors.WithLabelValues(Name).Inc()
	c.log.WithFields(log.Fields{
		"state":    c.state,
		"length":   len(data),
		"tooShort": errors.Is(err, frame.ErrTooShort),
		"err":      err,
	}).Warn("discarding datagram")
}
