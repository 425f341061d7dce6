// Package g29 drives the rev LEDs on a Logitech G29 wheel.
package g29

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	VendorID  = 0x046d
	ProductID = 0xc24f

	CommandSize = 7

	commandExtended = 0xf8
	// selects the rev LED subsystem
	commandLEDs = 0x12

	maskBits = 0x1f
)

var ErrDeviceNotFound = errors.New("g29 wheel not found")

// Device is a raw output report sink.
type Device interface {
	Write([]byte) (int, error)
	Close() error
}

// Command builds the 7 byte LED command for mask.
func Command(mask uint8) []byte {
	return []byte{commandExtended, commandLEDs, mask & maskBits, 0x00, 0x00, 0x00, 0x01}
}

type Connection struct {
	dev Device
}

// to allow testing
var openDevice = openUSB

// Connect opens the first wheel matching VendorID and ProductID.
func Connect() (*Connection, error) {
	dev, err := openDevice(VendorID, ProductID)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"vendor":  VendorID,
		"product": ProductID,
	}).Info("g29 wheel opened")
	return &Connection{dev: dev}, nil
}

func (c *Connection) SetLEDs(mask uint8) error {
	if c.dev == nil {
		return errors.New("g29 wheel not connected")
	}
	cmd := Command(mask)
	n, err := c.dev.Write(cmd)
	if err != nil {
		return errors.Wrap(err, "unable to write led command")
	}
	if n != len(cmd) {
		return errors.Errorf("short led command write: %d of %d bytes", n, len(cmd))
	}
	return nil
}

func (c *Connection) Close() error {
	if c.dev == nil {
		return nil
	}
	err := c.dev.Close()
	c.dev = nil
	return err
}
