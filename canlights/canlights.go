// Package canlights publishes the LED mask on a CAN bus for dashes that
// drive their own shift lights.
package canlights

import (
	"github.com/brutella/can"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	frameShiftLights uint32 = 0x104

	maskBits = 0x1f
)

type CANBus interface {
	Disconnect() error
	Publish(can.Frame) error
}

// to allow testing
var newBus = func(name string) (CANBus, error) {
	return can.NewBusForInterfaceWithName(name)
}

type Connection struct {
	bus CANBus
}

func Connect(interfaceName string) (*Connection, error) {
	bus, err := newBus(interfaceName)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open can interface %s", interfaceName)
	}
	log.WithField("interface", interfaceName).Info("CAN bus opened")
	return &Connection{
		bus: bus,
	}, nil
}

func (c *Connection) SetLEDs(mask uint8) error {
	if c.bus == nil {
		return errors.New("can bus not connected")
	}
	log.WithField("mask", mask).Debug("sending led mask over canbus")
	return c.bus.Publish(can.Frame{
		ID:     frameShiftLights,
		Length: 1,
		Data:   [8]uint8{mask & maskBits},
	})
}

func (c *Connection) Close() error {
	if c.bus == nil {
		return errors.New("can bus not connected")
	}
	err := c.bus.Disconnect()
	c.bus = nil
	return err
}
