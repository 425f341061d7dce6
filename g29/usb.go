package g29

import (
	"github.com/google/gousb"
	"github.com/pkg/errors"
)

// output reports go to the interrupt OUT endpoint of the HID interface
const outEndpoint = 1

type usbDevice struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	done func()
	out  *gousb.OutEndpoint
}

func openUSB(vendor, product uint16) (Device, error) {
	ctx := gousb.NewContext()
	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vendor), gousb.ID(product))
	if err != nil {
		ctx.Close()
		return nil, errors.Wrapf(err, "unable to open usb device %04x:%04x", vendor, product)
	}
	if dev == nil {
		ctx.Close()
		return nil, errors.Wrapf(ErrDeviceNotFound, "%04x:%04x", vendor, product)
	}
	// the kernel hid driver owns the interface until detached
	if err := dev.SetAutoDetach(true); err != nil {
		dev.Close()
		ctx.Close()
		return nil, errors.Wrap(err, "unable to enable kernel driver auto detach")
	}
	intf, done, err := dev.DefaultInterface()
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, errors.Wrap(err, "unable to claim default interface")
	}
	out, err := intf.OutEndpoint(outEndpoint)
	if err != nil {
		done()
		dev.Close()
		ctx.Close()
		return nil, errors.Wrapf(err, "unable to open out endpoint %d", outEndpoint)
	}
	return &usbDevice{
		ctx:  ctx,
		dev:  dev,
		done: done,
		out:  out,
	}, nil
}

func (d *usbDevice) Write(b []byte) (int, error) {
	return d.out.Write(b)
}

func (d *usbDevice) Close() error {
	d.done()
	err := d.dev.Close()
	if cerr := d.ctx.Close(); err == nil {
		err = cerr
	}
	return err
}
