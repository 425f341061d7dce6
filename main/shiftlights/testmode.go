package main

import (
	"context"
	"github.com/jd3nn1s/shiftlights/assetto"
	"github.com/jd3nn1s/shiftlights/config"
	"github.com/jd3nn1s/shiftlights/dirt"
	"github.com/jd3nn1s/shiftlights/frame"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"net"
	"time"
)

const (
	testMinRPM  = 1000
	testMaxRPM  = 7600
	testRPMStep = 50
)

var testStreamInterval = 20 * time.Millisecond

var testHandshake = assetto.HandshakeResponse{
	CarName:     "test_car",
	DriverName:  "Test Driver",
	Identifier:  4242,
	Version:     1,
	TrackName:   "test_track",
	TrackConfig: "test_layout",
}

// runTestMode starts local simulators for every enabled protocol and points
// the configuration at them.
func runTestMode(ctx context.Context, cfg *config.Config) error {
	if cfg.Assetto.Enabled {
		addr, err := runAssettoServer(ctx)
		if err != nil {
			return err
		}
		cfg.Assetto.Host = addr.IP.String()
		cfg.Assetto.Port = addr.Port
	}
	if cfg.Dirt.Enabled {
		if err := runDirtPusher(ctx, cfg.Dirt.Port); err != nil {
			return err
		}
	}
	return nil
}

type rpmSweep struct {
	rpm  float32
	down bool
}

func (s *rpmSweep) next() float32 {
	if s.rpm < testMinRPM {
		s.rpm = testMinRPM
	}
	if s.down {
		s.rpm -= testRPMStep
	} else {
		s.rpm += testRPMStep
	}
	if s.rpm >= testMaxRPM {
		s.down = true
	} else if s.rpm <= testMinRPM {
		s.down = false
	}
	return s.rpm
}

func runAssettoServer(ctx context.Context) (*net.UDPAddr, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		return nil, errors.Wrap(err, "unable to listen for test mode assetto requests")
	}
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	go serveAssetto(ctx, conn)

	addr := conn.LocalAddr().(*net.UDPAddr)
	log.WithField("addr", addr).Info("test mode assetto server listening")
	return addr, nil
}

func serveAssetto(ctx context.Context, conn *net.UDPConn) {
	stop := func() {}
	defer func() {
		stop()
	}()

	buf := make([]byte, assetto.RequestSize)
	for {
		n, peer, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		r := frame.NewReader(buf[:n])
		if err := r.Skip(8); err != nil {
			continue
		}
		op, err := r.Uint32()
		if err != nil {
			continue
		}
		log.WithFields(log.Fields{
			"peer": peer,
			"op":   assetto.Operation(op),
		}).Debug("test mode assetto request")

		switch assetto.Operation(op) {
		case assetto.OpHandshake:
			stop()
			resp, err := testHandshake.MarshalBinary()
			if err != nil {
				log.WithField("err", err).Debug("unable to encode test handshake")
				continue
			}
			if _, err := conn.WriteToUDP(resp, peer); err != nil {
				log.WithField("err", err).Debug("unable to send test handshake")
			}
		case assetto.OpSubscribeUpdate:
			stop()
			streamCtx, cancel := context.WithCancel(ctx)
			stop = cancel
			go streamCarInfo(streamCtx, conn, peer)
		case assetto.OpSubscribeSpot:
			stop()
			streamCtx, cancel := context.WithCancel(ctx)
			stop = cancel
			go streamLaps(streamCtx, conn, peer)
		case assetto.OpDismiss:
			stop()
		}
	}
}

func streamCarInfo(ctx context.Context, conn *net.UDPConn, peer *net.UDPAddr) {
	ticker := time.NewTicker(testStreamInterval)
	defer ticker.Stop()

	sweep := rpmSweep{}
	ci := assetto.CarInfo{
		Identifier: 'a',
		Size:       assetto.CarInfoSize,
		Gear:       3,
	}
	for {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
		ci.EngineRPM = sweep.next()
		ci.SpeedKmh = ci.EngineRPM / 50
		data, err := ci.MarshalBinary()
		if err != nil {
			log.WithField("err", err).Error("unable to encode test car info")
			return
		}
		if _, err := conn.WriteToUDP(data, peer); err != nil {
			log.WithField("err", err).Debug("test car info stream stopped")
			return
		}
	}
}

func streamLaps(ctx context.Context, conn *net.UDPConn, peer *net.UDPAddr) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	lap := assetto.Lap{
		DriverName: "Test Driver",
		CarName:    "test_car",
	}
	for {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
		lap.Lap++
		lap.Time = 90000 + lap.Lap*10
		data, err := lap.MarshalBinary()
		if err != nil {
			log.WithField("err", err).Error("unable to encode test lap")
			return
		}
		if _, err := conn.WriteToUDP(data, peer); err != nil {
			log.WithField("err", err).Debug("test lap stream stopped")
			return
		}
	}
}

func runDirtPusher(ctx context.Context, port int) error {
	conn, err := net.DialUDP("udp4", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
	if err != nil {
		return errors.Wrapf(err, "unable to dial test mode dirt port %d", port)
	}
	log.WithField("port", port).Info("test mode dirt pusher started")

	go func() {
		defer conn.Close()
		ticker := time.NewTicker(testStreamInterval)
		defer ticker.Stop()

		sweep := rpmSweep{}
		for {
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
			data := dirt.Encode(dirt.Telemetry{
				EngineRPM: sweep.next(),
				MaxRPM:    testMaxRPM,
			})
			// nobody listening yet is fine, the client binds on connect
			if _, err := conn.Write(data); err != nil {
				log.WithField("err", err).Debug("unable to push test telemetry")
			}
		}
	}()
	return nil
}
