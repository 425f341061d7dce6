package dirt

import (
	"github.com/jd3nn1s/shiftlights/frame"
	"github.com/pkg/errors"
)

const (
	rpmOffset    = 37 * 4
	maxRPMOffset = 25 * 4

	// RecordSize is the shortest datagram that carries both RPM fields.
	RecordSize = rpmOffset + 4 + maxRPMOffset + 4

	// engine speeds are sent in tenths
	rpmScale = 10
)

type Telemetry struct {
	EngineRPM float32
	MaxRPM    float32
}

func Decode(data []byte) (Telemetry, error) {
	r := frame.NewReader(data)
	if err := r.Skip(rpmOffset); err != nil {
		return Telemetry{}, errors.Wrap(err, "unable to decode telemetry")
	}
	rpm, err := r.Float32()
	if err != nil {
		return Telemetry{}, errors.Wrap(err, "unable to decode engine rpm")
	}
	if err := r.Skip(maxRPMOffset); err != nil {
		return Telemetry{}, errors.Wrap(err, "unable to decode telemetry")
	}
	maxRPM, err := r.Float32()
	if err != nil {
		return Telemetry{}, errors.Wrap(err, "unable to decode max rpm")
	}
	return Telemetry{
		EngineRPM: rpm * rpmScale,
		MaxRPM:    maxRPM * rpmScale,
	}, nil
}

// Encode builds a minimal datagram with reserved regions zeroed.
func Encode(t Telemetry) []byte {
	w := frame.NewWriter(RecordSize)
	w.Skip(rpmOffset)
	w.PutFloat32(t.EngineRPM / rpmScale)
	w.Skip(maxRPMOffset)
	w.PutFloat32(t.MaxRPM / rpmScale)
	return w.Bytes()
}
