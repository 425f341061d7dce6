package shiftlights

import (
	"github.com/jd3nn1s/shiftlights/assetto"
	"github.com/jd3nn1s/shiftlights/dirt"
	log "github.com/sirupsen/logrus"
)

// AssettoCallbacks feeds the handshake client into the indicator. The
// protocol carries no redline, so the peak is inferred from observed RPM.
func (ind *Indicator) AssettoCallbacks() assetto.Callbacks {
	return assetto.Callbacks{
		Connected: func(assetto.HandshakeResponse) {
			ind.Connected()
		},
		Disconnected: func() {
			log.WithField("client", assetto.Name).Debug("indicator source disconnected")
		},
		CarInfo: func(ci *assetto.CarInfo) {
			ind.update(Telemetry{RPM: ci.EngineRPM})
		},
	}
}

// DirtCallbacks feeds the push client into the indicator, adopting the
// reported max RPM as the peak.
func (ind *Indicator) DirtCallbacks() dirt.Callbacks {
	return dirt.Callbacks{
		Disconnected: func() {
			log.WithField("client", dirt.Name).Debug("indicator source disconnected")
		},
		CarInfo: func(t dirt.Telemetry) {
			ind.update(Telemetry{RPM: t.EngineRPM, PeakRPM: t.MaxRPM})
		},
	}
}

func (ind *Indicator) update(t Telemetry) {
	if err := ind.CarInfo(t); err != nil {
		log.WithField("err", err).Error("unable to update indicator")
	}
}
