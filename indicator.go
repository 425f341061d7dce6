package shiftlights

import (
	"github.com/jd3nn1s/shiftlights/loop"
	"github.com/jd3nn1s/shiftlights/metrics"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"time"
)

const (
	// DefaultPeakRPM stands in for the redline when the source does not
	// report one.
	DefaultPeakRPM = 7000

	MaskOff  uint8 = 0x00
	MaskFull uint8 = 0x1f
)

var (
	flashInterval = 100 * time.Millisecond

	// fraction of peak RPM above which segments 1 to 4 light up
	maskThresholds = [...]float32{0.20, 0.40, 0.65, 0.90}

	// the device is the reason the process exists
	fatal = func(err error) {
		log.WithField("err", err).Fatal("unable to open indicator device")
	}
)

// Mask maps rpm to a cumulative bar graph. Segment 0 is always lit.
func Mask(rpm, peakRPM float32) uint8 {
	mask := uint8(1)
	if peakRPM <= 0 {
		return mask
	}
	fraction := rpm / peakRPM
	for i, threshold := range maskThresholds {
		if fraction > threshold {
			mask |= 1 << uint(i+1)
		}
	}
	return mask
}

type IndicatorConfig struct {
	// Flash toggles every segment while the mask is full.
	Flash          bool
	DefaultPeakRPM float32
	PrintTelemetry bool
}

// Indicator turns telemetry into LED commands. All methods must run on the
// scheduler's loop.
type Indicator struct {
	cfg     IndicatorConfig
	sched   Scheduler
	metrics *metrics.Metrics
	open    func() (LEDs, error)

	leds          LEDs
	openAttempted bool

	peakRPM  float32
	prevMask uint8
	hasPrev  bool

	flashTimer loop.Timer
	flashPhase bool
}

func NewIndicator(cfg IndicatorConfig, sched Scheduler, m *metrics.Metrics, open func() (LEDs, error)) *Indicator {
	if cfg.DefaultPeakRPM <= 0 {
		cfg.DefaultPeakRPM = DefaultPeakRPM
	}
	return &Indicator{
		cfg:     cfg,
		sched:   sched,
		metrics: m,
		open:    open,
		peakRPM: cfg.DefaultPeakRPM,
	}
}

func (ind *Indicator) PeakRPM() float32 {
	return ind.peakRPM
}

// Connected resets the peak baseline for a new session and makes sure the
// device is open.
func (ind *Indicator) Connected() {
	ind.peakRPM = ind.cfg.DefaultPeakRPM
	ind.metrics.PeakRPM.Set(float64(ind.peakRPM))
	ind.ensureDevice()
}

// CarInfo updates the indicator. Only device write errors are returned.
func (ind *Indicator) CarInfo(t Telemetry) error {
	if !ind.ensureDevice() {
		return nil
	}
	if ind.cfg.PrintTelemetry {
		log.Infof("%+v", t)
	}

	if t.PeakRPM > 0 {
		ind.peakRPM = t.PeakRPM
	} else if t.RPM > ind.peakRPM {
		ind.peakRPM = t.RPM
	}
	mask := Mask(t.RPM, ind.peakRPM)

	ind.metrics.RPM.Set(float64(t.RPM))
	ind.metrics.PeakRPM.Set(float64(ind.peakRPM))
	ind.metrics.LEDMask.Set(float64(mask))

	if mask == MaskFull && ind.cfg.Flash {
		ind.startFlashing()
		ind.prevMask, ind.hasPrev = mask, true
		return nil
	}
	ind.stopFlashing()

	if ind.hasPrev && mask == ind.prevMask {
		return nil
	}
	if err := ind.write(mask); err != nil {
		return err
	}
	ind.prevMask, ind.hasPrev = mask, true
	return nil
}

// Close stops flashing and releases the device.
func (ind *Indicator) Close() error {
	ind.stopFlashing()
	if ind.leds == nil {
		return nil
	}
	err := ind.leds.Close()
	ind.leds = nil
	return err
}

func (ind *Indicator) ensureDevice() bool {
	if ind.leds != nil {
		return true
	}
	if ind.openAttempted {
		return false
	}
	ind.openAttempted = true
	leds, err := ind.open()
	if err != nil {
		fatal(err)
		return false
	}
	log.Info("indicator device opened")
	ind.leds = leds
	return true
}

func (ind *Indicator) write(mask uint8) error {
	log.WithField("mask", mask).Debug("writing leds")
	if err := ind.leds.SetLEDs(mask); err != nil {
		ind.metrics.DeviceWriteErrors.Inc()
		return errors.Wrapf(err, "unable to write led mask %05b", mask)
	}
	ind.metrics.DeviceWrites.Inc()
	return nil
}

func (ind *Indicator) startFlashing() {
	if ind.flashTimer != nil {
		return
	}
	log.Debug("redline, flashing")
	ind.flashPhase = false
	ind.flashTimer = ind.sched.Every(flashInterval, ind.toggle)
}

func (ind *Indicator) stopFlashing() {
	if ind.flashTimer == nil {
		return
	}
	ind.flashTimer.Stop()
	ind.flashTimer = nil
}

func (ind *Indicator) toggle() {
	if ind.leds == nil {
		return
	}
	ind.flashPhase = !ind.flashPhase
	mask := MaskOff
	if ind.flashPhase {
		mask = MaskFull
	}
	if err := ind.write(mask); err != nil {
		log.WithField("err", err).Error("unable to flash leds")
	}
}
