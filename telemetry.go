package shiftlights

// Telemetry is the part of a car info record the indicator needs.
type Telemetry struct {
	RPM float32
	// PeakRPM is the redline reported by the source, zero when it has none.
	PeakRPM float32
}
