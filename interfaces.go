package shiftlights

import (
	"github.com/jd3nn1s/shiftlights/loop"
	"time"
)

// LEDs is a five segment indicator. Bit 0 of the mask is the first segment.
type LEDs interface {
	SetLEDs(mask uint8) error
	Close() error
}

type Scheduler interface {
	Every(time.Duration, func()) loop.Timer
}
