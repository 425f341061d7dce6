package assetto

import (
	"github.com/jd3nn1s/shiftlights/frame"
	"github.com/pkg/errors"
)

type Operation uint32

const (
	OpHandshake       Operation = 0
	OpSubscribeUpdate Operation = 1
	OpSubscribeSpot   Operation = 2
	OpDismiss         Operation = 3
)

const (
	RequestSize           = 12
	HandshakeResponseSize = 408
	CarInfoSize           = 328
	LapSize               = 212

	stringWidth = 100
)

func (op Operation) String() string {
	switch op {
	case OpHandshake:
		return "handshake"
	case OpSubscribeUpdate:
		return "subscribe-update"
	case OpSubscribeSpot:
		return "subscribe-spot"
	case OpDismiss:
		return "dismiss"
	}
	return "unknown"
}

// Request builds the 12 byte (identifier, version, operation) frame.
func Request(op Operation) []byte {
	w := frame.NewWriter(RequestSize)
	w.PutUint32(0)
	w.PutUint32(0)
	w.PutUint32(uint32(op))
	return w.Bytes()
}

type HandshakeResponse struct {
	CarName     string
	DriverName  string
	Identifier  uint32
	Version     uint32
	TrackName   string
	TrackConfig string
}

func DecodeHandshakeResponse(data []byte) (HandshakeResponse, error) {
	d := decoder{r: frame.NewReader(data)}
	resp := HandshakeResponse{}
	resp.CarName = d.str()
	resp.DriverName = d.str()
	resp.Identifier = d.u32()
	resp.Version = d.u32()
	resp.TrackName = d.str()
	resp.TrackConfig = d.str()
	if d.err != nil {
		return HandshakeResponse{}, errors.Wrap(d.err, "unable to decode handshake response")
	}
	return resp, nil
}

func (h HandshakeResponse) MarshalBinary() ([]byte, error) {
	e := encoder{w: frame.NewWriter(HandshakeResponseSize)}
	e.str(h.CarName)
	e.str(h.DriverName)
	e.w.PutUint32(h.Identifier)
	e.w.PutUint32(h.Version)
	e.str(h.TrackName)
	e.str(h.TrackConfig)
	return e.w.Bytes(), e.err
}

// Flag is a single byte boolean kept as sent so records re-encode exactly.
type Flag uint8

func (f Flag) On() bool {
	return f != 0
}

// Wheels holds one value per wheel: front left, front right, rear left, rear right.
type Wheels [4]float32

type CarInfo struct {
	Identifier uint32
	Size       uint32

	SpeedKmh float32
	SpeedMph float32
	SpeedMs  float32

	ABSEnabled      Flag
	ABSInAction     Flag
	TCInAction      Flag
	TCEnabled       Flag
	InPit           Flag
	EngineLimiterOn Flag

	AccGVertical   float32
	AccGHorizontal float32
	AccGFrontal    float32

	LapTime  uint32
	LastLap  uint32
	BestLap  uint32
	LapCount uint32

	Gas       float32
	Brake     float32
	Clutch    float32
	EngineRPM float32
	Steer     float32
	Gear      uint32
	CGHeight  float32

	WheelAngularSpeed     Wheels
	SlipAngle             Wheels
	SlipAngleContactPatch Wheels
	SlipRatio             Wheels
	TyreSlip              Wheels
	NDSlip                Wheels
	Load                  Wheels
	Dy                    Wheels
	Mz                    Wheels
	TyreDirtyLevel        Wheels
	CamberRad             Wheels
	TyreRadius            Wheels
	TyreLoadedRadius      Wheels
	SuspensionHeight      Wheels

	CarPositionNormalized float32
	CarSlope              float32
	CarCoordinates        [3]float32
}

func DecodeCarInfo(data []byte) (*CarInfo, error) {
	d := decoder{r: frame.NewReader(data)}
	ci := &CarInfo{}
	ci.Identifier = d.u32()
	ci.Size = d.u32()

	ci.SpeedKmh = d.f32()
	ci.SpeedMph = d.f32()
	ci.SpeedMs = d.f32()

	ci.ABSEnabled = d.flag()
	ci.ABSInAction = d.flag()
	ci.TCInAction = d.flag()
	ci.TCEnabled = d.flag()
	ci.InPit = d.flag()
	ci.EngineLimiterOn = d.flag()
	d.skip(2)

	ci.AccGVertical = d.f32()
	ci.AccGHorizontal = d.f32()
	ci.AccGFrontal = d.f32()

	ci.LapTime = d.u32()
	ci.LastLap = d.u32()
	ci.BestLap = d.u32()
	ci.LapCount = d.u32()

	ci.Gas = d.f32()
	ci.Brake = d.f32()
	ci.Clutch = d.f32()
	ci.EngineRPM = d.f32()
	ci.Steer = d.f32()
	ci.Gear = d.u32()
	ci.CGHeight = d.f32()

	for _, w := range ci.wheelFields() {
		d.wheels(w)
	}

	ci.CarPositionNormalized = d.f32()
	ci.CarSlope = d.f32()
	for i := range ci.CarCoordinates {
		ci.CarCoordinates[i] = d.f32()
	}

	if d.err != nil {
		return nil, errors.Wrap(d.err, "unable to decode car info")
	}
	return ci, nil
}

func (ci *CarInfo) MarshalBinary() ([]byte, error) {
	w := frame.NewWriter(CarInfoSize)
	w.PutUint32(ci.Identifier)
	w.PutUint32(ci.Size)

	w.PutFloat32(ci.SpeedKmh)
	w.PutFloat32(ci.SpeedMph)
	w.PutFloat32(ci.SpeedMs)

	for _, f := range []Flag{ci.ABSEnabled, ci.ABSInAction, ci.TCInAction,
		ci.TCEnabled, ci.InPit, ci.EngineLimiterOn} {
		w.PutUint8(uint8(f))
	}
	w.Skip(2)

	w.PutFloat32(ci.AccGVertical)
	w.PutFloat32(ci.AccGHorizontal)
	w.PutFloat32(ci.AccGFrontal)

	w.PutUint32(ci.LapTime)
	w.PutUint32(ci.LastLap)
	w.PutUint32(ci.BestLap)
	w.PutUint32(ci.LapCount)

	w.PutFloat32(ci.Gas)
	w.PutFloat32(ci.Brake)
	w.PutFloat32(ci.Clutch)
	w.PutFloat32(ci.EngineRPM)
	w.PutFloat32(ci.Steer)
	w.PutUint32(ci.Gear)
	w.PutFloat32(ci.CGHeight)

	for _, wheels := range ci.wheelFields() {
		for _, v := range wheels {
			w.PutFloat32(v)
		}
	}

	w.PutFloat32(ci.CarPositionNormalized)
	w.PutFloat32(ci.CarSlope)
	for _, v := range ci.CarCoordinates {
		w.PutFloat32(v)
	}
	return w.Bytes(), nil
}

// wheelFields lists the per-wheel blocks in wire order.
func (ci *CarInfo) wheelFields() []*Wheels {
	return []*Wheels{
		&ci.WheelAngularSpeed,
		&ci.SlipAngle,
		&ci.SlipAngleContactPatch,
		&ci.SlipRatio,
		&ci.TyreSlip,
		&ci.NDSlip,
		&ci.Load,
		&ci.Dy,
		&ci.Mz,
		&ci.TyreDirtyLevel,
		&ci.CamberRad,
		&ci.TyreRadius,
		&ci.TyreLoadedRadius,
		&ci.SuspensionHeight,
	}
}

// Lap is sent for every completed lap when subscribed with OpSubscribeSpot.
type Lap struct {
	CarIdentifier uint32
	Lap           uint32
	DriverName    string
	CarName       string
	// milliseconds
	Time uint32
}

func DecodeLap(data []byte) (Lap, error) {
	d := decoder{r: frame.NewReader(data)}
	lap := Lap{}
	lap.CarIdentifier = d.u32()
	lap.Lap = d.u32()
	lap.DriverName = d.str()
	lap.CarName = d.str()
	lap.Time = d.u32()
	if d.err != nil {
		return Lap{}, errors.Wrap(d.err, "unable to decode lap")
	}
	return lap, nil
}

func (l Lap) MarshalBinary() ([]byte, error) {
	e := encoder{w: frame.NewWriter(LapSize)}
	e.w.PutUint32(l.CarIdentifier)
	e.w.PutUint32(l.Lap)
	e.str(l.DriverName)
	e.str(l.CarName)
	e.w.PutUint32(l.Time)
	return e.w.Bytes(), e.err
}

// decoder stops at the first error and keeps returning zero values after it.
type decoder struct {
	r   *frame.Reader
	err error
}

func (d *decoder) u32() uint32 {
	if d.err != nil {
		return 0
	}
	v, err := d.r.Uint32()
	d.err = err
	return v
}

func (d *decoder) f32() float32 {
	if d.err != nil {
		return 0
	}
	v, err := d.r.Float32()
	d.err = err
	return v
}

func (d *decoder) flag() Flag {
	if d.err != nil {
		return 0
	}
	v, err := d.r.Uint8()
	d.err = err
	return Flag(v)
}

func (d *decoder) str() string {
	if d.err != nil {
		return ""
	}
	v, err := d.r.String(stringWidth)
	d.err = err
	return v
}

func (d *decoder) skip(n int) {
	if d.err != nil {
		return
	}
	d.err = d.r.Skip(n)
}

func (d *decoder) wheels(w *Wheels) {
	for i := range w {
		w[i] = d.f32()
	}
}

type encoder struct {
	w   *frame.Writer
	err error
}

func (e *encoder) str(s string) {
	if e.err != nil {
		return
	}
	e.err = e.w.PutString(s, stringWidth)
}
