package bme280

import (
	"errors"
	"fmt"
)

// FineTemp is the fine resolution temperature produced by CompensateTemp.
//
// It is the pivot of the pressure and humidity formulas and must come from
// the temperature reading of the same sample.
type FineTemp int32

// RawScale tells how the raw temperature and pressure counts were assembled.
type RawScale uint8

const (
	// Native means the raw value holds the full 20 bit ADC reading
	// (msb<<12 | lsb<<4 | xlsb>>4). This is what the driver produces.
	Native RawScale = iota
	// Shift4 means the raw value only holds the upper 16 bits of the ADC
	// reading, as stored by loggers that keep one 16 bit word per value. It
	// is shifted left by 4 before compensation.
	Shift4
)

func (s RawScale) String() string {
	switch s {
	case Native:
		return "native"
	case Shift4:
		return "shift4"
	default:
		return fmt.Sprintf("RawScale(%d)", uint8(s))
	}
}

// ParseRawScale is the reverse of RawScale.String.
func ParseRawScale(s string) (RawScale, error) {
	switch s {
	case "native", "":
		return Native, nil
	case "shift4":
		return Shift4, nil
	}
	return Native, fmt.Errorf("bme280: unknown raw scale %q", s)
}

func (s RawScale) apply(raw int32) int32 {
	if s == Shift4 {
		return raw << 4
	}
	return raw
}

// The functions below follow the double precision reference code of the
// BME280 datasheet (section 8.1). Operation order is significant: the
// explicit float64 conversions keep the compiler from fusing multiplies and
// adds so the results are identical on every architecture.

// CompensateTemp returns the temperature in °C. Output value of 51.23 equals
// 51.23 °C.
//
// raw has 20 bits of resolution.
func CompensateTemp(raw int32, t1 uint16, t2, t3 int16) (float64, FineTemp) {
	adc := float64(raw)
	var1 := float64((adc/16384.0 - float64(t1)/1024.0) * float64(t2))
	var2 := float64(float64((adc/131072.0-float64(t1)/8192.0)*(adc/131072.0-float64(t1)/8192.0)) * float64(t3))
	return (var1 + var2) / 5120.0, FineTemp(int32(var1 + var2))
}

// CompensatePressure returns the pressure in Pa. Output value of 96386.2
// equals 96386.2 Pa = 963.862 hPa.
//
// It returns 0 when the calibration yields a zero denominator.
//
// raw has 20 bits of resolution.
func CompensatePressure(raw int32, tFine FineTemp, p1 uint16, p2, p3, p4, p5, p6, p7, p8, p9 int16) float64 {
	var var1, var2, p float64

	var1 = float64(tFine)/2.0 - 64000.0
	var2 = var1 * var1 * float64(p6) / 32768.0
	var2 = var2 + float64(var1*float64(p5)*2.0)
	var2 = var2/4.0 + float64(float64(p4)*65536.0)
	var1 = (float64(float64(p3)*var1*var1/524288.0) + float64(float64(p2)*var1)) / 524288.0
	var1 = (1.0 + var1/32768.0) * float64(p1)
	if var1 == 0.0 {
		return 0
	}
	p = 1048576.0 - float64(raw)
	p = (p - var2/4096.0) * 6250.0 / var1
	var1 = float64(p9) * p * p / 2147483648.0
	var2 = p * float64(p8) / 32768.0
	return p + (var1+var2+float64(p7))/16.0
}

// CompensateHumidity returns the relative humidity in %RH, clamped to
// [0, 100]. Output value of 46.332 represents 46.332 %RH.
//
// raw has 16 bits of resolution.
func CompensateHumidity(raw uint32, tFine FineTemp, h1 uint8, h2 int16, h3 uint8, h4, h5 int16, h6 int8) float64 {
	h := float64(tFine) - 76800.0
	h = (float64(raw) - (float64(float64(h4)*64.0) + float64(float64(h5)/16384.0*h))) *
		(float64(h2) / 65536.0 * (1.0 + float64(float64(h6)/67108864.0*h*(1.0+float64(float64(h3)/67108864.0*h)))))
	h = h * (1.0 - float64(h1)*h/524288.0)
	switch {
	case h > 100.0:
		return 100.0
	case h < 0.0:
		return 0.0
	}
	return h
}

// Raw is one set of uncompensated ADC counts read in a single burst.
type Raw struct {
	Temperature int32  `json:"temperature"`
	Pressure    int32  `json:"pressure"`
	Humidity    uint32 `json:"humidity"`
}

// Values the device reports for a quantity whose measurement was skipped.
const (
	SkippedTP = 0x80000
	SkippedH  = 0x8000
)

var (
	ErrSkipped    = errors.New("bme280: measurement skipped")
	ErrOutOfRange = errors.New("bme280: raw value out of range")
)

// Validate checks r before compensation. The compensation functions accept
// anything, callers handling untrusted input use this first.
func (r Raw) Validate(scale RawScale) error {
	maxTP, skipTP := int32(1<<20-1), int32(SkippedTP)
	if scale == Shift4 {
		maxTP, skipTP = 1<<16-1, SkippedTP>>4
	}
	for _, v := range []struct {
		name string
		raw  int32
	}{{"temperature", r.Temperature}, {"pressure", r.Pressure}} {
		if v.raw < 0 || v.raw > maxTP {
			return fmt.Errorf("%w: %s %d", ErrOutOfRange, v.name, v.raw)
		}
		if v.raw == skipTP {
			return fmt.Errorf("%w: %s", ErrSkipped, v.name)
		}
	}
	if r.Humidity > 1<<16-1 {
		return fmt.Errorf("%w: humidity %d", ErrOutOfRange, r.Humidity)
	}
	if r.Humidity == SkippedH {
		return fmt.Errorf("%w: humidity", ErrSkipped)
	}
	return nil
}

// Reading is a compensated sample.
type Reading struct {
	Temperature float64  `json:"temperature"` // °C
	Pressure    float64  `json:"pressure"`    // Pa
	Humidity    float64  `json:"humidity"`    // %RH
	FineTemp    FineTemp `json:"fineTemp"`
}

// Engine compensates raw samples with one device's calibration.
//
// It holds no per-sample state, the fine temperature is threaded through
// Compensate, so a single Engine can be shared between goroutines.
type Engine struct {
	Cal   Calibration
	Scale RawScale
}

// Temp compensates a raw temperature.
func (e *Engine) Temp(raw int32) (float64, FineTemp) {
	return e.Cal.Temp(e.Scale.apply(raw))
}

// Pressure compensates a raw pressure using tFine from Temp of the same sample.
func (e *Engine) Pressure(raw int32, tFine FineTemp) float64 {
	return e.Cal.Pressure(e.Scale.apply(raw), tFine)
}

// Humidity compensates a raw humidity using tFine from Temp of the same sample.
func (e *Engine) Humidity(raw uint32, tFine FineTemp) float64 {
	return e.Cal.Humidity(raw, tFine)
}

// Compensate converts all three quantities of r.
func (e *Engine) Compensate(r Raw) Reading {
	var out Reading
	out.Temperature, out.FineTemp = e.Temp(r.Temperature)
	out.Pressure = e.Pressure(r.Pressure, out.FineTemp)
	out.Humidity = e.Humidity(r.Humidity, out.FineTemp)
	return out
}
