package bme280

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Sizes of the two calibration register blocks.
const (
	CalTPSize = int(AddrCal1End-AddrCal1Start) + 1 // 0x88 through 0xA1
	CalHSize  = int(AddrCal2End-AddrCal2Start) + 1 // 0xE1 through 0xE7

	// CalDumpSize is the size of both blocks stored back to back.
	CalDumpSize = CalTPSize + CalHSize

	// calTempSize is the size of dig_T1..dig_T3 alone.
	calTempSize = 6
)

// ErrShortCalibration is returned when a calibration buffer is truncated.
var ErrShortCalibration = errors.New("bme280: calibration data too short")

// Calibration holds the factory trimming parameters of one device.
//
// The field widths are those of the registers; using wider or unsigned types
// changes the sign extension and silently corrupts the results.
type Calibration struct {
	T1 uint16 `json:"t1" yaml:"t1"`
	T2 int16  `json:"t2" yaml:"t2"`
	T3 int16  `json:"t3" yaml:"t3"`

	P1 uint16 `json:"p1" yaml:"p1"`
	P2 int16  `json:"p2" yaml:"p2"`
	P3 int16  `json:"p3" yaml:"p3"`
	P4 int16  `json:"p4" yaml:"p4"`
	P5 int16  `json:"p5" yaml:"p5"`
	P6 int16  `json:"p6" yaml:"p6"`
	P7 int16  `json:"p7" yaml:"p7"`
	P8 int16  `json:"p8" yaml:"p8"`
	P9 int16  `json:"p9" yaml:"p9"`

	H1 uint8 `json:"h1" yaml:"h1"`
	H2 int16 `json:"h2" yaml:"h2"`
	H3 uint8 `json:"h3" yaml:"h3"`
	H4 int16 `json:"h4" yaml:"h4"`
	H5 int16 `json:"h5" yaml:"h5"`
	H6 int8  `json:"h6" yaml:"h6"`
}

// Temp returns the temperature in °C and the fine temperature for raw.
func (c *Calibration) Temp(raw int32) (float64, FineTemp) {
	return CompensateTemp(raw, c.T1, c.T2, c.T3)
}

// Pressure returns the pressure in Pa for raw.
func (c *Calibration) Pressure(raw int32, tFine FineTemp) float64 {
	return CompensatePressure(raw, tFine, c.P1, c.P2, c.P3, c.P4, c.P5, c.P6, c.P7, c.P8, c.P9)
}

// Humidity returns the relative humidity in %RH for raw.
func (c *Calibration) Humidity(raw uint32, tFine FineTemp) float64 {
	return CompensateHumidity(raw, tFine, c.H1, c.H2, c.H3, c.H4, c.H5, c.H6)
}

// newCalibration parses calibration data from both buffers.
func newCalibration(tph, h []byte) (c Calibration) {
	// tph covers 0x88 through 0xA1
	// h covers 0xE1 through 0xE7

	le := binary.LittleEndian
	c.T1 = le.Uint16(tph[0:])
	c.T2 = int16(le.Uint16(tph[2:]))
	c.T3 = int16(le.Uint16(tph[4:]))

	c.P1 = le.Uint16(tph[6:])
	c.P2 = int16(le.Uint16(tph[8:]))
	c.P3 = int16(le.Uint16(tph[10:]))
	c.P4 = int16(le.Uint16(tph[12:]))
	c.P5 = int16(le.Uint16(tph[14:]))
	c.P6 = int16(le.Uint16(tph[16:]))
	c.P7 = int16(le.Uint16(tph[18:]))
	c.P8 = int16(le.Uint16(tph[20:]))
	c.P9 = int16(le.Uint16(tph[22:]))

	// 0xA0 is unused.
	c.H1 = tph[25]
	if len(h) < CalHSize {
		// BMP280 has no humidity block.
		return c
	}
	c.H2 = int16(le.Uint16(h[0:]))
	c.H3 = h[2]
	// H4 and H5 are 12 bit signed values sharing the nibbles of 0xE5.
	c.H4 = int16(int8(h[3]))<<4 | int16(h[4]&0x0F)
	c.H5 = int16(int8(h[5]))<<4 | int16(h[4]>>4)
	c.H6 = int8(h[6])
	return c
}

// ParseCalibration decodes a dump of the calibration registers: 26 bytes
// from 0x88 followed by 7 bytes from 0xE1.
func ParseCalibration(b []byte) (Calibration, error) {
	if len(b) < CalDumpSize {
		return Calibration{}, fmt.Errorf("%w: got %d bytes, want %d", ErrShortCalibration, len(b), CalDumpSize)
	}
	return newCalibration(b[:CalTPSize], b[CalTPSize:CalDumpSize]), nil
}

// ParseTempCalibration decodes dig_T1, dig_T2 and dig_T3 stored as little
// endian <uint16, int16, int16>. Pressure and humidity coefficients are left
// zero.
func ParseTempCalibration(b []byte) (Calibration, error) {
	if len(b) < calTempSize {
		return Calibration{}, fmt.Errorf("%w: got %d bytes, want %d", ErrShortCalibration, len(b), calTempSize)
	}
	return Calibration{
		T1: binary.LittleEndian.Uint16(b[0:]),
		T2: int16(binary.LittleEndian.Uint16(b[2:])),
		T3: int16(binary.LittleEndian.Uint16(b[4:])),
	}, nil
}

// ParseTempCoefficients parses "T1,T2,T3", e.g. "27504,26435,-1000".
func ParseTempCoefficients(s string) (Calibration, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return Calibration{}, fmt.Errorf("bme280: want 3 temperature coefficients, got %d", len(parts))
	}
	t1, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 16)
	if err != nil {
		return Calibration{}, fmt.Errorf("bme280: dig_T1: %w", err)
	}
	t2, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 16)
	if err != nil {
		return Calibration{}, fmt.Errorf("bme280: dig_T2: %w", err)
	}
	t3, err := strconv.ParseInt(strings.TrimSpace(parts[2]), 10, 16)
	if err != nil {
		return Calibration{}, fmt.Errorf("bme280: dig_T3: %w", err)
	}
	return Calibration{T1: uint16(t1), T2: int16(t2), T3: int16(t3)}, nil
}
