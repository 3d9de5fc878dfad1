package bme280

import (
	"errors"
	"testing"
)

// refDump is refCal as stored in registers 0x88..0xA1 and 0xE1..0xE7.
var refDump = []byte{
	0x70, 0x6B, 0x43, 0x67, 0x18, 0xFC, // T1..T3
	0x7D, 0x8E, 0x43, 0xD6, 0xD0, 0x0B, 0x27, 0x0B, 0x8C, 0x00, // P1..P5
	0xF9, 0xFF, 0x8C, 0x3C, 0xF8, 0xC6, 0x70, 0x17, // P6..P9
	0x00, 0x4B, // reserved, H1
	0x6A, 0x01, 0x00, 0x13, 0x29, 0x03, 0x1E, // H2..H6
}

func TestParseCalibration(t *testing.T) {
	c, err := ParseCalibration(refDump)
	if err != nil {
		t.Fatal(err)
	}
	if c != refCal {
		t.Fatalf("got %+v\nwant %+v", c, refCal)
	}
}

func TestParseCalibrationSignedH4H5(t *testing.T) {
	b := append([]byte(nil), refDump...)
	// H4 = -5, H5 = -2
	b[CalTPSize+3] = 0xFF
	b[CalTPSize+4] = 0xEB
	b[CalTPSize+5] = 0xFF
	c, err := ParseCalibration(b)
	if err != nil {
		t.Fatal(err)
	}
	if c.H4 != -5 || c.H5 != -2 {
		t.Fatalf("H4 = %d, H5 = %d", c.H4, c.H5)
	}
}

func TestParseCalibrationShort(t *testing.T) {
	_, err := ParseCalibration(refDump[:CalTPSize])
	if !errors.Is(err, ErrShortCalibration) {
		t.Fatalf("err = %v", err)
	}
}

func TestParseTempCalibration(t *testing.T) {
	c, err := ParseTempCalibration(refDump[:6])
	if err != nil {
		t.Fatal(err)
	}
	if c != (Calibration{T1: 27504, T2: 26435, T3: -1000}) {
		t.Fatalf("got %+v", c)
	}
	if _, err := ParseTempCalibration(refDump[:5]); !errors.Is(err, ErrShortCalibration) {
		t.Fatalf("err = %v", err)
	}
}

func TestParseTempCoefficients(t *testing.T) {
	c, err := ParseTempCoefficients("27504, 26435,-1000")
	if err != nil {
		t.Fatal(err)
	}
	if c.T1 != 27504 || c.T2 != 26435 || c.T3 != -1000 {
		t.Fatalf("got %+v", c)
	}
	for _, s := range []string{"", "1,2", "1,2,3,4", "70000,1,1", "1,-40000,1", "1,2,x"} {
		if _, err := ParseTempCoefficients(s); err == nil {
			t.Errorf("%q: expected error", s)
		}
	}
}
