// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bme280

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

const (
	AddrChipID byte = 0xD0 // read-only, 0x60 on BME280, 0x58 on BMP280
	AddrReset  byte = 0xE0

	// calibration ranges

	AddrCal1Start byte = 0x88
	AddrCal1End   byte = 0xA1
	AddrCal2Start byte = 0xE1
	AddrCal2End   byte = 0xE7

	// control registers

	AddrCtrlHum  byte = 0xF2
	AddrStatus   byte = 0xF3
	AddrCtrlMeas byte = 0xF4
	AddrConfig   byte = 0xF5

	// data registers

	AddrPressMSB  byte = 0xF7
	AddrPressLSB  byte = 0xF8
	AddrPressXLSB byte = 0xF9
	AddrTempMSB   byte = 0xFA
	AddrTempLSB   byte = 0xFB
	AddrTempXLSB  byte = 0xFC
	AddrHumMSB    byte = 0xFD
	AddrHumLSB    byte = 0xFE
)

const (
	chipIDBME280 = 0x60
	chipIDBMP280 = 0x58

	resetCmd = 0xB6

	// statusMeasuring is set while a conversion is running.
	statusMeasuring = 0b1000
	// idlePolls bounds the number of status reads after the expected
	// measurement time elapsed.
	idlePolls = 10
)

// Oversampling affects how much time is taken to measure each of temperature,
// pressure and humidity.
//
// Using high oversampling and low standby results in highest power
// consumption, but this is still below 1mA so we generally don't care.
type Oversampling uint8

// Possible oversampling values.
//
// The higher the more time and power it takes to take a measurement. Even at
// 16x for all 3 sensors, it is less than 100ms albeit increased power
// consumption may increase the temperature reading.
const (
	Off  Oversampling = 0
	O1x  Oversampling = 1
	O2x  Oversampling = 2
	O4x  Oversampling = 3
	O8x  Oversampling = 4
	O16x Oversampling = 5
)

const oversamplingName = "Off1x2x4x8x16x"

var oversamplingIndex = [...]uint8{0, 3, 5, 7, 9, 11, 14}

func (o Oversampling) String() string {
	if o >= Oversampling(len(oversamplingIndex)-1) {
		return fmt.Sprintf("Oversampling(%d)", o)
	}
	return oversamplingName[oversamplingIndex[o]:oversamplingIndex[o+1]]
}

func (o Oversampling) asValue() int {
	switch o {
	case O1x:
		return 1
	case O2x:
		return 2
	case O4x:
		return 4
	case O8x:
		return 8
	case O16x:
		return 16
	default:
		return 0
	}
}

// ParseOversampling converts "1x", "2x", ... or "off" into an Oversampling.
func ParseOversampling(s string) (Oversampling, error) {
	for o := Off; o <= O16x; o++ {
		if strings.EqualFold(s, o.String()) {
			return o, nil
		}
	}
	return Off, fmt.Errorf("bme280: unknown oversampling %q", s)
}

// Filter specifies the internal IIR filter to get steadier measurements.
//
// Oversampling will get better measurements than filtering but at a larger
// power consumption cost, which may slightly affect temperature measurement.
type Filter uint8

// Possible filtering values.
//
// The higher the filter, the slower the value converges but the more stable
// the measurement is.
const (
	NoFilter Filter = 0
	F2       Filter = 1
	F4       Filter = 2
	F8       Filter = 3
	F16      Filter = 4
)

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	Temperature: O4x,
	Pressure:    O4x,
	Humidity:    O4x,
}

// Opts defines the options for the device.
//
// Recommended sensing settings as per the datasheet:
//
// → Weather monitoring: manual sampling once per minute, all sensors O1x.
// Power consumption: 0.16µA, filter NoFilter. RMS noise: 3.3Pa / 30cm, 0.07%RH.
//
// → Humidity sensing: manual sampling once per second, pressure Off, humidity
// and temperature O1X, filter NoFilter. Power consumption: 2.9µA, 0.07%RH.
//
// → Indoor navigation: continuous sampling at 40ms with filter F16, pressure
// O16x, temperature O2x, humidity O1x, filter F16. Power consumption 633µA.
// RMS noise: 0.2Pa / 1.7cm.
//
// See the datasheet for more details about the trade offs.
type Opts struct {
	// Temperature must be measured for pressure and humidity to be measured.
	Temperature Oversampling
	Pressure    Oversampling
	// Humidity is ignored on BMP280.
	Humidity Oversampling
	// Filter is only used while using SenseContinuous()
	Filter Filter
}

// NewI2C returns an object that communicates over I²C to a BME280 or BMP280
// environmental sensor.
//
// The address must be 0x76 or 0x77. The value used depends on HW
// configuration of the sensor's SDO pin.
//
// It is recommended to call Halt() when done with the device so it stops
// sampling.
func NewI2C(b i2c.Bus, addr uint16, opts *Opts) (*Dev, error) {
	switch addr {
	case 0x76, 0x77:
	default:
		return nil, errors.New("bme280: given address not supported by device")
	}
	d := &Dev{d: &i2c.Dev{Bus: b, Addr: addr}, isSPI: false}
	if err := d.makeDev(opts); err != nil {
		return nil, err
	}
	return d, nil
}

// NewSPI returns an object that communicates over SPI to either a BME280 or
// BMP280 environmental sensor.
//
// It is recommended to call Halt() when done with the device so it stops
// sampling.
//
// When using SPI, the CS line must be used.
func NewSPI(p spi.Port, opts *Opts) (*Dev, error) {
	// It works both in Mode0 and Mode3.
	c, err := p.Connect(10*physic.MegaHertz, spi.Mode3, 8)
	if err != nil {
		return nil, fmt.Errorf("bme280: %v", err)
	}
	d := &Dev{d: c, isSPI: true}
	if err := d.makeDev(opts); err != nil {
		return nil, err
	}
	return d, nil
}

// Dev is a handle to an initialized BME280 or BMP280 device.
//
// The actual device type was auto detected.
type Dev struct {
	d      conn.Conn
	isSPI  bool
	isBME  bool
	opts   Opts
	name   string
	engine Engine

	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
	// err is the failure that ended the last continuous sensing.
	err error
}

func (d *Dev) String() string {
	return fmt.Sprintf("%s{%s}", d.name, d.d)
}

// Calibration returns the factory calibration read from the device.
func (d *Dev) Calibration() Calibration {
	return d.engine.Cal
}

// HasHumidity reports whether the device is a BME280.
func (d *Dev) HasHumidity() bool {
	return d.isBME
}

// Sense requests a one time measurement as °C, Pa and % of relative humidity.
//
// The very first measurements may be of poor quality.
func (d *Dev) Sense(e *physic.Env) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return d.wrap(errors.New("already sensing continuously"))
	}
	raw, err := d.measure()
	if err != nil {
		return err
	}
	d.toEnv(raw, e)
	return nil
}

// SenseRaw requests a one time measurement and returns the uncompensated ADC
// counts.
func (d *Dev) SenseRaw() (Raw, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return Raw{}, d.wrap(errors.New("already sensing continuously"))
	}
	return d.measure()
}

// SenseContinuous returns measurements as °C, Pa and % of relative humidity
// on a continuous basis.
//
// The application must call Halt() to stop the sensing when done to stop the
// sensor and close the channel.
//
// It's the responsibility of the caller to retrieve the values from the
// channel as fast as possible, otherwise the interval may not be respected.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan physic.Env, error) {
	if interval <= 0 {
		return nil, d.wrap(fmt.Errorf("invalid interval %s", interval))
	}
	// Don't send the stop command to the device.
	d.stopSensing()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return nil, d.wrap(errors.New("already sensing continuously"))
	}
	err := d.writeCommands([]byte{
		AddrConfig, byte(d.opts.Filter) << 2,
	})
	if err != nil {
		return nil, err
	}

	sensing := make(chan physic.Env)
	stop := make(chan struct{})
	d.stop = stop
	d.err = nil
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer close(sensing)
		d.sensingContinuous(interval, sensing, stop)
	}()
	return sensing, nil
}

// Err returns the error that made SenseContinuous close its channel, or nil
// if it was closed by Halt.
func (d *Dev) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Precision implements physic.SenseEnv.
func (d *Dev) Precision(e *physic.Env) {
	e.Temperature = 10 * physic.MilliKelvin
	e.Pressure = 15625 * physic.MicroPascal / 8
	if d.isBME {
		e.Humidity = 10000 / 1024 * physic.MicroRH
	}
}

// Halt stops the BME280 from acquiring measurements as initiated by
// SenseContinuous().
//
// It is recommended to call this function before terminating the process to
// reduce idle power usage and a goroutine leak.
func (d *Dev) Halt() error {
	if !d.stopSensing() {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writeCommands([]byte{
		// config
		AddrConfig, byte(NoFilter) << 2,
		// ctrl_meas
		AddrCtrlMeas, d.ctrlMeas(sleep),
	})
}

// stopSensing stops the continuous sensing goroutine and waits for it to
// exit. It reports whether one was running.
//
// It must not be called with d.mu held: the goroutine takes it for every
// measurement.
func (d *Dev) stopSensing() bool {
	d.mu.Lock()
	stop := d.stop
	d.stop = nil
	d.mu.Unlock()
	if stop == nil {
		return false
	}
	close(stop)
	d.wg.Wait()
	return true
}

//

// mode is the operating mode.
type mode byte

const (
	sleep  mode = 0 // no operation, all registers accessible, lowest power, selected after startup
	forced mode = 1 // perform one measurement, store results and return to sleep mode
)

func (d *Dev) ctrlMeas(m mode) byte {
	return byte(d.opts.Temperature)<<5 | byte(d.opts.Pressure)<<2 | byte(m)
}

func (d *Dev) makeDev(opts *Opts) error {
	if opts == nil {
		opts = &DefaultOpts
	}
	d.opts = *opts
	if d.opts.Temperature == Off {
		return errors.New("bme280: temperature oversampling must not be Off")
	}

	var chipID [1]byte
	if err := d.readReg(AddrChipID, chipID[:]); err != nil {
		return err
	}
	switch chipID[0] {
	case chipIDBME280:
		d.name = "BME280"
		d.isBME = true
	case chipIDBMP280:
		d.name = "BMP280"
		d.opts.Humidity = Off
	default:
		return fmt.Errorf("bme280: unexpected chip id %#x", chipID[0])
	}

	if err := d.writeCommands([]byte{AddrReset, resetCmd}); err != nil {
		return err
	}
	// Start-up time is 2ms.
	doSleep(2 * time.Millisecond)

	var tph [CalTPSize]byte
	if err := d.readReg(AddrCal1Start, tph[:]); err != nil {
		return err
	}
	var h []byte
	if d.isBME {
		var hb [CalHSize]byte
		if err := d.readReg(AddrCal2Start, hb[:]); err != nil {
			return err
		}
		h = hb[:]
	}
	d.engine = Engine{Cal: newCalibration(tph[:], h), Scale: Native}

	b := []byte{
		// ctrl_meas; put it to sleep otherwise the config update may be
		// ignored.
		AddrCtrlMeas, d.ctrlMeas(sleep),
		// ctrl_hum
		AddrCtrlHum, byte(d.opts.Humidity),
		// config
		AddrConfig, byte(NoFilter) << 2,
		// ctrl_meas must be re-written last for ctrl_hum to take effect.
		AddrCtrlMeas, d.ctrlMeas(sleep),
	}
	if !d.isBME {
		b = append(b[:2], b[4:]...)
	}
	return d.writeCommands(b)
}

// measurementTime is the maximum conversion time as per datasheet appendix B.
func (d *Dev) measurementTime() time.Duration {
	us := 1250 + 2300*d.opts.Temperature.asValue()
	if d.opts.Pressure != Off {
		us += 2300*d.opts.Pressure.asValue() + 575
	}
	if d.opts.Humidity != Off {
		us += 2300*d.opts.Humidity.asValue() + 575
	}
	return time.Duration(us) * time.Microsecond
}

// measure triggers a forced conversion and reads the result.
//
// It must be called with d.mu lock held.
func (d *Dev) measure() (Raw, error) {
	if err := d.writeCommands([]byte{AddrCtrlMeas, d.ctrlMeas(forced)}); err != nil {
		return Raw{}, err
	}
	doSleep(d.measurementTime())
	for i := 0; ; i++ {
		idle, err := d.isIdle()
		if err != nil {
			return Raw{}, err
		}
		if idle {
			break
		}
		if i == idlePolls {
			return Raw{}, d.wrap(errors.New("measurement timed out"))
		}
		doSleep(time.Millisecond)
	}
	return d.readRaw()
}

// readRaw reads the data registers in a single burst so all values belong
// to the same conversion.
func (d *Dev) readRaw() (Raw, error) {
	buf := [8]byte{}
	b := buf[:]
	if !d.isBME {
		b = buf[:6]
	}
	if err := d.readReg(AddrPressMSB, b); err != nil {
		return Raw{}, err
	}
	// These values are 20 bits as per doc.
	var r Raw
	r.Pressure = int32(buf[0])<<12 | int32(buf[1])<<4 | int32(buf[2])>>4
	r.Temperature = int32(buf[3])<<12 | int32(buf[4])<<4 | int32(buf[5])>>4
	// This value is 16 bits as per doc.
	r.Humidity = uint32(buf[6])<<8 | uint32(buf[7])
	return r, nil
}

func (d *Dev) toEnv(raw Raw, e *physic.Env) {
	t, tFine := d.engine.Temp(raw.Temperature)
	e.Temperature = physic.Temperature(math.Round(t*1e6))*physic.MicroKelvin + physic.ZeroCelsius

	if d.opts.Pressure != Off {
		p := d.engine.Pressure(raw.Pressure, tFine)
		e.Pressure = physic.Pressure(math.Round(p*1e3)) * physic.MilliPascal
	}

	if d.opts.Humidity != Off {
		h := d.engine.Humidity(raw.Humidity, tFine)
		e.Humidity = physic.RelativeHumidity(math.Round(h*1e4)) * physic.MicroRH
	}
}

func (d *Dev) isIdle() (bool, error) {
	// status
	v := [1]byte{}
	if err := d.readReg(AddrStatus, v[:]); err != nil {
		return false, err
	}
	// Bit 0 is only important at device boot up.
	return v[0]&statusMeasuring == 0, nil
}

func (d *Dev) sensingContinuous(interval time.Duration, sensing chan<- physic.Env, stop <-chan struct{}) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		// Do one initial sensing right away.
		e := physic.Env{}
		d.mu.Lock()
		raw, err := d.measure()
		if err == nil {
			d.toEnv(raw, &e)
		} else {
			d.err = err
		}
		d.mu.Unlock()
		if err != nil {
			log.Error().Err(err).Str("dev", d.String()).Msg("failed to sense")
			return
		}
		select {
		case sensing <- e:
		case <-stop:
			return
		}
		select {
		case <-stop:
			return
		case <-t.C:
		}
	}
}

func (d *Dev) readReg(reg uint8, b []byte) error {
	if d.isSPI {
		// MSB is 0 for write and 1 for read.
		read := make([]byte, len(b)+1)
		write := make([]byte, len(read))
		// Rest of the write buffer is ignored.
		write[0] = reg | 0x80
		if err := d.d.Tx(write, read); err != nil {
			return d.wrap(err)
		}
		copy(b, read[1:])
		return nil
	}
	if err := d.d.Tx([]byte{reg}, b); err != nil {
		return d.wrap(err)
	}
	return nil
}

// writeCommands writes a command to the device.
//
// Warning: b may be modified!
func (d *Dev) writeCommands(b []byte) error {
	if d.isSPI {
		// set RW bit 7 to 0.
		for i := 0; i < len(b); i += 2 {
			b[i] &^= 0x80
		}
	}
	if err := d.d.Tx(b, nil); err != nil {
		return d.wrap(err)
	}
	return nil
}

func (d *Dev) wrap(err error) error {
	name := d.name
	if name == "" {
		name = "bme280"
	}
	return fmt.Errorf("%s: %w", strings.ToLower(name), err)
}

var doSleep = time.Sleep

var _ conn.Resource = &Dev{}
var _ physic.SenseEnv = &Dev{}
