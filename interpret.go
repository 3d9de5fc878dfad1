package main

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/twhlynch/AuroraV-Avionics-data/bme280"
)

// InterpretCommand compensates a log of raw samples recorded by the payload.
type InterpretCommand struct {
	CoeffTemp   string `long:"coeff-temp" value-name:"T1,T2,T3" description:"Calibration coefficients for temperature as a comma-separated list (e.g. '1234,-567,890')"`
	CoeffFile   string `long:"coeff-file" value-name:"COEFF_BIN" description:"Binary file containing calibration coefficients"`
	Calibration string `long:"calibration" value-name:"YAML" description:"YAML file containing all calibration coefficients"`
	RawScale    string `long:"raw-scale" default:"shift4" choice:"native" choice:"shift4" description:"How raw temperature and pressure were stored"`
	Plot        string `long:"plot" value-name:"PNG" description:"Plot the compensated temperature into this file"`

	Args struct {
		DataFile string `positional-arg-name:"DATA_BIN" description:"Binary file containing raw data from sensor"`
	} `positional-args:"yes" required:"yes"`

	out io.Writer
}

// recordSize is the size of one logged sample: temperature, pressure and
// humidity as little endian 16 bit words.
const recordSize = 6

type record struct {
	Temp, Press, Hum uint16
}

func (r record) raw() bme280.Raw {
	return bme280.Raw{
		Temperature: int32(r.Temp),
		Pressure:    int32(r.Press),
		Humidity:    uint32(r.Hum),
	}
}

// readRecords decodes records until EOF. A trailing partial record is
// dropped.
func readRecords(r io.Reader) ([]record, error) {
	var recs []record
	var buf [recordSize]byte
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return recs, nil
			}
			return nil, err
		}
		recs = append(recs, record{
			Temp:  binary.LittleEndian.Uint16(buf[0:]),
			Press: binary.LittleEndian.Uint16(buf[2:]),
			Hum:   binary.LittleEndian.Uint16(buf[4:]),
		})
	}
}

// loadCoefficients returns the calibration and whether it includes the
// pressure and humidity coefficients.
func (c *InterpretCommand) loadCoefficients() (bme280.Calibration, bool, error) {
	n := 0
	for _, s := range []string{c.CoeffTemp, c.CoeffFile, c.Calibration} {
		if s != "" {
			n++
		}
	}
	if n != 1 {
		return bme280.Calibration{}, false, errors.New("exactly one of --coeff-temp, --coeff-file or --calibration is required")
	}

	switch {
	case c.CoeffTemp != "":
		cal, err := bme280.ParseTempCoefficients(c.CoeffTemp)
		return cal, false, err
	case c.CoeffFile != "":
		b, err := os.ReadFile(c.CoeffFile)
		if err != nil {
			return bme280.Calibration{}, false, fmt.Errorf("could not open file: %w", err)
		}
		if len(b) >= bme280.CalDumpSize {
			cal, err := bme280.ParseCalibration(b)
			return cal, true, err
		}
		cal, err := bme280.ParseTempCalibration(b)
		return cal, false, err
	default:
		cal, err := LoadCalibration(c.Calibration)
		return cal, true, err
	}
}

func (c *InterpretCommand) Execute(args []string) error {
	out := c.out
	if out == nil {
		out = os.Stdout
	}

	cal, full, err := c.loadCoefficients()
	if err != nil {
		return err
	}
	scale, err := bme280.ParseRawScale(c.RawScale)
	if err != nil {
		return err
	}
	log.Info().
		Uint16("t1", cal.T1).Int16("t2", cal.T2).Int16("t3", cal.T3).
		Bool("full", full).Stringer("scale", scale).
		Msg("coefficients")

	f, err := os.Open(c.Args.DataFile)
	if err != nil {
		return err
	}
	defer f.Close()
	recs, err := readRecords(bufio.NewReader(f))
	if err != nil {
		return fmt.Errorf("%s: %w", c.Args.DataFile, err)
	}
	log.Debug().Int("records", len(recs)).Msg("read data")

	e := bme280.Engine{Cal: cal, Scale: scale}
	w := bufio.NewWriter(out)
	temps := make([]float64, 0, len(recs))
	for _, rec := range recs {
		if full {
			r := e.Compensate(rec.raw())
			fmt.Fprintf(w, "%.3f\t%.3f\t%.3f\n", r.Temperature, r.Pressure, r.Humidity)
			temps = append(temps, r.Temperature)
			continue
		}
		t, _ := e.Temp(int32(rec.Temp))
		fmt.Fprintf(w, "%.3f\n", t)
		temps = append(temps, t)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if c.Plot == "" {
		return nil
	}
	if err := plotTemperature(c.Plot, temps); err != nil {
		return fmt.Errorf("plot: %w", err)
	}
	log.Info().Str("file", c.Plot).Msg("plot written")
	return nil
}
