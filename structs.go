package main

import (
	"time"

	"github.com/twhlynch/AuroraV-Avionics-data/bme280"
	"periph.io/x/conn/v3/physic"
)

type SensorReading struct {
	Temperature float64   `json:"temperature"` // °C
	Pressure    float64   `json:"pressure"`    // hPa
	Humidity    float64   `json:"humidity"`    // %RH
	CO2         uint16    `json:"co2,omitempty"`
	Updated     time.Time `json:"-"`
	UpdatedStr  string    `json:"updated"`
}

func NewSensorReading(date time.Time) SensorReading {
	return SensorReading{
		Updated:    date,
		UpdatedStr: date.Format("2006-01-02 15:04:05"), // ISO 8601 without timezone
	}
}

// setEnv copies a BME280 measurement into the reading.
func (r *SensorReading) setEnv(env physic.Env) {
	r.Temperature = env.Temperature.Celsius()
	r.Pressure = float64(env.Pressure) / float64(HectoPascal)
	r.Humidity = float64(env.Humidity) / float64(physic.PercentRH)
}

const HectoPascal = 100 * physic.Pascal

// CompensateRequest is the body of POST /compensate.
type CompensateRequest struct {
	Raw bme280.Raw `json:"raw"`
	// Calibration defaults to the attached sensor's.
	Calibration *bme280.Calibration `json:"calibration,omitempty"`
	// Scale is "native" (default) or "shift4".
	Scale string `json:"scale,omitempty"`
}
