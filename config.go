package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/twhlynch/AuroraV-Avionics-data/bme280"
)

// LoadCalibration reads a YAML file holding t1..t3, p1..p9 and h1..h6.
//
// Unknown keys are rejected so that a typo doesn't silently leave a
// coefficient at zero.
func LoadCalibration(path string) (bme280.Calibration, error) {
	f, err := os.Open(path)
	if err != nil {
		return bme280.Calibration{}, err
	}
	defer f.Close()

	var cal bme280.Calibration
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cal); err != nil {
		return bme280.Calibration{}, fmt.Errorf("%s: %w", path, err)
	}
	return cal, nil
}
