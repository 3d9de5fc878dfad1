// Package bme280 converts raw BME280/BMP280 readings into °C, Pa and %RH and
// controls the device over I²C or SPI.
//
// The compensation functions follow the double precision reference code of
// the datasheet. The fine temperature computed from the temperature reading is
// returned explicitly and must be passed to the pressure and humidity
// functions for the same sample:
//
//	t, tFine := bme280.CompensateTemp(rawT, cal.T1, cal.T2, cal.T3)
//	p := cal.Pressure(rawP, tFine)
//	h := cal.Humidity(rawH, tFine)
//
// # Datasheets
//
// The URLs tend to rot, visit https://www.bosch-sensortec.com if they become
// invalid.
//
// BME280:
// https://www.bosch-sensortec.com/media/boschsensortec/downloads/datasheets/bst-bme280-ds002.pdf
//
// BMP280:
// https://www.bosch-sensortec.com/media/boschsensortec/downloads/datasheets/bst-bmp280-ds001.pdf
//
// C Reference code can be found from Bosch at
// https://github.com/boschsensortec/BME280_SensorAPI
package bme280
