package bme280_test

import (
	"fmt"

	"github.com/twhlynch/AuroraV-Avionics-data/bme280"
)

func Example() {
	cal := bme280.Calibration{
		T1: 27504, T2: 26435, T3: -1000,
		P1: 36477, P2: -10685, P3: 3024, P4: 2855, P5: 140, P6: -7, P7: 15500, P8: -14600, P9: 6000,
		H1: 75, H2: 362, H3: 0, H4: 313, H5: 50, H6: 30,
	}

	// The fine temperature of the sample is handed over explicitly.
	t, tFine := cal.Temp(519888)
	p := cal.Pressure(415148, tFine)
	h := cal.Humidity(30000, tFine)

	fmt.Printf("%.2f °C %.2f Pa %.3f %%RH\n", t, p, h)
	// Output: 25.08 °C 100653.26 Pa 55.001 %RH
}
