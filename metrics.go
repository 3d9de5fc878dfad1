package main

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	temp     prometheus.Gauge
	press    prometheus.Gauge
	hum      prometheus.Gauge
	co2      prometheus.Gauge
	failures *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		temp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bme280_temperature_celsius",
			Help: "Temperature from BME280",
		}),
		press: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bme280_pressure_hpa",
			Help: "Pressure from BME280",
		}),
		hum: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bme280_humidity_percent",
			Help: "Humidity from BME280",
		}),
		co2: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scd4x_co2_ppm",
			Help: "CO2 concentration from SCD4x",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensor_read_failures_total",
			Help: "Failed sensor reads",
		}, []string{"sensor"}),
	}
	reg.MustRegister(m.temp, m.press, m.hum, m.co2, m.failures)
	return m
}

func (m *metrics) observe(r SensorReading) {
	m.temp.Set(r.Temperature)
	m.press.Set(r.Pressure)
	m.hum.Set(r.Humidity)
	if r.CO2 != 0 {
		m.co2.Set(float64(r.CO2))
	}
}
