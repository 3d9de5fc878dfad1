package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aldernero/scd4x"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/twhlynch/AuroraV-Avionics-data/bme280"
)

type ServeCommand struct {
	// Server Options
	Host string `short:"H" long:"host" default:"127.0.0.1" description:"IP to listen on"`
	Port uint16 `short:"P" long:"port" default:"27315" description:"Port to listen on"`

	// Sensor Options
	Interval     uint16 `short:"I" long:"interval" default:"5" description:"Interval between readings in seconds"`
	I2CDevice    string `short:"D" long:"i2cdev" description:"The used I2C device (default: auto)"`
	Addr         uint16 `long:"addr" default:"76" base:"16" description:"I2C address of the BME280 (hex)"`
	Oversampling string `long:"oversampling" default:"4x" choice:"1x" choice:"2x" choice:"4x" choice:"8x" choice:"16x" description:"Oversampling of all three measurements"`
	Filter       uint8  `long:"filter" default:"4" choice:"0" choice:"2" choice:"4" choice:"8" choice:"16" description:"IIR filter coefficient"`
	SCD4x        bool   `long:"scd4x" description:"Also read CO2 from an SCD4x on the same bus"`

	// Publishing Options
	NATSURL     string `long:"nats-url" description:"Publish readings to this NATS server"`
	NATSSubject string `long:"nats-subject" default:"bme280.readings" description:"NATS subject for readings"`
}

const (
	MIN_TIMEOUT_SECONDS = 2
)

var filterValues = map[uint8]bme280.Filter{
	0:  bme280.NoFilter,
	2:  bme280.F2,
	4:  bme280.F4,
	8:  bme280.F8,
	16: bme280.F16,
}

// updateReading turns every measurement into a SensorReading until ch is
// closed. sensorErr tells a failed read apart from Halt once it is.
func updateReading(ch <-chan physic.Env, sensorErr func() error, scdDev *scd4x.SCD4x, s *server) {
	for env := range ch {
		log.Debug().Msg("new readings")

		reading := NewSensorReading(time.Now())
		reading.setEnv(env)

		if scdDev != nil {
			scdData, err := scdDev.ReadMeasurement()
			if err != nil {
				s.metrics.failures.WithLabelValues("scd4x").Inc()
				log.Error().Err(err).Msg("error while reading SCD4x data")
			} else {
				reading.CO2 = scdData.CO2
			}
		}

		s.update(reading)
	}
	if err := sensorErr(); err != nil {
		s.metrics.failures.WithLabelValues("bme280").Inc()
		log.Error().Err(err).Msg("BME280 readings stopped")
		return
	}
	log.Info().Msg("BME280 readings stopped")
}

func getOutboundIP() (net.IP, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)

	return localAddr.IP, nil
}

func setupI2CBus(i2cdev string) (i2c.BusCloser, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("initialization failed: %w", err)
	}

	bus, err := i2creg.Open(i2cdev)
	if err != nil {
		return nil, fmt.Errorf("couldn't open I2C device: %w", err)
	}

	return bus, nil
}

// setupBMESensor returns the device. the caller has the responsibility to close the bus
func (c *ServeCommand) setupBMESensor(i2cBus i2c.Bus) (*bme280.Dev, error) {
	o, err := bme280.ParseOversampling(c.Oversampling)
	if err != nil {
		return nil, err
	}
	deviceOpts := bme280.Opts{
		Temperature: o,
		Pressure:    o,
		Humidity:    o,
		Filter:      filterValues[c.Filter],
	}

	dev, err := bme280.NewI2C(i2cBus, c.Addr, &deviceOpts)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize sensor: %w", err)
	}

	return dev, nil
}

func setupSCDSensor(i2cBus i2c.BusCloser) (*scd4x.SCD4x, error) {
	sensor, err := scd4x.SensorInit(i2cBus, false)
	if err != nil {
		return nil, err
	}

	log.Info().Msg("initializing SCD4x")
	if err := sensor.StopMeasurements(); err != nil {
		return nil, fmt.Errorf("error while trying to stop periodic measurements: %w", err)
	}
	if err := sensor.StartMeasurements(); err != nil {
		return nil, fmt.Errorf("error while trying to start periodic measurements: %w", err)
	}

	return sensor, nil
}

func (c *ServeCommand) Execute(args []string) error {
	if c.Interval == 0 {
		return errors.New("interval must be at least one second")
	}

	// Boring i2c setup
	bus, err := setupI2CBus(c.I2CDevice)
	if err != nil {
		return err
	}
	defer bus.Close()

	bmeDev, err := c.setupBMESensor(bus)
	if err != nil {
		return err
	}
	cal := bmeDev.Calibration()
	log.Info().Str("dev", bmeDev.String()).Interface("calibration", cal).Msg("sensor ready")

	var scdDev *scd4x.SCD4x
	if c.SCD4x {
		if scdDev, err = setupSCDSensor(bus); err != nil {
			return err
		}
		defer scdDev.StopMeasurements()
	}

	var pub Publisher
	if c.NATSURL != "" {
		if pub, err = NewNATSPublisher(c.NATSURL, c.NATSSubject); err != nil {
			return fmt.Errorf("couldn't connect to NATS: %w", err)
		}
		defer pub.Close()
	}

	s := newServer(&cal, pub)

	// give the sensors time to wake up
	log.Info().Msg("waking up in a second")
	time.Sleep(1 * time.Second)

	// SenseContinuous will take one reading immediately before looping
	intervalDuration := time.Duration(c.Interval)
	readingChannel, err := bmeDev.SenseContinuous(intervalDuration * time.Second)
	if err != nil {
		return fmt.Errorf("couldn't start taking readings: %w", err)
	}
	defer bmeDev.Halt()

	// Start background measurements
	go updateReading(readingChannel, bmeDev.Err, scdDev, s)

	timeoutLen := max(MIN_TIMEOUT_SECONDS, int(c.Interval))

	addr := fmt.Sprintf("%s:%d", c.Host, c.Port)
	srv := &http.Server{
		Addr:         addr,
		ReadTimeout:  time.Duration(timeoutLen) * time.Second,
		WriteTimeout: time.Duration(timeoutLen) * time.Second,
		IdleTimeout:  120 * time.Second,
		Handler:      s.router(),
	}

	errChan := make(chan error, 1)
	go func() {
		if c.Host == "0.0.0.0" {
			// resolve local IP for easier debugging
			if localIP, err := getOutboundIP(); err == nil {
				log.Info().Msgf("listening on %s:%d", localIP, c.Port)
			}
		} else {
			log.Info().Msgf("listening on %s", addr)
		}

		errChan <- srv.ListenAndServe()
	}()

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Debug().Err(err).Msg("sd_notify failed")
	}

	sigChan := make(chan os.Signal, 1)
	// We'll accept graceful shutdowns when quit via SIGINT (Ctrl+C) or SIGTERM.
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutdown requested")
	case err := <-errChan:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	// Give the server a timeout period of 4 seconds
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
	defer cancel()
	// Doesn't block if no connections, but will otherwise wait until the timeout deadline.
	return srv.Shutdown(ctx)
}
