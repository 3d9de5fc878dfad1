package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/twhlynch/AuroraV-Avionics-data/bme280"
)

// server keeps the latest reading and answers HTTP requests.
type server struct {
	mu      sync.RWMutex
	reading SensorReading
	ready   bool

	// cal is nil when no sensor is attached.
	cal      *bme280.Calibration
	metrics  *metrics
	gatherer prometheus.Gatherer
	pub      Publisher
}

func newServer(cal *bme280.Calibration, pub Publisher) *server {
	reg := prometheus.NewRegistry()
	return &server{
		cal:      cal,
		metrics:  newMetrics(reg),
		gatherer: reg,
		pub:      pub,
	}
}

func (s *server) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleReading).Methods(http.MethodGet)
	r.HandleFunc("/calibration", s.handleCalibration).Methods(http.MethodGet)
	r.HandleFunc("/compensate", s.handleCompensate).Methods(http.MethodPost)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return r
}

// update stores a new reading and forwards it.
func (s *server) update(reading SensorReading) {
	s.mu.Lock()
	s.reading = reading
	s.ready = true
	s.mu.Unlock()

	s.metrics.observe(reading)

	if s.pub == nil {
		return
	}
	msg, err := json.Marshal(reading)
	if err != nil {
		log.Error().Err(err).Msg("marshal reading")
		return
	}
	if err := s.pub.Publish(msg); err != nil {
		log.Error().Err(err).Msg("publish failed")
	}
}

func (s *server) handleReading(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	reading, ready := s.reading, s.ready
	s.mu.RUnlock()
	if !ready {
		http.Error(w, "no reading yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, reading)
}

func (s *server) handleCalibration(w http.ResponseWriter, r *http.Request) {
	if s.cal == nil {
		http.Error(w, "no sensor attached", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, s.cal)
}

func (s *server) handleCompensate(w http.ResponseWriter, r *http.Request) {
	var req CompensateRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}
	scale, err := bme280.ParseRawScale(req.Scale)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := req.Raw.Validate(scale); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, bme280.ErrSkipped) {
			status = http.StatusUnprocessableEntity
		}
		http.Error(w, err.Error(), status)
		return
	}
	cal := req.Calibration
	if cal == nil {
		cal = s.cal
	}
	if cal == nil {
		http.Error(w, "no calibration given and no sensor attached", http.StatusServiceUnavailable)
		return
	}

	e := bme280.Engine{Cal: *cal, Scale: scale}
	writeJSON(w, e.Compensate(req.Raw))
}

func writeJSON(w http.ResponseWriter, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(b); err != nil {
		log.Warn().Err(err).Msg("couldn't send response")
	}
}
