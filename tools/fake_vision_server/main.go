package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// fakeVisionServer answers /api/v1/extract with synthetic extraction results
// so the ingest path can be exercised without the real vision service.
type fakeVisionServer struct {
	start      time.Time
	latency    time.Duration
	failRate   float64
	nestedRate float64
	noIDRate   float64
	idPrefix   string

	mu         sync.Mutex
	byShape    map[string]int64
	totalCalls int64
	idSeq      int64
}

type analysisFields struct {
	HardwareSystemID string   `json:"hardwareSystemId,omitempty"`
	DLNumber         string   `json:"dlNumber,omitempty"`
	OverallVoltage   *float64 `json:"overallVoltage,omitempty"`
	StateOfCharge    *float64 `json:"stateOfCharge,omitempty"`
}

type extractResponse struct {
	HardwareSystemID string          `json:"hardwareSystemId,omitempty"`
	DLNumber         string          `json:"dlNumber,omitempty"`
	OverallVoltage   *float64        `json:"overallVoltage,omitempty"`
	StateOfCharge    *float64        `json:"stateOfCharge,omitempty"`
	Timestamp        time.Time       `json:"timestamp"`
	Analysis         *analysisFields `json:"analysis,omitempty"`
}

func main() {
	addr := getenvDefault("FAKE_VISION_ADDR", ":18080")
	latencyMs := getenvIntDefault("FAKE_VISION_LATENCY_MS", 0)
	failRate := getenvFloatDefault("FAKE_VISION_FAIL_RATE", 0)
	nestedRate := getenvFloatDefault("FAKE_VISION_NESTED_RATE", 0.3)
	noIDRate := getenvFloatDefault("FAKE_VISION_NO_ID_RATE", 0.1)
	idPrefix := getenvDefault("FAKE_VISION_ID_PREFIX", "ABC")

	srv := &fakeVisionServer{
		start:      time.Now().UTC(),
		latency:    time.Duration(latencyMs) * time.Millisecond,
		failRate:   failRate,
		nestedRate: nestedRate,
		noIDRate:   noIDRate,
		idPrefix:   idPrefix,
		byShape:    make(map[string]int64),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.handleHealth)
	mux.HandleFunc("/metrics", srv.handleMetrics)
	mux.HandleFunc("/api/v1/extract", srv.handleExtract)

	log.Printf("fake vision server listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal(err)
	}
}

func (s *fakeVisionServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *fakeVisionServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	payload := map[string]any{
		"started_at": s.start.Format(time.RFC3339),
		"total":      atomic.LoadInt64(&s.totalCalls),
		"by_shape":   s.byShape,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *fakeVisionServer) handleExtract(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if s.latency > 0 {
		time.Sleep(s.latency)
	}
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		http.Error(w, "multipart upload required", http.StatusBadRequest)
		return
	}
	file, _, err := r.FormFile("screenshot")
	if err != nil {
		http.Error(w, "screenshot part required", http.StatusBadRequest)
		return
	}
	_ = file.Close()

	if s.failRate > 0 && rand.Float64() < s.failRate {
		s.recordCall("failed")
		http.Error(w, "fake vision failure", http.StatusInternalServerError)
		return
	}

	resp := s.buildResponse()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *fakeVisionServer) buildResponse() extractResponse {
	voltage := 44 + rand.Float64()*12
	soc := rand.Float64() * 100

	resp := extractResponse{Timestamp: time.Now().UTC()}
	hardwareID := s.nextHardwareID()
	if s.noIDRate > 0 && rand.Float64() < s.noIDRate {
		hardwareID = "N/A"
	}

	if s.nestedRate > 0 && rand.Float64() < s.nestedRate {
		s.recordCall("nested")
		resp.Analysis = &analysisFields{
			HardwareSystemID: hardwareID,
			OverallVoltage:   &voltage,
			StateOfCharge:    &soc,
		}
		return resp
	}

	s.recordCall("flat")
	resp.HardwareSystemID = hardwareID
	resp.OverallVoltage = &voltage
	resp.StateOfCharge = &soc
	return resp
}

func (s *fakeVisionServer) nextHardwareID() string {
	seq := atomic.AddInt64(&s.idSeq, 1)
	return fmt.Sprintf("%s-%05d", s.idPrefix, seq%100000)
}

func (s *fakeVisionServer) recordCall(shape string) {
	atomic.AddInt64(&s.totalCalls, 1)
	s.mu.Lock()
	s.byShape[shape]++
	s.mu.Unlock()
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
