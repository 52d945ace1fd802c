package main

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/annolab/annotation-inference/config"
	"github.com/annolab/annotation-inference/models"
	"github.com/annolab/annotation-inference/pipeline"
)

// appState wires the pipeline into the HTTP front-end. The pipeline packages
// themselves have no network surface; this server is a boundary consumer.
type appState struct {
	cfg       *config.AppConfig
	pool      *pipeline.DetectorPool
	segmenter *pipeline.Segmenter
}

type detectResponse struct {
	RequestID  string             `json:"request_id"`
	Detections []models.Detection `json:"detections"`
	Labels     []string           `json:"labels,omitempty"`
}

type segmentRequest struct {
	Image string             `json:"image"` // base64-encoded image bytes
	Point models.PromptPoint `json:"point"`
}

type segmentResponse struct {
	RequestID  string `json:"request_id"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Foreground int    `json:"foreground_pixels"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func runServer(cfg *config.AppConfig) error {
	pool, err := pipeline.NewDetectorPool(cfg.Detection, cfg.PoolSize)
	if err != nil {
		return err
	}
	defer pool.Destroy()

	state := &appState{cfg: cfg, pool: pool}
	if cfg.Segmentation.EncoderPath != "" {
		segmenter, err := pipeline.NewSegmenter(cfg.Segmentation)
		if err != nil {
			return err
		}
		defer segmenter.Destroy()
		state.segmenter = segmenter
	}

	r := mux.NewRouter()
	r.HandleFunc("/detect", state.handleDetect).Methods("POST")
	r.HandleFunc("/segment", state.handleSegment).Methods("POST")
	r.HandleFunc("/metrics", state.handleMetrics).Methods("GET")

	srv := &http.Server{
		Handler:      r,
		Addr:         cfg.ListenAddr,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	logger.Infof("Starting server on %s", srv.Addr)
	return srv.ListenAndServe()
}

func (s *appState) handleDetect(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()

	imgBytes, err := readImageRequest(r)
	if err != nil {
		sendError(w, "invalid_request", err.Error(), http.StatusBadRequest)
		return
	}
	decodeStart := time.Now()
	img, err := pipeline.DecodeImage("", imgBytes)
	imageDecode := time.Since(decodeStart)
	if err != nil {
		sendError(w, "invalid_image", "failed to decode image", http.StatusBadRequest)
		return
	}

	detector, err := s.pool.Acquire(r.Context())
	if err != nil {
		sendError(w, "session_error", err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer s.pool.Release(detector)

	detections, timings, err := detector.Detect(r.Context(), img)
	if err != nil {
		// A failed image never affects other requests; report and move on.
		sendError(w, "processing_error", err.Error(), http.StatusInternalServerError)
		return
	}
	timings.RequestID = requestID
	timings.ImageDecode = imageDecode
	logTimings(timings)

	writeJSON(w, detectResponse{
		RequestID:  requestID,
		Detections: detections,
		Labels:     s.cfg.Detection.Labels,
	})
}

func (s *appState) handleSegment(w http.ResponseWriter, r *http.Request) {
	if s.segmenter == nil {
		sendError(w, "not_configured", "segmentation is not configured", http.StatusNotImplemented)
		return
	}
	requestID := uuid.NewString()

	var req segmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, "invalid_request", err.Error(), http.StatusBadRequest)
		return
	}
	imgBytes, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil {
		sendError(w, "invalid_request", "image is not valid base64", http.StatusBadRequest)
		return
	}
	img, err := pipeline.DecodeImage("", imgBytes)
	if err != nil {
		sendError(w, "invalid_image", "failed to decode image", http.StatusBadRequest)
		return
	}

	mask, err := s.segmenter.Segment(r.Context(), img, req.Point)
	if err != nil {
		sendError(w, "processing_error", err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, segmentResponse{
		RequestID:  requestID,
		Width:      mask.Width,
		Height:     mask.Height,
		Foreground: mask.Count(),
	})
}

func (s *appState) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.pool.Metrics())
}

// readImageRequest accepts raw body bytes, a multipart "file" field, or a
// JSON {"image": base64} payload.
func readImageRequest(r *http.Request) ([]byte, error) {
	contentType := r.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(contentType, "application/json"):
		var req struct {
			Image string `json:"image"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, err
		}
		return base64.StdEncoding.DecodeString(req.Image)
	case strings.HasPrefix(contentType, "multipart/form-data"):
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			return nil, err
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, err
		}
		defer file.Close()
		return io.ReadAll(file)
	default:
		return io.ReadAll(r.Body)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func sendError(w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Code: code, Message: message})
}
