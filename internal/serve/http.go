package serve

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"
	"gonum.org/v1/gonum/floats"

	"github.com/FlavioCFOliveira/plainnn/internal/tensor"
)

const contentTypeCBOR = "application/cbor"

// DefaultMaxBodyBytes bounds a predict request body. A JSON float takes at
// most 24 bytes, so MaxVectorLen values fit.
const DefaultMaxBodyBytes = 24*MaxVectorLen + 1024

var (
	predictRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plainnn_predict_requests_total",
		Help: "Predict requests by body encoding and response code",
	}, []string{"codec", "code"})

	predictDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "plainnn_predict_duration_seconds",
		Help:    "Time spent serving predict requests",
		Buckets: prometheus.DefBuckets,
	})
)

var tracer = otel.Tracer("plainnn/serve")

// PredictRequest is the body of POST /predict.
type PredictRequest struct {
	Input []float64 `json:"input" cbor:"input"`
}

// PredictResponse holds the raw model output and its argmax.
type PredictResponse struct {
	Output []float64 `json:"output" cbor:"output"`
	Class  int       `json:"class" cbor:"class"`
}

// Server serves predictions over HTTP. The model's forward pass reuses
// per-layer buffers, so requests are admitted one at a time.
type Server struct {
	model   Predictor
	sem     *semaphore.Weighted
	maxBody int64
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithMaxBodyBytes overrides DefaultMaxBodyBytes.
func WithMaxBodyBytes(n int64) ServerOption {
	return func(s *Server) {
		s.maxBody = n
	}
}

func NewServer(model Predictor, opts ...ServerOption) *Server {
	s := &Server{
		model:   model,
		sem:     semaphore.NewWeighted(1),
		maxBody: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler routes /predict, /metrics and /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/predict", s.handlePredict)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handlePredict")
	defer span.End()

	start := time.Now()
	defer func() {
		predictDuration.Observe(time.Since(start).Seconds())
	}()

	codec := "json"
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == contentTypeCBOR {
		codec = "cbor"
	}
	span.SetAttributes(attribute.String("codec", codec))

	fail := func(code int, err error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		predictRequests.WithLabelValues(codec, fmt.Sprint(code)).Inc()
		http.Error(w, err.Error(), code)
	}

	if r.Method != http.MethodPost {
		fail(http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		code := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			code = http.StatusRequestEntityTooLarge
		}
		fail(code, fmt.Errorf("read body: %w", err))
		return
	}

	var req PredictRequest
	if codec == "cbor" {
		err = cbor.Unmarshal(body, &req)
	} else {
		err = json.Unmarshal(body, &req)
	}
	if err != nil {
		fail(http.StatusBadRequest, fmt.Errorf("decode %s body: %w", codec, err))
		return
	}
	if len(req.Input) == 0 {
		fail(http.StatusBadRequest, fmt.Errorf("empty input"))
		return
	}
	span.SetAttributes(attribute.Int("input_size", len(req.Input)))

	if err := s.sem.Acquire(ctx, 1); err != nil {
		log.Error().Err(err).Msg("Failed to acquire semaphore")
		fail(http.StatusServiceUnavailable, fmt.Errorf("server busy"))
		return
	}
	out, err := s.model.Predict(tensor.Vector(req.Input...))
	s.sem.Release(1)
	if err != nil {
		fail(http.StatusUnprocessableEntity, err)
		return
	}

	resp := PredictResponse{Output: out.Data(), Class: floats.MaxIdx(out.Data())}
	span.SetAttributes(attribute.Int("class", resp.Class))

	var payload []byte
	if codec == "cbor" {
		w.Header().Set("Content-Type", contentTypeCBOR)
		payload, err = cbor.Marshal(resp)
	} else {
		w.Header().Set("Content-Type", "application/json")
		payload, err = json.Marshal(resp)
	}
	if err != nil {
		fail(http.StatusInternalServerError, err)
		return
	}

	predictRequests.WithLabelValues(codec, "200").Inc()
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}
