// Package api exposes the chatbot over HTTP with gin.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Skufu/GoSymptom/internal/dialogue"
	"github.com/Skufu/GoSymptom/internal/diagnosis"
	"github.com/Skufu/GoSymptom/internal/logging"
	"github.com/Skufu/GoSymptom/internal/predictor"
	"github.com/Skufu/GoSymptom/internal/store"
)

// WelcomeMessage is returned by GET /.
const WelcomeMessage = "Welcome to AI Health Chatbot"

// Chatter runs dialogue turns.
type Chatter interface {
	Handle(ctx context.Context, userID, text string) dialogue.Reply
}

// Diagnoser produces model-backed diagnoses.
type Diagnoser interface {
	Quick(ctx context.Context, text string) diagnosis.QuickResult
	FromSymptoms(ctx context.Context, symptoms string) (diagnosis.AIDiagnosis, error)
	DescribeImage(ctx context.Context, data []byte, mimeType string) (string, error)
}

// Predictor runs the local classifier.
type Predictor interface {
	Predict(symptoms []string) (predictor.Diagnosis, error)
}

// Extractor reports extraction failures instead of hiding them.
type Extractor interface {
	ExtractStrict(ctx context.Context, text string) ([]string, error)
}

// Forwarder sends symptoms to the prediction API.
type Forwarder interface {
	Forward(ctx context.Context, symptoms []string) (json.RawMessage, error)
}

// HealthChecker reports backing store health.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Handler serves the HTTP API.
type Handler struct {
	chat      Chatter
	diagnoser Diagnoser
	predictor Predictor
	extractor Extractor
	forwarder Forwarder
	db        HealthChecker
	recorder  store.Recorder
	maxImage  int64
	logger    *zap.Logger
}

// Deps are the Handler's collaborators. DB and Recorder may be nil.
type Deps struct {
	Chat      Chatter
	Diagnoser Diagnoser
	Predictor Predictor
	Extractor Extractor
	Forwarder Forwarder
	DB        HealthChecker
	Recorder  store.Recorder
	// MaxImageBytes caps uploaded images. Zero means 10 MiB.
	MaxImageBytes int64
	Logger        *zap.Logger
}

// NewHandler returns a Handler.
func NewHandler(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Recorder == nil {
		d.Recorder = store.Nop{}
	}
	if d.MaxImageBytes <= 0 {
		d.MaxImageBytes = 10 << 20
	}
	return &Handler{
		chat:      d.Chat,
		diagnoser: d.Diagnoser,
		predictor: d.Predictor,
		extractor: d.Extractor,
		forwarder: d.Forwarder,
		db:        d.DB,
		recorder:  d.Recorder,
		maxImage:  d.MaxImageBytes,
		logger:    d.Logger.With(zap.String("component", "api")),
	}
}

// RegisterRoutes mounts every endpoint on r.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/", h.home)
	r.GET("/healthz", h.healthz)
	r.GET("/readyz", h.readyz)

	r.POST("/chat/", h.chatTurn)
	r.POST("/chat/quick", h.chatQuick)
	r.POST("/predict", h.predictLocal)
	r.POST("/predict/symptoms", h.predictSymptoms)
	r.POST("/predict/image", h.predictImage)
	r.POST("/disease-prediction", h.diseasePrediction)
}

type chatRequest struct {
	UserInput string `json:"user_input" binding:"required"`
	UserID    string `json:"user_id" binding:"required"`
}

type quickRequest struct {
	UserInput string `json:"user_input" binding:"required"`
}

type symptomsRequest struct {
	Symptoms string `json:"symptoms" binding:"required"`
}

type predictRequest struct {
	Symptoms []string `json:"symptoms"`
}

type queryRequest struct {
	Query string `json:"query"`
}

func (h *Handler) home(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": WelcomeMessage})
}

func (h *Handler) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) readyz(c *gin.Context) {
	if h.db == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "db": "disabled"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "degraded",
			"db":     fmt.Sprintf("unhealthy: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "db": "ok"})
}

func (h *Handler) chatTurn(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "user_input and user_id are required")
		return
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		badRequest(c, "user_id is required")
		return
	}

	reply := h.chat.Handle(c.Request.Context(), userID, strings.TrimSpace(req.UserInput))
	c.JSON(http.StatusOK, reply)
}

func (h *Handler) chatQuick(c *gin.Context) {
	var req quickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "user_input is required")
		return
	}

	c.JSON(http.StatusOK, h.diagnoser.Quick(c.Request.Context(), strings.TrimSpace(req.UserInput)))
}

func (h *Handler) predictSymptoms(c *gin.Context) {
	var req symptomsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "symptoms is required")
		return
	}

	d, err := h.diagnoser.FromSymptoms(c.Request.Context(), req.Symptoms)
	if errors.Is(err, diagnosis.ErrNoSymptoms) {
		badRequest(c, "symptoms is required")
		return
	}
	if err != nil {
		h.serverError(c, "Error: "+err.Error(), err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) predictImage(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "file is required")
		return
	}
	if file.Size > h.maxImage {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
		return
	}

	f, err := file.Open()
	if err != nil {
		badRequest(c, "cannot read file")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.maxImage))
	if err != nil {
		badRequest(c, "cannot read file")
		return
	}

	mimeType := imageType(file.Header.Get("Content-Type"), data)
	text, err := h.diagnoser.DescribeImage(c.Request.Context(), data, mimeType)
	switch {
	case errors.Is(err, diagnosis.ErrEmptyImage), errors.Is(err, diagnosis.ErrNotImage):
		badRequest(c, err.Error())
		return
	case err != nil:
		h.serverError(c, "Error processing image: "+err.Error(), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"predicted_disease": text})
}

// imageType trusts the declared type only when it names an image, and otherwise
// sniffs the content.
func imageType(declared string, data []byte) string {
	if mt, _, err := mime.ParseMediaType(declared); err == nil && strings.HasPrefix(mt, "image/") {
		return mt
	}
	mt, _, _ := mime.ParseMediaType(mimetype.Detect(data).String())
	return mt
}

func (h *Handler) predictLocal(c *gin.Context) {
	var req predictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid payload")
		return
	}
	if len(req.Symptoms) == 0 {
		badRequest(c, "symptoms is required")
		return
	}

	d, err := h.predictor.Predict(req.Symptoms)
	if err != nil {
		h.serverError(c, "prediction failed", err)
		return
	}

	rec := store.NewRecord(store.SourceModel, "", req.Symptoms, d.Disease, "", d)
	if err := h.recorder.Record(c.Request.Context(), rec); err != nil {
		h.logger.Warn("diagnosis not recorded",
			zap.String("request_id", logging.RequestIDFrom(c)),
			zap.String("source", store.SourceModel),
			zap.Error(err),
		)
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) diseasePrediction(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		badRequest(c, "Query is required")
		return
	}

	symptoms, err := h.extractor.ExtractStrict(c.Request.Context(), req.Query)
	if err != nil {
		h.serverError(c, "Failed to extract symptoms", err)
		return
	}

	body, err := h.forwarder.Forward(c.Request.Context(), symptoms)
	if err != nil {
		h.serverError(c, "Prediction API failed", err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func (h *Handler) serverError(c *gin.Context, msg string, err error) {
	_ = c.Error(err)
	h.logger.Error(msg, zap.String("request_id", logging.RequestIDFrom(c)), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}
