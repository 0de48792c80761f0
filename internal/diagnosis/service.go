// Package diagnosis asks the generative model for single-shot diagnoses, from
// free text, from a symptom description or from an image.
package diagnosis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Skufu/GoSymptom/internal/llm"
	"github.com/Skufu/GoSymptom/internal/store"
)

// Messages returned by Quick when no diagnosis is produced.
const (
	MsgNoSymptoms  = "I couldn't detect symptoms. Please describe them clearly."
	msgNoDiagnosis = "Sorry, I couldn't determine a diagnosis at this moment. (Response in %s)"
)

const imagePrompt = "Identify any medical condition, disease, or injury in this image."

var (
	// ErrNoSymptoms is returned for blank symptom descriptions.
	ErrNoSymptoms = errors.New("diagnosis: symptoms are required")
	// ErrEmptyImage is returned for zero-length uploads.
	ErrEmptyImage = errors.New("diagnosis: image is empty")
	// ErrNotImage is returned when the upload is not an image.
	ErrNotImage = errors.New("diagnosis: file is not an image")
)

// Language detects the language of user text.
type Language interface {
	Detect(ctx context.Context, text string) string
}

// Extractor turns free text into canonical symptoms.
type Extractor interface {
	Extract(ctx context.Context, text string) []string
}

// QuickResult is either a diagnosis or a message explaining why there is none.
type QuickResult struct {
	Message string `json:"message,omitempty"`
	*AIDiagnosis
}

// Service produces model-backed diagnoses.
type Service struct {
	gen       llm.Generator
	lang      Language
	extractor Extractor
	recorder  store.Recorder
	logger    *zap.Logger
}

// NewService returns a Service. recorder and logger may be nil.
func NewService(gen llm.Generator, lang Language, extractor Extractor, recorder store.Recorder, logger *zap.Logger) *Service {
	if recorder == nil {
		recorder = store.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		gen:       gen,
		lang:      lang,
		extractor: extractor,
		recorder:  recorder,
		logger:    logger.With(zap.String("component", "diagnosis")),
	}
}

// Quick detects the language and symptoms of text and asks the model for a
// diagnosis written in that language. It never fails.
func (s *Service) Quick(ctx context.Context, text string) QuickResult {
	var (
		lang     string
		symptoms []string
	)
	var g errgroup.Group
	g.Go(func() error {
		lang = s.lang.Detect(ctx, text)
		return nil
	})
	g.Go(func() error {
		symptoms = s.extractor.Extract(ctx, text)
		return nil
	})
	_ = g.Wait()

	if len(symptoms) == 0 {
		return QuickResult{Message: MsgNoSymptoms}
	}

	d, err := s.generate(ctx, strings.Join(symptoms, ", "), lang)
	if err != nil {
		s.logger.Warn("quick diagnosis failed", zap.Strings("symptoms", symptoms), zap.Error(err))
		return QuickResult{Message: fmt.Sprintf(msgNoDiagnosis, lang)}
	}
	d.Language = lang

	s.record(ctx, store.SourceQuick, symptoms, d)
	return QuickResult{AIDiagnosis: &d}
}

// FromSymptoms asks the model for a diagnosis of a free-form symptom description.
func (s *Service) FromSymptoms(ctx context.Context, symptoms string) (AIDiagnosis, error) {
	symptoms = strings.TrimSpace(symptoms)
	if symptoms == "" {
		return AIDiagnosis{}, ErrNoSymptoms
	}

	d, err := s.generate(ctx, symptoms, "")
	if err != nil {
		return AIDiagnosis{}, err
	}

	s.record(ctx, store.SourceSymptoms, []string{symptoms}, d)
	return d, nil
}

// DescribeImage asks the vision model what condition an image shows.
func (s *Service) DescribeImage(ctx context.Context, data []byte, mimeType string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyImage
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return "", ErrNotImage
	}

	text, err := s.gen.DescribeImage(ctx, imagePrompt, data, mimeType)
	if err != nil {
		return "", fmt.Errorf("describe image: %w", err)
	}
	return strings.TrimSpace(text), nil
}

func (s *Service) generate(ctx context.Context, symptoms, lang string) (AIDiagnosis, error) {
	resp, err := s.gen.GenerateText(ctx, prompt(symptoms, lang))
	if err != nil {
		return AIDiagnosis{}, fmt.Errorf("generate diagnosis: %w", err)
	}
	return ParseAIDiagnosis(resp)
}

func (s *Service) record(ctx context.Context, source string, symptoms []string, d AIDiagnosis) {
	rec := store.NewRecord(source, "", symptoms, d.Disease, d.Language, d)
	if err := s.recorder.Record(ctx, rec); err != nil {
		s.logger.Warn("diagnosis not recorded", zap.String("source", source), zap.Error(err))
	}
}

func prompt(symptoms, lang string) string {
	if lang == "" {
		return fmt.Sprintf(`You are a medical assistant.

Based on these symptoms: %s

Return ONLY valid JSON in this exact format:
{
    "disease": "Most likely disease name",
    "description": "Short explanation (max 80 words)",
    "severity": 1-5,
    "precautions": ["3-5 precautions"],
    "urgency": "emergency | urgent | routine"
}

DO NOT return text.
DO NOT explain.
ONLY return JSON.`, symptoms)
	}

	return fmt.Sprintf(`You are a professional doctor analyzing symptoms: %s.
Provide the response in %s with the following JSON format:
{
    "disease": "Most likely disease name",
    "description": "Brief explanation in %s (max 100 words)",
    "severity": 1-5,
    "precautions": ["List", "of", "3-5", "recommendations"],
    "urgency": "emergency | urgent | routine"
}
Return ONLY the JSON object.`, symptoms, lang, lang)
}
