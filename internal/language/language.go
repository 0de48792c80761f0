// Package language detects the user's language and translates replies into it,
// both by prompting the generative model.
package language

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Skufu/GoSymptom/internal/llm"
)

// Default is used whenever detection fails.
const Default = "English"

// Service implements detection and translation on top of an llm.Generator.
type Service struct {
	gen    llm.Generator
	logger *zap.Logger
}

// NewService returns a Service.
func NewService(gen llm.Generator, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{gen: gen, logger: logger.With(zap.String("component", "language"))}
}

// Detect returns the language name of text, or Default on any failure.
func (s *Service) Detect(ctx context.Context, text string) string {
	if strings.TrimSpace(text) == "" {
		return Default
	}

	prompt := fmt.Sprintf("Detect the language of the following text and return only the language name (e.g., English, Hindi, Spanish):\n\n%s", text)
	resp, err := s.gen.GenerateText(ctx, prompt)
	if err != nil {
		s.logger.Warn("language detection failed", zap.Error(err))
		return Default
	}

	lang := firstLine(llm.StripCodeFence(resp))
	lang = strings.Trim(lang, " .\"'*")
	if lang == "" || len(lang) > 40 {
		return Default
	}
	return lang
}

// Translate returns text translated into target. The original text is returned
// when translation fails or target is English.
func (s *Service) Translate(ctx context.Context, text, target string) string {
	if strings.TrimSpace(text) == "" || IsEnglish(target) {
		return text
	}

	prompt := fmt.Sprintf("Translate the following text to %s. Return only the translation:\n\n%s", target, text)
	resp, err := s.gen.GenerateText(ctx, prompt)
	if err != nil {
		s.logger.Warn("translation failed", zap.String("target", target), zap.Error(err))
		return text
	}

	translated := strings.TrimSpace(resp)
	if translated == "" {
		return text
	}
	return translated
}

// IsEnglish reports whether lang names English (or is empty).
func IsEnglish(lang string) bool {
	lang = strings.TrimSpace(lang)
	return lang == "" || strings.EqualFold(lang, Default)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
