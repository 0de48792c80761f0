package symptom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/Skufu/GoSymptom/internal/llm"
)

// ErrNoList is returned when the model response contains no bracketed list.
var ErrNoList = errors.New("symptom: no list in model response")

var listPattern = regexp.MustCompile(`(?s)\[(.*?)\]`)

// ParseList finds the first [...] substring in text and decodes it as a JSON array.
// Non-string items are skipped.
func ParseList(text string) ([]string, error) {
	match := listPattern.FindStringSubmatch(llm.StripCodeFence(text))
	if match == nil {
		return nil, ErrNoList
	}

	var raw []any
	if err := json.Unmarshal([]byte("["+match[1]+"]"), &raw); err != nil {
		return nil, fmt.Errorf("decode symptom list: %w", err)
	}

	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, strings.ToLower(strings.TrimSpace(s)))
		}
	}
	return out, nil
}

// Extractor asks the model for the symptoms mentioned in free text and keeps the
// ones in the vocabulary.
type Extractor struct {
	gen    llm.Generator
	vocab  *Vocabulary
	logger *zap.Logger
}

// NewExtractor returns an Extractor over gen. A nil vocab means Default().
func NewExtractor(gen llm.Generator, vocab *Vocabulary, logger *zap.Logger) *Extractor {
	if vocab == nil {
		vocab = Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		gen:    gen,
		vocab:  vocab,
		logger: logger.With(zap.String("component", "symptom.extractor")),
	}
}

// Extract never fails: any model or parse error yields an empty list.
func (e *Extractor) Extract(ctx context.Context, text string) []string {
	symptoms, err := e.ExtractStrict(ctx, text)
	if err != nil {
		e.logger.Warn("symptom extraction failed", zap.Error(err))
		return []string{}
	}
	return symptoms
}

// ExtractStrict is Extract with errors surfaced to the caller.
func (e *Extractor) ExtractStrict(ctx context.Context, text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return []string{}, nil
	}

	resp, err := e.gen.GenerateText(ctx, e.prompt(text))
	if err != nil {
		return nil, fmt.Errorf("extract symptoms: %w", err)
	}

	items, err := ParseList(resp)
	if errors.Is(err, ErrNoList) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	return e.vocab.Filter(items), nil
}

func (e *Extractor) prompt(text string) string {
	quoted, _ := json.Marshal(e.vocab.List())
	return fmt.Sprintf(`Extract symptoms from the following patient complaint: %q
- Only return symptoms present in this list: %s
- Output should be a valid JSON list (e.g., ["cough", "headache"])
- If no symptoms match, return []`, text, quoted)
}
