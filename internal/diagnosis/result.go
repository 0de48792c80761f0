package diagnosis

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Skufu/GoSymptom/internal/llm"
)

// ErrUnparseable is returned when the model response holds no usable JSON object.
var ErrUnparseable = errors.New("diagnosis: response is not a JSON object")

// Defaults applied to fields the model leaves out.
const (
	DefaultDisease  = "Unknown"
	DefaultSeverity = 2
	DefaultUrgency  = "routine"
)

var urgencies = map[string]bool{"emergency": true, "urgent": true, "routine": true}

// Level is a 1-5 severity. It decodes from numbers and numeric strings.
type Level int

// UnmarshalJSON accepts 3, 3.0 or "3". Values are clamped to 1-5.
func (l *Level) UnmarshalJSON(b []byte) error {
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("severity: %w", err)
		}
		f, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return fmt.Errorf("severity %q: %w", s, err)
		}
	}
	n := int(math.Round(f))
	*l = Level(min(max(n, 1), 5))
	return nil
}

// AIDiagnosis is a diagnosis produced directly by the generative model.
type AIDiagnosis struct {
	Disease     string   `json:"disease"`
	Description string   `json:"description"`
	Severity    Level    `json:"severity"`
	Precautions []string `json:"precautions"`
	Urgency     string   `json:"urgency"`
	Language    string   `json:"language,omitempty"`
}

// ParseAIDiagnosis decodes the first JSON object in text and applies defaults.
func ParseAIDiagnosis(text string) (AIDiagnosis, error) {
	cleaned := llm.StripCodeFence(text)
	start := strings.IndexByte(cleaned, '{')
	end := strings.LastIndexByte(cleaned, '}')
	if start < 0 || end < start {
		return AIDiagnosis{}, ErrUnparseable
	}

	var raw struct {
		AIDiagnosis
		Severity json.RawMessage `json:"severity"`
	}
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &raw); err != nil {
		return AIDiagnosis{}, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}

	d := raw.AIDiagnosis
	d.Severity = DefaultSeverity
	if len(raw.Severity) > 0 && string(raw.Severity) != "null" {
		var l Level
		if err := l.UnmarshalJSON(raw.Severity); err == nil {
			d.Severity = l
		}
	}
	d.applyDefaults()
	return d, nil
}

func (d *AIDiagnosis) applyDefaults() {
	d.Disease = strings.TrimSpace(d.Disease)
	if d.Disease == "" {
		d.Disease = DefaultDisease
	}
	d.Description = strings.TrimSpace(d.Description)
	if d.Precautions == nil {
		d.Precautions = []string{}
	}
	d.Urgency = strings.ToLower(strings.TrimSpace(d.Urgency))
	if !urgencies[d.Urgency] {
		d.Urgency = DefaultUrgency
	}
	if d.Severity == 0 {
		d.Severity = DefaultSeverity
	}
}
