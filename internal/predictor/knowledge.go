package predictor

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"strings"

	"github.com/Skufu/GoSymptom/internal/symptom"
)

// Placeholders for missing knowledge entries.
const (
	NoDescription   = "No description available"
	UnknownSeverity = "Unknown"
)

// Severity is a symptom weight. Zero means the symptom has no severity entry
// and is rendered as "Unknown" in JSON.
type Severity int

// Known reports whether the severity came from the severity table.
func (s Severity) Known() bool { return s > 0 }

func (s Severity) String() string {
	if !s.Known() {
		return UnknownSeverity
	}
	return strconv.Itoa(int(s))
}

// MarshalJSON renders known severities as numbers and unknown ones as "Unknown".
func (s Severity) MarshalJSON() ([]byte, error) {
	if !s.Known() {
		return json.Marshal(UnknownSeverity)
	}
	return json.Marshal(int(s))
}

// UnmarshalJSON accepts a number or the "Unknown" placeholder.
func (s *Severity) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		*s = Severity(n)
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return fmt.Errorf("severity: %w", err)
	}
	*s = 0
	return nil
}

// Knowledge holds the static lookup tables. Disease keys are lower-cased.
type Knowledge struct {
	descriptions map[string]string
	precautions  map[string][]string
	severities   map[string]Severity
}

// LoadKnowledge reads the description, severity and precaution tables from fsys.
// Missing files leave the matching table empty, like the placeholders expect.
func LoadKnowledge(fsys fs.FS) (*Knowledge, error) {
	k := &Knowledge{
		descriptions: map[string]string{},
		precautions:  map[string][]string{},
		severities:   map[string]Severity{},
	}

	loaders := []struct {
		name string
		fn   func(row []string)
	}{
		{DescriptionFile, func(row []string) {
			if len(row) >= 2 {
				k.descriptions[diseaseKey(row[0])] = strings.TrimSpace(row[1])
			}
		}},
		{SeverityFile, func(row []string) {
			if len(row) < 2 {
				return
			}
			n, err := strconv.Atoi(strings.TrimSpace(row[1]))
			if err != nil || n <= 0 {
				return
			}
			k.severities[symptom.Normalize(row[0])] = Severity(n)
		}},
		{PrecautionFile, func(row []string) {
			if len(row) < 2 {
				return
			}
			var list []string
			for _, p := range row[1:] {
				if p = strings.TrimSpace(p); p != "" {
					list = append(list, p)
				}
			}
			k.precautions[diseaseKey(row[0])] = list
		}},
	}

	for _, l := range loaders {
		if err := readRows(fsys, l.name, l.fn); err != nil {
			return nil, err
		}
	}
	return k, nil
}

func readRows(fsys fs.FS, name string, fn func([]string)) error {
	f, err := fsys.Open(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		fn(row)
	}
}

// Description returns the description of disease or NoDescription.
func (k *Knowledge) Description(disease string) string {
	if d, ok := k.descriptions[diseaseKey(disease)]; ok && d != "" {
		return d
	}
	return NoDescription
}

// Precautions returns a copy of the precautions for disease, never nil.
func (k *Knowledge) Precautions(disease string) []string {
	src := k.precautions[diseaseKey(disease)]
	out := make([]string, len(src))
	copy(out, src)
	return out
}

// Severity returns the weight of a symptom, zero when unknown.
func (k *Knowledge) Severity(name string) Severity {
	return k.severities[symptom.Normalize(name)]
}

func diseaseKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
