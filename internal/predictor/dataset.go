package predictor

import (
	"embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/Skufu/GoSymptom/internal/symptom"
)

// Data file names, shared by the embedded defaults and DATA_DIR overrides.
const (
	TrainingFile    = "Training.csv"
	DescriptionFile = "symptom_Description.csv"
	SeverityFile    = "symptom_severity.csv"
	PrecautionFile  = "symptom_precaution.csv"

	labelColumn = "prognosis"
)

//go:embed data/*.csv
var embedded embed.FS

// EmbeddedData returns the dataset shipped with the binary.
func EmbeddedData() fs.FS {
	sub, err := fs.Sub(embedded, "data")
	if err != nil {
		panic(err)
	}
	return sub
}

// Dataset is the training table: one row per example, one binary column per symptom.
type Dataset struct {
	Columns []string // normalized symptom names, in column order
	X       *mat.Dense
	Labels  []string
}

// LoadDataset reads TrainingFile from fsys.
func LoadDataset(fsys fs.FS) (*Dataset, error) {
	f, err := fsys.Open(TrainingFile)
	if err != nil {
		return nil, fmt.Errorf("open training data: %w", err)
	}
	defer f.Close()
	return ParseDataset(f)
}

// ParseDataset parses a training table. The label column is "prognosis" when
// present, otherwise the last column. Duplicate symptom columns are merged.
func ParseDataset(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	labelIdx := len(header) - 1
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), labelColumn) {
			labelIdx = i
		}
	}

	ds := &Dataset{}
	colOf := make(map[string]int)
	featureOf := make([]int, len(header)) // csv column -> feature column, -1 for skipped
	for i, h := range header {
		featureOf[i] = -1
		name := symptom.Normalize(h)
		if i == labelIdx || name == "" {
			continue
		}
		idx, ok := colOf[name]
		if !ok {
			idx = len(ds.Columns)
			colOf[name] = idx
			ds.Columns = append(ds.Columns, name)
		}
		featureOf[i] = idx
	}
	if len(ds.Columns) == 0 {
		return nil, errors.New("training data has no symptom columns")
	}

	var values []float64
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}
		if len(record) != len(header) {
			return nil, fmt.Errorf("line %d: expected %d fields, got %d", line, len(header), len(record))
		}

		label := strings.TrimSpace(record[labelIdx])
		if label == "" {
			return nil, fmt.Errorf("line %d: empty label", line)
		}

		row := make([]float64, len(ds.Columns))
		for i, cell := range record {
			if featureOf[i] < 0 {
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %q: %w", line, header[i], err)
			}
			if v != 0 {
				row[featureOf[i]] = 1
			}
		}
		values = append(values, row...)
		ds.Labels = append(ds.Labels, label)
	}
	if len(ds.Labels) == 0 {
		return nil, errors.New("training data has no rows")
	}

	ds.X = mat.NewDense(len(ds.Labels), len(ds.Columns), values)
	return ds, nil
}

// Rows returns the number of examples.
func (d *Dataset) Rows() int { return len(d.Labels) }
