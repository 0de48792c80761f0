// Package predictor maps a set of symptoms to a disease with a decision tree
// trained at startup, and enriches the result with static disease knowledge.
package predictor

import (
	"errors"
	"fmt"
	"io/fs"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/Skufu/GoSymptom/internal/symptom"
)

// ErrNoSymptoms is returned by Predict when given an empty symptom list.
var ErrNoSymptoms = errors.New("no symptoms to predict from")

// Options control training.
type Options struct {
	Tree TreeConfig
	// TestFraction of rows held out to measure accuracy. Zero trains on all rows.
	TestFraction float64
	Seed         int64
}

// Diagnosis is the enriched prediction for a symptom set.
type Diagnosis struct {
	Disease         string              `json:"disease"`
	Description     string              `json:"description"`
	Precautions     []string            `json:"precautions"`
	SymptomSeverity map[string]Severity `json:"symptom_severity"`
	Triage          Triage              `json:"triage"`
}

// Predictor is immutable after construction and safe for concurrent use.
type Predictor struct {
	columns   map[string]int
	tree      *DecisionTree
	labels    *LabelEncoder
	knowledge *Knowledge
	accuracy  float64
	logger    *zap.Logger
}

// Load reads the dataset and knowledge tables from fsys and trains a predictor.
func Load(fsys fs.FS, opts Options, logger *zap.Logger) (*Predictor, error) {
	ds, err := LoadDataset(fsys)
	if err != nil {
		return nil, err
	}
	k, err := LoadKnowledge(fsys)
	if err != nil {
		return nil, err
	}
	return Train(ds, k, opts, logger)
}

// Train fits the classifier on ds.
func Train(ds *Dataset, k *Knowledge, opts Options, logger *zap.Logger) (*Predictor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ds == nil || ds.Rows() == 0 {
		return nil, errors.New("train: empty dataset")
	}
	if k == nil {
		k = &Knowledge{}
	}

	enc := NewLabelEncoder(ds.Labels)
	y := make([]int, len(ds.Labels))
	for i, l := range ds.Labels {
		y[i], _ = enc.Encode(l)
	}

	train, test := SplitRows(ds.Rows(), opts.TestFraction, opts.Seed)
	tree, err := TrainTree(ds.X, y, enc.Classes(), train, opts.Tree)
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}

	p := &Predictor{
		columns:   make(map[string]int, len(ds.Columns)),
		tree:      tree,
		labels:    enc,
		knowledge: k,
		accuracy:  -1,
		logger:    logger.With(zap.String("component", "predictor")),
	}
	for i, c := range ds.Columns {
		p.columns[c] = i
	}

	if len(test) > 0 {
		p.accuracy = score(tree, ds.X, y, test)
	}
	p.logger.Info("model trained",
		zap.Int("rows", ds.Rows()),
		zap.Int("symptoms", len(ds.Columns)),
		zap.Int("diseases", enc.Classes()),
		zap.Int("depth", tree.Depth()),
		zap.Int("held_out", len(test)),
		zap.Float64("accuracy", p.accuracy),
	)
	return p, nil
}

func score(tree *DecisionTree, x *mat.Dense, y []int, rows []int) float64 {
	correct := 0
	for _, r := range rows {
		got, err := tree.Predict(mat.Row(nil, r, x))
		if err == nil && got == y[r] {
			correct++
		}
	}
	return float64(correct) / float64(len(rows))
}

// Accuracy on the held-out rows, or -1 when nothing was held out.
func (p *Predictor) Accuracy() float64 { return p.accuracy }

// Features builds the binary feature vector for symptoms. Unknown symptoms are ignored.
func (p *Predictor) Features(symptoms []string) []float64 {
	v := make([]float64, len(p.columns))
	for _, s := range symptoms {
		if i, ok := p.columns[symptom.Normalize(s)]; ok {
			v[i] = 1
		}
	}
	return v
}

// Predict classifies symptoms and attaches description, precautions, per-symptom
// severity and a triage summary.
func (p *Predictor) Predict(symptoms []string) (Diagnosis, error) {
	if len(symptoms) == 0 {
		return Diagnosis{}, ErrNoSymptoms
	}

	class, err := p.tree.Predict(p.Features(symptoms))
	if err != nil {
		return Diagnosis{}, err
	}
	disease := p.labels.Decode(class)

	severity := make(map[string]Severity, len(symptoms))
	for _, s := range symptoms {
		severity[s] = p.knowledge.Severity(s)
	}

	return Diagnosis{
		Disease:         disease,
		Description:     p.knowledge.Description(disease),
		Precautions:     p.knowledge.Precautions(disease),
		SymptomSeverity: severity,
		Triage:          p.knowledge.Assess(symptoms),
	}, nil
}
