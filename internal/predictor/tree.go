package predictor

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// LabelEncoder maps disease names to dense integer classes in sorted order.
type LabelEncoder struct {
	classes []string
	index   map[string]int
}

// NewLabelEncoder fits an encoder on labels.
func NewLabelEncoder(labels []string) *LabelEncoder {
	index := make(map[string]int)
	var classes []string
	for _, l := range labels {
		if _, ok := index[l]; !ok {
			index[l] = 0
			classes = append(classes, l)
		}
	}
	sort.Strings(classes)
	for i, c := range classes {
		index[c] = i
	}
	return &LabelEncoder{classes: classes, index: index}
}

// Encode returns the class of label.
func (e *LabelEncoder) Encode(label string) (int, bool) {
	i, ok := e.index[label]
	return i, ok
}

// Decode is the inverse of Encode.
func (e *LabelEncoder) Decode(class int) string {
	if class < 0 || class >= len(e.classes) {
		return ""
	}
	return e.classes[class]
}

// Classes returns the number of classes.
func (e *LabelEncoder) Classes() int { return len(e.classes) }

// TreeConfig bounds tree growth. Zero values mean unbounded depth and a
// minimum split size of 2.
type TreeConfig struct {
	MaxDepth        int
	MinSamplesSplit int
}

type treeNode struct {
	feature int // -1 for leaves
	class   int
	absent  *treeNode // feature == 0
	present *treeNode // feature == 1
}

// DecisionTree is a CART classifier over binary features using Gini impurity.
// Ties are broken by the lowest feature index and the lowest class, so training
// and inference are deterministic.
type DecisionTree struct {
	root     *treeNode
	features int
	classes  int
	cfg      TreeConfig
}

// TrainTree fits a tree on the given rows of x. A nil rows slice means all rows.
func TrainTree(x mat.Matrix, y []int, classes int, rows []int, cfg TreeConfig) (*DecisionTree, error) {
	r, c := x.Dims()
	if r != len(y) {
		return nil, fmt.Errorf("train tree: %d rows but %d labels", r, len(y))
	}
	if rows == nil {
		rows = make([]int, r)
		for i := range rows {
			rows[i] = i
		}
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("train tree: no rows")
	}
	if cfg.MinSamplesSplit < 2 {
		cfg.MinSamplesSplit = 2
	}

	t := &DecisionTree{features: c, classes: classes, cfg: cfg}
	t.root = t.grow(x, y, rows, 0)
	return t, nil
}

// Predict returns the class for a binary feature vector.
func (t *DecisionTree) Predict(features []float64) (int, error) {
	if len(features) != t.features {
		return 0, fmt.Errorf("predict: expected %d features, got %d", t.features, len(features))
	}
	n := t.root
	for n.feature >= 0 {
		if features[n.feature] != 0 {
			n = n.present
		} else {
			n = n.absent
		}
	}
	return n.class, nil
}

// Depth returns the depth of the deepest leaf.
func (t *DecisionTree) Depth() int { return depth(t.root) }

func depth(n *treeNode) int {
	if n == nil || n.feature < 0 {
		return 0
	}
	return 1 + max(depth(n.absent), depth(n.present))
}

func (t *DecisionTree) grow(x mat.Matrix, y []int, rows []int, level int) *treeNode {
	counts := t.count(y, rows)
	leaf := &treeNode{feature: -1, class: majority(counts)}

	if counts[leaf.class] == len(rows) ||
		len(rows) < t.cfg.MinSamplesSplit ||
		(t.cfg.MaxDepth > 0 && level >= t.cfg.MaxDepth) {
		return leaf
	}

	bestFeature := -1
	bestImpurity := math.Inf(1)

	absent := make([]int, t.classes)
	present := make([]int, t.classes)
	for f := 0; f < t.features; f++ {
		clear(absent)
		clear(present)
		nPresent := 0
		for _, r := range rows {
			if x.At(r, f) != 0 {
				present[y[r]]++
				nPresent++
			} else {
				absent[y[r]]++
			}
		}
		nAbsent := len(rows) - nPresent
		if nPresent == 0 || nAbsent == 0 {
			continue
		}

		n := float64(len(rows))
		impurity := float64(nAbsent)/n*gini(absent, nAbsent) + float64(nPresent)/n*gini(present, nPresent)
		if impurity < bestImpurity-1e-12 {
			bestImpurity = impurity
			bestFeature = f
		}
	}
	if bestFeature < 0 {
		return leaf
	}

	var absentRows, presentRows []int
	for _, r := range rows {
		if x.At(r, bestFeature) != 0 {
			presentRows = append(presentRows, r)
		} else {
			absentRows = append(absentRows, r)
		}
	}

	return &treeNode{
		feature: bestFeature,
		class:   leaf.class,
		absent:  t.grow(x, y, absentRows, level+1),
		present: t.grow(x, y, presentRows, level+1),
	}
}

func (t *DecisionTree) count(y []int, rows []int) []int {
	counts := make([]int, t.classes)
	for _, r := range rows {
		counts[y[r]]++
	}
	return counts
}

func gini(counts []int, total int) float64 {
	if total == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range counts {
		p := float64(c) / float64(total)
		sum += p * p
	}
	return 1 - sum
}

func majority(counts []int) int {
	best := 0
	for i, c := range counts {
		if c > counts[best] {
			best = i
		}
	}
	return best
}

// SplitRows shuffles row indices with a fixed seed and returns train and test
// partitions. testFraction outside (0,1) puts every row in train.
func SplitRows(n int, testFraction float64, seed int64) (train, test []int) {
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	if testFraction <= 0 || testFraction >= 1 {
		return rows, nil
	}
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(n, func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })

	nTest := int(float64(n) * testFraction)
	return rows[nTest:], rows[:nTest]
}
