package dialogue

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skufu/GoSymptom/internal/language"
	"github.com/Skufu/GoSymptom/internal/llm/llmtest"
	"github.com/Skufu/GoSymptom/internal/predictor"
	"github.com/Skufu/GoSymptom/internal/store"
	"github.com/Skufu/GoSymptom/internal/symptom"
)

type recorder struct {
	mu      sync.Mutex
	records []store.Record
	err     error
}

func (r *recorder) Record(_ context.Context, rec store.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return r.err
}

// echoExtractor treats every comma separated word as a symptom.
type echoExtractor struct{}

func (echoExtractor) Extract(_ context.Context, text string) []string {
	return symptom.SplitList(text)
}

type englishOnly struct{}

func (englishOnly) Detect(context.Context, string) string { return language.Default }
func (englishOnly) Translate(_ context.Context, text, _ string) string {
	return text
}

type failingPredictor struct{}

func (failingPredictor) Predict([]string) (predictor.Diagnosis, error) {
	return predictor.Diagnosis{}, errors.New("model unavailable")
}

func newPredictor(t *testing.T) *predictor.Predictor {
	t.Helper()
	p, err := predictor.Load(predictor.EmbeddedData(), predictor.Options{}, nil)
	require.NoError(t, err)
	return p
}

func scriptedFake() *llmtest.Fake {
	return &llmtest.Fake{
		Rules: []llmtest.Rule{
			{Match: "Detect the language", Reply: "English"},
			{Match: `"I have itching and skin rash"`, Reply: "```json\n[\"itching\", \"skin rash\"]\n```"},
			{Match: `"I have a cough"`, Reply: `["cough"]`},
			{Match: `"it is dry, also a headache"`, Reply: `["headache"]`},
			{Match: `"and I'm tired"`, Reply: `["fatigue", "cough"]`},
			{Match: "Extract symptoms", Reply: "[]"},
		},
	}
}

func newManager(t *testing.T, gen *llmtest.Fake, rec store.Recorder) (*Manager, *MemoryStore) {
	t.Helper()
	sessions := NewMemoryStore(0)
	m, err := NewManager(Config{
		Language:  language.NewService(gen, nil),
		Extractor: symptom.NewExtractor(gen, nil, nil),
		Predictor: newPredictor(t),
		Store:     sessions,
		Recorder:  rec,
	})
	require.NoError(t, err)
	return m, sessions
}

func TestNewManagerRequiresDependencies(t *testing.T) {
	_, err := NewManager(Config{})
	assert.Error(t, err)
}

func TestTwoSymptomsThenConfirm(t *testing.T) {
	rec := &recorder{}
	m, sessions := newManager(t, scriptedFake(), rec)
	ctx := context.Background()

	r := m.Handle(ctx, "u1", "I have itching and skin rash")
	assert.Equal(t, StateAwaitingConfirmation, r.State)
	assert.Contains(t, r.Message, "itching, skin rash")
	assert.Nil(t, r.Diagnosis)

	sess, ok := sessions.Get("u1")
	require.True(t, ok)
	assert.False(t, sess.AskedFollowUp)
	assert.True(t, sess.ConfirmationStage)

	r = m.Handle(ctx, "u1", "Yes")
	assert.Equal(t, StateResolved, r.State)
	require.NotNil(t, r.Diagnosis)
	assert.NotEmpty(t, r.Disease)
	assert.NotEqual(t, predictor.NoDescription, r.Description)
	assert.NotNil(t, r.Precautions)
	assert.Len(t, r.SymptomSeverity, 2)
	assert.Contains(t, r.SymptomSeverity, "itching")
	assert.Contains(t, r.SymptomSeverity, "skin rash")
	assert.Contains(t, r.Message, "Disease: "+r.Disease)

	_, ok = sessions.Get("u1")
	assert.False(t, ok)
	require.Len(t, rec.records, 1)
	assert.Equal(t, "u1", rec.records[0].UserID)
	assert.Equal(t, r.Disease, rec.records[0].Disease)

	// A new message starts over.
	r = m.Handle(ctx, "u1", "hello")
	assert.Equal(t, StateEmpty, r.State)
}

func TestNoSymptomsStaysEmpty(t *testing.T) {
	m, sessions := newManager(t, scriptedFake(), nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		r := m.Handle(ctx, "u2", "hello")
		assert.Equal(t, StateEmpty, r.State)
		assert.Equal(t, MsgNoSymptoms, r.Message)
		assert.Empty(t, r.Symptoms)
	}
	assert.Equal(t, 0, sessions.Len())
}

func TestSingleSymptomAsksOneFollowUp(t *testing.T) {
	gen := scriptedFake()
	m, sessions := newManager(t, gen, nil)
	ctx := context.Background()

	r := m.Handle(ctx, "u3", "I have a cough")
	assert.Equal(t, StateAwaitingFollowUp, r.State)
	assert.Equal(t, FollowUpQuestions["cough"], r.Message)

	// No new symptoms: still one, but the follow-up was already asked.
	r = m.Handle(ctx, "u3", "not sure")
	assert.Equal(t, StateAwaitingConfirmation, r.State)
	assert.Contains(t, r.Message, "I detected these symptoms: cough.")

	sess, _ := sessions.Get("u3")
	assert.True(t, sess.AskedFollowUp)
	assert.Equal(t, []string{"cough"}, sess.Symptoms)
}

func TestFollowUpThenConfirmation(t *testing.T) {
	m, _ := newManager(t, scriptedFake(), nil)
	ctx := context.Background()

	m.Handle(ctx, "u4", "I have a cough")
	r := m.Handle(ctx, "u4", "it is dry, also a headache")
	assert.Equal(t, StateAwaitingConfirmation, r.State)
	assert.Equal(t, []string{"cough", "headache"}, r.Symptoms)
}

func TestSymptomsAreDeduplicatedAcrossTurns(t *testing.T) {
	m, sessions := newManager(t, scriptedFake(), nil)
	ctx := context.Background()

	m.Handle(ctx, "u5", "I have a cough")
	m.Handle(ctx, "u5", "I have a cough")
	r := m.Handle(ctx, "u5", "and I'm tired")

	assert.Equal(t, StateAwaitingConfirmation, r.State)
	assert.Equal(t, MsgAddMore, r.Message)
	sess, _ := sessions.Get("u5")
	assert.Equal(t, []string{"cough", "fatigue"}, sess.Symptoms)
}

func TestConfirmationWithoutYesAddsSymptoms(t *testing.T) {
	m, sessions := newManager(t, scriptedFake(), nil)
	ctx := context.Background()

	m.Handle(ctx, "u6", "I have itching and skin rash")
	r := m.Handle(ctx, "u6", "and I'm tired")
	assert.Equal(t, StateAwaitingConfirmation, r.State)
	assert.Equal(t, MsgAddMore, r.Message)

	sess, ok := sessions.Get("u6")
	require.True(t, ok)
	assert.Equal(t, []string{"itching", "skin rash", "fatigue", "cough"}, sess.Symptoms)

	r = m.Handle(ctx, "u6", "oh YES please")
	assert.Equal(t, StateResolved, r.State)
	assert.Len(t, r.SymptomSeverity, 4)
}

func TestRepliesAreTranslated(t *testing.T) {
	gen := &llmtest.Fake{
		Rules: []llmtest.Rule{
			{Match: "Detect the language", Reply: "Spanish"},
			{Match: "Translate the following text to Spanish", Reply: "No detecté ningún síntoma."},
			{Match: "Extract symptoms", Reply: "[]"},
		},
	}
	m, _ := newManager(t, gen, nil)

	r := m.Handle(context.Background(), "u7", "hola")
	assert.Equal(t, "Spanish", r.Language)
	assert.Equal(t, "No detecté ningún síntoma.", r.Message)
	assert.Equal(t, 1, gen.Count(MsgNoSymptoms))
}

func TestModelFailureStillReplies(t *testing.T) {
	gen := &llmtest.Fake{DefaultErr: errors.New("service unavailable")}
	m, _ := newManager(t, gen, nil)

	r := m.Handle(context.Background(), "u8", "I have a cough")
	assert.Equal(t, StateEmpty, r.State)
	assert.Equal(t, language.Default, r.Language)
	assert.Equal(t, MsgNoSymptoms, r.Message)
}

func TestPredictionFailureKeepsSession(t *testing.T) {
	sessions := NewMemoryStore(0)
	m, err := NewManager(Config{
		Language:  englishOnly{},
		Extractor: echoExtractor{},
		Predictor: failingPredictor{},
		Store:     sessions,
	})
	require.NoError(t, err)
	ctx := context.Background()

	m.Handle(ctx, "u9", "cough, headache")
	r := m.Handle(ctx, "u9", "yes")
	assert.Equal(t, MsgPredictFailed, r.Message)
	assert.Equal(t, StateAwaitingConfirmation, r.State)
	assert.Nil(t, r.Diagnosis)

	_, ok := sessions.Get("u9")
	assert.True(t, ok)
}

func TestRecorderFailureIsIgnored(t *testing.T) {
	rec := &recorder{err: errors.New("db down")}
	m, _ := newManager(t, scriptedFake(), rec)
	ctx := context.Background()

	m.Handle(ctx, "u10", "I have itching and skin rash")
	r := m.Handle(ctx, "u10", "yes")
	assert.Equal(t, StateResolved, r.State)
	assert.Len(t, rec.records, 1)
}

func TestConcurrentTurnsForOneUserAreSerialized(t *testing.T) {
	sessions := NewMemoryStore(0)
	m, err := NewManager(Config{
		Language:  englishOnly{},
		Extractor: echoExtractor{},
		Predictor: newPredictor(t),
		Store:     sessions,
	})
	require.NoError(t, err)

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.Handle(context.Background(), "shared", fmt.Sprintf("symptom %d", i))
		}(i)
	}
	wg.Wait()

	sess, ok := sessions.Get("shared")
	require.True(t, ok)
	assert.Len(t, sess.Symptoms, n)
	assert.Equal(t, 0, m.locks.size())
}

func TestFollowUpSelection(t *testing.T) {
	m, err := NewManager(Config{
		Language:  englishOnly{},
		Extractor: echoExtractor{},
		Predictor: failingPredictor{},
		Store:     NewMemoryStore(0),
		Rand:      rand.New(rand.NewSource(1)),
	})
	require.NoError(t, err)

	assert.Equal(t, FollowUpQuestions["headache"], m.followUp([]string{"headache"}))
	assert.Equal(t, MsgGenericFollowUp, m.followUp([]string{"coma"}))

	questions := make(map[string]bool)
	for _, q := range FollowUpQuestions {
		questions[q] = true
	}
	assert.True(t, questions[m.followUp(nil)])
}

func TestSummary(t *testing.T) {
	s := Summary(predictor.Diagnosis{
		Disease:         "Allergy",
		Description:     "An immune response.",
		Precautions:     []string{"apply calamine", "avoid triggers"},
		SymptomSeverity: map[string]predictor.Severity{"shivering": 5, "glowing ears": 0},
		Triage:          predictor.Triage{Urgency: predictor.UrgencyRoutine},
	})

	assert.True(t, strings.HasPrefix(s, "Disease: Allergy\n"))
	assert.Contains(t, s, "Precautions: apply calamine, avoid triggers")
	assert.Contains(t, s, "Symptom Severity: glowing ears: Unknown, shivering: 5")
	assert.Contains(t, s, "Urgency: routine")
}
