package dialogue

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Skufu/GoSymptom/internal/predictor"
	"github.com/Skufu/GoSymptom/internal/store"
)

// Replies sent to the user before translation.
const (
	MsgNoSymptoms      = "I couldn't detect any symptoms. Can you describe your health problem in more detail?"
	MsgGenericFollowUp = "Can you describe your symptoms in more detail?"
	MsgAddMore         = "Please list any additional symptoms, or reply with 'yes' to proceed with diagnosis."
	MsgPredictFailed   = "Sorry, I couldn't determine a diagnosis at this moment. Please try again."

	confirmTemplate = "I detected these symptoms: %s. Can you confirm? Reply with 'yes' to proceed or add more symptoms."
	confirmToken    = "yes"
)

// FollowUpQuestions maps a symptom to the question asked when it is the only one reported.
var FollowUpQuestions = map[string]string{
	"fever":          "Do you also have chills or sweating?",
	"cough":          "Is it a dry cough or productive with mucus?",
	"headache":       "Is your headache mild or severe?",
	"high fever":     "Do you also have chills or sweating?",
	"mild fever":     "Do you also have chills or sweating?",
	"chest pain":     "Does the chest pain spread to your arm or jaw, or get worse when you breathe?",
	"breathlessness": "Do you feel short of breath at rest or only when active?",
	"vomiting":       "Have you also had nausea or diarrhoea?",
	"diarrhoea":      "Have you also had vomiting or stomach pain?",
	"stomach pain":   "Is the pain constant or does it come and go, and have you vomited?",
	"abdominal pain": "Where exactly is the pain, and have you had nausea or vomiting?",
	"skin rash":      "Is the rash itchy, and has it spread to other parts of your body?",
	"itching":        "Do you also have a rash or skin eruptions?",
	"fatigue":        "Have you also lost weight or had a fever?",
	"joint pain":     "Are your joints also swollen or stiff?",
	"back pain":      "Does the pain spread to your legs or neck?",
	"dizziness":      "Do you also lose your balance or feel the room spinning?",
	"nausea":         "Have you also vomited or lost your appetite?",
}

// Language detects the user's language and translates replies.
type Language interface {
	Detect(ctx context.Context, text string) string
	Translate(ctx context.Context, text, target string) string
}

// Extractor turns free text into canonical symptoms. It must not fail.
type Extractor interface {
	Extract(ctx context.Context, text string) []string
}

// Predictor diagnoses a symptom set.
type Predictor interface {
	Predict(symptoms []string) (predictor.Diagnosis, error)
}

// Reply is the outcome of one turn. Diagnosis is set only when the session resolved.
type Reply struct {
	Message  string   `json:"message"`
	State    State    `json:"state"`
	Language string   `json:"language"`
	Symptoms []string `json:"symptoms"`
	*predictor.Diagnosis
}

// Config wires a Manager.
type Config struct {
	Language  Language
	Extractor Extractor
	Predictor Predictor
	Store     Store
	Recorder  store.Recorder // optional
	Logger    *zap.Logger    // optional
	Rand      *rand.Rand     // optional, picks follow-ups when no symptom is known
}

// Manager runs conversation turns. Turns for the same user are serialized.
type Manager struct {
	lang      Language
	extractor Extractor
	predictor Predictor
	sessions  Store
	recorder  store.Recorder
	logger    *zap.Logger
	locks     *keyedMutex
	now       func() time.Time

	randMu sync.Mutex
	rand   *rand.Rand
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Language == nil || cfg.Extractor == nil || cfg.Predictor == nil || cfg.Store == nil {
		return nil, errors.New("dialogue: language, extractor, predictor and store are required")
	}
	if cfg.Recorder == nil {
		cfg.Recorder = store.Nop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Manager{
		lang:      cfg.Language,
		extractor: cfg.Extractor,
		predictor: cfg.Predictor,
		sessions:  cfg.Store,
		recorder:  cfg.Recorder,
		logger:    cfg.Logger.With(zap.String("component", "dialogue")),
		locks:     newKeyedMutex(),
		now:       time.Now,
		rand:      cfg.Rand,
	}, nil
}

// Handle processes one message from userID and always produces a reply.
func (m *Manager) Handle(ctx context.Context, userID, text string) Reply {
	unlock := m.locks.Lock(userID)
	defer unlock()

	var (
		lang     string
		symptoms []string
	)
	var g errgroup.Group
	g.Go(func() error {
		lang = m.lang.Detect(ctx, text)
		return nil
	})
	g.Go(func() error {
		symptoms = m.extractor.Extract(ctx, text)
		return nil
	})
	_ = g.Wait()

	logger := m.logger.With(zap.String("user_id", userID), zap.String("language", lang))

	sess, ok := m.sessions.Get(userID)
	if !ok {
		sess = NewSession(userID, m.now())
	}
	added := sess.Merge(symptoms)
	logger.Debug("symptoms merged",
		zap.Strings("extracted", symptoms),
		zap.Int("added", added),
		zap.Int("total", len(sess.Symptoms)),
	)

	reply := func(msg string, state State) Reply {
		return Reply{
			Message:  m.lang.Translate(ctx, msg, lang),
			State:    state,
			Language: lang,
			Symptoms: append([]string{}, sess.Symptoms...),
		}
	}

	// Nothing collected yet: empty sessions are not stored.
	if len(sess.Symptoms) == 0 {
		return reply(MsgNoSymptoms, StateEmpty)
	}

	if len(sess.Symptoms) < 2 && !sess.AskedFollowUp {
		sess.AskedFollowUp = true
		m.sessions.Put(sess)
		return reply(m.followUp(sess.Symptoms), StateAwaitingFollowUp)
	}

	if !sess.ConfirmationStage {
		sess.ConfirmationStage = true
		m.sessions.Put(sess)
		return reply(fmt.Sprintf(confirmTemplate, strings.Join(sess.Symptoms, ", ")), StateAwaitingConfirmation)
	}

	if !strings.Contains(strings.ToLower(text), confirmToken) {
		m.sessions.Put(sess)
		return reply(MsgAddMore, StateAwaitingConfirmation)
	}

	diagnosis, err := m.predictor.Predict(sess.Symptoms)
	if err != nil {
		logger.Error("prediction failed", zap.Strings("symptoms", sess.Symptoms), zap.Error(err))
		m.sessions.Put(sess)
		return reply(MsgPredictFailed, StateAwaitingConfirmation)
	}
	m.sessions.Delete(userID)
	logger.Info("diagnosis emitted",
		zap.String("disease", diagnosis.Disease),
		zap.Strings("symptoms", sess.Symptoms),
		zap.String("risk_level", diagnosis.Triage.RiskLevel),
	)

	rec := store.NewRecord(store.SourceDialogue, userID, sess.Symptoms, diagnosis.Disease, lang, diagnosis)
	if err := m.recorder.Record(ctx, rec); err != nil {
		logger.Warn("diagnosis not recorded", zap.Error(err))
	}

	out := reply(Summary(diagnosis), StateResolved)
	out.Diagnosis = &diagnosis
	return out
}

// followUp picks the question for the sole symptom, or a random table entry
// when nothing is known.
func (m *Manager) followUp(symptoms []string) string {
	var pick string
	if len(symptoms) == 1 {
		pick = symptoms[0]
	} else {
		keys := make([]string, 0, len(FollowUpQuestions))
		for k := range FollowUpQuestions {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m.randMu.Lock()
		pick = keys[m.rand.Intn(len(keys))]
		m.randMu.Unlock()
	}
	if q, ok := FollowUpQuestions[pick]; ok {
		return q
	}
	return MsgGenericFollowUp
}

// Summary renders a diagnosis as plain text for translation.
func Summary(d predictor.Diagnosis) string {
	severities := make([]string, 0, len(d.SymptomSeverity))
	for s, w := range d.SymptomSeverity {
		severities = append(severities, fmt.Sprintf("%s: %s", s, w))
	}
	sort.Strings(severities)

	var b strings.Builder
	fmt.Fprintf(&b, "Disease: %s\n", d.Disease)
	fmt.Fprintf(&b, "Description: %s\n", d.Description)
	fmt.Fprintf(&b, "Precautions: %s\n", strings.Join(d.Precautions, ", "))
	fmt.Fprintf(&b, "Symptom Severity: %s\n", strings.Join(severities, ", "))
	fmt.Fprintf(&b, "Urgency: %s", d.Triage.Urgency)
	return b.String()
}
