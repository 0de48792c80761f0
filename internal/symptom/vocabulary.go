package symptom

import (
	"sort"
	"strings"
)

// canonical is the fixed symptom vocabulary. Extracted symptoms outside it are dropped.
var canonical = []string{
	"itching", "skin rash", "nodal skin eruptions", "continuous sneezing", "shivering",
	"chills", "joint pain", "stomach pain", "acidity", "ulcers on tongue", "muscle wasting",
	"vomiting", "burning micturition", "spotting urination", "fatigue", "weight gain",
	"anxiety", "cold hands and feets", "mood swings", "weight loss", "restlessness",
	"lethargy", "patches in throat", "irregular sugar level", "cough", "high fever",
	"sunken eyes", "breathlessness", "sweating", "dehydration", "indigestion", "headache",
	"yellowish skin", "dark urine", "nausea", "loss of appetite", "pain behind the eyes",
	"back pain", "constipation", "abdominal pain", "diarrhoea", "mild fever", "yellow urine",
	"yellowing of eyes", "acute liver failure", "fluid overload", "swelling of stomach",
	"swelled lymph nodes", "malaise", "blurred and distorted vision", "phlegm",
	"throat irritation", "redness of eyes", "sinus pressure", "runny nose", "congestion",
	"chest pain", "weakness in limbs", "fast heart rate", "pain during bowel movements",
	"pain in anal region", "bloody stool", "irritation in anus", "neck pain", "dizziness",
	"cramps", "bruising", "obesity", "swollen legs", "swollen blood vessels",
	"puffy face and eyes", "enlarged thyroid", "brittle nails", "swollen extremities",
	"excessive hunger", "extra marital contacts", "drying and tingling lips", "slurred speech",
	"knee pain", "hip joint pain", "muscle weakness", "stiff neck", "swelling joints",
	"movement stiffness", "spinning movements", "loss of balance", "unsteadiness",
	"weakness of one body side", "loss of smell", "bladder discomfort", "foul smell of urine",
	"continuous feel of urine", "passage of gases", "internal itching", "toxic look (typhos)",
	"depression", "irritability", "muscle pain", "altered sensorium", "red spots over body",
	"belly pain", "abnormal menstruation", "dischromic patches", "watering from eyes",
	"increased appetite", "polyuria", "family history", "mucoid sputum", "rusty sputum",
	"lack of concentration", "visual disturbances", "receiving blood transfusion",
	"receiving unsterile injections", "coma", "stomach bleeding", "distention of abdomen",
	"history of alcohol consumption", "blood in sputum",
	"prominent veins on calf", "palpitations", "painful walking", "pus filled pimples",
	"blackheads", "scurring", "skin peeling", "silver like dusting", "small dents in nails",
	"inflammatory nails", "blister", "red sore around nose", "yellow crust ooze",
}

// Vocabulary is an immutable set of canonical, normalized symptom names.
type Vocabulary struct {
	set  map[string]struct{}
	list []string
}

// Default returns the built-in symptom vocabulary.
func Default() *Vocabulary {
	return NewVocabulary(canonical)
}

// NewVocabulary normalizes and deduplicates names into a Vocabulary.
func NewVocabulary(names []string) *Vocabulary {
	v := &Vocabulary{set: make(map[string]struct{}, len(names))}
	for _, n := range names {
		n = Normalize(n)
		if n == "" {
			continue
		}
		if _, ok := v.set[n]; ok {
			continue
		}
		v.set[n] = struct{}{}
		v.list = append(v.list, n)
	}
	sort.Strings(v.list)
	return v
}

// Contains reports whether the normalized form of s is a canonical symptom.
func (v *Vocabulary) Contains(s string) bool {
	_, ok := v.set[Normalize(s)]
	return ok
}

// Len returns the number of symptoms.
func (v *Vocabulary) Len() int { return len(v.list) }

// List returns the symptoms in sorted order. The slice is a copy.
func (v *Vocabulary) List() []string {
	out := make([]string, len(v.list))
	copy(out, v.list)
	return out
}

// Filter normalizes items, drops unknown ones and duplicates, and keeps first-seen order.
func (v *Vocabulary) Filter(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		n := Normalize(item)
		if _, ok := v.set[n]; !ok {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// Normalize lower-cases s, turns underscores into spaces and collapses whitespace,
// so "Skin_Rash" and " skin  rash" both become "skin rash".
func Normalize(s string) string {
	s = strings.ToLower(strings.ReplaceAll(s, "_", " "))
	return strings.Join(strings.Fields(s), " ")
}

// SplitList splits comma or semicolon separated free text into trimmed, non-empty parts.
func SplitList(text string) []string {
	out := []string{}
	for _, t := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return r == ',' || r == ';'
	}) {
		trimmed := strings.TrimSpace(t)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
