package predictor

import (
	"fmt"
	"sort"
)

// Risk levels, highest first.
const (
	RiskHigh   = "HIGH"
	RiskMedium = "MEDIUM"
	RiskLow    = "LOW"
)

// Urgency values.
const (
	UrgencyEmergency = "emergency"
	UrgencyUrgent    = "urgent"
	UrgencyRoutine   = "routine"
)

var severityWeight = map[string]int{
	RiskHigh:   40,
	RiskMedium: 20,
	RiskLow:    10,
}

// Finding is one scored symptom.
type Finding struct {
	Symptom  string   `json:"symptom"`
	Severity string   `json:"severity"`
	Weight   Severity `json:"weight"`
}

// Triage summarizes how serious the reported symptoms are.
type Triage struct {
	RiskScore int       `json:"riskScore"`
	RiskLevel string    `json:"riskLevel"`
	Urgency   string    `json:"urgency"`
	Findings  []Finding `json:"findings"`
	Issues    []string  `json:"issues"`
}

// symptomClass buckets a severity weight. Unknown symptoms carry no risk.
func symptomClass(w Severity) string {
	switch {
	case w >= 6:
		return RiskHigh
	case w >= 4:
		return RiskMedium
	case w.Known():
		return RiskLow
	default:
		return ""
	}
}

// Assess scores symptoms against the severity table. Findings are ordered by
// weight, heaviest first.
func (k *Knowledge) Assess(symptoms []string) Triage {
	findings := []Finding{}
	for _, s := range symptoms {
		w := k.Severity(s)
		class := symptomClass(w)
		if class == "" {
			continue
		}
		findings = append(findings, Finding{Symptom: s, Severity: class, Weight: w})
	}
	sort.SliceStable(findings, func(i, j int) bool { return findings[i].Weight > findings[j].Weight })

	maxSeverity := RiskLow
	score := 5
	for _, f := range findings {
		score += severityWeight[f.Severity]
		if f.Severity == RiskHigh {
			maxSeverity = RiskHigh
		} else if f.Severity == RiskMedium && maxSeverity == RiskLow {
			maxSeverity = RiskMedium
		}
	}
	if score > 100 {
		score = 100
	}

	level := RiskLow
	if maxSeverity == RiskHigh || score >= 60 {
		level = RiskHigh
	} else if maxSeverity == RiskMedium || score >= 30 {
		level = RiskMedium
	}

	urgency := UrgencyRoutine
	if level == RiskHigh {
		urgency = UrgencyUrgent
		if score >= 80 {
			urgency = UrgencyEmergency
		}
	}

	issues := []string{}
	for _, f := range findings {
		issues = append(issues, fmt.Sprintf("[%s] %s (severity %d)", f.Severity, f.Symptom, int(f.Weight)))
	}
	if len(issues) == 0 {
		issues = append(issues, "None")
	}

	return Triage{
		RiskScore: score,
		RiskLevel: level,
		Urgency:   urgency,
		Findings:  findings,
		Issues:    issues,
	}
}
