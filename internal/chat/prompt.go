package chat

import (
	"fmt"
	"math"
	"strings"
)

const (
	promptGlucoseEntries = 5
	promptDateLayout     = "2006-01-02"
	promptDateTimeLayout = "2006-01-02 15:04"
)

var assistantGuidelines = []string{
	"Give accurate, evidence-based information about diabetes care, nutrition, physical activity, medication and blood glucose management.",
	"Never diagnose conditions or change prescribed treatment; encourage the user to consult their healthcare provider for medical decisions.",
	"When readings suggest an urgent problem (severe hypoglycemia, very high glucose with symptoms, chest pain), tell the user to seek immediate medical care.",
	"Use the user's medical profile and recent health metrics below to personalise your answer when they are relevant.",
	"Refer to specific readings with their dates when you discuss trends, and do not invent values that are not listed.",
	"Keep answers clear and practical, in plain language, and short enough to read on a phone.",
	"Be supportive and non-judgmental; managing diabetes is hard work.",
	"When educational resources are listed below, point the user to the most relevant ones.",
	"If you are unsure or the question is outside diabetes and general health, say so honestly.",
	"Respect privacy: do not ask for identifying details that are not needed to answer.",
}

// BuildSystemPrompt assembles the system prompt from the fixed guidelines,
// the optional medical context and the matched resources. Each block is
// only emitted when it has content.
func BuildSystemPrompt(medical *MedicalContext, resources []Resource) string {
	var b strings.Builder

	b.WriteString("You are a knowledgeable and caring diabetes management assistant. ")
	b.WriteString("Your purpose is to help people living with diabetes understand their condition, ")
	b.WriteString("interpret their health data and build healthy day-to-day habits.\n\n")
	b.WriteString("Guidelines:\n")
	for i, line := range assistantGuidelines {
		fmt.Fprintf(&b, "%d. %s\n", i+1, line)
	}

	if medical != nil {
		writeProfileBlock(&b, medical)
		if medical.HealthMetrics != nil {
			writeMetricsBlock(&b, medical)
		}
	}

	if len(resources) > 0 {
		b.WriteString("\nRelevant educational resources:\n")
		for _, r := range resources {
			fmt.Fprintf(&b, "- %s: %s\n", strings.TrimSpace(r.Title), strings.TrimSpace(r.Description))
			if url := strings.TrimSpace(r.URL); url != "" {
				fmt.Fprintf(&b, "  URL: %s\n", url)
			}
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func writeProfileBlock(b *strings.Builder, m *MedicalContext) {
	b.WriteString("\nPatient medical profile:\n")
	if name := DiabetesTypeName(m.DiabetesType); name != "" {
		fmt.Fprintf(b, "- Diabetes type: %s\n", name)
	}
	if m.DiagnosisYear != nil {
		fmt.Fprintf(b, "- Diagnosed in: %d\n", *m.DiagnosisYear)
	}
	if m.HeightCm != nil && m.WeightKg != nil {
		fmt.Fprintf(b, "- Height: %s cm, Weight: %s kg\n", formatNumber(*m.HeightCm), formatNumber(*m.WeightKg))
	}
	if m.BMI != nil {
		fmt.Fprintf(b, "- BMI: %.1f\n", *m.BMI)
	}
	if m.TargetGlucoseMin != nil && m.TargetGlucoseMax != nil {
		fmt.Fprintf(b, "- Target glucose range: %s-%s mg/dL\n", formatNumber(*m.TargetGlucoseMin), formatNumber(*m.TargetGlucoseMax))
	}
	if v := strings.TrimSpace(m.Medications); v != "" {
		fmt.Fprintf(b, "- Medications: %s\n", v)
	}
	if v := strings.TrimSpace(m.Allergies); v != "" {
		fmt.Fprintf(b, "- Allergies: %s\n", v)
	}
	if v := strings.TrimSpace(m.Comorbidities); v != "" {
		fmt.Fprintf(b, "- Other conditions: %s\n", v)
	}
}

func writeMetricsBlock(b *strings.Builder, m *MedicalContext) {
	metrics := m.HealthMetrics
	b.WriteString("\nRecent health metrics:\n")

	if len(metrics.Glucose) > 0 {
		b.WriteString("- Blood glucose:\n")
		for i, r := range metrics.Glucose {
			if i == promptGlucoseEntries {
				break
			}
			line := fmt.Sprintf("  - %s %s on %s", formatNumber(r.Value), glucoseUnit(r.Unit), r.RecordedAt.Format(promptDateTimeLayout))
			if label := humanizeLabel(r.Context); label != "" {
				line += " (" + label + ")"
			}
			b.WriteString(line + "\n")
		}
	}
	if bp := metrics.BloodPressure; bp != nil {
		line := fmt.Sprintf("- Blood pressure: %d/%d mmHg on %s", bp.Systolic, bp.Diastolic, bp.RecordedAt.Format(promptDateLayout))
		if bp.Pulse != nil {
			line += fmt.Sprintf(", pulse %d bpm", *bp.Pulse)
		}
		b.WriteString(line + "\n")
	}
	if a1c := metrics.A1C; a1c != nil {
		fmt.Fprintf(b, "- A1C: %s%% on %s\n", formatNumber(a1c.Percentage), a1c.RecordedAt.Format(promptDateLayout))
	}
	if w := metrics.Weight; w != nil && weightDiffersFromProfile(*w, m.WeightKg) {
		unit := strings.TrimSpace(w.Unit)
		if unit == "" {
			unit = "kg"
		}
		fmt.Fprintf(b, "- Weight: %s %s on %s\n", formatNumber(w.Value), unit, w.RecordedAt.Format(promptDateLayout))
	}
	if hr := metrics.HeartRate; hr != nil {
		line := fmt.Sprintf("- Heart rate: %d bpm on %s", hr.BPM, hr.RecordedAt.Format(promptDateLayout))
		if label := humanizeLabel(hr.ActivityLevel); label != "" {
			line += " (" + label + ")"
		}
		b.WriteString(line + "\n")
	}
	if ex := metrics.Exercise; ex != nil {
		activity := humanizeLabel(ex.Type)
		if activity == "" {
			activity = "exercise"
		}
		line := fmt.Sprintf("- Exercise: %s for %d minutes on %s", activity, ex.DurationMinutes, ex.RecordedAt.Format(promptDateLayout))
		if intensity := humanizeLabel(ex.Intensity); intensity != "" {
			line += " (" + intensity + " intensity)"
		}
		b.WriteString(line + "\n")
	}
}

func weightDiffersFromProfile(reading WeightReading, profileKg *float64) bool {
	if profileKg == nil {
		return true
	}
	kg, ok := reading.kilograms()
	if !ok {
		return true
	}
	return math.Abs(kg-*profileKg) >= 0.05
}

func humanizeLabel(raw string) string {
	return strings.TrimSpace(strings.ReplaceAll(strings.ToLower(raw), "_", " "))
}
