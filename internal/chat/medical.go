package chat

import (
	"strings"
	"time"
)

// MedicalContext is a read-only snapshot of the user's diabetes profile and
// latest readings. A nil *MedicalContext means no profile is on file.
type MedicalContext struct {
	DiabetesType     string         `json:"diabetes_type,omitempty"`
	DiagnosisYear    *int           `json:"diagnosis_year,omitempty"`
	HeightCm         *float64       `json:"height_cm,omitempty"`
	WeightKg         *float64       `json:"weight_kg,omitempty"`
	BMI              *float64       `json:"bmi,omitempty"`
	TargetGlucoseMin *float64       `json:"target_glucose_min,omitempty"`
	TargetGlucoseMax *float64       `json:"target_glucose_max,omitempty"`
	Medications      string         `json:"medications,omitempty"`
	Allergies        string         `json:"allergies,omitempty"`
	Comorbidities    string         `json:"comorbidities,omitempty"`
	HealthMetrics    *HealthMetrics `json:"health_metrics,omitempty"`
}

// HealthMetrics holds the most recent readings per metric kind. Glucose is
// ordered newest first.
type HealthMetrics struct {
	Glucose       []GlucoseReading      `json:"glucose,omitempty"`
	BloodPressure *BloodPressureReading `json:"blood_pressure,omitempty"`
	A1C           *A1CReading           `json:"a1c,omitempty"`
	Weight        *WeightReading        `json:"weight,omitempty"`
	HeartRate     *HeartRateReading     `json:"heart_rate,omitempty"`
	Exercise      *ExerciseSession      `json:"exercise,omitempty"`
}

type GlucoseReading struct {
	Value      float64   `json:"value"`
	Unit       string    `json:"unit"`
	Context    string    `json:"context,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

type BloodPressureReading struct {
	Systolic   int       `json:"systolic"`
	Diastolic  int       `json:"diastolic"`
	Pulse      *int      `json:"pulse,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

type A1CReading struct {
	Percentage float64   `json:"percentage"`
	RecordedAt time.Time `json:"recorded_at"`
}

type WeightReading struct {
	Value      float64   `json:"value"`
	Unit       string    `json:"unit"`
	RecordedAt time.Time `json:"recorded_at"`
}

type HeartRateReading struct {
	BPM           int       `json:"bpm"`
	ActivityLevel string    `json:"activity_level,omitempty"`
	RecordedAt    time.Time `json:"recorded_at"`
}

type ExerciseSession struct {
	Type            string    `json:"type"`
	DurationMinutes int       `json:"duration_minutes"`
	Intensity       string    `json:"intensity,omitempty"`
	RecordedAt      time.Time `json:"recorded_at"`
}

const (
	defaultTargetGlucoseMin = 70.0
	defaultTargetGlucoseMax = 180.0
	poundsToKg              = 0.45359237
	mmolToMgPerDL           = 18.0182
)

// DiabetesTypeName renders a stored diabetes type code for display.
func DiabetesTypeName(code string) string {
	normalized := strings.ToLower(strings.TrimSpace(code))
	normalized = strings.NewReplacer("_", "", "-", "", " ", "").Replace(normalized)
	switch normalized {
	case "":
		return ""
	case "type1", "t1", "t1d":
		return "Type 1 diabetes"
	case "type2", "t2", "t2d":
		return "Type 2 diabetes"
	case "gestational", "gdm":
		return "gestational diabetes"
	case "prediabetes":
		return "prediabetes"
	case "lada":
		return "LADA (latent autoimmune diabetes in adults)"
	case "mody":
		return "MODY"
	default:
		return strings.TrimSpace(code)
	}
}

// targetRange returns the glucose target bounds, falling back to the common
// 70-180 mg/dL range when the profile does not define both.
func (m *MedicalContext) targetRange() (float64, float64) {
	if m == nil || m.TargetGlucoseMin == nil || m.TargetGlucoseMax == nil {
		return defaultTargetGlucoseMin, defaultTargetGlucoseMax
	}
	return *m.TargetGlucoseMin, *m.TargetGlucoseMax
}

func (m *MedicalContext) latestGlucose() (GlucoseReading, bool) {
	if m == nil || m.HealthMetrics == nil || len(m.HealthMetrics.Glucose) == 0 {
		return GlucoseReading{}, false
	}
	return m.HealthMetrics.Glucose[0], true
}

// mgPerDL returns the reading in mg/dL. An empty unit is taken as mg/dL.
func (r GlucoseReading) mgPerDL() (float64, bool) {
	unit := strings.ToLower(strings.TrimSpace(r.Unit))
	unit = strings.ReplaceAll(unit, " ", "")
	switch unit {
	case "", "mg/dl", "mgdl", "mg":
		return r.Value, true
	case "mmol/l", "mmol", "mmoll":
		return r.Value * mmolToMgPerDL, true
	default:
		return 0, false
	}
}

func (w WeightReading) kilograms() (float64, bool) {
	switch strings.ToLower(strings.TrimSpace(w.Unit)) {
	case "", "kg", "kgs":
		return w.Value, true
	case "lb", "lbs":
		return w.Value * poundsToKg, true
	default:
		return 0, false
	}
}
