package chat

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

const (
	greetingMaxWords = 5
	a1cRecentWindow  = 90 * 24 * time.Hour
	exerciseWindow   = 48 * time.Hour
)

var greetingPhrases = []string{
	"hi", "hii", "hello", "hey", "heya", "hiya", "howdy", "yo", "hola",
	"greetings", "good morning", "good afternoon", "good evening", "good day",
	"hi there", "hello there", "hey there",
}

var conversationalOpeners = []string{
	"how are you", "how are you doing", "how's it going", "hows it going",
	"how is it going", "what's up", "whats up", "sup", "how do you do",
	"how have you been", "nice to meet you",
}

var greetingIntros = []string{
	"Hello! I'm your diabetes care assistant.",
	"Hi there! It's good to hear from you.",
	"Hey! Thanks for checking in.",
	"Hello again! I'm here to help with your diabetes management.",
}

var greetingClosings = []string{
	"How can I help you manage your diabetes today?",
	"What would you like to talk about today?",
	"Is there anything about your recent readings you'd like to go over?",
	"Do you have any questions about food, exercise or medication today?",
}

// RandomSource picks an index in [0, n).
type RandomSource interface {
	IntN(n int) int
}

type globalRandom struct{}

func (globalRandom) IntN(n int) int { return rand.IntN(n) }

// DefaultRandom returns a RandomSource backed by the package-level
// math/rand/v2 generator, which is safe for concurrent use.
func DefaultRandom() RandomSource { return globalRandom{} }

// Pick returns a uniformly chosen element of candidates, or "" when there
// are none.
func Pick(candidates []string, rnd RandomSource) string {
	if len(candidates) == 0 {
		return ""
	}
	if rnd == nil {
		rnd = DefaultRandom()
	}
	return candidates[rnd.IntN(len(candidates))]
}

// IsGreeting reports whether message is a short greeting or small-talk
// opener that can be answered without calling the model.
func IsGreeting(message string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(message))
	if trimmed == "" {
		return false
	}
	if len(strings.Fields(trimmed)) > greetingMaxWords {
		return false
	}
	for _, phrase := range greetingPhrases {
		if matchesPhrase(trimmed, phrase) {
			return true
		}
	}
	for _, phrase := range conversationalOpeners {
		if matchesPhrase(trimmed, phrase) || strings.Contains(trimmed, phrase+"?") {
			return true
		}
	}
	return false
}

func matchesPhrase(message, phrase string) bool {
	if message == phrase {
		return true
	}
	if !strings.HasPrefix(message, phrase) {
		return false
	}
	switch message[len(phrase)] {
	case ' ', '!', '.', ',':
		return true
	}
	return false
}

// GreetingResponse builds a local reply to a greeting, personalised with the
// user's diabetes type and recent readings when a medical context is given.
func GreetingResponse(medical *MedicalContext, rnd RandomSource, now time.Time) Outcome {
	parts := []string{Pick(greetingIntros, rnd)}
	parts = append(parts, greetingPersonalization(medical, now)...)
	parts = append(parts, Pick(greetingClosings, rnd))

	return Outcome{
		MessageText: strings.Join(parts, " "),
		Sources:     []Source{},
		Diagnostics: map[string]any{
			DiagGreetingDetected: true,
			DiagAIBypassed:       true,
		},
	}
}

func greetingPersonalization(medical *MedicalContext, now time.Time) []string {
	if medical == nil {
		return nil
	}
	clauses := make([]string, 0, 4)

	if name := DiabetesTypeName(medical.DiabetesType); name != "" {
		clauses = append(clauses, fmt.Sprintf("I see you're managing %s.", name))
	}

	if reading, ok := medical.latestGlucose(); ok {
		clauses = append(clauses, glucoseClause(reading, medical))
	}

	metrics := medical.HealthMetrics
	if metrics != nil && metrics.A1C != nil && withinWindow(metrics.A1C.RecordedAt, now, a1cRecentWindow) {
		clauses = append(clauses, fmt.Sprintf(
			"Your latest A1C was %s%%.",
			formatNumber(metrics.A1C.Percentage),
		))
	}
	if metrics != nil && metrics.Exercise != nil && withinWindow(metrics.Exercise.RecordedAt, now, exerciseWindow) {
		activity := strings.ToLower(strings.TrimSpace(metrics.Exercise.Type))
		if activity == "" {
			activity = "exercise"
		}
		clauses = append(clauses, fmt.Sprintf(
			"Great job staying active with your recent %s session!",
			activity,
		))
	}
	return clauses
}

// glucoseClause compares the reading with the mg/dL target range. Readings
// in a unit that cannot be converted are reported without a comparison.
func glucoseClause(reading GlucoseReading, medical *MedicalContext) string {
	reported := fmt.Sprintf("Your most recent glucose reading was %s %s", formatNumber(reading.Value), glucoseUnit(reading.Unit))
	value, ok := reading.mgPerDL()
	if !ok {
		return reported + "."
	}
	low, high := medical.targetRange()
	switch {
	case value < low:
		return reported + ", which is below your target range, so keep an eye out for signs of low blood sugar."
	case value > high:
		return reported + ", which is above your target range."
	default:
		return reported + ", which is within your target range, nice work."
	}
}

func withinWindow(at, now time.Time, window time.Duration) bool {
	if at.IsZero() {
		return false
	}
	age := now.Sub(at)
	return age >= 0 && age <= window
}

func glucoseUnit(unit string) string {
	if trimmed := strings.TrimSpace(unit); trimmed != "" {
		return trimmed
	}
	return "mg/dL"
}

func formatNumber(value float64) string {
	if value == float64(int64(value)) {
		return fmt.Sprintf("%d", int64(value))
	}
	return fmt.Sprintf("%.1f", value)
}
