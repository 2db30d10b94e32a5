package server

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/jackc/pgx/v5"

	"glucoguide/backend/internal/chat"
)

const recentGlucoseReadings = 5

type historyStore struct {
	q dbQuerier
}

// loadRecentMessages returns the newest limit messages of a session, oldest
// first.
func (s *historyStore) loadRecentMessages(ctx context.Context, sessionID string, limit int) ([]chat.StoredMessage, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	rows, err := s.q.Query(
		ctx,
		`SELECT sender, content
		 FROM "ChatMessage"
		 WHERE "sessionId" = $1
		 ORDER BY "createdAt" DESC, id DESC
		 LIMIT $2`,
		sessionID,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]chat.StoredMessage, 0, limit)
	for rows.Next() {
		var msg chat.StoredMessage
		if err := rows.Scan(&msg.Sender, &msg.Content); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

type medicalStore struct {
	q dbQuerier
}

// loadMedicalContext returns nil when the user has neither a profile nor any
// recorded metric.
func (s *medicalStore) loadMedicalContext(ctx context.Context, userID string) (*chat.MedicalContext, error) {
	medical := &chat.MedicalContext{}
	hasProfile, err := s.loadProfile(ctx, userID, medical)
	if err != nil {
		return nil, fmt.Errorf("load medical profile: %w", err)
	}

	metrics, err := s.loadMetrics(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load health metrics: %w", err)
	}
	if metrics != nil {
		medical.HealthMetrics = metrics
	}
	if !hasProfile && metrics == nil {
		return nil, nil
	}
	return medical, nil
}

func (s *medicalStore) loadProfile(ctx context.Context, userID string, out *chat.MedicalContext) (bool, error) {
	var diabetesType, medications, allergies, comorbidities *string
	err := s.q.QueryRow(
		ctx,
		`SELECT "diabetesType", "diagnosisYear", "heightCm", "weightKg", bmi,
		        "targetGlucoseMin", "targetGlucoseMax", medications, allergies, comorbidities
		 FROM "MedicalProfile"
		 WHERE "userId" = $1`,
		userID,
	).Scan(
		&diabetesType,
		&out.DiagnosisYear,
		&out.HeightCm,
		&out.WeightKg,
		&out.BMI,
		&out.TargetGlucoseMin,
		&out.TargetGlucoseMax,
		&medications,
		&allergies,
		&comorbidities,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	out.DiabetesType = derefString(diabetesType)
	out.Medications = derefString(medications)
	out.Allergies = derefString(allergies)
	out.Comorbidities = derefString(comorbidities)
	if out.BMI == nil {
		out.BMI = computeBMI(out.HeightCm, out.WeightKg)
	}
	return true, nil
}

func (s *medicalStore) loadMetrics(ctx context.Context, userID string) (*chat.HealthMetrics, error) {
	metrics := &chat.HealthMetrics{}
	found := false

	rows, err := s.q.Query(
		ctx,
		`SELECT value, unit, COALESCE(context, ''), "recordedAt"
		 FROM "GlucoseReading"
		 WHERE "userId" = $1
		 ORDER BY "recordedAt" DESC
		 LIMIT $2`,
		userID,
		recentGlucoseReadings,
	)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var reading chat.GlucoseReading
		if err := rows.Scan(&reading.Value, &reading.Unit, &reading.Context, &reading.RecordedAt); err != nil {
			rows.Close()
			return nil, err
		}
		reading.RecordedAt = reading.RecordedAt.UTC()
		metrics.Glucose = append(metrics.Glucose, reading)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	found = len(metrics.Glucose) > 0

	var bp chat.BloodPressureReading
	ok, err := scanLatest(s.q.QueryRow(
		ctx,
		`SELECT systolic, diastolic, pulse, "recordedAt"
		 FROM "BloodPressureReading"
		 WHERE "userId" = $1
		 ORDER BY "recordedAt" DESC
		 LIMIT 1`,
		userID,
	), &bp.Systolic, &bp.Diastolic, &bp.Pulse, &bp.RecordedAt)
	if err != nil {
		return nil, err
	}
	if ok {
		bp.RecordedAt = bp.RecordedAt.UTC()
		metrics.BloodPressure = &bp
		found = true
	}

	var a1c chat.A1CReading
	ok, err = scanLatest(s.q.QueryRow(
		ctx,
		`SELECT percentage, "recordedAt"
		 FROM "A1CReading"
		 WHERE "userId" = $1
		 ORDER BY "recordedAt" DESC
		 LIMIT 1`,
		userID,
	), &a1c.Percentage, &a1c.RecordedAt)
	if err != nil {
		return nil, err
	}
	if ok {
		a1c.RecordedAt = a1c.RecordedAt.UTC()
		metrics.A1C = &a1c
		found = true
	}

	var weight chat.WeightReading
	ok, err = scanLatest(s.q.QueryRow(
		ctx,
		`SELECT value, unit, "recordedAt"
		 FROM "WeightReading"
		 WHERE "userId" = $1
		 ORDER BY "recordedAt" DESC
		 LIMIT 1`,
		userID,
	), &weight.Value, &weight.Unit, &weight.RecordedAt)
	if err != nil {
		return nil, err
	}
	if ok {
		weight.RecordedAt = weight.RecordedAt.UTC()
		metrics.Weight = &weight
		found = true
	}

	var heartRate chat.HeartRateReading
	ok, err = scanLatest(s.q.QueryRow(
		ctx,
		`SELECT bpm, COALESCE("activityLevel", ''), "recordedAt"
		 FROM "HeartRateReading"
		 WHERE "userId" = $1
		 ORDER BY "recordedAt" DESC
		 LIMIT 1`,
		userID,
	), &heartRate.BPM, &heartRate.ActivityLevel, &heartRate.RecordedAt)
	if err != nil {
		return nil, err
	}
	if ok {
		heartRate.RecordedAt = heartRate.RecordedAt.UTC()
		metrics.HeartRate = &heartRate
		found = true
	}

	var exercise chat.ExerciseSession
	ok, err = scanLatest(s.q.QueryRow(
		ctx,
		`SELECT "exerciseType", "durationMinutes", COALESCE(intensity, ''), "recordedAt"
		 FROM "ExerciseSession"
		 WHERE "userId" = $1
		 ORDER BY "recordedAt" DESC
		 LIMIT 1`,
		userID,
	), &exercise.Type, &exercise.DurationMinutes, &exercise.Intensity, &exercise.RecordedAt)
	if err != nil {
		return nil, err
	}
	if ok {
		exercise.RecordedAt = exercise.RecordedAt.UTC()
		metrics.Exercise = &exercise
		found = true
	}

	if !found {
		return nil, nil
	}
	return metrics, nil
}

func scanLatest(row pgx.Row, dest ...any) (bool, error) {
	err := row.Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func computeBMI(heightCm, weightKg *float64) *float64 {
	if heightCm == nil || weightKg == nil || *heightCm <= 0 || *weightKg <= 0 {
		return nil
	}
	meters := *heightCm / 100
	bmi := math.Round(*weightKg/(meters*meters)*10) / 10
	return &bmi
}

type resourceStore struct {
	q dbQuerier
}

func (s *resourceStore) SearchApproved(ctx context.Context, keywords []string, limit int) ([]chat.Resource, error) {
	query, args := buildResourceSearchQuery(keywords, limit)
	if query == "" {
		return []chat.Resource{}, nil
	}
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search resources: %w", err)
	}
	defer rows.Close()

	resources := make([]chat.Resource, 0, limit)
	for rows.Next() {
		var resource chat.Resource
		var tags string
		if err := rows.Scan(
			&resource.ID,
			&resource.Title,
			&resource.Description,
			&resource.URL,
			&resource.Category,
			&tags,
		); err != nil {
			return nil, err
		}
		resource.Tags = splitTags(tags)
		resources = append(resources, resource)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return resources, nil
}

// buildResourceSearchQuery returns "" when there is nothing to search for.
// Each keyword contributes one parameter matched against title, description
// and tags; a resource matches when any keyword does.
func buildResourceSearchQuery(keywords []string, limit int) (string, []any) {
	if limit <= 0 {
		limit = chat.MaxRelevantResources
	}
	clauses := make([]string, 0, len(keywords))
	args := make([]any, 0, len(keywords)+1)
	for _, keyword := range keywords {
		keyword = strings.TrimSpace(keyword)
		if keyword == "" {
			continue
		}
		args = append(args, "%"+escapeLike(keyword)+"%")
		n := len(args)
		clauses = append(clauses, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d OR tags ILIKE $%d)", n, n, n))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	args = append(args, limit)

	query := `SELECT id, title, description, COALESCE(url, ''), category, tags
		 FROM "Resource"
		 WHERE approved = TRUE
		   AND (` + strings.Join(clauses, " OR ") + `)
		 ORDER BY title ASC
		 LIMIT $` + fmt.Sprint(len(args))
	return query, args
}

func escapeLike(value string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(value)
}

func splitTags(raw string) []string {
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			tags = append(tags, trimmed)
		}
	}
	return tags
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(*value)
}
