package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

type schemaColumn struct {
	table  string
	column string
}

var requiredColumns = []schemaColumn{
	{table: "User", column: "email"},
	{table: "MedicalProfile", column: "diabetesType"},
	{table: "MedicalProfile", column: "targetGlucoseMin"},
	{table: "MedicalProfile", column: "targetGlucoseMax"},
	{table: "GlucoseReading", column: "recordedAt"},
	{table: "BloodPressureReading", column: "pulse"},
	{table: "A1CReading", column: "percentage"},
	{table: "WeightReading", column: "unit"},
	{table: "HeartRateReading", column: "activityLevel"},
	{table: "ExerciseSession", column: "exerciseType"},
	{table: "Resource", column: "approved"},
	{table: "Resource", column: "tags"},
	{table: "ChatSession", column: "title"},
	{table: "ChatMessage", column: "sender"},
	{table: "ChatMessage", column: "sourcesJson"},
	{table: "AiUsageLog", column: "errorKind"},
	{table: "AiUsageLog", column: "greetingBypass"},
}

func ValidateRuntimeSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("database pool is nil")
	}

	for _, item := range requiredColumns {
		ok, err := columnExists(ctx, pool, item.table, item.column)
		if err != nil {
			return fmt.Errorf(
				"failed checking schema for %s.%s: %w",
				item.table,
				item.column,
				err,
			)
		}
		if !ok {
			return fmt.Errorf(
				"required column %s.%s is missing; apply internal/db/schema.sql",
				item.table,
				item.column,
			)
		}
	}

	return nil
}

func columnExists(ctx context.Context, pool *pgxpool.Pool, tableName, columnName string) (bool, error) {
	table := strings.TrimSpace(tableName)
	column := strings.TrimSpace(columnName)
	if table == "" || column == "" {
		return false, fmt.Errorf("table/column must not be empty")
	}
	var exists bool
	err := pool.QueryRow(
		ctx,
		`SELECT EXISTS (
		   SELECT 1
		   FROM information_schema.columns
		   WHERE table_schema = current_schema()
		     AND lower(table_name) = lower($1)
		     AND lower(column_name) = lower($2)
		 )`,
		table,
		column,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}
