package database

import (
	"context"
)

func (q *Queries) GetSetting(ctx context.Context, key string) (string, error) {
	const sql = `SELECT value FROM settings WHERE key = $1`
	var value string
	err := q.db.QueryRow(ctx, sql, key).Scan(&value)
	return value, err
}

type UpsertSettingParams struct {
	Key   string
	Value string
}

func (q *Queries) UpsertSetting(ctx context.Context, arg UpsertSettingParams) error {
	const sql = `
		INSERT INTO settings (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`
	_, err := q.db.Exec(ctx, sql, arg.Key, arg.Value)
	return err
}
