package postgres

import (
	"context"
	"fmt"
)

type RuntimeConfigRepo struct {
	db *DB
}

func NewRuntimeConfigRepo(db *DB) *RuntimeConfigRepo {
	return &RuntimeConfigRepo{db: db}
}

func (r *RuntimeConfigRepo) GetActive(ctx context.Context, network string) (map[string]string, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT config_key, config_value
		FROM runtime_configs
		WHERE network = $1 AND is_active = true
	`, network)
	if err != nil {
		return nil, fmt.Errorf("get active runtime configs: %w", err)
	}
	defer rows.Close()

	configs := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan runtime config: %w", err)
		}
		configs[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read runtime config rows: %w", err)
	}
	return configs, nil
}

// Set upserts an active override.
func (r *RuntimeConfigRepo) Set(ctx context.Context, network, key, value string) error {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO runtime_configs (network, config_key, config_value, is_active, updated_at)
		VALUES ($1, $2, $3, true, now())
		ON CONFLICT (network, config_key)
		DO UPDATE SET config_value = EXCLUDED.config_value, is_active = true, updated_at = now()
	`, network, key, value)
	if err != nil {
		return fmt.Errorf("set runtime config %s: %w", key, err)
	}
	return nil
}
