// Package state persists the open position across restarts. The file
// backend is the default; Redis is optional for shared deployments.
package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"paper-trading-bot/config"
	"paper-trading-bot/internal/logging"
	"paper-trading-bot/internal/monitor"
)

// ErrNoSnapshot is returned by Load when nothing was persisted.
var ErrNoSnapshot = errors.New("no position snapshot")

// Snapshot is the persisted recovery document: the serialized position,
// the engine's state label at save time, and a save timestamp.
type Snapshot struct {
	Position monitor.Position `json:"position"`
	State    string           `json:"state"`
	SavedAt  time.Time        `json:"saved_at"`
}

// PositionStore persists at most one snapshot. Load consumes it: a
// successful Load removes the snapshot so a restart never restores the
// same position twice.
type PositionStore interface {
	Save(ctx context.Context, snap *Snapshot) error
	Load(ctx context.Context) (*Snapshot, error)
	Clear(ctx context.Context) error
}

// NewStore builds the configured backend.
func NewStore(cfg config.StateConfig, redisCfg config.RedisConfig, log *logging.Logger) (PositionStore, error) {
	switch cfg.Backend {
	case "", "file":
		return NewFileStore(cfg.RecoveryFile, log), nil
	case "redis":
		return NewRedisStore(redisCfg, log), nil
	}
	return nil, fmt.Errorf("unknown state backend %q", cfg.Backend)
}
