package store

import (
	"context"

	"github.com/0Papitchu/GBPBot-sub003/internal/domain/model"
)

// HistoryArchive persists history entries evicted from the in-memory ledger.
type HistoryArchive interface {
	// ArchiveHistory stores entries and returns how many were new. Entries
	// already archived are skipped.
	ArchiveHistory(ctx context.Context, network string, entries []model.HistoryEntry) (int, error)
	ListHistory(ctx context.Context, network string, chain model.Chain, limit int) ([]model.HistoryEntry, error)
}

// RuntimeConfigSource provides runtime overrides for a network, keyed by
// config key.
type RuntimeConfigSource interface {
	GetActive(ctx context.Context, network string) (map[string]string, error)
}

// StatusPublisher broadcasts terminal transaction states to other processes.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, network string, entry model.HistoryEntry) error
}
