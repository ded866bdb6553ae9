package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"momentum_go/internal/domain"
)

const instanceKeyPrefix = "instance:"

// InstanceRecord is the persisted form of a bot instance.
type InstanceRecord struct {
	ID          string           `json:"id"`
	Config      domain.BotConfig `json:"config"`
	CreatedAtMs int64            `json:"created_at_ms"`
	Stopped     bool             `json:"stopped"`
}

// PutInstance creates or replaces the record for rec.ID.
func (s *Store) PutInstance(ctx context.Context, rec InstanceRecord, ts int64) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal instance %s: %w", rec.ID, err)
	}
	if err := s.UpsertMetadata(ctx, instanceKeyPrefix+rec.ID, string(payload), ts); err != nil {
		return fmt.Errorf("failed to save instance %s: %w", rec.ID, err)
	}
	return nil
}

// DeleteInstance removes the record for id. Missing ids are not an error.
func (s *Store) DeleteInstance(ctx context.Context, id string) error {
	if err := s.DeleteMetadata(ctx, instanceKeyPrefix+id); err != nil {
		return fmt.Errorf("failed to delete instance %s: %w", id, err)
	}
	return nil
}

// ListInstances returns every persisted record ordered by creation time.
// Rows that fail to decode are skipped and reported through bad.
func (s *Store) ListInstances(ctx context.Context) (recs []InstanceRecord, bad []string, err error) {
	rows, err := s.ScanMetadata(ctx, instanceKeyPrefix)
	if err != nil {
		return nil, nil, err
	}
	for key, value := range rows {
		var rec InstanceRecord
		if err := json.Unmarshal([]byte(value), &rec); err != nil || rec.ID == "" {
			bad = append(bad, strings.TrimPrefix(key, instanceKeyPrefix))
			continue
		}
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].CreatedAtMs != recs[j].CreatedAtMs {
			return recs[i].CreatedAtMs < recs[j].CreatedAtMs
		}
		return recs[i].ID < recs[j].ID
	})
	sort.Strings(bad)
	return recs, bad, nil
}
