// Package storage persists label records using NATS JetStream KV.
// The store holds only the declared part of a label (identifier,
// display name, icon/color/aliases); computed ancestry is never
// persisted and is rebuilt from configuration after every load.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// BucketLabels is the KV bucket holding label records.
const BucketLabels = "LABELGRAPH_LABELS"

// Record is the persisted shape of a label.
type Record struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Icon       string    `json:"icon,omitempty"`
	Color      string    `json:"color,omitempty"`
	Aliases    []string  `json:"aliases,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Validate checks that a record can be stored.
func (r *Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("record id is required")
	}
	if strings.ContainsAny(r.ID, " \t\n") {
		return fmt.Errorf("record id %q contains whitespace", r.ID)
	}
	if r.Name == "" {
		return fmt.Errorf("record name is required")
	}
	return nil
}

// Store provides label record storage backed by NATS KV.
type Store struct {
	labels jetstream.KeyValue
}

// NewStore creates a Store with the given JetStream context, creating
// the labels bucket if it doesn't exist.
func NewStore(ctx context.Context, js jetstream.JetStream) (*Store, error) {
	labels, err := getOrCreateBucket(ctx, js, BucketLabels)
	if err != nil {
		return nil, fmt.Errorf("create labels bucket: %w", err)
	}
	return &Store{labels: labels}, nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: "Labelgraph label records",
		History:     5, // Keep last 5 revisions
	})
}

// LoadAll returns every stored label record.
func (s *Store) LoadAll(ctx context.Context) ([]Record, error) {
	keys, err := s.labels.Keys(ctx)
	if err != nil {
		if err == jetstream.ErrNoKeysFound {
			return nil, nil
		}
		return nil, fmt.Errorf("list label keys: %w", err)
	}

	records := make([]Record, 0, len(keys))
	for _, key := range keys {
		entry, err := s.labels.Get(ctx, key)
		if err != nil {
			continue // Skip entries that fail to load
		}
		var r Record
		if err := json.Unmarshal(entry.Value(), &r); err != nil {
			continue
		}
		records = append(records, r)
	}
	return records, nil
}

// Get retrieves one record by label id.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	entry, err := s.labels.Get(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get label %s: %w", id, err)
	}

	var r Record
	if err := json.Unmarshal(entry.Value(), &r); err != nil {
		return nil, fmt.Errorf("unmarshal label %s: %w", id, err)
	}
	return &r, nil
}

// Put stores a record, overwriting any existing revision.
func (s *Store) Put(ctx context.Context, r Record) error {
	if err := r.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal label %s: %w", r.ID, err)
	}
	if _, err := s.labels.Put(ctx, r.ID, data); err != nil {
		return fmt.Errorf("store label %s: %w", r.ID, err)
	}
	return nil
}

// Delete removes a record. Deleting a missing record is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.labels.Delete(ctx, id); err != nil && !isNotFound(err) {
		return fmt.Errorf("delete label %s: %w", id, err)
	}
	return nil
}

// Rename moves a record to a new id, preserving its attributes.
func (s *Store) Rename(ctx context.Context, oldID, newID string) error {
	r, err := s.Get(ctx, oldID)
	if err != nil {
		return err
	}

	r.ID = newID
	r.ModifiedAt = time.Now()
	if err := s.Put(ctx, *r); err != nil {
		return err
	}
	return s.Delete(ctx, oldID)
}

// isNotFound checks if an error indicates a key was not found.
func isNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "key not found")
}
