// Package snapshot persists locally authored messages and reaction
// counters across restarts, as a versioned record in a pebble store.
package snapshot

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"github.com/driftline/chatsync/internal/model"
	"github.com/driftline/chatsync/pkg/logger"
	"github.com/driftline/chatsync/pkg/metrics"
)

// SchemaVersion identifies the on-disk layout. A mismatch discards
// persisted state rather than attempting migration.
const SchemaVersion = 1

const (
	metaSchemaKey  = "meta:schema"
	authoredPrefix = "authored:"
	reactionPrefix = "reaction:"
)

// Store is a write-through snapshot store. It is read once at startup
// and rewritten after every authored-message append and every reaction
// confirmation or rollback.
type Store struct {
	db     *pebble.DB
	logger *logger.Logger
}

// Open opens (or creates) the snapshot database at path. When the
// recorded schema version does not match, existing state is dropped
// and the store starts empty.
func Open(path string, log *logger.Logger) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot store: %w", err)
	}

	s := &Store{db: db, logger: log.Component("snapshot")}
	if err := s.checkSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) checkSchema() error {
	value, closer, err := s.db.Get([]byte(metaSchemaKey))
	switch {
	case err == pebble.ErrNotFound:
		return s.writeSchema()
	case err != nil:
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	version, parseErr := strconv.Atoi(string(value))
	closer.Close()
	if parseErr != nil || version != SchemaVersion {
		s.logger.Warn("snapshot schema mismatch, discarding persisted state",
			zap.String("found", string(value)),
			zap.Int("want", SchemaVersion),
		)
		if err := s.discardAll(); err != nil {
			return err
		}
		return s.writeSchema()
	}
	return nil
}

func (s *Store) writeSchema() error {
	if err := s.db.Set([]byte(metaSchemaKey), []byte(strconv.Itoa(SchemaVersion)), pebble.Sync); err != nil {
		return fmt.Errorf("failed to write schema version: %w", err)
	}
	return nil
}

func (s *Store) discardAll() error {
	for _, prefix := range []string{authoredPrefix, reactionPrefix} {
		if err := s.db.DeleteRange([]byte(prefix), []byte(prefix+"\xff"), pebble.Sync); err != nil {
			return fmt.Errorf("failed to discard snapshot state: %w", err)
		}
	}
	return nil
}

// authoredKey orders messages by conversation then timestamp; the
// zero-padded timestamp keeps pebble's iteration chronological.
func authoredKey(msg model.Message) []byte {
	return []byte(fmt.Sprintf("%s%d:%020d", authoredPrefix, msg.ConversationID, msg.Timestamp))
}

// AppendAuthored writes one authored message through to disk.
func (s *Store) AppendAuthored(msg model.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal authored message: %w", err)
	}
	if err := s.db.Set(authoredKey(msg), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to persist authored message: %w", err)
	}
	metrics.SnapshotWritesTotal.WithLabelValues("authored").Inc()
	return nil
}

// PutReactions writes the counter set for one message through to disk.
func (s *Store) PutReactions(messageID string, counts model.ReactionCounts) error {
	data, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("failed to marshal reactions: %w", err)
	}
	if err := s.db.Set([]byte(reactionPrefix+messageID), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to persist reactions: %w", err)
	}
	metrics.SnapshotWritesTotal.WithLabelValues("reactions").Inc()
	return nil
}

// Load reads the full persisted snapshot. Individual undecodable
// records are skipped with a warning rather than failing the load.
func (s *Store) Load() ([]model.Message, map[string]model.ReactionCounts, error) {
	var authored []model.Message
	reactions := make(map[string]model.ReactionCounts)

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(authoredPrefix),
		UpperBound: []byte(authoredPrefix + "\xff"),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to iterate snapshot: %w", err)
	}
	for iter.First(); iter.Valid(); iter.Next() {
		var msg model.Message
		if err := json.Unmarshal(iter.Value(), &msg); err != nil {
			s.logger.Warn("skipping corrupt authored record", zap.ByteString("key", iter.Key()))
			continue
		}
		authored = append(authored, msg)
	}
	if err := iter.Close(); err != nil {
		return nil, nil, fmt.Errorf("failed to close iterator: %w", err)
	}

	iter, err = s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(reactionPrefix),
		UpperBound: []byte(reactionPrefix + "\xff"),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to iterate snapshot: %w", err)
	}
	for iter.First(); iter.Valid(); iter.Next() {
		var counts model.ReactionCounts
		if err := json.Unmarshal(iter.Value(), &counts); err != nil {
			s.logger.Warn("skipping corrupt reaction record", zap.ByteString("key", iter.Key()))
			continue
		}
		messageID := string(iter.Key()[len(reactionPrefix):])
		reactions[messageID] = counts
	}
	if err := iter.Close(); err != nil {
		return nil, nil, fmt.Errorf("failed to close iterator: %w", err)
	}

	return authored, reactions, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
