package chord

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zde37/chordsim/pkg"
	"github.com/zde37/chordsim/pkg/hash"
	"golang.org/x/exp/slices"
)

// Role says whether a node owns a key or holds a backup copy.
type Role uint8

const (
	RolePrimary Role = iota + 1
	RoleReplica
)

func (r Role) String() string {
	switch r {
	case RolePrimary:
		return "primary"
	case RoleReplica:
		return "replica"
	default:
		return "unknown"
	}
}

// Record is a key/value pair moved between nodes.
type Record struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// KeyRecord is a locally stored key with its role.
type KeyRecord struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Role  Role   `json:"role"`
}

// StorageStats reports access counters for both maps.
type StorageStats struct {
	Primary pkg.Stats `json:"primary"`
	Replica pkg.Stats `json:"replica"`
}

// ChordStorage keeps a node's primary and replica records in two separate
// MemoryStorage instances and maps keys onto the ring.
type ChordStorage struct {
	space   *hash.Space
	hasher  hash.KeyHasher
	primary *pkg.MemoryStorage
	replica *pkg.MemoryStorage
}

// NewChordStorage creates empty storage over the given ring.
func NewChordStorage(space *hash.Space, hasher hash.KeyHasher) *ChordStorage {
	return &ChordStorage{
		space:   space,
		hasher:  hasher,
		primary: pkg.NewMemoryStorage(),
		replica: pkg.NewMemoryStorage(),
	}
}

// KeyID hashes key onto the ring.
func (cs *ChordStorage) KeyID(key string) NodeID {
	return NodeID(cs.space.Reduce(cs.hasher.Hash(key)))
}

// SetPrimary stores key as owned by this node and drops any replica copy.
func (cs *ChordStorage) SetPrimary(ctx context.Context, key, value string) error {
	if err := cs.primary.Set(ctx, key, []byte(value)); err != nil {
		return fmt.Errorf("failed to store primary %q: %w", key, err)
	}
	if _, err := cs.replica.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to drop replica %q: %w", key, err)
	}
	return nil
}

// SetReplica stores a backup copy, overwriting any previous one.
func (cs *ChordStorage) SetReplica(ctx context.Context, key, value string) error {
	if err := cs.replica.Set(ctx, key, []byte(value)); err != nil {
		return fmt.Errorf("failed to store replica %q: %w", key, err)
	}
	return nil
}

// Lookup returns the primary copy of key if present, else the replica copy.
func (cs *ChordStorage) Lookup(ctx context.Context, key string) (KeyRecord, bool, error) {
	value, err := cs.primary.Get(ctx, key)
	if err == nil {
		return KeyRecord{Key: key, Value: string(value), Role: RolePrimary}, true, nil
	}
	if !errors.Is(err, pkg.ErrKeyNotFound) {
		return KeyRecord{}, false, err
	}

	value, err = cs.replica.Get(ctx, key)
	if err == nil {
		return KeyRecord{Key: key, Value: string(value), Role: RoleReplica}, true, nil
	}
	if errors.Is(err, pkg.ErrKeyNotFound) {
		return KeyRecord{}, false, nil
	}
	return KeyRecord{}, false, err
}

// HasPrimary reports whether key is owned here.
func (cs *ChordStorage) HasPrimary(key string) bool {
	return cs.primary.Has(key)
}

// HasReplica reports whether a backup copy of key is held here.
func (cs *ChordStorage) HasReplica(key string) bool {
	return cs.replica.Has(key)
}

// PrimaryRecords returns every owned record ordered by key.
func (cs *ChordStorage) PrimaryRecords(ctx context.Context) ([]Record, error) {
	all, err := cs.primary.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list primaries: %w", err)
	}
	return sortedRecords(all), nil
}

// HandOff removes owned records whose key id lies in (from, to] and keeps
// them as replicas. It returns the moved records ordered by key.
func (cs *ChordStorage) HandOff(ctx context.Context, from, to NodeID) ([]Record, error) {
	all, err := cs.primary.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list primaries: %w", err)
	}

	moved := make([]Record, 0)
	for _, rec := range sortedRecords(all) {
		if !cs.space.IsBetween(uint64(from), uint64(cs.KeyID(rec.Key)), uint64(to)) {
			continue
		}
		if _, err := cs.primary.Delete(ctx, rec.Key); err != nil {
			return nil, fmt.Errorf("failed to release %q: %w", rec.Key, err)
		}
		if err := cs.SetReplica(ctx, rec.Key, rec.Value); err != nil {
			return nil, err
		}
		moved = append(moved, rec)
	}
	return moved, nil
}

// DropReplicas discards every backup copy.
func (cs *ChordStorage) DropReplicas() error {
	return cs.replica.Clear()
}

// PrimaryKeys returns owned keys in ascending order.
func (cs *ChordStorage) PrimaryKeys() []string {
	return cs.primary.Keys()
}

// ReplicaKeys returns backup keys in ascending order.
func (cs *ChordStorage) ReplicaKeys() []string {
	return cs.replica.Keys()
}

// Stats returns access counters.
func (cs *ChordStorage) Stats() StorageStats {
	return StorageStats{
		Primary: cs.primary.GetStats(),
		Replica: cs.replica.GetStats(),
	}
}

// Close releases both maps.
func (cs *ChordStorage) Close() error {
	return errors.Join(cs.primary.Close(), cs.replica.Close())
}

// IsResponsibleFor reports whether the node self, whose left neighbour is
// left, is the ring successor of keyID.
func IsResponsibleFor(space *hash.Space, self, left, keyID NodeID) bool {
	return left == self || space.IsBetween(uint64(left), uint64(keyID), uint64(self))
}

func sortedRecords(m map[string][]byte) []Record {
	out := make([]Record, 0, len(m))
	for k, v := range m {
		out = append(out, Record{Key: k, Value: string(v)})
	}
	slices.SortFunc(out, func(a, b Record) int {
		return strings.Compare(a.Key, b.Key)
	})
	return out
}
