package repositories

import (
	"context"
	"sync"

	"vasp-link.backend/internal/domain/repositories"
)

// OffchainRecordRepository is an in-memory implementation keyed by payment
// reference id. Records are stored as canonical JSON so reads hand out
// independent copies.
type OffchainRecordRepository struct {
	mu      sync.Mutex
	records map[string]*repositories.OffchainRecord
	locks   map[string]*sync.Mutex
}

// NewOffchainRecordRepository creates an empty in-memory record store.
func NewOffchainRecordRepository() *OffchainRecordRepository {
	return &OffchainRecordRepository{
		records: map[string]*repositories.OffchainRecord{},
		locks:   map[string]*sync.Mutex{},
	}
}

func (r *OffchainRecordRepository) Get(ctx context.Context, refID string) (*repositories.OffchainRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[refID]
	if !ok {
		return nil, nil
	}
	return copyRecord(record), nil
}

func (r *OffchainRecordRepository) Save(ctx context.Context, record *repositories.OffchainRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record.ReferenceID] = copyRecord(record)
	return nil
}

// LockRef returns after acquiring the per-reference-id mutex; the caller
// holds it across its read-validate-write sequence.
func (r *OffchainRecordRepository) LockRef(refID string) func() {
	r.mu.Lock()
	lock, ok := r.locks[refID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[refID] = lock
	}
	r.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

func (r *OffchainRecordRepository) List(ctx context.Context) ([]*repositories.OffchainRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*repositories.OffchainRecord, 0, len(r.records))
	for _, record := range r.records {
		out = append(out, copyRecord(record))
	}
	return out, nil
}

func copyRecord(record *repositories.OffchainRecord) *repositories.OffchainRecord {
	out := *record
	out.CmdJSON = append([]byte{}, record.CmdJSON...)
	return &out
}
