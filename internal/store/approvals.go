package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/nhle/inbox-triage/internal/model"
)

// ErrMalformed is wrapped by reads of an approval file that is not a valid
// JSON array of records.
var ErrMalformed = errors.New("malformed approval store")

// ErrRequestNotFound is returned by Update when no record has the id.
var ErrRequestNotFound = errors.New("approval request not found")

var (
	// ErrNotPending is returned by Claim for a request already decided.
	ErrNotPending = errors.New("approval request is not pending")

	// ErrClaimed is returned by Claim while another caller in this process
	// holds the request.
	ErrClaimed = errors.New("approval request is being decided")
)

// ApprovalFile persists every approval request ever created as a JSON
// array. Each write replaces the whole file through a temp file and a
// rename, so readers never see a partial array.
//
// Writes merge into the current contents: records passed in replace those
// with the same id and everything else is kept as read. All handles on the
// same path within a process share one lock and one claim set. Another
// process writing between our read and our rename is overwritten (last
// writer wins); there is no cross-process lock.
type ApprovalFile struct {
	path string
	*fileState
}

type fileState struct {
	mu     sync.Mutex
	claims map[string]struct{}
}

var (
	statesMu sync.Mutex
	states   = make(map[string]*fileState)
)

// stateFor returns the lock and claim set shared by every handle on path.
func stateFor(path string) *fileState {
	key, err := filepath.Abs(path)
	if err != nil {
		key = filepath.Clean(path)
	}

	statesMu.Lock()
	defer statesMu.Unlock()

	st, ok := states[key]
	if !ok {
		st = &fileState{claims: make(map[string]struct{})}
		states[key] = st
	}
	return st
}

// NewApprovalFile returns a store backed by path. The file is created on
// the first write.
func NewApprovalFile(path string) *ApprovalFile {
	return &ApprovalFile{path: path, fileState: stateFor(path)}
}

// Path returns the backing file path.
func (f *ApprovalFile) Path() string {
	return f.path
}

// Load returns all requests in file order. A missing file is an empty
// store.
func (f *ApprovalFile) Load() ([]*model.ApprovalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.load()
}

// Get returns the request with the given id.
func (f *ApprovalFile) Get(id string) (*model.ApprovalRequest, error) {
	reqs, err := f.Load()
	if err != nil {
		return nil, err
	}
	for _, r := range reqs {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrRequestNotFound, id)
}

// Upsert writes the given requests, replacing records with the same id and
// appending new ones.
func (f *ApprovalFile) Upsert(reqs ...*model.ApprovalRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	current, err := f.load()
	if err != nil {
		return err
	}

	index := make(map[string]int, len(current))
	for i, r := range current {
		index[r.ID] = i
	}

	for _, r := range reqs {
		if i, ok := index[r.ID]; ok {
			current[i] = r
			continue
		}
		index[r.ID] = len(current)
		current = append(current, r)
	}

	return f.write(current)
}

// Update applies fn to the request with the given id under the store's
// lock and writes the result. fn's error aborts the write.
func (f *ApprovalFile) Update(
	id string, fn func(*model.ApprovalRequest) error,
) (*model.ApprovalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	current, err := f.load()
	if err != nil {
		return nil, err
	}

	for _, r := range current {
		if r.ID != id {
			continue
		}
		if err := fn(r); err != nil {
			return nil, err
		}
		if err := f.write(current); err != nil {
			return nil, err
		}
		return r, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrRequestNotFound, id)
}

// Claim marks a pending request as being decided and returns it. Until
// Release is called, further claims on id fail with ErrClaimed. Deciders
// claim before sending so a draft goes out at most once.
func (f *ApprovalFile) Claim(id string) (*model.ApprovalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	current, err := f.load()
	if err != nil {
		return nil, err
	}
	for _, r := range current {
		if r.ID != id {
			continue
		}
		if r.Status.IsTerminal() {
			return nil, fmt.Errorf("%w: %s is %s", ErrNotPending, id, r.Status)
		}
		if _, busy := f.claims[id]; busy {
			return nil, fmt.Errorf("%w: %s", ErrClaimed, id)
		}
		f.claims[id] = struct{}{}
		return r, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrRequestNotFound, id)
}

// Release drops the claim on id.
func (f *ApprovalFile) Release(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.claims, id)
}

func (f *ApprovalFile) load() ([]*model.ApprovalRequest, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", f.path, err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, f.path, err)
	}

	reqs := make([]*model.ApprovalRequest, 0, len(records))
	for _, rec := range records {
		r, err := rec.Request()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, f.path, err)
		}
		reqs = append(reqs, r)
	}

	return reqs, nil
}

func (f *ApprovalFile) write(reqs []*model.ApprovalRequest) error {
	records := make([]Record, 0, len(reqs))
	for _, r := range reqs {
		records = append(records, RecordFrom(r))
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding approval store: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating store directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}

	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", f.path, err)
	}

	return nil
}
