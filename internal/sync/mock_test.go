package sync

import (
	"context"
	"fmt"
	"sync"

	"github.com/njoerd114/remindsync/internal/model"
)

// --- Mock local store --------------------------------------------------------

type mockStore struct {
	mu          sync.Mutex
	rows        map[int64]*model.Reminder // LocalID → row
	nextLocalID int64
	readErr     error // injected failure for All / DeletedUnsynced
}

func newMockStore() *mockStore {
	return &mockStore{rows: make(map[int64]*model.Reminder)}
}

// seed inserts rows directly, assigning LocalIDs.
func (m *mockStore) seed(reminders ...*model.Reminder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range reminders {
		m.nextLocalID++
		r.LocalID = m.nextLocalID
		m.rows[r.LocalID] = r.Clone()
	}
}

func (m *mockStore) All(_ context.Context) ([]*model.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	var result []*model.Reminder
	for _, r := range m.rows {
		result = append(result, r.Clone())
	}
	return result, nil
}

func (m *mockStore) DeletedUnsynced(_ context.Context) ([]*model.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	var result []*model.Reminder
	for _, r := range m.rows {
		if r.Deleted && !r.Synced {
			result = append(result, r.Clone())
		}
	}
	return result, nil
}

func (m *mockStore) Insert(_ context.Context, r *model.Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextLocalID++
	r.LocalID = m.nextLocalID
	m.rows[r.LocalID] = r.Clone()
	return nil
}

func (m *mockStore) Update(_ context.Context, r *model.Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[r.LocalID]; !ok {
		return fmt.Errorf("row %d not found", r.LocalID)
	}
	m.rows[r.LocalID] = r.Clone()
	return nil
}

func (m *mockStore) Replace(_ context.Context, oldLocalID int64, r *model.Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[oldLocalID]; !ok {
		return fmt.Errorf("row %d not found", oldLocalID)
	}
	delete(m.rows, oldLocalID)
	m.nextLocalID++
	r.LocalID = m.nextLocalID
	m.rows[r.LocalID] = r.Clone()
	return nil
}

func (m *mockStore) Purge(_ context.Context, localID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, localID)
	return nil
}

func (m *mockStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// byRemoteID returns the row with the given remote id, or nil.
func (m *mockStore) byRemoteID(id int64) *model.Reminder {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.ID == id {
			return r.Clone()
		}
	}
	return nil
}

// byTitle returns the first row with the given title, or nil.
func (m *mockStore) byTitle(title string) *model.Reminder {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.Title == title {
			return r.Clone()
		}
	}
	return nil
}

// --- Mock remote client ------------------------------------------------------

type mockRemote struct {
	mu     sync.Mutex
	rows   map[int64]*model.Reminder
	nextID int64

	listErr   error
	createErr map[string]error // by title
	updateErr map[int64]error
	deleteErr map[int64]error

	createCalls int
	updateCalls int
	deleteCalls int
}

func newMockRemote(reminders ...*model.Reminder) *mockRemote {
	m := &mockRemote{
		rows:      make(map[int64]*model.Reminder),
		nextID:    100,
		createErr: make(map[string]error),
		updateErr: make(map[int64]error),
		deleteErr: make(map[int64]error),
	}
	for _, r := range reminders {
		m.rows[r.ID] = r.Clone()
	}
	return m
}

func (m *mockRemote) List(_ context.Context) ([]*model.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var result []*model.Reminder
	for _, r := range m.rows {
		result = append(result, r.Clone())
	}
	return result, nil
}

func (m *mockRemote) Create(_ context.Context, r *model.Reminder) (*model.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if err := m.createErr[r.Title]; err != nil {
		return nil, err
	}

	cp := r.Clone()
	cp.LocalID = 0
	if cp.ID == model.SentinelID {
		m.nextID++
		cp.ID = m.nextID
	}
	m.rows[cp.ID] = cp
	return cp.Clone(), nil
}

func (m *mockRemote) Update(_ context.Context, r *model.Reminder) (*model.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	if err := m.updateErr[r.ID]; err != nil {
		return nil, err
	}
	if _, ok := m.rows[r.ID]; !ok {
		return nil, fmt.Errorf("remote reminder %d not found", r.ID)
	}

	cp := r.Clone()
	cp.LocalID = 0
	m.rows[cp.ID] = cp
	return cp.Clone(), nil
}

func (m *mockRemote) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls++
	if err := m.deleteErr[id]; err != nil {
		return err
	}
	if _, ok := m.rows[id]; !ok {
		return fmt.Errorf("remote reminder %d not found", id)
	}
	delete(m.rows, id)
	return nil
}

func (m *mockRemote) get(id int64) *model.Reminder {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rows[id]; ok {
		return r.Clone()
	}
	return nil
}

func (m *mockRemote) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}
