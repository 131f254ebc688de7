// Package memory provides an in-memory Store implementation for tests
// and development. It implements the full leave.TxStore contract; the
// single mutex stands in for the database's transaction isolation, and
// WithTx runs the closure under it against a snapshot-free view (tests
// exercise logic, not crash recovery).
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/leave-engine/leave"
)

type Memory struct {
	mu sync.RWMutex

	users     map[string]leave.User
	types     map[string]leave.VacationType
	pools     map[string]leave.Pool
	userPools map[string]leave.UserPool
	entries   map[string][]leave.PoolEntry // userPoolID -> entries
	requests  map[string]leave.Request
	history   map[string][]leave.RequestHistory // requestID -> rows
	reminders []leave.Reminder
}

var _ leave.TxStore = (*Memory)(nil)

func New() *Memory {
	return &Memory{
		users:     make(map[string]leave.User),
		types:     make(map[string]leave.VacationType),
		pools:     make(map[string]leave.Pool),
		userPools: make(map[string]leave.UserPool),
		entries:   make(map[string][]leave.PoolEntry),
		requests:  make(map[string]leave.Request),
		history:   make(map[string][]leave.RequestHistory),
	}
}

// WithTx runs fn under the store lock. Rollback on error is not
// simulated; tests that need failure atomicity use the sqlite store.
func (m *Memory) WithTx(ctx context.Context, fn func(leave.Store) error) error {
	return fn(txView{m})
}

// txView disables nested locking hazards by delegating to the parent;
// the memory store's operations are individually atomic already.
type txView struct{ *Memory }

// =============================================================================
// USERS
// =============================================================================

func (m *Memory) SaveUser(_ context.Context, u leave.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

func (m *Memory) GetUser(_ context.Context, id string) (*leave.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, leave.ErrNotFound
	}
	return &u, nil
}

func (m *Memory) ListUsers(_ context.Context) ([]leave.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	users := make([]leave.User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

// =============================================================================
// VACATION TYPES
// =============================================================================

func (m *Memory) SaveVacationType(_ context.Context, vt leave.VacationType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.types[vt.Name] = vt
	return nil
}

func (m *Memory) GetVacationType(_ context.Context, name string) (*leave.VacationType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	vt, ok := m.types[name]
	if !ok {
		return nil, leave.ErrNotFound
	}
	return &vt, nil
}

func (m *Memory) ListVacationTypes(_ context.Context) ([]leave.VacationType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	types := make([]leave.VacationType, 0, len(m.types))
	for _, vt := range m.types {
		types = append(types, vt)
	}
	sort.Slice(types, func(i, j int) bool { return types[i].Name < types[j].Name })
	return types, nil
}

// =============================================================================
// POOLS
// =============================================================================

func (m *Memory) SavePool(_ context.Context, p leave.Pool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pools[p.ID] = p
	return nil
}

func (m *Memory) GetPool(_ context.Context, id string) (*leave.Pool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pools[id]
	if !ok {
		return nil, leave.ErrNotFound
	}
	return &p, nil
}

func (m *Memory) PoolsByStatus(_ context.Context, status leave.PoolStatus) ([]leave.Pool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var pools []leave.Pool
	for _, p := range m.pools {
		if p.Status == status {
			pools = append(pools, p)
		}
	}
	sort.Slice(pools, func(i, j int) bool { return pools[i].ID < pools[j].ID })
	return pools, nil
}

func (m *Memory) PoolsByGroup(_ context.Context, group string) ([]leave.Pool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var pools []leave.Pool
	for _, p := range m.pools {
		if p.PoolGroup == group {
			pools = append(pools, p)
		}
	}
	sort.Slice(pools, func(i, j int) bool { return pools[i].ID < pools[j].ID })
	return pools, nil
}

func (m *Memory) ActivePools(_ context.Context, vacationType string, country leave.Country) ([]leave.Pool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var pools []leave.Pool
	for _, p := range m.pools {
		if p.Status == leave.PoolActive && p.VacationType == vacationType && p.Country == country {
			pools = append(pools, p)
		}
	}
	sort.Slice(pools, func(i, j int) bool { return pools[i].Name < pools[j].Name })
	return pools, nil
}

// =============================================================================
// USER POOLS
// =============================================================================

func (m *Memory) SaveUserPool(_ context.Context, up leave.UserPool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userPools[up.ID] = up
	return nil
}

func (m *Memory) GetUserPool(_ context.Context, userID, poolID string) (*leave.UserPool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, up := range m.userPools {
		if up.UserID == userID && up.PoolID == poolID {
			return &up, nil
		}
	}
	return nil, leave.ErrNotFound
}

func (m *Memory) UserPoolsByPool(_ context.Context, poolID string) ([]leave.UserPool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ups []leave.UserPool
	for _, up := range m.userPools {
		if up.PoolID == poolID {
			ups = append(ups, up)
		}
	}
	sort.Slice(ups, func(i, j int) bool { return ups[i].ID < ups[j].ID })
	return ups, nil
}

func (m *Memory) UserPoolsByUser(_ context.Context, userID string) ([]leave.UserPool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ups []leave.UserPool
	for _, up := range m.userPools {
		if up.UserID == userID {
			ups = append(ups, up)
		}
	}
	sort.Slice(ups, func(i, j int) bool { return ups[i].ID < ups[j].ID })
	return ups, nil
}

func (m *Memory) IncrementUserPool(_ context.Context, entry leave.PoolEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	up, ok := m.userPools[entry.UserPoolID]
	if !ok {
		return leave.ErrNotFound
	}
	up.Amount = up.Amount.Add(entry.Delta)
	m.userPools[entry.UserPoolID] = up
	m.entries[entry.UserPoolID] = append(m.entries[entry.UserPoolID], entry)
	return nil
}

func (m *Memory) PoolEntries(_ context.Context, userPoolID string) ([]leave.PoolEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]leave.PoolEntry, len(m.entries[userPoolID]))
	copy(entries, m.entries[userPoolID])
	return entries, nil
}

// =============================================================================
// REQUESTS
// =============================================================================

func (m *Memory) SaveRequest(_ context.Context, r leave.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[r.ID] = r
	return nil
}

func (m *Memory) GetRequest(_ context.Context, id string) (*leave.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, leave.ErrNotFound
	}
	return &r, nil
}

func (m *Memory) RequestsByUser(_ context.Context, userID string) ([]leave.Request, error) {
	return m.filterRequests(func(r *leave.Request) bool { return r.UserID == userID })
}

func (m *Memory) RequestsByManager(ctx context.Context, managerID string) ([]leave.Request, error) {
	m.mu.RLock()
	managed := make(map[string]bool)
	for _, u := range m.users {
		if u.ManagerID == managerID {
			managed[u.ID] = true
		}
	}
	m.mu.RUnlock()
	return m.filterRequests(func(r *leave.Request) bool { return managed[r.UserID] })
}

func (m *Memory) RequestsByStatus(_ context.Context, status leave.RequestStatus) ([]leave.Request, error) {
	return m.filterRequests(func(r *leave.Request) bool { return r.Status == status })
}

func (m *Memory) RequestsInRange(_ context.Context, userID string, from, to time.Time) ([]leave.Request, error) {
	return m.filterRequests(func(r *leave.Request) bool {
		return r.UserID == userID && !r.DateFrom.After(to) && !from.After(r.DateTo)
	})
}

func (m *Memory) RequestsApprovedInMonth(_ context.Context, year int, month time.Month) ([]leave.Request, error) {
	return m.filterRequests(func(r *leave.Request) bool {
		return r.Status == leave.StatusApprovedAdmin &&
			r.DateFrom.Year() == year && r.DateFrom.Month() == month
	})
}

func (m *Memory) filterRequests(keep func(*leave.Request) bool) ([]leave.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var requests []leave.Request
	for _, r := range m.requests {
		if keep(&r) {
			requests = append(requests, r)
		}
	}
	sort.Slice(requests, func(i, j int) bool {
		if requests[i].DateFrom.Equal(requests[j].DateFrom) {
			return requests[i].ID < requests[j].ID
		}
		return requests[i].DateFrom.Before(requests[j].DateFrom)
	})
	return requests, nil
}

func (m *Memory) ClaimNotification(_ context.Context, requestID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[requestID]
	if !ok {
		return false, leave.ErrNotFound
	}
	if r.Notified {
		return false, nil
	}
	r.Notified = true
	r.NotifyError = ""
	m.requests[requestID] = r
	return true, nil
}

func (m *Memory) ReleaseNotification(_ context.Context, requestID, notifyError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[requestID]
	if !ok {
		return leave.ErrNotFound
	}
	r.Notified = false
	r.NotifyError = notifyError
	m.requests[requestID] = r
	return nil
}

// =============================================================================
// HISTORY
// =============================================================================

func (m *Memory) AppendHistory(_ context.Context, h leave.RequestHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[h.RequestID] = append(m.history[h.RequestID], h)
	return nil
}

func (m *Memory) HistoryByRequest(_ context.Context, requestID string) ([]leave.RequestHistory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := make([]leave.RequestHistory, len(m.history[requestID]))
	copy(rows, m.history[requestID])
	return rows, nil
}

// =============================================================================
// REMINDERS
// =============================================================================

func (m *Memory) SaveReminder(_ context.Context, r leave.Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reminders = append(m.reminders, r)
	return nil
}

func (m *Memory) LastReminder(_ context.Context, kind leave.ReminderKind, requestID string) (*leave.Reminder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var last *leave.Reminder
	for i := range m.reminders {
		r := m.reminders[i]
		if r.Kind != kind || r.RequestID != requestID {
			continue
		}
		if last == nil || r.SentAt.After(last.SentAt) {
			last = &r
		}
	}
	return last, nil
}

func (m *Memory) HasMilestoneReminder(_ context.Context, userID, milestone string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.reminders {
		if r.Kind == leave.ReminderTrialPeriod && r.UserID == userID && r.Milestone == milestone {
			return true, nil
		}
	}
	return false, nil
}
