package agent

import (
	"sync"
	"time"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// Default ring capacities.
const (
	DefaultHistoryLimit     = 100
	DefaultObservationLimit = 20
)

// Summary counts actions. Total and Successful cover the retained history
// window only; the Lifetime counters include evicted entries.
type Summary struct {
	Total              int `json:"total"`
	Successful         int `json:"successful"`
	LifetimeTotal      int `json:"lifetime_total"`
	LifetimeSuccessful int `json:"lifetime_successful"`
}

// Memory holds the task, the action history and the page observations of
// one run. One writer and any number of readers may use it concurrently.
type Memory struct {
	mu           sync.RWMutex
	task         string
	history      *Ring[schemas.HistoryEntry]
	observations *Ring[schemas.ObservationEntry]

	lifetimeTotal      int
	lifetimeSuccessful int

	now func() time.Time
}

func NewMemory(historyLimit, observationLimit int) *Memory {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	if observationLimit <= 0 {
		observationLimit = DefaultObservationLimit
	}
	return &Memory{
		history:      NewRing[schemas.HistoryEntry](historyLimit),
		observations: NewRing[schemas.ObservationEntry](observationLimit),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Reset clears everything and sets the task for a new run.
func (m *Memory) Reset(task string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.task = task
	m.history.Reset()
	m.observations.Reset()
	m.lifetimeTotal, m.lifetimeSuccessful = 0, 0
}

func (m *Memory) Task() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.task
}

// AddAction records a dispatched action and returns the stored entry.
func (m *Memory) AddAction(action schemas.Action, result schemas.ActionResult) schemas.HistoryEntry {
	entry := schemas.HistoryEntry{
		Timestamp: m.now(),
		Action:    action,
		Result:    result,
		Success:   result.Success,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.history.Push(entry)
	m.lifetimeTotal++
	if entry.Success {
		m.lifetimeSuccessful++
	}
	return entry
}

func (m *Memory) AddObservation(state schemas.PageState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observations.Push(schemas.ObservationEntry{Timestamp: m.now(), PageState: state})
}

// RecentHistory returns up to n of the newest entries, oldest first.
func (m *Memory) RecentHistory(n int) []schemas.HistoryEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.history.Last(n)
}

func (m *Memory) History() []schemas.HistoryEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.history.Items()
}

func (m *Memory) Observations() []schemas.ObservationEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.observations.Items()
}

// LatestObservation returns the most recent page snapshot.
func (m *Memory) LatestObservation() (schemas.ObservationEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.observations.Newest()
}

func (m *Memory) Summary() Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Summary{
		LifetimeTotal:      m.lifetimeTotal,
		LifetimeSuccessful: m.lifetimeSuccessful,
	}
	for _, e := range m.history.Items() {
		s.Total++
		if e.Success {
			s.Successful++
		}
	}
	return s
}

// LastSuccessfulAction returns the newest retained entry that succeeded.
func (m *Memory) LastSuccessfulAction() (schemas.HistoryEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := m.history.Items()
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].Success {
			return items[i], true
		}
	}
	return schemas.HistoryEntry{}, false
}
