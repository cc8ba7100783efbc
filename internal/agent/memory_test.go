package agent

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"pgregory.net/rapid"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

func fixedClock(m *Memory) time.Time {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return ts }
	return ts
}

func TestMemory(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		m := NewMemory(0, -1)
		assert.Equal(t, DefaultHistoryLimit, m.history.Cap())
		assert.Equal(t, DefaultObservationLimit, m.observations.Cap())
	})

	t.Run("records actions", func(t *testing.T) {
		m := NewMemory(10, 10)
		ts := fixedClock(m)
		m.Reset("find the docs")

		entry := m.AddAction(schemas.NavigateTo("https://example.com"), schemas.Succeeded("Navigated to https://example.com"))
		assert.Equal(t, ts, entry.Timestamp)
		assert.True(t, entry.Success)

		m.AddAction(schemas.ClickOn("#missing"), schemas.Failed(schemas.ErrCodeElementNotFound, "element not found"))

		assert.Equal(t, "find the docs", m.Task())
		history := m.History()
		require.Len(t, history, 2)
		assert.Equal(t, schemas.ActionNavigate, history[0].Action.Kind)
		assert.False(t, history[1].Success)
		assert.Equal(t, Summary{Total: 2, Successful: 1, LifetimeTotal: 2, LifetimeSuccessful: 1}, m.Summary())

		last, ok := m.LastSuccessfulAction()
		require.True(t, ok)
		assert.Equal(t, schemas.ActionNavigate, last.Action.Kind)
	})

	t.Run("recent history is oldest first", func(t *testing.T) {
		m := NewMemory(10, 10)
		for i := 1; i <= 7; i++ {
			m.AddAction(schemas.WaitFor(float64(i)), schemas.Succeeded("ok"))
		}
		recent := m.RecentHistory(5)
		require.Len(t, recent, 5)
		assert.Equal(t, 3.0, *recent[0].Action.Details.Seconds)
		assert.Equal(t, 7.0, *recent[4].Action.Details.Seconds)
	})

	t.Run("summary after eviction", func(t *testing.T) {
		m := NewMemory(2, 1)
		m.AddAction(schemas.WaitFor(1), schemas.Succeeded("ok"))
		m.AddAction(schemas.WaitFor(1), schemas.Succeeded("ok"))
		m.AddAction(schemas.PressKey("Enter"), schemas.Failed(schemas.ErrCodeExecutionFailure, "boom"))

		// Test Case: window counts cover retained entries only.
		assert.Equal(t, Summary{Total: 2, Successful: 1, LifetimeTotal: 3, LifetimeSuccessful: 2}, m.Summary())
	})

	t.Run("no successful action", func(t *testing.T) {
		m := NewMemory(2, 1)
		m.AddAction(schemas.PressKey("Enter"), schemas.Failed(schemas.ErrCodeExecutionFailure, "boom"))
		_, ok := m.LastSuccessfulAction()
		assert.False(t, ok)
	})

	t.Run("observations are bounded", func(t *testing.T) {
		m := NewMemory(5, 2)
		m.AddObservation(schemas.PageState{URL: "a"})
		m.AddObservation(schemas.PageState{URL: "b"})
		m.AddObservation(schemas.PageState{URL: "c"})

		obs := m.Observations()
		require.Len(t, obs, 2)
		assert.Equal(t, "b", obs[0].PageState.URL)

		latest, ok := m.LatestObservation()
		require.True(t, ok)
		assert.Equal(t, "c", latest.PageState.URL)
	})

	t.Run("reset clears everything", func(t *testing.T) {
		m := NewMemory(5, 5)
		m.Reset("first")
		m.AddAction(schemas.WaitFor(1), schemas.Succeeded("ok"))
		m.AddObservation(schemas.PageState{URL: "a"})

		m.Reset("second")
		assert.Equal(t, "second", m.Task())
		assert.Empty(t, m.History())
		assert.Empty(t, m.Observations())
		assert.Equal(t, Summary{}, m.Summary())
	})
}

func TestMemoryConcurrentReaders(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := NewMemory(50, 10)
	var wg sync.WaitGroup
	done := make(chan struct{})

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					s := m.Summary()
					assert.LessOrEqual(t, s.Total, 50)
					_ = m.RecentHistory(5)
					_, _ = m.LastSuccessfulAction()
				}
			}
		}()
	}

	for i := 0; i < 500; i++ {
		m.AddAction(schemas.WaitFor(0), schemas.Succeeded("ok"))
		m.AddObservation(schemas.PageState{URL: "https://example.com"})
	}
	close(done)
	wg.Wait()

	assert.Equal(t, 500, m.Summary().LifetimeTotal)
}

func TestMemorySummaryProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		limit := rapid.IntRange(1, 20).Draw(t, "limit")
		outcomes := rapid.SliceOfN(rapid.Bool(), 0, 60).Draw(t, "outcomes")

		m := NewMemory(limit, 1)
		lifetimeOK := 0
		for _, ok := range outcomes {
			res := schemas.Succeeded("ok")
			if !ok {
				res = schemas.Failed(schemas.ErrCodeExecutionFailure, "boom")
			} else {
				lifetimeOK++
			}
			m.AddAction(schemas.WaitFor(0), res)
		}

		start := len(outcomes) - limit
		if start < 0 {
			start = 0
		}
		windowOK := 0
		for _, ok := range outcomes[start:] {
			if ok {
				windowOK++
			}
		}

		s := m.Summary()
		assert.Equal(t, len(outcomes)-start, s.Total)
		assert.Equal(t, windowOK, s.Successful)
		assert.Equal(t, len(outcomes), s.LifetimeTotal)
		assert.Equal(t, lifetimeOK, s.LifetimeSuccessful)
	})
}
