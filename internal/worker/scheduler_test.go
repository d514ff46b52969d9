package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
	"fintrack/internal/services"
)

type fakeProcessor struct {
	mu    sync.Mutex
	dates []core.Date
	err   error
}

func (f *fakeProcessor) ProcessAll(_ context.Context, today core.Date) (services.TickReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dates = append(f.dates, today)
	return services.TickReport{Date: today, Checked: 1}, f.err
}

func (f *fakeProcessor) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.dates)
}

func TestSchedulerTickUsesConfiguredTimezone(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	p := &fakeProcessor{}
	s := NewRecurringScheduler(p, time.Hour, tokyo)
	s.now = func() time.Time { return time.Date(2024, 1, 15, 23, 30, 0, 0, time.UTC) }

	report := s.Tick(context.Background(), "test")

	assert.Equal(t, "2024-01-16", report.Date.String())
	require.Len(t, p.dates, 1)
	assert.Equal(t, "2024-01-16", p.dates[0].String())
}

func TestSchedulerTickSurvivesErrors(t *testing.T) {
	p := &fakeProcessor{err: errors.New("storage down")}
	s := NewRecurringScheduler(p, time.Hour, nil)

	report := s.Tick(context.Background(), "test")
	assert.Equal(t, 1, report.Checked)
}

func TestSchedulerRunsOnStartupAndNotify(t *testing.T) {
	p := &fakeProcessor{}
	s := NewRecurringScheduler(p, time.Hour, time.UTC)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return p.calls() == 1 }, time.Second, 5*time.Millisecond)

	s.Notify()
	assert.Eventually(t, func() bool { return p.calls() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestSchedulerRunsOnInterval(t *testing.T) {
	p := &fakeProcessor{}
	s := NewRecurringScheduler(p, 10*time.Millisecond, time.UTC)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	assert.Eventually(t, func() bool { return p.calls() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestNotifyNeverBlocks(t *testing.T) {
	s := NewRecurringScheduler(&fakeProcessor{}, time.Hour, time.UTC)
	for i := 0; i < 10; i++ {
		s.Notify()
	}
	assert.Len(t, s.trigger, 1)
}
