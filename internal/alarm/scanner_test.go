package alarm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wakekeeper/wakekeeper/internal/domain"
	"github.com/wakekeeper/wakekeeper/internal/notify"
)

func newTestScanner(store *memStore, clock *fakeClock) (*Scanner, *fakeSender) {
	sender := &fakeSender{channel: notify.ChannelAlarm}
	dispatcher := notify.NewDispatcher(sender)
	return NewScanner(store, dispatcher, clock, 10*time.Minute), sender
}

func TestScanner_Classification(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		fireAt        time.Time
		wantFired     int
		wantRemaining int
		wantStored    bool
	}{
		{"not yet due", now.Add(5 * time.Minute), 0, 1, true},
		{"just due", now, 1, 0, false},
		{"due within grace", now.Add(-9 * time.Minute), 1, 0, false},
		{"at grace boundary", now.Add(-10 * time.Minute), 1, 0, false},
		{"past grace", now.Add(-11 * time.Minute), 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			clock := newFakeClock(now)
			scanner, _ := newTestScanner(store, clock)

			require.NoError(t, store.PutAlarm(context.Background(), domain.Alarm{
				Tag:    "wake",
				Title:  "Wake up",
				FireAt: tt.fireAt,
			}))

			fired, remaining := scanner.Scan(context.Background())

			assert.Equal(t, tt.wantFired, fired)
			assert.Equal(t, tt.wantRemaining, remaining)
			_, ok := store.alarms["wake"]
			assert.Equal(t, tt.wantStored, ok)
		})
	}
}

func TestScanner_ExpiredDroppedSilently(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	store := newMemStore()
	clock := newFakeClock(now)
	scanner, sender := newTestScanner(store, clock)

	require.NoError(t, store.PutAlarm(context.Background(), domain.Alarm{
		Tag:    "stale",
		FireAt: now.Add(-time.Hour),
	}))

	fired, remaining := scanner.Scan(context.Background())

	assert.Equal(t, 0, fired)
	assert.Equal(t, 0, remaining)
	assert.Empty(t, sender.sent, "expired alarms must not notify")
	assert.Empty(t, store.alarms)
}

func TestScanner_Idempotent(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	store := newMemStore()
	clock := newFakeClock(now)
	scanner, sender := newTestScanner(store, clock)

	require.NoError(t, store.PutAlarm(context.Background(), domain.Alarm{
		Tag:    "once",
		FireAt: now.Add(-time.Minute),
	}))

	fired, _ := scanner.Scan(context.Background())
	assert.Equal(t, 1, fired)

	fired, _ = scanner.Scan(context.Background())
	assert.Equal(t, 0, fired)
	assert.Len(t, sender.sent, 1, "repeated scan must not re-fire")
}

func TestScanner_DeletesOnDisplayFailure(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	store := newMemStore()
	clock := newFakeClock(now)
	scanner, sender := newTestScanner(store, clock)
	sender.err = errStoreDown

	require.NoError(t, store.PutAlarm(context.Background(), domain.Alarm{
		Tag:    "broken",
		FireAt: now.Add(-time.Minute),
	}))

	fired, _ := scanner.Scan(context.Background())

	assert.Equal(t, 0, fired)
	assert.Empty(t, store.alarms, "alarm must be consumed even when display fails")
}

func TestScanner_DefaultActionsApplied(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	store := newMemStore()
	clock := newFakeClock(now)
	scanner, sender := newTestScanner(store, clock)

	require.NoError(t, store.PutAlarm(context.Background(), domain.Alarm{
		Tag:    "plain",
		Title:  "Plain",
		FireAt: now,
	}))

	scanner.Scan(context.Background())

	require.Len(t, sender.sent, 1)
	assert.Equal(t, domain.DefaultActions(), sender.sent[0].Actions)
}

func TestScanner_ListFailureTreatedAsEmpty(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	store := newMemStore()
	store.listErr = errStoreDown
	clock := newFakeClock(now)
	scanner, sender := newTestScanner(store, clock)

	fired, remaining := scanner.Scan(context.Background())

	assert.Equal(t, 0, fired)
	assert.Equal(t, 0, remaining)
	assert.Empty(t, sender.sent)
}

func TestScanner_MixedSet(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	store := newMemStore()
	clock := newFakeClock(now)
	scanner, sender := newTestScanner(store, clock)

	ctx := context.Background()
	require.NoError(t, store.PutAlarm(ctx, domain.Alarm{Tag: "due-1", FireAt: now.Add(-2 * time.Minute)}))
	require.NoError(t, store.PutAlarm(ctx, domain.Alarm{Tag: "due-2", FireAt: now.Add(-8 * time.Minute)}))
	require.NoError(t, store.PutAlarm(ctx, domain.Alarm{Tag: "stale", FireAt: now.Add(-30 * time.Minute)}))
	require.NoError(t, store.PutAlarm(ctx, domain.Alarm{Tag: "future", FireAt: now.Add(time.Hour)}))

	fired, remaining := scanner.Scan(ctx)

	assert.Equal(t, 2, fired)
	assert.Equal(t, 1, remaining)
	assert.Len(t, sender.sent, 2)
	assert.Contains(t, store.alarms, "future")
	assert.Len(t, store.alarms, 1)
}
