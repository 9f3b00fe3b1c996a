package quota

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeCounter — счётчик с подсчётом обращений.
type fakeCounter struct {
	count int
	err   error
	calls int
	since time.Time
}

func (f *fakeCounter) CountSince(_ context.Context, since time.Time) (int, error) {
	f.calls++
	f.since = since
	return f.count, f.err
}

// fakeClock — управляемые часы.
type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache(counter *fakeCounter, clock *fakeClock) *Cache {
	return New(Config{
		Counter: counter,
		TTL:     5 * time.Second,
		Clock:   clock.Now,
	})
}

func TestCountToday_CachedWithinTTL(t *testing.T) {
	counter := &fakeCounter{count: 3}
	clock := &fakeClock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	c := newTestCache(counter, clock)
	ctx := context.Background()

	got, err := c.CountToday(ctx, false)
	if err != nil {
		t.Fatalf("CountToday() error: %v", err)
	}
	if got != 3 {
		t.Errorf("CountToday() = %d, want 3", got)
	}

	// Счётчик изменился, но кэш ещё свежий
	counter.count = 4
	clock.Advance(4 * time.Second)
	got, _ = c.CountToday(ctx, false)
	if got != 3 {
		t.Errorf("CountToday() within TTL = %d, want cached 3", got)
	}
	if counter.calls != 1 {
		t.Errorf("counter calls = %d, want 1", counter.calls)
	}

	// TTL истёк — пересчёт
	clock.Advance(time.Second)
	got, _ = c.CountToday(ctx, false)
	if got != 4 {
		t.Errorf("CountToday() after TTL = %d, want 4", got)
	}
	if counter.calls != 2 {
		t.Errorf("counter calls = %d, want 2", counter.calls)
	}
}

func TestCountToday_Bypass(t *testing.T) {
	counter := &fakeCounter{count: 1}
	clock := &fakeClock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	c := newTestCache(counter, clock)
	ctx := context.Background()

	c.CountToday(ctx, false)
	counter.count = 2

	got, err := c.CountToday(ctx, true)
	if err != nil {
		t.Fatalf("CountToday(bypass) error: %v", err)
	}
	if got != 2 {
		t.Errorf("CountToday(bypass) = %d, want 2", got)
	}

	// bypass обновил кэш
	got, _ = c.CountToday(ctx, false)
	if got != 2 {
		t.Errorf("CountToday() after bypass = %d, want 2", got)
	}
	if counter.calls != 2 {
		t.Errorf("counter calls = %d, want 2", counter.calls)
	}
}

func TestCountToday_StartOfDay(t *testing.T) {
	counter := &fakeCounter{}
	clock := &fakeClock{t: time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC)}
	c := newTestCache(counter, clock)

	c.CountToday(context.Background(), true)

	want := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	if !counter.since.Equal(want) {
		t.Errorf("since = %v, want %v", counter.since, want)
	}
}

func TestCountToday_Error(t *testing.T) {
	counter := &fakeCounter{err: errors.New("db down")}
	clock := &fakeClock{t: time.Now()}
	c := newTestCache(counter, clock)

	if _, err := c.CountToday(context.Background(), false); err == nil {
		t.Fatal("expected error")
	}

	// Ошибка не должна заполнить кэш
	counter.err = nil
	counter.count = 7
	got, err := c.CountToday(context.Background(), false)
	if err != nil {
		t.Fatalf("CountToday() error: %v", err)
	}
	if got != 7 {
		t.Errorf("CountToday() = %d, want 7", got)
	}
}

func TestStartOfDay_Location(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	// 22:30 UTC — уже следующие сутки в UTC+3
	ts := time.Date(2026, 3, 10, 22, 30, 0, 0, time.UTC)

	got := StartOfDay(ts, loc)
	want := time.Date(2026, 3, 11, 0, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Errorf("StartOfDay() = %v, want %v", got, want)
	}
}
