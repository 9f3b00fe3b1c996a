// Package quota — кэшированный счётчик приёма сканов за текущие сутки.
//
// Cache хранит count и момент последнего пересчёта. Чтение без bypass
// возвращает закэшированное значение, пока оно моложе TTL; с bypass —
// всегда пересчитывает по хранилищу.
//
// Кэш не сериализует конкурентные вызовы: два запроса, увидевшие
// count < limit до вставки друг друга, оба пройдут. Превышение ограничено
// числом одновременных запросов внутри окна TTL.
package quota

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/shaiso/Playroom/internal/telemetry"
)

// Counter считает сканы, созданные начиная с since.
type Counter interface {
	CountSince(ctx context.Context, since time.Time) (int, error)
}

// Clock — источник текущего времени.
type Clock func() time.Time

// Config — конфигурация кэша.
type Config struct {
	Counter  Counter
	TTL      time.Duration
	Location *time.Location
	Clock    Clock
	Logger   *slog.Logger
}

// Cache — кэш дневного счётчика.
type Cache struct {
	counter Counter
	ttl     time.Duration
	loc     *time.Location
	now     Clock
	logger  *slog.Logger

	count     atomic.Int64
	refreshed atomic.Int64 // unix nano последнего пересчёта, 0 — ни разу
}

// New создаёт Cache с count=0.
func New(cfg Config) *Cache {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Cache{
		counter: cfg.Counter,
		ttl:     cfg.TTL,
		loc:     cfg.Location,
		now:     cfg.Clock,
		logger:  cfg.Logger,
	}
}

// CountToday возвращает количество сканов за текущие календарные сутки.
func (c *Cache) CountToday(ctx context.Context, bypass bool) (int, error) {
	now := c.now()

	if !bypass {
		if ts := c.refreshed.Load(); ts != 0 && now.Sub(time.Unix(0, ts)) < c.ttl {
			telemetry.QuotaCountReads.WithLabelValues("cache").Inc()
			return int(c.count.Load()), nil
		}
	}

	count, err := c.counter.CountSince(ctx, StartOfDay(now, c.loc))
	if err != nil {
		return 0, fmt.Errorf("count today: %w", err)
	}
	telemetry.QuotaCountReads.WithLabelValues("store").Inc()

	c.count.Store(int64(count))
	c.refreshed.Store(now.UnixNano())

	c.logger.Debug("quota recounted", "count", count, "bypass", bypass)
	return count, nil
}

// StartOfDay возвращает начало суток для t в часовом поясе loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
