package lock

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Locker runs fn while holding an exclusive section for key. The section is
// released on every exit path of fn, including panics.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// WithLocks takes every key in ascending order before running fn, so two
// callers touching the same keys in a different order cannot deadlock.
func WithLocks(ctx context.Context, l Locker, keys []string, fn func(ctx context.Context) error) error {
	ordered := normalize(keys)
	var acquire func(ctx context.Context, i int) error
	acquire = func(ctx context.Context, i int) error {
		if i == len(ordered) {
			return fn(ctx)
		}
		return l.WithLock(ctx, ordered[i], func(ctx context.Context) error {
			return acquire(ctx, i+1)
		})
	}
	return acquire(ctx, 0)
}

func normalize(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func SlotKey(spaID, date, slot string) string {
	return fmt.Sprintf("slot:%s:%s:%s", spaID, date, strings.ToLower(strings.TrimSpace(slot)))
}

func BookingKey(bookingID string) string {
	return "booking:" + bookingID
}

func AccountKey(accountID string) string {
	return "account:" + accountID
}
