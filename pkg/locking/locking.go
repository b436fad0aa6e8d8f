// Package locking serialises identify calls that touch the same touchpoints or clusters.
package locking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/Ramsey-B/iris/pkg/database"
)

const (
	StrategyAdvisory = "advisory"
	StrategyRedis    = "redis"
	StrategyNone     = "none"
)

// ErrLockTimeout is transient so the caller retries the whole unit of work.
var ErrLockTimeout = fmt.Errorf("%w: timed out waiting for lock", database.ErrTransient)

// Locker acquires exclusive locks on keys for the rest of the current transaction.
// The release func must be called after the transaction ends; it is never nil.
type Locker interface {
	Lock(ctx context.Context, keys []string) (release func(), err error)
}

// ObservationKeys returns the lock keys for an observation's touchpoints.
func ObservationKeys(email, phone *string) []string {
	var keys []string
	if email != nil {
		keys = append(keys, "email:"+*email)
	}
	if phone != nil {
		keys = append(keys, "phone:"+*phone)
	}
	return keys
}

// ClusterKeys returns one lock key per primary id.
func ClusterKeys(primaryIDs []int64) []string {
	keys := make([]string, 0, len(primaryIDs))
	for _, id := range primaryIDs {
		keys = append(keys, "cluster:"+strconv.FormatInt(id, 10))
	}
	return keys
}

// normalise sorts and dedups keys so every caller acquires in the same order.
func normalise(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func noop() {}

// NoopLocker takes no locks. Only unique-pair creation protects concurrent identifies.
type NoopLocker struct{}

func (NoopLocker) Lock(context.Context, []string) (func(), error) {
	return noop, nil
}

// IsTimeout reports whether err came from a lock wait running out.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}
