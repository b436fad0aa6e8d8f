package locking

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/iris/pkg/database"
)

func str(s string) *string { return &s }

func TestObservationKeys(t *testing.T) {
	assert.Equal(t, []string{"email:a@b.c", "phone:123"}, ObservationKeys(str("a@b.c"), str("123")))
	assert.Equal(t, []string{"phone:123"}, ObservationKeys(nil, str("123")))
	assert.Empty(t, ObservationKeys(nil, nil))
}

func TestClusterKeys(t *testing.T) {
	assert.Equal(t, []string{"cluster:9", "cluster:10"}, ClusterKeys([]int64{9, 10}))
}

func TestNormalise(t *testing.T) {
	got := normalise([]string{"phone:1", "cluster:2", "", "email:x", "phone:1"})
	assert.Equal(t, []string{"cluster:2", "email:x", "phone:1"}, got)
}

func TestNoopLocker(t *testing.T) {
	release, err := NoopLocker{}.Lock(context.Background(), []string{"email:x"})
	assert.NoError(t, err)
	assert.NotNil(t, release)
	release()
}

func TestErrLockTimeoutIsTransient(t *testing.T) {
	assert.True(t, database.IsTransient(ErrLockTimeout))
	assert.True(t, IsTimeout(ErrLockTimeout))
}

func TestAdvisoryLockerRequiresTransaction(t *testing.T) {
	l := NewAdvisoryLocker(nil, nil)
	_, err := l.Lock(context.Background(), []string{"email:x"})
	assert.ErrorContains(t, err, "open transaction")

	release, err := l.Lock(context.Background(), nil)
	assert.NoError(t, err)
	release()
}
