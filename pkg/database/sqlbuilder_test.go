package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertBuilder_OnConflictDoNothingReturning(t *testing.T) {
	ib := NewInsertBuilder()
	ib.InsertInto("contacts").Cols("email", "phone_number").Values("a@b.c", "123")
	ib.OnConflictDoNothing()
	ib = ib.Returning("id", "email")

	sql, args := ib.Build()
	assert.Equal(t, "INSERT INTO contacts (email, phone_number) VALUES ($1, $2) ON CONFLICT DO NOTHING RETURNING id, email", sql)
	assert.Equal(t, []any{"a@b.c", "123"}, args)
}

func TestSelectBuilder_NotDeleted(t *testing.T) {
	sb := NewSelectBuilder()
	sb.Select("id").From("contacts")
	sb.Where(sb.Equal("id", int64(4)))
	sb.NotDeleted()

	sql, args := sb.Build()
	assert.Equal(t, "SELECT id FROM contacts WHERE id = $1 AND deleted_at IS NULL", sql)
	assert.Equal(t, []any{int64(4)}, args)
}

func TestInt64s(t *testing.T) {
	assert.Equal(t, []any{int64(1), int64(2)}, Int64s([]int64{1, 2}))
	assert.Empty(t, Int64s(nil))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{name: "deadlock", err: &pq.Error{Code: "40P01"}, transient: true},
		{name: "serialization", err: &pq.Error{Code: "40001"}, transient: true},
		{name: "wrapped deadlock", err: errors.Wrap(&pq.Error{Code: "40P01"}, "exec"), transient: true},
		{name: "unique violation", err: &pq.Error{Code: "23505"}},
		{name: "plain", err: errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.transient, IsTransient(Classify(tt.err)))
		})
	}

	assert.NoError(t, Classify(nil))
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
}

func TestLatestVersion(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"000001_init.up.sql", "000001_init.down.sql", "000003_more.up.sql", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("--"), 0o600))
	}

	latest, err := latestVersion(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, latest)

	_, err = latestVersion(t.TempDir())
	assert.Error(t, err)
}
