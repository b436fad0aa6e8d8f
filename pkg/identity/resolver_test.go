package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/iris/pkg/models"
)

// chainStore serves FindByID from a fixed map and counts lookups.
type chainStore struct {
	Store
	rows    map[int64]models.Contact
	lookups int
	err     error
}

func (c *chainStore) FindByID(_ context.Context, id int64) (*models.Contact, error) {
	c.lookups++
	if c.err != nil {
		return nil, c.err
	}
	row, ok := c.rows[id]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func primary(id int64) models.Contact {
	return models.Contact{ID: id, LinkPrecedence: models.LinkPrecedencePrimary}
}

func secondaryOf(id, parent int64) models.Contact {
	return models.Contact{ID: id, LinkedID: models.Int64Ptr(parent), LinkPrecedence: models.LinkPrecedenceSecondary}
}

func nopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestResolver_Resolve(t *testing.T) {
	store := &chainStore{rows: map[int64]models.Contact{
		1: primary(1),
		2: secondaryOf(2, 1),
		5: primary(5),
	}}
	r := NewResolver(store, nopLogger(), 0)

	got, err := r.Resolve(context.Background(), []models.Contact{
		secondaryOf(2, 1),
		secondaryOf(3, 1),
		primary(5),
		primary(5),
		secondaryOf(7, 404),
	})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Contains(t, got, int64(1))
	assert.Contains(t, got, int64(5))
	// 3 reuses the root already found for 2; 7 dangles
	assert.Equal(t, 2, store.lookups)
}

func TestResolver_RootWalksMultiHopChains(t *testing.T) {
	store := &chainStore{rows: map[int64]models.Contact{
		1: primary(1),
		2: secondaryOf(2, 1),
		3: secondaryOf(3, 2),
	}}
	r := NewResolver(store, nopLogger(), 0)

	root, err := r.Root(context.Background(), secondaryOf(4, 3))
	require.NoError(t, err)
	require.NotNil(t, root)
	assert.Equal(t, int64(1), root.ID)
}

func TestResolver_RootStopsOnCyclesDepthAndMissingLinks(t *testing.T) {
	rows := map[int64]models.Contact{
		10: secondaryOf(10, 11),
		11: secondaryOf(11, 10),
	}
	for i := int64(100); i < 110; i++ {
		rows[i] = secondaryOf(i, i+1)
	}
	rows[110] = primary(110)

	tests := []struct {
		name     string
		start    models.Contact
		maxDepth int
	}{
		{name: "cycle", start: secondaryOf(10, 11), maxDepth: 16},
		{name: "self link", start: secondaryOf(12, 12), maxDepth: 16},
		{name: "missing target", start: secondaryOf(20, 21), maxDepth: 16},
		{name: "secondary without link", start: models.Contact{ID: 30, LinkPrecedence: models.LinkPrecedenceSecondary}, maxDepth: 16},
		{name: "too deep", start: secondaryOf(99, 100), maxDepth: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(&chainStore{rows: rows}, nopLogger(), tt.maxDepth)
			root, err := r.Root(context.Background(), tt.start)
			require.NoError(t, err)
			assert.Nil(t, root)
		})
	}

	r := NewResolver(&chainStore{rows: rows}, nopLogger(), 16)
	root, err := r.Root(context.Background(), secondaryOf(99, 100))
	require.NoError(t, err)
	require.NotNil(t, root)
	assert.Equal(t, int64(110), root.ID)
}

func TestResolver_PropagatesStoreErrors(t *testing.T) {
	boom := errors.New("boom")
	r := NewResolver(&chainStore{err: boom}, nopLogger(), 0)

	_, err := r.Resolve(context.Background(), []models.Contact{secondaryOf(2, 1)})
	assert.ErrorIs(t, err, boom)
}
