package contact

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/iris/pkg/models"
)

func sp(s string) *string { return &s }

func TestMemoryRepository_CreateIsIdempotentOnPair(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	a, err := repo.Create(ctx, models.CreateContactRequest{Email: sp("a@x.com")})
	require.NoError(t, err)
	b, err := repo.Create(ctx, models.CreateContactRequest{Email: sp("a@x.com")})
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)

	c, err := repo.Create(ctx, models.CreateContactRequest{Email: sp("a@x.com"), PhoneNumber: sp("1")})
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, c.ID)

	_, err = repo.Create(ctx, models.CreateContactRequest{})
	require.Error(t, err)
	assert.Equal(t, 500, httperror.GetStatusCode(err))
}

func TestMemoryRepository_ReadsSkipDeleted(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.Seed(
		models.Contact{ID: 1, Email: sp("a@x.com"), LinkPrecedence: models.LinkPrecedencePrimary, CreatedAt: t0},
		models.Contact{ID: 2, Email: sp("a@x.com"), PhoneNumber: sp("2"), LinkedID: models.Int64Ptr(1), LinkPrecedence: models.LinkPrecedenceSecondary, CreatedAt: t0.Add(time.Second)},
	)
	require.NoError(t, repo.SoftDelete(ctx, 2))

	got, err := repo.FindByEmailOrPhone(ctx, sp("a@x.com"), sp("2"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].ID)

	cluster, err := repo.FindClusterByPrimaryID(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, cluster, 1)

	deleted, err := repo.FindByID(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, deleted)

	// the deleted pair no longer blocks creation
	again, err := repo.Create(ctx, models.CreateContactRequest{Email: sp("a@x.com"), PhoneNumber: sp("2")})
	require.NoError(t, err)
	assert.Equal(t, int64(3), again.ID)
}

func TestMemoryRepository_WithinTxRollsBack(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	boom := errors.New("boom")

	err := repo.WithinTx(ctx, func(ctx context.Context) error {
		_, err := repo.Create(ctx, models.CreateContactRequest{Email: sp("a@x.com")})
		require.NoError(t, err)
		// nested calls join the outer transaction
		return repo.WithinTx(ctx, func(context.Context) error { return boom })
	})
	require.ErrorIs(t, err, boom)
	assert.Empty(t, repo.All())

	created, err := repo.Create(ctx, models.CreateContactRequest{Email: sp("a@x.com")})
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.ID, "ids handed out inside a rolled back transaction are reused")
}

func TestMemoryRepository_UpdateMany(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	rows := repo.Seed(
		models.Contact{Email: sp("p@x.com"), LinkPrecedence: models.LinkPrecedencePrimary},
		models.Contact{Email: sp("q@x.com"), LinkPrecedence: models.LinkPrecedencePrimary},
		models.Contact{Email: sp("r@x.com"), LinkedID: models.Int64Ptr(2), LinkPrecedence: models.LinkPrecedenceSecondary},
	)

	link := models.UpdateContactRequest{LinkedID: &rows[0].ID, LinkPrecedence: models.LinkPrecedenceSecondary}
	require.NoError(t, repo.UpdateMany(ctx, nil, link))
	require.NoError(t, repo.UpdateMany(ctx, []int64{rows[1].ID, rows[2].ID, 404}, link))

	cluster, err := repo.FindClusterByPrimaryID(ctx, rows[0].ID)
	require.NoError(t, err)
	assert.Len(t, cluster, 3)

	_, err = repo.Update(ctx, 404, link)
	assert.Equal(t, 404, httperror.GetStatusCode(err))
}
