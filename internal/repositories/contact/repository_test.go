package contact_test

import (
	"context"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/iris/internal/repositories/contact"
	"github.com/Ramsey-B/iris/internal/testinfra"
	"github.com/Ramsey-B/iris/pkg/database"
	"github.com/Ramsey-B/iris/pkg/identity"
	"github.com/Ramsey-B/iris/pkg/locking"
	"github.com/Ramsey-B/iris/pkg/models"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func migrationsDir(t *testing.T) string {
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "db", "pg")
}

func getTestDB(t *testing.T) *database.DatabaseInstance {
	ctx := context.Background()
	pg := testinfra.StartPostgres(ctx, t)
	logger := getTestLogger()

	db, err := database.Connect(ctx, database.ConnectionConfig{
		Host:     pg.Host,
		Port:     pg.Port,
		User:     pg.User,
		Password: pg.Password,
		Name:     pg.Database,
		SSLMode:  "disable",
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	migrations := database.NewMigrationService(logger, database.MigrationConfig{MigrationFolderPath: migrationsDir(t)})
	require.NoError(t, migrations.MigratePostgres(db, pg.Database))
	return db
}

func str(s string) *string { return &s }

func TestRepositoryIntegration(t *testing.T) {
	db := getTestDB(t)
	logger := getTestLogger()
	repo := contact.NewRepository(db, logger)
	ctx := context.Background()

	t.Run("create and find", func(t *testing.T) {
		created, err := repo.Create(ctx, models.CreateContactRequest{Email: str("doc@hillvalley.edu"), PhoneNumber: str("1955")})
		require.NoError(t, err)
		assert.True(t, created.IsPrimary())
		assert.False(t, created.CreatedAt.IsZero())

		found, err := repo.FindByID(ctx, created.ID)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, created.ID, found.ID)

		missing, err := repo.FindByID(ctx, created.ID+10_000)
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("duplicate pair returns the existing row", func(t *testing.T) {
		first, err := repo.Create(ctx, models.CreateContactRequest{Email: str("marty@hillvalley.edu")})
		require.NoError(t, err)
		second, err := repo.Create(ctx, models.CreateContactRequest{Email: str("marty@hillvalley.edu")})
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)

		other, err := repo.Create(ctx, models.CreateContactRequest{Email: str("marty@hillvalley.edu"), PhoneNumber: str("1985")})
		require.NoError(t, err)
		assert.NotEqual(t, first.ID, other.ID)
	})

	t.Run("email or phone union", func(t *testing.T) {
		a, err := repo.Create(ctx, models.CreateContactRequest{Email: str("union@x.com"), PhoneNumber: str("7001")})
		require.NoError(t, err)
		b, err := repo.Create(ctx, models.CreateContactRequest{Email: str("union2@x.com"), PhoneNumber: str("7001")})
		require.NoError(t, err)

		got, err := repo.FindByEmailOrPhone(ctx, str("union@x.com"), str("7001"))
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, a.ID, got[0].ID)
		assert.Equal(t, b.ID, got[1].ID)

		none, err := repo.FindByEmailOrPhone(ctx, nil, nil)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("cluster update and relink", func(t *testing.T) {
		p, err := repo.Create(ctx, models.CreateContactRequest{Email: str("p@c.com")})
		require.NoError(t, err)
		loser, err := repo.Create(ctx, models.CreateContactRequest{PhoneNumber: str("8001")})
		require.NoError(t, err)
		child, err := repo.Create(ctx, models.CreateContactRequest{Email: str("c@c.com"), PhoneNumber: str("8001"), LinkedID: &loser.ID, LinkPrecedence: models.LinkPrecedenceSecondary})
		require.NoError(t, err)

		link := models.UpdateContactRequest{LinkedID: &p.ID, LinkPrecedence: models.LinkPrecedenceSecondary}
		updated, err := repo.Update(ctx, loser.ID, link)
		require.NoError(t, err)
		assert.Equal(t, p.ID, *updated.LinkedID)
		require.NoError(t, repo.UpdateMany(ctx, []int64{child.ID}, link))
		require.NoError(t, repo.UpdateMany(ctx, nil, link))

		cluster, err := repo.FindClusterByPrimaryID(ctx, p.ID)
		require.NoError(t, err)
		ids := []int64{}
		for _, c := range cluster {
			ids = append(ids, c.ID)
		}
		assert.Equal(t, []int64{p.ID, loser.ID, child.ID}, ids)

		_, err = repo.Update(ctx, 99_999, link)
		require.Error(t, err)
		assert.Equal(t, 404, httperror.GetStatusCode(err))
	})

	t.Run("transaction rollback discards writes", func(t *testing.T) {
		var id int64
		err := repo.WithinTx(ctx, func(ctx context.Context) error {
			c, err := repo.Create(ctx, models.CreateContactRequest{Email: str("rollback@x.com")})
			require.NoError(t, err)
			id = c.ID
			return assert.AnError
		})
		require.ErrorIs(t, err, assert.AnError)

		found, err := repo.FindByID(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, found)
	})
}

func TestEngineAgainstPostgres(t *testing.T) {
	db := getTestDB(t)
	logger := getTestLogger()
	repo := contact.NewRepository(db, logger)
	engine := identity.NewEngine(repo, logger, identity.WithLocker(locking.NewAdvisoryLocker(db, logger)))
	ctx := context.Background()

	t.Run("merge of two clusters", func(t *testing.T) {
		george, err := engine.Identify(ctx, str("george@hillvalley.edu"), str("919191"))
		require.NoError(t, err)
		biff, err := engine.Identify(ctx, str("biffsucks@hillvalley.edu"), str("717171"))
		require.NoError(t, err)

		got, err := engine.Identify(ctx, str("george@hillvalley.edu"), str("717171"))
		require.NoError(t, err)
		assert.Equal(t, george.PrimaryContactID, got.PrimaryContactID)
		assert.Equal(t, []string{"george@hillvalley.edu", "biffsucks@hillvalley.edu"}, got.Emails)
		assert.Equal(t, []string{"919191", "717171"}, got.PhoneNumbers)
		assert.Equal(t, []int64{biff.PrimaryContactID}, got.SecondaryContactIDs)
	})

	t.Run("concurrent identical observations", func(t *testing.T) {
		const callers = 8
		results := make([]*models.ConsolidatedContact, callers)
		g, gctx := errgroup.WithContext(ctx)
		for i := 0; i < callers; i++ {
			g.Go(func() error {
				var err error
				results[i], err = engine.Identify(gctx, str("race@x.com"), str("4242"))
				return err
			})
		}
		require.NoError(t, g.Wait())

		for i := range results {
			assert.Equal(t, results[0].PrimaryContactID, results[i].PrimaryContactID)
		}

		rows, err := repo.FindByEmailOrPhone(ctx, str("race@x.com"), nil)
		require.NoError(t, err)
		assert.Len(t, rows, 1)
	})

	t.Run("concurrent new facts on one cluster", func(t *testing.T) {
		base, err := engine.Identify(ctx, str("shared@x.com"), nil)
		require.NoError(t, err)

		var wg sync.WaitGroup
		for _, phone := range []string{"1", "2", "3", "4", "5"} {
			wg.Add(1)
			go func(phone string) {
				defer wg.Done()
				_, err := engine.Identify(ctx, str("shared@x.com"), &phone)
				assert.NoError(t, err)
			}(phone)
		}
		wg.Wait()

		view, err := engine.Cluster(ctx, base.PrimaryContactID)
		require.NoError(t, err)
		assert.Len(t, view.SecondaryContactIDs, 5)
		assert.ElementsMatch(t, []string{"1", "2", "3", "4", "5"}, view.PhoneNumbers)
	})
}
