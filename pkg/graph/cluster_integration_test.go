package graph

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/iris/internal/testinfra"
	"github.com/Ramsey-B/iris/pkg/identity"
	"github.com/Ramsey-B/iris/pkg/models"
)

func getTestService(t *testing.T) *ClusterService {
	ctx := context.Background()
	info := testinfra.StartNeo4j(ctx, t)
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

	client, err := NewClient(Config{Host: info.Host, Port: info.Port}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close(context.Background()) })
	require.Eventually(t, func() bool {
		return client.VerifyConnectivity(ctx) == nil
	}, 60*time.Second, time.Second)

	return NewClusterService(client, logger)
}

func TestClusterServiceIntegration(t *testing.T) {
	svc := getTestService(t)
	ctx := context.Background()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	primary := func(id int64, at time.Time) models.Contact {
		return models.Contact{ID: id, Email: models.StringPtr("p@x.com"), LinkPrecedence: models.LinkPrecedencePrimary, CreatedAt: at}
	}
	secondary := func(id, linked int64, at time.Time) models.Contact {
		return models.Contact{ID: id, PhoneNumber: models.StringPtr("555"), LinkedID: models.Int64Ptr(linked), LinkPrecedence: models.LinkPrecedenceSecondary, CreatedAt: at}
	}

	require.NoError(t, svc.Upsert(ctx, []models.Contact{primary(1, t0), secondary(2, 1, t0.Add(time.Minute))}))
	require.NoError(t, svc.Upsert(ctx, []models.Contact{primary(3, t0.Add(time.Hour)), secondary(4, 3, t0.Add(2*time.Hour))}))

	members, err := svc.Members(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, members)
	members, err = svc.Members(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{4}, members)

	t.Run("merge moves every member under the winner", func(t *testing.T) {
		merged := []models.Contact{
			primary(1, t0),
			secondary(2, 1, t0.Add(time.Minute)),
			secondary(3, 1, t0.Add(time.Hour)),
			secondary(4, 1, t0.Add(2*time.Hour)),
		}
		err := svc.OnIdentify(ctx, identity.Outcome{
			Merge:   &identity.MergeResult{WinnerID: 1, Demoted: []int64{3}},
			Cluster: merged,
			Contact: models.ConsolidatedContact{PrimaryContactID: 1},
		})
		require.NoError(t, err)

		members, err := svc.Members(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, []int64{2, 3, 4}, members)

		members, err = svc.Members(ctx, 3)
		require.NoError(t, err)
		assert.Empty(t, members, "edges to the demoted primary must be dropped")
	})

	t.Run("verify reports contacts the graph does not know", func(t *testing.T) {
		err := svc.Verify(ctx, 1, []models.Contact{
			primary(1, t0),
			secondary(2, 1, t0.Add(time.Minute)),
			secondary(3, 1, t0.Add(time.Hour)),
			secondary(4, 1, t0.Add(2*time.Hour)),
			secondary(5, 1, t0.Add(3*time.Hour)),
		})
		assert.ErrorIs(t, err, ErrClusterDrift)
	})
}
