package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/iris/pkg/identity"
	"github.com/Ramsey-B/iris/pkg/models"
	"github.com/Ramsey-B/iris/pkg/tracing"
)

// upsertClusterCypher writes every member as a (:Contact) node and points each secondary at its
// primary with exactly one [:LINKED_TO] edge, dropping edges left over from before a merge.
const upsertClusterCypher = `
	UNWIND $contacts AS row
	MERGE (c:Contact {id: row.id})
	SET c.email = row.email,
		c.phone_number = row.phone_number,
		c.link_precedence = row.link_precedence,
		c.created_at = row.created_at
	WITH c, row
	OPTIONAL MATCH (c)-[old:LINKED_TO]->(other:Contact)
	WHERE row.linked_id IS NULL OR other.id <> row.linked_id
	DELETE old
	WITH DISTINCT c, row
	WHERE row.linked_id IS NOT NULL
	MERGE (p:Contact {id: row.linked_id})
	MERGE (c)-[:LINKED_TO]->(p)
`

const clusterMembersCypher = `
	MATCH (c:Contact)-[:LINKED_TO]->(p:Contact {id: $primary_id})
	RETURN c.id AS id
	ORDER BY id
`

// ClusterService mirrors committed clusters into the graph
type ClusterService struct {
	client *Client
	logger ectologger.Logger
}

func NewClusterService(client *Client, logger ectologger.Logger) *ClusterService {
	return &ClusterService{
		client: client,
		logger: logger,
	}
}

// ErrClusterDrift reports a graph cluster whose edges disagree with the contact store.
var ErrClusterDrift = errors.New("graph cluster drifted from the contact store")

// OnIdentify implements identity.Observer. Unchanged clusters are not rewritten; written ones
// are read back and checked.
func (s *ClusterService) OnIdentify(ctx context.Context, outcome identity.Outcome) error {
	if outcome.Created == nil && (outcome.Merge == nil || len(outcome.Merge.Demoted) == 0) {
		return nil
	}
	if err := s.Upsert(ctx, outcome.Cluster); err != nil {
		return err
	}
	return s.Verify(ctx, outcome.Contact.PrimaryContactID, outcome.Cluster)
}

// Verify compares the graph members of primaryID with the secondaries of cluster.
func (s *ClusterService) Verify(ctx context.Context, primaryID int64, cluster []models.Contact) error {
	members, err := s.Members(ctx, primaryID)
	if err != nil {
		return err
	}

	missing, extra := diffMembers(secondaryIDs(primaryID, cluster), members)
	if len(missing) == 0 && len(extra) == 0 {
		return nil
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"primary_id": primaryID,
		"missing":    missing,
		"extra":      extra,
	}).Warn("Graph cluster drifted from the contact store")
	return fmt.Errorf("%w: primary %d", ErrClusterDrift, primaryID)
}

// Upsert writes the cluster's nodes and edges in one transaction
func (s *ClusterService) Upsert(ctx context.Context, cluster []models.Contact) error {
	ctx, span := tracing.StartSpan(ctx, "graph.ClusterService.Upsert")
	defer span.End()

	if len(cluster) == 0 {
		return nil
	}

	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, upsertClusterCypher, map[string]any{
			"contacts": rows(cluster),
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		tracing.RecordError(span, err)
		s.logger.WithContext(ctx).WithError(err).WithField("cluster_size", len(cluster)).Error("Failed to upsert cluster in graph")
		return fmt.Errorf("failed to upsert cluster in graph: %w", err)
	}

	s.logger.WithContext(ctx).WithField("cluster_size", len(cluster)).Debug("Upserted cluster in graph")
	return nil
}

// Members returns the ids of the contacts linked to primaryID
func (s *ClusterService) Members(ctx context.Context, primaryID int64) ([]int64, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.ClusterService.Members")
	defer span.End()

	result, err := s.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, clusterMembersCypher, map[string]any{"primary_id": primaryID})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		ids := make([]int64, 0, len(records))
		for _, record := range records {
			id, _, err := neo4j.GetRecordValue[int64](record, "id")
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
		return ids, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read cluster members: %w", err)
	}
	return result.([]int64), nil
}

func secondaryIDs(primaryID int64, cluster []models.Contact) []int64 {
	linked := ectolinq.Filter(cluster, func(c models.Contact) bool {
		return c.LinkedID != nil && *c.LinkedID == primaryID
	})
	return ectolinq.Map(linked, func(c models.Contact) int64 { return c.ID })
}

// diffMembers returns the ids in want but not in got, and the ids in got but not in want.
func diffMembers(want, got []int64) (missing, extra []int64) {
	return ectolinq.Except(want, got), ectolinq.Except(got, want)
}

func rows(cluster []models.Contact) []map[string]any {
	return ectolinq.Map(cluster, func(c models.Contact) map[string]any {
		row := map[string]any{
			"id":              c.ID,
			"email":           nil,
			"phone_number":    nil,
			"link_precedence": string(c.LinkPrecedence),
			"created_at":      c.CreatedAt.UTC().Format(time.RFC3339Nano),
			"linked_id":       nil,
		}
		if c.Email != nil {
			row["email"] = *c.Email
		}
		if c.PhoneNumber != nil {
			row["phone_number"] = *c.PhoneNumber
		}
		if c.LinkedID != nil {
			row["linked_id"] = *c.LinkedID
		}
		return row
	})
}
