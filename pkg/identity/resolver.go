package identity

import (
	"context"
	"sort"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/iris/pkg/models"
	"github.com/Ramsey-B/iris/pkg/tracing"
)

const DefaultMaxWalkDepth = 16

// Resolver maps matched contacts to the primaries of the clusters they belong to.
type Resolver struct {
	store    Store
	logger   ectologger.Logger
	maxDepth int
}

func NewResolver(store Store, logger ectologger.Logger, maxDepth int) *Resolver {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxWalkDepth
	}
	return &Resolver{store: store, logger: logger, maxDepth: maxDepth}
}

// Resolve returns the distinct primaries reachable from candidates, keyed by id. Candidates
// whose chain loops, dangles or exceeds the walk depth are skipped.
func (r *Resolver) Resolve(ctx context.Context, candidates []models.Contact) (map[int64]models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.Resolver.Resolve")
	defer span.End()

	primaries := make(map[int64]models.Contact)
	// secondaries already walked, mapped to the root they reached
	roots := make(map[int64]int64)
	seen := make(map[int64]bool, len(candidates))

	for _, candidate := range candidates {
		if seen[candidate.ID] {
			continue
		}
		seen[candidate.ID] = true

		if candidate.IsPrimary() {
			primaries[candidate.ID] = candidate
			continue
		}
		if candidate.LinkedID != nil {
			if rootID, ok := roots[*candidate.LinkedID]; ok {
				roots[candidate.ID] = rootID
				continue
			}
			if _, ok := primaries[*candidate.LinkedID]; ok {
				continue
			}
		}

		root, err := r.Root(ctx, candidate)
		if err != nil {
			tracing.RecordError(span, err)
			return nil, err
		}
		if root == nil {
			continue
		}
		roots[candidate.ID] = root.ID
		primaries[root.ID] = *root
	}

	return primaries, nil
}

// Root walks linkedId references upward from contact. It returns nil, nil when the chain
// cannot reach a primary.
func (r *Resolver) Root(ctx context.Context, contact models.Contact) (*models.Contact, error) {
	log := r.logger.WithContext(ctx).WithField("contact_id", contact.ID)

	current := contact
	visited := map[int64]bool{current.ID: true}
	for depth := 0; ; depth++ {
		if current.IsPrimary() {
			return &current, nil
		}
		if current.LinkedID == nil {
			log.Warnf("secondary contact %d has no linked primary, skipping", current.ID)
			return nil, nil
		}
		if depth >= r.maxDepth {
			log.Warnf("link chain from contact %d exceeds %d hops, skipping", contact.ID, r.maxDepth)
			return nil, nil
		}

		next := *current.LinkedID
		if visited[next] {
			log.Warnf("link cycle detected at contact %d, skipping", next)
			return nil, nil
		}
		visited[next] = true

		parent, err := r.store.FindByID(ctx, next)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			log.Warnf("contact %d links to missing contact %d, skipping", current.ID, next)
			return nil, nil
		}
		current = *parent
	}
}

// oldestFirst orders primaries by creation time, then id.
func oldestFirst(primaries map[int64]models.Contact) []models.Contact {
	ordered := make([]models.Contact, 0, len(primaries))
	for _, p := range primaries {
		ordered = append(ordered, p)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Older(ordered[j])
	})
	return ordered
}
