package identity

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/iris/pkg/database"
	"github.com/Ramsey-B/iris/pkg/locking"
	"github.com/Ramsey-B/iris/pkg/models"
	"github.com/Ramsey-B/iris/pkg/normalizers"
	"github.com/Ramsey-B/iris/pkg/tracing"
)

const (
	DefaultMaxAttempts = 3
	// maxResolveRounds bounds re-resolution when a resolved primary is demoted while we wait for its lock.
	maxResolveRounds = 3
)

type Engine struct {
	store       Store
	locker      locking.Locker
	logger      ectologger.Logger
	resolver    *Resolver
	merger      *Merger
	observers   []Observer
	maxAttempts int
	maxDepth    int
}

type Option func(*Engine)

func WithLocker(l locking.Locker) Option {
	return func(e *Engine) { e.locker = l }
}

func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, o) }
}

// WithMaxAttempts sets how often Identify runs when the store reports a transient failure.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) { e.maxAttempts = n }
}

func WithMaxWalkDepth(n int) Option {
	return func(e *Engine) { e.maxDepth = n }
}

func NewEngine(store Store, logger ectologger.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		locker:      locking.NoopLocker{},
		logger:      logger,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.maxAttempts < 1 {
		e.maxAttempts = 1
	}
	e.resolver = NewResolver(store, logger, e.maxDepth)
	e.merger = NewMerger(store, logger)
	return e
}

// Identify folds the observation into the cluster it belongs to and returns the
// consolidated view of that cluster. Callers guarantee at least one of email and phone is set.
func (e *Engine) Identify(ctx context.Context, rawEmail, rawPhone *string) (*models.ConsolidatedContact, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.Engine.Identify")
	defer span.End()

	email, phone := normalizers.Observation(rawEmail, rawPhone)
	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"has_email": email != nil,
		"has_phone": phone != nil,
	})

	var outcome *Outcome
	var err error
	for attempt := 1; ; attempt++ {
		outcome, err = e.identifyOnce(ctx, email, phone)
		if err == nil {
			break
		}
		if !database.IsTransient(err) || attempt >= e.maxAttempts {
			tracing.RecordError(span, err)
			return nil, err
		}
		log.WithError(err).Warnf("identify attempt %d hit a transient failure, retrying", attempt)
	}

	tracing.SetInt64(span, "primary_id", outcome.Contact.PrimaryContactID)
	log.WithFields(map[string]any{
		"primary_id": outcome.Contact.PrimaryContactID,
		"outcome":    outcome.Kind(),
	}).Debug("identify completed")

	e.notify(ctx, *outcome)
	return &outcome.Contact, nil
}

func (e *Engine) identifyOnce(ctx context.Context, email, phone *string) (*Outcome, error) {
	outcome := &Outcome{Email: email, Phone: phone}

	// redis locks must be held until after commit
	var releases []func()
	defer func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}()

	err := e.store.WithinTx(ctx, func(ctx context.Context) error {
		release, err := e.locker.Lock(ctx, locking.ObservationKeys(email, phone))
		releases = append(releases, release)
		if err != nil {
			return err
		}

		primaries, err := e.resolveLocked(ctx, email, phone, &releases)
		if err != nil {
			return err
		}

		winnerID, err := e.integrate(ctx, outcome, primaries, email, phone)
		if err != nil {
			return err
		}

		cluster, err := e.store.FindClusterByPrimaryID(ctx, winnerID)
		if err != nil {
			return err
		}
		contact, err := BuildResponse(winnerID, cluster)
		if err != nil {
			e.logger.WithContext(ctx).WithError(err).WithField("primary_id", winnerID).Error("cluster is inconsistent")
			return err
		}

		outcome.Cluster = cluster
		outcome.Contact = *contact
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// resolveLocked resolves the touched clusters and locks them. A primary demoted by a
// concurrent merge before its lock was granted forces another round.
func (e *Engine) resolveLocked(ctx context.Context, email, phone *string, releases *[]func()) ([]models.Contact, error) {
	for round := 1; round <= maxResolveRounds; round++ {
		candidates, err := e.store.FindByEmailOrPhone(ctx, email, phone)
		if err != nil {
			return nil, err
		}
		resolved, err := e.resolver.Resolve(ctx, candidates)
		if err != nil {
			return nil, err
		}
		if len(resolved) == 0 {
			return nil, nil
		}

		ordered := oldestFirst(resolved)
		ids := make([]int64, len(ordered))
		for i, p := range ordered {
			ids[i] = p.ID
		}
		release, err := e.locker.Lock(ctx, locking.ClusterKeys(ids))
		*releases = append(*releases, release)
		if err != nil {
			return nil, err
		}

		current, stale, err := e.refresh(ctx, ordered)
		if err != nil {
			return nil, err
		}
		if !stale {
			return oldestFirst(current), nil
		}
		e.logger.WithContext(ctx).Debugf("resolved primaries changed while locking, round %d", round)
	}

	return nil, fmt.Errorf("%w: %w after %d rounds", database.ErrTransient, ErrUnstableCluster, maxResolveRounds)
}

// refresh re-reads primaries under lock and reports whether any stopped being primary.
func (e *Engine) refresh(ctx context.Context, primaries []models.Contact) (map[int64]models.Contact, bool, error) {
	current := make(map[int64]models.Contact, len(primaries))
	for _, p := range primaries {
		latest, err := e.store.FindByID(ctx, p.ID)
		if err != nil {
			return nil, false, err
		}
		if latest == nil || !latest.IsPrimary() {
			return nil, true, nil
		}
		current[latest.ID] = *latest
	}
	return current, false, nil
}

// integrate applies the observation to the resolved clusters and returns the winning primary id.
func (e *Engine) integrate(ctx context.Context, outcome *Outcome, primaries []models.Contact, email, phone *string) (int64, error) {
	if len(primaries) == 0 {
		created, err := e.store.Create(ctx, models.CreateContactRequest{
			Email:          email,
			PhoneNumber:    phone,
			LinkPrecedence: models.LinkPrecedencePrimary,
		})
		if err != nil {
			return 0, err
		}
		outcome.Created = created
		if created.IsPrimary() {
			return created.ID, nil
		}

		// the pair already existed as a secondary
		root, err := e.resolver.Root(ctx, *created)
		if err != nil {
			return 0, err
		}
		if root == nil {
			// a broken chain answers with the pair's own row
			e.logger.WithContext(ctx).WithField("contact_id", created.ID).Warn("contact has no reachable primary")
			return created.ID, nil
		}
		return root.ID, nil
	}

	winner := primaries[0]
	if len(primaries) > 1 {
		merged, err := e.merger.Merge(ctx, winner, primaries[1:])
		if err != nil {
			return 0, err
		}
		outcome.Merge = merged
	}

	cluster, err := e.store.FindClusterByPrimaryID(ctx, winner.ID)
	if err != nil {
		return 0, err
	}
	if !bringsNewInfo(cluster, email, phone) {
		return winner.ID, nil
	}

	created, err := e.store.Create(ctx, models.CreateContactRequest{
		Email:          email,
		PhoneNumber:    phone,
		LinkedID:       models.Int64Ptr(winner.ID),
		LinkPrecedence: models.LinkPrecedenceSecondary,
	})
	if err != nil {
		return 0, err
	}
	outcome.Created = created
	return winner.ID, nil
}

// Cluster returns the consolidated view of the cluster containing contactID.
func (e *Engine) Cluster(ctx context.Context, contactID int64) (*models.ConsolidatedContact, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.Engine.Cluster")
	defer span.End()

	contact, err := e.store.FindByID(ctx, contactID)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	if contact == nil {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "contact %d not found", contactID)
	}

	root, err := e.resolver.Root(ctx, *contact)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	if root == nil {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "contact %d has no reachable primary", contactID)
	}

	cluster, err := e.store.FindClusterByPrimaryID(ctx, root.ID)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	return BuildResponse(root.ID, cluster)
}

func (e *Engine) notify(ctx context.Context, outcome Outcome) {
	for _, o := range e.observers {
		if err := o.OnIdentify(ctx, outcome); err != nil {
			e.logger.WithContext(ctx).WithError(err).WithField("observer", fmt.Sprintf("%T", o)).Warn("identify observer failed")
		}
	}
}
