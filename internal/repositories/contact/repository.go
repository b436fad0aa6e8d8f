package contact

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"

	"github.com/Ramsey-B/iris/pkg/database"
	"github.com/Ramsey-B/iris/pkg/models"
	"github.com/Ramsey-B/iris/pkg/tracing"
)

const table = "contacts"

var columns = []string{"id", "email", "phone_number", "linked_id", "link_precedence", "created_at", "updated_at", "deleted_at"}

// Repository is the postgres contact store. Every method runs inside the transaction
// bound to ctx when there is one.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.WithinTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, fn)
}

func (r *Repository) FindByEmailOrPhone(ctx context.Context, email, phone *string) ([]models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.FindByEmailOrPhone")
	defer span.End()

	if email == nil && phone == nil {
		return []models.Contact{}, nil
	}

	sb := database.NewSelectBuilder()
	sb.Select(columns...).From(table)
	var matches []string
	if email != nil {
		matches = append(matches, sb.Equal("email", *email))
	}
	if phone != nil {
		matches = append(matches, sb.Equal("phone_number", *phone))
	}
	sb.Where(sb.Or(matches...))
	sb.NotDeleted()
	sb.OrderBy("created_at", "id").Asc()

	return r.selectContacts(ctx, sb, "failed to find contacts by email or phone")
}

func (r *Repository) FindByID(ctx context.Context, id int64) (*models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.FindByID")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...).From(table)
	sb.Where(sb.Equal("id", id))
	sb.NotDeleted()

	query, args := sb.Build()
	var c models.Contact
	if err := sqlx.GetContext(ctx, r.db.Executor(ctx), &c, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		tracing.RecordError(span, err)
		return nil, r.fail(ctx, err, "failed to get contact")
	}
	return &c, nil
}

func (r *Repository) FindClusterByPrimaryID(ctx context.Context, primaryID int64) ([]models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.FindClusterByPrimaryID")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...).From(table)
	sb.Where(sb.Or(
		sb.Equal("id", primaryID),
		sb.Equal("linked_id", primaryID),
	))
	sb.NotDeleted()
	sb.OrderBy("created_at", "id").Asc()

	return r.selectContacts(ctx, sb, "failed to get contact cluster")
}

// Create inserts a contact. A live row with the same (email, phone) pair wins the unique
// index, in which case that row is returned instead.
func (r *Repository) Create(ctx context.Context, req models.CreateContactRequest) (*models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.Create")
	defer span.End()

	precedence := req.LinkPrecedence
	if precedence == "" {
		precedence = models.LinkPrecedencePrimary
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols("email", "phone_number", "linked_id", "link_precedence")
	ib.Values(req.Email, req.PhoneNumber, req.LinkedID, string(precedence))
	ib.OnConflictDoNothing()
	ib = ib.Returning(columns...)

	query, args := ib.Build()
	var c models.Contact
	err := sqlx.GetContext(ctx, r.db.Executor(ctx), &c, query, args...)
	switch {
	case err == nil:
		r.logger.WithContext(ctx).WithFields(map[string]any{
			"id":              c.ID,
			"link_precedence": c.LinkPrecedence,
		}).Info("created contact")
		return &c, nil
	case errors.Is(err, sql.ErrNoRows), database.IsUniqueViolation(err):
		return r.findPair(ctx, req.Email, req.PhoneNumber)
	default:
		tracing.RecordError(span, err)
		return nil, r.fail(ctx, err, "failed to create contact")
	}
}

// findPair looks up the live row holding an exact (email, phone) pair, nulls included.
func (r *Repository) findPair(ctx context.Context, email, phone *string) (*models.Contact, error) {
	sb := database.NewSelectBuilder()
	sb.Select(columns...).From(table)
	sb.Where(
		sb.Equal("COALESCE(email, '')", deref(email)),
		sb.Equal("COALESCE(phone_number, '')", deref(phone)),
	)
	sb.NotDeleted()
	sb.Limit(1)

	query, args := sb.Build()
	var c models.Contact
	if err := sqlx.GetContext(ctx, r.db.Executor(ctx), &c, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// the conflicting row was soft-deleted between the insert and this read
			return nil, fmt.Errorf("%w: duplicate contact vanished", database.ErrTransient)
		}
		return nil, r.fail(ctx, err, "failed to find duplicate contact")
	}

	r.logger.WithContext(ctx).WithField("id", c.ID).Debug("contact pair already exists, returning existing row")
	return &c, nil
}

func (r *Repository) Update(ctx context.Context, id int64, req models.UpdateContactRequest) (*models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.Update")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(r.assignments(ub, req)...)
	ub.Where(ub.Equal("id", id), ub.IsNull("deleted_at"))
	ub.Returning(columns...)

	query, args := ub.Build()
	var c models.Contact
	if err := sqlx.GetContext(ctx, r.db.Executor(ctx), &c, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "contact %d not found", id)
		}
		tracing.RecordError(span, err)
		return nil, r.fail(ctx, err, "failed to update contact")
	}
	return &c, nil
}

func (r *Repository) UpdateMany(ctx context.Context, ids []int64, req models.UpdateContactRequest) error {
	if len(ids) == 0 {
		return nil
	}

	ctx, span := tracing.StartSpan(ctx, "contact.Repository.UpdateMany")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(r.assignments(ub, req)...)
	ub.Where(ub.In("id", database.Int64s(ids)...), ub.IsNull("deleted_at"))

	query, args := ub.Build()
	if _, err := r.db.Executor(ctx).ExecContext(ctx, query, args...); err != nil {
		tracing.RecordError(span, err)
		return r.fail(ctx, err, "failed to update contacts")
	}
	return nil
}

func (r *Repository) assignments(ub *database.UpdateBuilder, req models.UpdateContactRequest) []string {
	set := []string{
		ub.Assign("linked_id", req.LinkedID),
		"updated_at = clock_timestamp()",
	}
	if req.LinkPrecedence != "" {
		set = append(set, ub.Assign("link_precedence", string(req.LinkPrecedence)))
	}
	return set
}

func (r *Repository) selectContacts(ctx context.Context, sb *database.SelectBuilder, failure string) ([]models.Contact, error) {
	query, args := sb.Build()
	contacts := []models.Contact{}
	if err := sqlx.SelectContext(ctx, r.db.Executor(ctx), &contacts, query, args...); err != nil {
		return nil, r.fail(ctx, err, failure)
	}
	return contacts, nil
}

// fail logs err and converts it to the error returned to callers. Transient failures keep
// their cause so the caller can retry.
func (r *Repository) fail(ctx context.Context, err error, message string) error {
	if classified := database.Classify(err); database.IsTransient(classified) {
		r.logger.WithContext(ctx).WithError(err).Warn(message)
		return classified
	}
	r.logger.WithContext(ctx).WithError(err).Error(message)
	return httperror.NewHTTPError(http.StatusInternalServerError, message)
}
