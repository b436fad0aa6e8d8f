package database

import (
	"fmt"
	"strings"

	"github.com/huandu/go-sqlbuilder"
)

type SelectBuilder struct {
	*sqlbuilder.SelectBuilder
}

func NewSelectBuilder() *SelectBuilder {
	return &SelectBuilder{sqlbuilder.PostgreSQL.NewSelectBuilder()}
}

// NotDeleted restricts the query to rows without a deleted_at timestamp.
func (sb *SelectBuilder) NotDeleted() *SelectBuilder {
	sb.Where(sb.IsNull("deleted_at"))
	return sb
}

type InsertBuilder struct {
	*sqlbuilder.InsertBuilder
}

func NewInsertBuilder() *InsertBuilder {
	return &InsertBuilder{sqlbuilder.PostgreSQL.NewInsertBuilder()}
}

// OnConflictDoNothing appends an ON CONFLICT clause. With no target every unique
// violation is ignored; a target is written verbatim, e.g. a unique index expression.
func (ib *InsertBuilder) OnConflictDoNothing(target ...string) *InsertBuilder {
	if len(target) == 0 {
		ib.SQL("ON CONFLICT DO NOTHING")
		return ib
	}
	ib.SQL(fmt.Sprintf("ON CONFLICT (%s) DO NOTHING", strings.Join(target, ", ")))
	return ib
}

func (ib *InsertBuilder) Returning(col ...string) *InsertBuilder {
	return &InsertBuilder{ib.InsertBuilder.Returning(col...)}
}

type UpdateBuilder struct {
	*sqlbuilder.UpdateBuilder
}

func NewUpdateBuilder() *UpdateBuilder {
	return &UpdateBuilder{sqlbuilder.PostgreSQL.NewUpdateBuilder()}
}

// Returning must be called after Where.
func (ub *UpdateBuilder) Returning(col ...string) *UpdateBuilder {
	ub.SQL("RETURNING " + strings.Join(col, ", "))
	return ub
}

// Int64s converts ids into the []any form expected by sqlbuilder's In.
func Int64s(ids []int64) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
