// Package masters serves customers, vendors and products.
package masters

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"pipeerp/internal/handlers/common"
	"pipeerp/internal/response"
)

// Handler holds dependencies for master data handlers.
type Handler struct {
	*common.Deps
}

// New returns a masters handler.
func New(d *common.Deps) *Handler {
	return &Handler{Deps: d}
}

// reference is a table/column pair that can point at a master record.
type reference struct {
	table  string
	column string
}

// inUse counts documents that reference id and refuses deletion when any do.
func inUse(ctx context.Context, q sqlx.QueryerContext, what, id string, refs []reference) error {
	total := 0
	for _, ref := range refs {
		var n int
		if err := sqlx.GetContext(ctx, q, &n, "SELECT COUNT(*) FROM "+ref.table+" WHERE "+ref.column+" = ?", id); err != nil {
			return fmt.Errorf("count %s references to %s: %w", ref.table, id, err)
		}
		total += n
	}
	if total > 0 {
		return response.Conflict("%s %s is referenced by %d records; deactivate it instead", what, id, total)
	}
	return nil
}
