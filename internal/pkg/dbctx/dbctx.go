package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context bundles a request context with an open GORM transaction, so a
// write that spans more than one table (e.g. store.UpdateJob's job save
// plus its JobEvent audit row) can share a single transaction boundary
// without passing a bare *gorm.DB down through every call.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}
