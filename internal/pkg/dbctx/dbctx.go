package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context carries the request context and, when the caller is already inside a
// transaction, the transaction handle repos must join.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

func New(ctx context.Context) Context {
	return Context{Ctx: ctx}
}

// Conn returns the handle to run statements on: the caller's transaction if
// present, otherwise fallback. The result is bound to Ctx.
func (c Context) Conn(fallback *gorm.DB) *gorm.DB {
	db := c.Tx
	if db == nil {
		db = fallback
	}
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return db.WithContext(ctx)
}
