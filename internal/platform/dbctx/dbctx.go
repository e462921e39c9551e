package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context bundles a request context with an optional GORM transaction.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

// Of wraps a plain context without a transaction.
func Of(ctx context.Context) Context {
	return Context{Ctx: ctx}
}

// Conn returns the transaction when set, otherwise fallback, bound to the context.
func (c Context) Conn(fallback *gorm.DB) *gorm.DB {
	conn := c.Tx
	if conn == nil {
		conn = fallback
	}
	if c.Ctx == nil {
		return conn.WithContext(context.Background())
	}
	return conn.WithContext(c.Ctx)
}
