// Package postgres is the Postgres adapter for the store ports.
package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/safar/go-sql-shop/internal/apperr"
	"github.com/safar/go-sql-shop/internal/database"
	"github.com/safar/go-sql-shop/internal/store"
)

type Store struct {
	db     *sqlx.DB
	q      sqlx.ExtContext
	txOpts database.TxOptions
	inTx   bool
}

var _ store.Store = (*Store)(nil)

func New(db *sqlx.DB, txOpts database.TxOptions) *Store {
	return &Store{db: db, q: db, txOpts: txOpts}
}

func (s *Store) Users() store.UserStore           { return s }
func (s *Store) Products() store.ProductStore     { return s }
func (s *Store) CartLines() store.CartLineStore   { return s }
func (s *Store) Orders() store.OrderStore         { return s }
func (s *Store) OrderLines() store.OrderLineStore { return s }

func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	return database.WithRetry(ctx, s.db, s.txOpts, func(tx *sqlx.Tx) error {
		return fn(&Store{db: s.db, q: tx, txOpts: s.txOpts, inTx: true})
	})
}

// translate maps driver failures onto error kinds. The driver error stays in
// the chain so the retry classifier can still read its SQLSTATE.
func translate(err error, op string) error {
	switch {
	case database.IsUniqueViolation(err):
		return apperr.Wrap(apperr.KindConflict, err, "%s: already exists", op)
	case database.IsForeignKeyViolation(err):
		return apperr.Wrap(apperr.KindNotFound, err, "%s: referenced row does not exist", op)
	case database.IsCheckViolation(err):
		return apperr.Wrap(apperr.KindInvalidArgument, err, "%s: constraint violated", op)
	}
	return apperr.Storage(err, op)
}

func (s *Store) count(ctx context.Context, query string, args ...any) (int64, error) {
	var total int64
	if err := sqlx.GetContext(ctx, s.q, &total, query, args...); err != nil {
		return 0, err
	}
	return total, nil
}
