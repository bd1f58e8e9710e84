package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/clubdesk/internal/store"
)

// MySQL error numbers that mean the server aborted the transaction to keep
// it serializable.
const (
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
)

// Store is the MySQL implementation of store.Store.  It bundles one repo per
// table; a transaction hands the same *sql.Tx to every repo so that all
// reads and writes of an operation commit or roll back together.
type Store struct {
	db        *sql.DB
	customers *CustomerRepo
	lanes     *LaneSessionRepo
	resources *ResourceRepo
	visits    *VisitRepo
	waitlist  *WaitlistRepo
	payments  *PaymentRepo
	checkouts *CheckoutRepo
	audit     *AuditRepo
}

// NewStore returns a Store bound to db.
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:        db,
		customers: NewCustomerRepo(db),
		lanes:     NewLaneSessionRepo(db),
		resources: NewResourceRepo(db),
		visits:    NewVisitRepo(db),
		waitlist:  NewWaitlistRepo(db),
		payments:  NewPaymentRepo(db),
		checkouts: NewCheckoutRepo(db),
		audit:     NewAuditRepo(db),
	}
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// WithTx runs fn inside a SERIALIZABLE transaction.  The transaction is
// rolled back unless fn returns nil and the commit succeeds.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return mapErr(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(&sqlTx{s: s, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapErr(err)
	}
	committed = true
	return nil
}

// mapErr translates driver errors into the store sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) && (me.Number == errDeadlock || me.Number == errLockWaitTimeout) {
		return fmt.Errorf("%w: %v", store.ErrSerialization, err)
	}
	return err
}

var _ store.Store = (*Store)(nil)
