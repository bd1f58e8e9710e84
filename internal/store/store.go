// Package store declares the transactional persistence port consumed by the
// check-in core.  Two implementations exist: the MySQL repository package
// (production) and memstore (tests and local development).
//
// Every Tx method runs inside one serializable transaction.  Methods whose
// name ends in ForUpdate acquire a row lock that is held until the
// transaction ends; this is the only concurrency primitive the core relies
// on.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/clubdesk/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrSerialization is returned when the store aborted the transaction to
// preserve serializability (deadlock, lock wait timeout).
var ErrSerialization = errors.New("serialization failure")

// Store opens transactions.
type Store interface {
	// WithTx runs fn inside a serializable transaction.  The transaction is
	// committed when fn returns nil and rolled back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// InventoryCount is the number of resources of a tier in a status.
type InventoryCount struct {
	Tier      model.RentalType     `json:"tier"`
	Status    model.ResourceStatus `json:"status"`
	Available int                  `json:"available"`
	Count     int                  `json:"count"`
}

// Tx is the set of operations available inside a transaction.
type Tx interface {
	// customers
	GetCustomer(ctx context.Context, id string) (model.Customer, error)
	GetCustomerForUpdate(ctx context.Context, id string) (model.Customer, error)
	FindCustomersByScan(ctx context.Context, scanHash, scanValue string) ([]model.Customer, error)
	UpdateCustomer(ctx context.Context, c model.Customer) error

	// lane sessions
	GetLaneSessionForUpdate(ctx context.Context, laneID string) (model.LaneSession, error)
	GetLaneSessionBySessionIDForUpdate(ctx context.Context, sessionID string) (model.LaneSession, error)
	SaveLaneSession(ctx context.Context, s model.LaneSession) error
	// FindLaneByCustomer returns a lane other than exceptLaneID whose session
	// is bound to the customer and not yet COMPLETED or CANCELLED.
	FindLaneByCustomer(ctx context.Context, customerID, exceptLaneID string) (model.LaneSession, error)

	// resource ledger
	GetResource(ctx context.Context, rt model.ResourceType, id string) (model.Resource, error)
	GetResourceForUpdate(ctx context.Context, rt model.ResourceType, id string) (model.Resource, error)
	FindResourceByNumber(ctx context.Context, number string) (model.Resource, error)
	UpdateResource(ctx context.Context, r model.Resource) error
	CountInventory(ctx context.Context) ([]InventoryCount, error)

	// visits and occupancy blocks
	GetOpenVisitByCustomer(ctx context.Context, customerID string) (model.Visit, error)
	GetVisitForUpdate(ctx context.Context, id string) (model.Visit, error)
	CreateVisit(ctx context.Context, v model.Visit) error
	UpdateVisit(ctx context.Context, v model.Visit) error
	ListBlocks(ctx context.Context, visitID string) ([]model.OccupancyBlock, error)
	GetBlock(ctx context.Context, id string) (model.OccupancyBlock, error)
	GetOpenBlockByResource(ctx context.Context, resourceID string) (model.OccupancyBlock, error)
	CreateBlock(ctx context.Context, b model.OccupancyBlock) error
	UpdateBlock(ctx context.Context, b model.OccupancyBlock) error
	// ScheduledEndsForTier returns the scheduled end of every open block
	// occupying a resource of the tier, earliest first.
	ScheduledEndsForTier(ctx context.Context, tier model.RentalType) ([]time.Time, error)

	// waitlist
	CreateWaitlistEntry(ctx context.Context, w model.WaitlistEntry) error
	GetLiveWaitlistByVisit(ctx context.Context, visitID string) (model.WaitlistEntry, error)
	CancelWaitlistByVisit(ctx context.Context, visitID string, now time.Time) (int, error)
	CountLiveWaitlist(ctx context.Context, tier model.RentalType) (int, error)

	// payments
	CreatePaymentIntent(ctx context.Context, p model.PaymentIntent) error
	GetPaymentIntent(ctx context.Context, id string) (model.PaymentIntent, error)
	GetPaymentIntentForUpdate(ctx context.Context, id string) (model.PaymentIntent, error)
	UpdatePaymentIntent(ctx context.Context, p model.PaymentIntent) error

	// checkout requests
	CreateCheckoutRequest(ctx context.Context, r model.CheckoutRequest) error
	GetCheckoutRequestForUpdate(ctx context.Context, id string) (model.CheckoutRequest, error)
	GetOpenCheckoutRequestByOccupancy(ctx context.Context, occupancyID string) (model.CheckoutRequest, error)
	UpdateCheckoutRequest(ctx context.Context, r model.CheckoutRequest) error

	// audit
	InsertAudit(ctx context.Context, a model.AuditRecord) error
}
