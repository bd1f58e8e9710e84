// Package service implements the lane check-in state machine, the
// selection negotiation protocol, the assignment arbiter and the checkout
// closer.
//
// Every operation runs inside one store transaction.  Events for observers
// and occupancy messages for downstream consumers are collected while the
// transaction runs and delivered only after it commits.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iliyamo/clubdesk/internal/apperr"
	"github.com/iliyamo/clubdesk/internal/broadcast"
	"github.com/iliyamo/clubdesk/internal/config"
	"github.com/iliyamo/clubdesk/internal/pricing"
	"github.com/iliyamo/clubdesk/internal/queue"
	"github.com/iliyamo/clubdesk/internal/scan"
	"github.com/iliyamo/clubdesk/internal/store"
	"github.com/iliyamo/clubdesk/internal/telemetry"
)

// OccupancyPublisher delivers occupancy events to downstream consumers.
type OccupancyPublisher interface {
	PublishOccupancy(ctx context.Context, ev queue.OccupancyEvent) error
}

// Deps are the collaborators of a Service.  Publisher and Resolver are
// optional.
type Deps struct {
	Store       store.Store
	Broadcaster broadcast.Broadcaster
	Publisher   OccupancyPublisher
	Resolver    scan.Resolver
	Pricing     *pricing.Oracle
	Config      config.CheckinConfig
	Log         zerolog.Logger
	Now         func() time.Time
}

// Service is the check-in and checkout core.
type Service struct {
	store    store.Store
	bc       broadcast.Broadcaster
	pub      OccupancyPublisher
	resolver scan.Resolver
	oracle   *pricing.Oracle
	cfg      config.CheckinConfig
	log      zerolog.Logger
	now      func() time.Time
	tracer   trace.Tracer
}

// New wires a Service.  Store, Broadcaster and Pricing must be non-nil.
func New(d Deps) *Service {
	if d.Store == nil || d.Broadcaster == nil || d.Pricing == nil {
		panic("service: nil store, broadcaster or pricing oracle")
	}
	if d.Resolver == nil {
		d.Resolver = scan.NewHashResolver()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Config.RentalBlockHours <= 0 {
		d.Config.RentalBlockHours = 6
	}
	if d.Config.MaxStayHours < d.Config.RentalBlockHours {
		d.Config.MaxStayHours = d.Config.RentalBlockHours
	}
	if d.Config.CheckoutClaimTTL <= 0 {
		d.Config.CheckoutClaimTTL = 2 * time.Minute
	}
	return &Service{
		store:    d.Store,
		bc:       d.Broadcaster,
		pub:      d.Publisher,
		resolver: d.Resolver,
		oracle:   d.Pricing,
		cfg:      d.Config,
		log:      d.Log.With().Str("component", "service").Logger(),
		now:      d.Now,
		tracer:   telemetry.Tracer(),
	}
}

func (s *Service) clock() time.Time { return s.now().UTC() }

// outbox collects side effects that must wait for commit.
type outbox struct {
	lane      []laneEvent
	global    []broadcast.Event
	occupancy []queue.OccupancyEvent
}

type laneEvent struct {
	laneID string
	ev     broadcast.Event
}

func (o *outbox) toLane(laneID string, ev broadcast.Event) {
	o.lane = append(o.lane, laneEvent{laneID: laneID, ev: ev})
}

func (o *outbox) toAll(ev broadcast.Event) { o.global = append(o.global, ev) }

func (o *outbox) publish(ev queue.OccupancyEvent) { o.occupancy = append(o.occupancy, ev) }

type txFunc func(ctx context.Context, tx store.Tx, out *outbox) error

// run executes fn in a transaction under a span named op and flushes the
// outbox once the transaction has committed.
func (s *Service) run(ctx context.Context, op, laneID string, fn txFunc) error {
	ctx, span := s.tracer.Start(ctx, op, trace.WithAttributes(attribute.String("lane.id", laneID)))
	defer span.End()

	var out *outbox
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		out = &outbox{}
		return fn(ctx, tx, out)
	})
	if err != nil {
		err = translate(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperr.KindOf(err)))
		ev := s.log.Debug()
		if apperr.KindOf(err) == apperr.KindInternal {
			ev = s.log.Error()
		}
		ev.Err(err).Str("op", op).Str("lane_id", laneID).Msg("operation failed")
		return err
	}
	s.flush(ctx, out)
	return nil
}

func (s *Service) flush(ctx context.Context, out *outbox) {
	for _, le := range out.lane {
		le.ev.LaneID = le.laneID
		s.bc.BroadcastToLane(ctx, le.ev, le.laneID)
	}
	for _, ev := range out.global {
		s.bc.Broadcast(ctx, ev)
	}
	if s.pub == nil {
		return
	}
	for _, ev := range out.occupancy {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := s.pub.PublishOccupancy(pctx, ev); err != nil {
			s.log.Warn().Err(err).Str("kind", ev.Kind).Str("visit_id", ev.VisitID).Msg("occupancy event not published")
		}
		cancel()
	}
}

// translate maps store sentinels onto the error taxonomy.  Tagged errors
// pass through untouched.
func translate(err error) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperr.Wrap(apperr.KindNotFound, err, "not found")
	case errors.Is(err, store.ErrSerialization):
		return apperr.Wrap(apperr.KindConflict, err, "concurrent update lost, retry")
	}
	return apperr.Internal(err, "internal error")
}

// notFound tags a store miss with a readable message and passes every other
// error through.
func notFound(err error, format string, args ...any) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(format, args...)
	}
	return err
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func ptr[T any](v T) *T { return &v }
