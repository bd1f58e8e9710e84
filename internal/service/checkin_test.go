package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/clubdesk/internal/apperr"
	"github.com/iliyamo/clubdesk/internal/broadcast"
	"github.com/iliyamo/clubdesk/internal/model"
	"github.com/iliyamo/clubdesk/internal/queue"
	"github.com/iliyamo/clubdesk/internal/scan"
)

func TestStartRequiresExactlyOneIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Start(ctx, StartInput{LaneID: "L1"})
	assert.Equal(t, apperr.KindValidation, kindOf(t, err))

	_, err = f.svc.Start(ctx, StartInput{LaneID: "L1", CustomerID: "c1", Scan: "DAQX1"})
	assert.Equal(t, apperr.KindValidation, kindOf(t, err))

	_, err = f.svc.Start(ctx, StartInput{LaneID: "L1", CustomerID: "nobody"})
	assert.Equal(t, apperr.KindNotFound, kindOf(t, err))
}

func TestFullCheckinScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	started, err := f.svc.Start(ctx, StartInput{LaneID: "L1", StaffID: "staff-1", CustomerID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, model.LaneActive, started.Session.Status)
	assert.Equal(t, "Alex Rivera", started.Session.CustomerName)
	assert.Equal(t, model.ModeInitial, started.Session.CheckinMode)
	assert.Equal(t, 2, started.Session.Inventory[model.RentalStandard])
	assert.Contains(t, started.Session.AllowedRentalTypes, model.RentalLocker)

	snap, err := f.svc.ProposeSelection(ctx, ProposeInput{LaneID: "L1", Actor: model.ActorCustomer, RentalType: model.RentalStandard})
	require.NoError(t, err)
	assert.Equal(t, model.LaneActive, snap.Status)
	require.NotNil(t, snap.ProposedBy)
	assert.Equal(t, model.ActorCustomer, *snap.ProposedBy)

	conf, err := f.svc.ConfirmSelection(ctx, "L1", model.ActorEmployee, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, model.RentalStandard, conf.RentalType)
	assert.Equal(t, model.ActorEmployee, conf.ConfirmedBy)
	assert.Equal(t, model.LaneAwaitingAssignment, conf.Session.Status)
	assert.Len(t, f.rec.OfType(broadcast.SelectionForced), 1)

	_, err = f.svc.AcknowledgeSelection(ctx, "L1", model.ActorCustomer)
	require.NoError(t, err)
	assert.Len(t, f.rec.OfType(broadcast.SelectionAcknowledged), 1)

	asg, err := f.svc.Assign(ctx, AssignInput{LaneID: "L1", StaffID: "staff-1", ResourceType: model.ResourceRoom, ResourceID: "r1"})
	require.NoError(t, err)
	assert.False(t, asg.ConfirmationRequired)
	require.NotNil(t, asg.Session.AssignedResourceNumber)
	assert.Equal(t, "101", *asg.Session.AssignedResourceNumber)

	pay, err := f.svc.CreatePaymentIntent(ctx, "L1", "staff-1")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentDue, pay.Intent.Status)
	assert.Equal(t, "43.30", pay.Intent.Amount.StringFixed(2))
	assert.Equal(t, model.LaneAwaitingPayment, pay.Session.Status)

	paid, err := f.svc.MarkPaid(ctx, pay.Intent.ID, "staff-1")
	require.NoError(t, err)
	assert.False(t, paid.AlreadyPaid)
	assert.False(t, paid.Completed)
	require.NotNil(t, paid.Session)
	assert.Equal(t, model.LaneAwaitingSignature, paid.Session.Status)

	signed, err := f.svc.SignAgreement(ctx, "L1", "sig")
	require.NoError(t, err)
	assert.True(t, signed.Completed)
	assert.Equal(t, model.LaneCompleted, signed.Session.Status)
	require.NotNil(t, signed.Session.VisitID)

	r1, _ := f.st.Resource(model.ResourceRoom, "r1")
	assert.Equal(t, model.StatusOccupied, r1.Status)
	require.NotNil(t, r1.AssignedTo)
	assert.Equal(t, "c1", *r1.AssignedTo)

	visits := f.st.Visits("c1")
	require.Len(t, visits, 1)
	assert.True(t, visits[0].Open())
	blocks := f.st.Blocks(visits[0].ID)
	require.Len(t, blocks, 1)
	assert.Equal(t, t0.Add(6*time.Hour), blocks[0].EndsAt)

	assert.Equal(t, []string{queue.VisitStarted}, f.pub.kinds())
	assert.Len(t, f.st.Audit(AuditCheckin), 1)
	assert.Len(t, f.st.Audit(AuditAssign), 1)
	assert.NotEmpty(t, f.rec.OfType(broadcast.RoomStatusChanged))
	for _, ev := range f.rec.OfType(broadcast.SessionUpdated) {
		assert.Equal(t, "L1", ev.LaneID)
	}
}

func TestSignatureBeforeOrAfterPaymentConverge(t *testing.T) {
	ctx := context.Background()

	signFirst := newFixture(t)
	_, err := signFirst.svc.Start(ctx, StartInput{LaneID: "L1", CustomerID: "c1"})
	require.NoError(t, err)
	signed, err := signFirst.svc.SignAgreement(ctx, "L1", "sig")
	require.NoError(t, err)
	assert.False(t, signed.Completed)
	assert.True(t, signed.Session.AgreementSigned)
	_, err = signFirst.svc.SelectRental(ctx, SelectRentalInput{LaneID: "L1", Desired: model.RentalStandard})
	require.NoError(t, err)
	_, err = signFirst.svc.Assign(ctx, AssignInput{LaneID: "L1", ResourceType: model.ResourceRoom, ResourceID: "r1"})
	require.NoError(t, err)
	pay, err := signFirst.svc.CreatePaymentIntent(ctx, "L1", "staff-1")
	require.NoError(t, err)
	paid, err := signFirst.svc.MarkPaid(ctx, pay.Intent.ID, "staff-1")
	require.NoError(t, err)
	assert.True(t, paid.Completed)

	payFirst := newFixture(t)
	payFirst.checkIn(t, "L1", "c1", model.RentalStandard, model.ResourceRoom, "r1")

	for _, f := range []*fixture{signFirst, payFirst} {
		lane, ok := f.st.Lane("L1")
		require.True(t, ok)
		assert.Equal(t, model.LaneCompleted, lane.Status)
		visits := f.st.Visits("c1")
		require.Len(t, visits, 1)
		assert.Len(t, f.st.Blocks(visits[0].ID), 1)
		r1, _ := f.st.Resource(model.ResourceRoom, "r1")
		assert.Equal(t, model.StatusOccupied, r1.Status)
		assert.Equal(t, []string{queue.VisitStarted}, f.pub.kinds())
	}
}

func TestSignWithUnpaidIntentRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.toAssignment(t, "L1", "c1", model.RentalStandard)
	_, err := f.svc.Assign(ctx, AssignInput{LaneID: "L1", ResourceType: model.ResourceRoom, ResourceID: "r1"})
	require.NoError(t, err)
	_, err = f.svc.CreatePaymentIntent(ctx, "L1", "staff-1")
	require.NoError(t, err)

	_, err = f.svc.SignAgreement(ctx, "L1", "sig")
	assert.Equal(t, apperr.KindValidation, kindOf(t, err))
	lane, _ := f.st.Lane("L1")
	assert.Nil(t, lane.Signature)
}

func TestMarkPaidIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.toAssignment(t, "L1", "c1", model.RentalStandard)
	_, err := f.svc.Assign(ctx, AssignInput{LaneID: "L1", ResourceType: model.ResourceRoom, ResourceID: "r1"})
	require.NoError(t, err)
	pay, err := f.svc.CreatePaymentIntent(ctx, "L1", "staff-1")
	require.NoError(t, err)

	first, err := f.svc.MarkPaid(ctx, pay.Intent.ID, "staff-1")
	require.NoError(t, err)
	assert.False(t, first.AlreadyPaid)
	second, err := f.svc.MarkPaid(ctx, pay.Intent.ID, "staff-2")
	require.NoError(t, err)
	assert.True(t, second.AlreadyPaid)
	require.NotNil(t, second.Session)
	assert.Equal(t, model.LaneAwaitingSignature, second.Session.Status)

	p, _ := f.st.Payment(pay.Intent.ID)
	require.NotNil(t, p.PaidBy)
	assert.Equal(t, "staff-1", *p.PaidBy)
	assert.Len(t, f.st.Audit(AuditPaymentPaid), 1)

	_, err = f.svc.MarkPaid(ctx, "missing", "staff-1")
	assert.Equal(t, apperr.KindNotFound, kindOf(t, err))
}

func TestCompletionHappensOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	done := f.checkIn(t, "L1", "c1", model.RentalStandard, model.ResourceRoom, "r1")

	again, err := f.svc.SignAgreement(ctx, "L1", "sig")
	require.NoError(t, err)
	assert.True(t, again.Completed)
	assert.Equal(t, done.VisitID, again.Session.VisitID)

	lane, _ := f.st.Lane("L1")
	_, err = f.svc.MarkPaid(ctx, *lane.PaymentIntentID, "staff-1")
	require.NoError(t, err)

	assert.Len(t, f.st.Visits("c1"), 1)
	assert.Len(t, f.st.Audit(AuditCheckin), 1)
	assert.Equal(t, []string{queue.VisitStarted}, f.pub.kinds())
}

func TestConcurrentAssignOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const lanes = 6
	for i := 0; i < lanes; i++ {
		id := string(rune('a' + i))
		f.st.PutCustomer(model.Customer{ID: "race-" + id, FirstName: "Racer", PastDueBalance: decimal.Zero})
		f.toAssignment(t, "lane-"+id, "race-"+id, model.RentalStandard)
	}
	f.rec.Reset()

	var wg sync.WaitGroup
	errs := make([]error, lanes)
	for i := 0; i < lanes; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			laneID := "lane-" + string(rune('a'+i))
			_, errs[i] = f.svc.Assign(ctx, AssignInput{LaneID: laneID, ResourceType: model.ResourceRoom, ResourceID: "r1"})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	}
	assert.Equal(t, 1, wins)
	assert.Len(t, f.rec.OfType(broadcast.AssignmentFailed), lanes-1)
	assert.Len(t, f.rec.OfType(broadcast.AssignmentCreated), 1)

	r1, _ := f.st.Resource(model.ResourceRoom, "r1")
	require.NotNil(t, r1.AssignedTo)
	assert.Len(t, f.st.Audit(AuditAssign), 1)
}

func TestAssignRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Start(ctx, StartInput{LaneID: "L1", CustomerID: "c1"})
	require.NoError(t, err)
	_, err = f.svc.Assign(ctx, AssignInput{LaneID: "L1", ResourceType: model.ResourceRoom, ResourceID: "r1"})
	assert.Equal(t, apperr.KindValidation, kindOf(t, err), "no selection yet")

	_, err = f.svc.SelectRental(ctx, SelectRentalInput{LaneID: "L1", Desired: model.RentalStandard})
	require.NoError(t, err)

	f.st.PutResource(model.Resource{ID: "r9", Type: model.ResourceRoom, Number: "109", Tier: model.RentalStandard, Status: model.StatusDirty})
	_, err = f.svc.Assign(ctx, AssignInput{LaneID: "L1", ResourceType: model.ResourceRoom, ResourceID: "r9"})
	assert.Equal(t, apperr.KindValidation, kindOf(t, err))

	_, err = f.svc.Assign(ctx, AssignInput{LaneID: "L1", ResourceType: model.ResourceRoom, ResourceID: "nope"})
	assert.Equal(t, apperr.KindNotFound, kindOf(t, err))

	first, err := f.svc.Assign(ctx, AssignInput{LaneID: "L1", ResourceType: model.ResourceRoom, ResourceID: "r1"})
	require.NoError(t, err)
	again, err := f.svc.Assign(ctx, AssignInput{LaneID: "L1", ResourceType: model.ResourceRoom, ResourceID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, first.Resource.ID, again.Resource.ID)

	_, err = f.svc.Assign(ctx, AssignInput{LaneID: "L1", ResourceType: model.ResourceRoom, ResourceID: "r2"})
	assert.Equal(t, apperr.KindConflict, kindOf(t, err))
	r2, _ := f.st.Resource(model.ResourceRoom, "r2")
	assert.Nil(t, r2.AssignedTo)
}

func TestConfirmFirstWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Start(ctx, StartInput{LaneID: "L1", CustomerID: "c1"})
	require.NoError(t, err)

	_, err = f.svc.ConfirmSelection(ctx, "L1", model.ActorCustomer, "")
	assert.Equal(t, apperr.KindValidation, kindOf(t, err), "nothing proposed")

	_, err = f.svc.ProposeSelection(ctx, ProposeInput{LaneID: "L1", Actor: model.ActorEmployee, RentalType: model.RentalDouble})
	require.NoError(t, err)

	first, err := f.svc.ConfirmSelection(ctx, "L1", model.ActorEmployee, "staff-1")
	require.NoError(t, err)
	assert.False(t, first.AlreadyConfirmed)

	second, err := f.svc.ConfirmSelection(ctx, "L1", model.ActorCustomer, "")
	require.NoError(t, err)
	assert.True(t, second.AlreadyConfirmed)
	assert.Equal(t, model.ActorEmployee, second.ConfirmedBy)
	assert.Equal(t, model.RentalDouble, second.RentalType)
	assert.Len(t, f.rec.OfType(broadcast.SelectionLocked), 1)

	_, err = f.svc.ProposeSelection(ctx, ProposeInput{LaneID: "L1", Actor: model.ActorCustomer, RentalType: model.RentalLocker})
	require.Error(t, err)
	ae, _ := apperr.As(err)
	assert.Equal(t, apperr.KindConflict, ae.Kind)
	assert.Equal(t, ptr(model.ActorEmployee), ae.Details["confirmedBy"])

	_, err = f.svc.SelectRental(ctx, SelectRentalInput{LaneID: "L1", Desired: model.RentalLocker})
	assert.Equal(t, apperr.KindConflict, kindOf(t, err))
}

func TestBannedCustomerCreatesNoLane(t *testing.T) {
	f := newFixture(t)
	until := t0.Add(48 * time.Hour)
	f.st.PutCustomer(model.Customer{ID: "c9", FirstName: "Banned", BannedUntil: &until, PastDueBalance: decimal.Zero})

	_, err := f.svc.Start(context.Background(), StartInput{LaneID: "L1", CustomerID: "c9"})
	require.Error(t, err)
	ae, _ := apperr.As(err)
	assert.Equal(t, apperr.KindBanned, ae.Kind)
	assert.Equal(t, 403, ae.Status())
	_, ok := f.st.Lane("L1")
	assert.False(t, ok)
	assert.Empty(t, f.rec.Events())
}

func TestPastDueBlocksUntilBypass(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.st.PutCustomer(model.Customer{ID: "c8", FirstName: "Owes", PastDueBalance: decimal.RequireFromString("35.00")})

	started, err := f.svc.Start(ctx, StartInput{LaneID: "L1", CustomerID: "c8"})
	require.NoError(t, err)
	assert.True(t, started.Session.PastDueBlocked)

	_, err = f.svc.SelectRental(ctx, SelectRentalInput{LaneID: "L1", Desired: model.RentalLocker})
	require.Error(t, err)
	ae, _ := apperr.As(err)
	assert.Equal(t, apperr.KindForbidden, ae.Kind)
	assert.Equal(t, "35.00", ae.Details["pastDueBalance"])

	_, err = f.svc.ProposeSelection(ctx, ProposeInput{LaneID: "L1", Actor: model.ActorCustomer, RentalType: model.RentalLocker})
	assert.Equal(t, apperr.KindForbidden, kindOf(t, err))

	snap, err := f.svc.PastDueBypass(ctx, "L1", "staff-1")
	require.NoError(t, err)
	assert.False(t, snap.PastDueBlocked)
	_, err = f.svc.PastDueBypass(ctx, "L1", "staff-1")
	require.NoError(t, err)
	assert.Len(t, f.st.Audit(AuditPastDueBypass), 1)

	_, err = f.svc.SelectRental(ctx, SelectRentalInput{LaneID: "L1", Desired: model.RentalLocker})
	assert.NoError(t, err)
}

func TestAlreadyCheckedInLeavesLaneUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.checkIn(t, "L1", "c1", model.RentalStandard, model.ResourceRoom, "r1")
	f.rec.Reset()

	_, err := f.svc.Start(ctx, StartInput{LaneID: "L2", CustomerID: "c1"})
	require.Error(t, err)
	ae, _ := apperr.As(err)
	assert.Equal(t, apperr.KindAlreadyCheckedIn, ae.Kind)
	assert.Equal(t, 409, ae.Status())
	active, ok := ae.Details["activeCheckin"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "101", active["resourceNumber"])
	assert.Equal(t, t0.Add(6*time.Hour), active["scheduledCheckoutAt"])
	assert.Contains(t, ae.Details, "waitlist")

	_, ok = f.st.Lane("L2")
	assert.False(t, ok)
	assert.Empty(t, f.rec.Events())
}

func TestLaneBusyWithOtherCustomer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.toAssignment(t, "L1", "c1", model.RentalStandard)
	_, err := f.svc.Assign(ctx, AssignInput{LaneID: "L1", ResourceType: model.ResourceRoom, ResourceID: "r1"})
	require.NoError(t, err)

	_, err = f.svc.Start(ctx, StartInput{LaneID: "L1", CustomerID: "c2"})
	assert.Equal(t, apperr.KindConflict, kindOf(t, err))

	again, err := f.svc.Start(ctx, StartInput{LaneID: "L1", CustomerID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, model.LaneAwaitingAssignment, again.Session.Status, "same customer refreshes in place")
	require.NotNil(t, again.Session.AssignedResourceID)
}

func TestNewCustomerAfterCompletionGetsNewSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	done := f.checkIn(t, "L1", "c1", model.RentalStandard, model.ResourceRoom, "r1")

	next, err := f.svc.Start(ctx, StartInput{LaneID: "L1", CustomerID: "c2"})
	require.NoError(t, err)
	assert.NotEqual(t, done.SessionID, next.Session.SessionID)
	assert.Equal(t, model.LaneActive, next.Session.Status)
	assert.Nil(t, next.Session.AssignedResourceID)
	assert.Nil(t, next.Session.PaymentIntentID)
	assert.False(t, next.Session.AgreementSigned)
}

func TestUnmatchedScanAwaitsCustomer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Start(ctx, StartInput{LaneID: "L1", Scan: "DAQZ77\nDCSNEW\nDACPAT"})
	require.NoError(t, err)
	require.NotNil(t, res.Resolution)
	assert.Equal(t, scan.Extracted, res.Resolution.Kind)
	assert.Equal(t, model.LaneAwaitingCustomer, res.Session.Status)

	started, err := f.svc.Start(ctx, StartInput{LaneID: "L1", CustomerID: "c2"})
	require.NoError(t, err)
	assert.Equal(t, res.Session.SessionID, started.Session.SessionID)
	assert.Equal(t, model.LaneActive, started.Session.Status)
}

func TestCrossTierAssignment(t *testing.T) {
	ctx := context.Background()

	t.Run("decline frees the resource", func(t *testing.T) {
		f := newFixture(t)
		f.toAssignment(t, "L1", "c1", model.RentalDouble)
		asg, err := f.svc.Assign(ctx, AssignInput{LaneID: "L1", ResourceType: model.ResourceRoom, ResourceID: "r1"})
		require.NoError(t, err)
		assert.True(t, asg.ConfirmationRequired)
		assert.Len(t, f.rec.OfType(broadcast.CustomerConfirmationRequired), 1)

		_, err = f.svc.CreatePaymentIntent(ctx, "L1", "staff-1")
		assert.Equal(t, apperr.KindValidation, kindOf(t, err))

		_, err = f.svc.CustomerConfirm(ctx, CustomerConfirmInput{LaneID: "L1", SessionID: "wrong", Confirmed: false})
		assert.Equal(t, apperr.KindNotFound, kindOf(t, err))

		snap, err := f.svc.CustomerConfirm(ctx, CustomerConfirmInput{LaneID: "L1", SessionID: asg.Session.SessionID, Confirmed: false})
		require.NoError(t, err)
		assert.Nil(t, snap.AssignedResourceID)
		assert.False(t, snap.CustomerConfirmationPending)
		r1, _ := f.st.Resource(model.ResourceRoom, "r1")
		assert.Nil(t, r1.AssignedTo)
		assert.Len(t, f.rec.OfType(broadcast.CustomerDeclined), 1)
	})

	t.Run("accept waitlists the desired tier", func(t *testing.T) {
		f := newFixture(t)
		f.toAssignment(t, "L1", "c1", model.RentalDouble)
		asg, err := f.svc.Assign(ctx, AssignInput{LaneID: "L1", ResourceType: model.ResourceRoom, ResourceID: "r1"})
		require.NoError(t, err)
		snap, err := f.svc.CustomerConfirm(ctx, CustomerConfirmInput{LaneID: "L1", SessionID: asg.Session.SessionID, Confirmed: true})
		require.NoError(t, err)
		require.NotNil(t, snap.WaitlistDesiredType)
		assert.Equal(t, model.RentalDouble, *snap.WaitlistDesiredType)
		require.NotNil(t, snap.DesiredRentalType)
		assert.Equal(t, model.RentalDouble, *snap.DesiredRentalType, "locked selection is kept")
		assert.Nil(t, snap.BackupRentalType)
		require.NotNil(t, snap.AssignedResourceID)
		assert.Equal(t, "r1", *snap.AssignedResourceID)

		pay, err := f.svc.CreatePaymentIntent(ctx, "L1", "staff-1")
		require.NoError(t, err)
		_, err = f.svc.MarkPaid(ctx, pay.Intent.ID, "staff-1")
		require.NoError(t, err)
		done, err := f.svc.SignAgreement(ctx, "L1", "sig")
		require.NoError(t, err)
		require.NotNil(t, done.Session.VisitID)

		entries := f.st.Waitlist(*done.Session.VisitID)
		require.Len(t, entries, 1)
		assert.Equal(t, model.RentalDouble, entries[0].DesiredTier)
		assert.Equal(t, model.RentalStandard, entries[0].BackupTier)
		assert.Equal(t, model.WaitlistActive, entries[0].Status)
		assert.Len(t, f.rec.OfType(broadcast.WaitlistUpdated), 1)
	})
}

func TestCancelReleasesCommitments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.toAssignment(t, "L1", "c1", model.RentalStandard)
	_, err := f.svc.Assign(ctx, AssignInput{LaneID: "L1", ResourceType: model.ResourceRoom, ResourceID: "r1"})
	require.NoError(t, err)
	pay, err := f.svc.CreatePaymentIntent(ctx, "L1", "staff-1")
	require.NoError(t, err)

	snap, err := f.svc.Cancel(ctx, "L1", "staff-1")
	require.NoError(t, err)
	assert.Equal(t, model.LaneCancelled, snap.Status)
	assert.Nil(t, snap.AssignedResourceID)

	r1, _ := f.st.Resource(model.ResourceRoom, "r1")
	assert.Nil(t, r1.AssignedTo)
	p, _ := f.st.Payment(pay.Intent.ID)
	assert.Equal(t, model.PaymentCancelled, p.Status)
	assert.Len(t, f.st.Audit(AuditLaneCancelled), 1)

	_, err = f.svc.Cancel(ctx, "L1", "staff-1")
	assert.Equal(t, apperr.KindConflict, kindOf(t, err))

	_, err = f.svc.MarkPaid(ctx, pay.Intent.ID, "staff-1")
	assert.Equal(t, apperr.KindConflict, kindOf(t, err))
}

func TestClearResetsAnyLane(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	snap, err := f.svc.Clear(ctx, "fresh", "staff-1")
	require.NoError(t, err)
	assert.Equal(t, model.LaneIdle, snap.Status)

	f.toAssignment(t, "L1", "c1", model.RentalStandard)
	_, err = f.svc.Assign(ctx, AssignInput{LaneID: "L1", ResourceType: model.ResourceRoom, ResourceID: "r2"})
	require.NoError(t, err)
	snap, err = f.svc.Clear(ctx, "L1", "staff-1")
	require.NoError(t, err)
	assert.Equal(t, model.LaneIdle, snap.Status)
	assert.Nil(t, snap.CustomerID)
	r2, _ := f.st.Resource(model.ResourceRoom, "r2")
	assert.Nil(t, r2.AssignedTo)

	f.checkIn(t, "L1", "c1", model.RentalStandard, model.ResourceRoom, "r1")
	_, err = f.svc.Clear(ctx, "L1", "staff-1")
	require.NoError(t, err)
	r1, _ := f.st.Resource(model.ResourceRoom, "r1")
	assert.Equal(t, model.StatusOccupied, r1.Status, "clearing a completed lane keeps the occupancy")
}

func TestRenewalExtendsVisit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	done := f.checkIn(t, "L1", "c1", model.RentalStandard, model.ResourceRoom, "r1")
	visitID := *done.VisitID

	f.advance(5 * time.Hour)
	_, err := f.svc.Start(ctx, StartInput{LaneID: "L1", CustomerID: "c1", VisitID: "other"})
	assert.Equal(t, apperr.KindValidation, kindOf(t, err))

	started, err := f.svc.Start(ctx, StartInput{LaneID: "L1", CustomerID: "c1", VisitID: visitID})
	require.NoError(t, err)
	assert.Equal(t, model.ModeRenewal, started.Session.CheckinMode)
	require.NotNil(t, started.Session.DesiredRentalType)
	assert.Equal(t, model.RentalStandard, *started.Session.DesiredRentalType)
	assert.Contains(t, started.Session.AllowedRentalTypes, model.RentalStandard)

	_, err = f.svc.SelectRental(ctx, SelectRentalInput{LaneID: "L1", Desired: model.RentalStandard})
	require.NoError(t, err)
	_, err = f.svc.Assign(ctx, AssignInput{LaneID: "L1", ResourceType: model.ResourceRoom, ResourceID: "r1"})
	require.NoError(t, err)
	pay, err := f.svc.CreatePaymentIntent(ctx, "L1", "staff-1")
	require.NoError(t, err)
	assert.Equal(t, "43.30", pay.Intent.Amount.StringFixed(2))
	_, err = f.svc.MarkPaid(ctx, pay.Intent.ID, "staff-1")
	require.NoError(t, err)
	signed, err := f.svc.SignAgreement(ctx, "L1", "sig")
	require.NoError(t, err)
	assert.True(t, signed.Completed)
	assert.Equal(t, visitID, *signed.Session.VisitID)

	blocks := f.st.Blocks(visitID)
	require.Len(t, blocks, 2)
	assert.Equal(t, t0.Add(6*time.Hour), blocks[1].StartsAt)
	assert.Equal(t, t0.Add(12*time.Hour), blocks[1].EndsAt)
	assert.Len(t, f.st.Visits("c1"), 1)
	assert.Equal(t, []string{queue.VisitStarted, queue.VisitRenewed}, f.pub.kinds())
}

func TestRenewalRespectsStayCap(t *testing.T) {
	f := newFixture(t)
	visit := model.Visit{ID: "v1", CustomerID: "c1", StartedAt: t0.Add(-20 * time.Hour)}
	f.st.PutVisit(visit,
		model.OccupancyBlock{ID: "b1", VisitID: "v1", ResourceID: "r1", ResourceType: model.ResourceRoom, RentalType: model.RentalStandard, StartsAt: visit.StartedAt, EndsAt: visit.StartedAt.Add(12 * time.Hour)},
		model.OccupancyBlock{ID: "b2", VisitID: "v1", ResourceID: "r1", ResourceType: model.ResourceRoom, RentalType: model.RentalStandard, StartsAt: visit.StartedAt.Add(12 * time.Hour), EndsAt: visit.StartedAt.Add(20 * time.Hour)},
	)

	_, err := f.svc.Start(context.Background(), StartInput{LaneID: "L1", CustomerID: "c1", VisitID: "v1"})
	require.Error(t, err)
	ae, _ := apperr.As(err)
	assert.Equal(t, apperr.KindValidation, ae.Kind)
	assert.Equal(t, 20, ae.Details["currentHours"])
}
