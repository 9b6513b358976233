package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/trainer-booking/internal/apperr"
	"github.com/iliyamo/trainer-booking/internal/availability"
	"github.com/iliyamo/trainer-booking/internal/cancellation"
	"github.com/iliyamo/trainer-booking/internal/lock"
	"github.com/iliyamo/trainer-booking/internal/model"
	"github.com/iliyamo/trainer-booking/internal/retry"
	"github.com/iliyamo/trainer-booking/internal/saga"
)

// Monday 2026-01-05 09:00 UTC.
var testNow = time.Date(2026, time.January, 5, 9, 0, 0, 0, time.UTC)

// Monday a week later.
var lessonStart = time.Date(2026, time.January, 12, 10, 0, 0, 0, time.UTC)

type env struct {
	svc      *Service
	j        *journal
	res      *fakeReservations
	pay      *fakePayments
	sales    *fakeSales
	holds    *fakeHolds
	gw       *fakeGateway
	cal      *fakeCalendar
	notifier *fakeNotifier
	events   *fakeEvents
	txlog    *memTxLog
	lock     *lock.Local
	now      time.Time
	sleeps   []time.Duration
}

func testSchedule() availability.ScheduleConfig {
	weekly := map[time.Weekday]availability.DayHours{
		time.Saturday: {Closed: true},
		time.Sunday:   {Closed: true},
	}
	for d := time.Monday; d <= time.Friday; d++ {
		weekly[d] = availability.DayHours{Open: 9 * 60, Close: 18 * 60}
	}
	return availability.ScheduleConfig{
		Location:       time.UTC,
		Weekly:         weekly,
		SlotInterval:   30 * time.Minute,
		Buffer:         30 * time.Minute,
		LessonDuration: 90 * time.Minute,
		MultiDogExtra:  30 * time.Minute,
		MaxAdvanceDays: 60,
	}
}

func newEnv(t *testing.T) *env {
	t.Helper()
	j := &journal{}
	e := &env{
		j:        j,
		res:      &fakeReservations{j: j, rows: map[string]model.Reservation{}},
		pay:      &fakePayments{j: j, rows: map[string]model.Payment{}},
		sales:    &fakeSales{j: j},
		holds:    &fakeHolds{j: j},
		gw:       &fakeGateway{j: j},
		cal:      &fakeCalendar{j: j},
		notifier: &fakeNotifier{},
		events:   &fakeEvents{},
		txlog:    &memTxLog{},
		lock:     lock.Named("booking-test/" + t.Name()),
		now:      testNow,
	}
	clock := func() time.Time { return e.now }
	ids := 0
	exec := retry.NewExecutor(retry.DefaultPolicies(), retry.WithLogger(zap.NewNop()),
		retry.WithSleep(func(_ context.Context, d time.Duration) error {
			e.sleeps = append(e.sleeps, d)
			return nil
		}))
	e.svc = New(Deps{
		Reservations: e.res,
		Payments:     e.pay,
		Sales:        e.sales,
		Holds:        e.holds,
		Gateway:      e.gw,
		Calendar:     e.cal,
		Notifier:     e.notifier,
		Events:       e.events,
		Lock:         e.lock,
		LockTimeout:  time.Second,
		Coordinator:  saga.NewCoordinator(saga.WithLogStore(e.txlog), saga.WithLogger(zap.NewNop()), saga.WithClock(clock)),
		Retry:        exec,
		Engine:       availability.NewEngine(testSchedule(), clock),
		Pricing:      Pricing{LessonCents: 8800, MultiDogSurcharge: 2200},
		Logger:       zap.NewNop(),
		Now:          clock,
		NewID: func() string {
			ids++
			return fmt.Sprintf("id-%d", ids)
		},
	})
	return e
}

func bookReq() BookRequest {
	return BookRequest{CustomerID: 7, TrainerID: "T1", Start: lessonStart, SourceToken: "cnon:card-ok"}
}

func indexOf(calls []string, prefix string) int {
	for i, c := range calls {
		if strings.HasPrefix(c, prefix) {
			return i
		}
	}
	return -1
}

func TestBook_Success(t *testing.T) {
	e := newEnv(t)

	res, err := e.svc.Book(context.Background(), bookReq())
	require.NoError(t, err)

	assert.Equal(t, model.ReservationConfirmed, res.Status)
	assert.Equal(t, int64(8800), res.AmountCents)
	assert.Equal(t, lessonStart.Add(90*time.Minute), res.End)
	assert.Equal(t, "evt-1", res.CalendarEventID)
	assert.Equal(t, []string{
		"holds.Release",
		"reservations.Create PENDING",
		"calendar.Create",
		"payments.Create",
		"gateway.Charge",
		"payments.MarkCaptured sq-1",
		"reservations.UpdateStatus CONFIRMED",
		"sales.Create",
	}, e.j.list())

	row := e.res.rows[res.ReservationID]
	assert.Equal(t, model.ReservationConfirmed, row.Status)
	require.NotNil(t, row.CalendarEventID)
	assert.Equal(t, "evt-1", *row.CalendarEventID)
	assert.Len(t, e.notifier.sent, 1)
	require.Len(t, e.events.events, 1)
	assert.Equal(t, res.TransactionID, e.events.events[0].TransactionID)
	require.Len(t, e.txlog.txs, 1)
	assert.Equal(t, saga.StatusCommitted, e.txlog.txs[0].Status)
}

func TestBook_MultipleDogsLongerAndPricier(t *testing.T) {
	e := newEnv(t)
	req := bookReq()
	req.MultipleDogs = true

	res, err := e.svc.Book(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, lessonStart.Add(120*time.Minute), res.End)
	assert.Equal(t, int64(11000), res.AmountCents)
}

func TestBook_ChargeExhaustedRollsBackInReverseOrder(t *testing.T) {
	e := newEnv(t)
	e.gw.failCharge = -1

	_, err := e.svc.Book(context.Background(), bookReq())

	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrTransactionFailed)
	assert.ErrorIs(t, err, apperr.ErrExternal)
	assert.ErrorIs(t, err, errDeclined)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "ROLLED_BACK", appErr.Details["rollback_status"])

	require.Len(t, e.gw.charges, 5)
	for _, c := range e.gw.charges {
		assert.Equal(t, e.gw.charges[0].IdempotencyKey, c.IdempotencyKey)
	}
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second, 2 * time.Second, 2 * time.Second}, e.sleeps)

	calls := e.j.list()
	payDel, calDel, resDel := indexOf(calls, "payments.Delete"), indexOf(calls, "calendar.Delete"), indexOf(calls, "reservations.Delete")
	require.NotEqual(t, -1, payDel)
	require.NotEqual(t, -1, resDel)
	assert.Less(t, payDel, calDel)
	assert.Less(t, calDel, resDel)
	assert.Equal(t, -1, indexOf(calls, "gateway.Cancel"))

	assert.Empty(t, e.res.rows)
	assert.Empty(t, e.pay.rows)
	assert.Empty(t, e.notifier.sent)
	require.Len(t, e.txlog.txs, 1)
	assert.Equal(t, saga.StatusRolledBack, e.txlog.txs[0].Status)
}

func TestBook_ChargeRecoversOnRetry(t *testing.T) {
	e := newEnv(t)
	e.gw.failCharge = 2

	_, err := e.svc.Book(context.Background(), bookReq())
	require.NoError(t, err)
	assert.Len(t, e.gw.charges, 3)
}

func TestBook_MissingSourceTokenRollsBack(t *testing.T) {
	e := newEnv(t)
	req := bookReq()
	req.SourceToken = " "

	_, err := e.svc.Book(context.Background(), req)
	assert.ErrorIs(t, err, apperr.ErrTransactionFailed)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Empty(t, e.gw.charges)
	assert.Empty(t, e.res.rows)
	assert.Empty(t, e.pay.rows)
}

func TestBook_CalendarFailureRollsBackReservation(t *testing.T) {
	e := newEnv(t)
	e.cal.createErr = errors.New("calendar quota")

	_, err := e.svc.Book(context.Background(), bookReq())
	assert.ErrorIs(t, err, apperr.ErrTransactionFailed)
	assert.Equal(t, []string{"holds.Release", "reservations.Create PENDING", "reservations.Delete"}, e.j.list())
	assert.Equal(t, []time.Duration{time.Second, time.Second}, e.sleeps, "calendar uses the default policy")
}

func TestBook_SaleFailureIsNotFatal(t *testing.T) {
	e := newEnv(t)
	e.sales.createErr = errors.New("ledger down")
	e.notifier.err = errors.New("broker down")

	res, err := e.svc.Book(context.Background(), bookReq())
	require.NoError(t, err)
	assert.Equal(t, model.ReservationConfirmed, res.Status)
	assert.Equal(t, saga.StatusCommitted, e.txlog.txs[0].Status)
}

func TestBook_LockTimeoutNeverRunsSaga(t *testing.T) {
	e := newEnv(t)
	e.svc.LockTimeout = 20 * time.Millisecond
	lease, err := e.lock.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	defer lease.Release(context.Background())

	_, err = e.svc.Book(context.Background(), bookReq())
	assert.ErrorIs(t, err, apperr.ErrLockTimeout)
	assert.Empty(t, e.j.list())
	assert.Empty(t, e.txlog.txs)
}

func TestBook_RejectsTakenAndBufferedSlots(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.Book(context.Background(), bookReq())
	require.NoError(t, err)

	for _, start := range []time.Time{
		lessonStart,
		lessonStart.Add(-60 * time.Minute),
		lessonStart.Add(90 * time.Minute),
	} {
		req := bookReq()
		req.CustomerID = 8
		req.Start = start
		_, err := e.svc.Book(context.Background(), req)
		assert.ErrorIs(t, err, apperr.ErrValidation, start.Format("15:04"))
	}

	req := bookReq()
	req.Start = lessonStart.Add(2 * time.Hour)
	_, err = e.svc.Book(context.Background(), req)
	assert.NoError(t, err, "12:00 clears the 11:30 buffered end")
}

func TestBook_RejectsPastAndClosedSlots(t *testing.T) {
	e := newEnv(t)
	for name, start := range map[string]time.Time{
		"past":     testNow.Add(-time.Hour),
		"sunday":   time.Date(2026, time.January, 11, 10, 0, 0, 0, time.UTC),
		"too late": time.Date(2026, time.January, 12, 17, 0, 0, 0, time.UTC),
	} {
		req := bookReq()
		req.Start = start
		_, err := e.svc.Book(context.Background(), req)
		assert.ErrorIs(t, err, apperr.ErrValidation, name)
	}
	assert.Empty(t, e.j.list())
}

func TestBook_Validation(t *testing.T) {
	e := newEnv(t)
	for _, req := range []BookRequest{
		{TrainerID: "T1", Start: lessonStart},
		{CustomerID: 7, Start: lessonStart},
		{CustomerID: 7, TrainerID: "T1"},
	} {
		_, err := e.svc.Book(context.Background(), req)
		assert.ErrorIs(t, err, apperr.ErrValidation)
	}
}

func TestHoldSlot(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	h, err := e.svc.HoldSlot(ctx, HoldRequest{CustomerID: 7, TrainerID: "T1", Start: lessonStart})
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(5*time.Minute), h.ExpiresAt)
	assert.Equal(t, lessonStart.Add(90*time.Minute), h.EndAt)

	_, err = e.svc.HoldSlot(ctx, HoldRequest{CustomerID: 8, TrainerID: "T1", Start: lessonStart})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	req := bookReq()
	req.CustomerID = 8
	_, err = e.svc.Book(ctx, req)
	assert.ErrorIs(t, err, apperr.ErrValidation, "another customer's hold blocks the slot")

	_, err = e.svc.Book(ctx, bookReq())
	require.NoError(t, err, "the holder can book")
	assert.Empty(t, e.holds.holds, "booking releases the hold")
}

func TestAvailability(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.Book(context.Background(), bookReq())
	require.NoError(t, err)

	got, err := e.svc.Availability(context.Background(), "T1", 2026, 1, false)
	require.NoError(t, err)
	assert.Equal(t, 90, got.LessonMinutes)
	assert.Equal(t, 60, got.MaxAdvanceDays)

	day := got.Slots["2026-01-12"]
	assert.Contains(t, day, "12:00")
	assert.NotContains(t, day, "10:00")
	assert.NotContains(t, day, "08:30")
	assert.NotContains(t, day, "11:30")
	assert.Equal(t, "09:00", got.Slots["2026-01-13"][0])
	assert.Empty(t, got.Slots["2026-01-11"], "sunday")
	_, hasPast := got.Slots["2026-01-04"]
	assert.False(t, hasPast)
}

func TestAvailability_Validation(t *testing.T) {
	e := newEnv(t)
	for _, tc := range []struct {
		trainer     string
		year, month int
	}{
		{"", 2026, 1}, {"T1", 2019, 1}, {"T1", 2101, 1}, {"T1", 2026, 0}, {"T1", 2026, 13},
	} {
		_, err := e.svc.Availability(context.Background(), tc.trainer, tc.year, tc.month, false)
		assert.ErrorIs(t, err, apperr.ErrValidation)
	}
}

func TestAvailability_BeyondAdvanceWindow(t *testing.T) {
	e := newEnv(t)
	got, err := e.svc.Availability(context.Background(), "T1", 2026, 6, false)
	require.NoError(t, err)
	assert.Empty(t, got.Slots)
}

// seedConfirmed stores a paid lesson on 2026-01-10 for customer 7.
func seedConfirmed(e *env) {
	evt, gw := "evt-1", "sq-1"
	e.res.rows["r-1"] = model.Reservation{
		ID: "r-1", CustomerID: 7, TrainerID: "T1", Status: model.ReservationConfirmed, AmountCents: 8800,
		StartAt: time.Date(2026, time.January, 10, 10, 0, 0, 0, time.UTC), CalendarEventID: &evt,
	}
	e.pay.rows["p-1"] = model.Payment{
		ID: "p-1", ReservationID: "r-1", CustomerID: 7, AmountCents: 8800, Currency: "JPY",
		Status: model.PaymentCaptured, GatewayPaymentID: &gw,
	}
}

func TestQuoteCancellation(t *testing.T) {
	for _, tc := range []struct {
		cancelOn    int
		rate        float64
		fee, refund int64
		tier        cancellation.Tier
	}{
		{6, 0, 0, 8800, cancellation.TierFree},
		{8, 0.5, 4400, 4400, cancellation.TierHalf},
		{9, 1.0, 8800, 0, cancellation.TierDayBefore},
		{10, 1.0, 8800, 0, cancellation.TierSameDay},
	} {
		e := newEnv(t)
		seedConfirmed(e)
		e.now = time.Date(2026, time.January, tc.cancelOn, 20, 0, 0, 0, time.UTC)

		q, err := e.svc.QuoteCancellation(context.Background(), 7, "r-1")
		require.NoError(t, err)
		assert.Equal(t, tc.rate, q.FeeRate)
		assert.Equal(t, tc.fee, q.FeeCents)
		assert.Equal(t, tc.refund, q.RefundCents)
		assert.Equal(t, tc.tier, q.Tier)
	}
}

func TestQuoteCancellation_OtherCustomerIsNotFound(t *testing.T) {
	e := newEnv(t)
	seedConfirmed(e)

	_, err := e.svc.QuoteCancellation(context.Background(), 8, "r-1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = e.svc.QuoteCancellation(context.Background(), 7, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCancel_MistakeIsAutomatic(t *testing.T) {
	e := newEnv(t)
	seedConfirmed(e)
	e.now = time.Date(2026, time.January, 8, 12, 0, 0, 0, time.UTC)

	out, err := e.svc.Cancel(context.Background(), CancelRequest{CustomerID: 7, ReservationID: "r-1", Reason: cancellation.ReasonMistake})
	require.NoError(t, err)

	assert.Equal(t, CancelCompleted, out.Status)
	assert.False(t, out.ManualReview)
	assert.Equal(t, "rf-1", out.RefundID)
	assert.NotEmpty(t, out.TransactionID)
	assert.Equal(t, []string{
		"reservations.MarkCancelled fee=4400",
		"gateway.Refund 4400",
		"payments.MarkRefunded 4400 PARTIALLY_REFUNDED",
		"sales.CancelByReservation",
		"calendar.Delete evt-1",
	}, e.j.list())
	assert.Equal(t, "sq-1", e.gw.refunds[0].PaymentID)
	assert.Equal(t, "refund-p-1", e.gw.refunds[0].IdempotencyKey)
	assert.Equal(t, model.ReservationCancelled, e.res.rows["r-1"].Status)
	assert.Len(t, e.notifier.sent, 1)
}

func TestCancel_FreeCancellationRefundsEverything(t *testing.T) {
	e := newEnv(t)
	seedConfirmed(e)
	e.now = time.Date(2026, time.January, 6, 12, 0, 0, 0, time.UTC)

	_, err := e.svc.Cancel(context.Background(), CancelRequest{CustomerID: 7, ReservationID: "r-1", Reason: cancellation.ReasonMistake})
	require.NoError(t, err)
	assert.Contains(t, e.j.list(), "payments.MarkRefunded 8800 REFUNDED")
}

func TestCancel_SameDayKeepsEverything(t *testing.T) {
	e := newEnv(t)
	seedConfirmed(e)
	e.now = time.Date(2026, time.January, 10, 8, 0, 0, 0, time.UTC)

	out, err := e.svc.Cancel(context.Background(), CancelRequest{CustomerID: 7, ReservationID: "r-1", Reason: cancellation.ReasonMistake})
	require.NoError(t, err)
	assert.Empty(t, e.gw.refunds)
	assert.Empty(t, out.RefundID)
	assert.Equal(t, int64(8800), e.res.rows["r-1"].CancellationFeeCents)
}

func TestCancel_ReasonNeedsReview(t *testing.T) {
	e := newEnv(t)
	seedConfirmed(e)

	out, err := e.svc.Cancel(context.Background(), CancelRequest{
		CustomerID: 7, ReservationID: "r-1", Reason: cancellation.ReasonHealth, Detail: "dog is sick",
	})
	require.NoError(t, err)
	assert.Equal(t, CancelRequested, out.Status)
	assert.Equal(t, "reason_requires_review", out.ReviewReason)
	assert.Equal(t, []string{"reservations.MarkCancellationRequested HEALTH"}, e.j.list())
	require.Len(t, e.notifier.sent, 2)
	assert.True(t, strings.HasPrefix(e.notifier.sent[0], "admin: "))

	_, err = e.svc.Cancel(context.Background(), CancelRequest{CustomerID: 7, ReservationID: "r-1", Reason: cancellation.ReasonMistake})
	assert.ErrorIs(t, err, apperr.ErrValidation, "already awaiting review")
}

func TestCancel_FrequentCancellerNeedsReview(t *testing.T) {
	e := newEnv(t)
	seedConfirmed(e)
	e.res.cancelled = 5

	out, err := e.svc.Cancel(context.Background(), CancelRequest{CustomerID: 7, ReservationID: "r-1", Reason: cancellation.ReasonMistake})
	require.NoError(t, err)
	assert.True(t, out.ManualReview)
	assert.Equal(t, "frequent_canceller", out.ReviewReason)
	assert.Empty(t, e.gw.refunds)
}

func TestCancel_Validation(t *testing.T) {
	e := newEnv(t)
	seedConfirmed(e)

	_, err := e.svc.Cancel(context.Background(), CancelRequest{CustomerID: 7, ReservationID: "r-1", Reason: cancellation.ReasonOther})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = e.svc.Cancel(context.Background(), CancelRequest{CustomerID: 7, ReservationID: "r-1", Reason: "BORED"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Empty(t, e.j.list())
}

func TestCancel_OverlappingRequestsRefundOnce(t *testing.T) {
	e := newEnv(t)
	seedConfirmed(e)
	e.now = time.Date(2026, time.January, 8, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()
	req := CancelRequest{CustomerID: 7, ReservationID: "r-1", Reason: cancellation.ReasonMistake}

	var secondErr error
	interleaved := &interleavedReservations{fakeReservations: e.res}
	interleaved.between = func() { _, secondErr = e.svc.Cancel(ctx, req) }
	e.svc.Reservations = interleaved

	_, err := e.svc.Cancel(ctx, req)
	require.NoError(t, secondErr)
	assert.ErrorIs(t, err, apperr.ErrTransactionFailed)
	assert.ErrorIs(t, err, apperr.ErrValidation, "the stale request finds the row already cancelled")

	require.Len(t, e.gw.refunds, 1)
	assert.Equal(t, int64(4400), e.gw.refunds[0].Amount)
	assert.Equal(t, model.ReservationCancelled, e.res.rows["r-1"].Status)
	assert.Equal(t, int64(4400), e.pay.rows["p-1"].RefundedCents)
}

func TestCancel_OverlappingReviewRequests(t *testing.T) {
	e := newEnv(t)
	seedConfirmed(e)
	ctx := context.Background()
	req := CancelRequest{CustomerID: 7, ReservationID: "r-1", Reason: cancellation.ReasonHealth, Detail: "dog is sick"}

	var secondErr error
	interleaved := &interleavedReservations{fakeReservations: e.res}
	interleaved.between = func() { _, secondErr = e.svc.Cancel(ctx, req) }
	e.svc.Reservations = interleaved

	_, err := e.svc.Cancel(ctx, req)
	require.NoError(t, secondErr)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, []string{"reservations.MarkCancellationRequested HEALTH"}, e.j.list())
}

// requestReview files a HEALTH cancellation for r-1 and clears the journal.
func requestReview(t *testing.T, e *env) {
	t.Helper()
	seedConfirmed(e)
	_, err := e.svc.Cancel(context.Background(), CancelRequest{
		CustomerID: 7, ReservationID: "r-1", Reason: cancellation.ReasonHealth, Detail: "dog is sick",
	})
	require.NoError(t, err)
	e.j.calls = nil
	e.notifier.sent = nil
}

func TestPendingCancellations(t *testing.T) {
	e := newEnv(t)
	requestReview(t, e)

	pending, err := e.svc.PendingCancellations(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	p := pending[0]
	assert.Equal(t, "r-1", p.ReservationID)
	assert.Equal(t, uint64(7), p.CustomerID)
	assert.Equal(t, "HEALTH", p.Reason)
	assert.Equal(t, "dog is sick", p.Detail)
	require.NotNil(t, p.RequestedAt)
	assert.Equal(t, testNow, *p.RequestedAt)
	assert.Equal(t, cancellation.TierFree, p.PolicyQuote.Tier)
}

func TestApproveCancellation_RefundsInFull(t *testing.T) {
	e := newEnv(t)
	requestReview(t, e)
	e.now = time.Date(2026, time.January, 9, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	out, err := e.svc.ApproveCancellation(ctx, ReviewDecision{ReservationID: "r-1"})
	require.NoError(t, err)
	assert.Equal(t, CancelCompleted, out.Status)
	assert.Equal(t, int64(8800), out.Quote.RefundCents)
	assert.Equal(t, int64(0), out.Quote.FeeCents)
	assert.NotEmpty(t, out.TransactionID)
	assert.Equal(t, []string{
		"reservations.MarkCancelled fee=0",
		"gateway.Refund 8800",
		"payments.MarkRefunded 8800 REFUNDED",
		"sales.CancelByReservation",
		"calendar.Delete evt-1",
		"reservations.ResolveCancellationRequest APPROVED",
	}, e.j.list())
	assert.Equal(t, "refund-p-1", e.gw.refunds[0].IdempotencyKey)
	require.Len(t, e.notifier.sent, 1)
	assert.True(t, strings.HasPrefix(e.notifier.sent[0], "7: "))

	pending, err := e.svc.PendingCancellations(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = e.svc.ApproveCancellation(ctx, ReviewDecision{ReservationID: "r-1"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Len(t, e.gw.refunds, 1)
}

func TestApproveCancellation_PartialRefund(t *testing.T) {
	e := newEnv(t)
	requestReview(t, e)
	ctx := context.Background()

	tooMuch := int64(9000)
	_, err := e.svc.ApproveCancellation(ctx, ReviewDecision{ReservationID: "r-1", RefundCents: &tooMuch})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Empty(t, e.j.list())

	refund := int64(2000)
	out, err := e.svc.ApproveCancellation(ctx, ReviewDecision{ReservationID: "r-1", RefundCents: &refund})
	require.NoError(t, err)
	assert.Equal(t, int64(6800), out.Quote.FeeCents)
	assert.Contains(t, e.j.list(), "payments.MarkRefunded 2000 PARTIALLY_REFUNDED")
	assert.Equal(t, int64(6800), e.res.rows["r-1"].CancellationFeeCents)
}

func TestRejectCancellation(t *testing.T) {
	e := newEnv(t)
	requestReview(t, e)
	ctx := context.Background()

	require.NoError(t, e.svc.RejectCancellation(ctx, ReviewDecision{ReservationID: "r-1", Note: "Please reschedule instead."}))
	r := e.res.rows["r-1"]
	assert.Equal(t, model.ReservationConfirmed, r.Status)
	require.NotNil(t, r.CancellationStatus)
	assert.Equal(t, model.CancellationRejected, *r.CancellationStatus)
	require.Len(t, e.notifier.sent, 1)
	assert.Contains(t, e.notifier.sent[0], "declined")
	assert.Contains(t, e.notifier.sent[0], "Please reschedule instead.")
	assert.Empty(t, e.gw.refunds)

	err := e.svc.RejectCancellation(ctx, ReviewDecision{ReservationID: "r-1"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = e.svc.ApproveCancellation(ctx, ReviewDecision{ReservationID: "missing"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	// a rejected request does not block a new one
	_, err = e.svc.Cancel(ctx, CancelRequest{CustomerID: 7, ReservationID: "r-1", Reason: cancellation.ReasonMistake})
	require.NoError(t, err)
	assert.Equal(t, model.ReservationCancelled, e.res.rows["r-1"].Status)
}
