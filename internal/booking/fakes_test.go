package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/trainer-booking/internal/calendar"
	"github.com/iliyamo/trainer-booking/internal/gateway"
	"github.com/iliyamo/trainer-booking/internal/model"
	"github.com/iliyamo/trainer-booking/internal/queue"
	"github.com/iliyamo/trainer-booking/internal/repository"
	"github.com/iliyamo/trainer-booking/internal/saga"
)

// journal records side effects across fakes in order.
type journal struct {
	mu    sync.Mutex
	calls []string
}

func (j *journal) add(format string, args ...any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = append(j.calls, fmt.Sprintf(format, args...))
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.calls...)
}

type fakeReservations struct {
	j         *journal
	rows      map[string]model.Reservation
	cancelled int
	createErr error
}

func (f *fakeReservations) Create(_ context.Context, r *model.Reservation) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.j.add("reservations.Create %s", r.Status)
	f.rows[r.ID] = *r
	return nil
}

func (f *fakeReservations) GetByID(_ context.Context, id string) (model.Reservation, error) {
	r, ok := f.rows[id]
	if !ok {
		return r, repository.ErrNotFound
	}
	return r, nil
}

func (f *fakeReservations) AttachCalendarEvent(_ context.Context, id, eventID string) error {
	r := f.rows[id]
	r.CalendarEventID = &eventID
	f.rows[id] = r
	return nil
}

func (f *fakeReservations) UpdateStatus(_ context.Context, id, status string) error {
	f.j.add("reservations.UpdateStatus %s", status)
	r, ok := f.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	r.Status = status
	f.rows[id] = r
	return nil
}

func (f *fakeReservations) Delete(_ context.Context, id string) error {
	f.j.add("reservations.Delete")
	delete(f.rows, id)
	return nil
}

func (f *fakeReservations) ListActiveByTrainer(_ context.Context, trainerID string, from, to time.Time) ([]model.Reservation, error) {
	var out []model.Reservation
	for _, r := range f.rows {
		if r.TrainerID == trainerID && r.Active() && r.StartAt.Before(to) && r.EndAt.After(from) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeReservations) CountCancelledSince(context.Context, uint64, time.Time) (int, error) {
	return f.cancelled, nil
}

func (f *fakeReservations) MarkCancelled(_ context.Context, id string, feeCents int64, at time.Time) error {
	r, ok := f.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	if r.Status != model.ReservationConfirmed {
		return repository.ErrConflict
	}
	f.j.add("reservations.MarkCancelled fee=%d", feeCents)
	r.Status = model.ReservationCancelled
	r.CancellationFeeCents = feeCents
	r.CancelledAt = &at
	f.rows[id] = r
	return nil
}

func (f *fakeReservations) MarkCancellationRequested(_ context.Context, id, reason, detail string, at time.Time) error {
	r, ok := f.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	if r.Status != model.ReservationConfirmed ||
		(r.CancellationStatus != nil && *r.CancellationStatus == model.CancellationRequested) {
		return repository.ErrConflict
	}
	f.j.add("reservations.MarkCancellationRequested %s", reason)
	st := model.CancellationRequested
	r.CancellationStatus = &st
	r.CancellationReason = &reason
	r.CancellationDetail = &detail
	r.CancellationRequestedAt = &at
	f.rows[id] = r
	return nil
}

func (f *fakeReservations) ListCancellationRequests(context.Context) ([]model.Reservation, error) {
	var out []model.Reservation
	for _, r := range f.rows {
		if r.Active() && r.CancellationStatus != nil && *r.CancellationStatus == model.CancellationRequested {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CancellationRequestedAt.After(*out[k].CancellationRequestedAt) })
	return out, nil
}

func (f *fakeReservations) ResolveCancellationRequest(_ context.Context, id, status string) error {
	r, ok := f.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	if r.CancellationStatus == nil || *r.CancellationStatus != model.CancellationRequested {
		return repository.ErrConflict
	}
	f.j.add("reservations.ResolveCancellationRequest %s", status)
	r.CancellationStatus = &status
	f.rows[id] = r
	return nil
}

// interleavedReservations runs between once, right after the first
// GetByID returns, to simulate a request that lands mid-flight.
type interleavedReservations struct {
	*fakeReservations
	between func()
}

func (f *interleavedReservations) GetByID(ctx context.Context, id string) (model.Reservation, error) {
	r, err := f.fakeReservations.GetByID(ctx, id)
	if fn := f.between; fn != nil {
		f.between = nil
		fn()
	}
	return r, err
}

type fakePayments struct {
	j    *journal
	rows map[string]model.Payment
}

func (f *fakePayments) Create(_ context.Context, p *model.Payment) error {
	f.j.add("payments.Create")
	f.rows[p.ID] = *p
	return nil
}

func (f *fakePayments) MarkCaptured(_ context.Context, id, gatewayID string) error {
	f.j.add("payments.MarkCaptured %s", gatewayID)
	p := f.rows[id]
	p.Status = model.PaymentCaptured
	p.GatewayPaymentID = &gatewayID
	f.rows[id] = p
	return nil
}

func (f *fakePayments) MarkRefunded(_ context.Context, id string, cents int64, status string) error {
	f.j.add("payments.MarkRefunded %d %s", cents, status)
	p := f.rows[id]
	p.Status = status
	p.RefundedCents += cents
	f.rows[id] = p
	return nil
}

func (f *fakePayments) Delete(_ context.Context, id string) error {
	f.j.add("payments.Delete")
	delete(f.rows, id)
	return nil
}

func (f *fakePayments) GetByReservationID(_ context.Context, reservationID string) (model.Payment, error) {
	for _, p := range f.rows {
		if p.ReservationID == reservationID {
			return p, nil
		}
	}
	return model.Payment{}, repository.ErrNotFound
}

type fakeSales struct {
	j         *journal
	createErr error
}

func (f *fakeSales) Create(_ context.Context, s *model.Sale) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.j.add("sales.Create")
	return nil
}

func (f *fakeSales) MarkCancelled(context.Context, string) error {
	f.j.add("sales.MarkCancelled")
	return nil
}

func (f *fakeSales) CancelByReservation(context.Context, string) (int64, error) {
	f.j.add("sales.CancelByReservation")
	return 1, nil
}

type fakeHolds struct {
	j     *journal
	holds []model.SlotHold
}

func (f *fakeHolds) Create(_ context.Context, h *model.SlotHold) error {
	for _, o := range f.holds {
		if o.TrainerID == h.TrainerID && o.StartAt.Equal(h.StartAt) {
			return repository.ErrConflict
		}
	}
	h.ID = uint64(len(f.holds) + 1)
	h.HoldToken = "tok"
	f.holds = append(f.holds, *h)
	return nil
}

func (f *fakeHolds) ReleaseForSlot(_ context.Context, customerID uint64, trainerID string, start time.Time) (int64, error) {
	f.j.add("holds.Release")
	var n int64
	kept := f.holds[:0]
	for _, h := range f.holds {
		if h.CustomerID == customerID && h.TrainerID == trainerID && h.StartAt.Equal(start) {
			n++
			continue
		}
		kept = append(kept, h)
	}
	f.holds = kept
	return n, nil
}

func (f *fakeHolds) ActiveOverlapping(_ context.Context, trainerID string, from, to time.Time) ([]model.SlotHold, error) {
	var out []model.SlotHold
	for _, h := range f.holds {
		if h.TrainerID == trainerID && h.StartAt.Before(to) && h.EndAt.After(from) {
			out = append(out, h)
		}
	}
	return out, nil
}

type fakeGateway struct {
	j          *journal
	failCharge int // number of charge calls that fail before success; <0 fails forever
	charges    []gateway.ChargeRequest
	refunds    []gateway.RefundRequest
}

var errDeclined = errors.New("card declined")

func (f *fakeGateway) Charge(_ context.Context, req gateway.ChargeRequest) (*gateway.Charge, error) {
	f.charges = append(f.charges, req)
	if f.failCharge < 0 || len(f.charges) <= f.failCharge {
		return nil, errDeclined
	}
	f.j.add("gateway.Charge")
	return &gateway.Charge{PaymentID: "sq-1", Status: "COMPLETED", Amount: req.Amount}, nil
}

func (f *fakeGateway) Cancel(context.Context, string) error {
	f.j.add("gateway.Cancel")
	return nil
}

func (f *fakeGateway) Refund(_ context.Context, req gateway.RefundRequest) (*gateway.Refund, error) {
	f.j.add("gateway.Refund %d", req.Amount)
	f.refunds = append(f.refunds, req)
	return &gateway.Refund{RefundID: "rf-1", Status: "PENDING", Amount: req.Amount}, nil
}

type fakeCalendar struct {
	j         *journal
	createErr error
}

func (f *fakeCalendar) CreateEvent(context.Context, calendar.EventDetails) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.j.add("calendar.Create")
	return "evt-1", nil
}

func (f *fakeCalendar) DeleteEvent(_ context.Context, id string) error {
	f.j.add("calendar.Delete %s", id)
	return nil
}

type fakeNotifier struct {
	sent []string
	err  error
}

func (f *fakeNotifier) Send(_ context.Context, recipientID, message string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, recipientID+": "+message)
	return nil
}

type fakeEvents struct{ events []queue.BookingConfirmedEvent }

func (f *fakeEvents) PublishBookingConfirmed(_ context.Context, ev queue.BookingConfirmedEvent) error {
	f.events = append(f.events, ev)
	return nil
}

type memTxLog struct{ txs []*saga.Transaction }

func (m *memTxLog) SaveTransaction(_ context.Context, tx *saga.Transaction) error {
	m.txs = append(m.txs, tx)
	return nil
}
