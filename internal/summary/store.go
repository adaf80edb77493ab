// Package summary coordinates the order summary shown at checkout: the
// coupons applicable to the selected items, the chosen discount and the final
// price derived from them.
//
// A Store is created when checkout opens and closed when it goes away. It
// loads coupons once, asynchronously, on construction and submits the order on
// request. Results of collaborator calls that arrive after Close are dropped.
package summary

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/coupon"
	"github.com/xenking/kart-checkout/internal/domain/money"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/event"
)

const instrumentationName = "github.com/xenking/kart-checkout/internal/summary"

// Input is the cart selection a Store is opened for.
type Input struct {
	// ItemIDs are the distinct cart item ids included in the order.
	ItemIDs []int64
	// Subtotal is the pre-discount, pre-shipping price of the items.
	Subtotal money.Money
	// ItemPrices are optional unit prices used by item-based coupons.
	ItemPrices []money.Money
}

func (in Input) validate() error {
	if len(in.ItemIDs) == 0 {
		return order.ErrEmptySelection
	}
	seen := make(map[int64]struct{}, len(in.ItemIDs))
	for _, id := range in.ItemIDs {
		if _, ok := seen[id]; ok {
			return &DuplicateItemError{ItemID: id}
		}
		seen[id] = struct{}{}
	}
	if in.Subtotal.IsNegative() {
		return ErrNegativeSubtotal
	}
	return nil
}

// Listener receives a snapshot after every state change. Listeners are called
// sequentially in change order. They may read the store but must not call
// Subscribe or mutating Store methods.
type Listener func(Snapshot)

type subscription struct {
	id uint64
	fn Listener
}

// Store owns the order summary state of a single checkout.
type Store struct {
	provider  coupon.Provider
	submitter order.Submitter
	lg        *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time

	couponLoads metric.Int64Counter
	submissions metric.Int64Counter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// notifyMu serializes changes with their delivery. It is always acquired
	// before mu and is never needed by readers.
	notifyMu sync.Mutex

	mu         sync.Mutex
	state      Snapshot
	itemPrices []money.Money
	closed     bool
	completed  bool
	listeners  []subscription
	nextID     uint64
}

// New opens an order summary for in and starts loading coupons. The store
// lives until Close is called or ctx is cancelled.
func New(
	ctx context.Context,
	provider coupon.Provider,
	submitter order.Submitter,
	in Input,
	opts ...Option,
) (*Store, error) {
	if provider == nil || submitter == nil {
		return nil, ErrMissingCollaborator
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	o := options{
		shippingFee:    DefaultShippingFee,
		logger:         zctx.From(ctx),
		meterProvider:  otel.GetMeterProvider(),
		tracerProvider: otel.GetTracerProvider(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.shippingFee.IsNegative() {
		return nil, ErrNegativeShipping
	}
	if in.Subtotal > money.Max-o.shippingFee {
		return nil, ErrTotalOverflow
	}

	meter := o.meterProvider.Meter(instrumentationName)
	couponLoads, err := meter.Int64Counter("checkout.summary.coupon_loads",
		metric.WithDescription("Coupon fetches by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create coupon loads counter")
	}
	submissions, err := meter.Int64Counter("checkout.summary.submissions",
		metric.WithDescription("Order submissions by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create submissions counter")
	}

	s := &Store{
		provider:    provider,
		submitter:   submitter,
		lg:          o.logger.Named("summary"),
		tracer:      o.tracerProvider.Tracer(instrumentationName),
		now:         o.now,
		couponLoads: couponLoads,
		submissions: submissions,
		state: Snapshot{
			ItemIDs:     slices.Clone(in.ItemIDs),
			Subtotal:    in.Subtotal,
			ShippingFee: o.shippingFee,
			Coupons:     CouponsState{Status: CouponsNotLoaded},
		},
		itemPrices: slices.Clone(in.ItemPrices),
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	// No listener can exist yet, so the transition to Loading is silent.
	s.state.Coupons.Status = CouponsLoading
	s.wg.Add(1)
	go s.loadCoupons(slices.Clone(in.ItemIDs))

	return s, nil
}

// loadCoupons fetches coupons once. A failure moves coupons to CouponsFailed
// with the reason attached; it is never retried.
func (s *Store) loadCoupons(itemIDs []int64) {
	defer s.wg.Done()

	ctx, span := s.tracer.Start(s.ctx, "summary.LoadCoupons",
		trace.WithAttributes(attribute.Int("checkout.items", len(itemIDs))),
	)
	defer span.End()

	found, err := s.provider.FindCoupons(ctx, itemIDs)
	s.couponLoads.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", err == nil)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "find coupons")
		s.lg.Warn("Load coupons failed", zap.Error(err))

		reason := errors.Wrap(err, "find coupons")
		s.update(func(st *Snapshot) {
			st.Coupons = CouponsState{Status: CouponsFailed, Err: reason}
		})
		return
	}

	views := make([]coupon.View, len(found))
	for i, c := range found {
		views[i] = coupon.ToView(c)
	}
	s.lg.Debug("Coupons loaded", zap.Int("count", len(views)))

	s.update(func(st *Snapshot) {
		st.Coupons = CouponsState{Status: CouponsLoaded, Coupons: views}
	})
}

// SelectDiscount sets the discount amount. Amounts outside
// [0, shipping+subtotal] are rejected with *InvalidDiscountError.
func (s *Store) SelectDiscount(amount money.Money) error {
	return s.mutate(func() error {
		if limit := s.state.MaxDiscount(); amount.IsNegative() || amount > limit {
			return &InvalidDiscountError{Amount: amount, Max: limit}
		}
		s.state.DiscountAmount = amount
		s.state.SelectedCouponID = 0
		return nil
	})
}

// SelectCoupon applies the discount of a loaded coupon.
func (s *Store) SelectCoupon(id int64) error {
	return s.mutate(func() error {
		if s.state.Coupons.Status != CouponsLoaded {
			return ErrCouponsNotLoaded
		}
		v, ok := s.state.findCoupon(id)
		if !ok {
			return &CouponNotFoundError{CouponID: id}
		}
		amount, err := coupon.Apply(v.Coupon(), coupon.Order{
			Subtotal:    s.state.Subtotal,
			ShippingFee: s.state.ShippingFee,
			ItemPrices:  s.itemPrices,
		})
		if err != nil {
			return errors.Wrapf(err, "apply coupon %d", id)
		}

		s.state.DiscountAmount = amount
		s.state.SelectedCouponID = id
		return nil
	})
}

// ClearCoupon removes any selected coupon or discount.
func (s *Store) ClearCoupon() error {
	return s.mutate(func() error {
		s.state.DiscountAmount = money.Zero
		s.state.SelectedCouponID = 0
		return nil
	})
}

// CompleteOrder submits the order asynchronously. When the submission
// finishes, the snapshot carries a Completion event. Only one submission may
// be in flight, and none is accepted after a successful one.
func (s *Store) CompleteOrder() error {
	return s.mutate(func() error {
		if err := s.checkSubmittableLocked(); err != nil {
			return err
		}

		sub, err := order.NewSubmission(
			s.state.ItemIDs,
			s.state.SelectedCouponID,
			s.state.DiscountAmount,
			s.state.FinalTotal(),
			s.now(),
		)
		if err != nil {
			return errors.Wrap(err, "build submission")
		}

		s.state.Submitting = true
		s.wg.Add(1)
		go s.submit(sub)
		return nil
	})
}

func (s *Store) checkSubmittableLocked() error {
	switch {
	case s.state.Submitting:
		return ErrSubmitInProgress
	case s.completed:
		return ErrAlreadyCompleted
	default:
		return nil
	}
}

func (s *Store) submit(sub order.Submission) {
	defer s.wg.Done()

	ctx, span := s.tracer.Start(s.ctx, "summary.CompleteOrder",
		trace.WithAttributes(attribute.String("order.id", sub.ID)),
	)
	defer span.End()

	err := s.submitter.Submit(ctx, sub)
	s.submissions.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", err == nil)))

	c := Completion{Success: err == nil, OrderID: sub.ID}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit order")
		s.lg.Warn("Order submission failed", zap.String("order_id", sub.ID), zap.Error(err))
		c.Err = errors.Wrap(err, "submit order")
	} else {
		s.lg.Info("Order submitted",
			zap.String("order_id", sub.ID),
			zap.Int64("total", int64(sub.FinalTotal)),
		)
	}

	applied := s.update(func(st *Snapshot) {
		st.Submitting = false
		st.Completion = event.New(c)
		s.completed = c.Success
	})
	if !applied {
		s.lg.Debug("Dropped submission result after close", zap.String("order_id", sub.ID))
	}
}

// Subscribe registers fn and immediately delivers the current snapshot to it.
// The returned function removes the subscription.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return func() {}
	}
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, subscription{id: id, fn: fn})
	snap := s.snapshotLocked()
	s.mu.Unlock()

	fn(snap)

	var once sync.Once
	return func() {
		once.Do(func() { s.unsubscribe(id) })
	}
}

func (s *Store) unsubscribe(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listeners = slices.DeleteFunc(s.listeners, func(sub subscription) bool {
		return sub.id == id
	})
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := s.state
	snap.ItemIDs = slices.Clone(s.state.ItemIDs)
	return snap
}

// update applies fn and notifies listeners. It reports false, without calling
// fn, once the store is closed.
func (s *Store) update(fn func(st *Snapshot)) bool {
	err := s.mutate(func() error {
		fn(&s.state)
		return nil
	})
	return err == nil
}

// mutate runs fn with mu held and, if it succeeds, delivers the new state to
// listeners after mu is released. notifyMu is taken first and held through
// delivery, so changes are applied and delivered one at a time while
// listeners remain free to read the store.
func (s *Store) mutate(fn func() error) error {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if err := fn(); err != nil {
		s.mu.Unlock()
		return err
	}
	snap := s.snapshotLocked()
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()

	for _, sub := range listeners {
		sub.fn(snap)
	}
	return nil
}

// Close cancels in-flight collaborator calls and detaches all listeners.
// Results arriving afterwards are dropped. Close is idempotent.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.listeners = nil
	s.mu.Unlock()

	s.cancel()
}

// Closed reports whether Close was called.
func (s *Store) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed
}

// Wait blocks until in-flight collaborator calls return. Call it after Close.
func (s *Store) Wait() {
	s.wg.Wait()
}
