package summary

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xenking/kart-checkout/internal/domain/coupon"
	"github.com/xenking/kart-checkout/internal/domain/money"
	"github.com/xenking/kart-checkout/internal/domain/order"
)

// --- Fakes ---

type fakeProvider struct {
	calls   atomic.Int32
	coupons []coupon.Coupon
	err     error

	// release, when set, blocks FindCoupons until closed.
	release chan struct{}
	// ignoreCtx keeps FindCoupons blocked on release even after cancellation.
	ignoreCtx bool
}

func (f *fakeProvider) FindCoupons(ctx context.Context, _ []int64) ([]coupon.Coupon, error) {
	f.calls.Add(1)
	if f.release != nil {
		if f.ignoreCtx {
			<-f.release
		} else {
			select {
			case <-f.release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return f.coupons, f.err
}

type fakeSubmitter struct {
	mu        sync.Mutex
	submitted []order.Submission
	err       error
	release   chan struct{}
}

func (f *fakeSubmitter) Submit(ctx context.Context, s order.Submission) error {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, s)
	return f.err
}

func (f *fakeSubmitter) Submitted() []order.Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]order.Submission(nil), f.submitted...)
}

// recorder collects snapshots delivered to a listener.
type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) listen(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) Snapshots() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Snapshot(nil), r.snaps...)
}

// --- Helpers ---

var testInput = Input{ItemIDs: []int64{1, 2, 3}, Subtotal: 15000}

func newTestStore(t *testing.T, p coupon.Provider, sub order.Submitter, opts ...Option) *Store {
	t.Helper()

	opts = append([]Option{
		WithLogger(zaptest.NewLogger(t)),
		WithShippingFee(3000),
	}, opts...)
	s, err := New(context.Background(), p, sub, testInput, opts...)
	require.NoError(t, err)

	t.Cleanup(func() {
		s.Close()
		s.Wait()
	})
	return s
}

func waitCoupons(t *testing.T, s *Store) Snapshot {
	t.Helper()
	require.Eventually(t, func() bool {
		return s.Snapshot().Coupons.Status.IsTerminal()
	}, time.Second, 5*time.Millisecond)
	return s.Snapshot()
}

func waitCompletion(t *testing.T, s *Store) Snapshot {
	t.Helper()
	require.Eventually(t, func() bool {
		return s.Snapshot().Completion != nil
	}, time.Second, 5*time.Millisecond)
	return s.Snapshot()
}

// --- Tests ---

func TestStore_InitialTotal(t *testing.T) {
	p := &fakeProvider{release: make(chan struct{})}
	s := newTestStore(t, p, &fakeSubmitter{})

	snap := s.Snapshot()
	assert.Equal(t, CouponsLoading, snap.Coupons.Status)
	assert.Equal(t, []int64{1, 2, 3}, snap.ItemIDs)
	assert.Equal(t, money.Money(15000), snap.Subtotal)
	assert.Equal(t, money.Money(3000), snap.ShippingFee)
	assert.Equal(t, money.Zero, snap.DiscountAmount)
	assert.Equal(t, money.Money(18000), snap.FinalTotal())
}

func TestStore_CouponsLoaded(t *testing.T) {
	p := &fakeProvider{coupons: []coupon.Coupon{
		{ID: 1, Code: "FIXED2000", DiscountType: coupon.DiscountFixed, Discount: 2000},
	}}
	s := newTestStore(t, p, &fakeSubmitter{})

	snap := waitCoupons(t, s)
	require.Equal(t, CouponsLoaded, snap.Coupons.Status)
	require.Len(t, snap.Coupons.Coupons, 1)
	assert.Equal(t, int64(1), snap.Coupons.Coupons[0].ID)
	assert.Equal(t, "FIXED2000", snap.Coupons.Coupons[0].Code)
	assert.NoError(t, snap.Coupons.Err)
}

func TestStore_SelectDiscount(t *testing.T) {
	s := newTestStore(t, &fakeProvider{}, &fakeSubmitter{})

	require.NoError(t, s.SelectDiscount(2000))

	snap := s.Snapshot()
	assert.Equal(t, money.Money(2000), snap.DiscountAmount)
	assert.Equal(t, money.Money(16000), snap.FinalTotal())
	assert.Equal(t, money.Money(15000), snap.Subtotal)
	assert.Equal(t, money.Money(3000), snap.ShippingFee)
}

func TestStore_FinalTotalForValidDiscounts(t *testing.T) {
	s := newTestStore(t, &fakeProvider{}, &fakeSubmitter{})

	for d := money.Zero; d <= 18000; d += 500 {
		require.NoError(t, s.SelectDiscount(d))

		snap := s.Snapshot()
		assert.Equal(t, 3000+15000-d, snap.FinalTotal(), "discount %d", d)
		assert.Equal(t, money.Money(15000), snap.Subtotal)
		assert.Equal(t, money.Money(3000), snap.ShippingFee)
	}
}

func TestStore_SelectDiscount_OutOfRange(t *testing.T) {
	s := newTestStore(t, &fakeProvider{}, &fakeSubmitter{})
	require.NoError(t, s.SelectDiscount(1000))

	for _, amount := range []money.Money{-1, 18001} {
		err := s.SelectDiscount(amount)

		var idErr *InvalidDiscountError
		require.ErrorAs(t, err, &idErr)
		assert.Equal(t, amount, idErr.Amount)
		assert.Equal(t, money.Money(18000), idErr.Max)
	}

	assert.Equal(t, money.Money(1000), s.Snapshot().DiscountAmount)
}

func TestStore_CouponLoadFailure(t *testing.T) {
	fetchErr := errors.New("coupon service unavailable")
	s := newTestStore(t, &fakeProvider{err: fetchErr}, &fakeSubmitter{})

	snap := waitCoupons(t, s)
	assert.NotEqual(t, CouponsLoaded, snap.Coupons.Status)
	assert.Equal(t, CouponsFailed, snap.Coupons.Status)
	assert.Empty(t, snap.Coupons.Coupons)
	require.ErrorIs(t, snap.Coupons.Err, fetchErr)

	// The rest of the summary keeps working.
	require.NoError(t, s.SelectDiscount(2000))
	assert.Equal(t, money.Money(16000), s.Snapshot().FinalTotal())
}

func TestStore_LoadsCouponsOnce(t *testing.T) {
	p := &fakeProvider{}
	s := newTestStore(t, p, &fakeSubmitter{})

	for range 5 {
		unsubscribe := s.Subscribe(func(Snapshot) {})
		defer unsubscribe()
	}
	waitCoupons(t, s)

	assert.Equal(t, int32(1), p.calls.Load())
}

func TestStore_SubscribeDeliversInOrder(t *testing.T) {
	p := &fakeProvider{release: make(chan struct{})}
	s := newTestStore(t, p, &fakeSubmitter{})

	var rec recorder
	unsubscribe := s.Subscribe(rec.listen)

	require.NoError(t, s.SelectDiscount(1000))
	require.NoError(t, s.SelectDiscount(2500))
	unsubscribe()
	require.NoError(t, s.SelectDiscount(4000))

	snaps := rec.Snapshots()
	require.Len(t, snaps, 3)
	assert.Equal(t, money.Money(18000), snaps[0].FinalTotal())
	assert.Equal(t, money.Money(17000), snaps[1].FinalTotal())
	assert.Equal(t, money.Money(15500), snaps[2].FinalTotal())
}

func TestStore_SubscriberSeesCouponTransition(t *testing.T) {
	p := &fakeProvider{
		release: make(chan struct{}),
		coupons: []coupon.Coupon{{ID: 1, DiscountType: coupon.DiscountFixed, Discount: 2000}},
	}
	s := newTestStore(t, p, &fakeSubmitter{})

	var rec recorder
	defer s.Subscribe(rec.listen)()
	close(p.release)
	waitCoupons(t, s)

	require.Eventually(t, func() bool { return len(rec.Snapshots()) == 2 }, time.Second, 5*time.Millisecond)
	snaps := rec.Snapshots()
	assert.Equal(t, CouponsLoading, snaps[0].Coupons.Status)
	assert.Equal(t, CouponsLoaded, snaps[1].Coupons.Status)
}

func TestStore_ListenerReadsDuringConcurrentChange(t *testing.T) {
	s := newTestStore(t, &fakeProvider{release: make(chan struct{})}, &fakeSubmitter{})

	var (
		entered = make(chan struct{})
		mu      sync.Mutex
		read    []money.Money
	)
	defer s.Subscribe(func(snap Snapshot) {
		if snap.DiscountAmount != 1000 {
			return
		}
		close(entered)
		// Give the second change time to queue up behind this delivery.
		time.Sleep(20 * time.Millisecond)
		cur := s.Snapshot()

		mu.Lock()
		defer mu.Unlock()
		read = append(read, cur.DiscountAmount)
	})()

	done := make(chan error, 2)
	go func() { done <- s.SelectDiscount(1000) }()
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("listener not called")
	}
	go func() { done <- s.SelectDiscount(2000) }()

	for range 2 {
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("store blocked while a listener was reading it")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []money.Money{1000}, read)
	assert.Equal(t, money.Money(2000), s.Snapshot().DiscountAmount)
}

func TestStore_ConcurrentChangesDeliveredInOrder(t *testing.T) {
	p := &fakeProvider{
		release: make(chan struct{}),
		coupons: []coupon.Coupon{{ID: 1, DiscountType: coupon.DiscountFixed, Discount: 2000}},
	}
	s := newTestStore(t, p, &fakeSubmitter{})

	type delivery struct {
		got, read Snapshot
	}
	var (
		mu         sync.Mutex
		deliveries []delivery
	)
	defer s.Subscribe(func(snap Snapshot) {
		cur := s.Snapshot()

		mu.Lock()
		defer mu.Unlock()
		deliveries = append(deliveries, delivery{got: snap, read: cur})
	})()

	const changes = 50
	done := make(chan error, 1)
	go func() {
		for i := 1; i <= changes; i++ {
			if err := s.SelectDiscount(money.Money(i * 100)); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()
	close(p.release)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("concurrent changes did not finish")
	}
	waitCoupons(t, s)

	// Initial snapshot, every discount change and the coupon load.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(deliveries) == changes+2
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	var (
		lastDiscount money.Money
		loaded       bool
	)
	for i, d := range deliveries {
		assert.Equal(t, d.got.DiscountAmount, d.read.DiscountAmount, "delivery %d", i)
		assert.Equal(t, d.got.Coupons.Status, d.read.Coupons.Status, "delivery %d", i)

		assert.GreaterOrEqual(t, d.got.DiscountAmount, lastDiscount, "delivery %d", i)
		lastDiscount = d.got.DiscountAmount

		if loaded {
			assert.Equal(t, CouponsLoaded, d.got.Coupons.Status, "delivery %d", i)
		}
		loaded = d.got.Coupons.Status == CouponsLoaded
	}
	last := deliveries[len(deliveries)-1].got
	assert.Equal(t, money.Money(changes*100), last.DiscountAmount)
	assert.Equal(t, CouponsLoaded, last.Coupons.Status)
}

func TestStore_SelectCoupon(t *testing.T) {
	p := &fakeProvider{coupons: []coupon.Coupon{
		{ID: 1, Code: "FIXED2000", DiscountType: coupon.DiscountFixed, Discount: 2000},
		{ID: 2, Code: "FREESHIPPING", DiscountType: coupon.DiscountFreeShipping},
		{ID: 3, Code: "MIRACLESALE", DiscountType: coupon.DiscountPercentage, Discount: 30},
	}}
	s := newTestStore(t, p, &fakeSubmitter{})
	waitCoupons(t, s)

	tests := []struct {
		id        int64
		wantTotal money.Money
	}{
		{id: 1, wantTotal: 16000},
		{id: 2, wantTotal: 15000},
		{id: 3, wantTotal: 13500},
	}
	for _, tt := range tests {
		require.NoError(t, s.SelectCoupon(tt.id))

		snap := s.Snapshot()
		assert.Equal(t, tt.id, snap.SelectedCouponID)
		assert.Equal(t, tt.wantTotal, snap.FinalTotal(), "coupon %d", tt.id)
	}

	var nfErr *CouponNotFoundError
	require.ErrorAs(t, s.SelectCoupon(42), &nfErr)
	assert.Equal(t, int64(42), nfErr.CouponID)

	require.NoError(t, s.ClearCoupon())
	snap := s.Snapshot()
	assert.Zero(t, snap.SelectedCouponID)
	assert.Equal(t, money.Money(18000), snap.FinalTotal())
}

func TestStore_SelectDiscountClearsCoupon(t *testing.T) {
	p := &fakeProvider{coupons: []coupon.Coupon{
		{ID: 1, DiscountType: coupon.DiscountFixed, Discount: 2000},
	}}
	s := newTestStore(t, p, &fakeSubmitter{})
	waitCoupons(t, s)

	require.NoError(t, s.SelectCoupon(1))
	require.NoError(t, s.SelectDiscount(500))

	snap := s.Snapshot()
	assert.Zero(t, snap.SelectedCouponID)
	assert.Equal(t, money.Money(500), snap.DiscountAmount)
}

func TestStore_SelectCoupon_NotLoaded(t *testing.T) {
	s := newTestStore(t, &fakeProvider{release: make(chan struct{})}, &fakeSubmitter{})

	require.ErrorIs(t, s.SelectCoupon(1), ErrCouponsNotLoaded)
}

func TestStore_CompleteOrder(t *testing.T) {
	sub := &fakeSubmitter{}
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s := newTestStore(t, &fakeProvider{}, sub, WithClock(func() time.Time { return now }))
	require.NoError(t, s.SelectDiscount(2000))

	require.NoError(t, s.CompleteOrder())
	snap := waitCompletion(t, s)
	assert.False(t, snap.Submitting)

	c, ok := snap.Completion.Consume()
	require.True(t, ok)
	assert.True(t, c.Success)
	assert.NoError(t, c.Err)

	_, ok = snap.Completion.Consume()
	assert.False(t, ok, "completion must not be delivered twice")

	// A late subscriber gets the same, already consumed event.
	var rec recorder
	defer s.Subscribe(rec.listen)()
	late := rec.Snapshots()
	require.Len(t, late, 1)
	_, ok = late[0].Completion.Consume()
	assert.False(t, ok)

	submitted := sub.Submitted()
	require.Len(t, submitted, 1)
	assert.Equal(t, c.OrderID, submitted[0].ID)
	assert.Equal(t, []int64{1, 2, 3}, submitted[0].ItemIDs)
	assert.Equal(t, money.Money(2000), submitted[0].DiscountAmount)
	assert.Equal(t, money.Money(16000), submitted[0].FinalTotal)
	assert.Equal(t, now, submitted[0].CreatedAt)

	require.ErrorIs(t, s.CompleteOrder(), ErrAlreadyCompleted)
}

func TestStore_CompleteOrder_InProgress(t *testing.T) {
	sub := &fakeSubmitter{release: make(chan struct{})}
	s := newTestStore(t, &fakeProvider{}, sub)

	require.NoError(t, s.CompleteOrder())
	assert.True(t, s.Snapshot().Submitting)
	require.ErrorIs(t, s.CompleteOrder(), ErrSubmitInProgress)

	close(sub.release)
	waitCompletion(t, s)
	assert.Len(t, sub.Submitted(), 1)
}

func TestStore_CompleteOrder_Failure(t *testing.T) {
	submitErr := errors.New("payment declined")
	sub := &fakeSubmitter{err: submitErr}
	s := newTestStore(t, &fakeProvider{}, sub)

	require.NoError(t, s.CompleteOrder())
	snap := waitCompletion(t, s)

	c, ok := snap.Completion.Consume()
	require.True(t, ok)
	assert.False(t, c.Success)
	require.ErrorIs(t, c.Err, submitErr)

	// A failed submission may be retried explicitly.
	sub.mu.Lock()
	sub.err = nil
	sub.mu.Unlock()
	require.NoError(t, s.CompleteOrder())
	require.Eventually(t, func() bool {
		c, ok := s.Snapshot().Completion.Consume()
		return ok && c.Success
	}, time.Second, 5*time.Millisecond)
}

func TestStore_CloseDropsLateCouponResult(t *testing.T) {
	p := &fakeProvider{
		release:   make(chan struct{}),
		ignoreCtx: true,
		coupons:   []coupon.Coupon{{ID: 1, DiscountType: coupon.DiscountFixed, Discount: 2000}},
	}
	s := newTestStore(t, p, &fakeSubmitter{})

	var rec recorder
	s.Subscribe(rec.listen)

	s.Close()
	close(p.release)
	s.Wait()

	assert.Equal(t, CouponsLoading, s.Snapshot().Coupons.Status)
	assert.Len(t, rec.Snapshots(), 1, "no delivery after close")
	assert.True(t, s.Closed())
}

func TestStore_CloseCancelsSubmission(t *testing.T) {
	sub := &fakeSubmitter{release: make(chan struct{})}
	s := newTestStore(t, &fakeProvider{}, sub)
	require.NoError(t, s.CompleteOrder())

	s.Close()
	s.Wait()

	snap := s.Snapshot()
	assert.Nil(t, snap.Completion)
	assert.Empty(t, sub.Submitted())
}

func TestStore_Closed(t *testing.T) {
	s := newTestStore(t, &fakeProvider{}, &fakeSubmitter{})
	s.Close()
	s.Close()

	assert.ErrorIs(t, s.SelectDiscount(0), ErrClosed)
	assert.ErrorIs(t, s.SelectCoupon(1), ErrClosed)
	assert.ErrorIs(t, s.ClearCoupon(), ErrClosed)
	assert.ErrorIs(t, s.CompleteOrder(), ErrClosed)

	called := false
	s.Subscribe(func(Snapshot) { called = true })()
	assert.False(t, called)
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		p       coupon.Provider
		in      Input
		opts    []Option
		wantErr error
	}{
		{
			name:    "missing provider",
			in:      testInput,
			wantErr: ErrMissingCollaborator,
		},
		{
			name:    "empty selection",
			p:       &fakeProvider{},
			in:      Input{Subtotal: 100},
			wantErr: order.ErrEmptySelection,
		},
		{
			name:    "negative subtotal",
			p:       &fakeProvider{},
			in:      Input{ItemIDs: []int64{1}, Subtotal: -1},
			wantErr: ErrNegativeSubtotal,
		},
		{
			name:    "negative shipping",
			p:       &fakeProvider{},
			in:      testInput,
			opts:    []Option{WithShippingFee(-3000)},
			wantErr: ErrNegativeShipping,
		},
		{
			name:    "total overflow",
			p:       &fakeProvider{},
			in:      Input{ItemIDs: []int64{1}, Subtotal: money.Max},
			opts:    []Option{WithShippingFee(3000)},
			wantErr: ErrTotalOverflow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(context.Background(), tt.p, &fakeSubmitter{}, tt.in, tt.opts...)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNew_LargestSubtotal(t *testing.T) {
	s, err := New(context.Background(), &fakeProvider{}, &fakeSubmitter{},
		Input{ItemIDs: []int64{1}, Subtotal: money.Max - 3000},
		WithShippingFee(3000),
	)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, money.Max, s.Snapshot().FinalTotal())
	require.NoError(t, s.SelectDiscount(0))
	require.NoError(t, s.SelectDiscount(money.Max))
	assert.Equal(t, money.Zero, s.Snapshot().FinalTotal())
}

func TestNew_DuplicateItem(t *testing.T) {
	_, err := New(context.Background(), &fakeProvider{}, &fakeSubmitter{},
		Input{ItemIDs: []int64{1, 2, 1}, Subtotal: 100},
	)

	var dupErr *DuplicateItemError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, int64(1), dupErr.ItemID)
}

func TestNew_DefaultShippingFee(t *testing.T) {
	s, err := New(context.Background(), &fakeProvider{}, &fakeSubmitter{}, testInput)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, DefaultShippingFee, s.Snapshot().ShippingFee)
}
