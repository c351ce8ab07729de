package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type checkoutFixture struct {
	store     *store.Store
	carts     *CartService
	checkout  *CheckoutService
	publisher *fakePublisher
	idem      *fakeIdempotency
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	s := storetest.New(t)
	pub := &fakePublisher{}
	idem := newFakeIdempotency()
	return &checkoutFixture{
		store:     s,
		carts:     NewCartService(s, DefaultShippingPolicy()),
		checkout:  NewCheckoutService(s, pub, idem, DefaultShippingPolicy(), time.Hour),
		publisher: pub,
		idem:      idem,
	}
}

func TestCheckoutBelowThresholdAddsFee(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	x := storetest.Product(t, f.store, "X", "10.00", 5)
	addr := storetest.Address(t, f.store, 1)
	_, err := f.carts.AddLine(ctx, 1, x.ID, 2)
	require.NoError(t, err)

	res, err := f.checkout.Checkout(ctx, &CheckoutRequest{ShopperID: 1, AddressID: &addr.ID})
	require.NoError(t, err)
	assert.False(t, res.Replayed)

	order := res.Order
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.True(t, order.Subtotal.Equal(dec("20.00")))
	assert.True(t, order.ShippingFee.Equal(dec("4.99")))
	assert.True(t, order.TotalAmount.Equal(dec("24.99")))
	require.Len(t, order.Lines, 1)
	assert.Equal(t, 2, order.Lines[0].Quantity)
	assert.True(t, order.Lines[0].UnitPrice.Equal(dec("10.00")))

	p, err := f.store.GetProductByID(ctx, x.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Stock)

	count, err := f.carts.Count(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	require.Len(t, f.publisher.placed, 1)
	assert.Equal(t, order.ID, f.publisher.placed[0].OrderID)
	assert.Equal(t, models.EventTypeOrderPlaced, f.publisher.placed[0].EventType)
}

func TestCheckoutAboveThresholdShipsFree(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	y := storetest.Product(t, f.store, "Y", "60.00", 1)
	addr := storetest.Address(t, f.store, 1)
	_, err := f.carts.AddLine(ctx, 1, y.ID, 1)
	require.NoError(t, err)

	res, err := f.checkout.Checkout(ctx, &CheckoutRequest{ShopperID: 1, AddressID: &addr.ID})
	require.NoError(t, err)
	assert.True(t, res.Order.TotalAmount.Equal(dec("60.00")))
	assert.True(t, res.Order.ShippingFee.IsZero())

	p, err := f.store.GetProductByID(ctx, y.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Stock)
}

func TestCheckoutInsufficientStockLeavesEverything(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	z := storetest.Product(t, f.store, "Z", "5.00", 10)
	addr := storetest.Address(t, f.store, 1)
	_, err := f.carts.AddLine(ctx, 1, z.ID, 10)
	require.NoError(t, err)

	z.Stock = 3
	require.NoError(t, f.store.UpdateProduct(ctx, z))

	_, err = f.checkout.Checkout(ctx, &CheckoutRequest{ShopperID: 1, AddressID: &addr.ID})
	require.ErrorIs(t, err, models.ErrInsufficientStock)

	var lineErr *models.LineError
	require.True(t, errors.As(err, &lineErr))
	assert.Equal(t, z.ID, lineErr.ProductID)
	assert.Equal(t, 3, lineErr.Available)

	p, err := f.store.GetProductByID(ctx, z.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Stock)

	count, err := f.carts.Count(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 10, count)

	orders, err := f.store.GetOrdersByShopperID(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Empty(t, f.publisher.placed)
}

func TestCheckoutEmptyCart(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	addr := storetest.Address(t, f.store, 1)

	_, err := f.checkout.Checkout(ctx, &CheckoutRequest{ShopperID: 1, AddressID: &addr.ID})
	assert.ErrorIs(t, err, models.ErrEmptyCart)

	orders, err := f.store.ListOrders(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestCheckoutUsesLivePrice(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	p := storetest.Product(t, f.store, "Clock", "30.00", 2)
	addr := storetest.Address(t, f.store, 1)
	_, err := f.carts.AddLine(ctx, 1, p.ID, 1)
	require.NoError(t, err)

	p.Price = dec("55.00")
	require.NoError(t, f.store.UpdateProduct(ctx, p))

	res, err := f.checkout.Checkout(ctx, &CheckoutRequest{ShopperID: 1, AddressID: &addr.ID})
	require.NoError(t, err)
	assert.True(t, res.Order.Lines[0].UnitPrice.Equal(dec("55.00")))
	assert.True(t, res.Order.TotalAmount.Equal(dec("55.00")))
}

func TestCheckoutIdempotencyKeyReplays(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	p := storetest.Product(t, f.store, "Vase", "12.00", 5)
	addr := storetest.Address(t, f.store, 1)
	_, err := f.carts.AddLine(ctx, 1, p.ID, 1)
	require.NoError(t, err)

	first, err := f.checkout.Checkout(ctx, &CheckoutRequest{ShopperID: 1, AddressID: &addr.ID, IdempotencyKey: "abc"})
	require.NoError(t, err)

	// the cart is empty now, so only a replay can succeed
	second, err := f.checkout.Checkout(ctx, &CheckoutRequest{ShopperID: 1, AddressID: &addr.ID, IdempotencyKey: "abc"})
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Order.ID, second.Order.ID)

	// same answer from the database when the cache has nothing
	f.idem.entries = map[string]int64{}
	third, err := f.checkout.Checkout(ctx, &CheckoutRequest{ShopperID: 1, AddressID: &addr.ID, IdempotencyKey: "abc"})
	require.NoError(t, err)
	assert.True(t, third.Replayed)
	assert.Equal(t, first.Order.ID, third.Order.ID)

	// the key is scoped to its shopper
	_, err = f.checkout.Checkout(ctx, &CheckoutRequest{ShopperID: 2, AddressID: &addr.ID, IdempotencyKey: "abc"})
	assert.ErrorIs(t, err, models.ErrEmptyCart)

	p2, err := f.store.GetProductByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, p2.Stock)
	assert.Len(t, f.publisher.placed, 1)
}

func TestCheckoutIdempotencyCacheFailureFallsBackToDB(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	p := storetest.Product(t, f.store, "Bowl", "9.00", 5)
	addr := storetest.Address(t, f.store, 1)
	_, err := f.carts.AddLine(ctx, 1, p.ID, 1)
	require.NoError(t, err)

	first, err := f.checkout.Checkout(ctx, &CheckoutRequest{ShopperID: 1, AddressID: &addr.ID, IdempotencyKey: "k1"})
	require.NoError(t, err)

	f.idem.failGet = true
	again, err := f.checkout.Checkout(ctx, &CheckoutRequest{ShopperID: 1, AddressID: &addr.ID, IdempotencyKey: "k1"})
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, first.Order.ID, again.Order.ID)
}

func TestCheckoutWithNewAddress(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	p := storetest.Product(t, f.store, "Frame", "15.00", 5)
	_, err := f.carts.AddLine(ctx, 1, p.ID, 1)
	require.NoError(t, err)

	res, err := f.checkout.Checkout(ctx, &CheckoutRequest{
		ShopperID:  1,
		NewAddress: &AddressInput{Street: " 3 quai Voltaire ", City: "Lyon", PostalCode: "69002"},
	})
	require.NoError(t, err)
	require.NotNil(t, res.Order.ShippingAddress)
	assert.Equal(t, "3 quai Voltaire", res.Order.ShippingAddress.Street)
	assert.Equal(t, DefaultCountry, res.Order.ShippingAddress.Country)

	addrs, err := f.checkout.Addresses(ctx, 1)
	require.NoError(t, err)
	require.Len(t, addrs, 1)
	assert.Equal(t, "Lyon", addrs[0].City)
}

func TestCheckoutInvalidAddress(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	p := storetest.Product(t, f.store, "Lamp", "15.00", 5)
	other := storetest.Address(t, f.store, 2)
	_, err := f.carts.AddLine(ctx, 1, p.ID, 1)
	require.NoError(t, err)

	_, err = f.checkout.Checkout(ctx, &CheckoutRequest{
		ShopperID:  1,
		NewAddress: &AddressInput{Street: "", City: "Lyon", PostalCode: ""},
	})
	var addrErr *models.AddressError
	require.True(t, errors.As(err, &addrErr))
	assert.Equal(t, "required", addrErr.Violations["street"])
	assert.Equal(t, "required", addrErr.Violations["postal_code"])
	assert.NotContains(t, addrErr.Violations, "city")

	_, err = f.checkout.Checkout(ctx, &CheckoutRequest{ShopperID: 1, AddressID: &other.ID})
	assert.ErrorIs(t, err, models.ErrInvalidAddress)

	_, err = f.checkout.Checkout(ctx, &CheckoutRequest{ShopperID: 1})
	assert.ErrorIs(t, err, models.ErrInvalidAddress)

	count, err := f.carts.Count(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCheckoutPublishFailureDoesNotFailOrder(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	f.publisher.err = errors.New("kafka down")

	p := storetest.Product(t, f.store, "Cup", "4.00", 5)
	addr := storetest.Address(t, f.store, 1)
	_, err := f.carts.AddLine(ctx, 1, p.ID, 1)
	require.NoError(t, err)

	res, err := f.checkout.Checkout(ctx, &CheckoutRequest{ShopperID: 1, AddressID: &addr.ID})
	require.NoError(t, err)
	assert.NotZero(t, res.Order.ID)
}

func TestConcurrentCheckoutOfLastUnit(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	p := storetest.Product(t, f.store, "Last", "20.00", 1)
	a1 := storetest.Address(t, f.store, 1)
	a2 := storetest.Address(t, f.store, 2)
	_, err := f.carts.AddLine(ctx, 1, p.ID, 1)
	require.NoError(t, err)
	_, err = f.carts.AddLine(ctx, 2, p.ID, 1)
	require.NoError(t, err)

	reqs := []*CheckoutRequest{
		{ShopperID: 1, AddressID: &a1.ID},
		{ShopperID: 2, AddressID: &a2.ID},
	}
	errs := make([]error, len(reqs))

	var wg sync.WaitGroup
	for i := range reqs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.checkout.Checkout(ctx, reqs[i])
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, models.ErrInsufficientStock)
	}
	assert.Equal(t, 1, succeeded)

	got, err := f.store.GetProductByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Stock)
}
