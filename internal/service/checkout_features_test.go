package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/store/storetest"

	"github.com/cucumber/godog"
	"github.com/shopspring/decimal"
)

type checkoutTestContext struct {
	t         testing.TB
	store     *store.Store
	carts     *CartService
	checkout  *CheckoutService
	products  map[string]*models.Product
	addresses map[int64]*models.Address
	order     *models.Order
	err       error
	raceErrs  []error
}

func (c *checkoutTestContext) reset() {
	c.store = storetest.New(c.t)
	c.carts = NewCartService(c.store, DefaultShippingPolicy())
	c.checkout = NewCheckoutService(c.store, nil, nil, DefaultShippingPolicy(), time.Hour)
	c.products = map[string]*models.Product{}
	c.addresses = map[int64]*models.Address{}
	c.order = nil
	c.err = nil
	c.raceErrs = nil
}

func (c *checkoutTestContext) shopperHasASavedShippingAddress(shopperID int64) error {
	c.addresses[shopperID] = storetest.Address(c.t, c.store, shopperID)
	return nil
}

func (c *checkoutTestContext) aProductPricedWithStock(title, price string, stock int) error {
	c.products[title] = storetest.Product(c.t, c.store, title, price, stock)
	return nil
}

func (c *checkoutTestContext) product(title string) (*models.Product, error) {
	p, ok := c.products[title]
	if !ok {
		return nil, fmt.Errorf("unknown product %q", title)
	}
	return p, nil
}

func (c *checkoutTestContext) shopperHasOfInTheCart(shopperID int64, quantity int, title string) error {
	p, err := c.product(title)
	if err != nil {
		return err
	}
	_, err = c.carts.AddLine(context.Background(), shopperID, p.ID, quantity)
	return err
}

func (c *checkoutTestContext) theStockOfDropsTo(title string, stock int) error {
	p, err := c.product(title)
	if err != nil {
		return err
	}
	p.Stock = stock
	return c.store.UpdateProduct(context.Background(), p)
}

func (c *checkoutTestContext) request(shopperID int64) *CheckoutRequest {
	req := &CheckoutRequest{ShopperID: shopperID}
	if addr, ok := c.addresses[shopperID]; ok {
		req.AddressID = &addr.ID
	}
	return req
}

func (c *checkoutTestContext) shopperChecksOut(shopperID int64) error {
	res, err := c.checkout.Checkout(context.Background(), c.request(shopperID))
	c.err = err
	if err == nil {
		c.order = res.Order
	}
	return nil
}

func (c *checkoutTestContext) shoppersCheckOutAtTheSameTime(first, second int64) error {
	reqs := []*CheckoutRequest{c.request(first), c.request(second)}
	c.raceErrs = make([]error, len(reqs))

	var wg sync.WaitGroup
	for i := range reqs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, c.raceErrs[i] = c.checkout.Checkout(context.Background(), reqs[i])
		}(i)
	}
	wg.Wait()
	return nil
}

func (c *checkoutTestContext) anOrderIsPlacedWithTotal(total string) error {
	if c.err != nil {
		return fmt.Errorf("checkout failed: %w", c.err)
	}
	want := decimal.RequireFromString(total)
	if !c.order.TotalAmount.Equal(want) {
		return fmt.Errorf("expected total %s, got %s", want, c.order.TotalAmount)
	}
	return nil
}

func (c *checkoutTestContext) theOrderStatusIs(status string) error {
	if string(c.order.Status) != status {
		return fmt.Errorf("expected status %s, got %s", status, c.order.Status)
	}
	return nil
}

func (c *checkoutTestContext) productHasStock(title string, stock int) error {
	p, err := c.product(title)
	if err != nil {
		return err
	}
	live, err := c.store.GetProductByID(context.Background(), p.ID)
	if err != nil {
		return err
	}
	if live.Stock != stock {
		return fmt.Errorf("expected stock %d for %q, got %d", stock, title, live.Stock)
	}
	return nil
}

func (c *checkoutTestContext) theCartOfShopperHoldsItems(shopperID int64, items int) error {
	count, err := c.carts.Count(context.Background(), shopperID)
	if err != nil {
		return err
	}
	if count != items {
		return fmt.Errorf("expected %d items in cart, got %d", items, count)
	}
	return nil
}

func (c *checkoutTestContext) theCartOfShopperIsEmpty(shopperID int64) error {
	return c.theCartOfShopperHoldsItems(shopperID, 0)
}

func (c *checkoutTestContext) theCheckoutFailsWith(reason string) error {
	if c.err == nil {
		return fmt.Errorf("expected checkout to fail with %s", reason)
	}
	if got := failureReason(c.err); got != reason {
		return fmt.Errorf("expected %s, got %s (%v)", reason, got, c.err)
	}
	return nil
}

func (c *checkoutTestContext) noOrderExists() error {
	orders, err := c.store.ListOrders(context.Background(), nil)
	if err != nil {
		return err
	}
	if len(orders) != 0 {
		return fmt.Errorf("expected no orders, found %d", len(orders))
	}
	return nil
}

func (c *checkoutTestContext) exactlyOneCheckoutSucceeds() error {
	succeeded := 0
	for _, err := range c.raceErrs {
		if err == nil {
			succeeded++
		}
	}
	if succeeded != 1 {
		return fmt.Errorf("expected exactly one success, got %d (%v)", succeeded, c.raceErrs)
	}
	return nil
}

func (c *checkoutTestContext) theOtherCheckoutFailsWith(reason string) error {
	for _, err := range c.raceErrs {
		if err == nil {
			continue
		}
		if got := failureReason(err); got != reason {
			return fmt.Errorf("expected %s, got %s (%v)", reason, got, err)
		}
		return nil
	}
	return fmt.Errorf("no checkout failed")
}

func initializeCheckoutScenario(t testing.TB) func(*godog.ScenarioContext) {
	return func(ctx *godog.ScenarioContext) {
		tc := &checkoutTestContext{t: t}

		ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
			tc.reset()
			return ctx, nil
		})

		// Given steps
		ctx.Step(`^shopper (\d+) has a saved shipping address$`, tc.shopperHasASavedShippingAddress)
		ctx.Step(`^a product "([^"]*)" priced (\d+\.\d{2}) with stock (\d+)$`, tc.aProductPricedWithStock)
		ctx.Step(`^shopper (\d+) has (\d+) of "([^"]*)" in the cart$`, tc.shopperHasOfInTheCart)
		ctx.Step(`^the stock of "([^"]*)" drops to (\d+)$`, tc.theStockOfDropsTo)

		// When steps
		ctx.Step(`^shopper (\d+) checks out$`, tc.shopperChecksOut)
		ctx.Step(`^shoppers (\d+) and (\d+) check out at the same time$`, tc.shoppersCheckOutAtTheSameTime)

		// Then steps
		ctx.Step(`^an order is placed with total (\d+\.\d{2})$`, tc.anOrderIsPlacedWithTotal)
		ctx.Step(`^the order status is "([^"]*)"$`, tc.theOrderStatusIs)
		ctx.Step(`^product "([^"]*)" has stock (\d+)$`, tc.productHasStock)
		ctx.Step(`^the cart of shopper (\d+) is empty$`, tc.theCartOfShopperIsEmpty)
		ctx.Step(`^the cart of shopper (\d+) holds (\d+) items$`, tc.theCartOfShopperHoldsItems)
		ctx.Step(`^the checkout fails with "([^"]*)"$`, tc.theCheckoutFailsWith)
		ctx.Step(`^no order exists$`, tc.noOrderExists)
		ctx.Step(`^exactly one checkout succeeds$`, tc.exactlyOneCheckoutSucceeds)
		ctx.Step(`^the other checkout fails with "([^"]*)"$`, tc.theOtherCheckoutFailsWith)
	}
}

func TestCheckoutFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: initializeCheckoutScenario(t),
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
