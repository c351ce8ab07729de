package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"storefront/internal/models"
)

type fakePublisher struct {
	mu            sync.Mutex
	placed        []*models.OrderPlacedEvent
	statusChanged []*models.OrderStatusChangedEvent
	err           error
}

func (f *fakePublisher) PublishOrderPlaced(_ context.Context, e *models.OrderPlacedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.placed = append(f.placed, e)
	return nil
}

func (f *fakePublisher) PublishOrderStatusChanged(_ context.Context, e *models.OrderStatusChangedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.statusChanged = append(f.statusChanged, e)
	return nil
}

type fakeIdempotency struct {
	mu      sync.Mutex
	entries map[string]int64
	lookups int
	failGet bool
}

func newFakeIdempotency() *fakeIdempotency {
	return &fakeIdempotency{entries: map[string]int64{}}
}

func idemKey(shopperID int64, key string) string {
	return fmt.Sprintf("%d:%s", shopperID, key)
}

func (f *fakeIdempotency) LookupOrder(_ context.Context, shopperID int64, key string) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.failGet {
		return 0, false, errors.New("redis down")
	}
	id, ok := f.entries[idemKey(shopperID, key)]
	return id, ok, nil
}

func (f *fakeIdempotency) RememberOrder(_ context.Context, shopperID int64, key string, orderID int64, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[idemKey(shopperID, key)] = orderID
	return nil
}

type fakeCache struct {
	mu          sync.Mutex
	products    map[int64]models.Product
	invalidated []int64
}

func newFakeCache() *fakeCache {
	return &fakeCache{products: map[int64]models.Product{}}
}

func (f *fakeCache) GetProduct(_ context.Context, id int64) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f *fakeCache) SetProduct(_ context.Context, p *models.Product, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.products[p.ID] = *p
	return nil
}

func (f *fakeCache) InvalidateProducts(_ context.Context, ids ...int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.products, id)
		f.invalidated = append(f.invalidated, id)
	}
	return nil
}
