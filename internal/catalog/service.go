package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrProductNotFound indicates the requested product does not exist.
var ErrProductNotFound = errors.New("product not found")

// Store captures the catalog reads the engine depends on.
type Store interface {
	Product(ctx context.Context, id uuid.UUID) (Product, error)
	MatrixEntries(ctx context.Context, productID uuid.UUID) ([]MatrixEntry, error)
	Options(ctx context.Context, productID uuid.UUID) ([]ProductOption, error)
}

// Service fronts the catalog store with a read-through Redis cache. Pricing
// matrices change rarely relative to how often carts are quoted.
type Service struct {
	Store       Store
	Cache       *Cache
	ReadTimeout time.Duration
}

func (s *Service) timeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.ReadTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.ReadTimeout)
}

// Product fetches a product, cache first.
func (s *Service) Product(ctx context.Context, id uuid.UUID) (Product, error) {
	if s == nil || s.Store == nil {
		return Product{}, errors.New("catalog service not configured")
	}
	key := fmt.Sprintf("catalog:product:%s", id)
	var cached Product
	if ok, err := s.Cache.GetJSON(ctx, key, &cached); err == nil && ok {
		return cached, nil
	}
	ctx, cancel := s.timeout(ctx)
	defer cancel()
	product, err := s.Store.Product(ctx, id)
	if err != nil {
		return Product{}, err
	}
	_ = s.Cache.SetJSON(ctx, key, product)
	return product, nil
}

// MatrixEntries fetches a product's pricing matrix, cache first.
func (s *Service) MatrixEntries(ctx context.Context, productID uuid.UUID) ([]MatrixEntry, error) {
	if s == nil || s.Store == nil {
		return nil, errors.New("catalog service not configured")
	}
	key := fmt.Sprintf("catalog:matrix:%s", productID)
	var cached []MatrixEntry
	if ok, err := s.Cache.GetJSON(ctx, key, &cached); err == nil && ok {
		return cached, nil
	}
	ctx, cancel := s.timeout(ctx)
	defer cancel()
	entries, err := s.Store.MatrixEntries(ctx, productID)
	if err != nil {
		return nil, err
	}
	_ = s.Cache.SetJSON(ctx, key, entries)
	return entries, nil
}

// Options fetches a product's fabric/control options, cache first.
func (s *Service) Options(ctx context.Context, productID uuid.UUID) ([]ProductOption, error) {
	if s == nil || s.Store == nil {
		return nil, errors.New("catalog service not configured")
	}
	key := fmt.Sprintf("catalog:options:%s", productID)
	var cached []ProductOption
	if ok, err := s.Cache.GetJSON(ctx, key, &cached); err == nil && ok {
		return cached, nil
	}
	ctx, cancel := s.timeout(ctx)
	defer cancel()
	options, err := s.Store.Options(ctx, productID)
	if err != nil {
		return nil, err
	}
	_ = s.Cache.SetJSON(ctx, key, options)
	return options, nil
}
