package firestore

import (
	"context"
	"errors"
	"fmt"

	pfirestore "github.com/fashion-shop/api/internal/platform/firestore"
	"github.com/fashion-shop/api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind the accessor
// interface used for dependency injection.
type Registry struct {
	provider *pfirestore.Provider

	users    *UserRepository
	products *ProductRepository
	carts    *CartRepository
	orders   *OrderRepository
	counters *CounterRepository
	resets   *PasswordResetRepository
	health   repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// RegistryOption customises registry assembly.
type RegistryOption func(*Registry)

// WithHealthRepository attaches dependency probes surfaced by Health().
func WithHealthRepository(health repositories.HealthRepository) RegistryOption {
	return func(r *Registry) {
		r.health = health
	}
}

// NewRegistry constructs every Firestore repository from the shared provider.
func NewRegistry(provider *pfirestore.Provider, opts ...RegistryOption) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry: provider is required")
	}

	users, err := NewUserRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("firestore registry: user repository: %w", err)
	}
	products, err := NewProductRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("firestore registry: product repository: %w", err)
	}
	carts, err := NewCartRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("firestore registry: cart repository: %w", err)
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("firestore registry: counter repository: %w", err)
	}
	orders, err := NewOrderRepository(provider, counters)
	if err != nil {
		return nil, fmt.Errorf("firestore registry: order repository: %w", err)
	}
	resets, err := NewPasswordResetRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("firestore registry: password reset repository: %w", err)
	}

	r := &Registry{
		provider: provider,
		users:    users,
		products: products,
		carts:    carts,
		orders:   orders,
		counters: counters,
		resets:   resets,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) Users() repositories.UserRepository { return r.users }

func (r *Registry) Products() repositories.ProductRepository { return r.products }

func (r *Registry) Carts() repositories.CartRepository { return r.carts }

func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

func (r *Registry) Counters() repositories.CounterRepository { return r.counters }

func (r *Registry) PasswordResets() repositories.PasswordResetRepository { return r.resets }

func (r *Registry) Health() repositories.HealthRepository { return r.health }
