package port

import (
	"context"
	"errors"
	"time"

	"github.com/rl1809/duka/internal/core/domain"
)

type StockRepository interface {
	// CreateStock inserts the stock together with its initial edit history
	CreateStock(ctx context.Context, stock domain.Stock) error

	// GetStock returns the stock with its edit history, or a *domain.NotFoundError
	GetStock(ctx context.Context, shopID, stockID string) (*domain.Stock, error)

	// ListStocks returns a shop's stocks in insertion order, edit history included
	ListStocks(ctx context.Context, shopID string) ([]domain.Stock, error)

	// UpdateStock writes name/count and appends one edit entry, guarded by
	// expectedVersion. A stale version yields *domain.ConflictError.
	UpdateStock(ctx context.Context, stock domain.Stock, expectedVersion int, edit domain.EditHistory) (*domain.Stock, error)

	// DeleteStock removes the stock and its edit history. Sales are kept.
	DeleteStock(ctx context.Context, shopID, stockID string) error
}

type SaleRepository interface {
	// CommitSale decrements the stock and inserts the sale in one transaction.
	// Returns domain.ErrInsufficientStock when the conditional decrement fails.
	CommitSale(ctx context.Context, sale domain.Sale, sellerName string) (*domain.Stock, error)

	// ListSales returns a shop's sales sorted by datetime, newest first
	ListSales(ctx context.Context, shopID string) ([]domain.Sale, error)

	// ListSalesByStock returns one stock's sales, newest first
	ListSalesByStock(ctx context.Context, shopID, stockID string) ([]domain.Sale, error)
}

type ShopRepository interface {
	// CreateShop inserts the owner and the shop atomically
	CreateShop(ctx context.Context, owner domain.Owner, shop domain.Shop) error
	GetShop(ctx context.Context, shopID string) (*domain.Shop, error)
	GetShopByCode(ctx context.Context, code string) (*domain.Shop, error)
	GetShopByOwner(ctx context.Context, ownerID string) (*domain.Shop, error)
	GetOwnerByEmail(ctx context.Context, email string) (*domain.Owner, error)
}

type StaffRepository interface {
	CreateStaff(ctx context.Context, staff domain.Staff) error
	GetStaff(ctx context.Context, shopID, staffID string) (*domain.Staff, error)
	ListStaff(ctx context.Context, shopID string) ([]domain.Staff, error)
	SetStaffActive(ctx context.Context, shopID, staffID string, active bool) error
	TouchLastLogin(ctx context.Context, shopID, staffID string, at time.Time) error
}

// Repository is the full persistence surface the services need.
type Repository interface {
	StockRepository
	SaleRepository
	ShopRepository
	StaffRepository
}

// ErrDuplicateKey is returned when an insert collides with a unique key.
var ErrDuplicateKey = errors.New("duplicate key")
