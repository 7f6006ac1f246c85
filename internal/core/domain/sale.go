package domain

import "time"

type Sale struct {
	ID           string    `json:"sale_id"`
	ShopID       string    `json:"shop_id"`
	StockID      string    `json:"stock_id"`
	SoldBy       string    `json:"sold_by"`
	SoldByName   string    `json:"sold_by_name"`
	CustomerName string    `json:"customer_name"`
	Quantity     int       `json:"quantity"`
	DateTime     time.Time `json:"datetime"`
}

// SaleState tracks a single sell attempt.
type SaleState string

const (
	SaleStateIdle       SaleState = "idle"
	SaleStateValidating SaleState = "validating"
	SaleStateRejected   SaleState = "rejected"
	SaleStateCommitting SaleState = "committing"
	SaleStateCommitted  SaleState = "committed"
	SaleStateFailed     SaleState = "failed"
)

// DateRange is an inclusive [From, To] window. It filters nothing unless both
// bounds are set.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

func (r DateRange) Active() bool {
	return r.From != nil && r.To != nil
}

func (r DateRange) Contains(t time.Time) bool {
	if !r.Active() {
		return true
	}
	return !t.Before(*r.From) && !t.After(*r.To)
}
