package domain

import "time"

type EditHistory struct {
	EditedBy  string    `json:"edited_by"`
	Changes   string    `json:"changes"`
	Timestamp time.Time `json:"timestamp"`
}

type Stock struct {
	ID           string        `json:"stock_id"`
	ShopID       string        `json:"shop_id"`
	Name         string        `json:"name"`
	Count        int           `json:"count"`
	LastEditedBy string        `json:"last_edited_by"`
	Version      int           `json:"version"` // optimistic locking
	CreatedAt    time.Time     `json:"created_at"`
	EditHistory  []EditHistory `json:"edit_history"`
}

// StockEdit is an EditHistory entry tagged with the stock it belongs to.
type StockEdit struct {
	StockID   string `json:"stock_id"`
	StockName string `json:"stock_name"`
	EditHistory
}
