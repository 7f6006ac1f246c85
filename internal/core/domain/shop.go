package domain

import "time"

type Owner struct {
	ID           string    `json:"owner_id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
}

type Shop struct {
	ID           string    `json:"shop_id"`
	OwnerID      string    `json:"owner_id"`
	Name         string    `json:"name"`
	Code         string    `json:"shop_code"`
	MobileNumber string    `json:"mobile_number"`
	CreatedAt    time.Time `json:"created_at"`
}

type Staff struct {
	ID           string    `json:"staff_id"`
	ShopID       string    `json:"shop_id"`
	Name         string    `json:"name"`
	ActiveStatus bool      `json:"active_status"`
	LastLogin    time.Time `json:"last_login"`
	CreatedAt    time.Time `json:"created_at"`
}
