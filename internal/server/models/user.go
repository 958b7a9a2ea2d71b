// Package models defines server-side data models persisted in the database.
package models

import "time"

// User is a marketplace account. EthereumAddress is always lower-case and
// maps to exactly one user for the lifetime of the system.
type User struct {
	ID              int64
	EthereumAddress string
	UserName        string
	Name            string
	Role            string
	Status          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// PublicUser is the projection returned to clients.
type PublicUser struct {
	ID              int64     `json:"id"`
	EthereumAddress string    `json:"ethereumAddress"`
	UserName        string    `json:"username"`
	Name            string    `json:"name"`
	Role            string    `json:"role"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func (u *User) Public() *PublicUser {
	return &PublicUser{
		ID:              u.ID,
		EthereumAddress: u.EthereumAddress,
		UserName:        u.UserName,
		Name:            u.Name,
		Role:            u.Role,
		Status:          u.Status,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}

// Wallet links a user to the address they signed in with.
type Wallet struct {
	ID        int64
	UserID    int64
	Address   string
	ChainID   int
	CreatedAt time.Time
}
