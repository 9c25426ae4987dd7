package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Client is the billed party. Only the fields invoicing needs are kept.
type Client struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Company   string    `json:"company,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewClient creates an active client
func NewClient(ownerID, name, email, company string, now time.Time) *Client {
	return &Client{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Name:      strings.TrimSpace(name),
		Email:     strings.TrimSpace(email),
		Company:   strings.TrimSpace(company),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate returns an error if the client is invalid
func (c *Client) Validate() error {
	if c.OwnerID == "" {
		return fmt.Errorf("%w: owner is required", ErrValidation)
	}
	if c.Name == "" {
		return fmt.Errorf("%w: client name is required", ErrValidation)
	}
	return nil
}

// Project carries the hourly rate entries are billed at.
type Project struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"owner_id"`
	ClientID    *string         `json:"client_id,omitempty"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	HourlyRate  decimal.Decimal `json:"hourly_rate"`
	Currency    string          `json:"currency"`
	IsActive    bool            `json:"is_active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NewProject creates an active USD project
func NewProject(ownerID, name string, clientID *string, rate decimal.Decimal, now time.Time) *Project {
	return &Project{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		ClientID:   clientID,
		Name:       strings.TrimSpace(name),
		HourlyRate: rate,
		Currency:   "USD",
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Validate returns an error if the project is invalid
func (p *Project) Validate() error {
	if p.OwnerID == "" {
		return fmt.Errorf("%w: owner is required", ErrValidation)
	}
	if p.Name == "" {
		return fmt.Errorf("%w: project name is required", ErrValidation)
	}
	if p.HourlyRate.IsNegative() {
		return fmt.Errorf("%w: hourly rate cannot be negative", ErrValidation)
	}
	return nil
}
