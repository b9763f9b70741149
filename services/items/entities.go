package main

import (
	"time"

	"github.com/google/uuid"

	"github.com/openlend/lending-platform/internal/faults"
)

// Item represents one lendable item and its stock counters.
type Item struct {
	ID                string    `json:"id" db:"id"`
	Name              string    `json:"name" db:"name"`
	Description       string    `json:"description" db:"description"`
	Category          string    `json:"category" db:"category"`
	ImageURL          string    `json:"image_url" db:"image_url"`
	TotalQuantity     int       `json:"total_quantity" db:"total_quantity"`
	AvailableQuantity int       `json:"available_quantity" db:"available_quantity"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// NewItem creates an Item with its full quantity available.
func NewItem(name, description, category, imageURL string, totalQuantity int) (*Item, error) {
	if name == "" {
		return nil, faults.New(faults.KindInvalidArgument, "name is required")
	}
	if totalQuantity < 0 {
		return nil, faults.New(faults.KindInvalidArgument, "total_quantity must be >= 0")
	}

	now := time.Now()
	return &Item{
		ID:                uuid.New().String(),
		Name:              name,
		Description:       description,
		Category:          category,
		ImageURL:          imageURL,
		TotalQuantity:     totalQuantity,
		AvailableQuantity: totalQuantity,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// ItemPatch carries a partial update. A nil field means "leave unchanged",
// so an explicit zero or empty string is still a real update.
type ItemPatch struct {
	Name              *string `json:"name"`
	Description       *string `json:"description"`
	Category          *string `json:"category"`
	ImageURL          *string `json:"image_url"`
	TotalQuantity     *int    `json:"total_quantity"`
	AvailableQuantity *int    `json:"available_quantity"`
}

// Apply merges the patch into the item and re-validates the stock invariant.
func (i *Item) Apply(patch ItemPatch) error {
	if patch.Name != nil {
		if *patch.Name == "" {
			return faults.New(faults.KindInvalidArgument, "name cannot be empty")
		}
		i.Name = *patch.Name
	}
	if patch.Description != nil {
		i.Description = *patch.Description
	}
	if patch.Category != nil {
		i.Category = *patch.Category
	}
	if patch.ImageURL != nil {
		i.ImageURL = *patch.ImageURL
	}
	if patch.TotalQuantity != nil {
		i.TotalQuantity = *patch.TotalQuantity
	}
	if patch.AvailableQuantity != nil {
		i.AvailableQuantity = *patch.AvailableQuantity
	}

	if i.TotalQuantity < 0 {
		return faults.New(faults.KindInvalidArgument, "total_quantity must be >= 0")
	}
	if i.AvailableQuantity < 0 || i.AvailableQuantity > i.TotalQuantity {
		return faults.Errorf(faults.KindInvalidArgument,
			"available_quantity must be between 0 and total_quantity (%d)", i.TotalQuantity)
	}

	i.UpdatedAt = time.Now()
	return nil
}
