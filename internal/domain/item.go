package domain

import "time"

// Origin tags which source resource an item came from.
type Origin string

const (
	OriginFound Origin = "found"
	OriginLost  Origin = "lost"
)

// Item statuses. Found items are available or claimed; lost requests are searching, found or
// resolved.
const (
	StatusAvailable = "available"
	StatusClaimed   = "claimed"
	StatusSearching = "searching"
	StatusFound     = "found"
	StatusResolved  = "resolved"
)

type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Item is the unified view over found items and lost requests.
type Item struct {
	ID          string    `json:"id"`
	Origin      Origin    `json:"origin"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Status      string    `json:"status"`
	Location    *Location `json:"location,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Amount      float64   `json:"amount"`
	RarityTag   *string   `json:"rarity_tag,omitempty"`
	Rare        bool      `json:"is_rare"`
}

func (i Item) EntityID() string { return i.ID }

// Key is the identity of the item in the merged view. Raw ids are not namespaced across the two
// sources, so the origin is part of it.
func (i Item) Key() string { return string(i.Origin) + ":" + i.ID }

// FoundItem is a row of the found_items resource.
type FoundItem struct {
	ItemID      string    `json:"id" dynamodbav:"item_id" validate:"required"`
	UserID      string    `json:"user_id" dynamodbav:"user_id"`
	Title       string    `json:"title" dynamodbav:"title"`
	Description string    `json:"description" dynamodbav:"description"`
	Category    string    `json:"category" dynamodbav:"category"`
	Status      string    `json:"status" dynamodbav:"status" validate:"omitempty,oneof=available claimed"`
	Latitude    *float64  `json:"latitude,omitempty" dynamodbav:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude   *float64  `json:"longitude,omitempty" dynamodbav:"longitude,omitempty" validate:"omitempty,longitude"`
	Price       float64   `json:"price" dynamodbav:"price" validate:"gte=0"`
	RarityTag   *string   `json:"rarity_tag,omitempty" dynamodbav:"rarity_tag,omitempty"`
	IsRare      bool      `json:"is_rare" dynamodbav:"is_rare"`
	CreatedAt   time.Time `json:"created_at" dynamodbav:"created_at"`
}

func (f FoundItem) EntityID() string { return f.ItemID }

func (f FoundItem) ToItem() Item {
	return Item{
		ID:          f.ItemID,
		Origin:      OriginFound,
		Title:       f.Title,
		Description: f.Description,
		Category:    f.Category,
		Status:      f.Status,
		Location:    location(f.Latitude, f.Longitude),
		CreatedAt:   f.CreatedAt,
		Amount:      f.Price,
		RarityTag:   f.RarityTag,
		Rare:        f.IsRare,
	}
}

// LostRequest is a row of the lost_requests resource.
type LostRequest struct {
	RequestID   string    `json:"id" dynamodbav:"request_id" validate:"required"`
	UserID      string    `json:"user_id" dynamodbav:"user_id"`
	Title       string    `json:"title" dynamodbav:"title"`
	Description string    `json:"description" dynamodbav:"description"`
	Category    string    `json:"category" dynamodbav:"category"`
	Status      string    `json:"status" dynamodbav:"status" validate:"omitempty,oneof=searching found resolved"`
	Latitude    *float64  `json:"latitude,omitempty" dynamodbav:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude   *float64  `json:"longitude,omitempty" dynamodbav:"longitude,omitempty" validate:"omitempty,longitude"`
	Reward      float64   `json:"reward" dynamodbav:"reward" validate:"gte=0"`
	RarityTag   *string   `json:"rarity_tag,omitempty" dynamodbav:"rarity_tag,omitempty"`
	IsRare      bool      `json:"is_rare" dynamodbav:"is_rare"`
	CreatedAt   time.Time `json:"created_at" dynamodbav:"created_at"`
}

func (r LostRequest) EntityID() string { return r.RequestID }

func (r LostRequest) ToItem() Item {
	return Item{
		ID:          r.RequestID,
		Origin:      OriginLost,
		Title:       r.Title,
		Description: r.Description,
		Category:    r.Category,
		Status:      r.Status,
		Location:    location(r.Latitude, r.Longitude),
		CreatedAt:   r.CreatedAt,
		Amount:      r.Reward,
		RarityTag:   r.RarityTag,
		Rare:        r.IsRare,
	}
}

func location(lat, lon *float64) *Location {
	if lat == nil || lon == nil {
		return nil
	}
	return &Location{Lat: *lat, Lon: *lon}
}
