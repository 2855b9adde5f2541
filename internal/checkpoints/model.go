package checkpoints

import (
	"errors"
	"time"
)

var (
	ErrNotFound   = errors.New("checkpoints: checkpoint not found")
	ErrNoDate     = errors.New("checkpoints: announcement has no date")
	ErrNoLocation = errors.New("checkpoints: announcement has no location")
)

// Checkpoint is an announced sobriety checkpoint.
type Checkpoint struct {
	ID       string    `json:"id"`
	County   string    `json:"county"`
	Location string    `json:"location"`
	Roads    []string  `json:"roads"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
	// TimeAssumed is set when the announcement gave no hours and the default
	// evening window was used.
	TimeAssumed bool      `json:"time_assumed"`
	Latitude    *float64  `json:"latitude,omitempty"`
	Longitude   *float64  `json:"longitude,omitempty"`
	Source      string    `json:"source,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Geocoded reports whether coordinates are known.
func (c *Checkpoint) Geocoded() bool {
	return c.Latitude != nil && c.Longitude != nil
}
