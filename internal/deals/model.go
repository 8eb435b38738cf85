package deals

import (
	"errors"
	"time"
)

// Deal statuses.
const (
	StatusActive   = "active"
	StatusArchived = "archived"
	StatusClosed   = "closed"
)

// Deal is one target company under evaluation.
type Deal struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Company   string    `json:"company,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ErrNotFound is returned when a deal does not exist.
var ErrNotFound = errors.New("deal not found")

var validStatuses = map[string]bool{
	StatusActive:   true,
	StatusArchived: true,
	StatusClosed:   true,
}

// ValidStatus reports whether s is a known deal status.
func ValidStatus(s string) bool {
	return validStatuses[s]
}
