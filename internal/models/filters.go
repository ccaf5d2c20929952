// internal/models/filters.go
package models

// TaskSearchFilters drive the volunteer browse/search view. Zero values mean
// "no constraint" for every field.
type TaskSearchFilters struct {
	City      string   `json:"city,omitempty"`
	Status    string   `json:"status,omitempty"` // "open" or "closed"
	Category  string   `json:"category,omitempty"`
	MaxHours  float64  `json:"maxHours,omitempty"`
	DateFrom  string   `json:"dateFrom,omitempty"` // DateLayout
	DateTo    string   `json:"dateTo,omitempty"`   // DateLayout
	Skills    []string `json:"skills,omitempty"`
	MaxAge    int      `json:"maxAge,omitempty"`
	DayOfWeek string   `json:"dayOfWeek,omitempty"` // "weekday" or "weekend", matched on start date
	Offset    int      `json:"offset,omitempty"`
	Limit     int      `json:"limit,omitempty"`
}
