package domain

import (
	"math"
	"strconv"
	"time"
)

// Vendor is a local business or service provider listed in the directory.
type Vendor struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Category     string    `json:"category"`
	Rating       float64   `json:"rating"`
	ReviewsCount int       `json:"reviews_count"`
	Phone        string    `json:"phone,omitempty"`
	Email        string    `json:"email,omitempty"`
	Address      string    `json:"address,omitempty"`
	Hours        string    `json:"hours,omitempty"`
	Verified     bool      `json:"verified"`
	Description  string    `json:"description,omitempty"`
	Services     []string  `json:"services"`
	ImageURL     string    `json:"image_url,omitempty"`
	Latitude     *float64  `json:"latitude,omitempty"`
	Longitude    *float64  `json:"longitude,omitempty"`
	CreatedAt    time.Time `json:"created_at"`

	// DistanceKm is computed per request from the viewer's origin.
	DistanceKm *float64 `json:"distance_km,omitempty"`
}

// Sort keys for vendors.
const (
	SortRating   = "rating"
	SortReviews  = "reviews"
	SortDistance = "distance"
)

// Key returns the vendor ID.
func (v Vendor) Key() string { return v.ID }

// SearchFields returns the text matched by free-text search.
func (v Vendor) SearchFields() []string {
	fields := make([]string, 0, 3+len(v.Services))
	fields = append(fields, v.Name, v.Category, v.Description)
	return append(fields, v.Services...)
}

// Facet returns the value of a filterable attribute.
func (v Vendor) Facet(name string) string {
	switch name {
	case "category":
		return v.Category
	case "verified":
		return strconv.FormatBool(v.Verified)
	}
	return ""
}

// SortValue returns the numeric value for a sort key. Missing values report false.
func (v Vendor) SortValue(key string) (float64, bool) {
	switch key {
	case SortRating:
		return v.Rating, true
	case SortReviews:
		return float64(v.ReviewsCount), true
	case SortDistance:
		if v.DistanceKm == nil {
			return 0, false
		}
		return *v.DistanceKm, true
	}
	return 0, false
}

// WithDistanceFrom returns a copy of v with DistanceKm set relative to the origin,
// or unchanged if the vendor has no coordinates.
func (v Vendor) WithDistanceFrom(lat, lng float64) Vendor {
	if v.Latitude == nil || v.Longitude == nil {
		return v
	}
	d := Haversine(lat, lng, *v.Latitude, *v.Longitude)
	v.DistanceKm = &d
	return v
}

const earthRadiusKm = 6371.0

// Haversine returns the great-circle distance in kilometres between two points.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
