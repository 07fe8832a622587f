package models

import "strings"

// User represents a storefront customer or back-office administrator.
type User struct {
	BaseModel
	Email          string  `gorm:"uniqueIndex;not null" json:"email"`
	Name           string  `json:"name"`
	Phone          string  `json:"phone"`
	PasswordHash   string  `json:"-"`
	IsAdmin        bool    `gorm:"not null;default:false" json:"is_admin"`
	IsVerified     bool    `gorm:"not null;default:false" json:"is_verified"`
	DefaultAddress Address `gorm:"embedded;embeddedPrefix:default_address_" json:"default_address"`
}

// Address is a postal address. It is stored inline on users and orders.
type Address struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// IsZero reports whether no address has been saved.
func (a Address) IsZero() bool {
	return strings.TrimSpace(a.Line1) == "" &&
		strings.TrimSpace(a.City) == "" &&
		strings.TrimSpace(a.PostalCode) == ""
}

// MissingFields lists required fields that are blank, keyed by their JSON name.
func (a Address) MissingFields() []string {
	var missing []string
	required := []struct {
		name  string
		value string
	}{
		{"line1", a.Line1},
		{"city", a.City},
		{"state", a.State},
		{"postal_code", a.PostalCode},
		{"country", a.Country},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// Normalized trims surrounding whitespace from every field.
func (a Address) Normalized() Address {
	return Address{
		Name:       strings.TrimSpace(a.Name),
		Phone:      strings.TrimSpace(a.Phone),
		Line1:      strings.TrimSpace(a.Line1),
		Line2:      strings.TrimSpace(a.Line2),
		City:       strings.TrimSpace(a.City),
		State:      strings.TrimSpace(a.State),
		PostalCode: strings.TrimSpace(a.PostalCode),
		Country:    strings.TrimSpace(a.Country),
	}
}
