package types

import (
	"fmt"
	"strings"
)

// Address is the shipping address snapshotted onto an order. It is stored as
// jsonb and never updated after the order is created.
type Address struct {
	Name       string  `json:"name"`
	Phone      string  `json:"phone"`
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city"`
	State      string  `json:"state"`
	PostalCode string  `json:"postal_code"`
	Country    string  `json:"country"`
}

// Validate checks the fields a carrier requires before a shipment can be made.
func (a Address) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("address: missing name")
	}
	if strings.TrimSpace(a.Line1) == "" {
		return fmt.Errorf("address: missing line1")
	}
	if strings.TrimSpace(a.City) == "" {
		return fmt.Errorf("address: missing city")
	}
	if strings.TrimSpace(a.State) == "" {
		return fmt.Errorf("address: missing state")
	}
	if strings.TrimSpace(a.PostalCode) == "" {
		return fmt.Errorf("address: missing postal_code")
	}
	return nil
}

// Normalized returns a copy with a defaulted country.
func (a Address) Normalized() Address {
	out := a
	if strings.TrimSpace(out.Country) == "" {
		out.Country = "IN"
	}
	return out
}
