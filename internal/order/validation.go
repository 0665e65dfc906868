package order

import (
	"regexp"
	"strings"

	"ms-pettag/internal/apperrors"
	"ms-pettag/internal/models"
)

var (
	emailPattern = regexp.MustCompile(`(?i)^[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}$`)
	phonePattern = regexp.MustCompile(`^[0-9]{10}$`)
)

// validateCreate checks a new order request and trims its text fields in place.
func validateCreate(req *models.CreateOrderRequest) error {
	if req.Quantity < models.MinQuantity || req.Quantity > models.MaxQuantity {
		return apperrors.Validation("quantity must be between %d and %d", models.MinQuantity, models.MaxQuantity)
	}
	if err := validateCustomer(&req.Customer); err != nil {
		return err
	}
	return validateShipping(&req.Shipping)
}

func validateCustomer(c *models.Customer) error {
	c.Name = strings.TrimSpace(c.Name)
	c.LastName = strings.TrimSpace(c.LastName)
	c.Email = strings.TrimSpace(c.Email)
	c.Phone = strings.TrimSpace(c.Phone)

	switch {
	case c.Name == "":
		return apperrors.Validation("customer name is required")
	case c.Email == "":
		return apperrors.Validation("customer email is required")
	case !emailPattern.MatchString(c.Email):
		return apperrors.Validation("customer email %q is not a valid address", c.Email)
	case c.Phone == "":
		return apperrors.Validation("customer phone is required")
	case !phonePattern.MatchString(c.Phone):
		return apperrors.Validation("customer phone must be exactly 10 digits")
	}
	return nil
}

func validateShipping(s *models.Shipping) error {
	s.Address = strings.TrimSpace(s.Address)
	s.City = strings.TrimSpace(s.City)
	s.State = strings.TrimSpace(s.State)
	s.PostalCode = strings.TrimSpace(s.PostalCode)
	s.Country = strings.TrimSpace(s.Country)

	required := []struct {
		name, value string
	}{
		{"address", s.Address},
		{"city", s.City},
		{"state", s.State},
		{"country", s.Country},
	}
	for _, f := range required {
		if f.value == "" {
			return apperrors.Validation("shipping %s is required", f.name)
		}
	}
	return nil
}

// applyShipping merges an owner's patch onto the stored address. Only the
// address fields are writable after creation.
func applyShipping(current models.Shipping, patch models.ShippingUpdate) (models.Shipping, error) {
	next := current
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&next.Address, patch.Address)
	set(&next.City, patch.City)
	set(&next.State, patch.State)
	set(&next.PostalCode, patch.PostalCode)
	set(&next.Country, patch.Country)

	if next == current {
		return current, apperrors.Validation("no shipping fields to update")
	}
	if err := validateShipping(&next); err != nil {
		return current, err
	}
	return next, nil
}
