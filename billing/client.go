/*
client.go - Client entity validation and partial updates

LIFECYCLE:
  Clients are soft-deleted by clearing the Active flag so invoices that
  reference them keep resolving. Hard delete is a separate explicit
  operation that does not cascade-verify referencing invoices.
*/
package billing

import "regexp"

var (
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	phonePattern = regexp.MustCompile(`^[+0-9][0-9 ().-]{4,}$`)
)

// Validate checks the client invariants: name required, email and phone
// format-checked only when present.
func (c *Client) Validate() error {
	fields := make(map[string]string)

	if c.Name == "" {
		fields["name"] = "name is required"
	}
	if c.Email != "" && !emailPattern.MatchString(c.Email) {
		fields["email"] = "invalid email address"
	}
	if c.Phone != "" && !phonePattern.MatchString(c.Phone) {
		fields["phone"] = "invalid phone number"
	}

	return newValidationError(fields)
}

// ClientUpdate is a partial update; nil pointers leave fields untouched.
type ClientUpdate struct {
	Name    *string
	Email   *string
	Company *string
	Phone   *string
	Address *Address
	TaxID   *string
	Notes   *string
}

// Apply patches the entity and returns the diff of changed fields.
// The caller re-validates before persisting.
func (c *Client) Apply(u ClientUpdate) map[string]FieldChange {
	diff := make(map[string]FieldChange)

	applyString := func(field string, target *string, next *string) {
		if next != nil && *next != *target {
			diff[field] = FieldChange{Before: *target, After: *next}
			*target = *next
		}
	}

	applyString("name", &c.Name, u.Name)
	applyString("email", &c.Email, u.Email)
	applyString("company", &c.Company, u.Company)
	applyString("phone", &c.Phone, u.Phone)
	applyString("taxId", &c.TaxID, u.TaxID)
	applyString("notes", &c.Notes, u.Notes)

	if u.Address != nil && *u.Address != c.Address {
		diff["address"] = FieldChange{Before: addressToValue(c.Address), After: addressToValue(*u.Address)}
		c.Address = *u.Address
	}

	return diff
}
