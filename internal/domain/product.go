package domain

import (
	"encoding/json"
	"fmt"
)

// Product is the catalog's view of a product. Everything except the id is
// kept as raw JSON so it can be copied into a line item untouched.
type Product struct {
	ID         int64
	Attributes map[string]json.RawMessage
}

func (p *Product) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if fields == nil {
		return fmt.Errorf("product must be an object")
	}
	rawID, ok := fields["id"]
	if !ok {
		return fmt.Errorf("product has no id")
	}
	if err := json.Unmarshal(rawID, &p.ID); err != nil {
		return fmt.Errorf("product id: %w", err)
	}
	delete(fields, "id")
	delete(fields, "amount")
	attrs, err := compactFields(fields)
	if err != nil {
		return err
	}
	p.Attributes = attrs
	return nil
}

// LineItem turns the product into a cart entry with the given amount.
func (p Product) LineItem(amount int) LineItem {
	return LineItem{ID: p.ID, Amount: amount, Attributes: p.Attributes}.Clone()
}
