package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// LineItem is one product in the cart. Attributes hold the catalog metadata
// (name, price, image, ...) verbatim; the cart never interprets them.
type LineItem struct {
	ID         int64
	Amount     int
	Attributes map[string]json.RawMessage
}

// Cart is an ordered list of line items, unique by ID.
type Cart []LineItem

// StockInfo is what the stock service reports for a product.
type StockInfo struct {
	ID     int64 `json:"id"`
	Amount int   `json:"amount"`
}

// MarshalJSON writes a flat object: id first, then the catalog attributes
// by name, then amount.
func (i LineItem) MarshalJSON() ([]byte, error) {
	keys := make([]string, 0, len(i.Attributes))
	for k := range i.Attributes {
		if k != "id" && k != "amount" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	fmt.Fprintf(&buf, `{"id":%d`, i.ID)
	for _, k := range keys {
		name, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(name)
		buf.WriteByte(':')
		v := i.Attributes[k]
		if len(v) == 0 {
			buf.WriteString("null")
			continue
		}
		if err := json.Compact(&buf, v); err != nil {
			return nil, fmt.Errorf("attribute %s: %w", k, err)
		}
	}
	fmt.Fprintf(&buf, `,"amount":%d}`, i.Amount)
	return buf.Bytes(), nil
}

func (i *LineItem) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if fields == nil {
		return fmt.Errorf("line item must be an object")
	}

	rawID, ok := fields["id"]
	if !ok {
		return fmt.Errorf("line item has no id")
	}
	if err := json.Unmarshal(rawID, &i.ID); err != nil {
		return fmt.Errorf("line item id: %w", err)
	}

	i.Amount = 0
	if rawAmount, ok := fields["amount"]; ok {
		if err := json.Unmarshal(rawAmount, &i.Amount); err != nil {
			return fmt.Errorf("line item amount: %w", err)
		}
	}

	delete(fields, "id")
	delete(fields, "amount")
	attrs, err := compactFields(fields)
	if err != nil {
		return err
	}
	i.Attributes = attrs
	return nil
}

// Clone returns a deep copy so callers can mutate it freely.
func (i LineItem) Clone() LineItem {
	out := LineItem{ID: i.ID, Amount: i.Amount}
	if i.Attributes != nil {
		out.Attributes = make(map[string]json.RawMessage, len(i.Attributes))
		for k, v := range i.Attributes {
			out.Attributes[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

// Equal reports whether both items carry the same id, amount and metadata.
func (i LineItem) Equal(other LineItem) bool {
	if i.ID != other.ID || i.Amount != other.Amount || len(i.Attributes) != len(other.Attributes) {
		return false
	}
	for k, v := range i.Attributes {
		w, ok := other.Attributes[k]
		if !ok || !bytes.Equal(v, w) {
			return false
		}
	}
	return true
}

func (c Cart) Clone() Cart {
	out := make(Cart, len(c))
	for idx, item := range c {
		out[idx] = item.Clone()
	}
	return out
}

// IndexOf returns the position of productID in the cart or -1.
func (c Cart) IndexOf(productID int64) int {
	for idx := range c {
		if c[idx].ID == productID {
			return idx
		}
	}
	return -1
}

// Validate checks the invariants a persisted cart must satisfy:
// positive amounts and no duplicate product ids.
func (c Cart) Validate() error {
	seen := make(map[int64]struct{}, len(c))
	for _, item := range c {
		if item.Amount <= 0 {
			return fmt.Errorf("product %d has non-positive amount %d", item.ID, item.Amount)
		}
		if _, dup := seen[item.ID]; dup {
			return fmt.Errorf("product %d appears more than once", item.ID)
		}
		seen[item.ID] = struct{}{}
	}
	return nil
}

// compactFields strips insignificant whitespace so that metadata compares
// equal after a round trip through storage.
func compactFields(fields map[string]json.RawMessage) (map[string]json.RawMessage, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	out := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		var buf bytes.Buffer
		if err := json.Compact(&buf, v); err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = buf.Bytes()
	}
	return out, nil
}
