package commerce

import (
	"strings"
	"time"
)

// CloneMarkerTag is added to every clone and removed once it is translated.
const CloneMarkerTag = "NEEDS_TRANSLATION"

// Product is a product as read from, or written to, a store.
type Product struct {
	ID          string
	GID         string
	Handle      string
	Title       string
	BodyHTML    string
	Vendor      string
	ProductType string
	Tags        []string
	Status      string
	Options     []Option
	Variants    []Variant
	Images      []Image
}

// Option is a product option such as "Size" with its ordered values.
type Option struct {
	Name   string
	Values []string
}

// Variant is one purchasable combination of option values.
type Variant struct {
	ID               string
	Title            string
	Option1          string
	Option2          string
	Option3          string
	Price            string
	CompareAtPrice   string
	SKU              string
	RequiresShipping bool
	Taxable          bool
	Barcode          string
	Weight           float64
	WeightUnit       string
}

// OptionValue returns option1..3 by zero-based position.
func (v Variant) OptionValue(i int) string {
	switch i {
	case 0:
		return v.Option1
	case 1:
		return v.Option2
	case 2:
		return v.Option3
	}
	return ""
}

// SetOptionValue sets option1..3 by zero-based position.
func (v *Variant) SetOptionValue(i int, value string) {
	switch i {
	case 0:
		v.Option1 = value
	case 1:
		v.Option2 = value
	case 2:
		v.Option3 = value
	}
}

// Image is a product image referenced by URL.
type Image struct {
	Src string
	Alt string
}

// Created identifies a product that was just created.
type Created struct {
	ID     string
	GID    string
	Handle string
}

// ProductUpdate is a partial update. Empty strings and nil slices leave the
// corresponding field unchanged.
type ProductUpdate struct {
	Title    string
	BodyHTML string
	Handle   string
	Tags     []string
	Options  []Option
	Variants []VariantOptions
}

// VariantOptions rewrites the option values of one variant.
type VariantOptions struct {
	ID      string
	Option1 string
	Option2 string
	Option3 string
}

// SoldProduct is one aggregated discovery result.
type SoldProduct struct {
	ProductID  string `json:"product_id"`
	Title      string `json:"title"`
	SalesCount int    `json:"sales_count"`
}

// Order is a paid order from the source store.
type Order struct {
	ID        string
	CreatedAt time.Time
	LineItems []LineItem
}

// LineItem is one order line. ProductID is empty for custom or deleted products.
type LineItem struct {
	ProductID string
	Title     string
	Quantity  int
}

const gidPrefix = "gid://shopify/Product/"

// ProductGID returns the global id for a numeric product id.
func ProductGID(id string) string {
	if strings.HasPrefix(id, "gid://") {
		return id
	}
	return gidPrefix + id
}

// ProductIDFromGID returns the numeric id of a product global id.
// Plain ids are returned unchanged.
func ProductIDFromGID(gid string) string {
	if i := strings.LastIndex(gid, "/"); i >= 0 && strings.HasPrefix(gid, "gid://") {
		return gid[i+1:]
	}
	return gid
}

// HasTag reports whether tags contains tag, ignoring case.
func HasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if strings.EqualFold(strings.TrimSpace(t), tag) {
			return true
		}
	}
	return false
}

// WithTag returns tags plus tag if it is not already present.
func WithTag(tags []string, tag string) []string {
	out := make([]string, 0, len(tags)+1)
	out = append(out, tags...)
	if !HasTag(tags, tag) {
		out = append(out, tag)
	}
	return out
}

// WithoutTag returns tags minus every occurrence of tag, ignoring case.
func WithoutTag(tags []string, tag string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if !strings.EqualFold(strings.TrimSpace(t), tag) {
			out = append(out, t)
		}
	}
	return out
}
