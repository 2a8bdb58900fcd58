package shopify

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/storeclone/internal/commerce"
)

type productEnvelope struct {
	Product apiProduct `json:"product"`
}

type productsEnvelope struct {
	Products []apiProduct `json:"products"`
}

type apiProduct struct {
	ID          int64        `json:"id,omitempty"`
	GID         string       `json:"admin_graphql_api_id,omitempty"`
	Handle      string       `json:"handle,omitempty"`
	Title       string       `json:"title,omitempty"`
	BodyHTML    string       `json:"body_html,omitempty"`
	Vendor      string       `json:"vendor,omitempty"`
	ProductType string       `json:"product_type,omitempty"`
	Tags        *string      `json:"tags,omitempty"`
	Status      string       `json:"status,omitempty"`
	Options     []apiOption  `json:"options,omitempty"`
	Variants    []apiVariant `json:"variants,omitempty"`
	Images      []apiImage   `json:"images,omitempty"`
}

type apiOption struct {
	Name   string   `json:"name"`
	Values []string `json:"values,omitempty"`
}

type apiVariant struct {
	ID               int64    `json:"id,omitempty"`
	Title            string   `json:"title,omitempty"`
	Option1          *string  `json:"option1,omitempty"`
	Option2          *string  `json:"option2,omitempty"`
	Option3          *string  `json:"option3,omitempty"`
	Price            string   `json:"price,omitempty"`
	CompareAtPrice   *string  `json:"compare_at_price,omitempty"`
	SKU              string   `json:"sku,omitempty"`
	RequiresShipping *bool    `json:"requires_shipping,omitempty"`
	Taxable          *bool    `json:"taxable,omitempty"`
	Barcode          *string  `json:"barcode,omitempty"`
	Weight           *float64 `json:"weight,omitempty"`
	WeightUnit       string   `json:"weight_unit,omitempty"`
}

type apiImage struct {
	Src string `json:"src"`
	Alt string `json:"alt,omitempty"`
}

type variantEnvelope struct {
	Variant apiVariantPrice `json:"variant"`
}

type apiVariantPrice struct {
	ID             int64   `json:"id"`
	Price          string  `json:"price"`
	CompareAtPrice *string `json:"compare_at_price"`
}

type collectEnvelope struct {
	Collect apiCollect `json:"collect"`
}

type apiCollect struct {
	ProductID    int64 `json:"product_id"`
	CollectionID int64 `json:"collection_id"`
}

type ordersEnvelope struct {
	Orders []apiOrder `json:"orders"`
}

type apiOrder struct {
	ID        int64         `json:"id"`
	CreatedAt time.Time     `json:"created_at"`
	LineItems []apiLineItem `json:"line_items"`
}

type apiLineItem struct {
	ProductID *int64 `json:"product_id"`
	Title     string `json:"title"`
	Quantity  int    `json:"quantity"`
}

func fromAPIProduct(p apiProduct) *commerce.Product {
	out := &commerce.Product{
		ID:          formatID(p.ID),
		GID:         p.GID,
		Handle:      p.Handle,
		Title:       p.Title,
		BodyHTML:    p.BodyHTML,
		Vendor:      p.Vendor,
		ProductType: p.ProductType,
		Status:      p.Status,
	}
	if out.GID == "" && p.ID != 0 {
		out.GID = commerce.ProductGID(out.ID)
	}
	if p.Tags != nil {
		out.Tags = splitTags(*p.Tags)
	}
	for _, o := range p.Options {
		out.Options = append(out.Options, commerce.Option{Name: o.Name, Values: append([]string(nil), o.Values...)})
	}
	for _, v := range p.Variants {
		out.Variants = append(out.Variants, commerce.Variant{
			ID:               formatID(v.ID),
			Title:            v.Title,
			Option1:          deref(v.Option1),
			Option2:          deref(v.Option2),
			Option3:          deref(v.Option3),
			Price:            v.Price,
			CompareAtPrice:   deref(v.CompareAtPrice),
			SKU:              v.SKU,
			RequiresShipping: v.RequiresShipping != nil && *v.RequiresShipping,
			Taxable:          v.Taxable != nil && *v.Taxable,
			Barcode:          deref(v.Barcode),
			Weight:           derefFloat(v.Weight),
			WeightUnit:       v.WeightUnit,
		})
	}
	for _, img := range p.Images {
		out.Images = append(out.Images, commerce.Image{Src: img.Src, Alt: img.Alt})
	}
	return out
}

// toCreatePayload builds the body of a product create. Ids are never sent.
func toCreatePayload(p commerce.Product) apiProduct {
	tags := joinTags(p.Tags)
	out := apiProduct{
		Handle:      p.Handle,
		Title:       p.Title,
		BodyHTML:    p.BodyHTML,
		Vendor:      p.Vendor,
		ProductType: p.ProductType,
		Tags:        &tags,
		Status:      p.Status,
	}
	if out.Status == "" {
		out.Status = "active"
	}
	for _, o := range p.Options {
		out.Options = append(out.Options, apiOption{Name: o.Name, Values: o.Values})
	}
	for _, v := range p.Variants {
		requires, taxable, weight := v.RequiresShipping, v.Taxable, v.Weight
		out.Variants = append(out.Variants, apiVariant{
			Option1:          optional(v.Option1),
			Option2:          optional(v.Option2),
			Option3:          optional(v.Option3),
			Price:            v.Price,
			CompareAtPrice:   optional(v.CompareAtPrice),
			SKU:              v.SKU,
			RequiresShipping: &requires,
			Taxable:          &taxable,
			Barcode:          optional(v.Barcode),
			Weight:           &weight,
			WeightUnit:       v.WeightUnit,
		})
	}
	for _, img := range p.Images {
		out.Images = append(out.Images, apiImage{Src: img.Src, Alt: img.Alt})
	}
	return out
}

// toUpdatePayload builds a partial update. Empty fields are omitted.
func toUpdatePayload(id int64, u commerce.ProductUpdate) apiProduct {
	out := apiProduct{
		ID:       id,
		Title:    u.Title,
		BodyHTML: u.BodyHTML,
		Handle:   u.Handle,
	}
	if u.Tags != nil {
		tags := joinTags(u.Tags)
		out.Tags = &tags
	}
	for _, o := range u.Options {
		out.Options = append(out.Options, apiOption{Name: o.Name, Values: o.Values})
	}
	for _, v := range u.Variants {
		vid, _ := parseID(v.ID)
		out.Variants = append(out.Variants, apiVariant{
			ID:      vid,
			Option1: optional(v.Option1),
			Option2: optional(v.Option2),
			Option3: optional(v.Option3),
		})
	}
	return out
}

func fromAPIOrder(o apiOrder) commerce.Order {
	out := commerce.Order{ID: formatID(o.ID), CreatedAt: o.CreatedAt}
	for _, li := range o.LineItems {
		item := commerce.LineItem{Title: li.Title, Quantity: li.Quantity}
		if li.ProductID != nil {
			item.ProductID = formatID(*li.ProductID)
		}
		out.LineItems = append(out.LineItems, item)
	}
	return out
}

func splitTags(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func joinTags(tags []string) string {
	return strings.Join(tags, ", ")
}

func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(commerce.ProductIDFromGID(strings.TrimSpace(s)), 10, 64)
	return id, err == nil && id > 0
}

func formatID(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefFloat(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func sortUserErrors(errs []commerce.UserError) {
	sort.SliceStable(errs, func(i, j int) bool {
		return strings.Join(errs[i].Field, ".") < strings.Join(errs[j].Field, ".")
	})
}
