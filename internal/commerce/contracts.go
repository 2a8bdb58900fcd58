package commerce

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Platform is the commerce API of one store.
type Platform interface {
	// FetchProduct resolves a numeric id, a product GID or a handle.
	// Returns ErrNotFound when nothing matches.
	FetchProduct(ctx context.Context, idOrHandle string) (*Product, error)

	// CreateProduct creates an active product from p. p.ID and p.GID are ignored.
	CreateProduct(ctx context.Context, p Product) (Created, error)

	// UpdateProduct applies a partial update. Field rejections come back as UserErrors.
	UpdateProduct(ctx context.Context, gid string, u ProductUpdate) error

	// UpdateVariantPrice sets the price and compare-at price of one variant.
	UpdateVariantPrice(ctx context.Context, variantID, price, compareAt string) error

	// AddToCollection adds a product to a collection. Returns
	// ErrAlreadyInCollection when the product is already a member.
	AddToCollection(ctx context.Context, productID, collectionID string) error
}

// OrderQuery selects one page of orders.
type OrderQuery struct {
	CreatedAtMin    time.Time
	CreatedAtMax    time.Time
	FinancialStatus string
	Limit           int

	// PageInfo is the opaque cursor returned by the previous page.
	PageInfo string
}

// OrderPage is one page of orders and the cursor of the next page.
// NextPageInfo is empty on the last page.
type OrderPage struct {
	Orders       []Order
	NextPageInfo string
}

// OrderSource lists orders of the source store.
type OrderSource interface {
	ListOrders(ctx context.Context, q OrderQuery) (OrderPage, error)
}

// Method selects a translation provider.
type Method string

const (
	MethodDictionary Method = "dictionary"
	MethodGoogle     Method = "google"
	MethodDeepL      Method = "deepl"
	MethodChatGPT    Method = "chatgpt"
	MethodDeepSeek   Method = "deepseek"
)

var methods = []Method{MethodDictionary, MethodGoogle, MethodDeepL, MethodChatGPT, MethodDeepSeek}

// ParseMethod validates a provider name.
func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range methods {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown translation method %q", s)
}

// FieldType tells the provider what kind of text it is translating.
type FieldType string

const (
	FieldTitle       FieldType = "title"
	FieldDescription FieldType = "description"
	FieldTag         FieldType = "tag"
	FieldOptionName  FieldType = "option_name"
	FieldOptionValue FieldType = "option_value"
)

// TranslateRequest is one call to a translation provider.
type TranslateRequest struct {
	Text        string
	Method      Method
	SourceLang  string
	TargetLang  string
	Field       FieldType
	Instruction string
}

// Translator translates text with the requested provider.
type Translator interface {
	TranslateText(ctx context.Context, req TranslateRequest) (string, error)
}
