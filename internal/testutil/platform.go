package testutil

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/roach88/storeclone/internal/commerce"
)

// Platform is an in-memory commerce.Platform.
//
// Products get sequential numeric ids starting at the value passed to
// NewPlatform; variants get id*100+index. Failures are injected per method
// with FailNext and consumed one per call.
type Platform struct {
	mu          sync.Mutex
	nextID      int64
	products    map[string]*commerce.Product
	collections map[string][]string
	failures    map[string][]error
	calls       map[string]int

	// Phantom makes CreateProduct report success without storing the product.
	Phantom bool
}

// NewPlatform creates an empty store whose first created product gets firstID.
func NewPlatform(firstID int64) *Platform {
	return &Platform{
		nextID:      firstID,
		products:    make(map[string]*commerce.Product),
		collections: make(map[string][]string),
		failures:    make(map[string][]error),
		calls:       make(map[string]int),
	}
}

// Seed stores products as-is, filling GID from ID when empty.
func (p *Platform) Seed(products ...commerce.Product) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, prod := range products {
		prod := clone(prod)
		if prod.GID == "" {
			prod.GID = commerce.ProductGID(prod.ID)
		}
		p.products[prod.ID] = &prod
	}
}

// FailNext queues errors returned by the next calls of method
// ("FetchProduct", "CreateProduct", "UpdateProduct", "UpdateVariantPrice",
// "AddToCollection").
func (p *Platform) FailNext(method string, errs ...error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[method] = append(p.failures[method], errs...)
}

// Calls returns how many times method was invoked.
func (p *Platform) Calls(method string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[method]
}

// Product returns a copy of the product with the given numeric id.
func (p *Platform) Product(id string) (commerce.Product, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prod, ok := p.products[commerce.ProductIDFromGID(id)]
	if !ok {
		return commerce.Product{}, false
	}
	return clone(*prod), true
}

// Products returns copies of all products ordered by numeric id.
func (p *Platform) Products() []commerce.Product {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]commerce.Product, 0, len(p.products))
	for _, prod := range p.products {
		out = append(out, clone(*prod))
	}
	sort.Slice(out, func(i, j int) bool {
		a, _ := strconv.ParseInt(out[i].ID, 10, 64)
		b, _ := strconv.ParseInt(out[j].ID, 10, 64)
		return a < b
	})
	return out
}

// Collection returns the product ids added to a collection.
func (p *Platform) Collection(id string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.collections[id]...)
}

func (p *Platform) enter(method string) error {
	p.calls[method]++
	if q := p.failures[method]; len(q) > 0 {
		p.failures[method] = q[1:]
		return q[0]
	}
	return nil
}

func (p *Platform) find(idOrHandle string) *commerce.Product {
	if prod, ok := p.products[commerce.ProductIDFromGID(idOrHandle)]; ok {
		return prod
	}
	for _, prod := range p.products {
		if prod.Handle == idOrHandle {
			return prod
		}
	}
	return nil
}

// FetchProduct implements commerce.Platform.
func (p *Platform) FetchProduct(_ context.Context, idOrHandle string) (*commerce.Product, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("FetchProduct"); err != nil {
		return nil, err
	}
	prod := p.find(idOrHandle)
	if prod == nil {
		return nil, fmt.Errorf("fetch %s: %w", idOrHandle, commerce.ErrNotFound)
	}
	c := clone(*prod)
	return &c, nil
}

// CreateProduct implements commerce.Platform.
func (p *Platform) CreateProduct(_ context.Context, in commerce.Product) (commerce.Created, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("CreateProduct"); err != nil {
		return commerce.Created{}, err
	}
	if in.Handle != "" && p.find(in.Handle) != nil {
		return commerce.Created{}, commerce.UserErrors{{Field: []string{"handle"}, Message: "has already been taken"}}
	}

	id := p.nextID
	p.nextID++
	prod := clone(in)
	prod.ID = strconv.FormatInt(id, 10)
	prod.GID = commerce.ProductGID(prod.ID)
	if prod.Status == "" {
		prod.Status = "active"
	}
	for i := range prod.Variants {
		prod.Variants[i].ID = strconv.FormatInt(id*100+int64(i), 10)
	}
	if !p.Phantom {
		p.products[prod.ID] = &prod
	}
	return commerce.Created{ID: prod.ID, GID: prod.GID, Handle: prod.Handle}, nil
}

// UpdateProduct implements commerce.Platform.
func (p *Platform) UpdateProduct(_ context.Context, gid string, u commerce.ProductUpdate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("UpdateProduct"); err != nil {
		return err
	}
	prod := p.find(gid)
	if prod == nil {
		return fmt.Errorf("update %s: %w", gid, commerce.ErrNotFound)
	}
	if u.Handle != "" && u.Handle != prod.Handle {
		if other := p.find(u.Handle); other != nil && other != prod {
			return commerce.UserErrors{{Field: []string{"handle"}, Message: "has already been taken"}}
		}
		prod.Handle = u.Handle
	}
	if u.Title != "" {
		prod.Title = u.Title
	}
	if u.BodyHTML != "" {
		prod.BodyHTML = u.BodyHTML
	}
	if u.Tags != nil {
		prod.Tags = append([]string(nil), u.Tags...)
	}
	if u.Options != nil {
		prod.Options = cloneOptions(u.Options)
	}
	for _, vo := range u.Variants {
		for i := range prod.Variants {
			if prod.Variants[i].ID == vo.ID {
				prod.Variants[i].Option1 = vo.Option1
				prod.Variants[i].Option2 = vo.Option2
				prod.Variants[i].Option3 = vo.Option3
			}
		}
	}
	return nil
}

// UpdateVariantPrice implements commerce.Platform.
func (p *Platform) UpdateVariantPrice(_ context.Context, variantID, price, compareAt string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("UpdateVariantPrice"); err != nil {
		return err
	}
	for _, prod := range p.products {
		for i := range prod.Variants {
			if prod.Variants[i].ID == variantID {
				prod.Variants[i].Price = price
				prod.Variants[i].CompareAtPrice = compareAt
				return nil
			}
		}
	}
	return fmt.Errorf("variant %s: %w", variantID, commerce.ErrNotFound)
}

// AddToCollection implements commerce.Platform.
func (p *Platform) AddToCollection(_ context.Context, productID, collectionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("AddToCollection"); err != nil {
		return err
	}
	id := commerce.ProductIDFromGID(productID)
	for _, existing := range p.collections[collectionID] {
		if existing == id {
			return commerce.ErrAlreadyInCollection
		}
	}
	p.collections[collectionID] = append(p.collections[collectionID], id)
	return nil
}

func clone(p commerce.Product) commerce.Product {
	p.Tags = append([]string(nil), p.Tags...)
	p.Options = cloneOptions(p.Options)
	p.Variants = append([]commerce.Variant(nil), p.Variants...)
	p.Images = append([]commerce.Image(nil), p.Images...)
	return p
}

func cloneOptions(opts []commerce.Option) []commerce.Option {
	if opts == nil {
		return nil
	}
	out := make([]commerce.Option, len(opts))
	for i, o := range opts {
		out[i] = commerce.Option{Name: o.Name, Values: append([]string(nil), o.Values...)}
	}
	return out
}

// Translator is a deterministic commerce.Translator that prefixes text with
// the target language: "Shirt" becomes "[es] Shirt".
type Translator struct {
	mu       sync.Mutex
	failures map[commerce.FieldType]error
	requests []commerce.TranslateRequest
}

// NewTranslator creates a Translator.
func NewTranslator() *Translator {
	return &Translator{failures: make(map[commerce.FieldType]error)}
}

// FailField makes every request for field fail with err.
func (t *Translator) FailField(field commerce.FieldType, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures[field] = err
}

// Requests returns the requests seen so far.
func (t *Translator) Requests() []commerce.TranslateRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]commerce.TranslateRequest(nil), t.requests...)
}

// TranslateText implements commerce.Translator.
func (t *Translator) TranslateText(_ context.Context, req commerce.TranslateRequest) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requests = append(t.requests, req)
	if err := t.failures[req.Field]; err != nil {
		return "", err
	}
	return "[" + strings.ToLower(req.TargetLang) + "] " + req.Text, nil
}

// Orders is an in-memory commerce.OrderSource serving pages in order.
// Page n is addressed by the cursor "page-n".
type Orders struct {
	mu      sync.Mutex
	pages   [][]commerce.Order
	queries []commerce.OrderQuery
}

// NewOrders creates a source that returns pages in order.
func NewOrders(pages ...[]commerce.Order) *Orders {
	return &Orders{pages: pages}
}

// Queries returns the queries seen so far.
func (o *Orders) Queries() []commerce.OrderQuery {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]commerce.OrderQuery(nil), o.queries...)
}

// ListOrders implements commerce.OrderSource.
func (o *Orders) ListOrders(_ context.Context, q commerce.OrderQuery) (commerce.OrderPage, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.queries = append(o.queries, q)

	idx := 0
	if q.PageInfo != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(q.PageInfo, "page-"))
		if err != nil {
			return commerce.OrderPage{}, fmt.Errorf("bad cursor %q", q.PageInfo)
		}
		idx = n
	}
	if idx >= len(o.pages) {
		return commerce.OrderPage{}, nil
	}
	page := commerce.OrderPage{Orders: o.pages[idx]}
	if idx+1 < len(o.pages) {
		page.NextPageInfo = "page-" + strconv.Itoa(idx+1)
	}
	return page, nil
}
