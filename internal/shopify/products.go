package shopify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/roach88/storeclone/internal/commerce"
)

// FetchProduct resolves a numeric id, a product GID or a handle.
func (c *Client) FetchProduct(ctx context.Context, idOrHandle string) (*commerce.Product, error) {
	key := strings.TrimSpace(idOrHandle)
	if key == "" {
		return nil, fmt.Errorf("fetch product: empty id: %w", commerce.ErrNotFound)
	}

	if id, ok := parseID(key); ok {
		r, err := c.do(ctx, "fetch product", http.MethodGet, fmt.Sprintf("/products/%d.json", id), nil)
		if err != nil {
			return nil, notFound(err, key)
		}
		var env productEnvelope
		if err := c.decode("fetch product", r, &env); err != nil {
			return nil, err
		}
		return fromAPIProduct(env.Product), nil
	}

	r, err := c.do(ctx, "fetch product by handle", http.MethodGet, "/products.json?handle="+url.QueryEscape(key), nil)
	if err != nil {
		return nil, err
	}
	var env productsEnvelope
	if err := c.decode("fetch product by handle", r, &env); err != nil {
		return nil, err
	}
	for _, p := range env.Products {
		if p.Handle == key {
			return fromAPIProduct(p), nil
		}
	}
	return nil, fmt.Errorf("fetch product by handle %s: %w", key, commerce.ErrNotFound)
}

// CreateProduct creates p. Ids on p are ignored.
func (c *Client) CreateProduct(ctx context.Context, p commerce.Product) (commerce.Created, error) {
	r, err := c.do(ctx, "create product", http.MethodPost, "/products.json",
		productEnvelope{Product: toCreatePayload(p)})
	if err != nil {
		return commerce.Created{}, rejected(r, err)
	}
	var env productEnvelope
	if err := c.decode("create product", r, &env); err != nil {
		return commerce.Created{}, err
	}
	created := fromAPIProduct(env.Product)
	if created.ID == "" {
		return commerce.Created{}, errors.New("create product: response carries no product id")
	}
	return commerce.Created{ID: created.ID, GID: created.GID, Handle: created.Handle}, nil
}

// UpdateProduct applies u to the product gid.
func (c *Client) UpdateProduct(ctx context.Context, gid string, u commerce.ProductUpdate) error {
	id, ok := parseID(gid)
	if !ok {
		return fmt.Errorf("update product: invalid product id %q", gid)
	}
	r, err := c.do(ctx, "update product", http.MethodPut, fmt.Sprintf("/products/%d.json", id),
		productEnvelope{Product: toUpdatePayload(id, u)})
	if err != nil {
		return notFound(rejected(r, err), gid)
	}
	return nil
}

// UpdateVariantPrice sets price and compare-at price. An empty compareAt
// clears it.
func (c *Client) UpdateVariantPrice(ctx context.Context, variantID, price, compareAt string) error {
	id, ok := parseID(variantID)
	if !ok {
		return fmt.Errorf("update variant price: invalid variant id %q", variantID)
	}
	r, err := c.do(ctx, "update variant price", http.MethodPut, fmt.Sprintf("/variants/%d.json", id),
		variantEnvelope{Variant: apiVariantPrice{ID: id, Price: price, CompareAtPrice: optional(compareAt)}})
	if err != nil {
		return notFound(rejected(r, err), variantID)
	}
	return nil
}

// AddToCollection creates a collect linking the product to a custom collection.
func (c *Client) AddToCollection(ctx context.Context, productID, collectionID string) error {
	pid, ok := parseID(productID)
	if !ok {
		return fmt.Errorf("add to collection: invalid product id %q", productID)
	}
	cid, ok := parseID(collectionID)
	if !ok {
		return fmt.Errorf("add to collection: invalid collection id %q", collectionID)
	}
	r, err := c.do(ctx, "add to collection", http.MethodPost, "/collects.json",
		collectEnvelope{Collect: apiCollect{ProductID: pid, CollectionID: cid}})
	if err == nil {
		return nil
	}
	var se *commerce.StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusUnprocessableEntity &&
		strings.Contains(strings.ToLower(string(r.body)), "already") {
		return commerce.ErrAlreadyInCollection
	}
	return rejected(r, err)
}

func notFound(err error, key string) error {
	var se *commerce.StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", se.Op, key, commerce.ErrNotFound)
	}
	return err
}
