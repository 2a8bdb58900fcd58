package shopify

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/storeclone/internal/commerce"
)

// maxPageLimit is the largest page the orders endpoint serves.
const maxPageLimit = 250

// ListOrders returns one page of orders. When q.PageInfo is set only the
// cursor and limit are sent; the API rejects other filters alongside it.
func (c *Client) ListOrders(ctx context.Context, q commerce.OrderQuery) (commerce.OrderPage, error) {
	limit := q.Limit
	if limit <= 0 || limit > maxPageLimit {
		limit = maxPageLimit
	}

	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("fields", "id,created_at,line_items")
	if q.PageInfo != "" {
		params.Set("page_info", q.PageInfo)
	} else {
		params.Set("status", "any")
		if q.FinancialStatus != "" {
			params.Set("financial_status", q.FinancialStatus)
		}
		if !q.CreatedAtMin.IsZero() {
			params.Set("created_at_min", q.CreatedAtMin.UTC().Format(time.RFC3339))
		}
		if !q.CreatedAtMax.IsZero() {
			params.Set("created_at_max", q.CreatedAtMax.UTC().Format(time.RFC3339))
		}
	}

	r, err := c.do(ctx, "list orders", http.MethodGet, "/orders.json?"+params.Encode(), nil)
	if err != nil {
		return commerce.OrderPage{}, err
	}
	var env ordersEnvelope
	if err := c.decode("list orders", r, &env); err != nil {
		return commerce.OrderPage{}, err
	}

	page := commerce.OrderPage{NextPageInfo: nextPageInfo(r.header.Get("Link"))}
	for _, o := range env.Orders {
		page.Orders = append(page.Orders, fromAPIOrder(o))
	}
	return page, nil
}

// nextPageInfo extracts the page_info cursor of the rel="next" entry of a
// Link header such as
//
//	<https://shop/admin/api/2024-01/orders.json?limit=250&page_info=abc>; rel="next"
func nextPageInfo(link string) string {
	for _, part := range strings.Split(link, ",") {
		segs := strings.Split(part, ";")
		if len(segs) < 2 {
			continue
		}
		isNext := false
		for _, attr := range segs[1:] {
			if strings.TrimSpace(attr) == `rel="next"` {
				isNext = true
			}
		}
		if !isNext {
			continue
		}
		raw := strings.Trim(strings.TrimSpace(segs[0]), "<>")
		u, err := url.Parse(raw)
		if err != nil {
			return ""
		}
		return u.Query().Get("page_info")
	}
	return ""
}
