package apiclient

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"biliticket/possync/internal/model"
)

type InventorySearch struct {
	Query    string
	Category string
	Limit    int
}

type StockReservation struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"qty"`
	OrderID   string `json:"orderId,omitempty"`
}

func (c *Client) SearchInventory(ctx context.Context, search InventorySearch) ([]model.Product, error) {
	q := url.Values{}
	if search.Query != "" {
		q.Set("q", search.Query)
	}
	if search.Category != "" {
		q.Set("category", search.Category)
	}
	if search.Limit > 0 {
		q.Set("limit", itoa(search.Limit))
	}
	var products []model.Product
	if err := c.doJSON(ctx, http.MethodGet, "/api/inventory", q, nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

func (c *Client) GetProduct(ctx context.Context, productID string) (*model.Product, error) {
	var product model.Product
	if err := c.doJSON(ctx, http.MethodGet, "/api/inventory/"+url.PathEscape(productID), nil, nil, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

func (c *Client) ReserveStock(ctx context.Context, r StockReservation) error {
	return c.doJSON(ctx, http.MethodPost, "/api/inventory/"+url.PathEscape(r.ProductID)+"/reserve", nil, r, nil)
}

func (c *Client) ReleaseStock(ctx context.Context, r StockReservation) error {
	return c.doJSON(ctx, http.MethodPost, "/api/inventory/"+url.PathEscape(r.ProductID)+"/release", nil, r, nil)
}

func itoa(n int) string { return strconv.Itoa(n) }
