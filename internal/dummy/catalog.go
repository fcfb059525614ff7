package dummy

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/pkg/errors"
)

// SortType orders the popular-products listing.
type SortType string

const (
	ByViewCount SortType = "VIEW_COUNT"
	BySoldCount SortType = "SOLD_COUNT"
)

// Product mirrors the catalog service's product payload.
type Product struct {
	ProductID   int64     `json:"productId"`
	ProductName string    `json:"productName"`
	Description string    `json:"description"`
	Price       int       `json:"price"`
	Quantity    int       `json:"quantity"`
	ViewCount   int       `json:"viewCount"`
	SoldCount   int       `json:"soldCount"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

var seededAt = time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC)

var fixedProducts = []Product{
	{ProductID: 1, ProductName: "Wireless Earbuds", Description: "Noise cancelling in-ear earbuds", Price: 89000, Quantity: 150, ViewCount: 1200, SoldCount: 310},
	{ProductID: 2, ProductName: "Mechanical Keyboard", Description: "Tenkeyless keyboard with brown switches", Price: 129000, Quantity: 80, ViewCount: 950, SoldCount: 120},
	{ProductID: 3, ProductName: "USB-C Hub", Description: "7-in-1 hub with HDMI and card reader", Price: 45000, Quantity: 300, ViewCount: 640, SoldCount: 420},
}

// Catalog is an immutable in-memory product set.
type Catalog struct {
	products []Product
	byID     map[int64]Product
}

// NewCatalog returns the three fixed products followed by size-3 generated
// ones. The same seed always yields the same catalog.
func NewCatalog(size int, seed int64) *Catalog {
	rnd := rand.New(rand.NewSource(seed))

	products := make([]Product, 0, size)
	for _, p := range fixedProducts {
		p.CreatedAt, p.UpdatedAt = seededAt, seededAt
		products = append(products, p)
	}
	for id := int64(len(products) + 1); len(products) < size; id++ {
		created := seededAt.Add(time.Duration(rnd.Intn(24*90)) * time.Hour)
		products = append(products, Product{
			ProductID:   id,
			ProductName: fmt.Sprintf("Product %d", id),
			Description: fmt.Sprintf("Generated catalog item %d", id),
			Price:       (rnd.Intn(200) + 1) * 1000,
			Quantity:    rnd.Intn(500),
			ViewCount:   rnd.Intn(5000),
			SoldCount:   rnd.Intn(1000),
			CreatedAt:   created,
			UpdatedAt:   created,
		})
	}

	c := &Catalog{products: products, byID: make(map[int64]Product, len(products))}
	for _, p := range products {
		c.byID[p.ProductID] = p
	}
	return c
}

// Fixed returns the three products served by the listing endpoint.
func (c *Catalog) Fixed() []Product {
	out := make([]Product, len(fixedProducts))
	copy(out, c.products[:len(fixedProducts)])
	return out
}

func (c *Catalog) Get(id int64) (Product, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// Top returns at most n products ordered by the sort key, highest first.
// Ties keep ascending product id.
func (c *Catalog) Top(sortType SortType, n int) ([]Product, error) {
	var key func(Product) int
	switch sortType {
	case ByViewCount:
		key = func(p Product) int { return p.ViewCount }
	case BySoldCount:
		key = func(p Product) int { return p.SoldCount }
	default:
		return nil, errors.Errorf("invalid sortType %q: want %s or %s", sortType, ByViewCount, BySoldCount)
	}

	out := make([]Product, len(c.products))
	copy(out, c.products)
	sort.SliceStable(out, func(i, j int) bool { return key(out[i]) > key(out[j]) })
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}
