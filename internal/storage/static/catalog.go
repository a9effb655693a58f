// Package static serves the product catalog from a YAML file held in memory.
package static

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/xenking/kart-checkout/internal/domain/product"
)

var _ product.Repository = (*Catalog)(nil)

type catalogFile struct {
	Products []productEntry `yaml:"products"`
}

type productEntry struct {
	ID    string `yaml:"id"`
	Title string `yaml:"title"`
	// Price is kept as text so "6.50" is read exactly.
	Price string `yaml:"price"`
}

// Parse reads a YAML catalog:
//
//	products:
//	  - id: "1"
//	    title: Waffle with Berries
//	    price: "6.50"
func Parse(r io.Reader) ([]product.Product, error) {
	var f catalogFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return []product.Product{}, nil
		}
		return nil, errors.Wrap(err, "decode catalog")
	}

	products := make([]product.Product, 0, len(f.Products))
	seen := make(map[string]struct{}, len(f.Products))
	for i, e := range f.Products {
		if e.ID == "" {
			return nil, errors.Errorf("product #%d: id is required", i+1)
		}
		if _, dup := seen[e.ID]; dup {
			return nil, errors.Errorf("product %q: duplicate id", e.ID)
		}
		seen[e.ID] = struct{}{}

		if e.Title == "" {
			return nil, errors.Errorf("product %q: title is required", e.ID)
		}
		price, err := decimal.NewFromString(e.Price)
		if err != nil {
			return nil, errors.Wrapf(err, "product %q: parse price", e.ID)
		}
		if price.IsNegative() {
			return nil, errors.Errorf("product %q: negative price %s", e.ID, price)
		}

		products = append(products, product.Product{ID: e.ID, Title: e.Title, Price: price})
	}
	return products, nil
}

// ReadFile parses the catalog at path. Files ending in ".gz" are
// decompressed first.
func ReadFile(path string) (_ []product.Product, rerr error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, errors.Wrap(err, "open catalog")
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		zr, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "open gzip stream")
		}
		defer func() {
			if err := zr.Close(); err != nil && rerr == nil {
				rerr = errors.Wrap(err, "close gzip stream")
			}
		}()
		r = zr
	}
	return Parse(r)
}

// Catalog is an immutable in-memory product.Repository.
type Catalog struct {
	products []product.Product
	byID     map[string]int
}

// NewCatalog builds a Catalog preserving the order of products.
func NewCatalog(products []product.Product) *Catalog {
	byID := make(map[string]int, len(products))
	for i, p := range products {
		byID[p.ID] = i
	}
	return &Catalog{products: slices.Clone(products), byID: byID}
}

// Load reads the catalog file at path into a Catalog.
func Load(path string) (*Catalog, error) {
	products, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewCatalog(products), nil
}

// List returns the catalog in file order.
func (c *Catalog) List(_ context.Context) ([]product.Product, error) {
	return slices.Clone(c.products), nil
}

// GetByID returns a single product by its identifier.
func (c *Catalog) GetByID(_ context.Context, id string) (*product.Product, error) {
	i, ok := c.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	p := c.products[i]
	return &p, nil
}
