// Package view renders the storefront HTML pages.
package view

import (
	"bytes"
	"embed"
	"html/template"
	"io"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/product"
)

//go:embed templates/*.html
var templatesFS embed.FS

// CatalogPage lists products that can be added to the cart.
type CatalogPage struct {
	Products []product.Product
}

// CartPage shows the cart contents and the summary with its calls to action.
type CartPage struct {
	Items []cart.Item
	// ItemsCount is the number of distinct items, not the sum of counts.
	ItemsCount int
}

// CheckoutPage shows the order details before payment.
type CheckoutPage struct {
	Items []cart.Item
	Total decimal.Decimal
}

// NewCartPage builds the cart page model from a snapshot.
func NewCartPage(items []cart.Item) CartPage {
	return CartPage{Items: items, ItemsCount: len(items)}
}

// NewCheckoutPage builds the checkout page model from a snapshot.
func NewCheckoutPage(items []cart.Item) CheckoutPage {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Count))))
	}
	return CheckoutPage{Items: items, Total: total}
}

// Renderer executes the embedded page templates.
type Renderer struct {
	pages map[string]*template.Template
}

type pageData struct {
	Title string
	Page  any
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	funcs := template.FuncMap{
		"money": func(d decimal.Decimal) string { return d.StringFixed(2) },
	}

	pages := make(map[string]*template.Template, 3)
	for _, name := range []string{"catalog", "cart", "checkout"} {
		t, err := template.New(name).Funcs(funcs).ParseFS(templatesFS,
			"templates/layout.html",
			"templates/"+name+".html",
		)
		if err != nil {
			return nil, errors.Wrapf(err, "parse %s template", name)
		}
		pages[name] = t
	}
	return &Renderer{pages: pages}, nil
}

// Catalog renders the product list.
func (r *Renderer) Catalog(w io.Writer, p CatalogPage) error {
	return r.render(w, "catalog", "Products", p)
}

// Cart renders the cart page.
func (r *Renderer) Cart(w io.Writer, p CartPage) error {
	return r.render(w, "cart", "Cart", p)
}

// Checkout renders the checkout details page.
func (r *Renderer) Checkout(w io.Writer, p CheckoutPage) error {
	return r.render(w, "checkout", "Checkout", p)
}

// render buffers the output so a failing template never leaves a partial
// page behind.
func (r *Renderer) render(w io.Writer, name, title string, page any) error {
	var buf bytes.Buffer
	if err := r.pages[name].ExecuteTemplate(&buf, "layout", pageData{Title: title, Page: page}); err != nil {
		return errors.Wrapf(err, "render %s", name)
	}
	_, err := buf.WriteTo(w)
	return err
}
