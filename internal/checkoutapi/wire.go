package checkoutapi

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/kart-checkout/internal/domain/checkout"
)

// EncodeLineItems writes items in the session endpoint's wire format:
//
//	[{"price_data":{"currency":"GBP","unit_amount":650,"product_data":{"name":"Waffle"}},"quantity":2}]
func EncodeLineItems(e *jx.Encoder, items []checkout.LineItem) {
	e.ArrStart()
	for _, item := range items {
		e.ObjStart()
		e.FieldStart("price_data")
		e.ObjStart()
		e.FieldStart("currency")
		e.Str(item.PriceData.Currency)
		e.FieldStart("unit_amount")
		e.Int64(item.PriceData.UnitAmount)
		e.FieldStart("product_data")
		e.ObjStart()
		e.FieldStart("name")
		e.Str(item.PriceData.ProductData.Name)
		e.ObjEnd()
		e.ObjEnd()
		e.FieldStart("quantity")
		e.Int(item.Quantity)
		e.ObjEnd()
	}
	e.ArrEnd()
}

// ErrNotArray is returned by DecodeLineItems when the payload is not a JSON
// array.
var ErrNotArray = errors.New("line items must be a JSON array")

// DecodeLineItems parses the wire format produced by EncodeLineItems.
// Unknown fields are skipped.
func DecodeLineItems(d *jx.Decoder) ([]checkout.LineItem, error) {
	if d.Next() != jx.Array {
		return nil, ErrNotArray
	}

	items := []checkout.LineItem{}
	err := d.Arr(func(d *jx.Decoder) error {
		var item checkout.LineItem
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			switch key {
			case "price_data":
				return decodePriceData(d, &item.PriceData)
			case "quantity":
				v, err := d.Int()
				item.Quantity = v
				return err
			default:
				return d.Skip()
			}
		}); err != nil {
			return err
		}
		items = append(items, item)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode line items")
	}
	return items, nil
}

func decodePriceData(d *jx.Decoder, pd *checkout.PriceData) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "currency":
			pd.Currency, err = d.Str()
		case "unit_amount":
			pd.UnitAmount, err = d.Int64()
		case "product_data":
			err = d.Obj(func(d *jx.Decoder, key string) error {
				if key != "name" {
					return d.Skip()
				}
				v, err := d.Str()
				pd.ProductData.Name = v
				return err
			})
		default:
			err = d.Skip()
		}
		return err
	})
}
