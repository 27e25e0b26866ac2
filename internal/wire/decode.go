package wire

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/jewellery-pos/internal/domain/pricing"
	"github.com/xenking/jewellery-pos/internal/domain/product"
	"github.com/xenking/jewellery-pos/internal/domain/sale"
)

// Cart is the body of the quote, availability and checkout calls.
type Cart struct {
	Items         []product.Item
	Discount      pricing.Discount
	TradeIns      []string
	PaymentMethod sale.PaymentMethod
	Notes         string
	RegisterID    string
	// QuotedNetTotal is the net total the operator was shown, if any. A
	// commit whose fresh total differs is refused.
	QuotedNetTotal *decimal.Decimal
}

// DecodeCart reads a Cart. Unknown fields are skipped.
func DecodeCart(d *jx.Decoder) (Cart, error) {
	var c Cart
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "lines":
			return d.Arr(func(d *jx.Decoder) error {
				item, err := decodeItem(d)
				if err != nil {
					return err
				}
				c.Items = append(c.Items, item)
				return nil
			})
		case "discount":
			disc, err := decodeDiscount(d)
			if err != nil {
				return errors.Wrap(err, "discount")
			}
			c.Discount = disc
			return nil
		case "trade_ins":
			return d.Arr(func(d *jx.Decoder) error {
				id, err := d.Str()
				if err != nil {
					return errors.Wrap(err, "trade_ins")
				}
				c.TradeIns = append(c.TradeIns, id)
				return nil
			})
		case "payment_method":
			v, err := d.Str()
			c.PaymentMethod = sale.PaymentMethod(v)
			return err
		case "notes":
			v, err := d.Str()
			c.Notes = v
			return err
		case "register_id":
			v, err := d.Str()
			c.RegisterID = v
			return err
		case "quoted_net_total":
			if d.Next() == jx.Null {
				return d.Null()
			}
			v, err := decodeDecimal(d)
			if err != nil {
				return errors.Wrap(err, "quoted_net_total")
			}
			c.QuotedNetTotal = &v
			return nil
		default:
			return d.Skip()
		}
	})
	return c, err
}

func decodeItem(d *jx.Decoder) (product.Item, error) {
	var item product.Item
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "product_id":
			v, err := d.Str()
			item.ProductID = v
			return err
		case "quantity":
			v, err := d.Int()
			item.Quantity = v
			return err
		default:
			return d.Skip()
		}
	})
	return item, err
}

func decodeDiscount(d *jx.Decoder) (pricing.Discount, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	var (
		typ   pricing.DiscountType
		value decimal.Decimal
	)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "type":
			v, err := d.Str()
			typ = pricing.DiscountType(v)
			return err
		case "value":
			v, err := decodeDecimal(d)
			value = v
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, err
	}
	return pricing.ParseDiscount(typ, value)
}

// Exponent bounds for decoded decimals. Arithmetic rescales operands, so an
// unbounded exponent lets a short input allocate arbitrarily large values.
const (
	minDecimalExponent = -8
	maxDecimalExponent = 12
)

// decodeDecimal accepts a JSON number or a numeric string.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		raw = s
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		raw = n.String()
	default:
		return decimal.Decimal{}, errors.Errorf("expected number, got %s", d.Next())
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if exp := v.Exponent(); exp < minDecimalExponent || exp > maxDecimalExponent {
		return decimal.Decimal{}, errors.Errorf("decimal %q out of range", raw)
	}
	return v, nil
}
