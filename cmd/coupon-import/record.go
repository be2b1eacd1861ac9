package main

import (
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/burgershop/order-service/internal/domain/coupon"
)

// parseRecord decodes one JSON line produced by the promotions subsystem:
//
//	{"id":"...","code":"SAVE10","userId":"u1","discountType":"percentage",
//	 "value":"0.10","expiresAt":"2026-01-01T00:00:00Z","prizeName":"10% off"}
//
// value may be a JSON string or number. id is generated when absent.
func parseRecord(line []byte) (coupon.Coupon, error) {
	var (
		c         coupon.Coupon
		value     string
		expiresAt string
	)
	d := jx.DecodeBytes(line)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			c.ID, err = d.Str()
		case "code":
			c.Code, err = d.Str()
		case "userId":
			c.AssignedTo, err = d.Str()
		case "discountType":
			var s string
			s, err = d.Str()
			c.DiscountType = coupon.DiscountType(s)
		case "value":
			value, err = decodeNumber(d)
		case "expiresAt":
			expiresAt, err = d.Str()
		case "prizeName":
			c.PrizeName, err = d.Str()
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	}); err != nil {
		return coupon.Coupon{}, errors.Wrap(err, "decode")
	}

	c.Code = strings.TrimSpace(c.Code)
	switch {
	case c.Code == "":
		return coupon.Coupon{}, errors.New("code is required")
	case c.AssignedTo == "":
		return coupon.Coupon{}, errors.New("userId is required")
	case !c.DiscountType.Valid():
		return coupon.Coupon{}, errors.Errorf("unsupported discount type %q", c.DiscountType)
	case expiresAt == "":
		return coupon.Coupon{}, errors.New("expiresAt is required")
	}

	if value != "" {
		v, err := decimal.NewFromString(value)
		if err != nil {
			return coupon.Coupon{}, errors.Wrap(err, "value")
		}
		if v.IsNegative() {
			return coupon.Coupon{}, errors.New("value must not be negative")
		}
		c.Value = v
	} else if c.DiscountType != coupon.DiscountFreeItem {
		return coupon.Coupon{}, errors.New("value is required")
	}

	t, err := time.Parse(time.RFC3339, expiresAt)
	if err != nil {
		return coupon.Coupon{}, errors.Wrap(err, "expiresAt")
	}
	c.ExpiresAt = t.UTC()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return c, nil
}

func decodeNumber(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		return n.String(), nil
	case jx.Null:
		return "", d.Null()
	default:
		return "", errors.New("expected number")
	}
}
