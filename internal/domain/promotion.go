package domain

import (
	"errors"
	"fmt"
	"time"
)

type PromotionKind string

const (
	PromoPercentage  PromotionKind = "percentage"
	PromoFixedAmount PromotionKind = "fixed_amount"
	PromoBuyXGetY    PromotionKind = "buy_x_get_y"
	PromoBundle      PromotionKind = "bundle"
)

// Promotion is a tagged union keyed by Kind: only the fields belonging to
// that kind may be set. Validate enforces this at construction time.
//
// Percent is used by percentage. AmountCents is used by fixed_amount and
// bundle. BuyQty/GetQty are used by buy_x_get_y. BundleSKUs is used by
// bundle. ProductSKUs/Categories are the eligibility allow-lists shared by
// every kind; both empty means the promotion applies to the whole cart.
type Promotion struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	Kind             PromotionKind `json:"kind"`
	Percent          float64       `json:"percent,omitempty"`
	AmountCents      int64         `json:"amount_cents,omitempty"`
	BuyQty           int           `json:"buy_qty,omitempty"`
	GetQty           int           `json:"get_qty,omitempty"`
	BundleSKUs       []string      `json:"bundle_skus,omitempty"`
	StartsAt         time.Time     `json:"starts_at"`
	EndsAt           time.Time     `json:"ends_at"`
	Active           bool          `json:"active"`
	MinSubtotalCents int64         `json:"min_subtotal_cents"`
	MaxUses          int           `json:"max_uses,omitempty"`
	CurrentUses      int           `json:"current_uses"`
	ProductSKUs      []string      `json:"product_skus,omitempty"`
	Categories       []string      `json:"categories,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
}

var ErrInvalidPromotion = errors.New("invalid promotion")

// Validate rejects malformed promotions, including fields that belong to a
// different kind than the one declared.
func (p Promotion) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: name required", ErrInvalidPromotion)
	}
	if p.StartsAt.IsZero() || p.EndsAt.IsZero() || !p.EndsAt.After(p.StartsAt) {
		return fmt.Errorf("%w: validity window must satisfy starts_at < ends_at", ErrInvalidPromotion)
	}
	if p.MinSubtotalCents < 0 {
		return fmt.Errorf("%w: min_subtotal_cents must not be negative", ErrInvalidPromotion)
	}
	if p.MaxUses < 0 {
		return fmt.Errorf("%w: max_uses must not be negative", ErrInvalidPromotion)
	}

	switch p.Kind {
	case PromoPercentage:
		if p.Percent <= 0 || p.Percent > 100 {
			return fmt.Errorf("%w: percent must be in (0,100]", ErrInvalidPromotion)
		}
		if p.AmountCents != 0 || p.BuyQty != 0 || p.GetQty != 0 || len(p.BundleSKUs) != 0 {
			return fmt.Errorf("%w: percentage carries only percent", ErrInvalidPromotion)
		}
	case PromoFixedAmount:
		if p.AmountCents < 1 {
			return fmt.Errorf("%w: amount_cents must be positive", ErrInvalidPromotion)
		}
		if p.Percent != 0 || p.BuyQty != 0 || p.GetQty != 0 || len(p.BundleSKUs) != 0 {
			return fmt.Errorf("%w: fixed_amount carries only amount_cents", ErrInvalidPromotion)
		}
	case PromoBuyXGetY:
		if p.BuyQty < 1 || p.GetQty < 1 {
			return fmt.Errorf("%w: buy_qty and get_qty must be at least 1", ErrInvalidPromotion)
		}
		if p.Percent != 0 || p.AmountCents != 0 || len(p.BundleSKUs) != 0 {
			return fmt.Errorf("%w: buy_x_get_y carries only buy_qty and get_qty", ErrInvalidPromotion)
		}
	case PromoBundle:
		if p.AmountCents < 1 {
			return fmt.Errorf("%w: amount_cents must be positive", ErrInvalidPromotion)
		}
		if len(p.BundleSKUs) < 2 {
			return fmt.Errorf("%w: bundle requires at least two skus", ErrInvalidPromotion)
		}
		if p.Percent != 0 || p.BuyQty != 0 || p.GetQty != 0 {
			return fmt.Errorf("%w: bundle carries only amount_cents and bundle_skus", ErrInvalidPromotion)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidPromotion, p.Kind)
	}

	return nil
}

// ValidAt reports whether the promotion may be considered at all: active,
// inside [starts_at, ends_at), and not already at its usage cap.
func (p Promotion) ValidAt(now time.Time) bool {
	if !p.Active {
		return false
	}
	if now.Before(p.StartsAt) || !now.Before(p.EndsAt) {
		return false
	}
	if p.MaxUses > 0 && p.CurrentUses >= p.MaxUses {
		return false
	}
	return true
}

// Unrestricted reports whether the promotion applies to the entire cart.
func (p Promotion) Unrestricted() bool {
	return len(p.ProductSKUs) == 0 && len(p.Categories) == 0
}

// Exhausted reports whether the usage cap has been reached.
func (p Promotion) Exhausted() bool {
	return p.MaxUses > 0 && p.CurrentUses >= p.MaxUses
}

// PromotionResult is the evaluator's verdict: which promotion to apply, the
// discount it grants, and the lines it covered.
type PromotionResult struct {
	PromotionID   string   `json:"promotion_id"`
	Name          string   `json:"name"`
	DiscountCents int64    `json:"discount_cents"`
	AppliedSKUs   []string `json:"applied_skus"`
	Description   string   `json:"description"`
}

type PromotionCreateRequest struct {
	Name             string        `json:"name"`
	Kind             PromotionKind `json:"kind"`
	Percent          float64       `json:"percent,omitempty"`
	AmountCents      int64         `json:"amount_cents,omitempty"`
	BuyQty           int           `json:"buy_qty,omitempty"`
	GetQty           int           `json:"get_qty,omitempty"`
	BundleSKUs       []string      `json:"bundle_skus,omitempty"`
	StartsAt         string        `json:"starts_at"`
	EndsAt           string        `json:"ends_at"`
	MinSubtotalCents int64         `json:"min_subtotal_cents"`
	MaxUses          int           `json:"max_uses,omitempty"`
	ProductSKUs      []string      `json:"product_skus,omitempty"`
	Categories       []string      `json:"categories,omitempty"`
}

type PromotionToggleRequest struct {
	Active bool `json:"active"`
}
