// Package promotion decides which promotion, if any, applies to a priced
// cart. Only one promotion is ever applied per sale: among all valid
// promotions with a positive discount the strictly largest discount wins,
// and ties resolve to the first promotion in input order.
package promotion

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"tiendita/internal/domain"
	"tiendita/internal/util"
)

type Evaluator struct {
	logger *zap.Logger
}

func NewEvaluator() *Evaluator {
	return &Evaluator{logger: util.GetLogger()}
}

// Evaluate returns the winning promotion for the cart, or nil when no
// promotion is valid and applicable. The decision is deterministic: the same
// promotions, lines, subtotal and clock always yield the same result.
func (e *Evaluator) Evaluate(promotions []domain.Promotion, lines []domain.CartLine, subtotal int64, now time.Time) *domain.PromotionResult {
	if len(lines) == 0 || subtotal < 1 {
		return nil
	}

	var best *domain.PromotionResult
	for _, promo := range promotions {
		if !promo.ValidAt(now) || subtotal < promo.MinSubtotalCents {
			continue
		}

		eligible := eligibleLines(promo, lines)
		if len(eligible) == 0 {
			continue
		}

		discount := discountFor(promo, eligible, lines)
		if discount < 1 {
			continue
		}
		if discount > subtotal {
			discount = subtotal
		}

		if best == nil || discount > best.DiscountCents {
			best = &domain.PromotionResult{
				PromotionID:   promo.ID,
				Name:          promo.Name,
				DiscountCents: discount,
				AppliedSKUs:   skusOf(eligible),
				Description:   describe(promo, discount),
			}
		}
	}

	if best != nil {
		e.logger.Debug("promotion selected",
			zap.String("promotion_id", best.PromotionID),
			zap.Int64("discount_cents", best.DiscountCents))
	}
	return best
}

// eligibleLines filters the cart down to lines the promotion may touch: the
// SKU is on the product allow-list, or the category is on the category
// allow-list, or both lists are empty.
func eligibleLines(promo domain.Promotion, lines []domain.CartLine) []domain.CartLine {
	if promo.Unrestricted() {
		return lines
	}

	skuSet := toSet(promo.ProductSKUs)
	catSet := toSet(promo.Categories)

	eligible := make([]domain.CartLine, 0, len(lines))
	for _, line := range lines {
		if _, ok := skuSet[line.SKU]; ok {
			eligible = append(eligible, line)
			continue
		}
		if _, ok := catSet[line.Category]; ok {
			eligible = append(eligible, line)
		}
	}
	return eligible
}

func discountFor(promo domain.Promotion, eligible []domain.CartLine, all []domain.CartLine) int64 {
	eligibleSubtotal := int64(0)
	for _, line := range eligible {
		eligibleSubtotal += line.LineTotalCents()
	}

	switch promo.Kind {
	case domain.PromoPercentage:
		return int64(math.Round(float64(eligibleSubtotal) * promo.Percent / 100))

	case domain.PromoFixedAmount:
		if promo.AmountCents > eligibleSubtotal {
			return eligibleSubtotal
		}
		return promo.AmountCents

	case domain.PromoBuyXGetY:
		// Each eligible line earns free units independently; free units never
		// exceed the line quantity.
		var discount int64
		for _, line := range eligible {
			free := (line.Qty / promo.BuyQty) * promo.GetQty
			if free > line.Qty {
				free = line.Qty
			}
			discount += int64(free) * line.UnitPriceCents
		}
		return discount

	case domain.PromoBundle:
		// All-or-nothing: every bundle SKU must be present somewhere in the
		// cart, in any quantity.
		present := make(map[string]struct{}, len(all))
		for _, line := range all {
			present[line.SKU] = struct{}{}
		}
		for _, sku := range promo.BundleSKUs {
			if _, ok := present[sku]; !ok {
				return 0
			}
		}
		return promo.AmountCents
	}

	return 0
}

func describe(promo domain.Promotion, discount int64) string {
	switch promo.Kind {
	case domain.PromoPercentage:
		return fmt.Sprintf("%s (%.4g%% off)", promo.Name, promo.Percent)
	case domain.PromoBuyXGetY:
		return fmt.Sprintf("%s (buy %d get %d)", promo.Name, promo.BuyQty, promo.GetQty)
	case domain.PromoBundle:
		return fmt.Sprintf("%s (bundle)", promo.Name)
	default:
		return fmt.Sprintf("%s (%.2f off)", promo.Name, float64(discount)/100)
	}
}

func skusOf(lines []domain.CartLine) []string {
	skus := make([]string, 0, len(lines))
	for _, line := range lines {
		skus = append(skus, line.SKU)
	}
	return skus
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
