package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"tiendita/internal/broker"
	"tiendita/internal/cart"
	"tiendita/internal/domain"
	"tiendita/internal/store"
	"tiendita/internal/util"
	"tiendita/internal/xid"
)

// CommitError reports which commit step failed. The HTTP layer maps the
// wrapped error to a status code; the step name stays in logs and metrics.
type CommitError struct {
	Step string
	Err  error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit step %s: %v", e.Step, e.Err)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}

const (
	stepValidate       = "validate"
	stepBuildCart      = "build_cart"
	stepPrice          = "price"
	stepRevalidate     = "revalidate_stock"
	stepPromotionUsage = "promotion_usage"
	stepPersist        = "persist"
)

func supportedPaymentMethod(method string) bool {
	switch method {
	case "cash", "card", "transfer":
		return true
	}
	return false
}

// buildCart resolves the requested items against the catalog and loads them
// into a fresh cart, enforcing the cart-time stock ceiling.
func (s *Service) buildCart(ctx context.Context, items []domain.CartItemRequest) (*cart.Cart, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: at least one item required", store.ErrValidation)
	}

	skus := make([]string, 0, len(items))
	for _, item := range items {
		skus = append(skus, strings.ToUpper(strings.TrimSpace(item.SKU)))
	}

	products, err := s.repo.GetProductsBySKUs(ctx, skus)
	if err != nil {
		return nil, err
	}

	c := cart.New()
	for i, item := range items {
		product, ok := products[skus[i]]
		if !ok {
			return nil, fmt.Errorf("%w: sku %s", store.ErrNotFound, skus[i])
		}
		if err := c.AddLine(product, item.Qty); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func taxFor(subtotal, discount int64, ratePercent float64) int64 {
	return int64(math.Round(float64(subtotal-discount) * ratePercent / 100))
}

// taxRateOrDefault falls back to the configured rate when the request leaves
// the field at zero. Callers that genuinely want a tax-free sale run with a
// zero default.
func (s *Service) taxRateOrDefault(rate float64) float64 {
	if rate == 0 {
		return s.defaultTaxRate
	}
	return rate
}

// PriceCart prices a cart without committing anything: subtotal, the winning
// promotion if any, tax and total. The quote is advisory; commit revalidates
// everything under lock.
func (s *Service) PriceCart(ctx context.Context, req domain.PriceQuoteRequest) (domain.PriceQuote, error) {
	req.TaxRatePercent = s.taxRateOrDefault(req.TaxRatePercent)
	if req.TaxRatePercent < 0 || req.TaxRatePercent > 100 {
		return domain.PriceQuote{}, fmt.Errorf("%w: tax rate out of range", store.ErrValidation)
	}

	c, err := s.buildCart(ctx, req.Items)
	if err != nil {
		return domain.PriceQuote{}, err
	}

	promos, err := s.activePromotions(ctx)
	if err != nil {
		return domain.PriceQuote{}, err
	}

	subtotal := c.Subtotal()
	result := s.evaluator.Evaluate(promos, c.Lines(), subtotal, time.Now().UTC())

	var discount int64
	if result != nil {
		discount = result.DiscountCents
	}
	tax := taxFor(subtotal, discount, req.TaxRatePercent)

	return domain.PriceQuote{
		SubtotalCents:  subtotal,
		DiscountCents:  discount,
		TaxCents:       tax,
		TotalCents:     subtotal - discount + tax,
		Promotion:      result,
		TaxRatePercent: req.TaxRatePercent,
	}, nil
}

// CommitSale drives a sale from draft to completed. Pricing happens outside
// the store lock; the store then revalidates stock, applies the promotion
// usage compare-and-increment, persists the sale and appends the ledger entry
// as one atomic operation. Any failure leaves no partial state behind.
func (s *Service) CommitSale(ctx context.Context, req domain.CommitSaleRequest) (domain.CommitSaleResponse, error) {
	ctx, span := util.StartSpan(ctx, "service.CommitSale")
	defer span.End()

	started := time.Now()
	resp, err := s.commitSale(ctx, req)
	if err != nil {
		var cerr *CommitError
		reason := "internal"
		if errors.As(err, &cerr) {
			reason = cerr.Step
		}
		util.SalesFailedTotal.WithLabelValues(reason).Inc()
		if errors.Is(err, store.ErrStockConflict) {
			util.StockConflictsTotal.Inc()
		}
		return domain.CommitSaleResponse{}, err
	}

	if !resp.Duplicate {
		util.SaleCommitLatency.Observe(time.Since(started).Seconds())
		util.SalesCompletedTotal.Inc()
		util.LedgerEntriesTotal.WithLabelValues(domain.LedgerKindSale).Inc()
		if resp.Sale.DiscountCents > 0 {
			util.PromotionsAppliedTotal.Inc()
		}
		if resp.Sale.PromotionDropped {
			util.PromotionsDroppedTotal.Inc()
		}
	}
	return resp, nil
}

func (s *Service) commitSale(ctx context.Context, req domain.CommitSaleRequest) (domain.CommitSaleResponse, error) {
	req.PaymentMethod = strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if !supportedPaymentMethod(req.PaymentMethod) {
		return domain.CommitSaleResponse{}, &CommitError{Step: stepValidate, Err: fmt.Errorf("%w: unsupported payment method %q", store.ErrValidation, req.PaymentMethod)}
	}
	req.TaxRatePercent = s.taxRateOrDefault(req.TaxRatePercent)
	if req.TaxRatePercent < 0 || req.TaxRatePercent > 100 {
		return domain.CommitSaleResponse{}, &CommitError{Step: stepValidate, Err: fmt.Errorf("%w: tax rate out of range", store.ErrValidation)}
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = xid.New("idem")
	} else if prior, err := s.repo.FindSaleByIdempotency(ctx, req.IdempotencyKey); err == nil {
		s.logger.Info("idempotent replay of committed sale",
			zap.String("sale_id", prior.ID),
			zap.String("idempotency_key", req.IdempotencyKey))
		return domain.CommitSaleResponse{Sale: *prior, Duplicate: true}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.CommitSaleResponse{}, &CommitError{Step: stepValidate, Err: err}
	}

	sale := domain.Sale{
		ID:             xid.New("sale"),
		CustomerID:     req.CustomerID,
		IdempotencyKey: req.IdempotencyKey,
		TaxRatePercent: req.TaxRatePercent,
		PaymentMethod:  req.PaymentMethod,
		Status:         domain.SaleStatusDraft,
		CreatedAt:      time.Now().UTC(),
	}

	c, err := s.buildCart(ctx, req.Items)
	if err != nil {
		return domain.CommitSaleResponse{}, &CommitError{Step: stepBuildCart, Err: err}
	}

	sale.Status = domain.SaleStatusPricing
	promos, err := s.activePromotions(ctx)
	if err != nil {
		return domain.CommitSaleResponse{}, &CommitError{Step: stepPrice, Err: err}
	}

	subtotal := c.Subtotal()
	result := s.evaluator.Evaluate(promos, c.Lines(), subtotal, time.Now().UTC())

	sale.SubtotalCents = subtotal
	if result != nil {
		sale.DiscountCents = result.DiscountCents
		sale.PromotionID = result.PromotionID
		sale.PromotionNote = result.Description
	} else if req.RequirePromotion {
		return domain.CommitSaleResponse{}, &CommitError{Step: stepPrice, Err: fmt.Errorf("%w: no applicable promotion", store.ErrValidation)}
	}
	sale.TaxCents = taxFor(sale.SubtotalCents, sale.DiscountCents, sale.TaxRatePercent)
	sale.TotalCents = sale.SubtotalCents - sale.DiscountCents + sale.TaxCents
	if sale.TotalCents < 1 {
		return domain.CommitSaleResponse{}, &CommitError{Step: stepPrice, Err: fmt.Errorf("%w: non-positive total", store.ErrValidation)}
	}

	for _, line := range c.Lines() {
		sale.Lines = append(sale.Lines, domain.SaleLine{
			SKU:            line.SKU,
			Name:           line.Name,
			Qty:            line.Qty,
			UnitPriceCents: line.UnitPriceCents,
			LineTotalCents: line.LineTotalCents(),
		})
	}

	sale.Status = domain.SaleStatusCommitting
	committed, err := s.repo.CommitSale(ctx, sale, req.RequirePromotion)
	if err != nil {
		sale.Status = domain.SaleStatusFailed
		return domain.CommitSaleResponse{}, &CommitError{Step: commitStepFor(err), Err: err}
	}

	if committed.PromotionDropped {
		s.logger.Warn("promotion exhausted at commit, discount dropped",
			zap.String("sale_id", committed.ID),
			zap.String("promotion_id", sale.PromotionID))
	}
	s.logger.Info("sale committed",
		zap.String("sale_id", committed.ID),
		zap.Int64("total_cents", committed.TotalCents),
		zap.String("payment_method", committed.PaymentMethod))

	s.logAudit(ctx, "sale_commit", "sale", committed.ID, fmt.Sprintf("total=%d,payment=%s", committed.TotalCents, committed.PaymentMethod))
	s.publishSaleCompleted(ctx, committed)
	return domain.CommitSaleResponse{Sale: *committed}, nil
}

func commitStepFor(err error) string {
	switch {
	case errors.Is(err, store.ErrStockConflict):
		return stepRevalidate
	case errors.Is(err, store.ErrPromotionExhausted):
		return stepPromotionUsage
	case errors.Is(err, store.ErrValidation), errors.Is(err, store.ErrNotFound):
		return stepValidate
	default:
		return stepPersist
	}
}

func (s *Service) publishSaleCompleted(ctx context.Context, sale *domain.Sale) {
	event := &broker.SaleCompletedEvent{
		BaseEvent: broker.BaseEvent{
			EventID:   xid.New("evt"),
			EventType: broker.EventTypeSaleCompleted,
			Timestamp: time.Now().UTC(),
		},
		SaleID:        sale.ID,
		CustomerID:    sale.CustomerID,
		TotalCents:    sale.TotalCents,
		DiscountCents: sale.DiscountCents,
		PromotionID:   sale.PromotionID,
		PaymentMethod: sale.PaymentMethod,
		Lines:         sale.Lines,
	}
	if err := s.publisher.PublishSaleCompleted(ctx, event); err != nil {
		s.logger.Error("failed to publish sale event", zap.String("sale_id", sale.ID), zap.Error(err))
	}
}
