package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"tiendita/internal/broker"
	"tiendita/internal/cache"
	"tiendita/internal/domain"
	"tiendita/internal/promotion"
	"tiendita/internal/store"
	"tiendita/internal/util"
	"tiendita/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const (
	promoCacheKey   = "promotions:active"
	productCacheKey = "products:active"
)

type Service struct {
	repo           store.Repository
	evaluator      *promotion.Evaluator
	promoCache     cache.PromotionCache
	prodCache      cache.ProductCache
	publisher      broker.EventPublisher
	logger         *zap.Logger
	promoTTL       time.Duration
	productTTL     time.Duration
	defaultTaxRate float64
}

func New(
	repo store.Repository,
	evaluator *promotion.Evaluator,
	promoCache cache.PromotionCache,
	prodCache cache.ProductCache,
	publisher broker.EventPublisher,
	promoTTL time.Duration,
	productTTL time.Duration,
	defaultTaxRate float64,
) *Service {
	if promoTTL <= 0 {
		promoTTL = 30 * time.Second
	}
	if productTTL <= 0 {
		productTTL = 30 * time.Second
	}
	return &Service{
		repo:           repo,
		evaluator:      evaluator,
		promoCache:     promoCache,
		prodCache:      prodCache,
		publisher:      publisher,
		logger:         util.GetLogger(),
		promoTTL:       promoTTL,
		productTTL:     productTTL,
		defaultTaxRate: defaultTaxRate,
	}
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("%w: admin role required", store.ErrForbidden)
	}
	return nil
}

func (s *Service) logAudit(ctx context.Context, action, entityType, entityID, detail string) {
	actor, _ := ActorFromContext(ctx)
	err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		s.logger.Warn("failed to write audit log",
			zap.String("action", action),
			zap.String("entity_id", entityID),
			zap.Error(err))
	}
}

// ListProducts reads through the catalog cache.
func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	if cached, ok, err := s.prodCache.Get(ctx, productCacheKey); err == nil && ok {
		return cached, nil
	}

	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.prodCache.Set(ctx, productCacheKey, products, s.productTTL); err != nil {
		s.logger.Warn("failed to cache products", zap.Error(err))
	}
	return products, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	if req.SKU == "" || req.Name == "" || req.Category == "" {
		return domain.Product{}, store.ErrValidation
	}
	if req.PriceCents < 1 || req.CostCents < 0 || req.InitialStock < 0 {
		return domain.Product{}, store.ErrValidation
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		SKU:        req.SKU,
		Name:       req.Name,
		Category:   req.Category,
		PriceCents: req.PriceCents,
		CostCents:  req.CostCents,
		Stock:      req.InitialStock,
		MinStock:   req.MinStock,
		MaxStock:   req.MaxStock,
		Active:     true,
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateProductCache(ctx)
	s.logAudit(ctx, "product_create", "product", created.SKU, fmt.Sprintf("price=%d,stock=%d", created.PriceCents, req.InitialStock))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, sku string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	sku = strings.ToUpper(strings.TrimSpace(sku))
	if sku == "" {
		return domain.Product{}, store.ErrValidation
	}

	existing, err := s.repo.GetProductBySKU(ctx, sku)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return domain.Product{}, store.ErrValidation
		}
		updated.Name = strings.TrimSpace(*req.Name)
	}
	if req.Category != nil {
		if strings.TrimSpace(*req.Category) == "" {
			return domain.Product{}, store.ErrValidation
		}
		updated.Category = strings.TrimSpace(*req.Category)
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 1 {
			return domain.Product{}, store.ErrValidation
		}
		updated.PriceCents = *req.PriceCents
	}
	if req.CostCents != nil {
		if *req.CostCents < 0 {
			return domain.Product{}, store.ErrValidation
		}
		updated.CostCents = *req.CostCents
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateProductCache(ctx)
	s.logAudit(ctx, "product_update", "product", saved.SKU, fmt.Sprintf("active=%t,price=%d", saved.Active, saved.PriceCents))
	return *saved, nil
}

func (s *Service) ReceiveStock(ctx context.Context, sku string, qty int) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	sku = strings.ToUpper(strings.TrimSpace(sku))
	if err := s.repo.IncreaseStock(ctx, sku, qty); err != nil {
		return err
	}
	s.invalidateProductCache(ctx)
	s.logAudit(ctx, "stock_receive", "product", sku, fmt.Sprintf("qty=%d", qty))
	return nil
}

func (s *Service) invalidateProductCache(ctx context.Context) {
	if err := s.prodCache.Invalidate(ctx, productCacheKey); err != nil {
		s.logger.Warn("failed to invalidate product cache", zap.Error(err))
	}
}

// activePromotions reads through the promotion cache; the evaluator always
// sees a consistent snapshot of the currently-defined promotions.
func (s *Service) activePromotions(ctx context.Context) ([]domain.Promotion, error) {
	if cached, ok, err := s.promoCache.Get(ctx, promoCacheKey); err == nil && ok {
		return cached, nil
	}

	promos, err := s.repo.ListPromotions(ctx, true)
	if err != nil {
		return nil, err
	}
	if err := s.promoCache.Set(ctx, promoCacheKey, promos, s.promoTTL); err != nil {
		s.logger.Warn("failed to cache promotions", zap.Error(err))
	}
	return promos, nil
}

func (s *Service) invalidatePromotionCache(ctx context.Context) {
	if err := s.promoCache.Invalidate(ctx, promoCacheKey); err != nil {
		s.logger.Warn("failed to invalidate promotion cache", zap.Error(err))
	}
}

func (s *Service) ListPromotions(ctx context.Context, onlyActive bool) ([]domain.Promotion, error) {
	return s.repo.ListPromotions(ctx, onlyActive)
}

func (s *Service) CreatePromotion(ctx context.Context, req domain.PromotionCreateRequest) (domain.Promotion, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Promotion{}, err
	}

	startsAt, err := time.Parse(time.RFC3339, req.StartsAt)
	if err != nil {
		return domain.Promotion{}, fmt.Errorf("%w: bad starts_at", store.ErrValidation)
	}
	endsAt, err := time.Parse(time.RFC3339, req.EndsAt)
	if err != nil {
		return domain.Promotion{}, fmt.Errorf("%w: bad ends_at", store.ErrValidation)
	}

	promo := domain.Promotion{
		ID:               xid.New("promo"),
		Name:             strings.TrimSpace(req.Name),
		Kind:             req.Kind,
		Percent:          req.Percent,
		AmountCents:      req.AmountCents,
		BuyQty:           req.BuyQty,
		GetQty:           req.GetQty,
		BundleSKUs:       normalizeSKUs(req.BundleSKUs),
		StartsAt:         startsAt.UTC(),
		EndsAt:           endsAt.UTC(),
		Active:           true,
		MinSubtotalCents: req.MinSubtotalCents,
		MaxUses:          req.MaxUses,
		ProductSKUs:      normalizeSKUs(req.ProductSKUs),
		Categories:       trimAll(req.Categories),
		CreatedAt:        time.Now().UTC(),
	}
	if err := promo.Validate(); err != nil {
		return domain.Promotion{}, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}

	created, err := s.repo.CreatePromotion(ctx, promo)
	if err != nil {
		return domain.Promotion{}, err
	}

	s.invalidatePromotionCache(ctx)
	s.logAudit(ctx, "promotion_create", "promotion", created.ID, fmt.Sprintf("kind=%s,max_uses=%d", created.Kind, created.MaxUses))
	return *created, nil
}

func (s *Service) SetPromotionActive(ctx context.Context, id string, active bool) (domain.Promotion, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Promotion{}, err
	}

	updated, err := s.repo.SetPromotionActive(ctx, id, active)
	if err != nil {
		return domain.Promotion{}, err
	}

	s.invalidatePromotionCache(ctx)
	s.logAudit(ctx, "promotion_toggle", "promotion", id, fmt.Sprintf("active=%t", active))
	return *updated, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	if id == "" {
		return domain.Sale{}, store.ErrValidation
	}
	sale, err := s.repo.FindSaleByID(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: customer id required", store.ErrValidation)
	}
	return s.repo.GetCustomerByID(ctx, id)
}

// AppendMovement records a manual cash movement. Sale entries are written
// exclusively by the commit path; the manual path accepts only expense,
// deposit and withdrawal.
func (s *Service) AppendMovement(ctx context.Context, req domain.LedgerAppendRequest) (domain.LedgerEntry, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.LedgerEntry{}, err
	}
	if req.Kind == domain.LedgerKindSale || !domain.ValidLedgerKind(req.Kind) {
		return domain.LedgerEntry{}, fmt.Errorf("%w: manual movements must be expense, deposit or withdrawal", store.ErrValidation)
	}
	if req.AmountCents < 1 {
		return domain.LedgerEntry{}, fmt.Errorf("%w: amount must be positive", store.ErrValidation)
	}

	entry, err := s.repo.AppendLedgerEntry(ctx, domain.LedgerEntry{
		ID:          xid.New("led"),
		Kind:        req.Kind,
		AmountCents: req.AmountCents,
		Description: strings.TrimSpace(req.Description),
		ReferenceID: req.ReferenceID,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return domain.LedgerEntry{}, err
	}

	util.LedgerEntriesTotal.WithLabelValues(entry.Kind).Inc()
	s.logAudit(ctx, "ledger_append", "ledger_entry", entry.ID, fmt.Sprintf("kind=%s,amount=%d", entry.Kind, entry.AmountCents))
	s.publishLedgerAppended(ctx, entry)
	return *entry, nil
}

func (s *Service) publishLedgerAppended(ctx context.Context, entry *domain.LedgerEntry) {
	event := &broker.LedgerAppendedEvent{
		BaseEvent: broker.BaseEvent{
			EventID:   xid.New("evt"),
			EventType: broker.EventTypeLedgerAppended,
			Timestamp: time.Now().UTC(),
		},
		EntrySeq:    entry.Seq,
		EntryID:     entry.ID,
		Kind:        entry.Kind,
		AmountCents: entry.AmountCents,
		ReferenceID: entry.ReferenceID,
	}
	if err := s.publisher.PublishLedgerAppended(ctx, event); err != nil {
		s.logger.Error("failed to publish ledger event", zap.Int64("seq", entry.Seq), zap.Error(err))
	}
}

func (s *Service) Balance(ctx context.Context) (int64, error) {
	if err := requireAdmin(ctx); err != nil {
		return 0, err
	}
	return s.repo.LedgerBalance(ctx)
}

func (s *Service) Movements(ctx context.Context, from time.Time, to time.Time) ([]domain.LedgerEntry, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if !to.After(from) {
		return nil, fmt.Errorf("%w: empty range", store.ErrValidation)
	}
	return s.repo.LedgerEntriesInRange(ctx, from, to)
}

func (s *Service) DailyTotals(ctx context.Context, day time.Time) (domain.DailyTotals, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.DailyTotals{}, err
	}
	return s.repo.LedgerDailyTotals(ctx, day)
}

func (s *Service) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func normalizeSKUs(skus []string) []string {
	out := make([]string, 0, len(skus))
	for _, sku := range skus {
		sku = strings.ToUpper(strings.TrimSpace(sku))
		if sku != "" {
			out = append(out, sku)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
