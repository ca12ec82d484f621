package memory

import (
	"context"
	"fmt"
	"math"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"tiendita/internal/domain"
	"tiendita/internal/store"
	"tiendita/internal/util"
	"tiendita/internal/xid"
)

// Store is the in-memory repository used in dev mode and tests. Every
// mutation validates completely before touching state, so a failed commit
// leaves nothing behind; one mutex serializes commits, which is what makes
// the stock and promotion-cap invariants hold under concurrent callers.
type Store struct {
	mu           sync.RWMutex
	products     map[string]domain.Product
	stock        map[string]int
	promotions   map[string]*domain.Promotion
	promoOrder   []string
	salesByID    map[string]*domain.Sale
	salesByIdem  map[string]*domain.Sale
	ledger       []domain.LedgerEntry
	nextSeq      int64
	customers    map[string]domain.Customer
	auditLogs    []domain.AuditLog
	users        map[string]domain.UserAccount
}

// seedUsers builds the initial user accounts for dev/demo mode. Credentials
// come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD; hardcoded dev
// defaults are used with a warning when unset.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		util.GetLogger().Warn("using default dev credentials, set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			util.GetLogger().Fatal("failed to hash seed password",
				zap.String("username", u.username), zap.Error(err))
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	products := []domain.Product{
		{SKU: "SKU-ARROZ-01", Name: "Arroz 1kg", Category: "abarrotes", PriceCents: 3200, CostCents: 2400, MinStock: 10, MaxStock: 200, Active: true},
		{SKU: "SKU-FRIJOL-01", Name: "Frijol Negro 900g", Category: "abarrotes", PriceCents: 4100, CostCents: 2900, MinStock: 10, MaxStock: 200, Active: true},
		{SKU: "SKU-LECHE-01", Name: "Leche Entera 1L", Category: "lacteos", PriceCents: 2700, CostCents: 2100, MinStock: 15, MaxStock: 150, Active: true},
		{SKU: "SKU-PAN-01", Name: "Pan de Caja", Category: "panaderia", PriceCents: 4600, CostCents: 3000, MinStock: 8, MaxStock: 80, Active: true},
		{SKU: "SKU-CAFE-01", Name: "Cafe Molido 250g", Category: "bebidas", PriceCents: 8900, CostCents: 6200, MinStock: 5, MaxStock: 60, Active: true},
		{SKU: "SKU-AGUA-01", Name: "Agua 1.5L", Category: "bebidas", PriceCents: 1600, CostCents: 900, MinStock: 24, MaxStock: 240, Active: true},
		{SKU: "SKU-JABON-01", Name: "Jabon de Barra", Category: "limpieza", PriceCents: 2200, CostCents: 1400, MinStock: 10, MaxStock: 120, Active: true},
		{SKU: "SKU-GALLETA-01", Name: "Galletas Maria", Category: "botana", PriceCents: 1900, CostCents: 1100, MinStock: 12, MaxStock: 150, Active: true},
	}

	productMap := make(map[string]domain.Product, len(products))
	stock := make(map[string]int, len(products))
	for _, p := range products {
		productMap[p.SKU] = p
		stock[p.SKU] = 120
	}

	now := time.Now().UTC()
	promos := []*domain.Promotion{
		{
			ID:               xid.New("promo"),
			Name:             "10% toda la tienda",
			Kind:             domain.PromoPercentage,
			Percent:          10,
			StartsAt:         now.AddDate(0, -1, 0),
			EndsAt:           now.AddDate(0, 2, 0),
			Active:           true,
			MinSubtotalCents: 5000,
			CreatedAt:        now,
		},
		{
			ID:          xid.New("promo"),
			Name:        "Desayuno pan + leche",
			Kind:        domain.PromoBundle,
			AmountCents: 1000,
			BundleSKUs:  []string{"SKU-PAN-01", "SKU-LECHE-01"},
			StartsAt:    now.AddDate(0, -1, 0),
			EndsAt:      now.AddDate(0, 2, 0),
			Active:      true,
			CreatedAt:   now,
		},
	}
	promoMap := make(map[string]*domain.Promotion, len(promos))
	order := make([]string, 0, len(promos))
	for _, p := range promos {
		promoMap[p.ID] = p
		order = append(order, p.ID)
	}

	customers := map[string]domain.Customer{
		"cust-mostrador": {ID: "cust-mostrador", Name: "Publico General", CreatedAt: now},
		"cust-frecuente": {ID: "cust-frecuente", Name: "Maria Lopez", Phone: "555-0134", CreatedAt: now},
	}

	return &Store{
		products:    productMap,
		stock:       stock,
		promotions:  promoMap,
		promoOrder:  order,
		salesByID:   make(map[string]*domain.Sale),
		salesByIdem: make(map[string]*domain.Sale),
		ledger:      make([]domain.LedgerEntry, 0, 128),
		customers:   customers,
		auditLogs:   make([]domain.AuditLog, 0, 128),
		users:       seedUsers(),
	}
}

// NewEmpty returns a store with users seeded but no catalog, for tests that
// want full control over the data.
func NewEmpty() *Store {
	s := NewSeeded()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = make(map[string]domain.Product)
	s.stock = make(map[string]int)
	s.promotions = make(map[string]*domain.Promotion)
	s.promoOrder = nil
	return s
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		p.Stock = s.stock[p.SKU]
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return strings.Compare(a.Name, b.Name)
		}
		return strings.Compare(a.Category, b.Category)
	})

	return products, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.SKU == "" || product.Name == "" || product.Category == "" || product.PriceCents < 1 {
		return nil, store.ErrValidation
	}
	if _, exists := s.products[product.SKU]; exists {
		return nil, fmt.Errorf("%w: sku %s already exists", store.ErrValidation, product.SKU)
	}

	product.Active = true
	initial := product.Stock
	product.Stock = 0
	s.products[product.SKU] = product
	s.stock[product.SKU] = initial

	created := product
	created.Stock = initial
	return &created, nil
}

func (s *Store) GetProductBySKU(_ context.Context, sku string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[sku]
	if !exists {
		return nil, store.ErrNotFound
	}
	product.Stock = s.stock[sku]
	return &product, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[product.SKU]; !exists {
		return nil, store.ErrNotFound
	}
	if product.Name == "" || product.Category == "" || product.PriceCents < 1 {
		return nil, store.ErrValidation
	}

	// Stock is never written through this path; only CommitSale and
	// IncreaseStock touch it.
	product.Stock = 0
	s.products[product.SKU] = product

	updated := product
	updated.Stock = s.stock[product.SKU]
	return &updated, nil
}

func (s *Store) GetProductsBySKUs(_ context.Context, skus []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]domain.Product, len(skus))
	for _, sku := range skus {
		if p, ok := s.products[sku]; ok {
			p.Stock = s.stock[sku]
			out[sku] = p
		}
	}
	return out, nil
}

func (s *Store) IncreaseStock(_ context.Context, sku string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if qty < 1 {
		return store.ErrValidation
	}
	if _, ok := s.products[sku]; !ok {
		return store.ErrNotFound
	}
	s.stock[sku] += qty
	return nil
}

func (s *Store) ListPromotions(_ context.Context, onlyActive bool) ([]domain.Promotion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	promos := make([]domain.Promotion, 0, len(s.promoOrder))
	for _, id := range s.promoOrder {
		p := s.promotions[id]
		if onlyActive && !p.Active {
			continue
		}
		promos = append(promos, clonePromotion(p))
	}
	return promos, nil
}

func (s *Store) CreatePromotion(_ context.Context, promo domain.Promotion) (*domain.Promotion, error) {
	if err := promo.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if promo.ID == "" {
		promo.ID = xid.New("promo")
	}
	if _, exists := s.promotions[promo.ID]; exists {
		return nil, fmt.Errorf("%w: promotion %s already exists", store.ErrValidation, promo.ID)
	}
	if promo.CreatedAt.IsZero() {
		promo.CreatedAt = time.Now().UTC()
	}
	promo.CurrentUses = 0

	stored := clonePromotion(&promo)
	s.promotions[promo.ID] = &stored
	s.promoOrder = append(s.promoOrder, promo.ID)

	created := clonePromotion(&stored)
	return &created, nil
}

func (s *Store) GetPromotionByID(_ context.Context, id string) (*domain.Promotion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.promotions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	promo := clonePromotion(p)
	return &promo, nil
}

func (s *Store) SetPromotionActive(_ context.Context, id string, active bool) (*domain.Promotion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.promotions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	p.Active = active
	promo := clonePromotion(p)
	return &promo, nil
}

// CommitSale is the atomic commit boundary. All validation happens before
// any mutation, so an error never leaves partial state: no stock change, no
// usage increment, no sale row, no ledger entry.
func (s *Store) CommitSale(_ context.Context, sale domain.Sale, requirePromotion bool) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.IdempotencyKey == "" {
		return nil, fmt.Errorf("%w: idempotency key required", store.ErrValidation)
	}
	if existing, ok := s.salesByIdem[sale.IdempotencyKey]; ok {
		return cloneSale(existing), nil
	}
	if len(sale.Lines) == 0 {
		return nil, fmt.Errorf("%w: empty sale", store.ErrValidation)
	}
	if sale.TaxRatePercent < 0 || sale.TaxRatePercent > 100 {
		return nil, fmt.Errorf("%w: tax rate out of range", store.ErrValidation)
	}
	if sale.CustomerID != "" {
		if _, ok := s.customers[sale.CustomerID]; !ok {
			return nil, fmt.Errorf("%w: customer %s", store.ErrNotFound, sale.CustomerID)
		}
	}

	// Step 1: revalidate every line against current stock. Unit prices stay
	// as snapshotted in the cart; only availability is re-read here.
	subtotal := int64(0)
	for i, line := range sale.Lines {
		if line.Qty < 1 || line.UnitPriceCents < 1 {
			return nil, fmt.Errorf("%w: bad line for sku %s", store.ErrValidation, line.SKU)
		}
		product, exists := s.products[line.SKU]
		if !exists || !product.Active {
			return nil, fmt.Errorf("%w: sku %s unavailable", store.ErrValidation, line.SKU)
		}
		if s.stock[line.SKU] < line.Qty {
			return nil, fmt.Errorf("%w: sku %s has %d left, %d requested", store.ErrStockConflict, line.SKU, s.stock[line.SKU], line.Qty)
		}
		sale.Lines[i].LineTotalCents = int64(line.Qty) * line.UnitPriceCents
		subtotal += sale.Lines[i].LineTotalCents
	}

	// Step 5 check half: compare against the cap before any mutation.
	var promo *domain.Promotion
	if sale.PromotionID != "" {
		p, ok := s.promotions[sale.PromotionID]
		if !ok {
			return nil, fmt.Errorf("%w: promotion %s", store.ErrNotFound, sale.PromotionID)
		}
		if p.Exhausted() {
			if requirePromotion {
				return nil, fmt.Errorf("%w: %s", store.ErrPromotionExhausted, p.ID)
			}
			sale.DiscountCents = 0
			sale.PromotionDropped = true
		} else {
			promo = p
		}
	}

	// Step 2: totals.
	sale.SubtotalCents = subtotal
	if sale.DiscountCents < 0 {
		return nil, fmt.Errorf("%w: negative discount", store.ErrValidation)
	}
	if sale.DiscountCents > subtotal {
		sale.DiscountCents = subtotal
	}
	taxBase := subtotal - sale.DiscountCents
	sale.TaxCents = int64(math.Round(float64(taxBase) * sale.TaxRatePercent / 100))
	sale.TotalCents = taxBase + sale.TaxCents
	if sale.TotalCents <= 0 {
		return nil, fmt.Errorf("%w: invalid total %d", store.ErrValidation, sale.TotalCents)
	}

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	sale.Status = domain.SaleStatusCompleted

	// Every check passed; mutate. Steps 3-6 of the commit sequence.
	for _, line := range sale.Lines {
		s.stock[line.SKU] -= line.Qty
	}
	if promo != nil {
		promo.CurrentUses++
	}

	stored := cloneSale(&sale)
	s.salesByID[sale.ID] = stored
	s.salesByIdem[sale.IdempotencyKey] = stored

	s.appendLedgerLocked(domain.LedgerEntry{
		ID:          xid.New("led"),
		Kind:        domain.LedgerKindSale,
		AmountCents: sale.TotalCents,
		Description: fmt.Sprintf("sale %s", sale.ID),
		ReferenceID: sale.ID,
		CreatedAt:   sale.CreatedAt,
	})

	return cloneSale(stored), nil
}

func (s *Store) FindSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

func (s *Store) FindSaleByIdempotency(_ context.Context, key string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByIdem[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

func (s *Store) appendLedgerLocked(entry domain.LedgerEntry) domain.LedgerEntry {
	s.nextSeq++
	entry.Seq = s.nextSeq
	if entry.ID == "" {
		entry.ID = xid.New("led")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.ledger = append(s.ledger, entry)
	return entry
}

func (s *Store) AppendLedgerEntry(_ context.Context, entry domain.LedgerEntry) (*domain.LedgerEntry, error) {
	if entry.AmountCents < 1 {
		return nil, fmt.Errorf("%w: amount must be positive", store.ErrValidation)
	}
	if !domain.ValidLedgerKind(entry.Kind) {
		return nil, fmt.Errorf("%w: unknown ledger kind %q", store.ErrValidation, entry.Kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	appended := s.appendLedgerLocked(entry)
	return &appended, nil
}

// LedgerBalance is the signed fold over the full entry sequence.
func (s *Store) LedgerBalance(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var balance int64
	for _, entry := range s.ledger {
		balance += entry.SignedAmountCents()
	}
	return balance, nil
}

func (s *Store) LedgerEntriesInRange(_ context.Context, from time.Time, to time.Time) ([]domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.LedgerEntry, 0, len(s.ledger))
	for _, entry := range s.ledger {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *Store) LedgerDailyTotals(_ context.Context, day time.Time) (domain.DailyTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dayUTC := day.UTC()
	totals := domain.DailyTotals{Date: dayUTC.Format("2006-01-02")}
	for _, entry := range s.ledger {
		created := entry.CreatedAt.UTC()
		if created.Year() != dayUTC.Year() || created.YearDay() != dayUTC.YearDay() {
			continue
		}
		totals.EntryCount++
		switch entry.Kind {
		case domain.LedgerKindSale, domain.LedgerKindDeposit:
			totals.IncomeCents += entry.AmountCents
		default:
			totals.ExpenseCents += entry.AmountCents
		}
	}
	totals.NetCents = totals.IncomeCents - totals.ExpenseCents
	return totals, nil
}

func (s *Store) GetCustomerByID(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return strings.Compare(a.ID, b.ID)
	})
	return customers, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	out := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0 && len(out) < limit; i-- {
		entry := s.auditLogs[i]
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" || user.Password == "" {
		return store.ErrValidation
	}
	if _, exists := s.users[user.Username]; exists {
		return fmt.Errorf("%w: user %s already exists", store.ErrValidation, user.Username)
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.users[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[username]
	if !ok {
		return store.ErrNotFound
	}
	u.Password = password
	s.users[username] = u
	return nil
}

func clonePromotion(p *domain.Promotion) domain.Promotion {
	out := *p
	out.BundleSKUs = append([]string(nil), p.BundleSKUs...)
	out.ProductSKUs = append([]string(nil), p.ProductSKUs...)
	out.Categories = append([]string(nil), p.Categories...)
	return out
}

func cloneSale(sale *domain.Sale) *domain.Sale {
	out := *sale
	out.Lines = append([]domain.SaleLine(nil), sale.Lines...)
	return &out
}
