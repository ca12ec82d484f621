package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"tiendita/internal/domain"
	"tiendita/internal/store"
	"tiendita/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.sku, p.name, p.category, p.price_cents, p.cost_cents,
		       COALESCE(i.qty, 0), p.min_stock, p.max_stock, p.active
		FROM products p
		LEFT JOIN inventory_stocks i ON i.sku = p.sku
		WHERE p.active = true
		ORDER BY p.category, p.name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.SKU, &p.Name, &p.Category, &p.PriceCents, &p.CostCents, &p.Stock, &p.MinStock, &p.MaxStock, &p.Active); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.SKU == "" || product.Name == "" || product.Category == "" || product.PriceCents < 1 {
		return nil, store.ErrValidation
	}
	if product.CostCents < 0 {
		return nil, store.ErrValidation
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	product.Active = true
	_, err = tx.ExecContext(ctx, `
		INSERT INTO products (sku, name, category, price_cents, cost_cents, min_stock, max_stock, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now(),now())
	`, product.SKU, product.Name, product.Category, product.PriceCents, product.CostCents, product.MinStock, product.MaxStock, product.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: sku %s already exists", store.ErrValidation, product.SKU)
		}
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO inventory_stocks (sku, qty, updated_at)
		VALUES ($1,$2,now())
	`, product.SKU, product.Stock)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	var product domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT p.sku, p.name, p.category, p.price_cents, p.cost_cents,
		       COALESCE(i.qty, 0), p.min_stock, p.max_stock, p.active
		FROM products p
		LEFT JOIN inventory_stocks i ON i.sku = p.sku
		WHERE p.sku = $1
	`, sku).Scan(&product.SKU, &product.Name, &product.Category, &product.PriceCents, &product.CostCents, &product.Stock, &product.MinStock, &product.MaxStock, &product.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.SKU == "" || product.Name == "" || product.Category == "" || product.PriceCents < 1 {
		return nil, store.ErrValidation
	}
	if product.CostCents < 0 {
		return nil, store.ErrValidation
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, price_cents = $4, cost_cents = $5, active = $6, updated_at = now()
		WHERE sku = $1
	`, product.SKU, product.Name, product.Category, product.PriceCents, product.CostCents, product.Active)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetProductBySKU(ctx, product.SKU)
}

func (s *Store) GetProductsBySKUs(ctx context.Context, skus []string) (map[string]domain.Product, error) {
	if len(skus) == 0 {
		return map[string]domain.Product{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT p.sku, p.name, p.category, p.price_cents, p.cost_cents,
		       COALESCE(i.qty, 0), p.min_stock, p.max_stock, p.active
		FROM products p
		LEFT JOIN inventory_stocks i ON i.sku = p.sku
		WHERE p.sku = ANY($1)
	`, skus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]domain.Product, len(skus))
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.SKU, &p.Name, &p.Category, &p.PriceCents, &p.CostCents, &p.Stock, &p.MinStock, &p.MaxStock, &p.Active); err != nil {
			return nil, err
		}
		out[p.SKU] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

func (s *Store) IncreaseStock(ctx context.Context, sku string, qty int) error {
	if qty < 1 {
		return store.ErrValidation
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE inventory_stocks
		SET qty = qty + $1, updated_at = now()
		WHERE sku = $2
	`, qty, sku)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

const promotionColumns = `
	id, name, kind, percent, amount_cents, buy_qty, get_qty, bundle_skus,
	starts_at, ends_at, active, min_subtotal_cents, max_uses, current_uses,
	product_skus, categories, created_at
`

func scanPromotion(scanner interface{ Scan(...any) error }) (domain.Promotion, error) {
	var p domain.Promotion
	var bundleRaw, skusRaw, catsRaw []byte
	err := scanner.Scan(&p.ID, &p.Name, &p.Kind, &p.Percent, &p.AmountCents, &p.BuyQty, &p.GetQty, &bundleRaw,
		&p.StartsAt, &p.EndsAt, &p.Active, &p.MinSubtotalCents, &p.MaxUses, &p.CurrentUses,
		&skusRaw, &catsRaw, &p.CreatedAt)
	if err != nil {
		return domain.Promotion{}, err
	}
	if err := json.Unmarshal(bundleRaw, &p.BundleSKUs); err != nil {
		return domain.Promotion{}, err
	}
	if err := json.Unmarshal(skusRaw, &p.ProductSKUs); err != nil {
		return domain.Promotion{}, err
	}
	if err := json.Unmarshal(catsRaw, &p.Categories); err != nil {
		return domain.Promotion{}, err
	}
	return p, nil
}

func (s *Store) ListPromotions(ctx context.Context, onlyActive bool) ([]domain.Promotion, error) {
	query := `SELECT ` + promotionColumns + ` FROM promotions ORDER BY created_at, id`
	if onlyActive {
		query = `SELECT ` + promotionColumns + ` FROM promotions WHERE active = true ORDER BY created_at, id`
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	promos := make([]domain.Promotion, 0, 32)
	for rows.Next() {
		p, err := scanPromotion(rows)
		if err != nil {
			return nil, err
		}
		promos = append(promos, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return promos, nil
}

func (s *Store) CreatePromotion(ctx context.Context, promo domain.Promotion) (*domain.Promotion, error) {
	if err := promo.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	if promo.ID == "" {
		promo.ID = xid.New("promo")
	}
	if promo.CreatedAt.IsZero() {
		promo.CreatedAt = time.Now().UTC()
	}
	promo.CurrentUses = 0

	bundleRaw, _ := json.Marshal(orEmpty(promo.BundleSKUs))
	skusRaw, _ := json.Marshal(orEmpty(promo.ProductSKUs))
	catsRaw, _ := json.Marshal(orEmpty(promo.Categories))

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO promotions (
			id, name, kind, percent, amount_cents, buy_qty, get_qty, bundle_skus,
			starts_at, ends_at, active, min_subtotal_cents, max_uses, current_uses,
			product_skus, categories, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`, promo.ID, promo.Name, promo.Kind, promo.Percent, promo.AmountCents, promo.BuyQty, promo.GetQty, bundleRaw,
		promo.StartsAt, promo.EndsAt, promo.Active, promo.MinSubtotalCents, promo.MaxUses, promo.CurrentUses,
		skusRaw, catsRaw, promo.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: promotion %s already exists", store.ErrValidation, promo.ID)
		}
		return nil, err
	}

	created := promo
	return &created, nil
}

func (s *Store) GetPromotionByID(ctx context.Context, id string) (*domain.Promotion, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+promotionColumns+` FROM promotions WHERE id = $1`, id)
	promo, err := scanPromotion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &promo, nil
}

func (s *Store) SetPromotionActive(ctx context.Context, id string, active bool) (*domain.Promotion, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE promotions SET active = $2 WHERE id = $1
	`, id, active)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetPromotionByID(ctx, id)
}

// CommitSale runs the whole commit sequence in one serializable transaction:
// stock rows are locked and revalidated, the promotion usage counter is
// advanced with a compare-and-increment, totals are recomputed, and the sale,
// its lines and the matching ledger entry are inserted together.
func (s *Store) CommitSale(ctx context.Context, sale domain.Sale, requirePromotion bool) (*domain.Sale, error) {
	if sale.IdempotencyKey == "" {
		return nil, fmt.Errorf("%w: idempotency key required", store.ErrValidation)
	}
	if len(sale.Lines) == 0 {
		return nil, fmt.Errorf("%w: empty sale", store.ErrValidation)
	}
	if sale.TaxRatePercent < 0 || sale.TaxRatePercent > 100 {
		return nil, fmt.Errorf("%w: tax rate out of range", store.ErrValidation)
	}

	if existing, err := s.FindSaleByIdempotency(ctx, sale.IdempotencyKey); err == nil {
		return existing, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if sale.CustomerID != "" {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM customers WHERE id = $1`, sale.CustomerID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: customer %s", store.ErrNotFound, sale.CustomerID)
		}
		if err != nil {
			return nil, err
		}
	}

	skus := make([]string, 0, len(sale.Lines))
	for _, line := range sale.Lines {
		if line.Qty < 1 || line.UnitPriceCents < 1 {
			return nil, fmt.Errorf("%w: bad line for sku %s", store.ErrValidation, line.SKU)
		}
		skus = append(skus, line.SKU)
	}

	stockRows, err := tx.QueryContext(ctx, `
		SELECT i.sku, i.qty, p.active
		FROM inventory_stocks i
		JOIN products p ON p.sku = i.sku
		WHERE i.sku = ANY($1)
		FOR UPDATE OF i
	`, skus)
	if err != nil {
		return nil, err
	}
	type stockState struct {
		qty    int
		active bool
	}
	stockMap := make(map[string]stockState, len(skus))
	for stockRows.Next() {
		var sku string
		var state stockState
		if err := stockRows.Scan(&sku, &state.qty, &state.active); err != nil {
			_ = stockRows.Close()
			return nil, err
		}
		stockMap[sku] = state
	}
	if err := stockRows.Err(); err != nil {
		_ = stockRows.Close()
		return nil, err
	}
	_ = stockRows.Close()

	subtotal := int64(0)
	for i, line := range sale.Lines {
		state, exists := stockMap[line.SKU]
		if !exists || !state.active {
			return nil, fmt.Errorf("%w: sku %s unavailable", store.ErrValidation, line.SKU)
		}
		if state.qty < line.Qty {
			return nil, fmt.Errorf("%w: sku %s has %d left, %d requested", store.ErrStockConflict, line.SKU, state.qty, line.Qty)
		}
		sale.Lines[i].LineTotalCents = int64(line.Qty) * line.UnitPriceCents
		subtotal += sale.Lines[i].LineTotalCents
	}

	if sale.PromotionID != "" {
		res, err := tx.ExecContext(ctx, `
			UPDATE promotions
			SET current_uses = current_uses + 1
			WHERE id = $1 AND (max_uses = 0 OR current_uses < max_uses)
		`, sale.PromotionID)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			var one int
			err := tx.QueryRowContext(ctx, `SELECT 1 FROM promotions WHERE id = $1`, sale.PromotionID).Scan(&one)
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%w: promotion %s", store.ErrNotFound, sale.PromotionID)
			}
			if err != nil {
				return nil, err
			}
			if requirePromotion {
				return nil, fmt.Errorf("%w: %s", store.ErrPromotionExhausted, sale.PromotionID)
			}
			sale.DiscountCents = 0
			sale.PromotionDropped = true
		}
	}

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

	for _, line := range sale.Lines {
		_, err := tx.ExecContext(ctx, `
			UPDATE inventory_stocks
			SET qty = qty - $1, updated_at = now()
			WHERE sku = $2
		`, line.Qty, line.SKU)
		if err != nil {
			return nil, err
		}
	}

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	sale.Status = domain.SaleStatusCompleted

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (
			id, customer_id, idempotency_key, subtotal_cents, discount_cents,
			tax_rate_percent, tax_cents, total_cents, payment_method,
			promotion_id, promotion_note, promotion_dropped, status, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, sale.ID, nullIfEmpty(sale.CustomerID), sale.IdempotencyKey, sale.SubtotalCents, sale.DiscountCents,
		sale.TaxRatePercent, sale.TaxCents, sale.TotalCents, sale.PaymentMethod,
		nullIfEmpty(sale.PromotionID), sale.PromotionNote, sale.PromotionDropped, sale.Status, sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			existing, lookupErr := s.FindSaleByIdempotency(ctx, sale.IdempotencyKey)
			if lookupErr == nil {
				return existing, nil
			}
		}
		return nil, err
	}

	for _, line := range sale.Lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sale_lines (sale_id, sku, name, qty, unit_price_cents, line_total_cents)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, sale.ID, line.SKU, line.Name, line.Qty, line.UnitPriceCents, line.LineTotalCents)
		if err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cash_ledger_entries (id, kind, amount_cents, description, reference_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, xid.New("led"), domain.LedgerKindSale, sale.TotalCents, fmt.Sprintf("sale %s", sale.ID), sale.ID, sale.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &sale, nil
}

func (s *Store) FindSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	return s.findSale(ctx, "id", id)
}

func (s *Store) FindSaleByIdempotency(ctx context.Context, key string) (*domain.Sale, error) {
	return s.findSale(ctx, "idempotency_key", key)
}

func (s *Store) findSale(ctx context.Context, column string, value string) (*domain.Sale, error) {
	var sale domain.Sale
	var customerID, promotionID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, customer_id, idempotency_key, subtotal_cents, discount_cents,
		       tax_rate_percent, tax_cents, total_cents, payment_method,
		       promotion_id, promotion_note, promotion_dropped, status, created_at
		FROM sales
		WHERE `+column+` = $1
	`, value).Scan(&sale.ID, &customerID, &sale.IdempotencyKey, &sale.SubtotalCents, &sale.DiscountCents,
		&sale.TaxRatePercent, &sale.TaxCents, &sale.TotalCents, &sale.PaymentMethod,
		&promotionID, &sale.PromotionNote, &sale.PromotionDropped, &sale.Status, &sale.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sale.CustomerID = customerID.String
	sale.PromotionID = promotionID.String

	rows, err := s.db.QueryContext(ctx, `
		SELECT sku, name, qty, unit_price_cents, line_total_cents
		FROM sale_lines
		WHERE sale_id = $1
		ORDER BY sku
	`, sale.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var line domain.SaleLine
		if err := rows.Scan(&line.SKU, &line.Name, &line.Qty, &line.UnitPriceCents, &line.LineTotalCents); err != nil {
			return nil, err
		}
		sale.Lines = append(sale.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &sale, nil
}

func (s *Store) AppendLedgerEntry(ctx context.Context, entry domain.LedgerEntry) (*domain.LedgerEntry, error) {
	if entry.AmountCents < 1 {
		return nil, fmt.Errorf("%w: amount must be positive", store.ErrValidation)
	}
	if !domain.ValidLedgerKind(entry.Kind) {
		return nil, fmt.Errorf("%w: unknown ledger kind %q", store.ErrValidation, entry.Kind)
	}
	if entry.ID == "" {
		entry.ID = xid.New("led")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO cash_ledger_entries (id, kind, amount_cents, description, reference_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING seq
	`, entry.ID, entry.Kind, entry.AmountCents, entry.Description, nullIfEmpty(entry.ReferenceID), entry.CreatedAt).Scan(&entry.Seq)
	if err != nil {
		return nil, err
	}

	return &entry, nil
}

func (s *Store) LedgerBalance(ctx context.Context) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(
			CASE WHEN kind IN ('expense','withdrawal') THEN -amount_cents ELSE amount_cents END
		), 0)
		FROM cash_ledger_entries
	`).Scan(&balance)
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *Store) LedgerEntriesInRange(ctx context.Context, from time.Time, to time.Time) ([]domain.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, kind, amount_cents, description, COALESCE(reference_id, ''), created_at
		FROM cash_ledger_entries
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY seq
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.LedgerEntry, 0, 64)
	for rows.Next() {
		var entry domain.LedgerEntry
		if err := rows.Scan(&entry.Seq, &entry.ID, &entry.Kind, &entry.AmountCents, &entry.Description, &entry.ReferenceID, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

func (s *Store) LedgerDailyTotals(ctx context.Context, day time.Time) (domain.DailyTotals, error) {
	dayStart := time.Date(day.UTC().Year(), day.UTC().Month(), day.UTC().Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)

	totals := domain.DailyTotals{Date: dayStart.Format("2006-01-02")}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN kind IN ('sale','deposit') THEN amount_cents ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN kind IN ('expense','withdrawal') THEN amount_cents ELSE 0 END), 0),
			COUNT(*)
		FROM cash_ledger_entries
		WHERE created_at >= $1 AND created_at < $2
	`, dayStart, dayEnd).Scan(&totals.IncomeCents, &totals.ExpenseCents, &totals.EntryCount)
	if err != nil {
		return domain.DailyTotals{}, err
	}
	totals.NetCents = totals.IncomeCents - totals.ExpenseCents
	return totals, nil
}

func (s *Store) GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(phone, ''), created_at
		FROM customers
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Phone, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(phone, ''), created_at
		FROM customers
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.CreatedAt); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return customers, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrValidation
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: user %s already exists", store.ErrValidation, user.Username)
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func orEmpty(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
