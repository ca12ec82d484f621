// Package httpapi exposes the HTTP surface: login, catalog, pricing, sale
// commit, promotions and the cash ledger. Handlers stay thin; all business
// rules live in the service layer.
package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"tiendita/internal/domain"
	"tiendita/internal/service"
	"tiendita/internal/store"
	"tiendita/internal/util"
)

type API struct {
	service      *service.Service
	auth         *AuthManager
	loginLimiter *attemptLimiter
	logger       *zap.Logger
}

func New(svc *service.Service, auth *AuthManager) *API {
	return &API{
		service:      svc,
		auth:         auth,
		loginLimiter: newAttemptLimiter(5, time.Minute),
		logger:       util.GetLogger(),
	}
}

func (a *API) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(metricsMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.POST("/login", a.handleLogin)

	authed := v1.Group("")
	authed.Use(a.authMiddleware())
	{
		authed.GET("/products", a.handleListProducts)
		authed.POST("/products", a.handleCreateProduct)
		authed.PATCH("/products/:sku", a.handleUpdateProduct)
		authed.POST("/products/:sku/stock", a.handleReceiveStock)

		authed.GET("/customers", a.handleListCustomers)
		authed.GET("/customers/:id", a.handleGetCustomer)

		authed.GET("/users", a.handleListUsers)
		authed.POST("/users", a.handleCreateUser)

		authed.POST("/cart/price", a.handlePriceCart)

		authed.POST("/sales", a.handleCommitSale)
		authed.GET("/sales/:id", a.handleGetSale)

		authed.GET("/promotions", a.handleListPromotions)
		authed.POST("/promotions", a.handleCreatePromotion)
		authed.PATCH("/promotions/:id/active", a.handleTogglePromotion)

		authed.POST("/ledger/movements", a.handleAppendMovement)
		authed.GET("/ledger/movements", a.handleListMovements)
		authed.GET("/ledger/balance", a.handleBalance)
		authed.GET("/ledger/daily", a.handleDailyTotals)

		authed.GET("/audit", a.handleListAuditLogs)
	}

	return router
}

func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		util.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		util.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
	}
}

func (a *API) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		actor, err := a.auth.ParseToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		c.Request = c.Request.WithContext(service.WithActor(c.Request.Context(), actor))
		c.Next()
	}
}

func (a *API) handleLogin(c *gin.Context) {
	if !a.loginLimiter.Allow(c.ClientIP()) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many login attempts"})
		return
	}

	var req domain.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	resp, err := a.auth.Login(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a *API) handleListProducts(c *gin.Context) {
	products, err := a.service.ListProducts(c.Request.Context())
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (a *API) handleCreateProduct(c *gin.Context) {
	var req domain.ProductCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	product, err := a.service.CreateProduct(c.Request.Context(), req)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (a *API) handleUpdateProduct(c *gin.Context) {
	var req domain.ProductUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	product, err := a.service.UpdateProduct(c.Request.Context(), c.Param("sku"), req)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (a *API) handleReceiveStock(c *gin.Context) {
	var req struct {
		Qty int `json:"qty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := a.service.ReceiveStock(c.Request.Context(), c.Param("sku"), req.Qty); err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *API) handleListCustomers(c *gin.Context) {
	customers, err := a.service.ListCustomers(c.Request.Context())
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"customers": customers})
}

func (a *API) handleGetCustomer(c *gin.Context) {
	customer, err := a.service.GetCustomer(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, customer)
}

// User management stays on the auth manager; the handlers only gate it to
// admins.
func (a *API) handleListUsers(c *gin.Context) {
	if actor, ok := service.ActorFromContext(c.Request.Context()); !ok || actor.Role != "admin" {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cashiers": a.auth.ListCashiers(c.Request.Context())})
}

func (a *API) handleCreateUser(c *gin.Context) {
	if actor, ok := service.ActorFromContext(c.Request.Context()); !ok || actor.Role != "admin" {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	var req domain.CashierCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	cashier, err := a.auth.CreateCashier(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, cashier)
}

func (a *API) handlePriceCart(c *gin.Context) {
	var req domain.PriceQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	quote, err := a.service.PriceCart(c.Request.Context(), req)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

func (a *API) handleCommitSale(c *gin.Context) {
	var req domain.CommitSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	resp, err := a.service.CommitSale(c.Request.Context(), req)
	if err != nil {
		a.writeError(c, err)
		return
	}
	status := http.StatusCreated
	if resp.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, resp)
}

func (a *API) handleGetSale(c *gin.Context) {
	sale, err := a.service.GetSale(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

func (a *API) handleListPromotions(c *gin.Context) {
	onlyActive := c.Query("active") == "true"
	promos, err := a.service.ListPromotions(c.Request.Context(), onlyActive)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"promotions": promos})
}

func (a *API) handleCreatePromotion(c *gin.Context) {
	var req domain.PromotionCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	promo, err := a.service.CreatePromotion(c.Request.Context(), req)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, promo)
}

func (a *API) handleTogglePromotion(c *gin.Context) {
	var req domain.PromotionToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	promo, err := a.service.SetPromotionActive(c.Request.Context(), c.Param("id"), req.Active)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, promo)
}

func (a *API) handleAppendMovement(c *gin.Context) {
	var req domain.LedgerAppendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	entry, err := a.service.AppendMovement(c.Request.Context(), req)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (a *API) handleListMovements(c *gin.Context) {
	from, to, err := parseRange(c.Query("from"), c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	entries, err := a.service.Movements(c.Request.Context(), from, to)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"movements": entries})
}

func (a *API) handleBalance(c *gin.Context) {
	balance, err := a.service.Balance(c.Request.Context())
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance_cents": balance})
}

func (a *API) handleDailyTotals(c *gin.Context) {
	day := time.Now().UTC()
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		day = parsed
	}
	totals, err := a.service.DailyTotals(c.Request.Context(), day)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, totals)
}

func (a *API) handleListAuditLogs(c *gin.Context) {
	from, to, err := parseRange(c.Query("from"), c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}
	logs, err := a.service.ListAuditLogs(c.Request.Context(), from, to, limit)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"audit_logs": logs})
}

// parseRange defaults to the current UTC day when both bounds are absent.
func parseRange(fromRaw, toRaw string) (time.Time, time.Time, error) {
	if fromRaw == "" && toRaw == "" {
		now := time.Now().UTC()
		from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return from, from.AddDate(0, 0, 1), nil
	}
	from, err := time.Parse(time.RFC3339, fromRaw)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("from must be RFC3339")
	}
	to, err := time.Parse(time.RFC3339, toRaw)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("to must be RFC3339")
	}
	return from, to, nil
}

// writeError maps service and store errors onto HTTP statuses. Internal
// failures are logged in full and reported with a generic message.
func (a *API) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, store.ErrInsufficientStock),
		errors.Is(err, store.ErrStockConflict),
		errors.Is(err, store.ErrPromotionExhausted):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		a.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
