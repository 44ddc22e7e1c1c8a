package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pos-service/internal/models"
	"pos-service/internal/sequence"
	"pos-service/internal/service"
	"pos-service/internal/store"
	"pos-service/internal/util"
)

// Handler contains HTTP handlers
type Handler struct {
	products *service.ProductService
	sales    *service.SaleService
	returns  *service.ReturnService
	stats    *service.StatsService
}

// NewHandler creates a new HTTP handler
func NewHandler(products *service.ProductService, sales *service.SaleService, returns *service.ReturnService, stats *service.StatsService) *Handler {
	return &Handler{
		products: products,
		sales:    sales,
		returns:  returns,
		stats:    stats,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/products", h.createProduct)
		v1.GET("/products", h.listProducts)
		v1.GET("/products/:id", h.getProduct)
		v1.DELETE("/products/:id", h.deleteProduct)

		v1.POST("/sales", h.createSale)
		v1.GET("/sales", h.listSales)
		v1.GET("/sales/:id", h.getSale)

		v1.POST("/returns", h.createReturn)
		v1.GET("/returns", h.listReturns)
		v1.GET("/returns/:id", h.getReturn)

		v1.GET("/statistics", h.getStatistics)
		v1.GET("/statistics/:date", h.getDayStatistics)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) createProduct(c *gin.Context) {
	var req service.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	product, err := h.products.CreateProduct(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (h *Handler) listProducts(c *gin.Context) {
	if barcode := c.Query("barcode"); barcode != "" {
		product, err := h.products.GetProductByBarcode(c.Request.Context(), barcode)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, []interface{}{product})
		return
	}

	products, err := h.products.ListProducts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (h *Handler) getProduct(c *gin.Context) {
	product, err := h.products.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) deleteProduct(c *gin.Context) {
	if err := h.products.DeleteProduct(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) createSale(c *gin.Context) {
	var req service.CreateSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	sale, err := h.sales.CreateSale(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sale)
}

func (h *Handler) listSales(c *gin.Context) {
	day := time.Now().UTC()
	if date := c.Query("date"); date != "" {
		parsed, err := time.ParseInLocation(models.DateFormat, date, time.UTC)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date, want YYYY-MM-DD"})
			return
		}
		day = parsed
	}

	sales, err := h.sales.ListSales(c.Request.Context(), day)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sales)
}

func (h *Handler) getSale(c *gin.Context) {
	sale, err := h.sales.GetSale(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

func (h *Handler) createReturn(c *gin.Context) {
	var req service.CreateReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	ret, err := h.returns.ProcessReturn(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ret)
}

func (h *Handler) listReturns(c *gin.Context) {
	returns, err := h.returns.ListReturns(c.Request.Context(), c.Query("sale_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, returns)
}

func (h *Handler) getReturn(c *gin.Context) {
	ret, err := h.returns.GetReturn(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ret)
}

func (h *Handler) getStatistics(c *gin.Context) {
	start := c.Query("start_date")
	end := c.Query("end_date")
	if start == "" || end == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start_date and end_date are required"})
		return
	}

	stats, err := h.stats.GetStatistics(c.Request.Context(), start, end, c.Query("group_by"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) getDayStatistics(c *gin.Context) {
	date := c.Param("date")
	if _, err := time.ParseInLocation(models.DateFormat, date, time.UTC); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date, want YYYY-MM-DD"})
		return
	}

	doc, err := h.stats.GetDay(c.Request.Context(), date)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// respondError maps service and store errors onto HTTP statuses. Over-
// return responses carry the remaining returnable quantity so a client can
// explain the rejection.
func respondError(c *gin.Context, err error) {
	var verr *service.ValidationError
	var ierr *service.InvalidReferenceError
	var oerr *service.OverReturnError

	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found", "details": err.Error()})
	case errors.Is(err, store.ErrInsufficientStock):
		c.JSON(http.StatusConflict, gin.H{"error": "Insufficient stock", "details": err.Error()})
	case errors.Is(err, store.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "Conflict", "details": err.Error()})
	case errors.Is(err, service.ErrLockNotAcquired):
		c.JSON(http.StatusConflict, gin.H{"error": "Concurrent operation in progress", "retryable": true})
	case errors.Is(err, sequence.ErrExhausted):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Barcode sequence exhausted"})
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "details": verr.Error()})
	case errors.As(err, &ierr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Invalid sale line reference", "details": ierr.Error()})
	case errors.As(err, &oerr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":      "Over-return rejected",
			"details":    oerr.Error(),
			"sale_item":  oerr.SaleItemID,
			"requested":  oerr.Requested,
			"remaining":  oerr.Remaining,
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error", "details": err.Error()})
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
