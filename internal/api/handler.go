package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"storefront/internal/service"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger reports whether a backing dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	catalog  *service.CatalogService
	carts    *service.CartService
	checkout *service.CheckoutService
	orders   *service.OrderService
	db       Pinger
	cache    Pinger
	logger   *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	catalog *service.CatalogService,
	carts *service.CartService,
	checkout *service.CheckoutService,
	orders *service.OrderService,
	db Pinger,
	cache Pinger,
) *Handler {
	return &Handler{
		catalog:  catalog,
		carts:    carts,
		checkout: checkout,
		orders:   orders,
		db:       db,
		cache:    cache,
		logger:   util.ComponentLogger("http"),
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
		v1.GET("/products", h.listProducts)
		v1.GET("/products/:id", h.getProduct)

		shopper := v1.Group("", shopperIdentity())
		{
			shopper.GET("/cart", h.getCart)
			shopper.GET("/cart/count", h.getCartCount)
			shopper.POST("/cart/add", h.addToCart)
			shopper.POST("/cart/update", h.updateCart)
			shopper.POST("/cart/remove", h.removeFromCart)
			shopper.POST("/cart/clear", h.clearCart)

			shopper.GET("/addresses", h.listAddresses)
			shopper.POST("/checkout", h.placeOrder)

			shopper.GET("/orders", h.listOrders)
			shopper.GET("/orders/:id", h.getOrder)
		}

		admin := v1.Group("/admin", shopperIdentity(), requireAdmin())
		{
			admin.GET("/orders", h.adminListOrders)
			admin.GET("/orders/:id", h.adminGetOrder)
			admin.POST("/orders/:id/status", h.adminUpdateStatus)

			admin.GET("/products", h.adminListProducts)
			admin.POST("/products", h.adminCreateProduct)
			admin.PUT("/products/:id", h.adminUpdateProduct)
			admin.DELETE("/products/:id", h.adminDeleteProduct)
		}
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready only when the database answers.
// The product cache is optional, so a failing cache only degrades the report.
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.db.Ping(ctx); err != nil {
		h.logger.Warn("Readiness check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"time":   time.Now().Unix(),
		})
		return
	}

	cache := "disabled"
	if h.cache != nil {
		cache = "ok"
		if err := h.cache.Ping(ctx); err != nil {
			h.logger.Warn("Cache ping failed", zap.Error(err))
			cache = "unavailable"
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"cache":  cache,
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) listProducts(c *gin.Context) {
	h.writeProducts(c, false)
}

func (h *Handler) adminListProducts(c *gin.Context) {
	h.writeProducts(c, true)
}

func (h *Handler) writeProducts(c *gin.Context, includeInactive bool) {
	products, err := h.catalog.ListProducts(c.Request.Context(), includeInactive)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (h *Handler) getProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	product, err := h.catalog.GetProduct(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

type addToCartRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  *int  `json:"quantity"`
}

type updateCartRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  *int  `json:"quantity" binding:"required"`
}

type removeFromCartRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
}

func (h *Handler) getCart(c *gin.Context) {
	snap, err := h.carts.Snapshot(c.Request.Context(), shopperID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) getCartCount(c *gin.Context) {
	count, err := h.carts.Count(c.Request.Context(), shopperID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (h *Handler) addToCart(c *gin.Context) {
	var req addToCartRequest
	if !bindJSON(c, &req) {
		return
	}

	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	ctx := c.Request.Context()
	lineQuantity, err := h.carts.AddLine(ctx, shopperID(c), req.ProductID, quantity)
	if err != nil {
		h.writeError(c, err)
		return
	}

	count, err := h.carts.Count(ctx, shopperID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"product_id": req.ProductID,
		"quantity":   lineQuantity,
		"count":      count,
	})
}

func (h *Handler) updateCart(c *gin.Context) {
	var req updateCartRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.carts.SetLineQuantity(c.Request.Context(), shopperID(c), req.ProductID, *req.Quantity); err != nil {
		h.writeError(c, err)
		return
	}
	h.getCart(c)
}

func (h *Handler) removeFromCart(c *gin.Context) {
	var req removeFromCartRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.carts.RemoveLine(c.Request.Context(), shopperID(c), req.ProductID); err != nil {
		h.writeError(c, err)
		return
	}
	h.getCart(c)
}

func (h *Handler) clearCart(c *gin.Context) {
	if err := h.carts.Clear(c.Request.Context(), shopperID(c)); err != nil {
		h.writeError(c, err)
		return
	}
	h.getCart(c)
}

func (h *Handler) listAddresses(c *gin.Context) {
	addrs, err := h.checkout.Addresses(c.Request.Context(), shopperID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"addresses": addrs})
}

// placeOrder handles checkout of the shopper's cart
func (h *Handler) placeOrder(c *gin.Context) {
	var req service.CheckoutRequest
	if !bindJSON(c, &req) {
		return
	}

	req.ShopperID = shopperID(c)
	if key := c.GetHeader("Idempotency-Key"); key != "" {
		req.IdempotencyKey = key
	}

	res, err := h.checkout.Checkout(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	location := fmt.Sprintf("/api/v1/orders/%d", res.Order.ID)
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}

	c.Header("Location", location)
	c.JSON(status, gin.H{
		"order_id": res.Order.ID,
		"status":   res.Order.Status,
		"total":    res.Order.TotalAmount,
		"location": location,
		"replayed": res.Replayed,

		"shipping_address": res.Order.ShippingAddress,
	})
}

func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.orders.ListForShopper(c.Request.Context(), shopperID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// getOrder handles the order confirmation page
func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), orderID, shopperID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order":      order,
		"item_count": order.ItemCount(),
	})
}

func (h *Handler) adminListOrders(c *gin.Context) {
	orders, err := h.orders.ListAll(c.Request.Context(), c.Query("status"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) adminGetOrder(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	order, err := h.orders.GetAnyOrder(c.Request.Context(), orderID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handler) adminUpdateStatus(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	var req updateStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	order, err := h.orders.UpdateStatus(c.Request.Context(), orderID, req.Status)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

func (h *Handler) adminCreateProduct(c *gin.Context) {
	var req service.ProductInput
	if !bindJSON(c, &req) {
		return
	}

	product, err := h.catalog.CreateProduct(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (h *Handler) adminUpdateProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req service.ProductInput
	if !bindJSON(c, &req) {
		return
	}

	product, err := h.catalog.UpdateProduct(c.Request.Context(), id, req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) adminDeleteProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.catalog.DeleteProduct(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"details": err.Error(),
		})
		return false
	}
	return true
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid_id",
		})
		return 0, false
	}
	return id, true
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
