package api

import (
	"errors"
	"net/http"

	"storefront/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const cartPath = "/api/v1/cart"

// writeError maps domain errors to HTTP responses; anything unknown is a 500
// with the details kept in the log.
func (h *Handler) writeError(c *gin.Context, err error) {
	var lineErr *models.LineError
	var addrErr *models.AddressError

	switch {
	case errors.As(err, &lineErr):
		body := gin.H{
			"error":      errorCode(lineErr.Err),
			"product_id": lineErr.ProductID,
			"title":      lineErr.Title,
		}
		if errors.Is(lineErr, models.ErrInsufficientStock) {
			body["available"] = lineErr.Available
		}
		c.JSON(http.StatusConflict, body)

	case errors.As(err, &addrErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":      "invalid_address",
			"violations": addrErr.Violations,
		})

	case errors.Is(err, models.ErrEmptyCart):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":    "empty_cart",
			"redirect": cartPath,
		})

	case errors.Is(err, models.ErrInvalidAddress):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid_address"})

	case errors.Is(err, models.ErrProductUnavailable),
		errors.Is(err, models.ErrInsufficientStock),
		errors.Is(err, models.ErrProductInUse):
		c.JSON(http.StatusConflict, gin.H{"error": errorCode(err), "details": err.Error()})

	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})

	case errors.Is(err, models.ErrInvalidStatus),
		errors.Is(err, models.ErrInvalidQuantity),
		errors.Is(err, models.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": errorCode(err), "details": err.Error()})

	default:
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, models.ErrProductUnavailable):
		return "product_unavailable"
	case errors.Is(err, models.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, models.ErrProductInUse):
		return "product_in_use"
	case errors.Is(err, models.ErrInvalidStatus):
		return "invalid_status"
	case errors.Is(err, models.ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, models.ErrValidation):
		return "validation_failed"
	default:
		return "error"
	}
}
