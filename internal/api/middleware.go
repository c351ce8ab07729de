package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	headerShopperID   = "X-Shopper-ID"
	headerShopperRole = "X-Shopper-Role"
	roleAdmin         = "admin"

	shopperIDKey = "shopper_id"
)

// shopperIdentity reads the authenticated shopper id set by the fronting gateway
func shopperIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.GetHeader(headerShopperID), 10, 64)
		if err != nil || id <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "unauthenticated",
			})
			return
		}
		c.Set(shopperIDKey, id)
		c.Next()
	}
}

func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader(headerShopperRole) != roleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "forbidden",
			})
			return
		}
		c.Next()
	}
}

func shopperID(c *gin.Context) int64 {
	return c.GetInt64(shopperIDKey)
}
