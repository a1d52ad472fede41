package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// SetupRoutes registers the API on router. allowOrigins empty allows any origin.
func SetupRoutes(router *gin.Engine, handler *Handler, allowOrigins []string) {
	corsConfig := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type"},
	}
	if len(allowOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = allowOrigins
	}
	router.Use(cors.New(corsConfig))

	api := router.Group("/api")
	{
		api.POST("/comparables", handler.FindComparables)
		api.POST("/properties", handler.IngestListings)
		api.GET("/properties/:id", handler.GetProperty)
		api.GET("/properties/:id/price-history", handler.GetPriceHistory)
		api.GET("/properties/:id/price-trend", handler.GetPriceTrend)
		api.GET("/stats", handler.GetStats)
		api.POST("/flush", handler.Flush)
	}
}
