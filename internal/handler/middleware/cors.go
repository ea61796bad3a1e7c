package middleware

import (
	"slices"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"biliticket/possync/internal/apiclient"
	"biliticket/possync/internal/config"
)

// CORS admits the checkout UI. A "*" origin opens the API to any origin,
// which only makes sense when the till binds to loopback.
func CORS(cfg config.CORSConfig) gin.HandlerFunc {
	c := cors.Config{
		AllowMethods:     cfg.AllowedMethods,
		AllowHeaders:     append(slices.Clone(cfg.AllowedHeaders), apiclient.HeaderIdempotencyKey),
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           cfg.MaxAge,
	}
	if slices.Contains(cfg.AllowedOrigins, "*") {
		c.AllowAllOrigins = true
		c.AllowCredentials = false
	} else {
		c.AllowOrigins = cfg.AllowedOrigins
	}
	return cors.New(c)
}
