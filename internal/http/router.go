package api

import (
	"log"
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	intconfig "inventory/internal/config"
	h "inventory/internal/http/handlers"
	"inventory/internal/http/middleware"
)

// NewRouter mounts the inventory endpoints at the root and again under /api.
func NewRouter(env intconfig.Env, inv *h.Inventory) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Logger(), gin.Recovery(), middleware.CORS(env.CORSAllowedOrigins))

	if err := r.SetTrustedProxies(nil); err != nil {
		log.Printf("warning: failed to set trusted proxies: %v", err)
	}

	r.OPTIONS("/*path", func(c *gin.Context) { c.AbortWithStatus(stdhttp.StatusNoContent) })

	r.NoRoute(func(c *gin.Context) {
		c.JSON(stdhttp.StatusNotFound, gin.H{
			"error":  "route tidak ditemukan",
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	mountSystem(r.Group(""), inv)
	mountInventory(r.Group(""), inv)

	api := r.Group("/api")
	{
		mountSystem(api, inv)
		mountInventory(api, inv)
	}

	h.SetRouter(r)
	return r
}

func mountSystem(g *gin.RouterGroup, inv *h.Inventory) {
	g.GET("/health", h.Health)
	g.GET("/db-check", h.DBCheck(inv.Store))
	g.GET("/routes", h.Routes)
}

func mountInventory(g *gin.RouterGroup, inv *h.Inventory) {
	availability := g.Group("/availability")
	availability.POST("/check", inv.CheckAvailability)
	availability.GET("/:resourceId", inv.GetCalendar)
	availability.PUT("/:resourceId/:date", inv.UpdateDay)

	holds := g.Group("/holds")
	holds.POST("", inv.PlaceHold)
	holds.GET("/:id", inv.GetHold)
	holds.POST("/:id/commit", inv.CommitHold)
	holds.POST("/:id/release", inv.ReleaseHold)
}
