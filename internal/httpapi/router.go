// Package httpapi assembles the gin router: health check, the
// WebSocket upgrade endpoint, and the peripheral login/register
// surface, grounded on collab-service/backend/cmd/collab_server/main.go
// and gateway/backend/cmd/gateway/main.go's route wiring.
package httpapi

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"collabcore/internal/auth"
	"collabcore/internal/session"
	"collabcore/internal/transport/ws"
)

// Options bundles everything the router needs to wire routes.
type Options struct {
	Fabric      *session.Fabric
	Decoder     auth.TokenDecoder
	AuthHandlers *auth.Handlers
}

// NewRouter builds the gin engine: global logger/recovery/CORS
// middleware, a public /healthz and /auth/login, /auth/register pair,
// and an authenticated /ws upgrade endpoint.
func NewRouter(opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOriginFunc:  func(origin string) bool { return true },
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: false,
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if opts.AuthHandlers != nil {
		authGroup := r.Group("/auth")
		authGroup.POST("/login", opts.AuthHandlers.Login)
		authGroup.POST("/register", opts.AuthHandlers.Register)
	}

	wsGroup := r.Group("/ws")
	wsGroup.Use(auth.Middleware(opts.Decoder))
	wsGroup.GET("", ws.Handler(opts.Fabric))

	return r
}
