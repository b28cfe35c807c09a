package server

import (
	"github.com/aspect-build/enclaveproof/internal/client"
	"github.com/aspect-build/enclaveproof/internal/engine"
	"github.com/aspect-build/enclaveproof/internal/server/handler"
	"github.com/aspect-build/enclaveproof/internal/store"
	"github.com/gin-gonic/gin"
)

// NewRouter creates and configures the Gin router with all routes.
func NewRouter(st *store.Store, eng *engine.Engine, resolver client.DigestResolver, cfg *Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLog())

	if len(cfg.CORSOrigins) > 0 {
		r.Use(CORS(cfg.CORSOrigins))
	}

	r.GET("/", func(c *gin.Context) {
		c.String(200, "ok")
	})

	admin := AdminAuth(cfg.AdminToken)

	// Each verification dials the named enclave and adds an audit row.
	verifyAuth := admin
	if cfg.PublicVerify {
		verifyAuth = func(c *gin.Context) { c.Next() }
	}

	v1 := r.Group("/v1")
	{
		v1.GET("/engine", handler.HandleEngineState(eng))

		v1.POST("/verify", verifyAuth, handler.HandleVerify(st, eng, resolver))

		// Audit log
		v1.GET("/verifications", admin, handler.HandleListVerifications(st))
		v1.GET("/ground-truth", admin, handler.HandleGroundTruth(st))
	}

	return r
}
