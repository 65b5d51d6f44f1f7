// Package router assembles the gin engine and its routes.
package router

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"qwen-bridge/internal/proxy"
)

// New builds the engine with middleware and all routes registered
func New(server *proxy.Server) *gin.Engine {
	if logrus.GetLevel() < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	// SSE responses are flushed per frame and must not pass through the
	// gzip writer
	engine.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/v1/chat/completions"})))

	engine.GET("/health", server.HandleHealth)

	v1 := engine.Group("/v1")
	{
		v1.POST("/chat/completions", server.HandleChatCompletions)
		v1.GET("/models", server.HandleListModels)
	}

	return engine
}
