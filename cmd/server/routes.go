package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vasp-link.backend/internal/interfaces/http/handlers"
)

type routeDeps struct {
	commandHandler *handlers.CommandHandler
}

func registerHealthRoute(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

func registerMetricsRoute(r *gin.Engine) {
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func registerAPIV1Routes(r *gin.Engine, d routeDeps) {
	v1 := r.Group("/v1")
	{
		// Off-chain command endpoint (counterparty VASPs)
		v1.POST("/command", d.commandHandler.HandleCommand)
	}
}
