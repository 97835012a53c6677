// Copyright (C) 2026 Tidewater AI (engineering@tidewaterai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tidewaterai/ragchat/services/chatbot/handlers"
	"github.com/tidewaterai/ragchat/services/chatbot/middleware"
	"github.com/tidewaterai/ragchat/services/chatbot/observability"
	"github.com/tidewaterai/ragchat/services/chatbot/services"
)

// SetupRoutes registers the chat HTTP surface on router. Health and
// metrics stay outside the rate-limited group so probes and scrapes
// never consume request budget.
func SetupRoutes(router *gin.Engine, svc *services.ChatService, metrics *observability.ChatMetrics) {
	router.GET("/health", handlers.HandleHealth(svc))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	v1.Use(middleware.RateLimit(svc.Limiter(), metrics))
	{
		v1.POST("/chat", handlers.HandleChat(svc))
		v1.GET("/stats", handlers.HandleStats(svc))

		// Session administration routes
		sessions := v1.Group("/sessions")
		{
			sessions.GET("/:sessionId/history", handlers.GetSessionHistory(svc))
			sessions.DELETE("/:sessionId", handlers.DeleteSession(svc))
		}
	}
}
