// Copyright (C) 2026 Tidewater AI (engineering@tidewaterai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers contains the gin handlers for the chat HTTP surface.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/tidewaterai/ragchat/services/chatbot/datatypes"
	"github.com/tidewaterai/ragchat/services/chatbot/services"
)

var handlerTracer = otel.Tracer("ragchat.chatbot.handlers")

// HandleChat serves POST /v1/chat.
//
// Pipeline errors map to status codes by type: validation failures are
// 400, backing component failures are 502, everything else is 500.
func HandleChat(svc *services.ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "HandleChat")
		defer span.End()

		var req datatypes.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.JSON(http.StatusBadRequest,
				datatypes.NewErrorResponse("invalid request body", err.Error(), "bad_request"))
			return
		}

		resp, err := svc.Chat(ctx, &req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			switch {
			case services.IsValidationError(err):
				c.JSON(http.StatusBadRequest,
					datatypes.NewErrorResponse("invalid request", err.Error(), "validation_error"))
			case services.IsProviderError(err):
				slog.Error("Chat pipeline component failed", "error", err)
				c.JSON(http.StatusBadGateway,
					datatypes.NewErrorResponse("a backing component failed", err.Error(), "provider_error"))
			default:
				slog.Error("Chat request failed", "error", err)
				c.JSON(http.StatusInternalServerError,
					datatypes.NewErrorResponse("internal error", "", "internal_error"))
			}
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// HandleStats serves GET /v1/stats.
func HandleStats(svc *services.ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, svc.Stats(c.Request.Context()))
	}
}

// HandleHealth serves GET /health. A degraded service answers 503 so
// load balancers stop routing to it.
func HandleHealth(svc *services.ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		health := svc.HealthCheck(c.Request.Context())
		status := http.StatusOK
		if health.Status != "healthy" {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, health)
	}
}
