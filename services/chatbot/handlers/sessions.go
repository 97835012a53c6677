// Copyright (C) 2026 Tidewater AI (engineering@tidewaterai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tidewaterai/ragchat/services/chatbot/datatypes"
	"github.com/tidewaterai/ragchat/services/chatbot/services"
)

// GetSessionHistory serves GET /v1/sessions/:sessionId/history.
func GetSessionHistory(svc *services.ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")
		sess := svc.Memory().Base().GetSession(sessionID)
		if sess == nil {
			c.JSON(http.StatusNotFound,
				datatypes.NewErrorResponse("session not found", sessionID, "not_found"))
			return
		}

		history := sess.History(0)
		c.JSON(http.StatusOK, gin.H{
			"session_id":    sessionID,
			"created_at":    sess.CreatedAt,
			"message_count": len(history),
			"messages":      history,
		})
	}
}

// DeleteSession serves DELETE /v1/sessions/:sessionId. Removes the
// session together with any stored summary.
func DeleteSession(svc *services.ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")
		if !svc.Memory().DeleteSession(sessionID) {
			c.JSON(http.StatusNotFound,
				datatypes.NewErrorResponse("session not found", sessionID, "not_found"))
			return
		}
		slog.Info("Deleted session", "session_id", sessionID)
		c.JSON(http.StatusOK, gin.H{"deleted": true, "session_id": sessionID})
	}
}
