// Copyright (C) 2026 Tidewater AI (engineering@tidewaterai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware contains gin middleware for the chat HTTP surface.
package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tidewaterai/ragchat/services/chatbot/datatypes"
	"github.com/tidewaterai/ragchat/services/chatbot/observability"
	"github.com/tidewaterai/ragchat/services/chatbot/ratelimit"
)

// clientKey identifies the caller for rate limiting. API-key callers get
// per-key buckets; anonymous callers fall back to their IP.
func clientKey(c *gin.Context) string {
	if key := c.GetHeader("X-API-Key"); key != "" {
		return key
	}
	return c.ClientIP()
}

// RateLimit rejects requests exceeding the per-client budget with 429
// and standard rate-limit headers. A nil limiter disables the check.
func RateLimit(limiter *ratelimit.Limiter, metrics *observability.ChatMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		clientID := clientKey(c)
		limit := limiter.GetStats().RequestsPerMinute
		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))

		if !limiter.IsAllowed(clientID) {
			metrics.RecordRateLimited()
			retryAfter := int(math.Ceil(limiter.ResetAfter(clientID).Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.Header("X-RateLimit-Remaining", "0")
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				datatypes.NewErrorResponse("rate limit exceeded",
					"retry after "+strconv.Itoa(retryAfter)+"s", "rate_limited"))
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.Itoa(limiter.Remaining(clientID)))
		c.Next()
	}
}
