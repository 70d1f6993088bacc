// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package insight

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all insight routes with the router.
//
// Description:
//
//	Registers all /v1/insight/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	POST /v1/insight/execute - Execute a query against a context
//	POST /v1/insight/explain - Compile a query without executing
//	POST /v1/insight/ask - Translate a question and execute it
//	POST /v1/insight/contexts - Save a context document version
//	POST /v1/insight/contexts/validate - Validate document text
//	POST /v1/insight/contexts/:id/activate - Activate a stored version
//	GET  /v1/insight/contexts/:id/history - Execution history
//	GET  /v1/insight/health - Health check
//
// Example:
//
//	service := insight.NewService(insight.DefaultServiceConfig(), datasets, contexts, results)
//	handlers := insight.NewHandlers(service)
//
//	v1 := router.Group("/v1")
//	insight.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	insight := rg.Group("/insight")
	{
		// Query path
		insight.POST("/execute", handlers.HandleExecute)
		insight.POST("/explain", handlers.HandleExplain)
		insight.POST("/ask", handlers.HandleAsk)

		// Context lifecycle
		insight.POST("/contexts", handlers.HandleSaveContext)
		insight.POST("/contexts/validate", handlers.HandleValidate)
		insight.POST("/contexts/:id/activate", handlers.HandleActivate)
		insight.GET("/contexts/:id/history", handlers.HandleHistory)

		// Health check
		insight.GET("/health", handlers.HandleHealth)
	}
}
