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
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianInsight/services/insight/compiler"
	"github.com/AleutianAI/AleutianInsight/services/insight/middleware"
	"github.com/AleutianAI/AleutianInsight/services/insight/parser"
	"github.com/AleutianAI/AleutianInsight/services/insight/relgraph"
	"github.com/AleutianAI/AleutianInsight/services/insight/store"
)

// ServiceVersion is the insight service version.
const ServiceVersion = "0.1.0"

// Handlers contains the HTTP handlers for the insight service.
type Handlers struct {
	svc *Service
}

// NewHandlers creates handlers for the given service.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// HandleExecute handles POST /v1/insight/execute.
//
// Response:
//
//	200 OK: ExecuteResult
//	400 Bad Request: Malformed body or uncompilable query
//	404 Not Found: Unknown context
//	409 Conflict: Context failed validation
//	422 Unprocessable Entity: No resolvable join path
//	504 Gateway Timeout: Dataset store execution timed out
func (h *Handlers) HandleExecute(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleExecute")

	var req ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}

	opts := DefaultExecuteOptions()
	if req.UseCache != nil {
		opts.UseCache = *req.UseCache
	}
	if req.TimeoutSeconds > 0 {
		opts.Timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}

	result, err := h.svc.Execute(c.Request.Context(), userID(c), req.ContextID, req.Query, opts)
	if err != nil {
		writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// HandleExplain handles POST /v1/insight/explain.
// Compiles the query and returns the plan without executing it.
func (h *Handlers) HandleExplain(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleExplain")

	var req ExplainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}

	plan, err := h.svc.Explain(c.Request.Context(), userID(c), req.ContextID, req.Query)
	if err != nil {
		writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

// HandleValidate handles POST /v1/insight/contexts/validate.
// Parses and validates document text without persisting anything.
func (h *Handlers) HandleValidate(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleValidate")

	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}

	doc, result, err := h.svc.ValidateDocument(c.Request.Context(), userID(c), req.Text)
	if err != nil {
		writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, ValidateResponse{Document: doc, Validation: result})
}

// HandleSaveContext handles POST /v1/insight/contexts.
// Saves a new document version; blocking findings do not prevent saving.
func (h *Handlers) HandleSaveContext(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleSaveContext")

	var req SaveContextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}

	doc, result, err := h.svc.SaveContext(c.Request.Context(), userID(c), req.ContextID, req.Text)
	if err != nil {
		writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusCreated, ValidateResponse{Document: doc, Validation: result})
}

// HandleActivate handles POST /v1/insight/contexts/:id/activate.
// The version to activate comes from the "version" query parameter.
func (h *Handlers) HandleActivate(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleActivate")

	contextID := c.Param("id")
	version := c.Query("version")
	if version == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "version query parameter is required"})
		return
	}

	if err := h.svc.ActivateContext(c.Request.Context(), contextID, version); err != nil {
		writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"context_id": contextID, "version": version, "status": "active"})
}

// HandleHistory handles GET /v1/insight/contexts/:id/history.
func (h *Handlers) HandleHistory(c *gin.Context) {
	getOrCreateRequestID(c)
	c.JSON(http.StatusOK, gin.H{"executions": h.svc.History(c.Param("id"))})
}

// HandleAsk handles POST /v1/insight/ask.
// Translates a natural-language question and executes the resulting query.
func (h *Handlers) HandleAsk(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleAsk")

	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}

	query, result, err := h.svc.Ask(c.Request.Context(), userID(c), req.ContextID, req.Question)
	if err != nil {
		writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, AskResponse{Query: query, Result: result})
}

// HandleHealth handles GET /v1/insight/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "version": ServiceVersion})
}

// =============================================================================
// Helpers
// =============================================================================

// userID resolves the authenticated caller, defaulting to the local user
// when the auth middleware is not installed.
func userID(c *gin.Context) string {
	if info := middleware.GetAuthInfo(c); info != nil {
		return info.UserID
	}
	return "local-user"
}

// getOrCreateRequestID returns the X-Request-ID header, generating one
// when the caller did not send it, and echoes it on the response.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}

// writeError maps service errors to HTTP status codes with a uniform body.
func writeError(c *gin.Context, logger *slog.Logger, err error) {
	var (
		parseErr   *parser.ParseError
		noPath     *relgraph.NoPathError
		circular   *relgraph.CircularPathError
		compileErr *compiler.CompileError
		undefMet   *compiler.UndefinedMetricError
		undefFil   *compiler.UndefinedFilterError
		timeout    *ExecutionTimeout
		execErr    *ExecutionError
	)

	switch {
	case errors.Is(err, store.ErrContextNotFound),
		errors.Is(err, store.ErrVersionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrContextInvalid),
		errors.Is(err, store.ErrValidationBlocked),
		errors.Is(err, store.ErrDatasetOwned):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	case errors.Is(err, parser.ErrEmptyDocument),
		errors.As(err, &parseErr),
		errors.As(err, &compileErr),
		errors.As(err, &undefMet),
		errors.As(err, &undefFil),
		errors.Is(err, ErrEmptyQuestion):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.As(err, &noPath), errors.As(err, &circular):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error()})
	case errors.As(err, &timeout):
		logger.Warn("Execution timed out", "error", err)
		c.JSON(http.StatusGatewayTimeout, ErrorResponse{Error: err.Error(), Retryable: true})
	case errors.Is(err, ErrNoTranslator):
		c.JSON(http.StatusNotImplemented, ErrorResponse{Error: err.Error()})
	case errors.As(err, &execErr):
		logger.Error("Execution failed", "error", err)
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: err.Error()})
	default:
		logger.Error("Request failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
}
