// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package insight is the context-driven multi-dataset query engine.
//
// The service coordinates the engine's components per request:
//
//	parse -> validate -> resolve join path -> compile -> cache/execute
//
// Parsing, validation, graph resolution and compilation are pure and run
// without shared state; the result cache is the only shared mutable
// resource, and dataset store execution is the only blocking I/O. Every
// operation is request-scoped: there are no background workers, and
// cancellation is advisory (a caller may stop waiting, but an in-flight
// store execution is not interrupted beyond its context deadline).
package insight

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianInsight/services/insight/cache"
	"github.com/AleutianAI/AleutianInsight/services/insight/compiler"
	"github.com/AleutianAI/AleutianInsight/services/insight/contextdoc"
	"github.com/AleutianAI/AleutianInsight/services/insight/history"
	"github.com/AleutianAI/AleutianInsight/services/insight/parser"
	"github.com/AleutianAI/AleutianInsight/services/insight/relgraph"
	"github.com/AleutianAI/AleutianInsight/services/insight/store"
	"github.com/AleutianAI/AleutianInsight/services/insight/translator"
	"github.com/AleutianAI/AleutianInsight/services/insight/validator"
)

// ServiceConfig configures the coordinator.
type ServiceConfig struct {
	// ExecuteTimeout bounds one dataset store execution when the caller
	// does not override it. Default DefaultExecuteTimeout.
	ExecuteTimeout time.Duration

	// CacheTTL is the result cache lifetime for contexts without their
	// own override. Default cache.DefaultTTL.
	CacheTTL time.Duration

	// HistoryCapacity is the per-context execution history depth.
	// Default DefaultHistoryCapacity.
	HistoryCapacity int
}

// DefaultServiceConfig returns production defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		ExecuteTimeout:  DefaultExecuteTimeout,
		CacheTTL:        cache.DefaultTTL,
		HistoryCapacity: DefaultHistoryCapacity,
	}
}

// Service is the execution coordinator.
//
// Safe for concurrent use; per-request state stays on the stack.
type Service struct {
	config     ServiceConfig
	datasets   store.DatasetStore
	contexts   store.ContextRepository
	validator  *validator.Validator
	graphs     *relgraph.Cache
	results    *cache.ResultCache
	recorder   *history.Recorder
	translator translator.Translator
	logger     *slog.Logger
}

// NewService wires the coordinator.
//
// Inputs:
//
//	cfg - Service configuration; zero fields take defaults.
//	datasets - Dataset store collaborator. Must not be nil.
//	contexts - Context repository collaborator. Must not be nil.
//	results - Result cache. Must not be nil; use cache.OpenInMemory for
//	          ephemeral runs.
//
// Outputs:
//
//	*Service - Ready-to-use coordinator.
func NewService(cfg ServiceConfig, datasets store.DatasetStore, contexts store.ContextRepository, results *cache.ResultCache) *Service {
	if cfg.ExecuteTimeout <= 0 {
		cfg.ExecuteTimeout = DefaultExecuteTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = cache.DefaultTTL
	}
	return &Service{
		config:    cfg,
		datasets:  datasets,
		contexts:  contexts,
		validator: validator.New(datasets),
		graphs:    relgraph.NewCache(),
		results:   results,
		recorder:  history.NewRecorder(cfg.HistoryCapacity),
		logger:    slog.Default(),
	}
}

// WithTranslator attaches a natural-language translator for Ask.
func (s *Service) WithTranslator(t translator.Translator) *Service {
	s.translator = t
	return s
}

// WithLogger replaces the default logger.
func (s *Service) WithLogger(logger *slog.Logger) *Service {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// =============================================================================
// Document lifecycle
// =============================================================================

// ValidateDocument parses and validates document text without persisting.
//
// Outputs:
//
//	*contextdoc.ContextDocument - The parsed document (nil on parse error).
//	contextdoc.ValidationResult - All findings from the four passes.
//	error - Parse errors only; validation findings are data, not errors.
func (s *Service) ValidateDocument(ctx context.Context, userID, text string) (*contextdoc.ContextDocument, contextdoc.ValidationResult, error) {
	doc, err := parser.Parse(text)
	if err != nil {
		return nil, contextdoc.ValidationResult{}, err
	}
	result := s.validator.Validate(ctx, doc, userID)
	return doc, result, nil
}

// SaveContext parses, validates and persists a document version.
//
// Description:
//
//	A blocking validation result does not prevent saving: the draft is
//	stored together with its findings so the author can iterate. It only
//	prevents activation. New contexts get a generated id; new versions of
//	an existing context keep theirs.
func (s *Service) SaveContext(ctx context.Context, userID, contextID, text string) (*contextdoc.ContextDocument, contextdoc.ValidationResult, error) {
	doc, result, err := s.ValidateDocument(ctx, userID, text)
	if err != nil {
		return nil, contextdoc.ValidationResult{}, err
	}
	if contextID == "" {
		contextID = uuid.NewString()
	}
	doc.ID = contextID
	doc.CreatedAt = time.Now().UTC()

	if err := s.contexts.Save(ctx, doc, result); err != nil {
		return nil, contextdoc.ValidationResult{}, err
	}
	s.logger.Info("context saved",
		"context_id", doc.ID,
		"version", doc.Version,
		"validation", result.Status)
	return doc, result, nil
}

// ActivateContext promotes a stored version to active.
// Fails with store.ErrValidationBlocked when its validation is failed.
func (s *Service) ActivateContext(ctx context.Context, contextID, version string) error {
	if err := s.contexts.Activate(ctx, contextID, version); err != nil {
		return err
	}
	s.logger.Info("context activated", "context_id", contextID, "version", version)
	return nil
}

// History returns the recorded executions for a context, oldest first.
func (s *Service) History(contextID string) []contextdoc.ExecutionRecord {
	return s.recorder.For(contextID)
}

// =============================================================================
// Query path
// =============================================================================

// Explain compiles a query without executing it.
func (s *Service) Explain(ctx context.Context, userID, contextID string, req contextdoc.QueryRequest) (*contextdoc.CompiledPlan, error) {
	doc, err := s.loadValidated(ctx, userID, contextID)
	if err != nil {
		return nil, err
	}
	return s.compile(ctx, userID, doc, req)
}

// Execute runs a query end to end.
//
// Description:
//
//	Sequence: load context (re-validating a stale validation), resolve
//	the join path, compile, then either serve from the result cache or
//	execute against the dataset store under the configured timeout,
//	format rows per metric display format, cache the outcome and record
//	history. A timeout returns *ExecutionTimeout and caches nothing; a
//	store failure returns *ExecutionError and caches nothing.
//
// Inputs:
//
//	ctx - Request context; cancellation is honored at every blocking point.
//	userID - The caller; dataset visibility is checked against it.
//	contextID - The context to query.
//	req - The query request.
//	opts - Cache and timeout options; see DefaultExecuteOptions.
//
// Outputs:
//
//	*ExecuteResult - Plan, rows, cached flag and latency.
//	error - Typed per failure mode; never a silent empty result.
func (s *Service) Execute(ctx context.Context, userID, contextID string, req contextdoc.QueryRequest, opts ExecuteOptions) (*ExecuteResult, error) {
	started := time.Now()

	doc, err := s.loadValidated(ctx, userID, contextID)
	if err != nil {
		return nil, err
	}
	plan, err := s.compile(ctx, userID, doc, req)
	if err != nil {
		return nil, err
	}

	if opts.UseCache {
		entry, hit, err := s.results.Get(plan.CacheKey)
		if err != nil {
			s.logger.Warn("result cache read failed", "error", err)
		} else if hit {
			metricCacheHits.Inc()
			latency := time.Since(started)
			metricExecuteLatency.Observe(latency.Seconds())
			s.record(doc, plan, len(entry.Rows), latency, true)
			return &ExecuteResult{
				Plan:      plan,
				Rows:      entry.Rows,
				Cached:    true,
				LatencyMS: latency.Milliseconds(),
			}, nil
		}
		metricCacheMisses.Inc()
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = s.config.ExecuteTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rows, err := s.datasets.Execute(execCtx, plan.SQL, req.Parameters)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			metricExecutions.WithLabelValues("timeout").Inc()
			return nil, &ExecutionTimeout{Timeout: timeout}
		}
		metricExecutions.WithLabelValues("error").Inc()
		return nil, &ExecutionError{Err: err}
	}
	metricExecutions.WithLabelValues("ok").Inc()

	rows = formatRows(rows, doc, plan.AppliedMetrics)

	if opts.UseCache {
		if err := s.results.Put(plan.CacheKey, rows, s.ttlFor(doc)); err != nil {
			// Cache storage failure degrades performance, not correctness.
			s.logger.Warn("result cache write failed", "error", err)
		}
	}

	latency := time.Since(started)
	metricExecuteLatency.Observe(latency.Seconds())
	s.record(doc, plan, len(rows), latency, false)
	s.logger.Info("query executed",
		"context_id", doc.ID,
		"rows", len(rows),
		"latency_ms", latency.Milliseconds(),
		"cached", false)

	return &ExecuteResult{
		Plan:      plan,
		Rows:      rows,
		Cached:    false,
		LatencyMS: latency.Milliseconds(),
	}, nil
}

// Ask translates a free-text question and executes the resulting query.
func (s *Service) Ask(ctx context.Context, userID, contextID, question string) (contextdoc.QueryRequest, *ExecuteResult, error) {
	if s.translator == nil {
		return contextdoc.QueryRequest{}, nil, ErrNoTranslator
	}
	if question == "" {
		return contextdoc.QueryRequest{}, nil, ErrEmptyQuestion
	}
	doc, err := s.loadValidated(ctx, userID, contextID)
	if err != nil {
		return contextdoc.QueryRequest{}, nil, err
	}
	req, err := s.translator.Translate(ctx, doc, question)
	if err != nil {
		return contextdoc.QueryRequest{}, nil, err
	}
	result, err := s.Execute(ctx, userID, contextID, *req, DefaultExecuteOptions())
	if err != nil {
		return *req, nil, err
	}
	return *req, result, nil
}

// =============================================================================
// Internals
// =============================================================================

// loadValidated fetches the context and ensures its validation is current
// and not failed. A version saved without a validation result (or one
// whose fingerprint no longer matches its stored findings) is re-validated
// here rather than trusted.
func (s *Service) loadValidated(ctx context.Context, userID, contextID string) (*contextdoc.ContextDocument, error) {
	sc, err := s.contexts.Get(ctx, contextID)
	if err != nil {
		return nil, err
	}
	result := sc.Validation
	if result.Status == "" || result.Fingerprint != sc.Document.Fingerprint {
		result = s.validator.Validate(ctx, sc.Document, userID)
		if err := s.contexts.Save(ctx, sc.Document, result); err != nil {
			s.logger.Warn("persisting re-validation failed", "context_id", contextID, "error", err)
		}
	}
	if result.Blocking() {
		return nil, ErrContextInvalid
	}
	return sc.Document, nil
}

// compile resolves the join path and compiles the plan.
func (s *Service) compile(ctx context.Context, userID string, doc *contextdoc.ContextDocument, req contextdoc.QueryRequest) (*contextdoc.CompiledPlan, error) {
	graph := s.graphFor(ctx, userID, doc)
	path, err := graph.FindJoinPath(s.requiredDatasets(doc, req))
	if err != nil {
		return nil, err
	}
	return compiler.Compile(req, doc, path)
}

// graphFor returns the cached relationship graph, building it with
// row-estimate weights on first use. Estimate lookups are best-effort:
// a failed lookup leaves the default edge weight in place.
func (s *Service) graphFor(ctx context.Context, userID string, doc *contextdoc.ContextDocument) *relgraph.Graph {
	if s.graphs.Contains(doc.Fingerprint) {
		return s.graphs.For(doc)
	}
	estimates := make(map[string]int64, len(doc.Datasets))
	for _, ds := range doc.Datasets {
		schema, err := s.datasets.Lookup(ctx, ds.ExternalID(), userID)
		if err == nil && schema.RowEstimate > 0 {
			estimates[ds.LocalID] = schema.RowEstimate
		}
	}
	return s.graphs.For(doc, relgraph.WithRowEstimates(estimates))
}

// requiredDatasets collects every local id the query touches: explicit
// targets, projections, metric expressions, named filter conditions,
// grouping and sorting terms, and the mandatory error-severity rules.
// Order follows document declaration order for determinism.
func (s *Service) requiredDatasets(doc *contextdoc.ContextDocument, req contextdoc.QueryRequest) []string {
	needed := make(map[string]bool)
	addRefs := func(expr string) {
		for _, ref := range contextdoc.ExtractRefs(expr) {
			needed[ref.Dataset] = true
		}
	}

	for _, id := range req.Datasets {
		needed[id] = true
	}
	for _, f := range req.Fields {
		addRefs(f)
	}
	for _, name := range req.Metrics {
		if m, ok := doc.Metric(name); ok {
			addRefs(m.Expression)
		}
	}
	for _, name := range req.Filters {
		if f, ok := doc.Filter(name); ok {
			addRefs(f.Condition)
		}
	}
	for _, cond := range req.Conditions {
		addRefs(cond)
	}
	for _, g := range req.GroupBy {
		addRefs(g)
	}
	for _, sk := range req.Sort {
		addRefs(sk.Field)
	}
	for _, rule := range doc.Rules {
		if rule.Severity == contextdoc.SeverityError {
			addRefs(rule.Condition)
		}
	}

	var ordered []string
	for _, id := range doc.LocalIDs() {
		if needed[id] {
			ordered = append(ordered, id)
		}
	}
	// Requested ids not declared in the document still surface, so the
	// resolver can report them as unknown.
	for _, id := range req.Datasets {
		if _, ok := doc.Dataset(id); !ok {
			ordered = append(ordered, id)
		}
	}
	return ordered
}

// ttlFor picks the context's cache TTL override or the service default.
func (s *Service) ttlFor(doc *contextdoc.ContextDocument) time.Duration {
	if doc.CacheTTLSeconds > 0 {
		return time.Duration(doc.CacheTTLSeconds) * time.Second
	}
	return s.config.CacheTTL
}

// record appends one execution history entry.
func (s *Service) record(doc *contextdoc.ContextDocument, plan *contextdoc.CompiledPlan, rowCount int, latency time.Duration, cached bool) {
	s.recorder.Append(contextdoc.ExecutionRecord{
		ContextID: doc.ID,
		CacheKey:  plan.CacheKey,
		SQL:       plan.SQL,
		RowCount:  rowCount,
		LatencyMS: latency.Milliseconds(),
		Cached:    cached,
		At:        time.Now().UTC(),
	})
}
