// Package api is the HTTP transport for the recipe chat service: a thin
// JSON/SSE layer over the chat orchestrator plus the structured-recipe and
// image-generation endpoints.
//
// Routing uses Go 1.22 method-qualified ServeMux patterns. All /api/v1
// routes sit behind a shared middleware stack (outermost first):
//
//	Recovery -> RequestID -> Logging -> CORS -> RateLimit -> Routes
//
// Health probes are registered outside the stack so orchestration checks
// are never rate limited or logged per request.
//
// Error contract: {"error": {"code", "message"}} with a stable machine code.
// Unknown sessions and unfinalizable sessions both surface as 404.
package api
