package calls

import (
	"callscreen_backend/internal/carrier"
	"callscreen_backend/internal/detector"
	"callscreen_backend/internal/events"
	apphttp "callscreen_backend/internal/http"
	"callscreen_backend/platform/config"
	"callscreen_backend/platform/logger"
	"callscreen_backend/platform/validator"
)

// Module is the call screening bounded context implementing http.Module.
type Module struct {
	handler    *Handler
	reconciler *Reconciler
}

// NewModule wires the call screening services together. The dispatcher and
// deduper are passed in because the composition root owns their transports
// (asynq, redis); everything else is built here.
func NewModule(
	store Store,
	dialer carrier.Dialer,
	detectors *detector.Registry,
	dispatcher AnalysisDispatcher,
	dedup RecordingDeduper,
	cfg *config.Config,
	bus events.Bus,
	val *validator.Validator,
	log *logger.Logger,
) *Module {
	service := NewService(store, dialer, cfg, bus, log)
	query := NewQueryService(store, log)
	reconciler := NewReconciler(store, detectors, dispatcher, dedup, bus, log)
	handler := NewHandler(service, query, reconciler, val, log)

	return &Module{handler: handler, reconciler: reconciler}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "calls"
}

// Reconciler exposes the reconciliation engine for the task worker, which
// runs detection outside the HTTP request path.
func (m *Module) Reconciler() *Reconciler {
	return m.reconciler
}

// RegisterRoutes mounts the client API on the authenticated group and the
// carrier webhooks on the public group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	callsGroup := ctx.Protected.Group("/calls")
	callsGroup.POST("/dial", m.handler.Dial)
	callsGroup.GET("", m.handler.List)
	callsGroup.GET("/aggregate", m.handler.Aggregate)
	callsGroup.GET("/:id/status", m.handler.GetStatus)
	callsGroup.DELETE("/:id", m.handler.Delete)

	webhooks := ctx.V1.Group("/webhooks/calls")
	webhooks.POST("/status", m.handler.StatusWebhook)
	webhooks.POST("/amd", m.handler.StatusWebhook)
	webhooks.POST("/recording", m.handler.RecordingWebhook)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
