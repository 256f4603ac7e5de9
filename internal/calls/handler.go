package calls

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"callscreen_backend/internal/carrier"
	"callscreen_backend/platform/httpkit"
	"callscreen_backend/platform/logger"
	"callscreen_backend/platform/validator"
)

// dialRequest is the client payload for placing a call.
type dialRequest struct {
	PhoneNumber string `json:"phoneNumber" validate:"required"`
	Strategy    string `json:"strategy" validate:"required"`
}

// callResponse is the wire representation of a call record.
type callResponse struct {
	ID            uuid.UUID      `json:"id"`
	PhoneNumber   string         `json:"phoneNumber"`
	Direction     string         `json:"direction"`
	CarrierCallID *string        `json:"carrierCallId,omitempty"`
	AmdStrategy   string         `json:"amdStrategy"`
	Status        string         `json:"status"`
	AmdResult     *string        `json:"amdResult,omitempty"`
	Confidence    *float64       `json:"confidence,omitempty"`
	Duration      *int           `json:"duration,omitempty"`
	AmdDurationMs *int           `json:"amdDetectionDurationMs,omitempty"`
	ErrorMessage  *string        `json:"errorMessage,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

func toCallResponse(call Call) callResponse {
	resp := callResponse{
		ID:            call.ID,
		PhoneNumber:   call.PhoneNumber,
		Direction:     call.Direction,
		CarrierCallID: call.CarrierCallID,
		AmdStrategy:   string(call.AmdStrategy),
		Status:        string(call.Status),
		Confidence:    call.Confidence,
		Duration:      call.Duration,
		AmdDurationMs: call.AmdDurationMs,
		ErrorMessage:  call.ErrorMessage,
		Metadata:      call.Metadata,
		CreatedAt:     call.CreatedAt,
		UpdatedAt:     call.UpdatedAt,
	}
	if call.AmdResult != nil {
		verdict := string(*call.AmdResult)
		resp.AmdResult = &verdict
	}
	return resp
}

// Handler exposes the call screening HTTP surface: the authenticated client
// API and the public carrier webhook endpoints.
type Handler struct {
	service    *Service
	query      *QueryService
	reconciler *Reconciler
	validate   *validator.Validator
	log        *logger.Logger
}

// NewHandler creates the calls HTTP handler.
func NewHandler(service *Service, query *QueryService, reconciler *Reconciler, validate *validator.Validator, log *logger.Logger) *Handler {
	return &Handler{service: service, query: query, reconciler: reconciler, validate: validate, log: log}
}

// Dial handles POST /calls/dial.
func (h *Handler) Dial(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}

	var req dialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "phoneNumber and strategy are required", nil)
		return
	}

	call, err := h.service.Dial(c.Request.Context(), id.UserID(), DialParams{
		PhoneNumber: req.PhoneNumber,
		Strategy:    req.Strategy,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, toCallResponse(call))
}

// GetStatus handles GET /calls/:id/status.
func (h *Handler) GetStatus(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	callID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid call id", nil)
		return
	}

	call, err := h.query.GetStatus(c.Request.Context(), id.UserID(), callID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toCallResponse(call))
}

// List handles GET /calls.
func (h *Handler) List(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}

	page := queryInt(c, "page", 1)
	pageSize := queryInt(c, "pageSize", defaultPageSize)

	result, err := h.query.ListHistory(c.Request.Context(), id.UserID(), page, pageSize)
	if httpkit.HandleError(c, err) {
		return
	}

	calls := make([]callResponse, 0, len(result.Calls))
	for _, call := range result.Calls {
		calls = append(calls, toCallResponse(call))
	}
	httpkit.OK(c, gin.H{
		"calls":    calls,
		"total":    result.Total,
		"page":     result.Page,
		"pageSize": result.PageSize,
	})
}

// Delete handles DELETE /calls/:id.
func (h *Handler) Delete(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	callID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid call id", nil)
		return
	}

	if err := h.query.Delete(c.Request.Context(), id.UserID(), callID); httpkit.HandleError(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}

// Aggregate handles GET /calls/aggregate.
func (h *Handler) Aggregate(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}

	stats, err := h.query.Aggregate(c.Request.Context(), id.UserID())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"strategies": stats})
}

// StatusWebhook handles POST /webhooks/calls/status and /webhooks/calls/amd.
// The carrier retries on anything but 200, and a retry cannot make a bad
// payload good, so every outcome acknowledges.
func (h *Handler) StatusWebhook(c *gin.Context) {
	callID, ok := webhookCallID(c)
	if !ok {
		h.log.Warn("status webhook without usable callId", "raw", c.Query("callId"))
		c.Status(http.StatusOK)
		return
	}

	wh, err := carrier.ParseStatusWebhook(c.Request)
	if err != nil {
		h.log.WithCallID(callID.String()).Warn("unparseable status webhook", "error", err)
		c.Status(http.StatusOK)
		return
	}

	applied, err := h.reconciler.ApplyStatusEvent(c.Request.Context(), callID, wh)
	if err != nil {
		h.log.WithCallID(callID.String()).Error("failed to apply status webhook", "error", err)
	}
	h.log.WebhookEvent("status", callID.String(), wh.CallSid, applied)
	c.Status(http.StatusOK)
}

// RecordingWebhook handles POST /webhooks/calls/recording.
func (h *Handler) RecordingWebhook(c *gin.Context) {
	callID, ok := webhookCallID(c)
	if !ok {
		h.log.Warn("recording webhook without usable callId", "raw", c.Query("callId"))
		c.Status(http.StatusOK)
		return
	}

	wh, err := carrier.ParseRecordingWebhook(c.Request)
	if err != nil {
		h.log.WithCallID(callID.String()).Warn("unparseable recording webhook", "error", err)
		c.Status(http.StatusOK)
		return
	}

	applied, err := h.reconciler.HandleRecordingEvent(c.Request.Context(), callID, wh)
	if err != nil {
		h.log.WithCallID(callID.String()).Error("failed to handle recording webhook", "error", err)
	}
	h.log.WebhookEvent("recording", callID.String(), wh.RecordingSid, applied)
	c.Status(http.StatusOK)
}

func webhookCallID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Query("callId"))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
