package approvalapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nhle/inbox-triage/internal/approval"
	"github.com/nhle/inbox-triage/internal/model"
	"github.com/nhle/inbox-triage/internal/store"
)

// Decider is the operator side of the approval workflow.
type Decider interface {
	List(ctx context.Context) ([]*model.ApprovalRequest, approval.Stats, error)
	Get(ctx context.Context, id string) (*model.ApprovalRequest, error)
	Approve(ctx context.Context, id string, channel model.DecisionChannel) (*model.ApprovalRequest, error)
	Reject(ctx context.Context, id, reason string, channel model.DecisionChannel) (*model.ApprovalRequest, error)
}

// EventLister reads the approval audit trail.
type EventLister interface {
	ListDecisionEvents(ctx context.Context, requestID string) ([]model.DecisionEvent, error)
}

// Handlers serves the approval endpoints.
type Handlers struct {
	decider Decider
	events  EventLister
}

// NewHandlers creates Handlers. events may be nil, in which case the
// audit endpoint answers 404.
func NewHandlers(d Decider, events EventLister) *Handlers {
	return &Handlers{decider: d, events: events}
}

type pendingResponse struct {
	Pending []store.Record `json:"pending"`
	Stats   approval.Stats `json:"stats"`
}

type decisionResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Request store.Record `json:"request"`
}

type decisionBody struct {
	RequestID string `json:"request_id"`
	BillID    string `json:"bill_id"`
	Reason    string `json:"reason"`
}

// ListPending handles GET /api/pending.
func (h *Handlers) ListPending(c *gin.Context) {
	pending, stats, err := h.decider.List(c.Request.Context())
	if err != nil {
		h.storeError(c, err)
		return
	}

	resp := pendingResponse{Pending: make([]store.Record, 0, len(pending)), Stats: stats}
	for _, r := range pending {
		resp.Pending = append(resp.Pending, store.RecordFrom(r))
	}
	c.JSON(http.StatusOK, resp)
}

// GetRequest handles GET /api/requests/:id.
func (h *Handlers) GetRequest(c *gin.Context) {
	req, err := h.decider.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, store.RecordFrom(req))
}

// Approve handles POST /api/approve/:id.
func (h *Handlers) Approve(c *gin.Context) {
	h.approve(c, c.Param("id"))
}

// ApproveBody handles POST /api/approve with the id in the JSON body.
func (h *Handlers) ApproveBody(c *gin.Context) {
	body, ok := bindDecision(c)
	if !ok {
		return
	}
	h.approve(c, body.id())
}

// Reject handles POST /api/reject/:id with an optional {reason}.
func (h *Handlers) Reject(c *gin.Context) {
	var body decisionBody
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
			return
		}
	}
	h.reject(c, c.Param("id"), body.Reason)
}

// RejectBody handles POST /api/reject with the id in the JSON body.
func (h *Handlers) RejectBody(c *gin.Context) {
	body, ok := bindDecision(c)
	if !ok {
		return
	}
	h.reject(c, body.id(), body.Reason)
}

// ListEvents handles GET /api/requests/:id/events.
func (h *Handlers) ListEvents(c *gin.Context) {
	if h.events == nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "audit log not configured")
		return
	}
	id := strings.ToUpper(strings.TrimSpace(c.Param("id")))
	events, err := h.events.ListDecisionEvents(c.Request.Context(), id)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "listing events failed")
		return
	}
	if events == nil {
		events = []model.DecisionEvent{}
	}
	c.JSON(http.StatusOK, gin.H{"request_id": id, "events": events})
}

func (h *Handlers) approve(c *gin.Context, id string) {
	req, err := h.decider.Approve(c.Request.Context(), id, model.ChannelHTTP)
	if err != nil {
		h.decisionError(c, err)
		return
	}
	c.JSON(http.StatusOK, decisionResponse{
		Success: true,
		Message: fmt.Sprintf("Email approved and sent to %s", req.FinalRecipient.Email),
		Request: store.RecordFrom(req),
	})
}

func (h *Handlers) reject(c *gin.Context, id, reason string) {
	req, err := h.decider.Reject(c.Request.Context(), id, reason, model.ChannelHTTP)
	if err != nil {
		h.decisionError(c, err)
		return
	}
	c.JSON(http.StatusOK, decisionResponse{
		Success: true,
		Message: "Email rejected",
		Request: store.RecordFrom(req),
	})
}

func (h *Handlers) decisionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, approval.ErrSendFailed):
		_ = c.Error(err)
		fail(c, http.StatusBadGateway, ErrCodeSendFailed, "delivering the approved email failed")
	case errors.Is(err, approval.ErrNotRecorded):
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeNotRecorded,
			"email sent but the approval was not recorded, do not retry")
	default:
		h.storeError(c, err)
	}
}

func (h *Handlers) storeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, approval.ErrNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "Request not found")
	case errors.Is(err, approval.ErrAlreadyProcessed):
		fail(c, http.StatusBadRequest, ErrCodeAlreadyProcessed, "Request already processed")
	default:
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "approval store unavailable")
	}
}

func bindDecision(c *gin.Context) (decisionBody, bool) {
	var body decisionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return body, false
	}
	if body.id() == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Missing bill_id or request_id")
		return body, false
	}
	return body, true
}

func (b decisionBody) id() string {
	if b.BillID != "" {
		return b.BillID
	}
	return b.RequestID
}
