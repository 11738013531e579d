// Package handlers provides the HTTP handler implementations.
//
// This file implements the single ingestion endpoint, POST /webhook. The
// relay delivers sender messages as an application/x-www-form-urlencoded
// body (Twilio webhook shape) signed with the shared secret. The handler is
// a thin transport adapter: it captures the exact signed bytes, decodes the
// three fields the pipeline needs, and maps the pipeline outcome to an HTTP
// status. All policy lives in the pipeline.
package handlers

import (
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-task-assistant/internal/pipeline"
	"github.com/tbourn/go-task-assistant/internal/utils"
	"github.com/tbourn/go-task-assistant/internal/webhook"
)

// Handler bundles the dependencies of all HTTP endpoints.
type Handler struct {
	Pipeline *pipeline.Pipeline
}

// New constructs the handler set.
func New(p *pipeline.Pipeline) *Handler {
	return &Handler{Pipeline: p}
}

// Webhook handles POST /webhook.
//
// The raw body is read before any form parsing: the signature covers the
// exact bytes on the wire, and ParseForm would consume and re-encode them.
// Outcome mapping:
//
//	accepted (incl. parse/domain rejections) -> 200 with the reply text
//	signature or allowlist failure           -> 403
//	replayed delivery ID                     -> 409
//	sender over budget                       -> 429
//	infrastructure failure                   -> 500
func (h *Handler) Webhook(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable request body")
		return
	}

	form, err := url.ParseQuery(string(raw))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "body must be form-encoded")
		return
	}

	deliveryID := form.Get("MessageSid")
	sender := utils.NormalizeSender(form.Get("From"))
	body := form.Get("Body")
	if deliveryID == "" || sender == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "MessageSid and From are required")
		return
	}

	out := h.Pipeline.Process(c.Request.Context(), pipeline.Delivery{
		RawBody:    raw,
		Signature:  c.GetHeader(webhook.SignatureHeader),
		DeliveryID: deliveryID,
		Sender:     sender,
		Body:       body,
		ReceivedAt: time.Now().UTC(),
	})

	switch out.Status {
	case pipeline.StatusOK:
		reply(c, out.Reply)
	case pipeline.StatusAuthFailure:
		fail(c, http.StatusForbidden, ErrCodeAuthFailed, "request not authorized")
	case pipeline.StatusReplay:
		fail(c, http.StatusConflict, ErrCodeReplayRejected, "delivery already processed")
	case pipeline.StatusRateLimited:
		c.Header("Retry-After", "60")
		fail(c, http.StatusTooManyRequests, ErrCodeRateLimited, "rate limit exceeded")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
	}
}
