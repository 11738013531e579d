// Package pipeline implements the fixed ingestion sequence every webhook
// delivery passes through:
//
//	verify signature -> suppress replays -> check allowlist -> rate limit
//	-> parse -> execute
//
// Order is part of the contract. A delivery failing a gate never reaches the
// gates after it, so an invalid signature leaves no trace beyond its
// AUTH_FAIL audit event, and a replayed delivery is rejected before it can
// consume rate-limit budget.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-task-assistant/internal/availability"
	"github.com/tbourn/go-task-assistant/internal/command"
	"github.com/tbourn/go-task-assistant/internal/domain"
	"github.com/tbourn/go-task-assistant/internal/ratelimit"
	"github.com/tbourn/go-task-assistant/internal/repo"
	"github.com/tbourn/go-task-assistant/internal/services"
	"github.com/tbourn/go-task-assistant/internal/webhook"
)

// Status classifies the terminal outcome of one delivery.
type Status int

const (
	// StatusOK means the delivery was accepted; Reply carries the text to
	// return to the relay. Rejected-but-well-formed commands (parse and
	// domain failures) are StatusOK too: the sender gets the explanation.
	StatusOK Status = iota
	// StatusAuthFailure means the signature or the allowlist check failed.
	StatusAuthFailure
	// StatusReplay means the delivery ID was seen before.
	StatusReplay
	// StatusRateLimited means the sender exceeded their window budget.
	StatusRateLimited
	// StatusInternalError means a gate failed for an infrastructure reason.
	StatusInternalError
)

// Pipeline stage names, recorded in outcomes and metrics.
const (
	StageVerify    = "verify"
	StageDedup     = "dedup"
	StageAuthorize = "authorize"
	StageRateLimit = "rate_limit"
	StageParse     = "parse"
	StageExecute   = "execute"
)

// Delivery is one inbound webhook request after transport decoding. RawBody
// must be the exact bytes the relay signed; any reformatting breaks
// verification.
type Delivery struct {
	RawBody    []byte
	Signature  string
	DeliveryID string
	Sender     string
	Body       string
	ReceivedAt time.Time
}

// Outcome is the terminal result of processing one delivery. Stage names the
// gate that decided it; Reason is the stable rejection code, empty on
// success.
type Outcome struct {
	Status Status
	Reply  string
	Stage  string
	Reason string
}

// BusySource provides busy calendar intervals for advisory enrichment.
// *calendar.Client satisfies it; nil disables enrichment.
type BusySource interface {
	BusyBlocks(ctx context.Context, min, max time.Time) ([]availability.Block, error)
}

// Pipeline wires the gates together. All fields except Advisor and Calendar
// are required.
type Pipeline struct {
	DB       *gorm.DB
	Secret   []byte
	Allowed  func(sender string) bool
	Limiter  *ratelimit.Limiter
	Executor *services.Executor

	// Advisory enrichment, both optional.
	Advisor  services.Advisor
	Calendar BusySource
	Windows  availability.Windows
	Horizon  time.Duration
}

var outcomes = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pipeline_outcomes_total",
		Help: "Terminal pipeline outcomes by stage and reason.",
	},
	[]string{"stage", "reason"},
)

func init() {
	prometheus.MustRegister(outcomes)
}

// Process runs d through every gate in order and returns the terminal
// outcome. It never panics on malformed input; the worst well-formed case is
// a rejection outcome.
func (p *Pipeline) Process(ctx context.Context, d Delivery) Outcome {
	tr := otel.Tracer("pipeline")
	ctx, span := tr.Start(ctx, "Process",
		trace.WithAttributes(
			attribute.String("delivery_id", d.DeliveryID),
			attribute.String("sender", d.Sender),
		),
	)
	defer span.End()

	// Gate 1: authenticity. Nothing below runs for an unsigned request.
	if err := webhook.Verify(p.Secret, d.RawBody, d.Signature); err != nil {
		p.auditGate(ctx, d.Sender, domain.EventAuthFail, map[string]any{
			"delivery_id": d.DeliveryID,
			"reason":      "bad_signature",
		})
		return p.done(StatusAuthFailure, StageVerify, "bad_signature", "")
	}

	// Gate 2: replay suppression. The dedup insert, the immutable inbound
	// copy, and the MESSAGE_RECEIVED event commit atomically, so a delivery
	// is either fully recorded or not recorded at all. Concurrent duplicates
	// race on the primary key; exactly one wins.
	err := p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.InsertDedup(tx, d.DeliveryID, d.ReceivedAt); err != nil {
			return err
		}
		if err := repo.InsertInbound(tx, d.DeliveryID, d.Sender, d.Body, d.ReceivedAt); err != nil {
			return err
		}
		_, err := repo.AppendAudit(tx, d.Sender, domain.EventMessageReceived, map[string]any{
			"delivery_id": d.DeliveryID,
			"body":        d.Body,
		})
		return err
	})
	if errors.Is(err, repo.ErrDuplicate) {
		p.auditGate(ctx, d.Sender, domain.EventReplayRejected, map[string]any{
			"delivery_id": d.DeliveryID,
		})
		return p.done(StatusReplay, StageDedup, "replay", "")
	}
	if err != nil {
		return p.fail(StageDedup, err)
	}

	// Gate 3: allowlist. Runs after dedup so a replayed delivery from a
	// removed sender still reports as a replay, not as new traffic.
	if !p.Allowed(d.Sender) {
		p.auditGate(ctx, d.Sender, domain.EventAuthFail, map[string]any{
			"delivery_id": d.DeliveryID,
			"reason":      "sender_not_allowed",
		})
		return p.done(StatusAuthFailure, StageAuthorize, "sender_not_allowed", "")
	}

	// Gate 4: per-sender window.
	if err := p.Limiter.Allow(ctx, d.Sender, d.ReceivedAt); err != nil {
		if errors.Is(err, ratelimit.ErrRateLimited) {
			p.auditGate(ctx, d.Sender, domain.EventRateLimited, map[string]any{
				"delivery_id": d.DeliveryID,
			})
			return p.done(StatusRateLimited, StageRateLimit, "rate_limited", "")
		}
		return p.fail(StageRateLimit, err)
	}

	// Gate 5: grammar. Parse failures are user-visible, not transport errors.
	cmd, err := command.Parse(d.Body)
	if err != nil {
		var perr *command.ParseError
		if errors.As(err, &perr) {
			p.auditGate(ctx, d.Sender, domain.EventCommandRejected, map[string]any{
				"delivery_id": d.DeliveryID,
				"reason":      perr.Reason,
			})
			msg := perr.Message
			// not_a_command and unknown_command messages already carry the help.
			if !strings.Contains(msg, command.HelpText) {
				msg += "\n\n" + command.HelpText
			}
			return p.done(StatusOK, StageParse, perr.Reason, msg)
		}
		return p.fail(StageParse, err)
	}

	// Gate 6: execution.
	var reply string
	if _, ok := cmd.(command.Suggest); ok {
		reply, err = p.suggest(ctx, d.Sender)
	} else {
		reply, err = p.Executor.Execute(ctx, d.Sender, cmd)
	}
	if err != nil {
		if reason := services.Reason(err); reason != "" {
			p.auditGate(ctx, d.Sender, domain.EventCommandRejected, map[string]any{
				"delivery_id": d.DeliveryID,
				"cmd":         cmd.Name(),
				"reason":      reason,
			})
			return p.done(StatusOK, StageExecute, reason, rejectionReply(err))
		}
		if errors.Is(err, services.ErrAdvisoryDisabled) {
			p.auditGate(ctx, d.Sender, domain.EventCommandRejected, map[string]any{
				"delivery_id": d.DeliveryID,
				"cmd":         cmd.Name(),
				"reason":      "advisory_disabled",
			})
			return p.done(StatusOK, StageExecute, "advisory_disabled",
				"Suggestions are not enabled on this server.")
		}
		return p.fail(StageExecute, err)
	}
	return p.done(StatusOK, StageExecute, "", reply)
}

// suggest runs the advisory path, enriching the snapshot with free time
// blocks when a calendar is configured. Calendar failure degrades to a
// suggestion without availability context rather than failing the command.
func (p *Pipeline) suggest(ctx context.Context, sender string) (string, error) {
	var blocks []string
	if p.Calendar != nil {
		now := time.Now().UTC()
		horizon := p.Horizon
		if horizon <= 0 {
			horizon = 48 * time.Hour
		}
		busy, err := p.Calendar.BusyBlocks(ctx, now, now.Add(horizon))
		if err != nil {
			log.Warn().Err(err).Msg("calendar freebusy lookup failed; suggesting without availability")
		} else {
			free := availability.FreeBlocks(busy, now, now.Add(horizon), p.Windows)
			blocks = availability.FormatBlocks(free, p.Windows.Location)
		}
	}
	return services.RunSuggest(ctx, p.DB, p.Advisor, sender, blocks)
}

// rejectionReply maps a domain error to the text sent back to the sender.
func rejectionReply(err error) string {
	switch {
	case errors.Is(err, services.ErrNoActiveList):
		return "No active list. Pick one with /use <id> (see /lists)."
	case errors.Is(err, services.ErrNotFound):
		return "That list or item does not exist."
	case errors.Is(err, services.ErrNotOwner):
		return "Your active list is no longer available. Pick another with /use <id>."
	case errors.Is(err, services.ErrDuplicateName):
		return "You already have a list with that name."
	}
	return "Could not run that command."
}

// auditGate records a gating event outside any command transaction. A failed
// write is logged and swallowed: the gate decision stands regardless, and
// the delivery itself (if accepted) is already durable.
func (p *Pipeline) auditGate(ctx context.Context, sender, eventType string, meta map[string]any) {
	if _, err := repo.AppendAudit(p.DB.WithContext(ctx), sender, eventType, meta); err != nil {
		log.Warn().Err(err).Str("event_type", eventType).Msg("audit write failed")
	}
}

func (p *Pipeline) done(status Status, stage, reason, reply string) Outcome {
	label := reason
	if label == "" {
		label = "ok"
	}
	outcomes.WithLabelValues(stage, label).Inc()
	return Outcome{Status: status, Reply: reply, Stage: stage, Reason: reason}
}

func (p *Pipeline) fail(stage string, err error) Outcome {
	log.Error().Err(err).Str("stage", stage).Msg("pipeline stage failed")
	outcomes.WithLabelValues(stage, "internal_error").Inc()
	return Outcome{Status: StatusInternalError, Stage: stage, Reason: "internal_error"}
}
