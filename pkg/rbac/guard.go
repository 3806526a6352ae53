package rbac

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/stockroom/pkg/audit"
	"github.com/platinummonkey/stockroom/pkg/models"
	"github.com/platinummonkey/stockroom/pkg/observability"
)

// AccessRequest describes an action an actor wants to perform
type AccessRequest struct {
	Actor          *models.User
	Action         Action
	Resource       models.ResourceType
	OrganizationID string
	ResourceID     string
}

// Decision is the outcome of an access check. A denial is a value carrying
// its reason; an allow carries the Grant for the repository.
type Decision struct {
	Allowed bool
	Reason  Reason
	Grant   *Grant

	request AccessRequest
}

// Err converts a denial into an *AccessError. It returns nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &AccessError{
		Reason:         d.Reason,
		ActorUserID:    actorID(d.request.Actor),
		Action:         d.request.Action,
		Resource:       d.request.Resource,
		OrganizationID: d.request.OrganizationID,
		ResourceID:     d.request.ResourceID,
	}
}

// Guard decides every access request and audits the decision
type Guard struct {
	policies *PolicyStore
	recorder audit.Recorder
	logger   logrus.FieldLogger
	metrics  *observability.Metrics
	now      func() time.Time
}

// GuardOption configures a Guard
type GuardOption func(*Guard)

// WithLogger sets the guard logger
func WithLogger(logger logrus.FieldLogger) GuardOption {
	return func(g *Guard) { g.logger = logger }
}

// WithMetrics enables decision counters
func WithMetrics(metrics *observability.Metrics) GuardOption {
	return func(g *Guard) { g.metrics = metrics }
}

// WithClock overrides the audit timestamp source
func WithClock(now func() time.Time) GuardOption {
	return func(g *Guard) { g.now = now }
}

// NewGuard creates a guard over a policy store and audit recorder
func NewGuard(policies *PolicyStore, recorder audit.Recorder, opts ...GuardOption) *Guard {
	g := &Guard{
		policies: policies,
		recorder: recorder,
		logger:   observability.NopLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authorize checks tenancy, then role, then permission, and records the
// decision before returning it
func (g *Guard) Authorize(ctx context.Context, req AccessRequest) Decision {
	ctx, span := observability.Tracer().Start(ctx, "Guard.Authorize",
		trace.WithAttributes(
			attribute.String("actor.id", actorID(req.Actor)),
			attribute.String("access.action", string(req.Action)),
			attribute.String("access.resource", string(req.Resource)),
			attribute.String("organization.id", req.OrganizationID),
		),
	)
	defer span.End()

	decision := g.decide(req)

	span.SetAttributes(attribute.Bool("access.allowed", decision.Allowed))
	if !decision.Allowed {
		span.SetAttributes(attribute.String("access.reason", string(decision.Reason)))
	}

	g.record(ctx, decision)

	if g.metrics != nil {
		result := string(audit.DecisionAllowed)
		if !decision.Allowed {
			result = string(audit.DecisionDenied)
		}
		g.metrics.AccessDecisionsTotal.WithLabelValues(string(req.Resource), string(req.Action), result, string(decision.Reason)).Inc()
	}

	return decision
}

func (g *Guard) decide(req AccessRequest) Decision {
	deny := func(reason Reason) Decision {
		return Decision{Reason: reason, request: req}
	}

	if req.Actor == nil {
		return deny(ReasonUnknownRole)
	}

	if req.Actor.OrganizationID != req.OrganizationID {
		return deny(ReasonCrossTenantAccess)
	}

	allowed, err := g.policies.Allows(req.Actor.Role, Permission{Resource: req.Resource, Action: req.Action})
	if err != nil {
		return deny(ReasonUnknownRole)
	}
	if !allowed {
		return deny(ReasonActionNotPermitted)
	}

	return Decision{
		Allowed: true,
		request: req,
		Grant: &Grant{
			valid:          true,
			actorUserID:    req.Actor.ID,
			actorRole:      req.Actor.Role,
			action:         req.Action,
			resource:       req.Resource,
			organizationID: req.OrganizationID,
			resourceID:     req.ResourceID,
		},
	}
}

// record writes the audit entry. Failures are logged and never change the
// decision.
func (g *Guard) record(ctx context.Context, decision Decision) {
	req := decision.request
	record := audit.Record{
		ActorUserID:    actorID(req.Actor),
		Action:         string(req.Action),
		ResourceType:   req.Resource,
		ResourceID:     req.ResourceID,
		OrganizationID: req.OrganizationID,
		Decision:       audit.DecisionAllowed,
		Reason:         string(decision.Reason),
		Timestamp:      g.now(),
	}
	if req.Actor != nil {
		record.ActorName = req.Actor.Name
		record.ActorRole = req.Actor.Role
	}
	if !decision.Allowed {
		record.Decision = audit.DecisionDenied
	}

	if err := g.recorder.Record(ctx, record); err != nil {
		observability.UpdateLoggerWithTraceContext(ctx, g.logger).WithError(err).WithFields(logrus.Fields{
			"actor_user_id":   record.ActorUserID,
			"organization_id": record.OrganizationID,
			"decision":        record.Decision,
		}).Warn("Failed to record access decision")
	}
}

func actorID(actor *models.User) string {
	if actor == nil {
		return ""
	}
	return actor.ID
}
