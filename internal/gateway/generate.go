package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/Inovico-app/inovy-sub002/internal/guard"
	"github.com/Inovico-app/inovy-sub002/internal/orchestrator"
	"github.com/Inovico-app/inovy-sub002/internal/pool"
	"github.com/Inovico-app/inovy-sub002/internal/security"
)

// GenerateRequest is the body of POST /v1/generate and the opening frame
// of /v1/stream.
type GenerateRequest struct {
	Prompt string       `json:"prompt"`
	Config RequestScope `json:"config"`
}

// RequestScope identifies who a request is for. Guard policy is not part
// of it: unknown fields such as pii or audit are rejected on decode.
type RequestScope struct {
	OrganizationID string `json:"organizationId"`
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
	ProjectID      string `json:"projectId,omitempty"`
	RequestType    string `json:"requestType"`
}

// Policy is the server-side guard policy applied to every request.
type Policy struct {
	PII   guard.PIIConfig
	Audit guard.AuditConfig
}

// guardConfig combines the request scope with the server policy.
func (g *Gateway) guardConfig(s RequestScope) guard.Config {
	return guard.Config{
		OrganizationID: s.OrganizationID,
		UserID:         s.UserID,
		ConversationID: s.ConversationID,
		ProjectID:      s.ProjectID,
		ChatContext:    guard.ChatContextChat,
		RequestType:    s.RequestType,
		PII:            g.policy.PII,
		Audit:          g.policy.Audit,
	}
}

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error   string     `json:"error"`
	Kind    guard.Kind `json:"kind,omitempty"`
	Message string     `json:"message"`
}

var errMissingOrganization = errors.New("config.organizationId is required")

func (g *Gateway) decodeRequest(r io.Reader, req *GenerateRequest) error {
	if err := security.DecodeJSON(r, g.config.MaxBodyBytes, security.DefaultMaxJSONDepth, req); err != nil {
		return err
	}
	if req.Config.OrganizationID == "" {
		return errMissingOrganization
	}
	return nil
}

// admit applies the organization's request limit.
func (g *Gateway) admit(org string) error {
	if g.limiter == nil {
		return nil
	}
	return g.limiter.Allow(org)
}

func (g *Gateway) handleGenerate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		var req GenerateRequest
		err := g.decodeRequest(r.Body, &req)
		if err == nil {
			err = g.admit(req.Config.OrganizationID)
		}
		if err != nil {
			g.writeError(w, "generate", err, start)
			return
		}

		res, err := g.generator.Generate(r.Context(), req.Prompt, g.guardConfig(req.Config))
		if err != nil {
			g.writeError(w, "generate", err, start)
			return
		}

		g.recordUsage(req.Config.OrganizationID, res)
		g.metrics.observe("generate", outcomeOK, time.Since(start))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(res)
	}
}

func (g *Gateway) recordUsage(org string, res orchestrator.Result) {
	g.metrics.addUsage(res.Usage)
	if g.limiter != nil && res.Usage.TotalTokens > 0 {
		g.limiter.RecordTokens(org, res.Usage.TotalTokens)
	}
}

// classify maps an error to an HTTP status, a response body and a
// metrics outcome.
func classify(err error) (int, ErrorResponse, string) {
	if v, ok := guard.AsViolation(err); ok {
		return http.StatusUnprocessableEntity,
			ErrorResponse{Error: "guardrail_violation", Kind: v.Kind, Message: v.UserMessage()},
			outcomeViolation
	}
	switch {
	case errors.Is(err, security.ErrBodyTooLarge):
		return http.StatusRequestEntityTooLarge, ErrorResponse{Error: "body_too_large", Message: err.Error()}, outcomeBadRequest
	case errors.Is(err, orchestrator.ErrEmptyPrompt),
		errors.Is(err, security.ErrInvalidJSON),
		errors.Is(err, security.ErrJSONTooDeep),
		errors.Is(err, errMissingOrganization):
		return http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: err.Error()}, outcomeBadRequest
	case errors.Is(err, security.ErrRateLimited):
		return http.StatusTooManyRequests, ErrorResponse{Error: "rate_limited", Message: err.Error()}, outcomeRateLimited
	case errors.Is(err, pool.ErrPoolEmpty):
		return http.StatusServiceUnavailable, ErrorResponse{Error: "unavailable", Message: "no healthy upstream client"}, outcomeUpstream
	case errors.Is(err, context.Canceled):
		return 499, ErrorResponse{Error: "aborted", Message: "request cancelled"}, outcomeAborted
	default:
		return http.StatusBadGateway, ErrorResponse{Error: "upstream_failure", Message: "the model could not complete the request"}, outcomeUpstream
	}
}

func (g *Gateway) writeError(w http.ResponseWriter, endpoint string, err error, start time.Time) {
	status, body, outcome := classify(err)
	g.metrics.observe(endpoint, outcome, time.Since(start))
	if status >= http.StatusInternalServerError {
		g.logger.Error("gateway: generate failed", "endpoint", endpoint, "error", err)
	} else {
		g.logger.Debug("gateway: request rejected", "endpoint", endpoint, "status", status, "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
