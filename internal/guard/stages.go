package guard

import (
	"context"
	"log/slog"
	"time"

	"github.com/Inovico-app/inovy-sub002/internal/audit"
	"github.com/Inovico-app/inovy-sub002/internal/pii"
)

// SafeRefusal replaces model output that fails output validation.
const SafeRefusal = "I'm sorry, but I can't share that response. Please rephrase your question or ask something else."

// inputModeration sends the latest user message to the moderation
// oracle. It fails open: an unreachable or missing oracle is logged
// and the request proceeds.
type inputModeration struct {
	passthrough
	classifier Classifier
	logger     *slog.Logger
}

func (*inputModeration) Stage() Stage { return StageInputModeration }

func (s *inputModeration) BeforeCall(ctx context.Context, call *Call) error {
	text := call.LatestUserText()
	if text == "" {
		return nil
	}
	if s.classifier == nil {
		s.logger.Warn("guard: no moderation classifier configured, input check skipped")
		return nil
	}

	res, err := s.classifier.Classify(ctx, text)
	if err != nil {
		s.logger.Warn("guard: input moderation unavailable, failing open", "error", err)
		return nil
	}
	if res.Flagged {
		s.logger.Info("guard: input flagged by moderation", "categories", res.Categories)
		return newViolation(KindModeration, "input flagged by moderation", map[string]any{
			"categories": res.Categories,
		})
	}
	return nil
}

// piiInput detects personal data in the latest user message and either
// redacts it in place or vetoes the request.
type piiInput struct {
	passthrough
	detector Detector
	logger   *slog.Logger
}

func (*piiInput) Stage() Stage { return StagePIIInput }

func (s *piiInput) BeforeCall(_ context.Context, call *Call) error {
	text := call.LatestUserText()
	dets := s.detector.Detect(text, call.Config.PII.MinConfidence)
	if len(dets) == 0 {
		return nil
	}

	types := pii.Types(dets)
	call.InputPII = types
	s.logger.Info("guard: PII detected in input",
		"types", types,
		"count", len(dets),
		"mode", call.Config.PII.Mode,
	)

	if call.Config.PII.Mode == PIIModeBlock {
		return newViolation(KindPII, "input contains personal data", map[string]any{
			"types": types,
		})
	}
	call.setLatestUserText(s.detector.Redact(text, dets))
	return nil
}

// injectionGuard rejects prompt-injection attempts. Deterministic and
// always enforced.
type injectionGuard struct {
	passthrough
	logger *slog.Logger
}

func (*injectionGuard) Stage() Stage { return StageInjection }

func (s *injectionGuard) BeforeCall(_ context.Context, call *Call) error {
	name, ok := firstMatch(injectionFamilies, call.LatestUserText())
	if !ok {
		return nil
	}
	s.logger.Warn("guard: prompt injection blocked", "family", name)
	return newViolation(KindInjection, "input matches injection pattern family "+name, map[string]any{
		"family": name,
	})
}

// topicGuard rejects disallowed topics. Deterministic and always enforced.
type topicGuard struct {
	passthrough
	logger *slog.Logger
}

func (*topicGuard) Stage() Stage { return StageTopic }

func (s *topicGuard) BeforeCall(_ context.Context, call *Call) error {
	name, ok := firstMatch(topicFamilies, call.LatestUserText())
	if !ok {
		return nil
	}
	s.logger.Warn("guard: disallowed topic blocked", "family", name)
	return newViolation(KindTopic, "input matches disallowed topic "+name, map[string]any{
		"family": name,
	})
}

// piiOutput redacts personal data from generated text. It never blocks.
type piiOutput struct {
	passthrough
	detector Detector
	logger   *slog.Logger
}

func (*piiOutput) Stage() Stage { return StagePIIOutput }

func (s *piiOutput) redact(call *Call, text string) string {
	dets := s.detector.Detect(text, call.Config.PII.MinConfidence)
	if len(dets) == 0 {
		return text
	}
	s.logger.Info("guard: PII redacted from output", "types", pii.Types(dets), "count", len(dets))
	return s.detector.Redact(text, dets)
}

func (s *piiOutput) AfterCall(_ context.Context, call *Call, resp *Response) error {
	resp.Text = s.redact(call, resp.Text)
	return nil
}

func (s *piiOutput) AfterBlock(_ context.Context, call *Call, block *Block) error {
	block.Text = s.redact(call, block.Text)
	return nil
}

// outputValidation runs generated text through the moderation oracle
// and swaps flagged text for SafeRefusal. Fails open.
type outputValidation struct {
	passthrough
	classifier Classifier
	logger     *slog.Logger
}

func (*outputValidation) Stage() Stage { return StageOutputValidation }

func (s *outputValidation) flagged(ctx context.Context, text string) bool {
	if s.classifier == nil || text == "" {
		return false
	}
	res, err := s.classifier.Classify(ctx, text)
	if err != nil {
		s.logger.Warn("guard: output moderation unavailable, failing open", "error", err)
		return false
	}
	if res.Flagged {
		s.logger.Warn("guard: output replaced by safe refusal", "categories", res.Categories)
	}
	return res.Flagged
}

func (s *outputValidation) AfterCall(ctx context.Context, _ *Call, resp *Response) error {
	if s.flagged(ctx, resp.Text) {
		resp.Text = SafeRefusal
		resp.Moderated = true
	}
	return nil
}

func (s *outputValidation) AfterBlock(ctx context.Context, _ *Call, block *Block) error {
	if s.flagged(ctx, block.Text) {
		block.Text = SafeRefusal
		block.Moderated = true
	}
	return nil
}

// auditStage records each invocation in a detached task. Failures are
// logged and discarded.
type auditStage struct {
	passthrough
	store      audit.Store
	background *Detached
	timeout    time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

func (*auditStage) Stage() Stage { return StageAudit }

func (s *auditStage) AfterCall(ctx context.Context, call *Call, resp *Response) error {
	s.record(ctx, call, s.entry(call, resp))
	return nil
}

func (s *auditStage) AfterStream(ctx context.Context, call *Call, resp *Response) error {
	s.record(ctx, call, s.entry(call, resp))
	return nil
}

// recordBlocked audits a request vetoed before the model call.
func (s *auditStage) recordBlocked(ctx context.Context, call *Call, v *Violation) {
	e := s.entry(call, &Response{})
	e.Outcome = audit.OutcomeBlocked
	e.Violation = string(v.Kind)
	s.record(ctx, call, e)
}

// recordFailed audits a call whose model invocation or output stages
// returned an error.
func (s *auditStage) recordFailed(ctx context.Context, call *Call) {
	e := s.entry(call, &Response{})
	e.Outcome = audit.OutcomeFailed
	s.record(ctx, call, e)
}

func (s *auditStage) entry(call *Call, resp *Response) audit.Entry {
	outcome := audit.OutcomeCompleted
	switch {
	case resp.Moderated:
		outcome = audit.OutcomeModerated
	case resp.Aborted:
		outcome = audit.OutcomeAborted
	}
	now := s.now()
	return audit.Entry{
		ID:               audit.NewID(),
		Timestamp:        now,
		OrganizationID:   call.Config.OrganizationID,
		UserID:           call.Config.UserID,
		ConversationID:   call.Config.ConversationID,
		ProjectID:        call.Config.ProjectID,
		ChatContext:      string(call.Config.ChatContext),
		RequestType:      call.Config.RequestType,
		Streaming:        call.Streaming,
		Outcome:          outcome,
		PIITypes:         call.InputPII,
		InputPreview:     audit.Preview(call.LatestUserText(), audit.PreviewLimit),
		OutputPreview:    audit.Preview(resp.Text, audit.PreviewLimit),
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		LatencyMS:        now.Sub(call.Started).Milliseconds(),
	}
}

func (s *auditStage) record(ctx context.Context, call *Call, e audit.Entry) {
	if s.store == nil || !call.Config.AuditEnabled() {
		return
	}
	detached := context.WithoutCancel(ctx)
	s.background.Go(func() {
		ctx, cancel := context.WithTimeout(detached, s.timeout)
		defer cancel()
		if err := s.store.Append(ctx, e); err != nil {
			s.logger.Warn("guard: audit write failed", "error", err, "entry", e.ID)
		}
	})
}
