// Package form holds the state of one report form: the draft, its validation
// verdict, and the lifecycle of a single analysis request.
package form

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"medagentx/report"
)

// GenericErrorMessage is shown when a failure carries no user-facing text.
const GenericErrorMessage = "Something went wrong."

// ErrSubmissionInFlight is returned when Submit is called while a previous
// submission has not settled. Duplicate submissions are rejected, never queued.
var ErrSubmissionInFlight = errors.New("a submission is already in progress")

// ValidationError is returned by Submit when the draft is rejected locally.
type ValidationError struct {
	Verdict report.Verdict
}

func (e *ValidationError) Error() string {
	return "invalid draft: " + string(e.Verdict.Reason)
}

// Analyzer performs the remote analysis of a report.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (report.AnalysisResult, error)
}

// userMessager is implemented by errors that carry server-supplied text.
type userMessager interface {
	UserMessage() string
}

// State is the request lifecycle state.
type State int

const (
	Idle State = iota
	Validating
	Submitting
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Validating:
		return "validating"
	case Submitting:
		return "submitting"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText lets State appear by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// View is a snapshot of the controller for rendering.
type View struct {
	Draft             string                 `json:"draft"`
	State             State                  `json:"state"`
	Loading           bool                   `json:"loading"`
	Verdict           report.Verdict         `json:"-"`
	ValidationMessage string                 `json:"validation,omitempty"`
	Result            *report.AnalysisResult `json:"result,omitempty"`
	Error             string                 `json:"error,omitempty"`
	CanSubmit         bool                   `json:"can_submit"`
}

// Controller owns one form's state. All methods are safe for concurrent use.
type Controller struct {
	validator *report.Validator
	analyzer  Analyzer
	logger    *zap.Logger

	mu          sync.Mutex
	draft       string
	verdict     report.Verdict
	showVerdict bool
	state       State
	result      *report.AnalysisResult
	errMsg      string
}

func NewController(validator *report.Validator, analyzer Analyzer, logger *zap.Logger) (*Controller, error) {
	if analyzer == nil {
		return nil, errors.New("analyzer required")
	}
	if validator == nil {
		validator = report.DefaultValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{validator: validator, analyzer: analyzer, logger: logger}, nil
}

// Edit replaces the draft. The draft is only revalidated while a rejection is on
// screen, so the user is not warned before their first attempt.
func (c *Controller) Edit(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft = text
	if !c.showVerdict {
		return
	}
	c.verdict = c.validator.Validate(text)
	if c.verdict.IsValid() {
		c.showVerdict = false
	}
}

// Submit validates the current draft and, if accepted, runs exactly one analysis.
// The analyzer is called without holding the lock so edits stay responsive.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	if c.state == Submitting {
		c.mu.Unlock()
		return ErrSubmissionInFlight
	}

	c.state = Validating
	verdict := c.validator.Validate(c.draft)
	if !verdict.IsValid() {
		c.verdict = verdict
		c.showVerdict = true
		c.state = Idle
		c.mu.Unlock()
		c.logger.Debug("draft rejected", zap.String("reason", string(verdict.Reason)))
		return &ValidationError{Verdict: verdict}
	}

	c.verdict = verdict
	c.showVerdict = false
	c.result = nil
	c.errMsg = ""
	c.state = Submitting
	draft := c.draft
	c.mu.Unlock()

	c.logger.Info("submitting report", zap.Int("chars", len(draft)))
	res, err := c.analyzer.Analyze(ctx, draft)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = Failed
		c.errMsg = errorMessage(err)
		c.logger.Warn("analysis failed", zap.Error(err))
		return err
	}
	c.result = &res
	c.state = Succeeded
	c.logger.Info("analysis complete")
	return nil
}

// View returns a snapshot of the current state.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{
		Draft:   c.draft,
		State:   c.state,
		Loading: c.state == Submitting,
		Error:   c.errMsg,
	}
	if c.showVerdict {
		v.Verdict = c.verdict
		v.ValidationMessage = c.verdict.Message()
	}
	if c.result != nil {
		res := *c.result
		v.Result = &res
	}
	v.CanSubmit = !v.Loading && !c.showVerdict && strings.TrimSpace(c.draft) != ""
	return v
}

func errorMessage(err error) string {
	var um userMessager
	if errors.As(err, &um) {
		if msg := um.UserMessage(); msg != "" {
			return msg
		}
	}
	return GenericErrorMessage
}
