package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"logingate/config"
	"logingate/model"
)

// Assessor obtains a risk verdict for a client token.
type Assessor interface {
	Assess(ctx context.Context, token, expectedAction string) (model.Verdict, error)
}

var (
	ErrUpstreamHTTP = errors.New("assessment service returned an error status")
	ErrNetwork      = errors.New("assessment service unreachable")
	ErrDecode       = errors.New("assessment response malformed")
)

// AssessmentError wraps a failed assessment. Kind is one of ErrUpstreamHTTP,
// ErrNetwork or ErrDecode; Status is the upstream HTTP status when known.
type AssessmentError struct {
	Kind   error
	Status int
	Err    error
}

func (e *AssessmentError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%v (HTTP %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func (e *AssessmentError) Is(target error) bool {
	return target == e.Kind
}

func (e *AssessmentError) Unwrap() error {
	return e.Err
}

// NewAssessor picks the transport from cfg. When the service is not
// configured it returns the fail-open assessor only if
// cfg.AllowWhenUnconfigured is set, and an error otherwise.
func NewAssessor(ctx context.Context, cfg config.RecaptchaConfig, logger *slog.Logger) (Assessor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "recaptcha")

	if !cfg.Configured() {
		if !cfg.AllowWhenUnconfigured {
			return nil, errors.New("recaptcha: GOOGLE_CLOUD_PROJECT_ID and GOOGLE_API_KEY are not set and RECAPTCHA_ALLOW_UNCONFIGURED is false")
		}
		logger.Warn("recaptcha credentials not configured, risk gate is FAIL-OPEN")
		return &bypassAssessor{logger: logger}, nil
	}

	switch cfg.Transport {
	case "grpc":
		return NewEnterpriseAssessor(ctx, cfg, logger)
	default:
		return NewRESTAssessor(cfg, nil, logger), nil
	}
}

// bypassAssessor answers every request with a passing verdict.
type bypassAssessor struct {
	logger *slog.Logger
}

func (b *bypassAssessor) Assess(_ context.Context, _ string, expectedAction string) (model.Verdict, error) {
	b.logger.Warn("skipping recaptcha verification: credentials not configured")
	return model.Verdict{
		TokenValid: true,
		Action:     expectedAction,
		Score:      1.0,
		Bypassed:   true,
	}, nil
}
