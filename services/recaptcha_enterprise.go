package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	recaptcha "cloud.google.com/go/recaptchaenterprise/v2/apiv1"
	"cloud.google.com/go/recaptchaenterprise/v2/apiv1/recaptchaenterprisepb"
	gax "github.com/googleapis/gax-go/v2"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"logingate/config"
	"logingate/model"
)

// assessmentCreator is the subset of the SDK client used here.
type assessmentCreator interface {
	CreateAssessment(ctx context.Context, req *recaptchaenterprisepb.CreateAssessmentRequest, opts ...gax.CallOption) (*recaptchaenterprisepb.Assessment, error)
	Close() error
}

// EnterpriseAssessor calls the assessments API through the Go SDK (gRPC).
type EnterpriseAssessor struct {
	client    assessmentCreator
	projectID string
	siteKey   string
	timeout   time.Duration
	logger    *slog.Logger
}

func NewEnterpriseAssessor(ctx context.Context, cfg config.RecaptchaConfig, logger *slog.Logger) (*EnterpriseAssessor, error) {
	client, err := recaptcha.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("creating recaptcha enterprise client: %w", err)
	}
	return newEnterpriseAssessor(client, cfg, logger), nil
}

func newEnterpriseAssessor(client assessmentCreator, cfg config.RecaptchaConfig, logger *slog.Logger) *EnterpriseAssessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &EnterpriseAssessor{
		client:    client,
		projectID: cfg.ProjectID,
		siteKey:   cfg.SiteKey,
		timeout:   cfg.Timeout,
		logger:    logger,
	}
}

func (a *EnterpriseAssessor) Assess(ctx context.Context, token, expectedAction string) (model.Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	req := &recaptchaenterprisepb.CreateAssessmentRequest{
		Parent: fmt.Sprintf("projects/%s", a.projectID),
		Assessment: &recaptchaenterprisepb.Assessment{
			Event: &recaptchaenterprisepb.Event{
				Token:          token,
				SiteKey:        a.siteKey,
				ExpectedAction: expectedAction,
			},
		},
	}

	resp, err := a.client.CreateAssessment(ctx, req,
		gax.WithTimeout(a.timeout),
		gax.WithRetry(func() gax.Retryer { return nil }),
	)
	if err != nil {
		return model.Verdict{}, a.classify(err)
	}

	props, risk := resp.GetTokenProperties(), resp.GetRiskAnalysis()
	if props == nil || risk == nil {
		return model.Verdict{}, &AssessmentError{
			Kind: ErrDecode,
			Err:  errors.New("assessment without tokenProperties or riskAnalysis"),
		}
	}

	reasons := make([]string, 0, len(risk.GetReasons()))
	for _, r := range risk.GetReasons() {
		reasons = append(reasons, r.String())
	}

	verdict := model.Verdict{
		TokenValid: props.GetValid(),
		Action:     props.GetAction(),
		Score:      widenScore(risk.GetScore()),
		Reasons:    reasons,
	}
	if !props.GetValid() {
		verdict.InvalidReason = props.GetInvalidReason().String()
	}
	return verdict, nil
}

// widenScore converts the SDK's float32 score through its shortest decimal
// form so 0.7 stays 0.7 as a float64, matching what the REST transport decodes.
func widenScore(s float32) float64 {
	f, err := strconv.ParseFloat(strconv.FormatFloat(float64(s), 'g', -1, 32), 64)
	if err != nil {
		return float64(s)
	}
	return f
}

func (a *EnterpriseAssessor) classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &AssessmentError{Kind: ErrNetwork, Err: err}
	}

	httpStatus := 0
	if ae, ok := apierror.FromError(err); ok {
		if code := ae.HTTPCode(); code > 0 {
			httpStatus = code
		}
		a.logger.Error("assessment service returned an error",
			"reason", ae.Reason(),
			"error", ae.Error(),
		)
	}

	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return &AssessmentError{Kind: ErrNetwork, Err: err}
	default:
		return &AssessmentError{Kind: ErrUpstreamHTTP, Status: httpStatus, Err: err}
	}
}

func (a *EnterpriseAssessor) Close() error {
	return a.client.Close()
}
