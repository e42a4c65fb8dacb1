package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"logingate/config"
	"logingate/dto"
	"logingate/model"
)

const maxUpstreamBody = 1 << 20

// RESTAssessor calls the assessments endpoint over HTTP/JSON.
type RESTAssessor struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	siteKey    string
	logger     *slog.Logger
}

// NewRESTAssessor builds a client for cfg. A nil httpClient gets one with
// cfg.Timeout.
func NewRESTAssessor(cfg config.RecaptchaConfig, httpClient *http.Client, logger *slog.Logger) *RESTAssessor {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RESTAssessor{
		httpClient: httpClient,
		endpoint:   fmt.Sprintf(cfg.Endpoint, url.PathEscape(cfg.ProjectID)),
		apiKey:     cfg.APIKey,
		siteKey:    cfg.SiteKey,
		logger:     logger,
	}
}

func (a *RESTAssessor) Assess(ctx context.Context, token, expectedAction string) (model.Verdict, error) {
	payload, err := json.Marshal(dto.CreateAssessmentRequest{
		Event: dto.AssessmentEvent{
			Token:          token,
			SiteKey:        a.siteKey,
			ExpectedAction: expectedAction,
		},
	})
	if err != nil {
		return model.Verdict{}, fmt.Errorf("encoding assessment request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(payload))
	if err != nil {
		return model.Verdict{}, fmt.Errorf("creating assessment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	// Header instead of ?key= so the secret never shows up in URL-bearing errors.
	req.Header.Set("X-Goog-Api-Key", a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return model.Verdict{}, &AssessmentError{Kind: ErrNetwork, Err: err}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			a.logger.Warn("failed to close response body", "error", closeErr)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
	if err != nil {
		return model.Verdict{}, &AssessmentError{Kind: ErrNetwork, Err: fmt.Errorf("reading response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		a.logger.Error("assessment service returned error status",
			"status", resp.StatusCode,
			"body", string(body),
		)
		return model.Verdict{}, &AssessmentError{
			Kind:   ErrUpstreamHTTP,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	return decodeAssessment(body)
}

func decodeAssessment(body []byte) (model.Verdict, error) {
	var out dto.AssessmentResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return model.Verdict{}, &AssessmentError{Kind: ErrDecode, Err: err}
	}

	var missing []error
	if out.Name == "" {
		missing = append(missing, errors.New("name"))
	}
	if out.Event == nil {
		missing = append(missing, errors.New("event"))
	}
	if out.RiskAnalysis == nil {
		missing = append(missing, errors.New("riskAnalysis"))
	}
	if out.TokenProperties == nil {
		missing = append(missing, errors.New("tokenProperties"))
	}
	if len(missing) > 0 {
		return model.Verdict{}, &AssessmentError{
			Kind: ErrDecode,
			Err:  fmt.Errorf("missing fields: %w", errors.Join(missing...)),
		}
	}

	if s := out.RiskAnalysis.Score; s < 0 || s > 1 {
		return model.Verdict{}, &AssessmentError{Kind: ErrDecode, Err: fmt.Errorf("score %v out of range", s)}
	}

	return model.Verdict{
		TokenValid:    out.TokenProperties.Valid,
		Action:        out.TokenProperties.Action,
		Score:         out.RiskAnalysis.Score,
		Reasons:       out.RiskAnalysis.Reasons,
		InvalidReason: out.TokenProperties.InvalidReason,
	}, nil
}
