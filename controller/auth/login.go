package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"logingate/dto"
	"logingate/middleware"
	"logingate/model"
	"logingate/services"
)

const (
	msgBadRequest      = "usuario, clave and g_recaptcha_token are required."
	msgRiskFailed      = "reCAPTCHA verification failed or score too low."
	msgInvalidLogin    = "Invalid username or password."
	msgAssessInternal  = "Internal error while verifying reCAPTCHA."
	msgAssessNetwork   = "Connection error while verifying reCAPTCHA."
	msgCredentialStore = "Internal error while verifying credentials."
)

// recordTimeout bounds the audit write so a slow store only delays the
// response by this much.
const recordTimeout = 2 * time.Second

// LoginHandler runs the risk gate and, only when it passes, the credential
// check.
type LoginHandler struct {
	Assessor    services.Assessor
	Credentials services.CredentialStore
	Recorder    services.LoginRecorder
	Policy      model.DecisionPolicy
	// Action is the label the risk token must have been issued for.
	Action string
	Logger *slog.Logger
}

func LoginController(router *gin.Engine, h *LoginHandler) {
	if h.Logger == nil {
		h.Logger = slog.Default()
	}
	if h.Recorder == nil {
		h.Recorder = services.NopRecorder{}
	}
	router.POST("/login", h.Login)
}

func (h *LoginHandler) Login(c *gin.Context) {
	attempt := model.LoginAttempt{
		ClientIP:  c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		RequestID: c.GetString(middleware.RequestIDKey),
		CreatedAt: time.Now().UTC(),
	}
	logger := h.Logger.With("component", "login", "requestId", attempt.RequestID)

	var request dto.LoginRequest
	if err := c.ShouldBind(&request); err != nil {
		attempt.Outcome = model.OutcomeRejected
		h.fail(c, logger, attempt, model.NewAppError(model.ErrBadRequest, msgBadRequest, err))
		return
	}
	attempt.Username = request.Username
	logger = logger.With("username", request.Username)
	logger.Info("login attempt", "token", tokenPrefix(request.Token))

	verdict, appErr := h.checkRisk(c.Request.Context(), logger, request.Token)
	attempt.Score, attempt.Action, attempt.Bypassed = verdict.Score, verdict.Action, verdict.Bypassed
	if appErr != nil {
		attempt.Outcome = model.OutcomeRejected
		if appErr.Code == model.ErrAssessmentUnavailable {
			attempt.Outcome = model.OutcomeUnavailable
		}
		h.fail(c, logger, attempt, appErr)
		return
	}

	ok, err := h.Credentials.Verify(c.Request.Context(), request.Username, request.Password)
	if err != nil {
		attempt.Outcome = model.OutcomeError
		h.fail(c, logger, attempt, model.NewAppError(model.ErrInternal, msgCredentialStore, err))
		return
	}
	if !ok {
		attempt.Outcome = model.OutcomeDenied
		h.fail(c, logger, attempt, model.NewAppError(model.ErrInvalidCredentials, msgInvalidLogin, nil))
		return
	}

	attempt.Outcome = model.OutcomeGranted
	h.record(c.Request.Context(), logger, attempt)
	logger.Info("login granted")
	c.JSON(200, dto.MessageResponse{Message: "Login successful for " + request.Username + "!"})
}

// checkRisk returns the verdict and a non-nil AppError when the request must
// stop before the credential check.
func (h *LoginHandler) checkRisk(ctx context.Context, logger *slog.Logger, token string) (model.Verdict, *model.AppError) {
	verdict, err := h.Assessor.Assess(ctx, token, h.Action)
	if err != nil {
		logger.Error("recaptcha assessment failed", "error", err)
		msg := msgAssessInternal
		if errors.Is(err, services.ErrNetwork) {
			msg = msgAssessNetwork
		}
		return model.Verdict{}, model.NewAppError(model.ErrAssessmentUnavailable, msg, err)
	}

	decision := h.Policy.Evaluate(verdict, h.Action)
	attrs := []any{
		"valid", verdict.TokenValid,
		"score", verdict.Score,
		"expectedAction", h.Action,
		"action", verdict.Action,
		"reasons", verdict.Reasons,
		"bypassed", verdict.Bypassed,
	}
	if !decision.Passed {
		attrs = append(attrs, "failures", decision.Failures, "invalidReason", verdict.InvalidReason)
		logger.Warn("recaptcha rejected", attrs...)
		return verdict, model.NewAppError(model.ErrRiskCheckFailed, msgRiskFailed, nil)
	}
	logger.Info("recaptcha verified", attrs...)
	return verdict, nil
}

func (h *LoginHandler) fail(c *gin.Context, logger *slog.Logger, attempt model.LoginAttempt, appErr *model.AppError) {
	status := appErr.StatusCode()
	if status >= 500 {
		logger.Error("login failed", "code", appErr.Code, "error", appErr.Err)
	} else {
		logger.Info("login refused", "code", appErr.Code)
	}
	if attempt.Username != "" {
		h.record(c.Request.Context(), logger, attempt)
	}
	c.AbortWithStatusJSON(status, dto.ErrorResponse{Detail: appErr.Message})
}

func (h *LoginHandler) record(ctx context.Context, logger *slog.Logger, attempt model.LoginAttempt) {
	ctx, cancel := context.WithTimeout(ctx, recordTimeout)
	defer cancel()
	if err := h.Recorder.Record(ctx, attempt); err != nil {
		logger.Warn("failed to record login attempt", "error", err)
	}
}

// tokenPrefix shows the first runes of long tokens and only the length of
// short ones.
func tokenPrefix(token string) string {
	const n = 10
	runes := []rune(token)
	if len(runes) <= 2*n {
		return fmt.Sprintf("<%d chars>", len(runes))
	}
	return string(runes[:n]) + "..."
}
