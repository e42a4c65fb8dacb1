package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"logingate/dto"
	"logingate/model"
	"logingate/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubAssessor struct {
	verdict model.Verdict
	err     error
	calls   int
}

func (s *stubAssessor) Assess(_ context.Context, _ string, _ string) (model.Verdict, error) {
	s.calls++
	return s.verdict, s.err
}

type spyStore struct {
	users map[string]string
	err   error
	calls int
}

func (s *spyStore) Verify(_ context.Context, username, password string) (bool, error) {
	s.calls++
	if s.err != nil {
		return false, s.err
	}
	want, ok := s.users[username]
	return ok && want == password, nil
}

type spyRecorder struct {
	attempts  []model.LoginAttempt
	deadlines []time.Time
	err       error
}

func (s *spyRecorder) Record(ctx context.Context, a model.LoginAttempt) error {
	s.attempts = append(s.attempts, a)
	deadline, _ := ctx.Deadline()
	s.deadlines = append(s.deadlines, deadline)
	return s.err
}

var goodVerdict = model.Verdict{TokenValid: true, Score: 0.9, Action: "LOGIN"}

func newTestRouter(assessor services.Assessor, store services.CredentialStore, rec services.LoginRecorder) *gin.Engine {
	router := gin.New()
	LoginController(router, &LoginHandler{
		Assessor:    assessor,
		Credentials: store,
		Recorder:    rec,
		Policy:      model.DecisionPolicy{MinScore: 0.5},
		Action:      "LOGIN",
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return router
}

func postLogin(router http.Handler, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func loginForm(user, pass, token string) url.Values {
	return url.Values{"usuario": {user}, "clave": {pass}, "g_recaptcha_token": {token}}
}

func TestLogin_Scenarios(t *testing.T) {
	tests := []struct {
		name           string
		form           url.Values
		verdict        model.Verdict
		assessErr      error
		storeErr       error
		expectedStatus int
		expectedBody   string
		storeQueried   bool
		outcome        model.LoginOutcome
	}{
		{
			name:           "success",
			form:           loginForm("test", "password", "token-abcdefghijk"),
			verdict:        goodVerdict,
			expectedStatus: http.StatusOK,
			storeQueried:   true,
			outcome:        model.OutcomeGranted,
		},
		{
			name:           "wrong password",
			form:           loginForm("test", "wrong", "token"),
			verdict:        goodVerdict,
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   msgInvalidLogin,
			storeQueried:   true,
			outcome:        model.OutcomeDenied,
		},
		{
			name:           "unknown user gets the same answer as wrong password",
			form:           loginForm("nobody", "password", "token"),
			verdict:        goodVerdict,
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   msgInvalidLogin,
			storeQueried:   true,
			outcome:        model.OutcomeDenied,
		},
		{
			name:           "low score",
			form:           loginForm("test", "password", "token"),
			verdict:        model.Verdict{TokenValid: true, Score: 0.2, Action: "LOGIN"},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   msgRiskFailed,
			outcome:        model.OutcomeRejected,
		},
		{
			name:           "invalid token",
			form:           loginForm("test", "password", "token"),
			verdict:        model.Verdict{TokenValid: false, Score: 0.9, Action: "LOGIN"},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   msgRiskFailed,
			outcome:        model.OutcomeRejected,
		},
		{
			name:           "action mismatch",
			form:           loginForm("test", "password", "token"),
			verdict:        model.Verdict{TokenValid: true, Score: 1.0, Action: "CHECKOUT"},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   msgRiskFailed,
			outcome:        model.OutcomeRejected,
		},
		{
			name:           "network failure",
			form:           loginForm("test", "password", "token"),
			assessErr:      &services.AssessmentError{Kind: services.ErrNetwork, Err: errors.New("dial tcp 10.0.0.1:443: i/o timeout")},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   msgAssessNetwork,
			outcome:        model.OutcomeUnavailable,
		},
		{
			name:           "upstream error status",
			form:           loginForm("test", "password", "token"),
			assessErr:      &services.AssessmentError{Kind: services.ErrUpstreamHTTP, Status: 403, Err: errors.New("API key not valid")},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   msgAssessInternal,
			outcome:        model.OutcomeUnavailable,
		},
		{
			name:           "malformed upstream response",
			form:           loginForm("test", "password", "token"),
			assessErr:      &services.AssessmentError{Kind: services.ErrDecode, Err: errors.New("unexpected end of JSON input")},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   msgAssessInternal,
			outcome:        model.OutcomeUnavailable,
		},
		{
			name:           "credential store failure",
			form:           loginForm("test", "password", "token"),
			verdict:        goodVerdict,
			storeErr:       errors.New("dial tcp: connection refused"),
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   msgCredentialStore,
			storeQueried:   true,
			outcome:        model.OutcomeError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assessor := &stubAssessor{verdict: tt.verdict, err: tt.assessErr}
			store := &spyStore{users: map[string]string{"test": "password"}, err: tt.storeErr}
			rec := &spyRecorder{}

			w := postLogin(newTestRouter(assessor, store, rec), tt.form)

			if w.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
			if assessor.calls != 1 {
				t.Errorf("expected one assessment, got %d", assessor.calls)
			}
			if got := store.calls > 0; got != tt.storeQueried {
				t.Errorf("expected store queried=%v, got %d calls", tt.storeQueried, store.calls)
			}

			if tt.expectedStatus == http.StatusOK {
				var resp dto.MessageResponse
				if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
					t.Fatalf("failed to decode response: %v", err)
				}
				if !strings.Contains(resp.Message, "test") {
					t.Errorf("expected message to contain username, got %q", resp.Message)
				}
			} else {
				var resp dto.ErrorResponse
				if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
					t.Fatalf("failed to decode response: %v", err)
				}
				if resp.Detail != tt.expectedBody {
					t.Errorf("expected detail %q, got %q", tt.expectedBody, resp.Detail)
				}
			}

			if len(rec.attempts) != 1 {
				t.Fatalf("expected one recorded attempt, got %d", len(rec.attempts))
			}
			if got := rec.attempts[0]; got.Outcome != tt.outcome || got.Username != tt.form.Get("usuario") {
				t.Errorf("unexpected attempt %+v", rec.attempts[0])
			}
		})
	}
}

func TestLogin_ErrorDetailNeverLeaksInternals(t *testing.T) {
	assessor := &stubAssessor{err: &services.AssessmentError{
		Kind:   services.ErrUpstreamHTTP,
		Status: 500,
		Err:    errors.New("upstream stack trace: secret-key at projects/demo"),
	}}
	w := postLogin(newTestRouter(assessor, &spyStore{}, nil), loginForm("test", "password", "token"))

	body := w.Body.String()
	for _, leak := range []string{"secret-key", "stack trace", "projects/demo", "500"} {
		if strings.Contains(body, leak) {
			t.Errorf("response leaks %q: %s", leak, body)
		}
	}
}

func TestLogin_RiskDetailsNotReturned(t *testing.T) {
	assessor := &stubAssessor{verdict: model.Verdict{TokenValid: true, Score: 0.37, Action: "LOGIN", Reasons: []string{"AUTOMATION"}}}
	w := postLogin(newTestRouter(assessor, &spyStore{}, nil), loginForm("test", "password", "token"))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "0.37") || strings.Contains(w.Body.String(), "AUTOMATION") {
		t.Errorf("response leaks verdict details: %s", w.Body.String())
	}
}

func TestLogin_MissingFields(t *testing.T) {
	tests := []struct {
		name string
		form url.Values
	}{
		{"no usuario", url.Values{"clave": {"password"}, "g_recaptcha_token": {"tok"}}},
		{"no clave", url.Values{"usuario": {"test"}, "g_recaptcha_token": {"tok"}}},
		{"no token", url.Values{"usuario": {"test"}, "clave": {"password"}}},
		{"empty token", loginForm("test", "password", "")},
		{"empty body", url.Values{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assessor := &stubAssessor{verdict: goodVerdict}
			store := &spyStore{users: map[string]string{"test": "password"}}

			w := postLogin(newTestRouter(assessor, store, nil), tt.form)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
			if assessor.calls != 0 || store.calls != 0 {
				t.Errorf("expected no assessment and no credential check, got %d/%d", assessor.calls, store.calls)
			}
		})
	}
}

func TestLogin_IdenticalAttemptsAreIdempotent(t *testing.T) {
	assessor := &stubAssessor{verdict: goodVerdict}
	router := newTestRouter(assessor, &spyStore{users: map[string]string{"test": "password"}}, nil)

	first := postLogin(router, loginForm("test", "password", "token"))
	second := postLogin(router, loginForm("test", "password", "token"))

	if first.Code != http.StatusOK || second.Code != first.Code {
		t.Fatalf("expected two 200s, got %d and %d", first.Code, second.Code)
	}
	if first.Body.String() != second.Body.String() {
		t.Errorf("responses differ: %s vs %s", first.Body.String(), second.Body.String())
	}
}

func TestLogin_RecorderFailureDoesNotChangeOutcome(t *testing.T) {
	rec := &spyRecorder{err: errors.New("firestore unavailable")}
	router := newTestRouter(&stubAssessor{verdict: goodVerdict}, &spyStore{users: map[string]string{"test": "password"}}, rec)

	w := postLogin(router, loginForm("test", "password", "token"))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestLogin_RecordIsBoundedByTimeout(t *testing.T) {
	tests := []struct {
		name string
		form url.Values
	}{
		{"granted", loginForm("test", "password", "token")},
		{"denied", loginForm("test", "wrong", "token")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &spyRecorder{}
			router := newTestRouter(&stubAssessor{verdict: goodVerdict}, &spyStore{users: map[string]string{"test": "password"}}, rec)

			start := time.Now()
			postLogin(router, tt.form)

			if len(rec.deadlines) != 1 {
				t.Fatalf("expected one recorded attempt, got %d", len(rec.deadlines))
			}
			deadline := rec.deadlines[0]
			if deadline.IsZero() {
				t.Fatal("expected the audit write to carry a deadline")
			}
			if deadline.After(start.Add(recordTimeout + time.Second)) {
				t.Errorf("deadline %v exceeds the record timeout", deadline.Sub(start))
			}
		})
	}
}

func TestLogin_MultipartForm(t *testing.T) {
	body := &strings.Builder{}
	boundary := "XyZ"
	for _, kv := range [][2]string{{"usuario", "test"}, {"clave", "password"}, {"g_recaptcha_token", "token"}} {
		body.WriteString("--" + boundary + "\r\n")
		body.WriteString(`Content-Disposition: form-data; name="` + kv[0] + "\"\r\n\r\n")
		body.WriteString(kv[1] + "\r\n")
	}
	body.WriteString("--" + boundary + "--\r\n")

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body.String()))
	req.Header.Set("Content-Type", "multipart/form-data; boundary="+boundary)
	w := httptest.NewRecorder()
	newTestRouter(&stubAssessor{verdict: goodVerdict}, &spyStore{users: map[string]string{"test": "password"}}, nil).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestTokenPrefix(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  string
	}{
		{"long token", "0123456789abcdefghijklmnop", "0123456789..."},
		{"short token", "short", "<5 chars>"},
		{"twenty chars", "0123456789abcdefghij", "<20 chars>"},
		{"multibyte", "ñññññññññññññññññññññ", "ññññññññññ..."},
		{"empty", "", "<0 chars>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tokenPrefix(tt.token)
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
			if !utf8.ValidString(got) {
				t.Errorf("prefix %q is not valid UTF-8", got)
			}
		})
	}
}
