package server

import (
	"net/http"
	"strings"
	"testing"

	"glucoguide/backend/internal/metrics"
)

func TestHealthOK(t *testing.T) {
	router := newTestRouter(t)
	rec := performRequest(t, router, http.MethodGet, "/health", "", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rec.Code, rec.Body.String())
	}

	body := decodeJSONMap(t, rec)
	if body["status"] != "ok" {
		t.Fatalf("expected status=ok, got %v", body["status"])
	}
	if body["service"] != "glucoguide-api" {
		t.Fatalf("expected service=glucoguide-api, got %v", body["service"])
	}
}

func TestMetricsEndpointExposesRequestCounters(t *testing.T) {
	router := newTestRouter(t, WithMetrics(metrics.New()))

	performRequest(t, router, http.MethodGet, "/health", "", nil, nil)
	rec := performRequest(t, router, http.MethodGet, "/metrics", "", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `glucoguide_http_requests_total{method="GET",route="/health",status="200"} 1`) {
		t.Fatalf("expected health request counter in metrics output:\n%s", body)
	}
}

func TestMetricsEndpointDisabled(t *testing.T) {
	cfg := baseTestConfig
	cfg.MetricsEnabled = false
	router := newTestRouterWithConfig(t, cfg, WithMetrics(metrics.New()))

	rec := performRequest(t, router, http.MethodGet, "/metrics", "", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when metrics are disabled, got %d", rec.Code)
	}
}

func TestProtectedEndpointRejectsMissingBearerToken(t *testing.T) {
	router := newTestRouter(t)
	rec := performRequest(t, router, http.MethodGet, "/api/v1/chat/sessions", "", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d body=%s", rec.Code, rec.Body.String())
	}
	if detail := responseDetail(t, rec); detail != "Bearer token required" {
		t.Fatalf("expected Bearer token required, got %q", detail)
	}
}

func TestProtectedEndpointRejectsMalformedToken(t *testing.T) {
	router := newTestRouter(t)
	rec := performRequest(
		t,
		router,
		http.MethodPost,
		"/api/v1/chat/sessions/"+testID()+"/messages",
		"not-a-jwt",
		map[string]any{"message": "hello"},
		nil,
	)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d body=%s", rec.Code, rec.Body.String())
	}
	if detail := responseDetail(t, rec); detail != "Invalid bearer token" {
		t.Fatalf("expected invalid bearer token detail, got %q", detail)
	}
}

func TestProtectedEndpointRejectsWrongSecret(t *testing.T) {
	router := newTestRouter(t)
	cfg := baseTestConfig
	cfg.JWTSecret = "some-other-secret-0987654321"
	token := signTokenWithConfig(t, cfg, testID(), nil)

	rec := performRequest(t, router, http.MethodGet, "/api/v1/profile/medical", token, nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d body=%s", rec.Code, rec.Body.String())
	}
	if detail := responseDetail(t, rec); detail != "Invalid bearer token" {
		t.Fatalf("expected invalid bearer token detail, got %q", detail)
	}
}

func TestProtectedEndpointRejectsTokenWithoutSub(t *testing.T) {
	router := newTestRouter(t)
	token := signToken(t, "", nil)

	rec := performRequest(t, router, http.MethodGet, "/api/v1/resources/search?q=diet", token, nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d body=%s", rec.Code, rec.Body.String())
	}
	if detail := responseDetail(t, rec); detail != "Token subject missing" {
		t.Fatalf("expected token subject missing detail, got %q", detail)
	}
}

func TestProtectedEndpointRejectsAudienceMismatch(t *testing.T) {
	cfg := baseTestConfig
	cfg.JWTAudience = "expected-audience"
	router := newTestRouterWithConfig(t, cfg)
	token := signTokenWithConfig(t, cfg, testID(), map[string]any{"aud": "wrong-audience"})

	rec := performRequest(t, router, http.MethodGet, "/api/v1/chat/sessions", token, nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d body=%s", rec.Code, rec.Body.String())
	}
	if detail := responseDetail(t, rec); detail != "Invalid token audience" {
		t.Fatalf("expected invalid token audience detail, got %q", detail)
	}
}

func TestProtectedEndpointRejectsIssuerMismatch(t *testing.T) {
	cfg := baseTestConfig
	cfg.JWTIssuer = "expected-issuer"
	router := newTestRouterWithConfig(t, cfg)
	token := signTokenWithConfig(t, cfg, testID(), map[string]any{"iss": "wrong-issuer"})

	rec := performRequest(t, router, http.MethodGet, "/api/v1/chat/sessions", token, nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d body=%s", rec.Code, rec.Body.String())
	}
	if detail := responseDetail(t, rec); detail != "Invalid token issuer" {
		t.Fatalf("expected invalid token issuer detail, got %q", detail)
	}
}

func TestProtectedEndpointWithoutUserStore(t *testing.T) {
	router := newTestRouter(t)
	token := signToken(t, testID(), nil)

	rec := performRequest(t, router, http.MethodGet, "/api/v1/chat/sessions", token, nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d body=%s", rec.Code, rec.Body.String())
	}
	if detail := responseDetail(t, rec); detail != "User store unavailable" {
		t.Fatalf("expected user store unavailable detail, got %q", detail)
	}
}

func TestCORSPreflightAllowsConfiguredOrigin(t *testing.T) {
	router := newTestRouter(t)
	origin := "http://localhost:5173"
	rec := performRequest(
		t,
		router,
		http.MethodOptions,
		"/api/v1/chat/sessions",
		"",
		nil,
		map[string]string{
			"Origin":                         origin,
			"Access-Control-Request-Method":  "POST",
			"Access-Control-Request-Headers": "Authorization,Content-Type",
		},
	)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d body=%s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != origin {
		t.Fatalf("expected allow origin %q, got %q", origin, got)
	}
}

func TestCORSPreflightRejectsDisallowedOrigin(t *testing.T) {
	router := newTestRouter(t)
	origin := "https://example.invalid"
	rec := performRequest(
		t,
		router,
		http.MethodOptions,
		"/api/v1/chat/sessions",
		"",
		nil,
		map[string]string{
			"Origin":                        origin,
			"Access-Control-Request-Method": "POST",
		},
	)

	if rec.Code != http.StatusNoContent && rec.Code != http.StatusForbidden {
		t.Fatalf("expected 204 or 403 for disallowed origin, got %d body=%s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); strings.TrimSpace(got) != "" {
		t.Fatalf("expected no allow-origin header for disallowed origin, got %q", got)
	}
}
