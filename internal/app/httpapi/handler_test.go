package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	app "github.com/infogenie/backend/internal/app"
	"github.com/infogenie/backend/internal/app/domain/user"
	"github.com/infogenie/backend/internal/app/storage/memory"
	"github.com/infogenie/backend/internal/config"
)

const testSecret = "test-secret"

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func newTestApp(t *testing.T, providerURL, mirrorURL string) (*app.Application, *memory.Store) {
	t.Helper()
	dir := t.TempDir()

	providers := fmt.Sprintf(`providers:
  deepseek:
    api_base: %s
    api_key: test-key
    model: deepseek-chat
    max_retries: 1
    timeout_seconds: 5
    default: true
`, providerURL)
	feeds := fmt.Sprintf(`feeds:
  weibo:
    mirrors:
      - %s
    ttl_seconds: 60
`, mirrorURL)

	cfg := config.Config{
		Auth:       config.AuthConfig{JWTSecret: testSecret},
		Credits:    config.CreditsConfig{AICost: 100},
		Engagement: config.EngagementConfig{CoinReward: 300, ExpReward: 200},
		RateLimit:  config.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
		Cache:      config.CacheConfig{SweepSchedule: "@every 10m", SweepAfterTTLs: 6},

		ProvidersFile: writeFile(t, dir, "providers.yaml", providers),
		FeedsFile:     writeFile(t, dir, "feeds.yaml", feeds),
	}

	store := memory.New()
	application, err := app.New(cfg, app.Stores{Users: store}, nil)
	if err != nil {
		t.Fatalf("build application: %v", err)
	}
	return application, store
}

func seedUser(t *testing.T, store *memory.Store, balance int) string {
	t.Helper()
	u, err := store.CreateUser(context.Background(), user.User{
		Email:    "alice@example.com",
		Username: "alice",
		Balance:  balance,
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u.ID
}

func signToken(t *testing.T, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func doRequest(t *testing.T, h http.Handler, method, path, token, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var decoded map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec, decoded
}

func okProvider(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := json.Marshal(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
		})
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPaidEndpointRequiresAuth(t *testing.T) {
	provider := okProvider(t, "hi")
	application, store := newTestApp(t, provider.URL, "http://127.0.0.1:1")
	id := seedUser(t, store, 500)
	h := NewHandler(application, nil)

	rec, body := doRequest(t, h, http.MethodPost, "/api/aimodelapp/chat", "", `{"messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if body["error_code"] != "auth_required" {
		t.Fatalf("error_code = %v", body["error_code"])
	}

	u, _ := store.GetUser(context.Background(), id)
	if u.Balance != 500 {
		t.Fatalf("balance changed on rejected auth: %d", u.Balance)
	}
}

func TestPaidEndpointInvalidToken(t *testing.T) {
	provider := okProvider(t, "hi")
	application, _ := newTestApp(t, provider.URL, "http://127.0.0.1:1")
	h := NewHandler(application, nil)

	rec, body := doRequest(t, h, http.MethodPost, "/api/aimodelapp/chat", "garbage", `{"messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if body["error_code"] != "invalid_token" {
		t.Fatalf("error_code = %v", body["error_code"])
	}
}

func TestPaidEndpointInsufficientCoins(t *testing.T) {
	provider := okProvider(t, "hi")
	application, store := newTestApp(t, provider.URL, "http://127.0.0.1:1")
	id := seedUser(t, store, 40)
	h := NewHandler(application, nil)

	rec, body := doRequest(t, h, http.MethodPost, "/api/aimodelapp/chat", signToken(t, id), `{"messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", rec.Code)
	}
	if body["error_code"] != "insufficient_coins" {
		t.Fatalf("error_code = %v", body["error_code"])
	}
	if body["current_coins"].(float64) != 40 || body["required_coins"].(float64) != 100 {
		t.Fatalf("unexpected detail: %v", body)
	}

	u, _ := store.GetUser(context.Background(), id)
	if u.Balance != 40 {
		t.Fatalf("balance changed on rejected charge: %d", u.Balance)
	}
}

func TestPaidEndpointUnknownUser(t *testing.T) {
	provider := okProvider(t, "hi")
	application, _ := newTestApp(t, provider.URL, "http://127.0.0.1:1")
	h := NewHandler(application, nil)

	rec, body := doRequest(t, h, http.MethodPost, "/api/aimodelapp/chat", signToken(t, "ghost"), `{"messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if body["error_code"] != "user_not_found" {
		t.Fatalf("error_code = %v", body["error_code"])
	}
}

func TestChatChargesAndDispatches(t *testing.T) {
	provider := okProvider(t, "the answer")
	application, store := newTestApp(t, provider.URL, "http://127.0.0.1:1")
	id := seedUser(t, store, 500)
	h := NewHandler(application, nil)

	rec, body := doRequest(t, h, http.MethodPost, "/api/aimodelapp/chat", signToken(t, id), `{"messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %v", rec.Code, body)
	}
	if body["content"] != "the answer" || body["provider"] != "deepseek" {
		t.Fatalf("unexpected body: %v", body)
	}

	u, _ := store.GetUser(context.Background(), id)
	if u.Balance != 400 {
		t.Fatalf("balance = %d, want 400", u.Balance)
	}
	records, _ := store.ListRecentUsage(context.Background(), id, 10)
	if len(records) != 1 || records[0].Feature != "chat" {
		t.Fatalf("unexpected usage records: %+v", records)
	}
}

// A failed provider call must not refund the charge: payment buys the
// attempt, not the outcome.
func TestChargeRetainedOnProviderFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	application, store := newTestApp(t, srv.URL, "http://127.0.0.1:1")
	id := seedUser(t, store, 500)
	h := NewHandler(application, nil)

	rec, body := doRequest(t, h, http.MethodPost, "/api/aimodelapp/chat", signToken(t, id), `{"messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if body["error_code"] != "upstream_error" {
		t.Fatalf("error_code = %v", body["error_code"])
	}

	u, _ := store.GetUser(context.Background(), id)
	if u.Balance != 400 {
		t.Fatalf("balance = %d, want 400 (charge retained)", u.Balance)
	}
}

func TestNameAnalysisEndpoint(t *testing.T) {
	provider := okProvider(t, "a thorough reading")
	application, store := newTestApp(t, provider.URL, "http://127.0.0.1:1")
	id := seedUser(t, store, 500)
	h := NewHandler(application, nil)

	rec, body := doRequest(t, h, http.MethodPost, "/api/aimodelapp/name-analysis", signToken(t, id), `{"name":"李雷"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %v", rec.Code, body)
	}
	if body["analysis"] != "a thorough reading" || body["name"] != "李雷" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestVariableNamingParsesCompletion(t *testing.T) {
	provider := okProvider(t, `Sure! {"suggestions": {"camelCase": [{"name": "userCount", "description": "count of users"}]}}`)
	application, store := newTestApp(t, provider.URL, "http://127.0.0.1:1")
	id := seedUser(t, store, 500)
	h := NewHandler(application, nil)

	rec, body := doRequest(t, h, http.MethodPost, "/api/aimodelapp/variable-naming", signToken(t, id), `{"description":"number of users"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %v", rec.Code, body)
	}
	suggestions, ok := body["suggestions"].(map[string]any)
	if !ok || suggestions["camelCase"] == nil {
		t.Fatalf("unexpected suggestions: %v", body["suggestions"])
	}
	if body["language"] != "javascript" {
		t.Fatalf("language = %v, want default javascript", body["language"])
	}
}

func TestVariableNamingUnparseableCompletion(t *testing.T) {
	provider := okProvider(t, "sorry, no JSON today")
	application, store := newTestApp(t, provider.URL, "http://127.0.0.1:1")
	id := seedUser(t, store, 500)
	h := NewHandler(application, nil)

	rec, body := doRequest(t, h, http.MethodPost, "/api/aimodelapp/variable-naming", signToken(t, id), `{"description":"number of users"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if body["error_code"] != "parse_error" {
		t.Fatalf("error_code = %v", body["error_code"])
	}

	// The charge still stands.
	u, _ := store.GetUser(context.Background(), id)
	if u.Balance != 400 {
		t.Fatalf("balance = %d, want 400", u.Balance)
	}
}

func TestCoinsEndpoint(t *testing.T) {
	provider := okProvider(t, "hi")
	application, store := newTestApp(t, provider.URL, "http://127.0.0.1:1")
	id := seedUser(t, store, 150)
	h := NewHandler(application, nil)

	rec, body := doRequest(t, h, http.MethodGet, "/api/aimodelapp/coins", signToken(t, id), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %v", rec.Code, body)
	}
	data := body["data"].(map[string]any)
	if data["coins"].(float64) != 150 || data["ai_cost"].(float64) != 100 {
		t.Fatalf("unexpected data: %v", data)
	}
	if data["can_use_ai"] != true || data["username"] != "alice" {
		t.Fatalf("unexpected data: %v", data)
	}
}

func TestModelsEndpoint(t *testing.T) {
	provider := okProvider(t, "hi")
	application, _ := newTestApp(t, provider.URL, "http://127.0.0.1:1")
	h := NewHandler(application, nil)

	rec, body := doRequest(t, h, http.MethodGet, "/api/aimodelapp/models", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["default_provider"] != "deepseek" || body["default_model"] != "deepseek-chat" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestIndexEndpoint(t *testing.T) {
	provider := okProvider(t, "hi")
	application, _ := newTestApp(t, provider.URL, "http://127.0.0.1:1")
	h := NewHandler(application, nil)

	rec, body := doRequest(t, h, http.MethodGet, "/", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["service"] != "infogenie-backend" {
		t.Fatalf("unexpected body: %v", body)
	}

	rec, body = doRequest(t, h, http.MethodGet, "/no/such/path", "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if body["error_code"] != "not_found" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestCheckinEndpoint(t *testing.T) {
	provider := okProvider(t, "hi")
	application, store := newTestApp(t, provider.URL, "http://127.0.0.1:1")
	id := seedUser(t, store, 0)
	h := NewHandler(application, nil)

	rec, body := doRequest(t, h, http.MethodPost, "/api/user/checkin", signToken(t, id), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %v", rec.Code, body)
	}
	data := body["data"].(map[string]any)
	if data["coin_reward"].(float64) != 300 || data["consecutive_days"].(float64) != 1 {
		t.Fatalf("unexpected data: %v", data)
	}

	rec, body = doRequest(t, h, http.MethodPost, "/api/user/checkin", signToken(t, id), "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("second checkin status = %d, want 400", rec.Code)
	}
	if body["error_code"] != "already_checked_in" {
		t.Fatalf("error_code = %v", body["error_code"])
	}
}

func TestGameDataEndpoint(t *testing.T) {
	provider := okProvider(t, "hi")
	application, store := newTestApp(t, provider.URL, "http://127.0.0.1:1")
	id := seedUser(t, store, 75)
	h := NewHandler(application, nil)

	rec, body := doRequest(t, h, http.MethodGet, "/api/user/game-data", signToken(t, id), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %v", rec.Code, body)
	}
	data := body["data"].(map[string]any)
	if data["coins"].(float64) != 75 || data["level"].(float64) != 0 {
		t.Fatalf("unexpected data: %v", data)
	}
}

func TestFeedEndpoint(t *testing.T) {
	mirror := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"title":"hot"}]}`)
	}))
	t.Cleanup(mirror.Close)

	provider := okProvider(t, "hi")
	application, _ := newTestApp(t, provider.URL, mirror.URL)
	h := NewHandler(application, nil)

	rec, body := doRequest(t, h, http.MethodGet, "/api/60s/weibo", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %v", rec.Code, body)
	}
	if body["from_cache"] != false {
		t.Fatalf("first read from cache: %v", body)
	}

	rec, body = doRequest(t, h, http.MethodGet, "/api/60s/weibo", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["from_cache"] != true {
		t.Fatalf("second read missed cache: %v", body)
	}

	rec, body = doRequest(t, h, http.MethodGet, "/api/60s/nope", "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown feed status = %d, want 404", rec.Code)
	}
	if body["error_code"] != "unknown_feed" {
		t.Fatalf("error_code = %v", body["error_code"])
	}
}

func TestRateLimiting(t *testing.T) {
	provider := okProvider(t, "hi")
	application, store := newTestApp(t, provider.URL, "http://127.0.0.1:1")
	id := seedUser(t, store, 100000)

	cfg := application.Config()
	cfg.RateLimit = config.RateLimitConfig{RequestsPerSecond: 1, Burst: 2}
	limited, err := app.New(cfg, app.Stores{Users: store}, nil)
	if err != nil {
		t.Fatalf("rebuild application: %v", err)
	}
	h := NewHandler(limited, nil)

	var lastCode int
	var lastBody map[string]any
	for i := 0; i < 3; i++ {
		rec, body := doRequest(t, h, http.MethodPost, "/api/aimodelapp/chat", signToken(t, id), `{"messages":[{"role":"user","content":"hi"}]}`)
		lastCode, lastBody = rec.Code, body
	}
	if lastCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", lastCode)
	}
	if lastBody["error_code"] != "rate_limited" {
		t.Fatalf("error_code = %v", lastBody["error_code"])
	}
}
