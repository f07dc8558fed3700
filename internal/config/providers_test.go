package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadProvidersDefaults(t *testing.T) {
	path := writeTemp(t, "providers.yaml", `providers:
  deepseek:
    api_base: https://api.deepseek.com
    api_key: sk-test
    model: deepseek-chat
    max_retries: 3
    default: true
  kimi:
    api_base: https://api.moonshot.cn
    api_key: sk-test
    model: kimi-k2-0905-preview
    completions_path: /v1/chat/completions
    timeout_seconds: 30
`)

	providers, err := LoadProviders(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(providers) != 2 {
		t.Fatalf("providers = %d, want 2", len(providers))
	}

	byName := make(map[string]Provider)
	for _, p := range providers {
		byName[p.Name] = p
	}

	deepseek := byName["deepseek"]
	if !deepseek.Default || deepseek.MaxRetries != 3 {
		t.Fatalf("unexpected deepseek: %+v", deepseek)
	}
	if deepseek.CompletionsPath != "/chat/completions" {
		t.Fatalf("completions_path = %q, want default", deepseek.CompletionsPath)
	}
	if deepseek.Timeout != 90*time.Second {
		t.Fatalf("timeout = %v, want default 90s", deepseek.Timeout)
	}

	kimi := byName["kimi"]
	if kimi.MaxRetries != 1 {
		t.Fatalf("kimi max_retries = %d, want default 1", kimi.MaxRetries)
	}
	if kimi.Timeout != 30*time.Second {
		t.Fatalf("kimi timeout = %v, want 30s", kimi.Timeout)
	}
}

func TestLoadProvidersAPIKeyFromEnv(t *testing.T) {
	t.Setenv("TEST_DEEPSEEK_KEY", "sk-from-env")
	path := writeTemp(t, "providers.yaml", `providers:
  deepseek:
    api_base: https://api.deepseek.com
    api_key_env: TEST_DEEPSEEK_KEY
    model: deepseek-chat
    default: true
`)

	providers, err := LoadProviders(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if providers[0].APIKey != "sk-from-env" {
		t.Fatalf("api key = %q", providers[0].APIKey)
	}
}

func TestLoadProvidersRequiresExactlyOneDefault(t *testing.T) {
	none := writeTemp(t, "providers.yaml", `providers:
  deepseek:
    api_base: https://api.deepseek.com
    model: deepseek-chat
`)
	if _, err := LoadProviders(none); err == nil {
		t.Fatal("expected error with no default provider")
	}

	two := writeTemp(t, "providers.yaml", `providers:
  deepseek:
    api_base: https://api.deepseek.com
    model: deepseek-chat
    default: true
  kimi:
    api_base: https://api.moonshot.cn
    model: kimi-k2-0905-preview
    default: true
`)
	if _, err := LoadProviders(two); err == nil {
		t.Fatal("expected error with two default providers")
	}
}

func TestLoadFeedsDefaults(t *testing.T) {
	path := writeTemp(t, "feeds.yaml", `feeds:
  weibo:
    mirrors:
      - https://a.example/weibo
      - https://b.example/weibo
  maoyan:
    mirrors:
      - https://a.example/maoyan
    ttl_seconds: 600
    limit: 20
`)

	feeds, err := LoadFeeds(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	byKey := make(map[string]Feed)
	for _, f := range feeds {
		byKey[f.Key] = f
	}

	weibo := byKey["weibo"]
	if weibo.TTL != 5*time.Minute || weibo.Limit != 50 {
		t.Fatalf("unexpected weibo defaults: %+v", weibo)
	}
	if len(weibo.Mirrors) != 2 {
		t.Fatalf("mirrors = %d, want 2", len(weibo.Mirrors))
	}

	maoyan := byKey["maoyan"]
	if maoyan.TTL != 10*time.Minute || maoyan.Limit != 20 {
		t.Fatalf("unexpected maoyan: %+v", maoyan)
	}
}

func TestLoadFeedsRequiresMirrors(t *testing.T) {
	path := writeTemp(t, "feeds.yaml", `feeds:
  weibo:
    ttl_seconds: 60
`)
	if _, err := LoadFeeds(path); err == nil {
		t.Fatal("expected error for feed without mirrors")
	}
}
