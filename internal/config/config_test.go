package config

import "testing"

func withEnv(t *testing.T, kv map[string]string, fn func()) {
	t.Helper()
	for k, v := range kv {
		t.Setenv(k, v)
	}
	fn()
}

func TestLoad_RequiresManagerURL(t *testing.T) {
	withEnv(t, map[string]string{"MANAGER_URL": ""}, func() {
		if _, err := Load(); err == nil {
			t.Fatal("expected an error when MANAGER_URL is unset")
		}
	})
}

func TestLoad_Defaults(t *testing.T) {
	withEnv(t, map[string]string{
		"MANAGER_URL":               "ws://localhost:9000/control",
		"SCRAPE_CONCURRENCY":        "",
		"SCRAPE_INTER_DAY_SLEEP_MS": "",
		"LOG_LEVEL":                 "",
		"UPLOAD_MODE":               "",
	}, func() {
		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.ScrapeConcurrency != 1 {
			t.Errorf("ScrapeConcurrency default = %d, want 1", cfg.ScrapeConcurrency)
		}
		if cfg.ScrapeInterDaySleepMs != 0 {
			t.Errorf("ScrapeInterDaySleepMs default = %d, want 0", cfg.ScrapeInterDaySleepMs)
		}
		if cfg.UploadMode != "raw" {
			t.Errorf("UploadMode default = %q, want raw", cfg.UploadMode)
		}
	})
}

func TestLoad_RejectsInvalidConcurrency(t *testing.T) {
	withEnv(t, map[string]string{
		"MANAGER_URL":        "ws://localhost:9000/control",
		"SCRAPE_CONCURRENCY": "0",
	}, func() {
		if _, err := Load(); err == nil {
			t.Fatal("expected an error for SCRAPE_CONCURRENCY=0")
		}
	})
}

func TestLoad_RejectsInvalidUploadMode(t *testing.T) {
	withEnv(t, map[string]string{
		"MANAGER_URL": "ws://localhost:9000/control",
		"UPLOAD_MODE": "bogus",
	}, func() {
		if _, err := Load(); err == nil {
			t.Fatal("expected an error for an unknown UPLOAD_MODE")
		}
	})
}
