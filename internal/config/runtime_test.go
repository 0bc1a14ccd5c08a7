package config

import "testing"

func TestRuntimeConfig_NilReceiverReturnsDefaults(t *testing.T) {
	var rc *RuntimeConfig
	if got := rc.GetMaxConnectionsPerHost(); got != DefaultMaxConnectionsPerHost {
		t.Errorf("GetMaxConnectionsPerHost() on nil = %d, want %d", got, DefaultMaxConnectionsPerHost)
	}
	if got := rc.GetUserAgent(); got != DefaultUserAgent {
		t.Errorf("GetUserAgent() on nil = %s, want %s", got, DefaultUserAgent)
	}
	if got := rc.GetMinChunkSize(); got != MinChunk {
		t.Errorf("GetMinChunkSize() on nil = %d, want %d", got, MinChunk)
	}
	if got := rc.GetWorkerBufferSize(); got != WorkerBuffer {
		t.Errorf("GetWorkerBufferSize() on nil = %d, want %d", got, WorkerBuffer)
	}
	if got := rc.GetMaxTaskRetries(); got != MaxTaskRetries {
		t.Errorf("GetMaxTaskRetries() on nil = %d, want %d", got, MaxTaskRetries)
	}
	if got := rc.GetStallTimeout(); got != StallTimeout {
		t.Errorf("GetStallTimeout() on nil = %v, want %v", got, StallTimeout)
	}
}

func TestRuntimeConfig_ZeroFieldsFallBackToDefaults(t *testing.T) {
	rc := &RuntimeConfig{}
	if got := rc.GetMaxConnectionsPerHost(); got != DefaultMaxConnectionsPerHost {
		t.Errorf("got %d, want %d", got, DefaultMaxConnectionsPerHost)
	}
	if got := rc.GetMaxTaskRetries(); got != MaxTaskRetries {
		t.Errorf("got %d, want %d", got, MaxTaskRetries)
	}
}

func TestRuntimeConfig_CustomValuesPassThrough(t *testing.T) {
	rc := &RuntimeConfig{
		MaxConnectionsPerHost: 16,
		UserAgent:             "custom/1.0",
		MinChunkSize:          2 * MB,
		WorkerBufferSize:      128 * KB,
		MaxTaskRetries:        5,
		StallTimeout:          30 * StallTimeout,
	}
	if got := rc.GetMaxConnectionsPerHost(); got != 16 {
		t.Errorf("got %d, want 16", got)
	}
	if got := rc.GetUserAgent(); got != "custom/1.0" {
		t.Errorf("got %s, want custom/1.0", got)
	}
	if got := rc.GetMinChunkSize(); got != 2*MB {
		t.Errorf("got %d, want %d", got, 2*MB)
	}
	if got := rc.GetWorkerBufferSize(); got != 128*KB {
		t.Errorf("got %d, want %d", got, 128*KB)
	}
	if got := rc.GetMaxTaskRetries(); got != 5 {
		t.Errorf("got %d, want 5", got)
	}
}

func TestRuntimeConfig_MaxConnectionsClampedToPerHostMax(t *testing.T) {
	rc := &RuntimeConfig{MaxConnectionsPerHost: PerHostMax + 100}
	if got := rc.GetMaxConnectionsPerHost(); got != PerHostMax {
		t.Errorf("expected clamp to PerHostMax=%d, got %d", PerHostMax, got)
	}
}

func TestDefaultSettings_HasSaneDefaults(t *testing.T) {
	s := DefaultSettings()
	if s.MaxConnections != DefaultMaxConnectionsPerHost {
		t.Errorf("expected default connections %d, got %d", DefaultMaxConnectionsPerHost, s.MaxConnections)
	}
	if s.UserAgent != DefaultUserAgent {
		t.Errorf("expected default user agent %s, got %s", DefaultUserAgent, s.UserAgent)
	}
	if s.SpeedLimitBytesPerS != 0 {
		t.Errorf("expected unlimited (0) default speed limit, got %d", s.SpeedLimitBytesPerS)
	}
}

func TestSaveAndLoadSettings_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	SetDirOverride(dir)
	t.Cleanup(func() { SetDirOverride("") })

	want := Settings{
		DefaultDownloadDir:  "/tmp/downloads",
		MaxConnections:      8,
		SpeedLimitBytesPerS: 500_000,
		UserAgent:           "briskdl-test/2.0",
	}
	if err := SaveSettings(want); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}

	got, err := LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if got != want {
		t.Errorf("round-trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestLoadSettings_MissingFileReturnsDefaults(t *testing.T) {
	SetDirOverride(t.TempDir())
	t.Cleanup(func() { SetDirOverride("") })

	got, err := LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if got.MaxConnections != DefaultMaxConnectionsPerHost {
		t.Errorf("expected defaults when no settings file exists, got %+v", got)
	}
}
