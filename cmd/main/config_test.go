package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/CTAG07/Sundew/pkg/engine"
)

func TestLoadConfigCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}
	if !reflect.DeepEqual(cfg, DefaultConfig()) {
		t.Errorf("expected default config, got %+v", cfg)
	}
	if _, err = os.Stat(path); err != nil {
		t.Fatalf("expected default config file to be written: %v", err)
	}

	reloaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() on written defaults failed: %v", err)
	}
	if !reflect.DeepEqual(reloaded, cfg) {
		t.Errorf("reloaded config differs from defaults: %+v", reloaded)
	}
}

func TestLoadConfigPartial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"engine_config": {"error_policy": "inline"}, "server_config": {"log_level": "debug"}}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("os.WriteFile() failed: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}
	if cfg.Engine.ErrorPolicy != engine.PolicyInline {
		t.Errorf("expected inline policy, got %q", cfg.Engine.ErrorPolicy)
	}
	if cfg.Engine.UnrecognizedMarker != engine.DefaultConfig().UnrecognizedMarker {
		t.Errorf("expected unset fields to keep defaults, got marker %q", cfg.Engine.UnrecognizedMarker)
	}
	if cfg.Server.LogLevel != "debug" || cfg.Server.ApiAddr != DefaultServerConfig().ApiAddr {
		t.Errorf("unexpected server config %+v", cfg.Server)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	testCases := map[string]string{
		"bad json":   `{"engine_config":`,
		"bad policy": `{"engine_config": {"error_policy": "explode"}}`,
	}
	for name, data := range testCases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
				t.Fatalf("os.WriteFile() failed: %v", err)
			}
			if _, err := LoadConfig(path); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestConfigManagerUpdate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cm, err := NewConfigManager(path)
	if err != nil {
		t.Fatalf("NewConfigManager() failed: %v", err)
	}
	proc := engine.NewProcessor(slog.New(slog.DiscardHandler), nil)
	cm.SetProcessor(proc)

	cfg := cm.Get()
	eng := *cfg.Engine
	eng.ErrorPolicy = engine.PolicyHalt
	cfg.Engine = &eng
	if err = cm.Update(cfg); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}

	if proc.GetConfig().ErrorPolicy != engine.PolicyHalt {
		t.Errorf("expected processor to use the halt policy")
	}
	persisted, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}
	if persisted.Engine.ErrorPolicy != engine.PolicyHalt {
		t.Errorf("expected halt policy on disk, got %q", persisted.Engine.ErrorPolicy)
	}
}

func TestParseLogLevel(t *testing.T) {
	testCases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for input, expected := range testCases {
		if got := parseLogLevel(input); got != expected {
			t.Errorf("parseLogLevel(%q) = %v, expected %v", input, got, expected)
		}
	}
}
