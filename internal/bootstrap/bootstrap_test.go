package bootstrap

import (
	"testing"

	"github.com/kirillkom/claim-assistant/internal/config"
)

func TestNewToolkitWithoutQueueOrCache(t *testing.T) {
	toolkit, err := NewToolkit(config.Config{BackendURL: "http://127.0.0.1:1"})
	if err != nil {
		t.Fatalf("NewToolkit() error = %v", err)
	}
	defer toolkit.Close()

	defs := toolkit.Tools.Definitions()
	if len(defs) != 7 {
		t.Fatalf("expected 7 claim tools, got %d", len(defs))
	}
	for _, def := range defs {
		if len(def.Parameters) == 0 {
			t.Fatalf("tool %s has no parameter schema", def.Name)
		}
	}
}

func TestNewToolkitRejectsBadRedisURL(t *testing.T) {
	_, err := NewToolkit(config.Config{RedisURL: "not-a-redis-url"})
	if err == nil {
		t.Fatalf("expected redis url error")
	}
}
