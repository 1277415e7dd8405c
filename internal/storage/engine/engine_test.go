package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/yndnr/relaygate/internal/server/config"
	"github.com/yndnr/relaygate/internal/telemetry/logger"
	"github.com/yndnr/relaygate/internal/telemetry/metric"
)

func TestOpen(t *testing.T) {
	mr := miniredis.RunT(t)

	tests := []struct {
		name    string
		mutate  func(*config.StoreSection)
		wantErr bool
		rawKey  string
	}{
		{"memory", func(c *config.StoreSection) { c.Engine = config.EngineMemory }, false, ""},
		{"badger", func(c *config.StoreSection) {
			c.Engine = config.EngineBadger
			c.Badger.DataDir = t.TempDir()
		}, false, ""},
		{"redis", func(c *config.StoreSection) {
			c.Engine = config.EngineRedis
			c.Redis.Host = mr.Host()
			port, _ := strconv.Atoi(mr.Port())
			c.Redis.Port = port
		}, false, "sfu:ping"},
		{"redis without host", func(c *config.StoreSection) {
			c.Engine = config.EngineRedis
			c.Redis.Host = ""
		}, true, ""},
		{"unknown", func(c *config.StoreSection) { c.Engine = "etcd" }, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default().Store
			tt.mutate(&cfg)
			metrics := metric.NewRegistry()

			store, err := Open(&cfg, metrics, logger.Discard())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Open() err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			defer store.Close()

			ctx := context.Background()
			if err := store.SetEX(ctx, "ping", "v", time.Minute); err != nil {
				t.Fatalf("SetEX: %v", err)
			}
			if v, err := store.Get(ctx, "ping"); err != nil || v != "v" {
				t.Fatalf("Get = %q, %v", v, err)
			}
			if tt.rawKey != "" && !mr.Exists(tt.rawKey) {
				t.Errorf("key %q not namespaced in redis; keys = %v", tt.rawKey, mr.Keys())
			}

			rec := httptest.NewRecorder()
			metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
			if !strings.Contains(rec.Body.String(), `relaygate_store_ops_total{op="setex",result="ok"} 1`) {
				t.Errorf("store op not instrumented:\n%s", rec.Body.String())
			}
		})
	}
}

func TestOpen_NilMetrics(t *testing.T) {
	cfg := config.Default().Store
	cfg.Engine = config.EngineMemory
	store, err := Open(&cfg, nil, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
