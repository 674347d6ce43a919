package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	uimorn "github.com/venikman/ui-morn"
	"github.com/venikman/ui-morn/internal/config"
	"github.com/venikman/ui-morn/pkg/adapters/memory"
	"github.com/venikman/ui-morn/pkg/adapters/redis"
	"github.com/venikman/ui-morn/pkg/persistence/middleware"
	"github.com/venikman/ui-morn/pkg/ports"
	"github.com/venikman/ui-morn/pkg/scenario"
	"github.com/venikman/ui-morn/pkg/tools"
)

// newEngine builds the engine described by c. The returned func releases the
// audit mirror and must run after the engine has shut down.
func newEngine(ctx context.Context, c config.Config, logger *slog.Logger) (*uimorn.Engine, func() error, error) {
	mirror, closeMirror, err := newMirror(ctx, c, logger)
	if err != nil {
		return nil, nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	eng := uimorn.New(
		uimorn.WithLogger(logger),
		uimorn.WithBuffer(c.Stream.Buffer),
		uimorn.WithRetention(c.Retention.MaxEvents, c.Retention.TTL, c.Retention.MaxOwners),
		uimorn.WithMirror(mirror),
		uimorn.WithMetrics(reg),
		uimorn.WithBuiltinOptions(tools.WithAllowlist(c.Tools.Allowlist...)),
		uimorn.WithScenarioOptions(scenario.WithChunkDelay(c.Scenario.ChunkDelay)),
	)
	return eng, closeMirror, nil
}

func newMirror(ctx context.Context, c config.Config, logger *slog.Logger) (ports.MirrorStore, func() error, error) {
	redact, err := middleware.NewPIIMiddleware(c.Audit.Redact)
	if err != nil {
		return nil, nil, fmt.Errorf("audit.redact: %w", err)
	}
	store, closeStore, err := openMirror(ctx, c, logger)
	if err != nil {
		return nil, nil, err
	}
	return middleware.Chain(store, redact), closeStore, nil
}

func openMirror(ctx context.Context, c config.Config, logger *slog.Logger) (ports.MirrorStore, func() error, error) {
	if c.Redis.Addr == "" {
		logger.Info("audit mirror: in-memory", "max_len", c.Audit.MaxLen)
		return memory.NewStore(memory.WithMaxLen(c.Audit.MaxLen)), func() error { return nil }, nil
	}

	sink := redis.New(c.Redis.Addr, c.Redis.Password, c.Redis.DB,
		redis.WithPrefix(c.Redis.Stream),
		redis.WithMaxLen(c.Redis.MaxLen),
		redis.WithTTL(c.Redis.TTL),
		redis.WithLogger(logger),
	)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := sink.Ping(pingCtx); err != nil {
		_ = sink.Close()
		return nil, nil, fmt.Errorf("connect redis %s: %w", c.Redis.Addr, err)
	}
	logger.Info("audit mirror: redis", "addr", c.Redis.Addr, "prefix", c.Redis.Stream)
	return sink, sink.Close, nil
}
