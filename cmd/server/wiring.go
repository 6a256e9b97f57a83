package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/linnemanlabs/go-core/log"

	vc "github.com/linnemanlabs/vettriage/internal/cfg"
	"github.com/linnemanlabs/vettriage/internal/postgres"
	"github.com/linnemanlabs/vettriage/internal/rules"
	"github.com/linnemanlabs/vettriage/internal/triage"
	"github.com/linnemanlabs/vettriage/internal/triage/memstore"
	"github.com/linnemanlabs/vettriage/internal/triage/pgstore"
	"github.com/linnemanlabs/vettriage/internal/vqa"
	"github.com/linnemanlabs/vettriage/internal/vqa/claude"
	"github.com/linnemanlabs/vettriage/internal/vqa/inferhttp"
	"github.com/linnemanlabs/vettriage/internal/vqa/static"
)

// newBackend builds the model backend selected by -vqa-backend.
func newBackend(c *vc.Config) (vqa.Backend, error) {
	switch c.Backend {
	case vc.BackendInferHTTP:
		return inferhttp.New(c.InferenceURL, c.VQAModel), nil
	case vc.BackendClaude:
		return claude.New(c.ClaudeAPIKey, c.ClaudeModel), nil
	case vc.BackendStatic:
		return static.New(c.StaticAnswer), nil
	default:
		return nil, fmt.Errorf("unknown vqa backend %q", c.Backend)
	}
}

// loadRules returns the built-in rules unless a rules file is configured.
func loadRules(path string) (*rules.Ruleset, error) {
	if path == "" {
		return rules.Default(), nil
	}
	return rules.Load(path)
}

// newStore opens the postgres run log when a database URL is configured and
// falls back to the in-memory store otherwise. The returned close func is
// never nil.
func newStore(ctx context.Context, c *vc.Config, observer postgres.QueryObserver, L log.Logger) (triage.Store, func(), error) {
	if c.DatabaseURL == "" {
		L.Info(ctx, "using in-memory store (no database-url configured)", "limit", c.MemstoreLimit)
		return memstore.New(c.MemstoreLimit), func() {}, nil
	}

	pool, err := postgres.NewPool(ctx, c.DatabaseURL, postgres.Options{
		Observer:  observer,
		SlowQuery: time.Duration(c.SlowQueryMillis) * time.Millisecond,
		MaxConns:  int32(c.DBMaxConns), //nolint:gosec // bounded by Validate
	})
	if err != nil {
		return nil, nil, fmt.Errorf("postgres pool: %w", err)
	}
	s, err := pgstore.New(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pgstore init: %w", err)
	}
	L.Info(ctx, "using postgres store")
	return s, pool.Close, nil
}

// waitCtx runs wait and returns once it finishes or ctx is done.
func waitCtx(ctx context.Context, wait func()) error {
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func notifySystemd() error {
	// systemd will set NOTIFY_SOCKET to a unix socket path if we were started under systemd with type=notify
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr) //nolint:gosec,noctx // G704: addr is from NOTIFY_SOCKET set by systemd not user input, no context support in net package for unixgram sockets
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	defer func() { _ = conn.Close() }()
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		return fmt.Errorf("systemd notify failed: write failed: %w", err)
	}
	return nil
}
