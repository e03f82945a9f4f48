package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/go-bangla-bpe/internal/config"
	"github.com/example/go-bangla-bpe/internal/testutil"
)

func freeAddr(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	addr := ln.Addr().String()
	ln.Close() // free it for the server

	return addr
}

func TestStart_LifecycleHealthAndShutdown(t *testing.T) {
	dir := t.TempDir()
	merges, vocab := testutil.WriteDemoArtifacts(t, dir)
	addr := freeAddr(t)

	cfg := config.DefaultConfig()
	cfg.Paths.MergesPath = merges
	cfg.Paths.VocabPath = vocab
	cfg.Server.ListenAddr = addr

	s := New(cfg, nil).WithShutdownTimeout(2 * time.Second)
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)

	go func() {
		errCh <- s.Start(ctx)
	}()

	// Wait for the server to be ready.
	var err error
	for range 50 {
		if err = ProbeHTTP(addr); err == nil {
			break
		}

		time.Sleep(20 * time.Millisecond)
	}

	if err != nil {
		t.Fatalf("server never became ready: %v", err)
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s/model", addr))
	if err != nil {
		t.Fatalf("GET /model: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode /model: %v", err)
	}

	if body["complete"] != true {
		t.Errorf("complete = %v; want true", body["complete"])
	}

	// Graceful shutdown.
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Start() returned error on shutdown: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return within 5s of context cancel")
	}
}

func TestStart_RejectsUnreadableArtifacts(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "vocab.json")
	if err := os.WriteFile(bad, []byte("nope"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	cfg.Paths.MergesPath = filepath.Join(dir, "missing.txt")
	cfg.Paths.VocabPath = bad
	cfg.Server.ListenAddr = freeAddr(t)

	s := New(cfg, nil)
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	if err := s.Start(context.Background()); err == nil {
		t.Fatal("Start() = nil; want load error")
	}
}

func TestStart_RejectsBadStrategy(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Encode.Strategy = "fastest"

	if err := New(cfg, nil).Start(context.Background()); err == nil {
		t.Fatal("Start() = nil; want strategy error")
	}
}

func TestNew_ShutdownTimeoutFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.ShutdownTimeout = 7

	if got := New(cfg, nil).shutdownTimeout; got != 7*time.Second {
		t.Errorf("shutdownTimeout = %v; want 7s", got)
	}
}

func TestProbeHTTP_Failures(t *testing.T) {
	if err := ProbeHTTP(freeAddr(t)); err == nil {
		t.Error("ProbeHTTP(closed port) = nil; want error")
	}
}
