package replayfetch

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

func serve(t *testing.T, h fasthttp.RequestHandler) fasthttp.DialFunc {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: h}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Shutdown(); _ = ln.Close() })
	return func(addr string) (net.Conn, error) { return ln.Dial() }
}

func TestFetchBody(t *testing.T) {
	payload := bytes.Repeat([]byte("[replay]\n"), 100)
	dial := serve(t, func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) != "/r/game.gz" { ctx.SetStatusCode(fasthttp.StatusNotFound); return }
		ctx.SetBody(payload)
	})
	c := NewClient(WithDial(dial))

	got, err := c.Fetch(context.Background(), "http://replays.test/r/game.gz")
	if err != nil { t.Fatalf("Fetch: %v", err) }
	if !bytes.Equal(got, payload) { t.Fatalf("body mismatch: %d bytes", len(got)) }

	var serr *StatusError
	if _, err := c.Fetch(context.Background(), "http://replays.test/missing"); !errors.As(err, &serr) || serr.Code != 404 {
		t.Fatalf("expected 404 StatusError, got %v", err)
	}
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	dial := serve(t, func(ctx *fasthttp.RequestCtx) {
		if calls.Add(1) < 3 { ctx.SetStatusCode(fasthttp.StatusBadGateway); return }
		ctx.SetBodyString("ok")
	})
	c := NewClient(WithDial(dial), WithRetry(3))
	got, err := c.Fetch(context.Background(), "http://replays.test/x")
	if err != nil || string(got) != "ok" { t.Fatalf("Fetch: %q %v", got, err) }
	if calls.Load() != 3 { t.Fatalf("expected 3 attempts, got %d", calls.Load()) }
}

func TestFetchSizeLimit(t *testing.T) {
	var calls atomic.Int32
	dial := serve(t, func(ctx *fasthttp.RequestCtx) {
		calls.Add(1)
		ctx.SetBody(make([]byte, 4096))
	})
	c := NewClient(WithDial(dial), WithMaxBytes(1024), WithRetry(3))
	if _, err := c.Fetch(context.Background(), "http://replays.test/big"); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if calls.Load() != 1 { t.Fatalf("oversized body must not be retried, got %d calls", calls.Load()) }
}

func TestFetchRejectsNonHTTP(t *testing.T) {
	c := NewClient()
	if _, err := c.Fetch(context.Background(), "file:///etc/passwd"); !errors.Is(err, ErrInvalidURL) {
		t.Fatalf("expected ErrInvalidURL, got %v", err)
	}
}

func TestFetchContextCanceled(t *testing.T) {
	dial := serve(t, func(ctx *fasthttp.RequestCtx) { ctx.SetStatusCode(fasthttp.StatusServiceUnavailable) })
	c := NewClient(WithDial(dial), WithRetry(5), WithTimeout(time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	start := time.Now()
	if _, err := c.Fetch(ctx, "http://replays.test/x"); err == nil { t.Fatalf("expected error") }
	if time.Since(start) > time.Second { t.Fatalf("retry loop ignored context cancellation") }
}
