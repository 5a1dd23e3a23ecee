package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tjohnman/modular-ai-agent/internal/store"
	"github.com/tjohnman/modular-ai-agent/internal/tool"
)

type flakyProvider struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakyProvider) Generate(ctx context.Context, messages []store.Message, tools []tool.Schema) (Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return Response{}, fmt.Errorf("transient failure %d", f.calls)
	}
	return Response{Text: "ok"}, nil
}

func (f *flakyProvider) Usage() Usage {
	return Usage{TotalTokens: 42}
}

func (f *flakyProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	inner := &flakyProvider{failures: 2}
	r := WithRetry(inner, nil)
	r.Backoff = time.Millisecond

	resp, err := r.Generate(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Text != "ok" {
		t.Fatalf("got %q", resp.Text)
	}
	if inner.callCount() != 3 {
		t.Fatalf("got %d calls, want 3", inner.callCount())
	}
}

func TestRetryExhaustion(t *testing.T) {
	inner := &flakyProvider{failures: 100}
	r := WithRetry(inner, nil)
	r.Backoff = time.Millisecond

	_, err := r.Generate(context.Background(), nil, nil)
	if err == nil {
		t.Fatal("expected terminal error")
	}
	if !strings.Contains(err.Error(), "provider failed after 4 attempts") {
		t.Fatalf("error %q does not report attempts", err)
	}
	if inner.callCount() != 4 {
		t.Fatalf("got %d calls, want 4", inner.callCount())
	}
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	inner := &flakyProvider{failures: 100}
	r := WithRetry(inner, nil)
	r.Backoff = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := r.Generate(ctx, nil, nil)
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Fatalf("got %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("retry did not honor cancellation during backoff")
	}
	if inner.callCount() != 1 {
		t.Fatalf("got %d calls, want 1", inner.callCount())
	}
}

func TestRetryUsagePassThrough(t *testing.T) {
	r := WithRetry(&flakyProvider{}, nil)
	if got := r.Usage().TotalTokens; got != 42 {
		t.Fatalf("usage %d, want 42", got)
	}
}
