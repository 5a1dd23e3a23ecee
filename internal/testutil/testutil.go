// Package testutil holds shared helpers for package tests: temp-backed
// stores and journals plus scripted provider and channel doubles.
package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"

	"github.com/tjohnman/modular-ai-agent/internal/journal"
	"github.com/tjohnman/modular-ai-agent/internal/provider"
	"github.com/tjohnman/modular-ai-agent/internal/store"
	"github.com/tjohnman/modular-ai-agent/internal/tool"
)

func OpenTestDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")
	db, err := journal.Open(path)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	return db, func() {
		_ = db.Close()
	}
}

func OpenTestStore(t *testing.T, opts ...store.Option) *store.Store {
	t.Helper()
	dir := t.TempDir()
	st, err := store.New(filepath.Join(dir, "sessions"), filepath.Join(dir, "memory"), opts...)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return st
}

// ScriptedProvider returns queued responses in order and records every
// Generate call. Once the script runs out it answers with Fallback.
type ScriptedProvider struct {
	mu        sync.Mutex
	Responses []provider.Response
	Fallback  provider.Response
	Err       error

	Calls [][]store.Message
	usage provider.Usage
}

func (p *ScriptedProvider) Generate(ctx context.Context, messages []store.Message, tools []tool.Schema) (provider.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	copied := make([]store.Message, len(messages))
	copy(copied, messages)
	p.Calls = append(p.Calls, copied)
	p.usage.TotalTokens += 10
	if p.Err != nil {
		return provider.Response{}, p.Err
	}
	if len(p.Responses) > 0 {
		resp := p.Responses[0]
		p.Responses = p.Responses[1:]
		return resp, nil
	}
	return p.Fallback, nil
}

func (p *ScriptedProvider) Usage() provider.Usage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.usage
}

func (p *ScriptedProvider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
