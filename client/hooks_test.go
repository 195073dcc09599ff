package client

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dan-strohschein/tuplebatch/transport/mock"
)

// TestHook is a simple hook for testing.
type TestHook struct {
	name         string
	mu           sync.Mutex
	beforeCalled int
	afterCalled  int
	beforeError  error
	afterError   error
	lastCtx      HookContext
}

func (h *TestHook) Name() string {
	return h.name
}

func (h *TestHook) Before(ctx context.Context, hookCtx *HookContext) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.beforeCalled++
	return h.beforeError
}

func (h *TestHook) After(ctx context.Context, hookCtx *HookContext) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.afterCalled++
	h.lastCtx = *hookCtx
	return h.afterError
}

func (h *TestHook) calls() (before, after int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.beforeCalled, h.afterCalled
}

func newHookTestClient(t *testing.T) *Client {
	t.Helper()
	opts := DefaultOptions()
	opts.LogLevel = "ERROR"
	client, err := NewClient(mock.NewMockTransport(), &opts)
	if err != nil {
		t.Fatalf("NewClient() failed: %v", err)
	}
	return client
}

// TestHookRegistration verifies hooks can be registered and unregistered.
func TestHookRegistration(t *testing.T) {
	client := newHookTestClient(t)

	hook1 := &TestHook{name: "hook1"}
	hook2 := &TestHook{name: "hook2"}

	client.RegisterHook(hook1)
	client.RegisterHook(hook2)

	hooks := client.GetHooks()
	if len(hooks) != 2 {
		t.Errorf("expected 2 hooks, got %d", len(hooks))
	}

	if hooks[0] != "hook1" || hooks[1] != "hook2" {
		t.Errorf("unexpected hook order: %v", hooks)
	}

	if !client.UnregisterHook("hook1") {
		t.Error("expected UnregisterHook to return true")
	}

	hooks = client.GetHooks()
	if len(hooks) != 1 || hooks[0] != "hook2" {
		t.Errorf("expected [hook2] after unregister, got %v", hooks)
	}

	if client.UnregisterHook("nonexistent") {
		t.Error("expected UnregisterHook to return false for non-existent hook")
	}
}

// TestHookReplacement verifies replacing a hook with the same name.
func TestHookReplacement(t *testing.T) {
	client := newHookTestClient(t)

	hook1 := &TestHook{name: "test", beforeError: errors.New("error1")}
	hook2 := &TestHook{name: "test", beforeError: errors.New("error2")}

	client.RegisterHook(hook1)
	client.RegisterHook(hook2)

	hooks := client.GetHooks()
	if len(hooks) != 1 {
		t.Errorf("expected 1 hook after replacement, got %d", len(hooks))
	}

	hookCtx := &HookContext{Metadata: make(map[string]interface{})}
	_, err := client.executeBeforeHooks(client.snapshotHooks(), hookCtx)
	if err == nil || err.Error() != "error2" {
		t.Errorf("expected error2, got %v", err)
	}
}

// OrderTrackingHook tracks execution order for testing.
type OrderTrackingHook struct {
	name  string
	order *[]string
}

func (h *OrderTrackingHook) Name() string {
	return h.name
}

func (h *OrderTrackingHook) Before(ctx context.Context, hookCtx *HookContext) error {
	*h.order = append(*h.order, h.name+".before")
	return nil
}

func (h *OrderTrackingHook) After(ctx context.Context, hookCtx *HookContext) error {
	*h.order = append(*h.order, h.name+".after")
	return nil
}

// TestHookExecutionOrder verifies hooks execute in FIFO order around a send.
func TestHookExecutionOrder(t *testing.T) {
	client := newHookTestClient(t)

	var order []string
	client.RegisterHook(&OrderTrackingHook{name: "first", order: &order})
	client.RegisterHook(&OrderTrackingHook{name: "second", order: &order})
	client.RegisterHook(&OrderTrackingHook{name: "third", order: &order})

	chunk := testChunk(0, 2)
	if err := client.sendAttempt(context.Background(), chunk, 1, false); err != nil {
		t.Fatalf("sendAttempt() failed: %v", err)
	}

	expected := []string{
		"first.before", "second.before", "third.before",
		"first.after", "second.after", "third.after",
	}
	if len(order) != len(expected) {
		t.Fatalf("expected %d hook executions, got %v", len(expected), order)
	}
	for i := range expected {
		if order[i] != expected[i] {
			t.Errorf("unexpected execution order: %v", order)
			break
		}
	}
}

// TestBeforeHookAbort verifies a Before hook can abort the send.
func TestBeforeHookAbort(t *testing.T) {
	tr := mock.NewMockTransport()
	client, err := NewClient(tr, &ClientOptions{LogLevel: "ERROR"})
	if err != nil {
		t.Fatalf("NewClient() failed: %v", err)
	}

	hook1 := &TestHook{name: "abort", beforeError: errors.New("aborted")}
	hook2 := &TestHook{name: "never-called"}
	client.RegisterHook(hook1)
	client.RegisterHook(hook2)

	err = client.sendAttempt(context.Background(), testChunk(0, 1), 1, false)
	if err == nil || err.Error() != "aborted" {
		t.Errorf("expected abort error, got %v", err)
	}

	if before, after := hook2.calls(); before != 0 || after != 0 {
		t.Error("expected second hook to not be called after abort")
	}
	if _, after := hook1.calls(); after != 1 {
		t.Error("expected the aborting hook to see After")
	}
	if tr.GetSendCallCount() != 0 {
		t.Errorf("expected no send after abort, got %d", tr.GetSendCallCount())
	}
}

// TestAfterHookErrorIgnored verifies After hook errors never change the outcome.
func TestAfterHookErrorIgnored(t *testing.T) {
	client := newHookTestClient(t)

	hook1 := &TestHook{name: "first", afterError: errors.New("error1")}
	hook2 := &TestHook{name: "second"}
	client.RegisterHook(hook1)
	client.RegisterHook(hook2)

	if err := client.sendAttempt(context.Background(), testChunk(0, 1), 1, false); err != nil {
		t.Errorf("expected After errors to be ignored, got %v", err)
	}

	if _, after := hook2.calls(); after != 1 {
		t.Error("expected all After hooks to be called")
	}
}

// TestHookContextPopulated verifies the attempt details handed to hooks.
func TestHookContextPopulated(t *testing.T) {
	tr := mock.NewMockTransport().WithSendError(errors.New("boom"))
	client, err := NewClient(tr, &ClientOptions{LogLevel: "ERROR"})
	if err != nil {
		t.Fatalf("NewClient() failed: %v", err)
	}

	hook := &TestHook{name: "capture"}
	client.RegisterHook(hook)

	chunk := testChunk(4, 3)
	_ = client.sendAttempt(context.Background(), chunk, 2, true)

	got := hook.lastCtx
	if got.ChunkIndex != 4 || got.Attempt != 2 || got.Operations != 3 {
		t.Errorf("unexpected hook context: %+v", got)
	}
	if !got.Transactional {
		t.Error("expected Transactional to be set")
	}
	if got.Fingerprint != chunk.Fingerprint() {
		t.Error("expected chunk fingerprint in hook context")
	}
	if got.TraceID == "" {
		t.Error("expected trace ID")
	}
	if got.Error == nil || got.Error.Error() != "boom" {
		t.Errorf("expected send error in After, got %v", got.Error)
	}
}

// MetadataHook passes data from Before to After.
type MetadataHook struct {
	seen bool
}

func (h *MetadataHook) Name() string {
	return "metadata"
}

func (h *MetadataHook) Before(ctx context.Context, hookCtx *HookContext) error {
	hookCtx.Metadata["marker"] = hookCtx.TraceID
	return nil
}

func (h *MetadataHook) After(ctx context.Context, hookCtx *HookContext) error {
	h.seen = hookCtx.Metadata["marker"] == hookCtx.TraceID
	return nil
}

// TestHookMetadataPassing verifies metadata survives from Before to After.
func TestHookMetadataPassing(t *testing.T) {
	client := newHookTestClient(t)

	hook := &MetadataHook{}
	client.RegisterHook(hook)

	if err := client.sendAttempt(context.Background(), testChunk(0, 1), 1, false); err != nil {
		t.Fatalf("sendAttempt() failed: %v", err)
	}
	if !hook.seen {
		t.Error("expected metadata set in Before to be visible in After")
	}
}
