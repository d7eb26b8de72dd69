package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/solace-labs/solace/internal/llm"
)

// fakeCreds satisfies CredentialSource without touching the OS keyring.
type fakeCreds struct {
	key string
	err error
}

func (f *fakeCreds) Has() bool            { return f.key != "" }
func (f *fakeCreds) Get() (string, error) { return f.key, f.err }

// fakeLLM records the last request and returns a canned response.
type fakeLLM struct {
	resp    *llm.Response
	err     error
	lastReq llm.Request
	calls   int
}

func (f *fakeLLM) Name() string { return "fake" }

func (f *fakeLLM) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	f.lastReq = req
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func newTestInvoker(creds CredentialSource, provider llm.Provider) *Invoker {
	return NewInvoker(creds, "test-model", func(string) llm.Provider { return provider })
}

func TestInvokeNoCredential(t *testing.T) {
	provider := &fakeLLM{}
	inv := newTestInvoker(&fakeCreds{}, provider)

	res := inv.Invoke(context.Background(), "system", nil, "hello")
	if res.Source != SourceFallback || res.Text != FallbackNoCredential {
		t.Errorf("missing credential result = %+v", res)
	}
	if provider.calls != 0 {
		t.Error("no network call may happen without a credential")
	}
}

func TestInvokeTransportFailureNoRetry(t *testing.T) {
	provider := &fakeLLM{err: errors.New("connection refused")}
	inv := newTestInvoker(&fakeCreds{key: "sk-test"}, provider)

	res := inv.Invoke(context.Background(), "system", nil, "hello")
	if res.Source != SourceFallback || res.Text != FallbackConnection {
		t.Errorf("transport failure result = %+v", res)
	}
	if provider.calls != 1 {
		t.Errorf("calls = %d, want exactly 1 (no retry)", provider.calls)
	}
	if res.InputTokens != 0 || res.OutputTokens != 0 {
		t.Error("fallback must carry zero usage")
	}
}

func TestInvokeSuccess(t *testing.T) {
	provider := &fakeLLM{resp: &llm.Response{
		Content:      "hi there",
		Model:        "test-model",
		InputTokens:  42,
		OutputTokens: 7,
	}}
	inv := newTestInvoker(&fakeCreds{key: "sk-test"}, provider)

	res := inv.Invoke(context.Background(), "the system prompt", nil, "hello")
	if res.Source != SourceModel || res.Text != "hi there" {
		t.Errorf("success result = %+v", res)
	}
	if res.InputTokens != 42 || res.OutputTokens != 7 {
		t.Errorf("usage not propagated: %+v", res)
	}
	if provider.lastReq.System != "the system prompt" {
		t.Errorf("system prompt not sent: %q", provider.lastReq.System)
	}
}

func TestInvokeHistoryWindow(t *testing.T) {
	provider := &fakeLLM{resp: &llm.Response{Content: "ok"}}
	inv := newTestInvoker(&fakeCreds{key: "sk-test"}, provider)

	var history []llm.Message
	for i := 0; i < 10; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		history = append(history, llm.Message{Role: role, Content: fmt.Sprintf("msg %d", i)})
	}

	inv.Invoke(context.Background(), "system", history, "current")

	msgs := provider.lastReq.Messages
	if len(msgs) != historyWindow+1 {
		t.Fatalf("outbound messages = %d, want %d", len(msgs), historyWindow+1)
	}
	// The 6 most recent survive; msg 0..3 are dropped.
	if msgs[0].Content != "msg 4" {
		t.Errorf("oldest surviving message = %q, want msg 4", msgs[0].Content)
	}
	if msgs[len(msgs)-1].Content != "current" {
		t.Errorf("current message must be last, got %q", msgs[len(msgs)-1].Content)
	}
}

func TestInvokeShortHistoryUntouched(t *testing.T) {
	provider := &fakeLLM{resp: &llm.Response{Content: "ok"}}
	inv := newTestInvoker(&fakeCreds{key: "sk-test"}, provider)

	history := []llm.Message{
		{Role: "user", Content: "one"},
		{Role: "assistant", Content: "two"},
	}
	inv.Invoke(context.Background(), "system", history, "three")

	if len(provider.lastReq.Messages) != 3 {
		t.Errorf("short history should pass through whole, got %d messages", len(provider.lastReq.Messages))
	}
}
