package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/solace-labs/solace/internal/llm"
)

// historyWindow bounds the outbound message list to the 6 most recent
// prior messages (3 exchanges). Older history is dropped, not
// summarized; long-horizon recall is the memory providers' job.
const historyWindow = 6

// invokeTimeout bounds the single model call per turn.
const invokeTimeout = 60 * time.Second

// Fallback texts. Both carry zero cost and source "fallback".
const (
	FallbackNoCredential = "I'm not fully set up yet: no API key is configured, so I can't reach my language model. Ask the person running me to add one with the /key command."
	FallbackConnection   = "I'm having trouble connecting right now. Give me a moment and try again; your message wasn't lost."
)

// CredentialSource is the narrow view of the credential store the
// invoker needs.
type CredentialSource interface {
	Has() bool
	Get() (string, error)
}

// ProviderFactory builds an LLM provider from an API key.
type ProviderFactory func(apiKey string) llm.Provider

// InvokeResult is the outcome of one model invocation, fallback or real.
type InvokeResult struct {
	Text         string
	Source       string // SourceModel or SourceFallback
	Model        string
	InputTokens  int
	OutputTokens int
}

// Invoker performs the single network call of a turn. One request, no
// retries: a failed call becomes a fallback response immediately.
type Invoker struct {
	creds     CredentialSource
	model     string
	maxTokens int
	factory   ProviderFactory

	mu        sync.Mutex
	cached    llm.Provider
	cachedKey string
}

// NewInvoker creates an invoker. A nil factory defaults to the
// Anthropic provider.
func NewInvoker(creds CredentialSource, model string, factory ProviderFactory) *Invoker {
	if factory == nil {
		factory = func(apiKey string) llm.Provider {
			return llm.NewAnthropic(apiKey, model)
		}
	}
	return &Invoker{creds: creds, model: model, factory: factory}
}

// SetMaxTokens bounds the model's output per request. Zero leaves the
// provider default in place.
func (i *Invoker) SetMaxTokens(n int) {
	i.maxTokens = n
}

// Invoke sends the composed prompt plus the bounded history window to
// the model. Missing credentials and transport failures both resolve
// to fallback results; Invoke never returns an error.
func (i *Invoker) Invoke(ctx context.Context, systemPrompt string, history []llm.Message, userText string) InvokeResult {
	if !i.creds.Has() {
		slog.Warn("model call skipped, no credential configured")
		return InvokeResult{Text: FallbackNoCredential, Source: SourceFallback}
	}

	apiKey, err := i.creds.Get()
	if err != nil {
		slog.Warn("credential read failed", "error", err)
		return InvokeResult{Text: FallbackNoCredential, Source: SourceFallback}
	}

	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: "user", Content: userText})

	ctx, cancel := context.WithTimeout(ctx, invokeTimeout)
	defer cancel()

	resp, err := i.provider(apiKey).Complete(ctx, llm.Request{
		Model:     i.model,
		System:    systemPrompt,
		Messages:  messages,
		MaxTokens: i.maxTokens,
	})
	if err != nil {
		slog.Warn("model call failed", "model", i.model, "error", err)
		return InvokeResult{Text: FallbackConnection, Source: SourceFallback}
	}

	return InvokeResult{
		Text:         resp.Content,
		Source:       SourceModel,
		Model:        resp.Model,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
	}
}

// provider returns a cached provider, rebuilding it when the key changes.
func (i *Invoker) provider(apiKey string) llm.Provider {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.cached == nil || i.cachedKey != apiKey {
		i.cached = i.factory(apiKey)
		i.cachedKey = apiKey
	}
	return i.cached
}
