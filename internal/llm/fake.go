package llm

import (
	"context"
	"sync"
)

// FakeClient implements Client for tests. Set CompleteFunc to compute
// responses, or queue canned Responses consumed in order. The zero value
// returns empty completions.
type FakeClient struct {
	CompleteFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Responses    []string
	Err          error

	mu      sync.Mutex
	idx     int
	Prompts []string
}

func (f *FakeClient) Complete(ctx context.Context, prompt string) (string, error) {
	return f.CompleteWithSystem(ctx, "", prompt)
}

func (f *FakeClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.mu.Lock()
	f.Prompts = append(f.Prompts, userPrompt)
	i := f.idx
	f.idx++
	f.mu.Unlock()

	if f.Err != nil {
		return "", f.Err
	}
	if f.CompleteFunc != nil {
		return f.CompleteFunc(ctx, systemPrompt, userPrompt)
	}
	if i < len(f.Responses) {
		return f.Responses[i], nil
	}
	return "", nil
}

// CallCount returns how many completions were requested.
func (f *FakeClient) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.idx
}
