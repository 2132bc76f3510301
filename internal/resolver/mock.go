package resolver

import "context"

// MockResolver is a Resolver backed by a function, for tests.
type MockResolver struct {
	ResolveFunc func(ctx context.Context, channelURL string) (*Result, error)
}

// Resolve implements Resolver.Resolve
func (m *MockResolver) Resolve(ctx context.Context, channelURL string) (*Result, error) {
	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx, channelURL)
	}
	return nil, ErrNoStreams
}
