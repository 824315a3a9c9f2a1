package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fsayahmob/DataTalk-sub001/pkg/retry"
)

func newTestCaller(client LLMClient, breaker *CircuitBreaker) *Caller {
	c := NewCaller(client, breaker, nil, zap.NewNop())
	c.retryCfg = &retry.Config{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
	return c
}

func TestCaller_Success(t *testing.T) {
	mock := NewMockLLMClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temp float64) (*GenerateResponseResult, error) {
		return &GenerateResponseResult{Content: "ok", TotalTokens: 10}, nil
	}

	caller := newTestCaller(mock, NewCircuitBreaker(DefaultCircuitBreakerConfig()))

	result, err := caller.Call(context.Background(), "prompt", "system", 0.3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Content != "ok" {
		t.Errorf("unexpected content: %q", result.Content)
	}
	if mock.GenerateResponseCalls != 1 {
		t.Errorf("expected 1 call, got %d", mock.GenerateResponseCalls)
	}
}

func TestCaller_RetriesTransientThenSucceeds(t *testing.T) {
	mock := NewMockLLMClient()
	calls := 0
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temp float64) (*GenerateResponseResult, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("429 Too Many Requests")
		}
		return &GenerateResponseResult{Content: "recovered"}, nil
	}

	breaker := NewCircuitBreaker(DefaultCircuitBreakerConfig())
	caller := newTestCaller(mock, breaker)

	result, err := caller.Call(context.Background(), "prompt", "system", 0.3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Content != "recovered" {
		t.Errorf("unexpected content: %q", result.Content)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
	if breaker.State() != CircuitClosed {
		t.Errorf("expected breaker to be closed after success, got %v", breaker.State())
	}
}

func TestCaller_HardErrorNotRetried(t *testing.T) {
	mock := NewMockLLMClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temp float64) (*GenerateResponseResult, error) {
		return nil, errors.New("401 Unauthorized")
	}

	caller := newTestCaller(mock, NewCircuitBreaker(DefaultCircuitBreakerConfig()))

	_, err := caller.Call(context.Background(), "prompt", "system", 0.3)
	if err == nil {
		t.Fatalf("expected error")
	}
	if GetErrorType(err) != ErrorTypeAuth {
		t.Errorf("expected auth error, got %v", GetErrorType(err))
	}
	if mock.GenerateResponseCalls != 1 {
		t.Errorf("expected exactly 1 call for hard error, got %d", mock.GenerateResponseCalls)
	}
}

func TestCaller_OpenBreakerFailsFast(t *testing.T) {
	mock := NewMockLLMClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temp float64) (*GenerateResponseResult, error) {
		return nil, errors.New("500 Internal Server Error")
	}

	breaker := NewCircuitBreaker(CircuitBreakerConfig{
		Threshold:          2,
		TransientThreshold: 3,
		TransientWindow:    5 * time.Minute,
		ResetAfter:         time.Hour,
	})
	caller := newTestCaller(mock, breaker)

	// Drive the breaker open: 5xx errors are transient, so with
	// TransientThreshold 3 each cluster of 3 is one hard unit.
	for i := 0; i < 3; i++ {
		_, _ = caller.Call(context.Background(), "prompt", "system", 0.3)
	}
	if breaker.State() != CircuitOpen {
		t.Fatalf("expected breaker to be open, got %v", breaker.State())
	}

	before := mock.GenerateResponseCalls
	_, err := caller.Call(context.Background(), "prompt", "system", 0.3)
	if err == nil {
		t.Fatalf("expected rejection from open breaker")
	}
	if !IsCircuitOpen(err) {
		t.Errorf("expected circuit_open error, got %v", err)
	}
	if mock.GenerateResponseCalls != before {
		t.Errorf("expected no client calls while breaker is open")
	}
}

func TestCaller_AbandonedProbeDoesNotLatchHalfOpen(t *testing.T) {
	mock := NewMockLLMClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temp float64) (*GenerateResponseResult, error) {
		return &GenerateResponseResult{Content: "recovered"}, nil
	}

	breaker := NewCircuitBreaker(DefaultCircuitBreakerConfig())
	current := time.Now()
	breaker.now = func() time.Time { return current }
	for i := 0; i < 5; i++ {
		breaker.RecordFailure(false)
	}
	if breaker.State() != CircuitOpen {
		t.Fatalf("expected breaker to be open, got %v", breaker.State())
	}
	current = current.Add(61 * time.Second)

	caller := NewCaller(mock, breaker, rate.NewLimiter(rate.Inf, 1), zap.NewNop())

	// Allow admits the probe, then the limiter wait fails on the dead
	// context before the client is ever called.
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := caller.Call(cancelled, "prompt", "system", 0.3); err == nil {
		t.Fatalf("expected error from cancelled context")
	}
	if mock.GenerateResponseCalls != 0 {
		t.Errorf("expected no client calls, got %d", mock.GenerateResponseCalls)
	}
	if breaker.State() != CircuitOpen {
		t.Fatalf("expected abandoned probe to reopen the circuit, got %v", breaker.State())
	}

	// The freed slot admits the next probe, which closes the circuit.
	result, err := caller.Call(context.Background(), "prompt", "system", 0.3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Content != "recovered" {
		t.Errorf("unexpected content: %q", result.Content)
	}
	if breaker.State() != CircuitClosed {
		t.Errorf("expected breaker to close after successful probe, got %v", breaker.State())
	}
}

func TestCallJSON_ParsesResponse(t *testing.T) {
	type desc struct {
		Table       string `json:"table"`
		Description string `json:"description"`
	}

	mock := NewMockLLMClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temp float64) (*GenerateResponseResult, error) {
		return &GenerateResponseResult{
			Content: "```json\n[{\"table\": \"orders\", \"description\": \"Customer orders\"}]\n```",
		}, nil
	}

	caller := newTestCaller(mock, NewCircuitBreaker(DefaultCircuitBreakerConfig()))

	got, err := CallJSON[[]desc](context.Background(), caller, "prompt", "system", 0.3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Table != "orders" {
		t.Errorf("unexpected result: %+v", got)
	}
}

func TestCallJSON_MalformedResponseIsHardError(t *testing.T) {
	mock := NewMockLLMClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temp float64) (*GenerateResponseResult, error) {
		return &GenerateResponseResult{Content: "Sorry, I cannot help with that."}, nil
	}

	breaker := NewCircuitBreaker(DefaultCircuitBreakerConfig())
	caller := newTestCaller(mock, breaker)

	_, err := CallJSON[map[string]string](context.Background(), caller, "prompt", "system", 0.3)
	if err == nil {
		t.Fatalf("expected malformed-response error")
	}
	if GetErrorType(err) != ErrorTypeMalformed {
		t.Errorf("expected malformed_response type, got %v", GetErrorType(err))
	}
	if IsRetryable(err) {
		t.Errorf("malformed responses must not be retryable")
	}
	if mock.GenerateResponseCalls != 1 {
		t.Errorf("expected exactly 1 call, got %d", mock.GenerateResponseCalls)
	}
	if breaker.State() != CircuitClosed {
		t.Errorf("a malformed response should not count against the breaker")
	}
}
