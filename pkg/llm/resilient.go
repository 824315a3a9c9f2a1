package llm

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fsayahmob/DataTalk-sub001/pkg/metrics"
	"github.com/fsayahmob/DataTalk-sub001/pkg/retry"
)

// Caller wraps an LLMClient with the circuit breaker, rate limiting, and
// retry with exponential backoff. All enrichment traffic goes through it.
type Caller struct {
	client   LLMClient
	breaker  *CircuitBreaker
	limiter  *rate.Limiter // nil disables pacing
	retryCfg *retry.Config
	logger   *zap.Logger
}

// NewCaller creates a resilient caller around client. limiter may be nil.
func NewCaller(client LLMClient, breaker *CircuitBreaker, limiter *rate.Limiter, logger *zap.Logger) *Caller {
	return &Caller{
		client:   client,
		breaker:  breaker,
		limiter:  limiter,
		retryCfg: retry.DefaultConfig(),
		logger:   logger.Named("llm_caller"),
	}
}

// Call performs one guarded completion. Transient failures are retried with
// backoff; hard failures and circuit rejections return immediately.
func (c *Caller) Call(ctx context.Context, prompt string, systemMessage string, temperature float64) (*GenerateResponseResult, error) {
	return retry.DoWithResultIfRetryable(ctx, c.retryCfg, func() (*GenerateResponseResult, error) {
		return c.attempt(ctx, prompt, systemMessage, temperature)
	})
}

// attempt runs a single breaker-guarded call and records the outcome.
func (c *Caller) attempt(ctx context.Context, prompt string, systemMessage string, temperature float64) (*GenerateResponseResult, error) {
	if allowed, err := c.breaker.Allow(); !allowed {
		metrics.LLMCalls.WithLabelValues("rejected").Inc()
		c.publishBreakerState()
		return nil, err
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			// The call never reached the endpoint, so neither success nor
			// failure applies; release the probe slot if we hold one.
			c.breaker.AbortProbe()
			c.publishBreakerState()
			return nil, err
		}
	}

	result, err := c.client.GenerateResponse(ctx, prompt, systemMessage, temperature)
	if err != nil {
		llmErr := ClassifyError(err)
		c.recordFailure(llmErr)
		return nil, llmErr
	}

	c.breaker.RecordSuccess()
	c.publishBreakerState()
	metrics.LLMCalls.WithLabelValues("success").Inc()
	return result, nil
}

func (c *Caller) recordFailure(llmErr *Error) {
	before := c.breaker.State()
	c.breaker.RecordFailure(llmErr.Retryable)
	after := c.breaker.State()

	if before != CircuitOpen && after == CircuitOpen {
		metrics.BreakerTrips.Inc()
		c.logger.Warn("circuit breaker tripped",
			zap.String("error_type", string(llmErr.Type)),
			zap.Int("consecutive_failures", c.breaker.ConsecutiveFailures()))
	}
	c.publishBreakerState()

	if llmErr.Retryable {
		metrics.LLMCalls.WithLabelValues("transient_error").Inc()
	} else {
		metrics.LLMCalls.WithLabelValues("hard_error").Inc()
	}
}

func (c *Caller) publishBreakerState() {
	metrics.BreakerState.Set(float64(c.breaker.State()))
}

// Breaker exposes the underlying circuit breaker for status reporting.
func (c *Caller) Breaker() *CircuitBreaker {
	return c.breaker
}

// Model returns the wrapped client's model name.
func (c *Caller) Model() string {
	return c.client.GetModel()
}

// CallJSON performs a guarded completion and parses the response into T.
// A response that cannot be parsed is a hard malformed-response error; it is
// not retried and does not count against the circuit breaker, since the
// endpoint itself answered.
func CallJSON[T any](ctx context.Context, c *Caller, prompt string, systemMessage string, temperature float64) (T, error) {
	var zero T

	result, err := c.Call(ctx, prompt, systemMessage, temperature)
	if err != nil {
		return zero, err
	}

	parsed, err := ParseJSONResponse[T](result.Content)
	if err != nil {
		c.logger.Error("malformed LLM response",
			zap.Int("response_len", len(result.Content)),
			zap.Error(err))
		return zero, NewMalformedError("malformed response", err)
	}

	return parsed, nil
}
