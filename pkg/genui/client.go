package genui

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/unfazed-dev/genui/internal/infra"
	"github.com/unfazed-dev/genui/internal/ratelimit"
	"github.com/unfazed-dev/genui/internal/retry"
	"github.com/unfazed-dev/genui/pkg/catalog"
	"github.com/unfazed-dev/genui/pkg/models"
	"github.com/unfazed-dev/genui/pkg/observability"
)

// maxToolTurns bounds the local tool-use loop so a misbehaving model
// cannot spin search turns forever.
const maxToolTurns = 8

// outputBuffer is the depth of the three application-visible streams.
const outputBuffer = 64

// Client is the request dispatcher: it builds wire requests, applies the
// resilience envelope, routes framing events through the parser, and fans
// typed results out to the widget, text, and error streams. One request
// is processed at a time.
type Client struct {
	config    Config
	logger    *slog.Logger
	collector *observability.Collector

	limiter *ratelimit.Limiter
	gate    *ratelimit.Gate
	dedup   *ratelimit.Deduplicator[*turnSummary]
	breaker *infra.CircuitBreaker
	policy  retry.Policy

	transport   transport
	catalogIdx  *catalog.Index
	interceptor *Interceptor

	mu          sync.Mutex
	loadedTools []models.ToolSchema
	cancel      context.CancelFunc

	inFlight atomic.Bool
	disposed atomic.Bool

	widgetCh chan models.SurfaceMessage
	textCh   chan string
	errorCh  chan *models.GenUIError

	closeOnce sync.Once

	// OnThinking and OnRaw optionally expose the wire-level view.
	OnThinking func(models.Thinking)
	OnRaw      func(map[string]any)
}

// Option customizes client construction.
type Option func(*Client)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithCollector sets the metrics collector. Defaults to the process-wide
// collector.
func WithCollector(collector *observability.Collector) Option {
	return func(c *Client) { c.collector = collector }
}

// WithCatalog sets the widget tool catalog.
func WithCatalog(index *catalog.Index) Option {
	return func(c *Client) { c.catalogIdx = index }
}

// withTransport overrides the transport; used by tests.
func withTransport(t transport) Option {
	return func(c *Client) { c.transport = t }
}

// NewClient creates a dispatcher in direct mode, or proxy mode when the
// configuration names a proxy endpoint.
func NewClient(config Config, opts ...Option) (*Client, error) {
	config = config.withDefaults()

	c := &Client{
		config:   config,
		logger:   slog.Default(),
		widgetCh: make(chan models.SurfaceMessage, outputBuffer),
		textCh:   make(chan string, outputBuffer),
		errorCh:  make(chan *models.GenUIError, outputBuffer),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.collector == nil {
		c.collector = observability.Default()
	}
	if c.catalogIdx == nil {
		c.catalogIdx = catalog.NewIndex()
	}

	if c.transport == nil {
		if config.ProxyEndpoint != "" {
			c.transport = newProxyTransport(config)
		} else {
			direct, err := newDirectTransport(config)
			if err != nil {
				return nil, err
			}
			c.transport = direct
		}
	}

	c.limiter = ratelimit.NewLimiter(config.RateLimit)
	c.limiter.OnWait = func(wait time.Duration, scope string) {
		c.collector.Emit(models.RateLimit{
			MetricsBase: models.MetricsBase{Timestamp: time.Now()},
			WaitTime:    wait,
			Scope:       scope,
		})
	}
	c.gate = ratelimit.NewGate()
	c.dedup = ratelimit.NewDeduplicator[*turnSummary](config.Deduplication)

	if !config.DisableCircuitBreaker {
		breakerConfig := config.CircuitBreaker
		breakerConfig.OnStateChange = func(name string, from, to models.CircuitState) {
			c.collector.Emit(models.CircuitBreakerStateChange{
				MetricsBase: models.MetricsBase{Timestamp: time.Now()},
				Name:        name,
				From:        from,
				To:          to,
			})
		}
		c.breaker = infra.NewCircuitBreaker(breakerConfig)
	}

	c.policy = config.retryPolicy()

	c.interceptor = NewInterceptor(c.catalogIdx, config.MaxLoadedToolsPerSession)
	c.interceptor.OnLoad = func(schemas []models.ToolSchema) {
		c.mu.Lock()
		c.loadedTools = append(c.loadedTools, schemas...)
		c.mu.Unlock()
	}

	return c, nil
}

// Widgets is the surface-mutation output stream.
func (c *Client) Widgets() <-chan models.SurfaceMessage { return c.widgetCh }

// Text is the free-form text output stream.
func (c *Client) Text() <-chan string { return c.textCh }

// Errors is the error output stream.
func (c *Client) Errors() <-chan *models.GenUIError { return c.errorCh }

// Tools returns the currently-effective tool list: the four control tools
// plus either the full widget catalog, or, in search mode, the two search
// tools and whatever has been loaded so far.
func (c *Client) Tools() []models.ToolSchema {
	tools := models.ControlTools()

	if c.config.EnableToolSearch {
		tools = append(tools, models.SearchTools()...)
		c.mu.Lock()
		tools = append(tools, c.loadedTools...)
		c.mu.Unlock()
		return tools
	}

	for _, name := range c.catalogIdx.Names() {
		if item, ok := c.catalogIdx.GetByName(name); ok {
			tools = append(tools, item.Schema)
		}
	}
	return tools
}

// pendingToolUse is a completed non-control tool_use block awaiting local
// execution.
type pendingToolUse struct {
	id    string
	name  string
	input json.RawMessage
}

// turnSummary is the deduplicable outcome of one model turn.
type turnSummary struct {
	intercepted []pendingToolUse
}

// SendRequest dispatches one user message, streaming results to the
// output channels until the request completes or fails. Exactly one
// terminal outcome is produced: a nil return on completion, or a single
// error that is also placed on the error stream. A disposed client only
// returns its error, since its streams are already closed.
func (c *Client) SendRequest(ctx context.Context, message string, history []models.ChatMessage) error {
	if c.disposed.Load() {
		return models.NewError(models.ErrorValidation, "client is disposed")
	}
	if !c.inFlight.CompareAndSwap(false, true) {
		err := models.NewError(models.ErrorValidation, "another request is already in flight")
		c.emitError(err)
		return err
	}
	defer c.inFlight.Store(false)

	requestID := uuid.NewString()
	start := time.Now()
	c.collector.Emit(models.RequestStart{
		MetricsBase: models.MetricsBase{Timestamp: start, RequestID: requestID},
	})

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	err := c.run(ctx, requestID, message, history)
	if err != nil {
		ge := models.ClassifyError(err)
		c.emitError(ge)
		c.collector.Emit(models.RequestFailure{
			MetricsBase: models.MetricsBase{Timestamp: time.Now(), RequestID: requestID},
			ErrorKind:   ge.Kind,
			Retryable:   ge.Retryable,
		})
		return ge
	}

	duration := time.Since(start)
	c.collector.Emit(models.RequestSuccess{
		MetricsBase: models.MetricsBase{Timestamp: time.Now(), RequestID: requestID},
		Duration:    duration,
	})
	c.collector.Emit(models.Latency{
		MetricsBase: models.MetricsBase{Timestamp: time.Now(), RequestID: requestID},
		Operation:   "send_request",
		Duration:    duration,
	})
	return nil
}

// run drives the turn loop: model turn, local interception, next turn.
func (c *Client) run(ctx context.Context, requestID, message string, history []models.ChatMessage) error {
	wireMessages, err := c.initialMessages(message, history)
	if err != nil {
		return err
	}
	system := ExtractSystemContext(history)

	for turn := 0; turn < maxToolTurns; turn++ {
		req := c.buildRequest(wireMessages, system)
		summary, err := c.executeTurn(ctx, requestID, req)
		if err != nil {
			return err
		}
		if summary == nil || len(summary.intercepted) == 0 {
			return nil
		}
		wireMessages = appendToolTurn(wireMessages, summary.intercepted, c.interceptor)
	}
	return models.NewError(models.ErrorValidation, "tool-use loop exceeded maximum turns")
}

func (c *Client) initialMessages(message string, history []models.ChatMessage) ([]models.WireMessage, error) {
	var wire []models.WireMessage
	if c.config.includeHistory() {
		pruned := PruneHistory(history, c.config.MaxHistoryMessages)
		converted, err := ToWireMessages(pruned)
		if err != nil {
			return nil, err
		}
		wire = converted
	}
	return append(wire, models.WireMessage{Role: string(models.RoleUser), Content: message}), nil
}

func (c *Client) buildRequest(messages []models.WireMessage, system string) *models.ApiRequest {
	return &models.ApiRequest{
		Messages:      messages,
		MaxTokens:     c.config.MaxTokens,
		System:        system,
		Tools:         c.Tools(),
		Model:         c.config.Model,
		Temperature:   c.config.Temperature,
		TopP:          c.config.TopP,
		TopK:          c.config.TopK,
		StopSequences: c.config.StopSequences,
	}
}

// executeTurn applies the resilience envelope around one model turn:
// rate-limit admission, the reactive gate, deduplication, the circuit
// breaker, and retry with backoff.
func (c *Client) executeTurn(ctx context.Context, requestID string, req *models.ApiRequest) (*turnSummary, error) {
	key := ratelimit.RequestKey(req.Messages, req.Model, req.MaxTokens, c.config.Deduplication.HashMessages)
	estimated := estimateTokens(req)

	var summary *turnSummary
	err := c.limiter.Execute(ctx, estimated, func(ctx context.Context) error {
		return c.gate.Execute(ctx, func(ctx context.Context) error {
			s, err := c.dedup.Execute(key, func() (*turnSummary, error) {
				return c.turnWithRetry(ctx, requestID, req)
			})
			summary = s
			return err
		})
	})
	return summary, err
}

func (c *Client) turnWithRetry(ctx context.Context, requestID string, req *models.ApiRequest) (*turnSummary, error) {
	policy := c.policy
	policy.OnRetry = func(attempt, max int, delay time.Duration, reason string) {
		c.collector.Emit(models.RetryAttempt{
			MetricsBase: models.MetricsBase{Timestamp: time.Now(), RequestID: requestID},
			Attempt:     attempt,
			Max:         max,
			Delay:       delay,
			Reason:      reason,
		})
	}

	var summary *turnSummary
	err := policy.Do(ctx, func(ctx context.Context) error {
		if c.breaker != nil {
			if err := c.breaker.CheckState(); err != nil {
				return models.ClassifyError(err)
			}
		}

		s, err := c.runTurn(ctx, requestID, req)
		c.recordOutcome(err)
		if err != nil {
			return err
		}
		summary = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// recordOutcome feeds the breaker and, on server rate limiting, primes
// the proactive limiter and the reactive gate.
func (c *Client) recordOutcome(err error) {
	if err == nil {
		if c.breaker != nil {
			c.breaker.RecordSuccess()
		}
		return
	}

	ge := models.ClassifyError(err)
	if ge.Kind == models.ErrorRateLimit {
		retryAfter := ge.RetryAfter
		if retryAfter <= 0 {
			retryAfter = ratelimit.DefaultGateDelay
		}
		c.limiter.RecordServerRateLimit(retryAfter)
		c.gate.Close(retryAfter)
	}
	if c.breaker != nil && ge.Kind == models.ErrorServer {
		c.breaker.RecordFailure()
	}
}

// runTurn opens the stream, guards it for inactivity, parses framing
// events, and fans typed events out to the output streams until the turn
// completes.
func (c *Client) runTurn(ctx context.Context, requestID string, req *models.ApiRequest) (*turnSummary, error) {
	// Per-turn context so an early exit releases the framing pipeline.
	ctx, cancelTurn := context.WithCancel(ctx)
	defer cancelTurn()

	frames, err := c.transport.stream(ctx, req)
	if err != nil {
		return nil, err
	}

	summary := &turnSummary{}
	parser := &Parser{
		Logger: c.logger,
		OnToolUse: func(id, name string, input json.RawMessage) {
			if c.interceptor.Intercepts(name) {
				summary.intercepted = append(summary.intercepted, pendingToolUse{id: id, name: name, input: input})
			}
		},
	}

	guarded := c.guardInactivity(ctx, requestID, frames)
	for event := range parser.Parse(ctx, guarded) {
		switch e := event.(type) {
		case models.TextDelta:
			select {
			case c.textCh <- e.Text:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		case models.WidgetMessageEvent:
			select {
			case c.widgetCh <- ToSurfaceMessage(e.Message):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		case models.Thinking:
			if c.OnThinking != nil {
				c.OnThinking(e)
			}
		case models.RawDelta:
			if c.OnRaw != nil {
				c.OnRaw(e.Raw)
			}
		case models.Complete:
			return summary, nil
		case models.ErrorEvent:
			return nil, e.Err
		}
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return nil, models.NewError(models.ErrorStream, "stream ended without completion")
}

// guardInactivity forwards framing events, terminating the stream with a
// timeout error when the silent gap exceeds the configured bound.
func (c *Client) guardInactivity(ctx context.Context, requestID string, in <-chan map[string]any) <-chan map[string]any {
	timeout := c.config.StreamInactivityTimeout
	out := make(chan map[string]any)

	go func() {
		defer close(out)
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return

			case <-timer.C:
				c.collector.Emit(models.StreamInactivity{
					MetricsBase: models.MetricsBase{Timestamp: time.Now(), RequestID: requestID},
					Timeout:     timeout,
				})
				err := models.NewError(models.ErrorTimeout, "stream inactive")
				select {
				case out <- errorFrame(err):
				case <-ctx.Done():
				}
				return

			case frame, ok := <-in:
				if !ok {
					return
				}
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(timeout)
				select {
				case out <- frame:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// appendToolTurn extends the conversation with the assistant's tool calls
// and the locally produced tool results, forming the next turn.
func appendToolTurn(messages []models.WireMessage, pending []pendingToolUse, interceptor *Interceptor) []models.WireMessage {
	var callBlocks []map[string]any
	var resultBlocks []map[string]any

	for _, call := range pending {
		var input map[string]any
		if err := json.Unmarshal(call.input, &input); err != nil {
			input = map[string]any{}
		}
		callBlocks = append(callBlocks, map[string]any{
			"type":  "tool_use",
			"id":    call.id,
			"name":  call.name,
			"input": input,
		})

		result, handled := interceptor.Execute(call.name, call.input)
		if !handled {
			result = errorResult("tool not available: " + call.name)
		}
		resultBlocks = append(resultBlocks, map[string]any{
			"type":        "tool_result",
			"tool_use_id": call.id,
			"content":     result,
		})
	}

	messages = append(messages, models.WireMessage{
		Role:    string(models.RoleAssistant),
		Content: callBlocks,
	})
	return append(messages, models.WireMessage{
		Role:    string(models.RoleUser),
		Content: resultBlocks,
	})
}

// estimateTokens approximates request weight at four characters per token.
func estimateTokens(req *models.ApiRequest) int {
	total := len(req.System) / 4
	for _, msg := range req.Messages {
		switch content := msg.Content.(type) {
		case string:
			total += len(content) / 4
		case []map[string]any:
			for _, block := range content {
				if raw, err := json.Marshal(block); err == nil {
					total += len(raw) / 4
				}
			}
		}
	}
	for _, tool := range req.Tools {
		total += len(tool.Name) / 4
		total += len(tool.Description) / 4
		if raw, err := json.Marshal(tool.InputSchema); err == nil {
			total += len(raw) / 4
		}
	}
	return total
}

func (c *Client) emitError(err *models.GenUIError) {
	select {
	case c.errorCh <- err:
	default:
		c.logger.Warn("error stream full, dropping error", "error", err)
	}
}

// InFlight reports whether a request is currently being processed.
func (c *Client) InFlight() bool {
	return c.inFlight.Load()
}

// Dispose cancels any in-flight request, releases the transport, and
// closes the three output streams. The client is unusable afterwards.
func (c *Client) Dispose() {
	if !c.disposed.CompareAndSwap(false, true) {
		return
	}

	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	// Let the cancelled request drain before the streams close.
	deadline := time.Now().Add(5 * time.Second)
	for c.inFlight.Load() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	c.gate.Stop()
	if err := c.transport.close(); err != nil {
		c.logger.Warn("transport close failed", "error", err)
	}

	c.closeOnce.Do(func() {
		close(c.widgetCh)
		close(c.textCh)
		close(c.errorCh)
	})
}
