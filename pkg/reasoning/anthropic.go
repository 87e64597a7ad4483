package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sony/gobreaker"

	"github.com/commercekit/intent-engine/pkg/models"
)

// Defaults for the hosted model call.
const (
	DefaultModel      = "claude-sonnet-4-5"
	DefaultTimeout    = 8 * time.Second
	retryJitterMax    = 250 * time.Millisecond
	maxToolRounds     = 4
	responseMaxTokens = 1024
)

// AnthropicConfig configures the production decomposer.
type AnthropicConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// AnthropicDecomposer calls the Anthropic Messages API with the
// order_lookup and return_eligibility_check tools. The call is guarded
// by a circuit breaker; a transport failure is retried once with a short
// jitter, a validation failure is never retried.
type AnthropicDecomposer struct {
	client  anthropic.Client
	model   string
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
}

// NewAnthropicDecomposer creates the production decomposer.
func NewAnthropicDecomposer(cfg AnthropicConfig) *AnthropicDecomposer {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "llm-decomposer",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &AnthropicDecomposer{
		client:  anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		breaker: breaker,
	}
}

// Decompose runs the model over the message, relaying tool calls to the
// provided callbacks, and validates the structured answer.
func (d *AnthropicDecomposer) Decompose(ctx context.Context, input Input) (Output, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	out, err := d.run(ctx, input)
	if err == nil {
		return out, nil
	}
	if errors.Is(err, ErrInvalidOutput) || ctx.Err() != nil {
		return Output{}, err
	}

	// One retry on transport error, with jitter to avoid thundering herds.
	time.Sleep(time.Duration(rand.Int64N(int64(retryJitterMax))))
	slog.Warn("Decomposer transport error, retrying once", "error", err)
	return d.run(ctx, input)
}

func (d *AnthropicDecomposer) run(ctx context.Context, input Input) (Output, error) {
	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(buildUserPrompt(input))),
	}
	tools := d.toolDefinitions(input.Tools)

	for round := 0; round < maxToolRounds; round++ {
		result, err := d.breaker.Execute(func() (any, error) {
			return d.client.Messages.New(ctx, anthropic.MessageNewParams{
				Model:     anthropic.Model(d.model),
				MaxTokens: responseMaxTokens,
				System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
				Messages:  messages,
				Tools:     tools,
			})
		})
		if err != nil {
			return Output{}, fmt.Errorf("calling decomposition model: %w", err)
		}
		msg := result.(*anthropic.Message)

		if msg.StopReason != anthropic.StopReasonToolUse {
			return parseOutput(msg)
		}

		// Relay tool calls and continue the conversation.
		messages = append(messages, msg.ToParam())
		var results []anthropic.ContentBlockParamUnion
		for _, block := range msg.Content {
			toolUse, ok := block.AsAny().(anthropic.ToolUseBlock)
			if !ok {
				continue
			}
			content, isErr := d.invokeTool(ctx, input.Tools, toolUse)
			results = append(results, anthropic.NewToolResultBlock(toolUse.ID, content, isErr))
		}
		if len(results) == 0 {
			return Output{}, fmt.Errorf("%w: tool_use stop with no tool blocks", ErrInvalidOutput)
		}
		messages = append(messages, anthropic.NewUserMessage(results...))
	}

	return Output{}, fmt.Errorf("%w: exceeded %d tool rounds", ErrInvalidOutput, maxToolRounds)
}

func (d *AnthropicDecomposer) toolDefinitions(callbacks *ToolCallbacks) []anthropic.ToolUnionParam {
	if callbacks == nil {
		return nil
	}
	var tools []anthropic.ToolUnionParam
	if callbacks.OrderLookup != nil {
		tool := anthropic.ToolParam{
			Name:        "order_lookup",
			Description: anthropic.String("Look up an order by id. Returns status, carrier, and delivery estimate."),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: map[string]any{
					"order_id": map[string]any{"type": "string", "description": "The order identifier"},
				},
			},
		}
		tools = append(tools, anthropic.ToolUnionParam{OfTool: &tool})
	}
	if callbacks.ReturnEligibilityCheck != nil {
		tool := anthropic.ToolParam{
			Name:        "return_eligibility_check",
			Description: anthropic.String("Check whether an order (optionally one item) is eligible for return."),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: map[string]any{
					"order_id": map[string]any{"type": "string"},
					"item_id":  map[string]any{"type": "string"},
				},
			},
		}
		tools = append(tools, anthropic.ToolUnionParam{OfTool: &tool})
	}
	return tools
}

// invokeTool relays one tool call to its callback. Tool failures are
// reported back to the model rather than aborting the decomposition.
func (d *AnthropicDecomposer) invokeTool(ctx context.Context, callbacks *ToolCallbacks, toolUse anthropic.ToolUseBlock) (string, bool) {
	var args struct {
		OrderID string `json:"order_id"`
		ItemID  string `json:"item_id"`
	}
	if err := json.Unmarshal([]byte(toolUse.JSON.Input.Raw()), &args); err != nil {
		return fmt.Sprintf("invalid tool arguments: %v", err), true
	}

	switch toolUse.Name {
	case "order_lookup":
		if callbacks == nil || callbacks.OrderLookup == nil {
			return "order_lookup is not available", true
		}
		summary, err := callbacks.OrderLookup(ctx, args.OrderID)
		if err != nil {
			return fmt.Sprintf("order lookup failed: %v", err), true
		}
		return marshalToolResult(summary)
	case "return_eligibility_check":
		if callbacks == nil || callbacks.ReturnEligibilityCheck == nil {
			return "return_eligibility_check is not available", true
		}
		decision, err := callbacks.ReturnEligibilityCheck(ctx, args.OrderID, args.ItemID)
		if err != nil {
			return fmt.Sprintf("eligibility check failed: %v", err), true
		}
		return marshalToolResult(decision)
	default:
		return fmt.Sprintf("unknown tool %q", toolUse.Name), true
	}
}

func marshalToolResult(v any) (string, bool) {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("marshalling tool result: %v", err), true
	}
	return string(raw), false
}

// parseOutput extracts and validates the JSON answer from the final
// assistant message.
func parseOutput(msg *anthropic.Message) (Output, error) {
	var text strings.Builder
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(tb.Text)
		}
	}
	payload := extractJSON(text.String())
	if payload == "" {
		return Output{}, fmt.Errorf("%w: no JSON object in response", ErrInvalidOutput)
	}

	var out Output
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return Output{}, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	if err := ValidateOutput(out); err != nil {
		return Output{}, err
	}
	return out, nil
}

// extractJSON returns the first top-level JSON object in s, tolerating
// surrounding prose and code fences.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

var systemPrompt = `You are an intent decomposition engine for eCommerce customer support.
Decompose the customer message into atomic intents from this closed taxonomy:
` + strings.Join(models.CoreIntents, ", ") + `.

Respond with a single JSON object and nothing else:
{
  "intents": [{"intent_code": "...", "confidence": 0.0, "evidence": ["..."], "constraints": ["..."]}],
  "is_compound": false,
  "reasoning": "...",
  "requires_clarification": false,
  "clarification_question": null
}

Evidence entries are verbatim spans of the customer message. Constraints
capture deadlines, preferences, and requirements as short phrases. Ask
for clarification only when no taxonomy intent fits with confidence
above 0.3.`

func buildUserPrompt(input Input) string {
	var b strings.Builder
	b.WriteString("Customer message:\n")
	b.WriteString(input.RawText)
	b.WriteString("\n")

	if len(input.Entities) > 0 {
		b.WriteString("\nExtracted entities:\n")
		for _, e := range input.Entities {
			fmt.Fprintf(&b, "- %s: %s (confidence %.2f)\n", e.Type, e.Value, e.Confidence)
		}
	}
	if len(input.MatchHints) > 0 {
		b.WriteString("\nSimilarity match hints:\n")
		for _, h := range input.MatchHints {
			fmt.Fprintf(&b, "- %s (%.2f): %q\n", h.IntentCode, h.Similarity, h.MatchedExample)
		}
	}
	if input.CustomerTier != "" {
		fmt.Fprintf(&b, "\nCustomer tier: %s\n", input.CustomerTier)
	}
	if len(input.PreviousIntents) > 0 {
		fmt.Fprintf(&b, "\nEarlier intents in this conversation: %s\n",
			strings.Join(input.PreviousIntents, ", "))
	}
	return b.String()
}
