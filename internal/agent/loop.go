package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mcpchat-ai/mcpchat/internal/mcp"
	"github.com/mcpchat-ai/mcpchat/internal/memory"
	"github.com/mcpchat-ai/mcpchat/internal/provider"
)

// runTurn executes one full model turn: the user message is recorded, then
// the model is called in rounds, each round's tool calls dispatched and
// their results fed back, until the model answers without tools or the
// round cap is hit.
//
// Failure containment: a single failed tool call becomes error text in that
// call's result and the turn continues; only a failed completion call aborts
// the turn (everything recorded so far stays recorded).
func (a *Agent) runTurn(ctx context.Context, query string) (*Result, error) {
	userMsg := memory.NewMessage(provider.RoleUser, query)
	a.store.Append(userMsg)

	var msgs []provider.Message
	if a.cfg.SystemPrompt != "" {
		msgs = append(msgs, provider.Message{Role: provider.RoleSystem, Content: a.cfg.SystemPrompt})
	}
	msgs = append(msgs, a.store.History(a.cfg.HistoryLimit)...)
	msgs = append(msgs, provider.Message{Role: provider.RoleUser, Content: query})

	tools := a.router.ToolSchemas()

	var responses []string
	var records []ToolCallRecord

	for round := 1; ; round++ {
		if a.cfg.MaxRounds > 0 && round > a.cfg.MaxRounds {
			a.logger.Warn("turn hit round limit", "max_rounds", a.cfg.MaxRounds)
			// Record the notice too, so the transcript does not end on
			// tool results that never got an answer.
			notice := fmt.Sprintf("[Stopped: turn exceeded %d tool rounds]", a.cfg.MaxRounds)
			a.store.Append(memory.NewAssistantMessage(notice, nil))
			responses = append(responses, notice)
			break
		}

		completion, err := a.provider.Complete(ctx, &provider.CompletionRequest{
			Messages:  msgs,
			Tools:     tools,
			MaxTokens: a.cfg.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("completion failed: %w", err)
		}

		a.logger.Debug("model round complete",
			"round", round,
			"tool_calls", len(completion.ToolCalls),
			"input_tokens", completion.Usage.InputTokens,
			"output_tokens", completion.Usage.OutputTokens)

		// The assistant message is recorded verbatim, tool calls included,
		// so replayed history keeps its correlation ids.
		assistantMsg := memory.NewAssistantMessage(completion.Content, completion.ToolCalls)
		a.store.Append(assistantMsg)
		msgs = append(msgs, provider.Message{
			Role:      provider.RoleAssistant,
			Content:   completion.Content,
			ToolCalls: completion.ToolCalls,
		})

		if completion.Content != "" {
			responses = append(responses, completion.Content)
		}
		if len(completion.ToolCalls) == 0 {
			break
		}

		for _, tc := range completion.ToolCalls {
			output, isErr := a.dispatchToolCall(ctx, tc)
			records = append(records, ToolCallRecord{
				Tool:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
				Output:    output,
				IsError:   isErr,
			})

			a.store.Append(memory.NewToolMessage(tc.ID, output))
			msgs = append(msgs, provider.Message{
				Role:       provider.RoleTool,
				ToolCallID: tc.ID,
				Content:    output,
			})
		}
	}

	response := "Query processed successfully"
	if len(responses) > 0 {
		response = strings.Join(responses, "\n")
	}

	r := a.result(response, CommandChat)
	r.ToolCalls = records
	return r, nil
}

// dispatchToolCall invokes one requested tool and renders its outcome as
// result content. Every failure mode produces text the model can read.
func (a *Agent) dispatchToolCall(ctx context.Context, tc provider.ToolCall) (string, bool) {
	name := tc.Function.Name

	args := map[string]any{}
	if raw := strings.TrimSpace(tc.Function.Arguments); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			a.logger.Warn("tool call has invalid arguments", "tool", name, "error", err)
			return fmt.Sprintf("Error calling tool %s: invalid arguments: %v", name, err), true
		}
	}

	output, isErr, err := a.router.InvokeTool(ctx, name, args)
	if err != nil {
		if mcp.IsNotFound(err) {
			a.logger.Warn("model requested unknown tool", "tool", name)
			return fmt.Sprintf("Tool '%s' not found.", name), true
		}
		a.logger.Warn("tool call failed", "tool", name, "error", err)
		return fmt.Sprintf("Error calling tool %s: %v", name, err), true
	}
	return output, isErr
}
