package approaches

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/cbattlegear/azure-data-chat/log"
	"github.com/cbattlegear/azure-data-chat/metrics"
)

const (
	queryMaxTokens  = 512
	answerMaxTokens = 1024

	defaultAnswerTemperature = 0.7

	// go-openai omits a zero temperature from the request body and the
	// service then applies its own default, so the smallest non-zero
	// float stands in for a literal zero.
	zeroTemperature = math.SmallestNonzeroFloat32

	// Older turns beyond this window add cost without improving the
	// generated query or the answer.
	maxHistoryTurns = 10
)

// ChatReadRetrieveRead answers a question in two model calls: the first
// writes a T-SQL query for the question, the second answers from the rows
// that query returned.
type ChatReadRetrieveRead struct {
	completer Completer
	data      DataSource
	metrics   *metrics.Metrics
}

func NewChatReadRetrieveRead(completer Completer, data DataSource, m *metrics.Metrics) *ChatReadRetrieveRead {
	return &ChatReadRetrieveRead{completer: completer, data: data, metrics: m}
}

// Run executes the pipeline and returns the complete response.
func (a *ChatReadRetrieveRead) Run(ctx context.Context, messages []Message, opts RunOptions) (*ChatResponse, error) {
	resp, err := a.run(ctx, messages, opts)
	a.metrics.ObserveChat("sync", err)
	return resp, err
}

func (a *ChatReadRetrieveRead) run(ctx context.Context, messages []Message, opts RunOptions) (*ChatResponse, error) {
	req, rc, err := a.runUntilFinalCall(ctx, messages, opts)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := a.completer.ChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("answer generation failed: %w", err)
	}
	a.metrics.ObserveCompletion("answer", time.Since(start), resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	if len(resp.Choices) == 0 {
		return nil, errors.New("model returned no choices")
	}
	choice := resp.Choices[0]
	finish := string(choice.FinishReason)
	if finish == "" {
		finish = "stop"
	}

	return &ChatResponse{
		Object: "chat.completion",
		Choices: []Choice{{
			Index:        0,
			Message:      ResponseMessage{Role: openai.ChatMessageRoleAssistant, Content: choice.Message.Content},
			Context:      rc,
			SessionState: opts.SessionState,
			FinishReason: finish,
		}},
	}, nil
}

// RunStream executes the pipeline and streams the answer. The first chunk
// carries the assistant role, the grounding context and the session state;
// content deltas follow. A failure after streaming has begun surfaces as a
// terminal StreamEvent with Err set. The returned channel closes when the
// stream is done or ctx is cancelled.
func (a *ChatReadRetrieveRead) RunStream(ctx context.Context, messages []Message, opts RunOptions) (<-chan StreamEvent, error) {
	req, rc, err := a.runUntilFinalCall(ctx, messages, opts)
	if err != nil {
		a.metrics.ObserveChat("stream", err)
		return nil, err
	}

	stream, err := a.completer.ChatCompletionStream(ctx, req)
	if err != nil {
		err = fmt.Errorf("answer generation failed: %w", err)
		a.metrics.ObserveChat("stream", err)
		return nil, err
	}

	events := make(chan StreamEvent)
	go func() {
		defer close(events)
		defer stream.Close()
		start := time.Now()

		head := StreamChunk{
			Object: "chat.completion.chunk",
			Choices: []StreamChoice{{
				Index:        0,
				Delta:        Delta{Role: openai.ChatMessageRoleAssistant},
				Context:      &rc,
				SessionState: opts.SessionState,
			}},
		}
		if !emit(ctx, events, StreamEvent{Chunk: &head}) {
			a.metrics.ObserveChat("stream", ctx.Err())
			return
		}

		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				a.metrics.ObserveChat("stream", nil)
				a.metrics.ObserveCompletion("answer", time.Since(start), 0, 0)
				return
			}
			if err != nil {
				err = fmt.Errorf("streaming answer failed: %w", err)
				a.metrics.ObserveChat("stream", err)
				emit(ctx, events, StreamEvent{Err: err})
				return
			}
			// Azure sends housekeeping chunks with no choices; skip them
			if len(chunk.Choices) == 0 {
				continue
			}
			c := chunk.Choices[0]
			out := StreamChunk{
				Object: "chat.completion.chunk",
				Choices: []StreamChoice{{
					Index:        0,
					Delta:        Delta{Content: c.Delta.Content},
					FinishReason: finishReasonPtr(c.FinishReason),
				}},
			}
			if !emit(ctx, events, StreamEvent{Chunk: &out}) {
				a.metrics.ObserveChat("stream", ctx.Err())
				return
			}
		}
	}()
	return events, nil
}

// runUntilFinalCall runs the query generation and retrieval steps and
// returns the ready-to-send answer request together with the response
// context both transports attach.
func (a *ChatReadRetrieveRead) runUntilFinalCall(ctx context.Context, messages []Message, opts RunOptions) (openai.ChatCompletionRequest, ResponseContext, error) {
	rc := ResponseContext{DataPoints: []string{}}

	question, history, err := splitQuestion(messages)
	if err != nil {
		return openai.ChatCompletionRequest{}, rc, err
	}

	snapshot, err := a.data.Schema(ctx)
	if err != nil {
		return openai.ChatCompletionRequest{}, rc, fmt.Errorf("failed to load database schema: %w", err)
	}

	start := time.Now()
	genResp, err := a.completer.ChatCompletion(ctx, openai.ChatCompletionRequest{
		Messages:    buildQueryMessages(snapshot.Render(), history, question),
		Temperature: zeroTemperature,
		MaxTokens:   queryMaxTokens,
		N:           1,
	})
	if err != nil {
		return openai.ChatCompletionRequest{}, rc, fmt.Errorf("query generation failed: %w", err)
	}
	a.metrics.ObserveCompletion("query_generation", time.Since(start), genResp.Usage.PromptTokens, genResp.Usage.CompletionTokens)

	sqlQuery := ExtractSQL(firstContent(genResp))
	if sqlQuery == "" {
		rc.Thoughts = "No database query was needed for this question."
		log.Debug().Msg("model produced no query")
	} else {
		result, err := a.data.Query(ctx, sqlQuery, opts.Overrides.Top)
		if err != nil {
			return openai.ChatCompletionRequest{}, rc, fmt.Errorf("failed to retrieve data: %w", err)
		}
		for _, row := range result.Rows {
			rc.DataPoints = append(rc.DataPoints, renderRow(result.Columns, row))
		}
		rc.Thoughts = "Generated SQL query:<br>" + strings.ReplaceAll(sqlQuery, "\n", "<br>")
		if result.Truncated {
			rc.Thoughts += fmt.Sprintf("<br><br>Results were truncated to the first %d rows.", len(result.Rows))
		}
		log.Debug().Int("rows", len(result.Rows)).Msg("retrieved grounding rows")
	}

	temperature := float32(defaultAnswerTemperature)
	if opts.Overrides.Temperature != nil {
		temperature = *opts.Overrides.Temperature
		if temperature == 0 {
			temperature = zeroTemperature
		}
	}

	req := openai.ChatCompletionRequest{
		Messages:    buildAnswerMessages(opts.Overrides, history, question, rc.DataPoints),
		Temperature: temperature,
		MaxTokens:   answerMaxTokens,
		N:           1,
	}
	return req, rc, nil
}

func buildQueryMessages(schema string, history []Message, question string) []openai.ChatCompletionMessage {
	msgs := []openai.ChatCompletionMessage{{
		Role:    openai.ChatMessageRoleSystem,
		Content: renderTemplate(querySystemPrompt, map[string]string{"schema": schema}),
	}}
	msgs = append(msgs, toOpenAIMessages(cappedHistory(history))...)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: question})
	return msgs
}

func buildAnswerMessages(overrides Overrides, history []Message, question string, sources []string) []openai.ChatCompletionMessage {
	content := "Sources:\n(no rows were retrieved)"
	if len(sources) > 0 {
		content = "Sources:\n" + strings.Join(sources, "\n")
	}

	msgs := []openai.ChatCompletionMessage{{
		Role:    openai.ChatMessageRoleSystem,
		Content: buildAnswerSystemPrompt(overrides.PromptTemplate, overrides.SuggestFollowupQuestions),
	}}
	msgs = append(msgs, toOpenAIMessages(cappedHistory(history))...)
	// The model handles lengthy system messages poorly, so the sources
	// ride on the user turn instead.
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: question + "\n\n" + content,
	})
	return msgs
}

func splitQuestion(messages []Message) (string, []Message, error) {
	if len(messages) == 0 {
		return "", nil, errors.New("messages must not be empty")
	}
	last := messages[len(messages)-1]
	if !strings.EqualFold(last.Role, openai.ChatMessageRoleUser) {
		return "", nil, errors.New("the last message must come from the user")
	}
	if strings.TrimSpace(last.Content) == "" {
		return "", nil, errors.New("the question must not be empty")
	}
	return last.Content, messages[:len(messages)-1], nil
}

func cappedHistory(history []Message) []Message {
	if len(history) > maxHistoryTurns*2 {
		history = history[len(history)-maxHistoryTurns*2:]
	}
	return history
}

func toOpenAIMessages(history []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(history))
	for _, m := range history {
		if m.Role != openai.ChatMessageRoleUser && m.Role != openai.ChatMessageRoleAssistant {
			continue
		}
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

func firstContent(resp openai.ChatCompletionResponse) string {
	if len(resp.Choices) == 0 {
		return ""
	}
	return resp.Choices[0].Message.Content
}

func finishReasonPtr(reason openai.FinishReason) *string {
	if reason == "" {
		return nil
	}
	s := string(reason)
	return &s
}

// renderRow serializes one row as a JSON object with keys in select-list
// order, so the prompt (and with it any provider-side caching) stays
// stable across requests.
func renderRow(columns []string, row map[string]any) string {
	var b strings.Builder
	b.WriteString("{")
	for i, col := range columns {
		if i > 0 {
			b.WriteString(",")
		}
		key, _ := json.Marshal(col)
		b.Write(key)
		b.WriteString(":")
		value, err := json.Marshal(row[col])
		if err != nil {
			value = []byte("null")
		}
		b.Write(value)
	}
	b.WriteString("}")
	return b.String()
}

func emit(ctx context.Context, events chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
