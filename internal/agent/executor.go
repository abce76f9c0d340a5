package agent

import (
	"bufio"
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"manifold/internal/agenterr"
	"manifold/internal/demux"
	"manifold/internal/events"
	"manifold/internal/llm"
	"manifold/internal/memory"
	"manifold/internal/observability"
	"manifold/internal/sensitive"
	"manifold/internal/tools"
)

const (
	// maxModelAttempts is the retry budget for one loop iteration's model call.
	maxModelAttempts = 3
	frameBufferSize  = 64
	finalizeTimeout  = 5 * time.Second
)

// LongTermRetriever is the optional pluggable long-term retrieval interface.
// When configured, the executor queries it once per turn (step 3 of the
// reason-act loop) and folds the result into memory under role "database".
type LongTermRetriever interface {
	Query(ctx context.Context, conv, query string) (string, error)
}

// Executor drives the reason-act loop for one Spec. It is long-lived and
// shared across conversations; Stream creates and destroys a fresh
// Short-Term Memory per call, per the executor-per-request lifecycle (§3).
type Executor struct {
	Spec       Spec
	Provider   llm.Provider
	Registry   *tools.Registry
	Dispatcher *tools.Dispatcher
	Store      memory.Store
	Sensitive  *sensitive.Processor
	// AgentContext is the conversation-scoped scratch-data store (§6
	// agent_context:<conv>:<scenario>). Optional; finalize clears it for the
	// conversation alongside the sensitive-data mappings when set.
	AgentContext memory.ContextStore
	Retriever    LongTermRetriever
	HTTPClient   *http.Client

	// HistoryK is the number of most-recent persistent records flattened
	// into the seed history turn (§4.9). 0 disables history injection.
	HistoryK int
	// MaxRecords caps the persisted record list per conversation (0 = no cap).
	MaxRecords int

	// Summarizer, when set alongside a positive SummaryThreshold, condenses
	// overflow history into one record during finalization instead of
	// relying solely on MaxRecords truncation.
	Summarizer       *memory.Summarizer
	SummaryThreshold int
	SummaryKeepLast  int
}

// Stream implements the public contract: stream(query, conversation_id) →
// event-sequence, a lazy finite sequence terminated by a final message frame
// or an error event.
func (e *Executor) Stream(ctx context.Context, query, conv string) <-chan events.Frame {
	out := make(chan events.Frame, frameBufferSize)
	go e.run(ctx, query, conv, out)
	return out
}

func (e *Executor) run(ctx context.Context, query, conv string, out chan<- events.Frame) {
	defer close(out)
	log := *observability.LoggerWithTrace(ctx)

	mem := memory.New(e.Spec.SystemPrompt)
	var responseBuffer string
	var allResponses []string
	finished := false

	defer func() {
		e.finalize(conv, query, responseBuffer, log)
	}()

	emit := func(f events.Frame) {
		select {
		case out <- f:
		case <-ctx.Done():
		}
	}

	emit(events.Status("task understanding", ""))

	if e.HistoryK > 0 && e.Store != nil {
		if hist, err := e.Store.RecentHistory(ctx, conv, e.HistoryK); err != nil {
			log.Warn().Err(err).Msg("history_load_failed")
		} else if hist != "" {
			mem.Add(memory.RoleHistory, hist)
		}
	}

	if e.Retriever != nil {
		emit(events.Status("load past context", ""))
		if result, err := e.Retriever.Query(ctx, conv, query); err != nil {
			log.Warn().Err(err).Msg("long_term_retrieval_failed")
		} else if result != "" {
			mem.Add(memory.RoleDatabase, result)
		}
	}

	mem.Add(memory.RoleSystemTime, time.Now().Format(time.RFC3339))
	mem.Add(memory.RoleUser, query)

	if e.Spec.Mode == ModeDeepThink {
		responseBuffer = e.runDeepThink(ctx, query, emit, log)
		return
	}

	promptOnce := e.Spec.Mode == ModePrompt
	maxLoops := e.Spec.MaxLoops

	for k := 1; maxLoops <= 0 || k <= maxLoops; k++ {
		if ctx.Err() != nil {
			break
		}
		rendered := mem.Render()
		if size, known := llm.ContextSize(e.Spec.ModelRef); known {
			if estimated := len(rendered) / 4; estimated > size {
				log.Warn().Int("estimated_tokens", estimated).Int("context_size", size).
					Str("model", e.Spec.ModelRef).Msg("rendered_memory_exceeds_context_budget")
			}
		}
		msgs := []llm.Message{{Role: "user", Content: rendered}}

		var lastErr error
		var buf string
		var stopped bool
		for attempt := 1; attempt <= maxModelAttempts; attempt++ {
			b, s, err := e.runOneAttempt(ctx, conv, msgs, mem, emit, log, promptOnce)
			if err != nil {
				lastErr = err
				kind := agenterr.KindOf(err)
				log.Warn().Err(err).Int("attempt", attempt).Int("loop", k).Str("kind", string(kind)).Msg("model_attempt_failed")
				if !agenterr.Retryable(kind) {
					break
				}
				continue
			}
			lastErr, buf, stopped = nil, b, s
			break
		}
		if lastErr != nil {
			log.Error().Err(lastErr).Int("loop", k).Msg("model_attempts_exhausted")
			break
		}
		if buf != "" {
			responseBuffer = buf
			allResponses = append(allResponses, buf)
		}
		if promptOnce || stopped {
			finished = true
			break
		}
	}

	if !finished {
		switch {
		case responseBuffer != "":
			emit(events.Finish(responseBuffer))
		case len(allResponses) > 0:
			emit(events.Finish(allResponses[len(allResponses)-1]))
		default:
			emit(events.Finish(""))
		}
	}
}

// runOneAttempt drives one model call to completion: streams tokens through
// the demultiplexer, dispatches any tool call the model emitted, and reports
// whether the stop predicate latched should_stop.
func (e *Executor) runOneAttempt(ctx context.Context, conv string, msgs []llm.Message, mem *memory.ShortTerm, emit func(events.Frame), log zerolog.Logger, promptOnce bool) (buf string, stopped bool, err error) {
	dmx := demux.New(e.Spec.DemuxWindow)
	var visible strings.Builder
	var nativeCalls []llm.ToolCall

	schemas := e.Registry.Schemas()
	if len(e.Spec.ToolNames) > 0 {
		schemas = filterSchemas(schemas, e.Spec.ToolNames)
	}

	handler := &streamCollector{
		onDelta: func(s string) {
			vis, think := dmx.FeedString(s)
			if think != "" {
				emit(events.Think(think))
			}
			if vis != "" {
				visible.WriteString(vis)
			}
		},
		onToolCall: func(tc llm.ToolCall) {
			nativeCalls = append(nativeCalls, tc)
		},
		onImage: func(img llm.GeneratedImage) {
			emit(events.ToolFrame("image", map[string]any{"mime_type": img.MIMEType, "bytes": len(img.Data)}))
		},
		onThoughtSummary: func(s string) {
			emit(events.Think(s))
		},
	}

	if streamErr := e.Provider.ChatStream(ctx, msgs, schemas, e.Spec.ModelRef, handler); streamErr != nil {
		return "", false, agenterr.Wrap(agenterr.ModelTransport, "model stream", streamErr)
	}

	visTail, thinkTail := dmx.Drain()
	if thinkTail != "" {
		emit(events.Think(thinkTail))
	}
	if visTail != "" {
		visible.WriteString(visTail)
	}
	buf = visible.String()

	if promptOnce {
		emit(events.Finish(buf))
		return buf, true, nil
	}

	if buf != "" {
		mem.Add(memory.RoleAssistant, buf)
	}

	e.dispatchNativeCalls(ctx, conv, mem, nativeCalls, emit, log)
	if len(nativeCalls) == 0 {
		if parsed, ok := tools.ParseToolCall(buf); ok {
			e.dispatchParsedCall(ctx, conv, mem, parsed, emit, log)
		}
	}

	if buf != "" && e.Spec.stopMatches(buf) {
		emit(events.Finish(buf))
		return buf, true, nil
	}
	return buf, false, nil
}

// runDeepThink delegates to an external streaming endpoint and relays its
// lines as tool-output frames; memory is read but never written. Grounded on
// §4.1's DeepThink mode specialization.
func (e *Executor) runDeepThink(ctx context.Context, query string, emit func(events.Frame), log zerolog.Logger) string {
	url := strings.TrimSpace(e.Spec.DeepThinkURL)
	if url == "" {
		emit(events.ErrorFrame("deepthink endpoint not configured"))
		emit(events.Finish(""))
		return ""
	}
	client := e.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(query))
	if err != nil {
		emit(events.ErrorFrame(err.Error()))
		emit(events.Finish(""))
		return ""
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := client.Do(req)
	if err != nil {
		emit(events.ErrorFrame(err.Error()))
		emit(events.Finish(""))
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		emit(events.ErrorFrame("deepthink endpoint returned non-2xx status"))
		emit(events.Finish(""))
		return ""
	}

	var last string
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		last = line
		emit(events.ToolFrame("deepthink", line))
	}
	if err := scanner.Err(); err != nil {
		log.Warn().Err(err).Msg("deepthink_stream_error")
	}
	emit(events.Finish(last))
	return last
}

// finalize runs the always-on finalization stage: persist the turn (skipped
// in DeepThink mode, which leaves the Memory Store unwritten), clear
// sensitive mappings, and clear any per-conversation scratch data (§4.1 step
// 6). It uses a fresh background context with a short timeout so it still
// completes after the caller's context is cancelled.
func (e *Executor) finalize(conv, query, response string, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	if e.Store != nil && e.Spec.Mode != ModeDeepThink {
		rec := memory.Record{Input: query, Output: response, Time: time.Now()}
		if err := e.Store.AppendRecord(ctx, conv, rec, e.MaxRecords); err != nil {
			log.Warn().Err(err).Msg("persist_turn_failed")
		}
		if err := e.Summarizer.MaybeCompact(ctx, e.Store, conv, e.SummaryThreshold, e.SummaryKeepLast); err != nil {
			log.Warn().Err(err).Msg("history_compaction_failed")
		}
	}
	if e.Sensitive != nil {
		if err := e.Sensitive.Clear(ctx, conv); err != nil {
			log.Warn().Err(err).Msg("clear_sensitive_mappings_failed")
		}
	}
	if e.AgentContext != nil {
		if err := e.AgentContext.ClearAll(ctx, conv); err != nil {
			log.Warn().Err(err).Msg("clear_agent_context_failed")
		}
	}
}

func filterSchemas(schemas []llm.ToolSchema, allowed []string) []llm.ToolSchema {
	set := make(map[string]bool, len(allowed))
	for _, n := range allowed {
		set[n] = true
	}
	out := make([]llm.ToolSchema, 0, len(schemas))
	for _, s := range schemas {
		if set[s.Name] {
			out = append(out, s)
		}
	}
	return out
}

// streamCollector adapts the plain callback style used throughout this
// package to the llm.StreamHandler interface.
type streamCollector struct {
	onDelta          func(string)
	onToolCall       func(llm.ToolCall)
	onImage          func(llm.GeneratedImage)
	onThoughtSummary func(string)
}

func (s *streamCollector) OnDelta(content string)        { s.onDelta(content) }
func (s *streamCollector) OnToolCall(tc llm.ToolCall)     { s.onToolCall(tc) }
func (s *streamCollector) OnImage(img llm.GeneratedImage) { s.onImage(img) }
func (s *streamCollector) OnThoughtSummary(summary string) { s.onThoughtSummary(summary) }
