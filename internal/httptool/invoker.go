// Package httptool implements the HTTP Tool Invoker (§4.4): parameter
// binding across the four-bucket partition, auth injection, retrying unary
// calls, and forwarding streaming bodies line by line.
package httptool

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"manifold/internal/agenterr"
	"manifold/internal/events"
	"manifold/internal/observability"
	"manifold/internal/sensitive"
)

// AuthConfig declares where the tool's static credential is injected.
type AuthConfig struct {
	Location string // "header" | "param" (query string)
	Key      string
	Value    string
}

// Descriptor is an HTTP tool's wire shape (§3 Tool descriptor, HTTP variant).
type Descriptor struct {
	Name     string
	Origin   string
	Path     string
	Method   string
	Auth     AuthConfig
	IsStream bool

	// Defaults fills missing bucket keys before the request is built.
	// Keys: "header", "query", "path", "body".
	Defaults map[string]map[string]any

	// ResponseSensitiveFields are masked (§4.5) before the unary response
	// becomes a tool-frame. Unused when IsStream.
	ResponseSensitiveFields []sensitive.FieldConfig

	// RecoverableFields lists, per non-body bucket, which keys may carry a
	// masked or flagged sensitive value that must be recovered before the
	// request is issued.
	RecoverableFields map[string][]string
	// NestedFields are dot/bracket paths within the body bucket recovered
	// structurally.
	NestedFields []string
}

const (
	retryBase   = time.Second
	retryFactor = 2
	retryCap    = 10 * time.Second
	maxRetries  = 3

	defaultUnaryTimeout = 60 * time.Second
	streamTimeout       = 120 * time.Second
)

// Invoker issues HTTP tool calls on behalf of the dispatcher.
type Invoker struct {
	client    *http.Client
	sensitive *sensitive.Processor
}

func NewInvoker(client *http.Client, proc *sensitive.Processor) *Invoker {
	if client == nil {
		client = observability.NewHTTPClient(nil)
	}
	return &Invoker{client: client, sensitive: proc}
}

// Invoke runs the eight-step HTTP Tool Invoker algorithm and returns a
// channel of tool-frames. The channel is always closed by Invoke; callers
// never see a raw transport error surface through it (§4.4 "never raise
// through the loop").
func (inv *Invoker) Invoke(ctx context.Context, conv string, d Descriptor, args map[string]any) <-chan events.Frame {
	out := make(chan events.Frame, 4)
	go func() {
		defer close(out)

		header := bucket(args, "header")
		query := bucket(args, "query")
		path := bucket(args, "path")
		body := bucket(args, "body")

		if inv.sensitive != nil {
			if err := inv.sensitive.RecoverParams(ctx, conv, header, query, path, body, d.RecoverableFields, d.NestedFields); err != nil {
				observability.LoggerWithTrace(ctx).Warn().Err(err).Str("tool", d.Name).Msg("sensitive_recover_failed")
			}
		}
		applyDefaults(header, d.Defaults["header"])
		applyDefaults(query, d.Defaults["query"])
		applyDefaults(path, d.Defaults["path"])
		applyDefaults(body, d.Defaults["body"])

		applyAuth(d.Auth, header, query)
		url := buildURL(d.Origin, d.Path, path, query)

		timeout := defaultUnaryTimeout
		if d.IsStream {
			timeout = streamTimeout
		}
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		resp, err := inv.doWithRetry(reqCtx, d.Method, url, header, body)
		if err != nil {
			out <- events.ErrorFrame(fmt.Sprintf("tool %q request failed: %v", d.Name, err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			out <- events.ErrorFrame(fmt.Sprintf("tool %q returned status %d", d.Name, resp.StatusCode))
			return
		}

		if d.IsStream {
			scanner := bufio.NewScanner(resp.Body)
			for scanner.Scan() {
				select {
				case <-ctx.Done():
					return
				case out <- events.ToolFrame(d.Name, scanner.Text()):
				}
			}
			return
		}

		payload, err := parseResponseBody(resp)
		if err != nil {
			out <- events.ErrorFrame(fmt.Sprintf("tool %q response decode failed: %v", d.Name, err))
			return
		}
		if inv.sensitive != nil && len(d.ResponseSensitiveFields) > 0 {
			if masked, err := inv.sensitive.MaskResponse(ctx, conv, payload, d.ResponseSensitiveFields); err == nil {
				payload = masked
			} else {
				observability.LoggerWithTrace(ctx).Warn().Err(err).Str("tool", d.Name).Msg("mask_response_failed")
			}
		}
		out <- events.ToolFrame(d.Name, payload)
	}()
	return out
}

func bucket(args map[string]any, key string) map[string]any {
	if args == nil {
		return map[string]any{}
	}
	if b, ok := args[key].(map[string]any); ok {
		return b
	}
	return map[string]any{}
}

func applyDefaults(bucket map[string]any, defaults map[string]any) {
	for k, v := range defaults {
		if _, exists := bucket[k]; !exists {
			bucket[k] = v
		}
	}
}

func buildURL(origin, path string, pathBucket, queryBucket map[string]any) string {
	interpolated := path
	for k, v := range pathBucket {
		interpolated = strings.ReplaceAll(interpolated, "{"+k+"}", fmt.Sprintf("%v", v))
	}
	url := strings.TrimRight(origin, "/") + "/" + strings.TrimLeft(interpolated, "/")
	if len(queryBucket) == 0 {
		return url
	}
	var qs strings.Builder
	first := true
	for k, v := range queryBucket {
		if first {
			qs.WriteByte('?')
			first = false
		} else {
			qs.WriteByte('&')
		}
		qs.WriteString(k)
		qs.WriteByte('=')
		qs.WriteString(fmt.Sprintf("%v", v))
	}
	return url + qs.String()
}

func applyAuth(auth AuthConfig, header, query map[string]any) {
	if auth.Key == "" {
		return
	}
	switch auth.Location {
	case "header":
		header[auth.Key] = auth.Value
	case "param":
		query[auth.Key] = auth.Value
	}
}

// doWithRetry issues the request, retrying only transport-class errors
// (network/connection failures) up to maxRetries times with exponential
// backoff. HTTP responses, even non-2xx, are returned without retry here;
// the caller decides how to surface a non-2xx status.
func (inv *Invoker) doWithRetry(ctx context.Context, method, url string, header, body map[string]any) (*http.Response, error) {
	var bodyReader io.Reader
	var contentType string
	if len(body) > 0 {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, agenterr.Wrap(agenterr.Internal, "encode request body", err)
		}
		bodyReader = bytes.NewReader(b)
		contentType = "application/json"
	}

	delay := retryBase
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= retryFactor
			if delay > retryCap {
				delay = retryCap
			}
		}

		var reqBody io.Reader
		if bodyReader != nil {
			b, _ := io.ReadAll(bodyReader)
			bodyReader = bytes.NewReader(b)
			reqBody = bytes.NewReader(b)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
		if err != nil {
			return nil, agenterr.Wrap(agenterr.ToolArgumentError, "build request", err)
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		for k, v := range header {
			req.Header.Set(k, fmt.Sprintf("%v", v))
		}

		resp, err := inv.client.Do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}
	return nil, agenterr.Wrap(agenterr.ToolTransport, "http request failed after retries", lastErr)
}

func parseResponseBody(resp *http.Response) (any, error) {
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	ct := resp.Header.Get("Content-Type")
	if strings.Contains(ct, "application/json") {
		var v any
		if err := json.Unmarshal(b, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
	return string(b), nil
}
