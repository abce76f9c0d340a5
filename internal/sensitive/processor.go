// Package sensitive implements the Sensitive-Data Processor (§4.5): masking
// of response fields before they reach the model-facing transcript, and
// recovery of the original values on a later tool call.
package sensitive

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"manifold/internal/agenterr"
)

const flagKey = "__sensitive"
const valueKey = "value"
const bindingKeyKey = "__binding_key"

// Processor masks/unmasks field values for one conversation, backed by a
// two-hash Store (identifier→original, masked→original).
type Processor struct {
	store Store
	ttl   time.Duration
}

func New(store Store, ttl time.Duration) *Processor {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Processor{store: store, ttl: ttl}
}

// MaskResponse masks every configured field path within a decoded JSON
// response (map[string]any / []any tree), recording forward and reverse
// mappings for each. Unconfigured or absent paths are left untouched.
func (p *Processor) MaskResponse(ctx context.Context, conv string, response any, fields []FieldConfig) (any, error) {
	for _, cfg := range fields {
		original, ok := getPath(response, cfg.Path)
		if !ok {
			continue // "If absent, skip."
		}
		originalStr := stringify(original)
		masked := maskValue(originalStr, cfg)
		identifier := identifierFor(conv, cfg, originalStr)

		originalJSON, err := json.Marshal(originalStr)
		if err != nil {
			return response, agenterr.Wrap(agenterr.Internal, "encode original value", err)
		}

		if err := p.store.SetForward(ctx, conv, identifier, string(originalJSON), p.ttl); err != nil {
			return response, agenterr.Wrap(agenterr.PersistenceTransient, "store forward mapping", err)
		}
		if err := p.store.SetReverse(ctx, conv, masked, string(originalJSON), p.ttl); err != nil {
			return response, agenterr.Wrap(agenterr.PersistenceTransient, "store reverse mapping", err)
		}

		var final any = masked
		if cfg.AddFlag {
			wrapped := map[string]any{flagKey: true, valueKey: masked}
			if cfg.Identifier != "" {
				wrapped[bindingKeyKey] = cfg.Identifier
			}
			final = wrapped
		}
		setPath(response, cfg.Path, final)
	}
	return response, nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}

// RecoverParams substitutes recovered originals into the non-body buckets
// (each key checked individually against recoverableKeys) and the body
// bucket (each declared nested path recovered structurally). It mutates and
// returns the bucket maps. A lookup miss leaves the value unchanged
// (SensitiveLookupMiss is non-fatal, §7).
func (p *Processor) RecoverParams(ctx context.Context, conv string, header, query, path, body map[string]any, recoverable map[string][]string, nestedPaths []string) error {
	buckets := map[string]map[string]any{"header": header, "query": query, "path": path}
	for bucketName, bucket := range buckets {
		for _, key := range recoverable[bucketName] {
			v, ok := bucket[key]
			if !ok {
				continue
			}
			recovered, found, err := p.recoverValue(ctx, conv, v)
			if err != nil {
				return err
			}
			if found {
				bucket[key] = recovered
			}
		}
	}
	if body != nil {
		for _, np := range nestedPaths {
			v, ok := getPath(body, np)
			if !ok {
				continue
			}
			recovered, found, err := p.recoverValue(ctx, conv, v)
			if err != nil {
				return err
			}
			if found {
				setPath(body, np, recovered)
			}
		}
	}
	return nil
}

// recoverValue implements the unmasking heuristic chain from §4.5.
func (p *Processor) recoverValue(ctx context.Context, conv string, v any) (any, bool, error) {
	if flagged, ok := v.(map[string]any); ok {
		if sensitive, _ := flagged[flagKey].(bool); sensitive {
			if bk, _ := flagged[bindingKeyKey].(string); bk != "" {
				identifier := fmt.Sprintf("__SENSITIVE_DATA_%s_%s__", conv, bk)
				if orig, ok, err := p.forwardLookup(ctx, conv, identifier); err != nil {
					return nil, false, err
				} else if ok {
					return orig, true, nil
				}
			}
			if masked, _ := flagged[valueKey].(string); masked != "" {
				return p.recoverString(ctx, conv, masked)
			}
		}
		return v, false, nil
	}

	s, ok := v.(string)
	if !ok {
		return v, false, nil
	}
	if strings.HasPrefix(s, "__SENSITIVE_DATA_"+conv+"_") && strings.HasSuffix(s, "__") {
		if orig, ok, err := p.forwardLookup(ctx, conv, s); err != nil {
			return nil, false, err
		} else if ok {
			return orig, true, nil
		}
	}
	return p.recoverString(ctx, conv, s)
}

func (p *Processor) forwardLookup(ctx context.Context, conv, identifier string) (string, bool, error) {
	raw, ok, err := p.store.GetForward(ctx, conv, identifier)
	if err != nil {
		return "", false, agenterr.Wrap(agenterr.PersistenceTransient, "forward lookup", err)
	}
	if !ok {
		return "", false, nil
	}
	return decodeOriginal(raw), true, nil
}

// recoverString runs the masked-value heuristic chain: direct reverse
// lookup, then fully-masked length match, then prefix/suffix match, then
// last-4 match. Within each heuristic, candidates are tried in sorted order
// of their masked keys, so the lexicographically first match wins; the order
// in which mappings were stored is not known here and plays no part.
func (p *Processor) recoverString(ctx context.Context, conv, masked string) (string, bool, error) {
	if raw, ok, err := p.store.GetReverse(ctx, conv, masked); err != nil {
		return "", false, agenterr.Wrap(agenterr.PersistenceTransient, "reverse lookup", err)
	} else if ok {
		return decodeOriginal(raw), true, nil
	}

	all, err := p.store.AllReverse(ctx, conv)
	if err != nil {
		return "", false, agenterr.Wrap(agenterr.PersistenceTransient, "scan reverse mappings", err)
	}
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if isAllStars(masked) {
		for _, k := range keys {
			if isAllStars(k) && len(k) == len(masked) {
				return decodeOriginal(all[k]), true, nil
			}
		}
	}

	if prefix, suffix, ok := splitAroundStars(masked); ok {
		for _, k := range keys {
			kp, ks, kok := splitAroundStars(k)
			if kok && kp == prefix && ks == suffix {
				return decodeOriginal(all[k]), true, nil
			}
		}
	}

	if l4, ok := extractLast4(masked); ok {
		for _, k := range keys {
			if orig := decodeOriginal(all[k]); len(orig) >= 4 && orig[len(orig)-4:] == l4 {
				return orig, true, nil
			}
		}
	}

	return "", false, nil
}

func decodeOriginal(raw string) string {
	var s string
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return raw
	}
	return s
}

func isAllStars(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r != '*' {
			return false
		}
	}
	return true
}

func splitAroundStars(s string) (prefix, suffix string, ok bool) {
	first := strings.IndexByte(s, '*')
	last := strings.LastIndexByte(s, '*')
	if first < 0 {
		return "", "", false
	}
	return s[:first], s[last+1:], true
}

var last4Pattern = regexp.MustCompile(`\*+[-_]?(\w{4})$`)

func extractLast4(s string) (string, bool) {
	m := last4Pattern.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Clear removes both mappings for conv, part of the executor's finalization
// stage (I3: cleanup removes both forward and reverse mappings).
func (p *Processor) Clear(ctx context.Context, conv string) error {
	if err := p.store.Clear(ctx, conv); err != nil {
		return agenterr.Wrap(agenterr.PersistenceTransient, "clear sensitive mappings", err)
	}
	return nil
}
