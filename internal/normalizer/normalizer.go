// Package normalizer converts raw model output into structured
// answer/confidence/citations records with a validity classification.
package normalizer

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/beargallbladder/domain-runner-sub003/internal/model"
)

// Normalize derives the structured record for one raw record. It never
// fails: payloads that do not decode as a keyed answer object fall back
// to the trimmed raw text.
//
// Status rules: a trimmed-empty answer is "empty"; a payload that fails
// to decode and is brace-prefixed is "malformed"; everything else is
// "valid". The empty check runs last and wins.
func Normalize(raw model.RawRecord) model.NormalizedRecord {
	rec := model.NormalizedRecord{
		ID:        raw.ID,
		Domain:    raw.Domain,
		PromptID:  raw.PromptID,
		Model:     raw.Model,
		Timestamp: raw.Timestamp,
		Citations: []string{},
		Status:    model.NormValid,
		RawRef:    raw.ID,
	}

	var decoded any
	if err := json.Unmarshal([]byte(raw.Raw), &decoded); err == nil {
		if obj, isObj := decoded.(map[string]any); isObj {
			if answer, hasAnswer := obj["answer"]; hasAnswer {
				rec.Answer = strings.TrimSpace(stringify(answer))
				if conf, hasConf := obj["confidence"]; hasConf {
					rec.Confidence = clampConfidence(conf)
				}
				rec.Citations = dedupeCitations(obj["citations"])
			} else {
				rec.Answer = strings.TrimSpace(raw.Raw)
			}
		} else {
			rec.Answer = strings.TrimSpace(raw.Raw)
		}
	} else {
		rec.Answer = strings.TrimSpace(raw.Raw)
		if rec.Answer == "" || strings.HasPrefix(raw.Raw, "{") {
			rec.Status = model.NormMalformed
		}
	}

	if rec.Answer == "" {
		rec.Status = model.NormEmpty
	}
	return rec
}

// clampConfidence converts a decoded confidence value to [0, 1].
// Uncastable values are dropped rather than failing the record.
func clampConfidence(v any) *float64 {
	var c float64
	switch x := v.(type) {
	case float64:
		c = x
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil
		}
		c = parsed
	default:
		return nil
	}
	if math.IsNaN(c) {
		return nil
	}
	c = math.Min(math.Max(c, 0), 1)
	return &c
}

// dedupeCitations stringifies and trims citation entries, dropping
// duplicates while preserving first-seen order.
func dedupeCitations(v any) []string {
	out := []string{}
	list, ok := v.([]any)
	if !ok {
		return out
	}
	seen := make(map[string]struct{}, len(list))
	for _, item := range list {
		s := strings.TrimSpace(stringify(item))
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", x)
	}
}
