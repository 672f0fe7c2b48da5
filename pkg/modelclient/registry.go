package modelclient

import (
	"go.uber.org/zap"

	"github.com/beargallbladder/domain-runner-sub003/internal/config"
)

// BuildRegistry constructs the model-name → client map from
// configuration. Entries with a missing API key or an unrecognized
// provider are skipped with a warning; one bad entry never blocks the
// others.
func BuildRegistry(entries []config.ModelEntry) map[string]Client {
	out := make(map[string]Client, len(entries))
	for _, e := range entries {
		name := e.Name
		if name == "" {
			name = e.Model
		}
		if name == "" {
			zap.L().Warn("modelclient: entry has no name or model, skipping")
			continue
		}
		if e.Key == "" {
			zap.L().Warn("modelclient: entry has no api key, skipping",
				zap.String("name", name),
				zap.String("provider", e.Provider))
			continue
		}

		modelID := e.Model
		if modelID == "" {
			modelID = name
		}

		switch e.Provider {
		case "anthropic":
			out[name] = NewAnthropic(e.Key, modelID, int64(e.MaxTokens))
		case "openai", "mistral", "deepseek", "together", "perplexity", "groq", "xai":
			var opts []Option
			if e.BaseURL != "" {
				opts = append(opts, WithBaseURL(e.BaseURL))
			}
			if e.MaxTokens > 0 {
				opts = append(opts, WithMaxTokens(e.MaxTokens))
			}
			out[name] = NewOpenAICompatible(e.Key, modelID, opts...)
		default:
			zap.L().Warn("modelclient: unknown provider, skipping",
				zap.String("name", name),
				zap.String("provider", e.Provider))
		}
	}

	if len(out) == 0 {
		zap.L().Warn("modelclient: no active models (check api keys)")
	} else {
		names := make([]string, 0, len(out))
		for n := range out {
			names = append(names, n)
		}
		zap.L().Info("modelclient: registry built", zap.Strings("models", names))
	}
	return out
}
