package agent

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/go-viper/mapstructure/v2"

	"github.com/strongdm/aisen-agent/pkg/aisen"
)

// Source is what Start accepts: either a built Config or a raw options map.
// Both normalize into one Config before anything else happens.
type Source interface {
	config() (Config, error)
}

type configSource struct {
	cfg Config
}

func (s configSource) config() (Config, error) {
	return s.cfg.withDefaults(), nil
}

// FromConfig wraps an already-built Config. Zero-valued policy fields take
// their defaults, so FromConfig(Config{APIKey: k}) and
// FromOptions({"api_key": k}) normalize to the same Config.
func FromConfig(cfg Config) Source {
	return configSource{cfg: cfg}
}

type optionsSource struct {
	opts map[string]any
}

func (s optionsSource) config() (Config, error) {
	return DecodeOptions(s.opts)
}

// FromOptions wraps an options map such as {"api_key": "...", "logger":
// l}. Keys may be snake_case, kebab-case, or camelCase. Durations accept
// strings like "250ms". The "logger" key takes an aisen.Logger; "backend"
// takes either a backend name or an aisen.Backend.
func FromOptions(opts map[string]any) Source {
	return optionsSource{opts: opts}
}

// DecodeOptions builds a Config from an options map on top of
// DefaultConfig. Unknown keys and ill-typed values are errors. When decoding
// fails the returned Config still carries the logger, if one was given.
func DecodeOptions(opts map[string]any) (Config, error) {
	cfg := DefaultConfig()
	rest := make(map[string]any, len(opts))

	for key, value := range opts {
		switch normalized := normalizeKey(key); normalized {
		case "logger":
			if value == nil {
				continue
			}
			logger, ok := value.(aisen.Logger)
			if !ok {
				return cfg, fmt.Errorf("option logger: %T does not implement aisen.Logger", value)
			}
			cfg.Logger = logger
		case "backend":
			switch b := value.(type) {
			case nil:
			case aisen.Backend:
				cfg.Backend = b
			case string:
				cfg.BackendName = b
			default:
				return cfg, fmt.Errorf("option backend: unsupported type %T", value)
			}
		default:
			rest[normalized] = value
		}
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &cfg,
	})
	if err != nil {
		return cfg, fmt.Errorf("build options decoder: %w", err)
	}
	if err := decoder.Decode(rest); err != nil {
		return cfg, fmt.Errorf("decode options: %w", err)
	}
	return cfg.withDefaults(), nil
}

// normalizeKey maps apiKey, api-key, and API_KEY to api_key.
func normalizeKey(key string) string {
	var b strings.Builder
	runes := []rune(strings.TrimSpace(key))
	for i, r := range runes {
		switch {
		case r == '-' || r == ' ':
			b.WriteRune('_')
		case unicode.IsUpper(r):
			if i > 0 && unicode.IsLower(runes[i-1]) {
				b.WriteRune('_')
			}
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
