// Package config is the typed widget configuration: enumerated defaults
// overlaid by a YAML file and then by caller overrides, validated once
// before first use.
package config

import (
	"net/url"
	"os"
	"strings"

	"github.com/go-go-golems/chatwidget/pkg/widget/storage"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultWidgetTitle     = "Chatbot"
	DefaultFallbackMessage = "Sorry, I could not generate a response."
	DefaultLinkTarget      = "self"
	DefaultThreadIDHeader  = "x-thread-id"
	DefaultNamespace       = "chat-widget"
)

// Launcher placements.
const (
	PlacementBottomRight = "bottom-right"
	PlacementBottomLeft  = "bottom-left"
	PlacementTopRight    = "top-right"
	PlacementTopLeft     = "top-left"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendDisabled = "disabled"
)

type Config struct {
	URL              string `yaml:"url"`
	ThreadHistoryURL string `yaml:"urlFetchThreadHistory"`
	ThreadUpdateURL  string `yaml:"urlUpdateThreadHistory"`

	ResponseIsAStream bool           `yaml:"responseIsAStream"`
	User              map[string]any `yaml:"user"`

	WidgetTitle     string `yaml:"widgetTitle"`
	GreetingMessage string `yaml:"greetingMessage"`
	FallbackMessage string `yaml:"fallbackMessage"`

	DisableErrorAlert   bool   `yaml:"disableErrorAlert"`
	CloseOnOutsideClick bool   `yaml:"closeOnOutsideClick"`
	OpenOnLoad          bool   `yaml:"openOnLoad"`
	LinkTarget          string `yaml:"linkTarget"`
	PersistOpenState    bool   `yaml:"persistOpenState"`

	Launcher    LauncherConfig   `yaml:"launcher"`
	HideTargets HideTargetConfig `yaml:"hideTargets"`
	Storage     StorageConfig    `yaml:"storage"`

	CookieName     string `yaml:"cookieName"`
	ThreadIDHeader string `yaml:"threadIDHeader"`
}

type LauncherConfig struct {
	Enabled            bool     `yaml:"enabled"`
	Placement          string   `yaml:"placement"`
	RestrictToPaths    []string `yaml:"restrictToPaths"`
	RememberVisibility bool     `yaml:"rememberVisibility"`
}

type HideTargetConfig struct {
	IDs     []string `yaml:"ids"`
	Classes []string `yaml:"classes"`
}

type StorageConfig struct {
	Backend   string `yaml:"backend"`
	DSN       string `yaml:"dsn"`
	RedisAddr string `yaml:"redisAddr"`
	Namespace string `yaml:"namespace"`
}

// Default returns the enumerated defaults.
func Default() Config {
	return Config{
		User:                map[string]any{},
		WidgetTitle:         DefaultWidgetTitle,
		FallbackMessage:     DefaultFallbackMessage,
		CloseOnOutsideClick: true,
		LinkTarget:          DefaultLinkTarget,
		Launcher:            LauncherConfig{Placement: PlacementBottomRight},
		Storage:             StorageConfig{Backend: BackendMemory, Namespace: DefaultNamespace},
		CookieName:          storage.DefaultThreadCookie,
		ThreadIDHeader:      DefaultThreadIDHeader,
	}
}

// Load overlays the YAML file at path onto the defaults.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "read config %s", path)
	}
	cfg, err := Parse(b)
	if err != nil {
		return Config{}, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

// Parse overlays YAML onto the defaults. Unknown keys are rejected.
func Parse(b []byte) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(string(b)) == "" {
		return cfg, nil
	}
	dec := yaml.NewDecoder(strings.NewReader(string(b)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decode yaml")
	}
	if cfg.User == nil {
		cfg.User = map[string]any{}
	}
	return cfg, nil
}

// Validate checks the configuration. A missing chat URL is accepted: it is
// reported to the user on submit.
func (c Config) Validate() error {
	for name, raw := range map[string]string{
		"url":                    c.URL,
		"urlFetchThreadHistory":  c.ThreadHistoryURL,
		"urlUpdateThreadHistory": c.ThreadUpdateURL,
	} {
		if raw == "" {
			continue
		}
		if err := checkHTTPURL(raw); err != nil {
			return errors.Wrapf(err, "config %s", name)
		}
	}
	switch c.Launcher.Placement {
	case PlacementBottomRight, PlacementBottomLeft, PlacementTopRight, PlacementTopLeft:
	default:
		return errors.Errorf("config launcher.placement: unknown placement %q", c.Launcher.Placement)
	}
	for i, p := range c.Launcher.RestrictToPaths {
		if strings.TrimSpace(p) == "" {
			return errors.Errorf("config launcher.restrictToPaths[%d]: empty rule", i)
		}
	}
	if strings.TrimSpace(c.LinkTarget) == "" {
		return errors.New("config linkTarget: must not be empty")
	}
	if strings.TrimSpace(c.CookieName) == "" {
		return errors.New("config cookieName: must not be empty")
	}
	if strings.TrimSpace(c.ThreadIDHeader) == "" {
		return errors.New("config threadIDHeader: must not be empty")
	}
	switch c.Storage.Backend {
	case BackendMemory, BackendDisabled:
	case BackendSQLite:
		if c.Storage.DSN == "" {
			return errors.New("config storage.dsn: required for the sqlite backend")
		}
	case BackendRedis:
		if c.Storage.RedisAddr == "" {
			return errors.New("config storage.redisAddr: required for the redis backend")
		}
	default:
		return errors.Errorf("config storage.backend: unknown backend %q", c.Storage.Backend)
	}
	return nil
}

func checkHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return errors.Wrap(err, "parse url")
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.Errorf("%q is not an absolute http(s) url", raw)
	}
	return nil
}

// OpenStore opens the configured storage backend.
func (s StorageConfig) OpenStore() (storage.Store, error) {
	switch s.Backend {
	case "", BackendMemory:
		return storage.NewMemoryStore(), nil
	case BackendDisabled:
		return storage.Disabled{}, nil
	case BackendSQLite:
		st, err := storage.NewSQLiteStore(s.DSN)
		if err != nil {
			return nil, err
		}
		return st, nil
	case BackendRedis:
		st, err := storage.NewRedisStore(s.RedisAddr)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, errors.Errorf("unknown storage backend %q", s.Backend)
	}
}
