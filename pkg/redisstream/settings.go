package redisstream

import "strings"

// Settings configures the event transport. With Enabled false events stay
// in process.
type Settings struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Group    string `yaml:"group"`
	Consumer string `yaml:"consumer"`
}

func DefaultSettings() Settings {
	return Settings{
		Addr:     "localhost:6379",
		Group:    "chat-widget",
		Consumer: "backend-1",
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if strings.TrimSpace(s.Addr) == "" {
		s.Addr = d.Addr
	}
	if strings.TrimSpace(s.Group) == "" {
		s.Group = d.Group
	}
	if strings.TrimSpace(s.Consumer) == "" {
		s.Consumer = d.Consumer
	}
	return s
}
