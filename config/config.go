package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Resolver      Resolver       `json:"resolver"       yaml:"resolver"`
	Subscription  Subscription   `json:"subscription"   yaml:"subscription"`
	AllowedGroups []AllowedGroup `json:"allowed_groups" yaml:"allowed_groups"`
	SavePeer      string         `json:"save_peer"      yaml:"save_peer"`
	Limits        Limits         `json:"limits"         yaml:"limits"`
	Cooldown      time.Duration  `json:"cooldown"       yaml:"cooldown"`
	SessionTTL    time.Duration  `json:"session_ttl"    yaml:"session_ttl"`
	DataFile      string         `json:"data_file"      yaml:"data_file"`
	TempDir       string         `json:"temp_dir"       yaml:"temp_dir"`
	CredsDir      string         `json:"creds_dir"      yaml:"creds_dir"`
	MetricsAddr   string         `json:"metrics_addr"   yaml:"metrics_addr"`
	Log           Log            `json:"log"            yaml:"log"`
	Credit        string         `json:"credit"         yaml:"credit"`
}

type Resolver struct {
	BaseURL     string        `json:"base_url"     yaml:"base_url"`
	Key         string        `json:"key"          yaml:"key"`
	MaxAttempts int           `json:"max_attempts" yaml:"max_attempts"`
	Timeout     time.Duration `json:"timeout"      yaml:"timeout"`
}

type Subscription struct {
	Channel    string `json:"channel"     yaml:"channel"`
	Group      string `json:"group"       yaml:"group"`
	ChannelURL string `json:"channel_url" yaml:"channel_url"`
	GroupURL   string `json:"group_url"   yaml:"group_url"`
}

type AllowedGroup struct {
	ID   int64  `json:"id"   yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

type Limits struct {
	DMMaxSize    ByteSize `json:"dm_max_size"    yaml:"dm_max_size"`
	GroupMaxSize ByteSize `json:"group_max_size" yaml:"group_max_size"`
}

type Log struct {
	Level  string `json:"level"  yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// ByteSize is a size written in human form in the config file, e.g. "1 GiB" or "2GB".
// The zero value means no limit.
type ByteSize int64

func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	v := strings.TrimSpace(value.Value)
	if v == "" {
		*b = 0
		return nil
	}
	n, err := humanize.ParseBytes(v)
	if nil != err {
		return fmt.Errorf("invalid size %q: %v", v, err)
	}
	*b = ByteSize(n) //nolint:gosec
	return nil
}

func (b ByteSize) String() string {
	if b <= 0 {
		return "Unlimited"
	}
	return humanize.IBytes(uint64(b))
}

// Ceiling returns the limit as a byte count, with -1 standing for no limit.
func (b ByteSize) Ceiling() int64 {
	if b <= 0 {
		return -1
	}
	return int64(b)
}

func (cfg *Config) setDefaults() {
	if cfg.Resolver.MaxAttempts == 0 {
		cfg.Resolver.MaxAttempts = DefaultResolveAttempts
	}
	if cfg.Resolver.Timeout == 0 {
		cfg.Resolver.Timeout = ResolveRequestTimeout
	}
	if cfg.Subscription.ChannelURL == "" {
		cfg.Subscription.ChannelURL = "https://t.me/" + strings.TrimPrefix(cfg.Subscription.Channel, "@")
	}
	if cfg.Subscription.GroupURL == "" {
		cfg.Subscription.GroupURL = "https://t.me/" + strings.TrimPrefix(cfg.Subscription.Group, "@")
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.DataFile == "" {
		cfg.DataFile = "user_data.json"
	}
	if cfg.CredsDir == "" {
		cfg.CredsDir = "creds"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "pretty"
	}
}

func (cfg *Config) validate() error {
	if cfg.Resolver.BaseURL == "" {
		return errors.New("resolver base url is empty")
	}
	if u, err := url.Parse(cfg.Resolver.BaseURL); nil != err || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("resolver base url %q is not an absolute url", cfg.Resolver.BaseURL)
	}
	if cfg.Resolver.Key == "" {
		return errors.New("resolver key is empty")
	}
	if cfg.Resolver.MaxAttempts < 1 {
		return fmt.Errorf("resolver max attempts must be positive, got %d", cfg.Resolver.MaxAttempts)
	}
	if cfg.Subscription.Channel == "" {
		return errors.New("subscription channel is empty")
	}
	if cfg.Subscription.Group == "" {
		return errors.New("subscription group is empty")
	}
	for _, g := range cfg.AllowedGroups {
		if g.ID >= 0 {
			return fmt.Errorf("allowed group %q has non-negative id %d", g.Name, g.ID)
		}
	}
	if cfg.Cooldown < 0 {
		return errors.New("cooldown is negative")
	}
	if cfg.SessionTTL < 0 {
		return errors.New("session ttl is negative")
	}
	switch cfg.Log.Format {
	case "pretty", "json":
	default:
		return fmt.Errorf("unsupported log format %q", cfg.Log.Format)
	}
	return nil
}

func FromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if nil != err {
		return nil, fmt.Errorf("failed to read config file %q: %v", filePath, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); nil != err {
		return nil, fmt.Errorf("failed to unmarshal config file %q: %v", filePath, err)
	}

	cfg.setDefaults()
	if err := cfg.validate(); nil != err {
		return nil, fmt.Errorf("validation failed: %v", err)
	}

	return &cfg, nil
}

func FromString(data string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(data), &cfg); nil != err {
		return nil, fmt.Errorf("failed to unmarshal config: %v", err)
	}

	cfg.setDefaults()
	if err := cfg.validate(); nil != err {
		return nil, fmt.Errorf("validation failed: %v", err)
	}

	return &cfg, nil
}

// IsAllowedGroup reports whether chatID, in Bot API form, is on the group allow-list.
func (cfg *Config) IsAllowedGroup(chatID int64) bool {
	return lo.ContainsBy(cfg.AllowedGroups, func(g AllowedGroup) bool { return g.ID == chatID })
}
