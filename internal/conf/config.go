// Package conf loads and validates the packwatch configuration. Settings
// come from a YAML config file with environment variable overrides, loaded
// through viper the usual way.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/jkivela/packwatch/internal/errors"
)

// Settings is the root configuration object.
type Settings struct {
	Main          MainSettings          `yaml:"main"`
	Forum         ForumSettings         `yaml:"forum"`
	Ledger        LedgerSettings        `yaml:"ledger"`
	Notify        NotifySettings        `yaml:"notify"`
	MQTT          MQTTSettings          `yaml:"mqtt"`
	Observability ObservabilitySettings `yaml:"observability"`
	Groups        []GroupSettings       `yaml:"groups"`
}

// MainSettings holds application-wide options.
type MainSettings struct {
	Name string      `yaml:"name"` // instance name used in notifications
	Log  LogSettings `yaml:"log"`
}

// LogSettings controls the optional file log.
type LogSettings struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// ForumSettings points at the discussion-forum gateway service. The watch
// command requires a base URL; the other commands run without one.
type ForumSettings struct {
	BaseURL string        `yaml:"baseurl"`
	Timeout time.Duration `yaml:"timeout"`
}

// LedgerSettings selects and configures the ledger store backend.
type LedgerSettings struct {
	// Type is one of "file", "remote" or "sqlite".
	Type string `yaml:"type"`
	// Path is the document path for file and sqlite backends.
	Path string `yaml:"path"`
	// URL is the blob endpoint for the remote backend.
	URL string `yaml:"url"`
}

// NotifySettings names the forum channels notifications go to, plus the
// optional operator push fan-out.
type NotifySettings struct {
	AlertChannel    string       `yaml:"alertchannel"`
	AnnounceChannel string       `yaml:"announcechannel"`
	ShowcaseChannel string       `yaml:"showcasechannel"`
	Push            PushSettings `yaml:"push"`
}

// PushSettings configures shoutrrr operator push notifications.
type PushSettings struct {
	Enabled bool          `yaml:"enabled"`
	URLs    []string      `yaml:"urls"`
	Timeout time.Duration `yaml:"timeout"`
}

// MQTTSettings configures the optional confirmed-discovery publisher.
type MQTTSettings struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// ObservabilitySettings configures the prometheus endpoint.
type ObservabilitySettings struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// TagSettings maps the engine's item states to the platform's tag IDs for
// one forum group.
type TagSettings struct {
	Pending string `yaml:"pending"`
	Good    string `yaml:"good"`
	Bad     string `yaml:"bad"`
	Notice  string `yaml:"notice"`
	// Pack maps pack count ("1".."5") to the pack-size tag ID.
	Pack map[string]string `yaml:"pack"`
}

// ThresholdSettings is the per-group classification threshold tuple.
type ThresholdSettings struct {
	// NoReactionGrace is how long an item may sit with no engagement (or
	// only unsure reactions) before it is classified Bad.
	NoReactionGrace time.Duration `yaml:"noreactiongrace"`
	// MinUnsureCount is the unsure-reaction count that, with zero rejects,
	// classifies an item Bad after the grace period.
	MinUnsureCount int `yaml:"minunsurecount"`
	// Time maps pack count to the maximum time an item may stay pending.
	Time map[string]time.Duration `yaml:"time"`
	// Reject maps pack count to the reject-reaction count that classifies
	// an item Bad outright.
	Reject map[string]int `yaml:"reject"`
}

// GroupSettings configures one forum group's periodic curation pass.
type GroupSettings struct {
	ID            string            `yaml:"id"`
	Period        time.Duration     `yaml:"period"`
	Tags          TagSettings       `yaml:"tags"`
	Thresholds    ThresholdSettings `yaml:"thresholds"`
	DeleteHorizon time.Duration     `yaml:"deletehorizon"`
	CreationGrace time.Duration     `yaml:"creationgrace"`
	ReplyLimit    int               `yaml:"replylimit"`
	HistoryDepth  int               `yaml:"historydepth"`
}

// Load reads the configuration from the config file and environment and
// validates it. The config file is searched in the working directory and
// the usual per-user config directory.
func Load() (*Settings, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, "packwatch"))
	}
	v.SetEnvPrefix("PACKWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.New(err).
				Component("conf").
				Category(errors.CategoryConfiguration).
				Build()
		}
		// No config file is fine; defaults plus env carry a test setup.
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	settings.ApplyGroupDefaults()

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// Validate checks cross-field constraints the YAML schema cannot express.
func (s *Settings) Validate() error {
	switch s.Ledger.Type {
	case "file", "sqlite":
		if s.Ledger.Path == "" {
			return validationError("ledger.path is required for %s ledger", s.Ledger.Type)
		}
	case "remote":
		if s.Ledger.URL == "" {
			return validationError("ledger.url is required for remote ledger")
		}
	default:
		return validationError("unknown ledger.type %q", s.Ledger.Type)
	}

	seen := make(map[string]bool, len(s.Groups))
	for i := range s.Groups {
		g := &s.Groups[i]
		if g.ID == "" {
			return validationError("groups[%d].id is required", i)
		}
		if seen[g.ID] {
			return validationError("duplicate group id %q", g.ID)
		}
		seen[g.ID] = true

		if g.Period <= 0 {
			return validationError("group %s: period must be positive", g.ID)
		}
		if g.Tags.Pending == "" || g.Tags.Good == "" || g.Tags.Bad == "" {
			return validationError("group %s: pending, good and bad tag ids are required", g.ID)
		}
		if g.Thresholds.NoReactionGrace <= 0 {
			return validationError("group %s: thresholds.noreactiongrace must be positive", g.ID)
		}
		for pack, d := range g.Thresholds.Time {
			if d <= 0 {
				return validationError("group %s: time threshold for pack %s must be positive", g.ID, pack)
			}
		}
		for pack, n := range g.Thresholds.Reject {
			if n <= 0 {
				return validationError("group %s: reject threshold for pack %s must be positive", g.ID, pack)
			}
		}
	}

	if s.MQTT.Enabled && s.MQTT.Broker == "" {
		return validationError("mqtt.broker is required when mqtt is enabled")
	}
	if s.Notify.Push.Enabled && len(s.Notify.Push.URLs) == 0 {
		return validationError("notify.push.urls is required when push is enabled")
	}

	return nil
}

// Group returns the settings for the given group ID.
func (s *Settings) Group(id string) (*GroupSettings, bool) {
	for i := range s.Groups {
		if s.Groups[i].ID == id {
			return &s.Groups[i], true
		}
	}
	return nil, false
}

// Dump renders the settings as YAML, for the config inspection command.
func (s *Settings) Dump() (string, error) {
	out, err := yaml.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal settings: %w", err)
	}
	return string(out), nil
}

func validationError(format string, args ...any) error {
	return errors.Newf(format, args...).
		Component("conf").
		Category(errors.CategoryValidation).
		Build()
}
