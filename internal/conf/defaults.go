package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Default classification tuning. The observed production values vary per
// community; these defaults suit a mid-traffic group and are overridden per
// group in the config file.
const (
	DefaultPeriod          = 120 * time.Second
	DefaultNoReactionGrace = 30 * time.Minute
	DefaultMinUnsureCount  = 3
	DefaultDeleteHorizon   = 24 * time.Hour
	DefaultCreationGrace   = 10 * time.Minute
	DefaultReplyLimit      = 50
	DefaultHistoryDepth    = 100
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("main.name", "packwatch")
	v.SetDefault("main.log.enabled", false)
	v.SetDefault("main.log.path", "logs/packwatch.log")

	v.SetDefault("forum.timeout", 15*time.Second)

	v.SetDefault("ledger.type", "file")
	v.SetDefault("ledger.path", "ledger.json")

	v.SetDefault("notify.push.enabled", false)
	v.SetDefault("notify.push.timeout", 30*time.Second)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.topic", "packwatch/confirmed")

	v.SetDefault("observability.enabled", false)
	v.SetDefault("observability.listen", "0.0.0.0:8090")
}

// ApplyGroupDefaults fills unset per-group knobs with the package defaults.
// Called after unmarshal so partially specified groups behave sensibly.
func (s *Settings) ApplyGroupDefaults() {
	for i := range s.Groups {
		g := &s.Groups[i]
		if g.Period <= 0 {
			g.Period = DefaultPeriod
		}
		if g.Thresholds.NoReactionGrace <= 0 {
			g.Thresholds.NoReactionGrace = DefaultNoReactionGrace
		}
		if g.Thresholds.MinUnsureCount <= 0 {
			g.Thresholds.MinUnsureCount = DefaultMinUnsureCount
		}
		if g.DeleteHorizon <= 0 {
			g.DeleteHorizon = DefaultDeleteHorizon
		}
		if g.CreationGrace <= 0 {
			g.CreationGrace = DefaultCreationGrace
		}
		if g.ReplyLimit <= 0 {
			g.ReplyLimit = DefaultReplyLimit
		}
		if g.HistoryDepth <= 0 {
			g.HistoryDepth = DefaultHistoryDepth
		}
	}
}
