package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Fraud rule names. They double as the flag values recorded on detection logs.
const (
	RuleRapidFireAttempts      = "rapid_fire_attempts"
	RuleLowQualityScore        = "low_quality_score"
	RuleExcessiveDailyActivity = "excessive_daily_activity"
	RuleSourceAbuse            = "source_abuse"
)

// FraudRule configures one risk signal. Threshold is a count for the windowed
// rules and a score floor for RuleLowQualityScore.
type FraudRule struct {
	Window    time.Duration
	Threshold int
	Weight    int
	Disabled  bool
}

// FraudConfig maps rule names to their tuning plus the score cut-offs for each action.
type FraudConfig struct {
	Rules       map[string]FraudRule
	BlockScore  int
	FlagScore   int
	ReviewScore int
}

func DefaultFraudConfig() FraudConfig {
	return FraudConfig{
		Rules: map[string]FraudRule{
			RuleRapidFireAttempts:      {Window: time.Hour, Threshold: 10, Weight: 30},
			RuleLowQualityScore:        {Threshold: 50, Weight: 20},
			RuleExcessiveDailyActivity: {Window: 24 * time.Hour, Threshold: 20, Weight: 25},
			RuleSourceAbuse:            {Window: 24 * time.Hour, Threshold: 5, Weight: 15},
		},
		BlockScore:  70,
		FlagScore:   40,
		ReviewScore: 20,
	}
}

// Clone returns a deep copy so callers can mutate rules without racing readers.
func (c FraudConfig) Clone() FraudConfig {
	out := c
	out.Rules = make(map[string]FraudRule, len(c.Rules))
	for name, rule := range c.Rules {
		out.Rules[name] = rule
	}
	return out
}

func (c FraudConfig) Validate() error {
	if c.ReviewScore < 0 {
		return errors.New("fraud.review_score must not be negative")
	}
	if c.FlagScore < c.ReviewScore {
		return errors.New("fraud.flag_score must be >= review_score")
	}
	if c.BlockScore < c.FlagScore {
		return errors.New("fraud.block_score must be >= flag_score")
	}
	if c.BlockScore > 100 {
		return errors.New("fraud.block_score must be <= 100")
	}
	for name, rule := range c.Rules {
		if rule.Weight < 0 {
			return fmt.Errorf("fraud rule %s: weight must not be negative", name)
		}
		if rule.Threshold < 0 {
			return fmt.Errorf("fraud rule %s: threshold must not be negative", name)
		}
		if rule.Window < 0 {
			return fmt.Errorf("fraud rule %s: window must not be negative", name)
		}
	}
	return nil
}

type fraudRuleFile struct {
	Window    *time.Duration `mapstructure:"window"`
	Threshold *int           `mapstructure:"threshold"`
	Weight    *int           `mapstructure:"weight"`
	Disabled  *bool          `mapstructure:"disabled"`
}

type fraudFile struct {
	BlockScore  *int                     `mapstructure:"block_score"`
	FlagScore   *int                     `mapstructure:"flag_score"`
	ReviewScore *int                     `mapstructure:"review_score"`
	Rules       map[string]fraudRuleFile `mapstructure:"rules"`
}

// mergeFraudFile overlays only the fields present in the file onto base.
func mergeFraudFile(base FraudConfig, file fraudFile) FraudConfig {
	out := base.Clone()
	if file.BlockScore != nil {
		out.BlockScore = *file.BlockScore
	}
	if file.FlagScore != nil {
		out.FlagScore = *file.FlagScore
	}
	if file.ReviewScore != nil {
		out.ReviewScore = *file.ReviewScore
	}
	for name, override := range file.Rules {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		rule := out.Rules[name]
		if override.Window != nil {
			rule.Window = *override.Window
		}
		if override.Threshold != nil {
			rule.Threshold = *override.Threshold
		}
		if override.Weight != nil {
			rule.Weight = *override.Weight
		}
		if override.Disabled != nil {
			rule.Disabled = *override.Disabled
		}
		out.Rules[name] = rule
	}
	return out
}

func readFraudFile(v *viper.Viper, base FraudConfig) (FraudConfig, error) {
	var file fraudFile
	if err := v.Unmarshal(&file); err != nil {
		return FraudConfig{}, err
	}
	merged := mergeFraudFile(base, file)
	if err := merged.Validate(); err != nil {
		return FraudConfig{}, err
	}
	return merged, nil
}

// FraudRules holds the live fraud configuration. Readers take a snapshot per request.
type FraudRules struct {
	current atomic.Pointer[FraudConfig]
}

// NewStaticFraudRules returns a holder that never reloads.
func NewStaticFraudRules(cfg FraudConfig) *FraudRules {
	rules := &FraudRules{}
	rules.Store(cfg)
	return rules
}

// NewFraudRules seeds the holder with the configured defaults and, when
// POINTS_FRAUD_RULES_FILE is set, overlays and hot-reloads that file.
func NewFraudRules(cfg Config, log *zap.Logger) (*FraudRules, error) {
	base := cfg.Points.Fraud
	if base.Rules == nil {
		base = DefaultFraudConfig()
	}
	if err := base.Validate(); err != nil {
		return nil, err
	}

	rules := NewStaticFraudRules(base)
	path := strings.TrimSpace(cfg.Points.FraudRulesFile)
	if path == "" {
		return rules, nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.fraud")

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read fraud rules %s: %w", path, err)
	}
	loaded, err := readFraudFile(v, base)
	if err != nil {
		return nil, fmt.Errorf("load fraud rules %s: %w", path, err)
	}
	rules.Store(loaded)

	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := readFraudFile(v, base)
		if err != nil {
			log.Warn("fraud rules reload ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		rules.Store(updated)
		log.Info("fraud rules reloaded", zap.String("file", e.Name))
	})
	v.WatchConfig()

	return rules, nil
}

// Current returns a copy of the active configuration.
func (r *FraudRules) Current() FraudConfig {
	if r == nil {
		return DefaultFraudConfig()
	}
	cfg := r.current.Load()
	if cfg == nil {
		return DefaultFraudConfig()
	}
	return cfg.Clone()
}

func (r *FraudRules) Store(cfg FraudConfig) {
	cloned := cfg.Clone()
	r.current.Store(&cloned)
}
