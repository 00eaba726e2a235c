// Package fraud scores earn requests against configurable risk signals and
// stores the resulting evidence.
package fraud

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/smallbiznis/edupoints/internal/config"
	"github.com/smallbiznis/edupoints/internal/points/domain"
	"gorm.io/gorm"
)

const maxRiskScore = 100

// RuleSource yields the fraud configuration in effect for one evaluation.
type RuleSource interface {
	Current() config.FraudConfig
}

type Request struct {
	UserID       string
	Category     string
	SourceID     string
	QualityScore *int
	Now          time.Time
}

// Assessment is the detector output. Flags are sorted rule names.
type Assessment struct {
	Score   int
	Flags   []string
	Action  domain.FraudAction
	Details map[string]any
}

func (a Assessment) Logged() bool {
	return a.Action != domain.FraudActionNone
}

// signal reports whether a rule fired and the evidence behind it.
type signal func(ctx context.Context, d *Detector, db *gorm.DB, req Request, rule config.FraudRule) (bool, map[string]any, error)

var signals = map[string]signal{
	config.RuleRapidFireAttempts:      windowedCount(false),
	config.RuleExcessiveDailyActivity: windowedCount(false),
	config.RuleSourceAbuse:            windowedCount(true),
	config.RuleLowQualityScore:        lowQuality,
}

type Detector struct {
	journal domain.Journal
	rules   RuleSource
}

func New(journal domain.Journal, rules *config.FraudRules) *Detector {
	return NewDetector(journal, rules)
}

func NewDetector(journal domain.Journal, rules RuleSource) *Detector {
	return &Detector{journal: journal, rules: rules}
}

// Evaluate runs every enabled rule with a known signal. Weights add up and the
// total is capped at 100.
func (d *Detector) Evaluate(ctx context.Context, db *gorm.DB, req Request) (Assessment, error) {
	cfg := d.rules.Current()

	names := make([]string, 0, len(cfg.Rules))
	for name := range cfg.Rules {
		names = append(names, name)
	}
	sort.Strings(names)

	out := Assessment{Flags: []string{}, Details: map[string]any{}}
	for _, name := range names {
		rule := cfg.Rules[name]
		eval, ok := signals[name]
		if !ok || rule.Disabled || rule.Weight == 0 {
			continue
		}
		fired, evidence, err := eval(ctx, d, db, req, rule)
		if err != nil {
			return Assessment{}, fmt.Errorf("fraud rule %s: %w", name, err)
		}
		if !fired {
			continue
		}
		out.Score += rule.Weight
		out.Flags = append(out.Flags, name)
		out.Details[name] = evidence
	}
	if out.Score > maxRiskScore {
		out.Score = maxRiskScore
	}
	out.Action = ActionFor(out.Score, cfg)
	return out, nil
}

// ActionFor maps a risk score onto the configured thresholds.
func ActionFor(score int, cfg config.FraudConfig) domain.FraudAction {
	switch {
	case score <= 0:
		return domain.FraudActionNone
	case score >= cfg.BlockScore:
		return domain.FraudActionBlock
	case score >= cfg.FlagScore:
		return domain.FraudActionFlag
	case score >= cfg.ReviewScore:
		return domain.FraudActionReview
	default:
		return domain.FraudActionNone
	}
}

// windowedCount fires when the user already has more than Threshold earns inside
// the rule window, optionally restricted to the request source.
func windowedCount(bySource bool) signal {
	return func(ctx context.Context, d *Detector, db *gorm.DB, req Request, rule config.FraudRule) (bool, map[string]any, error) {
		if rule.Window <= 0 {
			return false, nil, nil
		}
		sourceID := ""
		if bySource {
			sourceID = strings.TrimSpace(req.SourceID)
			if sourceID == "" {
				return false, nil, nil
			}
		}
		count, err := d.journal.CountEarned(ctx, db, req.UserID, req.Now.Add(-rule.Window), sourceID)
		if err != nil {
			return false, nil, err
		}
		if count <= int64(rule.Threshold) {
			return false, nil, nil
		}
		evidence := map[string]any{
			"count":     count,
			"threshold": rule.Threshold,
			"window":    rule.Window.String(),
		}
		if bySource {
			evidence["source_id"] = sourceID
		}
		return true, evidence, nil
	}
}

func lowQuality(_ context.Context, _ *Detector, _ *gorm.DB, req Request, rule config.FraudRule) (bool, map[string]any, error) {
	if req.QualityScore == nil || *req.QualityScore >= rule.Threshold {
		return false, nil, nil
	}
	return true, map[string]any{
		"quality_score": *req.QualityScore,
		"threshold":     rule.Threshold,
	}, nil
}
