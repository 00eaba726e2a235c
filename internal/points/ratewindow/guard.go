// Package ratewindow enforces the per-user daily earning cap and the cooling
// period between accepted earns. Spends are never throttled here.
package ratewindow

import (
	"context"
	"time"

	"github.com/smallbiznis/edupoints/internal/config"
	"github.com/smallbiznis/edupoints/internal/points/domain"
	"gorm.io/gorm"
)

// DailyDecision is the outcome of the daily cap check. Granted is the clipped
// amount the caller may credit.
type DailyDecision struct {
	Allowed   bool
	Granted   int64
	Remaining int64
	Reason    domain.RejectReason
}

type CoolingDecision struct {
	Allowed          bool
	SecondsRemaining int64
	LastEarnedAt     *time.Time
}

type Guard struct {
	journal       domain.Journal
	dailyCap      int64
	coolingPeriod time.Duration
}

func New(cfg config.Config, journal domain.Journal) *Guard {
	return NewGuard(cfg.Points.DailyCap, cfg.Points.CoolingPeriod, journal)
}

func NewGuard(dailyCap int64, coolingPeriod time.Duration, journal domain.Journal) *Guard {
	if dailyCap < 0 {
		dailyCap = 0
	}
	if coolingPeriod < 0 {
		coolingPeriod = 0
	}
	return &Guard{journal: journal, dailyCap: dailyCap, coolingPeriod: coolingPeriod}
}

func (g *Guard) DailyCap() int64 { return g.dailyCap }

// AllowDaily expects an account already reset for today.
func (g *Guard) AllowDaily(account domain.Account, requested int64) DailyDecision {
	remaining := g.dailyCap - account.DailyEarned
	if remaining < 0 {
		remaining = 0
	}
	if remaining == 0 || requested <= 0 {
		return DailyDecision{Remaining: remaining, Reason: domain.ReasonDailyLimitReached}
	}

	granted := requested
	if granted > remaining {
		granted = remaining
	}
	return DailyDecision{
		Allowed:   true,
		Granted:   granted,
		Remaining: remaining - granted,
	}
}

// AllowCooling reads the latest earn through db, so inside a transaction it sees
// the same view as the commit. An account that never earned is always allowed.
func (g *Guard) AllowCooling(ctx context.Context, db *gorm.DB, userID string, now time.Time) (CoolingDecision, error) {
	if g.coolingPeriod == 0 {
		return CoolingDecision{Allowed: true}, nil
	}

	last, err := g.journal.LatestEarnedAt(ctx, db, userID)
	if err != nil {
		return CoolingDecision{}, err
	}
	if last == nil {
		return CoolingDecision{Allowed: true}, nil
	}

	wait := last.Add(g.coolingPeriod).Sub(now)
	if wait <= 0 {
		return CoolingDecision{Allowed: true, LastEarnedAt: last}, nil
	}
	return CoolingDecision{
		SecondsRemaining: ceilSeconds(wait),
		LastEarnedAt:     last,
	}, nil
}

func ceilSeconds(d time.Duration) int64 {
	secs := int64(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}
