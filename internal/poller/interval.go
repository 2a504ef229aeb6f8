package poller

import (
	"time"

	"parlor.chat/widget/internal/model"
)

// Canonical polling cadence defaults. Earlier revisions scattered slightly
// different literals across call sites; this set is authoritative.
const (
	DefaultActiveInterval    = 50 * time.Millisecond
	DefaultNormalInterval    = 1 * time.Second
	DefaultIdleInterval      = 3 * time.Second
	DefaultVeryIdleInterval  = 5 * time.Second
	DefaultRecencyWindow     = 5 * time.Second
	DefaultIdleThreshold     = 10 * time.Second
	DefaultVeryIdleThreshold = 30 * time.Second

	DefaultWaitCeiling = 30 * time.Second
	DefaultWaitFloor   = 10 * time.Second
	DefaultWaitShrink  = 5 * time.Second
	DefaultBackoffBase = 1 * time.Second
	DefaultBackoffCap  = 30 * time.Second
	DefaultErrorDelay  = 5 * time.Second
	DefaultMaxRetries  = 5
)

// Config tunes the engine's cadence and recovery behavior. Zero values take
// the canonical defaults.
type Config struct {
	ActiveInterval    time.Duration
	NormalInterval    time.Duration
	IdleInterval      time.Duration
	VeryIdleInterval  time.Duration
	RecencyWindow     time.Duration
	IdleThreshold     time.Duration
	VeryIdleThreshold time.Duration

	// Long-poll wait budget sent to the server, shrunk from WaitCeiling
	// toward WaitFloor as consecutive timeouts accumulate.
	WaitCeiling time.Duration
	WaitFloor   time.Duration
	WaitShrink  time.Duration

	BackoffBase time.Duration
	BackoffCap  time.Duration
	ErrorDelay  time.Duration
	MaxRetries  int
}

func (c Config) withDefaults() Config {
	def := func(v *time.Duration, d time.Duration) {
		if *v <= 0 {
			*v = d
		}
	}
	def(&c.ActiveInterval, DefaultActiveInterval)
	def(&c.NormalInterval, DefaultNormalInterval)
	def(&c.IdleInterval, DefaultIdleInterval)
	def(&c.VeryIdleInterval, DefaultVeryIdleInterval)
	def(&c.RecencyWindow, DefaultRecencyWindow)
	def(&c.IdleThreshold, DefaultIdleThreshold)
	def(&c.VeryIdleThreshold, DefaultVeryIdleThreshold)
	def(&c.WaitCeiling, DefaultWaitCeiling)
	def(&c.WaitFloor, DefaultWaitFloor)
	def(&c.WaitShrink, DefaultWaitShrink)
	def(&c.BackoffBase, DefaultBackoffBase)
	def(&c.BackoffCap, DefaultBackoffCap)
	def(&c.ErrorDelay, DefaultErrorDelay)
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	return c
}

// selectInterval picks the delay before the next poll from recent
// conversation activity. Evaluated before scheduling, never mid-flight.
func selectInterval(cfg Config, now, lastUserMsg, lastBatch time.Time, status model.BotStatus) time.Duration {
	if status == model.BotStatusProcessing || status == model.BotStatusTyping {
		return cfg.ActiveInterval
	}
	if within(now, lastUserMsg, cfg.RecencyWindow) || within(now, lastBatch, cfg.RecencyWindow) {
		return cfg.ActiveInterval
	}
	if within(now, lastUserMsg, cfg.IdleThreshold) {
		return cfg.NormalInterval
	}
	if within(now, lastUserMsg, cfg.VeryIdleThreshold) {
		return cfg.IdleInterval
	}
	return cfg.VeryIdleInterval
}

func within(now, t time.Time, window time.Duration) bool {
	return !t.IsZero() && now.Sub(t) <= window
}
