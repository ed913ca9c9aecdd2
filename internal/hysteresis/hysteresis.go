// Package hysteresis keeps realtime advice from flapping: dual enter/exit
// thresholds per category, a consecutive-cycle consistency gate, and a
// per-category cooldown between emissions.
package hysteresis

import (
	"sync"
	"time"
)

// Level is a category's current severity.
type Level string

const (
	LevelNormal   Level = "normal"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Config holds the threshold pairs and pacing knobs.
type Config struct {
	// Stability thresholds, lower is worse. A value must drop below the
	// enter threshold to raise the level and rise above the exit
	// threshold to clear it.
	StabilityCriticalEnter float64 `yaml:"stability_critical_enter"`
	StabilityCriticalExit  float64 `yaml:"stability_critical_exit"`
	StabilityWarningEnter  float64 `yaml:"stability_warning_enter"`
	StabilityWarningExit   float64 `yaml:"stability_warning_exit"`

	// Speed thresholds, higher is worse.
	SpeedWarningEnter float64 `yaml:"speed_warning_enter"`
	SpeedWarningExit  float64 `yaml:"speed_warning_exit"`

	ConsistentCyclesRequired int           `yaml:"consistent_cycles_required"`
	CategoryCooldown         time.Duration `yaml:"category_cooldown"`
}

// DefaultConfig returns the realtime defaults.
func DefaultConfig() Config {
	return Config{
		StabilityCriticalEnter:   0.35,
		StabilityCriticalExit:    0.45,
		StabilityWarningEnter:    0.65,
		StabilityWarningExit:     0.75,
		SpeedWarningEnter:        22.0,
		SpeedWarningExit:         18.0,
		ConsistentCyclesRequired: 2,
		CategoryCooldown:         5 * time.Second,
	}
}

// Controller tracks per-category levels, consistency counters, and
// cooldowns. Safe for use from a single analysis loop; the mutex guards
// status queries from other goroutines.
type Controller struct {
	cfg Config

	mu             sync.Mutex
	states         map[string]Level
	pendingTrigger map[string]bool
	pendingCount   map[string]int
	lastAdviceAt   map[string]time.Time
}

// NewController builds a controller; a zero config gets defaults.
func NewController(cfg Config) *Controller {
	if cfg.ConsistentCyclesRequired <= 0 {
		cfg = DefaultConfig()
	}
	return &Controller{
		cfg:            cfg,
		states:         make(map[string]Level),
		pendingTrigger: make(map[string]bool),
		pendingCount:   make(map[string]int),
		lastAdviceAt:   make(map[string]time.Time),
	}
}

// Config returns the controller's threshold configuration.
func (c *Controller) Config() Config { return c.cfg }

// CheckThreshold applies two-level hysteresis for a category and returns
// whether the category is in its warning state. With lowerIsWorse the
// value must fall below enter to trigger and rise above exit to clear;
// otherwise the comparisons flip.
func (c *Controller) CheckThreshold(category string, value, enter, exit float64, lowerIsWorse bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := c.states[category]
	if state == "" {
		state = LevelNormal
	}

	var next Level
	if lowerIsWorse {
		if state == LevelNormal {
			next = boolLevel(value < enter)
		} else {
			next = boolLevel(value <= exit)
		}
	} else {
		if state == LevelNormal {
			next = boolLevel(value > enter)
		} else {
			next = boolLevel(value >= exit)
		}
	}

	c.states[category] = next
	return next == LevelWarning
}

func boolLevel(warning bool) Level {
	if warning {
		return LevelWarning
	}
	return LevelNormal
}

// CheckThresholdMultiLevel applies three-level hysteresis and returns the
// category's new level.
func (c *Controller) CheckThresholdMultiLevel(category string, value, criticalEnter, criticalExit, warningEnter, warningExit float64, lowerIsWorse bool) Level {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := c.states[category]
	if state == "" {
		state = LevelNormal
	}

	var next Level
	if lowerIsWorse {
		switch state {
		case LevelCritical:
			if value > criticalExit {
				if value < warningExit {
					next = LevelWarning
				} else {
					next = LevelNormal
				}
			} else {
				next = LevelCritical
			}
		case LevelWarning:
			switch {
			case value < criticalEnter:
				next = LevelCritical
			case value > warningExit:
				next = LevelNormal
			default:
				next = LevelWarning
			}
		default:
			switch {
			case value < criticalEnter:
				next = LevelCritical
			case value < warningEnter:
				next = LevelWarning
			default:
				next = LevelNormal
			}
		}
	} else {
		switch state {
		case LevelCritical:
			if value < criticalExit {
				if value > warningExit {
					next = LevelWarning
				} else {
					next = LevelNormal
				}
			} else {
				next = LevelCritical
			}
		case LevelWarning:
			switch {
			case value > criticalEnter:
				next = LevelCritical
			case value < warningExit:
				next = LevelNormal
			default:
				next = LevelWarning
			}
		default:
			switch {
			case value > criticalEnter:
				next = LevelCritical
			case value > warningEnter:
				next = LevelWarning
			default:
				next = LevelNormal
			}
		}
	}

	c.states[category] = next
	return next
}

// IsConsistent records this cycle's trigger intent for a category and
// reports whether the intent has held for the required number of
// consecutive cycles. Transient single-cycle spikes never trigger.
func (c *Controller) IsConsistent(category string, shouldTrigger bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.pendingTrigger[category]; ok && prev == shouldTrigger {
		c.pendingCount[category]++
	} else {
		c.pendingTrigger[category] = shouldTrigger
		c.pendingCount[category] = 1
	}

	return shouldTrigger && c.pendingCount[category] >= c.cfg.ConsistentCyclesRequired
}

// IsOnCooldown reports whether the category emitted advice too recently.
func (c *Controller) IsOnCooldown(category string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	last, ok := c.lastAdviceAt[category]
	if !ok {
		return false
	}
	return now.Sub(last) < c.cfg.CategoryCooldown
}

// RecordAdvice starts the cooldown timer for a category.
func (c *Controller) RecordAdvice(category string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastAdviceAt[category] = now
}

// State returns the current level for a category.
func (c *Controller) State(category string) Level {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.states[category]; ok {
		return s
	}
	return LevelNormal
}

// Reset clears all tracked state for one category, or everything when
// category is empty.
func (c *Controller) Reset(category string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if category == "" {
		c.states = make(map[string]Level)
		c.pendingTrigger = make(map[string]bool)
		c.pendingCount = make(map[string]int)
		c.lastAdviceAt = make(map[string]time.Time)
		return
	}
	delete(c.states, category)
	delete(c.pendingTrigger, category)
	delete(c.pendingCount, category)
	delete(c.lastAdviceAt, category)
}
