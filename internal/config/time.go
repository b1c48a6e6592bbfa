package config

import "time"

// DefaultPacingDelay applies when no pacing delay was configured at all.
const DefaultPacingDelay = 500 * time.Millisecond

type Timer struct {
	Days    uint32 `json:"days"`
	Hours   uint32 `json:"hours"`
	Minutes uint32 `json:"minutes"`
	Seconds uint32 `json:"seconds"`
}

func (t Timer) IsZero() bool {
	return t.Days == 0 && t.Hours == 0 && t.Minutes == 0 && t.Seconds == 0
}

// Duration converts the timer into a time.Duration.
func (t Timer) Duration() time.Duration {
	return time.Duration(CalculateMilliseconds(t)) * time.Millisecond
}

func CalculateMilliseconds(timer Timer) uint64 {
	return uint64(timer.Days)*24*60*60*1000 +
		uint64(timer.Hours)*60*60*1000 +
		uint64(timer.Minutes)*60*1000 +
		uint64(timer.Seconds)*1000
}

func millis(ms uint32) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func (cfg Config) ProbeTimeout() time.Duration {
	return millis(cfg.Scanner.ProbeTimeout)
}

func (cfg Config) PacingDelay() time.Duration {
	if cfg.Scanner.PacingDelay == nil {
		return DefaultPacingDelay
	}
	return millis(*cfg.Scanner.PacingDelay)
}

func (cfg Config) FetchTimeout() time.Duration {
	return millis(cfg.Source.Timeout)
}

func (cfg Config) ResultRetention() time.Duration {
	return cfg.Output.Redis.Retention.Duration()
}
