package models

import "time"

// RunReport holds the overall result of one watch run.
type RunReport struct {
	StartTime time.Time
	EndTime   time.Time

	SitesConfigured int
	SitesCompleted  int
	SitesAbandoned  int
	SitesFailed     int
	PageCount       int

	TaskErrors   []TaskError
	ErrorsByKind map[string]int

	Observed    int
	Transitions map[TransitionKind]int

	NotificationsSent   int
	NotificationsFailed int

	TimedOut bool
	Swept    bool
}

// Duration returns the wall time of the run.
func (r *RunReport) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}
