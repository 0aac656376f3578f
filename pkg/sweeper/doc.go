// Package sweeper removes expired bins.
//
// Sweeper.Sweep lists bins whose expiry is not after now, re-checks each
// with bin.IsLive and deletes the dead ones together with their captured
// requests. Scheduler runs sweeps and statistics collection on cron
// schedules (github.com/robfig/cron/v3):
//
//	s := sweeper.New(store, sweeper.WithMaintainer(limitsManager))
//	sched := sweeper.NewScheduler(s, sweeper.DefaultConfig())
//	if err := sched.Start(ctx); err != nil {
//	    return err
//	}
//	defer sched.Stop()
//
// The sweep is not atomic across bins. A lookup racing a sweep delete
// resolves as not found.
package sweeper
