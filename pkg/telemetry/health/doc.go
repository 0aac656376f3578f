// Package health implements the liveness and readiness probes.
//
// Liveness only reports that the process serves requests. Readiness runs
// every registered check concurrently with a per-check timeout and answers
// 503 when any fails:
//
//	checker := health.New(5 * time.Second)
//	checker.RegisterCheck("storage", health.PingCheck(store))
//	r.Get("/health", checker.LivenessHandler())
//	r.Get("/ready", checker.ReadinessHandler())
package health
