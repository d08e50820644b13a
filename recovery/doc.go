// Package recovery drives reconnection after abnormal transport loss.
//
// The Manager schedules reconnect attempts with exponential backoff, skips
// attempts while the network observer reports no connectivity, and retries
// immediately when connectivity returns. A periodic HealthChecker probes the
// established connection and hands negative results back to the manager.
package recovery
