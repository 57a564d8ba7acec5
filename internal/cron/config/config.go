package cron_config

// Schedules use the six field format with seconds. An empty schedule disables
// the job.
type Config struct {
	// Heartbeat check, every minute
	CronScheduleHeartbeat string `env:"CRON_SCHEDULE_HEARTBEAT" envDefault:"0 * * * * *"`
	// Mailbox rescan, every six hours
	CronScheduleRescan string `env:"CRON_SCHEDULE_RESCAN" envDefault:"0 0 */6 * * *"`
	// Drop expired and consumed undo records, every ten minutes
	CronScheduleUndoCompaction string `env:"CRON_SCHEDULE_UNDO_COMPACTION" envDefault:"0 */10 * * * *"`
	// Drop expired plans, hourly
	CronSchedulePlanCleanup string `env:"CRON_SCHEDULE_PLAN_CLEANUP" envDefault:"0 30 * * * *"`
	// Export the previous day of the audit log, daily shortly after midnight UTC
	CronScheduleAuditExport string `env:"CRON_SCHEDULE_AUDIT_EXPORT" envDefault:"0 5 0 * * *"`
}
