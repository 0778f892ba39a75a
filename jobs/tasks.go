package jobs

import (
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskApprovalReminder nudges approvers about documents waiting on them.
	TaskApprovalReminder = "notify:reminder"
	// TaskAuditCloseScan sweeps reconciliation-pending audits whose
	// adjustments have all been decided.
	TaskAuditCloseScan = "audits:close_scan"
)

// NewApprovalReminderTask constructs the reminder cron task.
func NewApprovalReminderTask() *asynq.Task {
	return asynq.NewTask(TaskApprovalReminder, nil)
}

// NewAuditCloseScanTask constructs the audit sweep cron task.
func NewAuditCloseScanTask() *asynq.Task {
	return asynq.NewTask(TaskAuditCloseScan, nil)
}
