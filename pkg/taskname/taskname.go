package taskname

const (
	// Callback tasks
	CallbackReconcile = "callback:reconcile"

	// Referral tasks
	ReferralEvaluate = "referral:evaluate"
)

// Queues
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)
