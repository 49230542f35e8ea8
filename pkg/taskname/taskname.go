package taskname

const (
	// Welfare tasks
	WelfarePayoutRun  = "welfare:payout:run"
	WelfarePayoutUser = "welfare:payout:user"
)
