package topics

const (
	// Resultados
	StatisticFinal = "statistic_final"

	// Contests
	ContestEvents = "contest_events"

	// DLQs
	StatisticFinalDLQ = "statistic_final_dlq"
)
