package config

type WorkerKeyStruct struct {
	SubmitOutboxQueue     string
	SubmitDeadLetterQueue string
}

var WorkerKey = &WorkerKeyStruct{
	SubmitOutboxQueue:     "submit_results_outbox",
	SubmitDeadLetterQueue: "submit_results_dead",
}
