package config

type WorkerKeyStruct struct {
	BeaconQueue        string
	PersistEventsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	BeaconQueue:        "beacon_answers_queue",
	PersistEventsQueue: "persist_events_queue",
}
