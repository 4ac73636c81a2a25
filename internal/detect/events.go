package detect

// Event topics consumed by the detect module.
const (
	TopicSampleEmitted = "source.sample.emitted"
	TopicStreamRemoved = "source.stream.removed"
)

// Event topics published by the detect module.
const (
	TopicSampleClassified = "detect.sample.classified"
	TopicAnomalyDetected  = "detect.anomaly.detected"
	TopicAlertRaised      = "detect.alert.raised"
	TopicAlertResolved    = "detect.alert.resolved"
)
