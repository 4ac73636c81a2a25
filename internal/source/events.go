package source

// Event topics published by the source module.
const (
	TopicSampleEmitted = "source.sample.emitted"
	TopicStreamRemoved = "source.stream.removed"
)
