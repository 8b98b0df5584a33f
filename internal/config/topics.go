package config

const (
	// TopicWorkflowRun is the NSQ topic carrying requests to run a stored workflow.
	TopicWorkflowRun = "workflow.run"

	// TopicExecutionEvents is the NSQ topic for execution lifecycle events
	// (running, completed, failed).
	TopicExecutionEvents = "execution.events"

	// ChannelEngine is the channel the engine consumes run requests on.
	ChannelEngine = "engine"
)
