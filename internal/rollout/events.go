package rollout

// Event topics published by the rollout module.
const (
	TopicDeploymentStarted   = "rollout.deployment.started"
	TopicDeploymentLog       = "rollout.deployment.log"
	TopicDeploymentCompleted = "rollout.deployment.completed"
)

// DeploymentEvent is the payload for started and completed events.
type DeploymentEvent struct {
	DeploymentID string `json:"deployment_id"`
	DeviceID     string `json:"device_id"`
	ArtifactRef  string `json:"artifact_ref"`
	State        State  `json:"state"`
	Error        string `json:"error,omitempty"`
}

// LogEvent is the payload for TopicDeploymentLog, published once per
// appended line in append order.
type LogEvent struct {
	DeploymentID string  `json:"deployment_id"`
	DeviceID     string  `json:"device_id"`
	Line         LogLine `json:"line"`
}
