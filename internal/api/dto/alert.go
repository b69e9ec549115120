package dto

// AlertRequest is the payload sensors POST to /alert. Score is a pointer so
// a missing field can be told apart from a legitimate zero.
type AlertRequest struct {
	SensorID string   `json:"sensor_id"`
	IP       string   `json:"ip"`
	Score    *float64 `json:"score"`
}

// HeartbeatRequest is the liveness payload sensors POST to /heartbeat.
type HeartbeatRequest struct {
	SensorID string `json:"sensor_id"`
	IP       string `json:"ip"`
}
