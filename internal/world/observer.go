package world

// NeighborEstimate is one observer's belief about one neighbor vehicle,
// kept per (observer_id, neighbor_id) pair.
type NeighborEstimate struct {
	NeighborID      int     `json:"neighbor_id"`
	LastKnownPose   Vector3 `json:"last_known_pose"`
	LastKnownVel    Vector3 `json:"last_known_velocity"`
	LastUpdateTime  float64 `json:"last_update_time"`
}

// CollisionRisk is one entry of a collision-risk query result.
type CollisionRisk struct {
	NeighborID    int     `json:"neighbor_id"`
	PredictedPose Vector3 `json:"predicted_pose"`
	Confidence    float64 `json:"confidence"`
}
