package world

// MessageKind enumerates the closed sum of messages the bus carries
// (spec.md §9 "Dynamic typing of RNG/state objects" redesign note: a
// closed enum with typed payloads, not an interface{} grab bag).
type MessageKind string

const (
	KindTelemetry      MessageKind = "TELEMETRY"
	KindFireDetection  MessageKind = "FIRE_DETECTION"
	KindSuppression    MessageKind = "SUPPRESSION"
	KindCommand        MessageKind = "COMMAND"
)

// TelemetryPayload carries a sender's pose/velocity snapshot.
type TelemetryPayload struct {
	Pose     Vector3
	Velocity Vector3
}

// FireDetectionPayload reports a sensed fire cell.
type FireDetectionPayload struct {
	Position  Vector2
	Intensity float64
}

// SuppressionPayload reports a suppression application receipt.
type SuppressionPayload struct {
	Position      Vector2
	Strength      float64
	CellsAffected int
}

// Message is one unit of bus traffic, ordered by DeliverTime with
// sender-id as the deterministic tie-break.
type Message struct {
	ID         string
	SenderID   int
	ReceiverID int // 0 means broadcast to all other vehicles
	SendTime   float64
	DeliverTime float64
	Kind       MessageKind
	Telemetry  *TelemetryPayload     `json:"telemetry,omitempty"`
	Detection  *FireDetectionPayload `json:"detection,omitempty"`
	Suppress   *SuppressionPayload   `json:"suppress,omitempty"`
}
