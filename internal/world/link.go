package world

import "math"

// SelfRSSI is the sentinel RSSI returned for a link from a drone to
// itself: math.MaxFloat64 rather than +Inf, with zero latency.
const SelfRSSI = math.MaxFloat64

// LinkKey identifies a directed RF link.
type LinkKey struct {
	SenderID   int
	ReceiverID int
}

// RFLink is the latest computed state of one directed radio link.
// Reading it must never mutate the channel's random state; callers
// receive a value copy, never a handle into the mutable table.
type RFLink struct {
	SenderID        int     `json:"sender_id"`
	ReceiverID      int     `json:"receiver_id"`
	RSSIDbm         float64 `json:"rssi_dbm"`
	LatencySec      float64 `json:"latency_s"`
	PacketLossProb  float64 `json:"packet_loss_prob"`
	LastUpdatedTime float64 `json:"last_updated_time"`
}
