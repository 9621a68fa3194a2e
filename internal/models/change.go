package models

// RequestChange is one mutation of a persisted EmergencyRequest, delivered
// on the change feed. Agents consume it alongside the ephemeral channel to
// catch authoritative status transitions that broadcasts do not carry.
type RequestChange struct {
	OperationType string // insert, update, replace, delete
	Request       *EmergencyRequest
}
