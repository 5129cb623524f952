package types

// Status is a type for the lifecycle status of a stored resource.
// It is used to determine whether a resource should be included in queries.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusDeleted  Status = "deleted"
)
