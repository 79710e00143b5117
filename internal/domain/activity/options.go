package activity

// ListActivityOptions provides filtering options for listing activity.
type ListActivityOptions struct {
	ProjectID    string
	Subject      *string
	ActivityType *ActivityType
	IterationID  *int
	Limit        int
	Offset       int
}
