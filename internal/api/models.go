package api

// CreateStudentRequest is the payload for the student provisioning
// endpoint. The requesting manager comes from the auth token, not the
// body.
type CreateStudentRequest struct {
	FullName string `json:"full_name" validate:"required,max=200"`
	Email    string `json:"email"     validate:"required,email"`
	Password string `json:"password"  validate:"required,min=8,max=72"`
}

// UpdateModeRequest is the payload for the operator mode switch.
type UpdateModeRequest struct {
	Mode   string `json:"mode"   validate:"required,oneof=async_queue sync_direct"`
	Reason string `json:"reason" validate:"max=500"`
}

// ModeResponse reports the effective system mode.
type ModeResponse struct {
	Mode string `json:"mode"`
}

// MetricsResponse reports queue depth per job status.
type MetricsResponse struct {
	Jobs map[string]int `json:"jobs"`
}
