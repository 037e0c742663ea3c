package model

// Request bodies for the user-data endpoints. Pointer fields distinguish an
// absent field from its zero value.

type TimerSessionRequest struct {
	Session *TimerSession `json:"session"`
}

type TasksRequest struct {
	Tasks *TaskBoard `json:"tasks"`
}

type JobRequest struct {
	Job *Job `json:"job"`
}

type UpdateJobRequest struct {
	UpdatedJob *Job `json:"updatedJob"`
}

type DashboardRequest struct {
	DashboardData *DashboardData `json:"dashboardData"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Storage string `json:"storage"`
}
