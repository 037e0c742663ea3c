package model

import (
	"encoding/json"
	"time"
)

// JobStatus is the stage of a job application.
type JobStatus string

const (
	JobApplied   JobStatus = "Applied"
	JobInterview JobStatus = "Interview"
	JobRejected  JobStatus = "Rejected"
	JobPlaced    JobStatus = "Placed"
)

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobApplied, JobInterview, JobRejected, JobPlaced:
		return true
	}
	return false
}

// Active reports whether an application in this status is still open.
func (s JobStatus) Active() bool {
	return s != JobRejected && s != JobPlaced
}

// TimerSession is one completed focus session. Duration is in minutes.
type TimerSession struct {
	ID       string    `json:"id"`
	Subject  string    `json:"subject"`
	Duration int       `json:"duration"`
	Date     time.Time `json:"date"`
}

// Task is a kanban card.
type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	DueDate     string    `json:"dueDate"`
	CreatedAt   time.Time `json:"createdAt"`
}

// TaskBoard holds the three kanban columns. A task id lives in one column only.
type TaskBoard struct {
	Todo  []Task `json:"todo"`
	Doing []Task `json:"doing"`
	Done  []Task `json:"done"`
}

// UnmarshalJSON accepts the inProgress/completed column names used by the
// planner view as aliases of doing/done.
func (b *TaskBoard) UnmarshalJSON(data []byte) error {
	var raw struct {
		Todo       []Task `json:"todo"`
		Doing      []Task `json:"doing"`
		Done       []Task `json:"done"`
		InProgress []Task `json:"inProgress"`
		Completed  []Task `json:"completed"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	b.Todo = raw.Todo
	b.Doing = raw.Doing
	if b.Doing == nil {
		b.Doing = raw.InProgress
	}
	b.Done = raw.Done
	if b.Done == nil {
		b.Done = raw.Completed
	}
	b.normalize()
	return nil
}

// DuplicateID returns the first task id found in more than one place on the board.
func (b TaskBoard) DuplicateID() (string, bool) {
	seen := make(map[string]struct{})
	for _, col := range [][]Task{b.Todo, b.Doing, b.Done} {
		for _, t := range col {
			if t.ID == "" {
				continue
			}
			if _, ok := seen[t.ID]; ok {
				return t.ID, true
			}
			seen[t.ID] = struct{}{}
		}
	}
	return "", false
}

// Len returns the number of tasks across all columns.
func (b TaskBoard) Len() int {
	return len(b.Todo) + len(b.Doing) + len(b.Done)
}

func (b *TaskBoard) normalize() {
	if b.Todo == nil {
		b.Todo = []Task{}
	}
	if b.Doing == nil {
		b.Doing = []Task{}
	}
	if b.Done == nil {
		b.Done = []Task{}
	}
}

func (b TaskBoard) clone() TaskBoard {
	return TaskBoard{
		Todo:  append([]Task{}, b.Todo...),
		Doing: append([]Task{}, b.Doing...),
		Done:  append([]Task{}, b.Done...),
	}
}

// Job is a tracked job application.
type Job struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Company     string    `json:"company"`
	DateApplied string    `json:"dateApplied"`
	Status      JobStatus `json:"status"`
	Notes       string    `json:"notes"`
	CreatedAt   time.Time `json:"createdAt"`
}

// DashboardData is the summary computed by clients from the other fields.
type DashboardData struct {
	TotalHours         float64 `json:"totalHours"`
	CompletedTasks     int     `json:"completedTasks"`
	ActiveApplications int     `json:"activeApplications"`
	SessionsThisWeek   int     `json:"sessionsThisWeek"`
}

// UserData is the per-user aggregate document.
type UserData struct {
	UserID        string         `json:"userId"`
	TimerSessions []TimerSession `json:"timerSessions"`
	Tasks         TaskBoard      `json:"tasks"`
	Jobs          []Job          `json:"jobs"`
	DashboardData DashboardData  `json:"dashboardData"`
}

// NewUserData returns the empty aggregate for userID.
func NewUserData(userID string) UserData {
	d := UserData{UserID: userID}
	d.Normalize()
	return d
}

// Normalize replaces nil sequences with empty ones so they encode as [].
func (d *UserData) Normalize() {
	if d.TimerSessions == nil {
		d.TimerSessions = []TimerSession{}
	}
	if d.Jobs == nil {
		d.Jobs = []Job{}
	}
	d.Tasks.normalize()
}

// Clone returns a copy that shares no slices with d.
func (d UserData) Clone() UserData {
	return UserData{
		UserID:        d.UserID,
		TimerSessions: append([]TimerSession{}, d.TimerSessions...),
		Tasks:         d.Tasks.clone(),
		Jobs:          append([]Job{}, d.Jobs...),
		DashboardData: d.DashboardData,
	}
}

// ReplaceJob swaps the job with the given id for job. It reports whether a
// job was replaced; an unknown id leaves the sequence unchanged.
func (d *UserData) ReplaceJob(jobID string, job Job) bool {
	for i := range d.Jobs {
		if d.Jobs[i].ID == jobID {
			d.Jobs[i] = job
			return true
		}
	}
	return false
}

// RemoveJob filters out every job with the given id and reports whether any was removed.
func (d *UserData) RemoveJob(jobID string) bool {
	kept := d.Jobs[:0:0]
	for _, j := range d.Jobs {
		if j.ID != jobID {
			kept = append(kept, j)
		}
	}
	removed := len(kept) != len(d.Jobs)
	d.Jobs = kept
	return removed
}

// ComputeDashboard derives the summary from the sessions, tasks and jobs.
// Sessions dated within the seven days before now count towards the week.
func (d UserData) ComputeDashboard(now time.Time) DashboardData {
	var minutes int
	weekAgo := now.AddDate(0, 0, -7)
	var thisWeek int
	for _, s := range d.TimerSessions {
		minutes += s.Duration
		if !s.Date.Before(weekAgo) {
			thisWeek++
		}
	}

	var active int
	for _, j := range d.Jobs {
		if j.Status.Active() {
			active++
		}
	}

	return DashboardData{
		TotalHours:         float64(minutes) / 60,
		CompletedTasks:     len(d.Tasks.Done),
		ActiveApplications: active,
		SessionsThisWeek:   thisWeek,
	}
}

// RecomputeDashboard overwrites DashboardData with ComputeDashboard(now).
func (d *UserData) RecomputeDashboard(now time.Time) {
	d.DashboardData = d.ComputeDashboard(now)
}

// WriteResult is the envelope returned by every mutating endpoint.
type WriteResult struct {
	Success  bool `json:"success"`
	Fallback bool `json:"fallback,omitempty"`
}

// DataStats are totals across all aggregates.
type DataStats struct {
	TotalSessions int `json:"totalSessions"`
	TotalTasks    int `json:"totalTasks"`
}

// AdminStats is the admin panel summary.
type AdminStats struct {
	TotalUsers    int    `json:"totalUsers"`
	TotalSessions int    `json:"totalSessions"`
	TotalTasks    int    `json:"totalTasks"`
	SystemStatus  string `json:"systemStatus"`
}
