package model

import (
	"time"

	"github.com/google/uuid"
)

// DefaultPassPercentage applies when an exam is created without a threshold.
const DefaultPassPercentage = 50

// ScheduleStatus describes where now falls relative to an exam's window.
type ScheduleStatus string

const (
	ScheduleUpcoming  ScheduleStatus = "upcoming"
	ScheduleAvailable ScheduleStatus = "available"
	ScheduleEnded     ScheduleStatus = "ended"
)

// Exam represents an exam entity.
type Exam struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	DurationMinutes int        `json:"duration_minutes"`
	Disclaimer      string     `json:"disclaimer"`
	PassPercentage  int        `json:"pass_percentage"`
	ScheduleStart   *time.Time `json:"schedule_start,omitempty"`
	ScheduleEnd     *time.Time `json:"schedule_end,omitempty"`
	IsActive        bool       `json:"is_active"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Duration returns the attempt time limit.
func (e *Exam) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}

// ScheduleStatusAt reports whether now is before, inside or after the window.
// A nil bound is open.
func (e *Exam) ScheduleStatusAt(now time.Time) ScheduleStatus {
	if e.ScheduleStart != nil && e.ScheduleStart.After(now) {
		return ScheduleUpcoming
	}
	if e.ScheduleEnd != nil && e.ScheduleEnd.Before(now) {
		return ScheduleEnded
	}
	return ScheduleAvailable
}

// OfferableAt reports whether a student may begin the exam at now.
func (e *Exam) OfferableAt(now time.Time) bool {
	return e.IsActive && e.ScheduleStatusAt(now) == ScheduleAvailable
}

// CreateExamRequest is the payload for creating a new exam.
type CreateExamRequest struct {
	Title           string     `json:"title" binding:"required,min=3,max=255"`
	DurationMinutes int        `json:"duration_minutes" binding:"required,min=1,max=480"`
	Disclaimer      string     `json:"disclaimer" binding:"omitempty,max=5000"`
	PassPercentage  *int       `json:"pass_percentage" binding:"omitempty,min=0,max=100"`
	ScheduleStart   *time.Time `json:"schedule_start" binding:"omitempty"`
	ScheduleEnd     *time.Time `json:"schedule_end" binding:"omitempty,gtfield=ScheduleStart"`
	IsActive        *bool      `json:"is_active" binding:"omitempty"`
}

// UpdateExamRequest is the payload for updating an existing exam. Nil fields
// are left unchanged; ClearSchedule removes both schedule bounds.
type UpdateExamRequest struct {
	Title           string     `json:"title" binding:"omitempty,min=3,max=255"`
	DurationMinutes int        `json:"duration_minutes" binding:"omitempty,min=1,max=480"`
	Disclaimer      *string    `json:"disclaimer" binding:"omitempty,max=5000"`
	PassPercentage  *int       `json:"pass_percentage" binding:"omitempty,min=0,max=100"`
	ScheduleStart   *time.Time `json:"schedule_start" binding:"omitempty"`
	ScheduleEnd     *time.Time `json:"schedule_end" binding:"omitempty"`
	ClearSchedule   bool       `json:"clear_schedule"`
	IsActive        *bool      `json:"is_active" binding:"omitempty"`
}

// Apply copies the non-empty fields of r onto e.
func (r *UpdateExamRequest) Apply(e *Exam) {
	if r.Title != "" {
		e.Title = r.Title
	}
	if r.DurationMinutes > 0 {
		e.DurationMinutes = r.DurationMinutes
	}
	if r.Disclaimer != nil {
		e.Disclaimer = *r.Disclaimer
	}
	if r.PassPercentage != nil {
		e.PassPercentage = *r.PassPercentage
	}
	if r.ClearSchedule {
		e.ScheduleStart, e.ScheduleEnd = nil, nil
	}
	if r.ScheduleStart != nil {
		e.ScheduleStart = r.ScheduleStart
	}
	if r.ScheduleEnd != nil {
		e.ScheduleEnd = r.ScheduleEnd
	}
	if r.IsActive != nil {
		e.IsActive = *r.IsActive
	}
}
