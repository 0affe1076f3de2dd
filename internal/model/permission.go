package model

// Permission represents a string code for a specific system action.
type Permission string

const (
	// PermissionExamsRead allows viewing exams and their answer keys.
	PermissionExamsRead Permission = "exams:read"

	// PermissionExamsWrite allows creating and updating exams and their questions.
	PermissionExamsWrite Permission = "exams:write"

	// PermissionResultsRead allows listing graded results of an exam.
	PermissionResultsRead Permission = "results:read"

	// PermissionAttemptsReset allows wiping a student's attempt so they can retake.
	PermissionAttemptsReset Permission = "attempts:reset"
)
