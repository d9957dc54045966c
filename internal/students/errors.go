package students

import "errors"

var (
	// ErrSessionNotFound is returned when a session id does not exist
	ErrSessionNotFound = errors.New("session not found")

	// ErrStudentNotFound is returned when a student id does not exist
	ErrStudentNotFound = errors.New("student not found")
)
