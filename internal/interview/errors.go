package interview

import "errors"

var (
	// ErrNoActiveSession is returned by operations that need a current session.
	ErrNoActiveSession = errors.New("no active session")

	// ErrEmptyQuestionSet aborts Start when generation produced no questions.
	ErrEmptyQuestionSet = errors.New("failed to generate interview questions")

	// ErrBusy is returned while another operation is still in flight.
	ErrBusy = errors.New("another interview operation is in progress")

	// ErrSessionActive is returned by Start when an active session exists.
	ErrSessionActive = errors.New("an interview session is already active")

	// ErrArchive wraps a failure of the Archiver passed to Summarize. The
	// evaluation is still returned and kept on the session.
	ErrArchive = errors.New("archiving interview summary failed")
)
