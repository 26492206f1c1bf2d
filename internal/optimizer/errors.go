package optimizer

import "errors"

var (
	ErrSourceUnreadable      = errors.New("source unreadable")
	ErrDestinationUnwritable = errors.New("destination unwritable")
	ErrWorkingCopy           = errors.New("working copy failed")
	ErrToolTimeout           = errors.New("tool timed out")
)
