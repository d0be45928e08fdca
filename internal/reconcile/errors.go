package reconcile

import "errors"

var (
	// ErrSyncInProgress is returned when another sync holds the clinic's lock.
	ErrSyncInProgress = errors.New("reconcile: sync already in progress for clinic")
	// ErrClinicRequired is returned for an empty clinic id.
	ErrClinicRequired = errors.New("reconcile: clinic id required")
)
