package progress

import "errors"

// Sentinel errors returned by Tracker. Callers compare with errors.Is.
var (
	// OperationExists is returned by StartOperation when the given id is
	// already registered.
	OperationExists = errors.New("progress: operation already exists")

	// OperationNotFound is returned by GetOperation, GetEvents, Subscribe,
	// and CancelOperation when the id is not (or no longer) tracked.
	OperationNotFound = errors.New("progress: operation not found")

	// OperationFinalized is returned by reporter methods called after the
	// operation has already reached a terminal status.
	OperationFinalized = errors.New("progress: operation already finalized")

	// errUseCompleteOrFail is returned by Reporter.Status when called with a
	// terminal status; Complete or Fail must be used to reach one.
	errUseCompleteOrFail = errors.New("progress: use Complete or Fail to reach a terminal status")
)
