package cleanup

import "github.com/juju/errors"

// Error kinds. Concrete errors are annotated with context and marked with
// one of these via errors.WithType; test with errors.Is.
const (
	// ErrResolution means no tier could supply a module's identifier list.
	ErrResolution = errors.ConstError("identifier resolution failed")
	// ErrEnumeration means the OS listing of a module's objects failed.
	ErrEnumeration = errors.ConstError("object enumeration failed")
	// ErrCriteriaParse means an identifier list is malformed or carries
	// unknown fields.
	ErrCriteriaParse = errors.ConstError("malformed uninstall criteria")
	// ErrUninstallFailed means removing a single object failed.
	ErrUninstallFailed = errors.ConstError("uninstall failed")
	// ErrAlreadyUninstalled means the object's uninstaller is gone, which
	// leaves nothing to do.
	ErrAlreadyUninstalled = errors.ConstError("already uninstalled")
	// ErrWaitFailed means waiting on a process or handle failed.
	ErrWaitFailed = errors.ConstError("wait failed")
	// ErrAborted means the operator cancelled the whole run.
	ErrAborted = errors.ConstError("aborted by user")
)

// Fatal reports whether err ends the module run, as opposed to a failure
// scoped to a single object.
func Fatal(err error) bool {
	return errors.Is(err, ErrResolution) ||
		errors.Is(err, ErrEnumeration) ||
		errors.Is(err, ErrCriteriaParse)
}
