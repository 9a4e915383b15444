package data

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrNotDownloaded   = errors.New("area is not downloaded")
	ErrCorruptPackage  = errors.New("offline package is corrupt")
	ErrAreaNotInParent = errors.New("parent does not contain area")
	ErrInvalidMapType  = errors.New("invalid map type")
	ErrNothingToDelete = errors.New("nothing to delete")
)

// Failure is the typed error returned by data-fetch operations.
type Failure struct {
	Message string
	Err     error
}

func NewFailure(message string, err error) *Failure {
	return &Failure{Message: message, Err: err}
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return f.Message
	}
	if f.Message == "" {
		return f.Err.Error()
	}
	return f.Message + ": " + f.Err.Error()
}

func (f *Failure) Unwrap() error {
	return f.Err
}
