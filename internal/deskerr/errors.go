package deskerr

import "errors"

var (
	ErrValidation     = errors.New("validation failed")
	ErrPermission     = errors.New("permission denied")
	ErrInstallation   = errors.New("installation failed")
	ErrClassification = errors.New("classification failed")
)
