package provisioner

import "errors"

// Domain errors for the provisioning engine.
var (
	// ErrNilDB is returned by New when no configuration database is supplied.
	ErrNilDB = errors.New("provisioner: configuration database is required")

	// ErrNilRadio is returned by New when no radio is supplied.
	ErrNilRadio = errors.New("provisioner: radio is required")

	// ErrInvalidConfig is returned by New when timing or addressing is unusable.
	ErrInvalidConfig = errors.New("provisioner: invalid config")

	// ErrAlreadyRunning is returned by Start on a running engine.
	ErrAlreadyRunning = errors.New("provisioner: already running")

	// ErrNoAppKey is logged when the application key is missing and the
	// configuration pass is skipped.
	ErrNoAppKey = errors.New("provisioner: no application key")
)
