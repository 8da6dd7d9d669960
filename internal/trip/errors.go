package trip

import "errors"

var (
	ErrNotFound        = errors.New("trip not found")
	ErrDriverAssigned  = errors.New("trip already has a driver")
	ErrPickUpRequired  = errors.New("pick up address is required")
	ErrDropOffRequired = errors.New("drop off address is required")
	ErrRiderRequired   = errors.New("rider is required")
	ErrInvalidStatus   = errors.New("invalid trip status")
	ErrUserNotFound    = errors.New("user not found")
	ErrBadCredential   = errors.New("unknown or expired credential")
)
