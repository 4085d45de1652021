package element

import "errors"

var (
	// ErrInvalidVar is returned for missing or non-serializable variables.
	ErrInvalidVar = errors.New("invalid element variable")
	// ErrInvalidTag is returned for missing or non-serializable tags.
	ErrInvalidTag = errors.New("invalid element tag")
	// ErrTypeTest wraps a failure raised by a type test.
	ErrTypeTest = errors.New("element type test failed")
	// ErrTypeConstruction wraps a failure raised while constructing an element.
	ErrTypeConstruction = errors.New("element construction failed")
	// ErrWrongType is returned when no registered type accepts the data.
	ErrWrongType = errors.New("no element type accepts data")
	// ErrLeafChildren is returned when children are requested from a leaf.
	ErrLeafChildren = errors.New("leaf element has no children")
	// ErrTypeNotFound is returned for unregistered type names.
	ErrTypeNotFound = errors.New("element type not registered")
)
