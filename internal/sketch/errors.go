package sketch

import "errors"

// Sketch mutation errors.
var (
	ErrStrokeExists   = errors.New("stroke already in sketch")
	ErrStrokeNotFound = errors.New("stroke not found")
	ErrShapeNotFound  = errors.New("shape not found")
	ErrSameShape      = errors.New("cannot merge a shape into itself")
)
