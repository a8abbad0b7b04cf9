package fhir

import "errors"

// ErrMissingID is returned when a repository resource arrives without an id;
// such a resource cannot participate in references or sharing.
var ErrMissingID = errors.New("resource has no id")
