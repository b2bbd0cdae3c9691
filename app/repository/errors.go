package repository

import "fmt"

// DataStoreError wraps any failure talking to the backing store.
type DataStoreError struct {
	Op  string
	Err error
}

func (e *DataStoreError) Error() string {
	return fmt.Sprintf("data store: %s: %v", e.Op, e.Err)
}

func (e *DataStoreError) Unwrap() error {
	return e.Err
}

// NewDataStoreError wraps err with the failing operation name. It returns nil for a nil err.
func NewDataStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &DataStoreError{Op: op, Err: err}
}
