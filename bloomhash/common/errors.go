package common

import (
	"errors"
	"fmt"
	"io/fs"
)

// Error kinds shared by the builder, query and validator packages
var (
	ErrUnknownHashMethod = errors.New("unknown hash method")
	ErrMalformedMetadata = errors.New("malformed table metadata")
	ErrInvalidDigest     = errors.New("digest is not valid hexadecimal")
	ErrEmptyWordlist     = errors.New("wordlist has no entries")
	ErrTableClosed       = errors.New("bit table is closed")
	ErrTableReadOnly     = errors.New("bit table is opened read-only")
	ErrTableTruncated    = errors.New("bit table file is shorter than its size")
)

// IOError reports a failed filesystem operation on a wordlist, table or
// metadata file.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// WrapIO wraps err as an IOError. A nil err stays nil.
func WrapIO(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Op: op, Path: path, Err: err}
}

// IsIOError reports whether err carries an IOError anywhere in its chain.
func IsIOError(err error) bool {
	var ioErr *IOError
	return errors.As(err, &ioErr)
}

// IsNotExist reports whether err was caused by a missing file.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
