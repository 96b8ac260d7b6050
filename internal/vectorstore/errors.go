package vectorstore

import "errors"

var (
	ErrUnreachable       = errors.New("vector store unreachable")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrUnknownDistance   = errors.New("unknown distance")
)
