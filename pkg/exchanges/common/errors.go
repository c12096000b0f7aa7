package common

import "errors"

// MaxBatchSize is the largest order count one batch submission may carry.
const MaxBatchSize = 5

var (
	ErrEmptyBatch    = errors.New("order batch is empty")
	ErrBatchTooLarge = errors.New("order batch exceeds maximum size")
)
