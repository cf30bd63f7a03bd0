// Package db holds the dedup store: the durable record of source identifiers whose compensating action has been
// confirmed. Membership in a ProcessedSet is the only idempotency oracle of the relayer.
package db

import (
	"errors"
	"fmt"

	"github.com/OmegaNetwork-source/omega-bridge/pkg/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	processedRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayer_db_processed_records_total",
			Help: "Total number of identifiers recorded in the dedup store",
		}, []string{"domain"})
	recordErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayer_db_record_errors_total",
			Help: "Total number of failed dedup store writes",
		}, []string{"domain"})
)

// ProcessedSet is a monotonically growing set of identifiers for one dedup domain.
type ProcessedSet interface {
	Domain() common.DedupDomain
	Contains(id string) (bool, error)
	// Record durably adds id. When it returns nil the identifier survives a crash.
	Record(id string) error
	IDs() ([]string, error)
	Close() error
}

var ErrEmptyID = errors.New("empty identifier")

// Operation represents a database operation type
type Operation string

const (
	OpLoad   Operation = "load"
	OpRead   Operation = "read"
	OpUpdate Operation = "update"
)

type DBError struct {
	Op     Operation
	Domain common.DedupDomain
	Key    []byte
	Err    error
}

func (e *DBError) Unwrap() error {
	return e.Err
}

func (e *DBError) Error() string {
	if len(e.Key) == 0 {
		return fmt.Sprintf("dedup store %s: %s error: %v", e.Domain, e.Op, e.Err)
	}
	return fmt.Sprintf("dedup store %s: %s key: %s error: %v", e.Domain, e.Op, e.Key, e.Err)
}
