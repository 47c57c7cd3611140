package heartbeat

import (
	"errors"
	"fmt"
)

// ErrHostnameResolution is returned when the hostname of the local machine
// could not be determined
var ErrHostnameResolution = errors.New("hostname resolution failed")

// HostnameFunc resolves the name of the local machine
type HostnameFunc func() (string, error)

// Builder assembles heartbeat records
// It holds no state besides the resolver and is safe for concurrent use
type Builder struct {
	hostname HostnameFunc
}

// NewBuilder creates a builder that resolves the computer name with the given function
func NewBuilder(hostname HostnameFunc) *Builder {
	return &Builder{hostname: hostname}
}

// Build creates a heartbeat record for the given timestamp, data type and IP name
// The hostname is looked up on every call. A failed lookup is returned to the
// caller as-is; no partial record is produced.
func (b *Builder) Build(timestamp, dataType, ipName string) (*Record, error) {
	if b == nil || b.hostname == nil {
		return nil, fmt.Errorf("%w: resolver unavailable", ErrHostnameResolution)
	}

	computer, err := b.hostname()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHostnameResolution, err)
	}

	return &Record{
		DataType: dataType,
		IPName:   ipName,
		DataItems: []DataItem{
			{
				Timestamp: timestamp,
				Collections: []CounterSample{
					{CounterName: CounterName, Value: CounterValue},
				},
				Computer: computer,
			},
		},
	}, nil
}
