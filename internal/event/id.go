package event

import (
	"fmt"
	"strconv"
	"strings"
)

// GenerateID builds the deterministic event ID
// "{operationID}:{kind}:{timestampNanos}:{sequence}". The pair
// (timestampNanos, sequence) gives replay a total order.
func GenerateID(operationID string, kind Kind, timestampNanos, sequence int64) string {
	return fmt.Sprintf("%s:%s:%d:%d", operationID, kind, timestampNanos, sequence)
}

// ParsedID is the result of splitting an event ID back into its components.
type ParsedID struct {
	OperationID    string
	Kind           Kind
	TimestampNanos int64
	Sequence       int64
}

// ParseID inverts GenerateID. It returns an error if id is not in the
// "{operationID}:{kind}:{timestampNanos}:{sequence}" shape. Operation IDs
// cannot themselves contain ':', so the last three colon-delimited fields
// are taken as kind/timestamp/sequence and the remainder (which may itself
// contain ':') is not supported -- callers are expected to supply operation
// IDs without colons, matching the operation ID contract.
func ParseID(id string) (ParsedID, error) {
	parts := strings.Split(id, ":")
	if len(parts) != 4 {
		return ParsedID{}, fmt.Errorf("malformed event id %q: expected 4 colon-delimited fields, got %d", id, len(parts))
	}

	ts, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return ParsedID{}, fmt.Errorf("malformed event id %q: bad timestamp: %w", id, err)
	}
	seq, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return ParsedID{}, fmt.Errorf("malformed event id %q: bad sequence: %w", id, err)
	}

	return ParsedID{
		OperationID:    parts[0],
		Kind:           Kind(parts[1]),
		TimestampNanos: ts,
		Sequence:       seq,
	}, nil
}
