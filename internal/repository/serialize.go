package repository

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Serialized columns round-trip arbitrary values through CBOR and store the
// binary form base64-encoded in a text column. The encoding is an internal
// detail; interoperability with other readers is not promised.

func encodeSerialized(v any) (string, error) {
	raw, err := cbor.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding serialized column: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func decodeSerialized(s string, out any) error {
	if s == "" {
		return nil
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return fmt.Errorf("decoding serialized column: %w", err)
	}
	if err := cbor.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding serialized column: %w", err)
	}
	return nil
}

// Date and datetime columns store integer epoch seconds. Dates load at
// midnight UTC; datetimes load as tz-aware instants in UTC.

func epochToTime(epoch int64) time.Time {
	return time.Unix(epoch, 0).UTC()
}

func timeToEpoch(t time.Time) int64 {
	return t.UTC().Unix()
}

func nullableEpoch(t *time.Time) any {
	if t == nil {
		return nil
	}
	return timeToEpoch(*t)
}

func nullableTime(epoch *int64) *time.Time {
	if epoch == nil {
		return nil
	}
	t := epochToTime(*epoch)
	return &t
}
