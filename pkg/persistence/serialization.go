package persistence

import (
	"encoding/json"
	"fmt"
)

// MarshalTreeRecord serializes a TreeRecord to JSON bytes.
// The digest store is encoded as base64 by encoding/json.
func MarshalTreeRecord(record *TreeRecord) ([]byte, error) {
	if record == nil {
		return nil, fmt.Errorf("cannot marshal nil TreeRecord")
	}

	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal TreeRecord to JSON: %w", err)
	}

	return data, nil
}

// UnmarshalTreeRecord deserializes a TreeRecord from JSON bytes.
func UnmarshalTreeRecord(data []byte) (*TreeRecord, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var record TreeRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to TreeRecord: %w", err)
	}

	return &record, nil
}

// ValidateTreeRecord checks the fields every backend relies on.
func ValidateTreeRecord(record *TreeRecord) error {
	if record == nil {
		return fmt.Errorf("cannot save nil TreeRecord")
	}
	root, err := record.RootBytes()
	if err != nil {
		return err
	}
	if len(root) == 0 {
		return fmt.Errorf("tree record %s has an empty root", record.ID)
	}
	if record.Algorithm == "" {
		return fmt.Errorf("tree record %s has no algorithm", record.Root)
	}
	return nil
}
