package types

import (
	"time"

	"github.com/google/uuid"
)

// RuleID represents a UUIDv7 rule identifier.
// String alias enables type safety while maintaining JSON string
// serialization. UUIDv7 time-ordering clusters sequential IDs in B-tree
// indexes.
type RuleID string

// LeadID represents a UUIDv7 lead identifier supplied with records.
type LeadID string

// NewRuleID generates a UUIDv7 rule identifier.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewRuleID() RuleID {
	return RuleID(uuid.Must(uuid.NewV7()).String())
}

// NewConditionID generates a UUIDv7 identifier for a condition or group.
// Conditions only need uniqueness within one rule but UUIDs keep the
// authoring UI free of collision bookkeeping.
func NewConditionID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// ParseRuleID validates and converts a string to RuleID.
// Rejects malformed UUIDs to prevent invalid IDs from entering the system.
func ParseRuleID(s string) (RuleID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return RuleID(s), nil
}

// RuleIDTime extracts the timestamp embedded in a UUIDv7 rule ID.
// Returns zero time for invalid UUIDs; caller should check IsZero().
func RuleIDTime(id RuleID) time.Time {
	u, err := uuid.Parse(string(id))
	if err != nil {
		return time.Time{}
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec)
}
