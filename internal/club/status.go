package club

import "fmt"

// Status is the approval state of a reimbursement request
type Status int

const (
	StatusPendingReview Status = iota
	StatusUnderReview
	StatusErrors
	StatusApproved
	StatusDeclined
)

// StatusUnknown is an unrecognised wire key
const StatusUnknown Status = -1

var statusInfo = [...]struct {
	key   string
	label string
}{
	StatusPendingReview: {"pendingReview", "Pending Review"},
	StatusUnderReview:   {"underReview", "Under Review"},
	StatusErrors:        {"errors", "Errors"},
	StatusApproved:      {"approved", "Approved"},
	StatusDeclined:      {"declined", "Declined"},
}

// Statuses returns every status in board order
func Statuses() []Status {
	return []Status{
		StatusPendingReview,
		StatusUnderReview,
		StatusErrors,
		StatusApproved,
		StatusDeclined,
	}
}

// ParseStatus converts a wire key such as "pendingReview" into a Status
func ParseStatus(key string) (Status, error) {
	for i, info := range statusInfo {
		if info.key == key {
			return Status(i), nil
		}
	}
	return 0, fmt.Errorf("unknown status: %q", key)
}

func (s Status) valid() bool {
	return s >= 0 && int(s) < len(statusInfo)
}

// Key returns the wire key of the status
func (s Status) Key() string {
	if !s.valid() {
		return ""
	}
	return statusInfo[s].key
}

// Label returns the display label of the status
func (s Status) Label() string {
	if !s.valid() {
		return ""
	}
	return statusInfo[s].label
}

func (s Status) String() string {
	return s.Key()
}

// MarshalText implements encoding.TextMarshaler
func (s Status) MarshalText() ([]byte, error) {
	if !s.valid() {
		return nil, fmt.Errorf("invalid status: %d", int(s))
	}
	return []byte(s.Key()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Keys the server knows
// and this client does not decode to StatusUnknown instead of failing.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		*s = StatusUnknown
		return nil
	}
	*s = parsed
	return nil
}

// Known reports whether s is one of the five board statuses
func (s Status) Known() bool {
	return s.valid()
}
