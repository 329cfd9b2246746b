package club

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Request is a reimbursement request submitted by a club member
type Request struct {
	ID              string    `json:"_id"`
	ItemDescription string    `json:"itemDescription"`
	Amount          float64   `json:"amount"` // USD
	TeamBudget      string    `json:"teamBudget"`
	IsFood          bool      `json:"isFood"`
	Images          []Image   `json:"images"`
	Status          Status    `json:"status"`
	UserID          string    `json:"user_id"`
	Comments        []Comment `json:"comments"`
	Date            Date      `json:"date"`
}

// AllRequests partitions every request into its status bucket
type AllRequests struct {
	PendingReview []Request `json:"pendingReview"`
	UnderReview   []Request `json:"underReview"`
	Errors        []Request `json:"errors"`
	Approved      []Request `json:"approved"`
	Declined      []Request `json:"declined"`
}

// UnmarshalJSON decodes the partition. The bucket is authoritative, so a
// request whose own status key is unknown takes its bucket's status.
func (a *AllRequests) UnmarshalJSON(data []byte) error {
	type plain AllRequests
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*a = AllRequests(decoded)
	for _, s := range Statuses() {
		bucket := a.Bucket(s)
		for i := range bucket {
			if !bucket[i].Status.Known() {
				bucket[i].Status = s
			}
		}
	}
	return nil
}

// Bucket returns the requests holding status s
func (a *AllRequests) Bucket(s Status) []Request {
	if a == nil {
		return nil
	}
	switch s {
	case StatusPendingReview:
		return a.PendingReview
	case StatusUnderReview:
		return a.UnderReview
	case StatusErrors:
		return a.Errors
	case StatusApproved:
		return a.Approved
	case StatusDeclined:
		return a.Declined
	}
	return nil
}

// Find looks up a request by ID across all buckets
func (a *AllRequests) Find(id string) (*Request, Status, bool) {
	for _, s := range Statuses() {
		bucket := a.Bucket(s)
		for i := range bucket {
			if bucket[i].ID == id {
				return &bucket[i], s, true
			}
		}
	}
	return nil, 0, false
}

// Comment is a message attached to a request
type Comment struct {
	Message   string `json:"message"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Date      Date   `json:"date"`
	UserID    string `json:"user_id"`
}

// Image is an attachment, either base64 encoded or raw
type Image struct {
	Data     string `json:"data"`
	Name     string `json:"name"`
	IsBase64 bool   `json:"isBase64"`
}

// Bytes returns the decoded attachment payload
func (i Image) Bytes() ([]byte, error) {
	if !i.IsBase64 {
		return []byte(i.Data), nil
	}
	data := i.Data
	// Data URLs carry a "data:<type>;base64," prefix
	if strings.HasPrefix(data, "data:") {
		if idx := strings.Index(data, ","); idx != -1 {
			data = data[idx+1:]
		}
	}
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decoding image %q: %w", i.Name, err)
	}
	return decoded, nil
}

// User is a roster entry
type User struct {
	Email      string `json:"email"`
	ID         string `json:"_id"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Registered bool   `json:"registered"`
	Venmo      string `json:"venmo"`
	Strikes    []Date `json:"strikes"`
	Tardies    []Date `json:"tardies"`
	Absences   []Date `json:"absences"`
	Treasurer  bool   `json:"treasurer"`
}

// Name returns the display name, falling back to the email for unregistered users
func (u User) Name() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

// Absent reports whether the user was absent on d
func (u User) Absent(d Date) bool {
	return ContainsDate(u.Absences, d)
}

// Tardy reports whether the user was late on d
func (u User) Tardy(d Date) bool {
	return ContainsDate(u.Tardies, d)
}

// RequestForm is the payload for creating or editing a request
type RequestForm struct {
	ID              string    `json:"_id,omitempty"`
	ItemDescription string    `json:"itemDescription"`
	Amount          string    `json:"amount"`
	TeamBudget      string    `json:"teamBudget"`
	IsFood          bool      `json:"isFood"`
	Images          []Image   `json:"images"`
	Status          Status    `json:"status"`
	Comments        []Comment `json:"comments"`
}

// FormFrom prefills a form from an existing request
func FormFrom(r Request) RequestForm {
	return RequestForm{
		ID:              r.ID,
		ItemDescription: r.ItemDescription,
		Amount:          strconv.FormatFloat(r.Amount, 'f', -1, 64),
		TeamBudget:      r.TeamBudget,
		IsFood:          r.IsFood,
		Images:          r.Images,
		Status:          r.Status,
		Comments:        r.Comments,
	}
}

// LoginData is the credential payload accepted by the login endpoint
type LoginData struct {
	Email    string `json:"email"`
	Password string `json:"password,omitempty"`
	Google   bool   `json:"google"`
}

// Penalties is the attendance submission for one meeting date
type Penalties struct {
	Date   Date     `json:"date"`
	Absent []string `json:"absent"`
	Late   []string `json:"late"`
}
