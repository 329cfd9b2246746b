// Package attendance holds the attendance screen: the roster, the selected
// meeting date, bulk user creation and penalty submission.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/zombor/clubhouse/internal/backend"
	"github.com/zombor/clubhouse/internal/club"
)

// API is the subset of the backend client the attendance screen uses
type API interface {
	Roster(ctx context.Context, token string) ([]club.User, error)
	CreateProfiles(ctx context.Context, token string, emails []string) ([]club.User, error)
	SendPenalties(ctx context.Context, token string, p club.Penalties) error
	DeleteProfile(ctx context.Context, token, id string) error
}

// Outcome is how a page operation ended
type Outcome int

const (
	OutcomeOK Outcome = iota
	// OutcomeDeauthenticated means the backend rejected the token
	OutcomeDeauthenticated
	// OutcomeFailed means a server or transport error; the error flag is set
	OutcomeFailed
	// OutcomeInvalid means local validation failed and nothing was sent
	OutcomeInvalid
	// OutcomeSuperseded means a newer operation of the same kind replaced this one
	OutcomeSuperseded
	// OutcomeStale means the operator acted on a date the page no longer holds
	OutcomeStale
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeDeauthenticated:
		return "deauthenticated"
	case OutcomeFailed:
		return "failed"
	case OutcomeInvalid:
		return "invalid"
	case OutcomeSuperseded:
		return "superseded"
	case OutcomeStale:
		return "stale"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Mark is which penalty a row toggle records
type Mark string

const (
	MarkTardy  Mark = "tardy"
	MarkAbsent Mark = "absent"
)

// ParseMark validates a mark kind
func ParseMark(s string) (Mark, error) {
	switch Mark(s) {
	case MarkTardy, MarkAbsent:
		return Mark(s), nil
	}
	return "", fmt.Errorf("unknown mark: %q", s)
}

// Page is the state of one operator's attendance screen
type Page struct {
	api        API
	token      string
	deauth     func()
	deauthOnce sync.Once
	tasks      *tasks

	mu        sync.Mutex
	err       bool
	users     []club.User
	date      *club.Date
	addUsers  string
	incorrect bool
}

// NewPage creates a page for token with today's date selected. deauth is
// called once if the backend rejects the token.
func NewPage(api API, token string, today club.Date, deauth func()) *Page {
	if deauth == nil {
		deauth = func() {}
	}
	return &Page{
		api:    api,
		token:  token,
		deauth: deauth,
		tasks:  newTasks(),
		users:  []club.User{},
		date:   &today,
	}
}

// Row is one roster line for the selected date
type Row struct {
	User   club.User
	Tardy  bool
	Absent bool
}

// View is a read-only snapshot of the page for rendering
type View struct {
	Loading   bool
	Error     bool
	Users     []club.User
	Date      *club.Date
	AddUsers  string
	Incorrect bool
	Rows      []Row
}

// Snapshot copies the current state
func (p *Page) Snapshot() View {
	p.mu.Lock()
	defer p.mu.Unlock()

	v := View{
		Loading:   p.tasks.inFlight() > 0,
		Error:     p.err,
		Users:     slices.Clone(p.users),
		AddUsers:  p.addUsers,
		Incorrect: p.incorrect,
	}
	if p.date != nil {
		d := *p.date
		v.Date = &d
		for _, u := range p.users {
			v.Rows = append(v.Rows, Row{User: u, Tardy: u.Tardy(d), Absent: u.Absent(d)})
		}
	}
	return v
}

// SetDate selects the meeting date; nil clears it
func (p *Page) SetDate(d *club.Date) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if d == nil {
		p.date = nil
		return
	}
	selected := *d
	p.date = &selected
}

// SetAddUsers stores the raw bulk-add input
func (p *Page) SetAddUsers(raw string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.addUsers = raw
}

// DismissError closes the error modal
func (p *Page) DismissError() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = false
}

// Load replaces the roster with the backend's copy
func (p *Page) Load(ctx context.Context) Outcome {
	ctx, id := p.begin(ctx, ActionLoad)
	users, err := p.api.Roster(ctx, p.token)
	return p.settle(ActionLoad, id, err, func() {
		if users == nil {
			users = []club.User{}
		}
		p.users = slices.Clone(users)
	})
}

// AddUsers validates the bulk-add input and creates the listed users
func (p *Page) AddUsers(ctx context.Context) Outcome {
	p.mu.Lock()
	emails, err := ValidateEmails(p.addUsers)
	if err != nil {
		p.incorrect = true
		p.mu.Unlock()
		slog.Info("Rejected bulk add input", "error", err)
		return OutcomeInvalid
	}
	p.incorrect = false
	p.mu.Unlock()

	ctx, id := p.begin(ctx, ActionAddUsers)
	users, err := p.api.CreateProfiles(ctx, p.token, emails)
	return p.settle(ActionAddUsers, id, err, func() {
		p.users = append(p.users, users...)
		p.addUsers = ""
	})
}

// DeleteUser drops a user from the local roster
func (p *Page) DeleteUser(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleteUserLocked(id)
}

func (p *Page) deleteUserLocked(id string) {
	p.users = slices.DeleteFunc(p.users, func(u club.User) bool {
		return u.ID == id
	})
}

// RemoveUser deletes a user on the backend and then from the roster
func (p *Page) RemoveUser(ctx context.Context, userID string) Outcome {
	kind := ActionRemoveUser + Action(":"+userID)
	ctx, id := p.begin(ctx, kind)
	err := p.api.DeleteProfile(ctx, p.token, userID)
	return p.settle(kind, id, err, func() {
		p.deleteUserLocked(userID)
	})
}

// Mark records or clears a tardy or absence for the selected date
func (p *Page) Mark(userID string, mark Mark, on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.date == nil {
		return fmt.Errorf("no date selected")
	}
	d := *p.date

	idx := slices.IndexFunc(p.users, func(u club.User) bool { return u.ID == userID })
	if idx == -1 {
		return fmt.Errorf("user not on roster: %s", userID)
	}
	u := &p.users[idx]

	dates := &u.Tardies
	if mark == MarkAbsent {
		dates = &u.Absences
	}
	has := club.ContainsDate(*dates, d)
	switch {
	case on && !has:
		*dates = append(slices.Clone(*dates), d)
	case !on && has:
		*dates = slices.DeleteFunc(slices.Clone(*dates), func(x club.Date) bool { return x.Equal(d) })
	}
	return nil
}

// Penalties partitions users into absent and late IDs for date
func Penalties(users []club.User, date club.Date) club.Penalties {
	p := club.Penalties{Date: date, Absent: []string{}, Late: []string{}}
	for _, u := range users {
		if u.Absent(date) {
			p.Absent = append(p.Absent, u.ID)
		}
		if u.Tardy(date) {
			p.Late = append(p.Late, u.ID)
		}
	}
	return p
}

// SendPenalties submits the absences and tardies for the selected date.
// shown is the date the operator was looking at; nothing is sent unless it
// is still the selected one.
func (p *Page) SendPenalties(ctx context.Context, shown club.Date) Outcome {
	p.mu.Lock()
	if p.date == nil {
		p.mu.Unlock()
		return OutcomeInvalid
	}
	if !p.date.Equal(shown) {
		selected := *p.date
		p.mu.Unlock()
		slog.Warn("Refusing penalties for a date no longer selected", "shown", shown, "selected", selected)
		return OutcomeStale
	}
	penalties := Penalties(p.users, *p.date)
	p.mu.Unlock()

	ctx, id := p.begin(ctx, ActionSendPenalties)
	err := p.api.SendPenalties(ctx, p.token, penalties)
	return p.settle(ActionSendPenalties, id, err, func() {})
}

// begin clears a stale error and registers a task for kind
func (p *Page) begin(ctx context.Context, kind Action) (context.Context, string) {
	p.mu.Lock()
	p.err = false
	p.mu.Unlock()
	return p.tasks.start(ctx, kind)
}

// settle applies the result of task id. Results of superseded tasks are
// dropped, and state only changes on success.
func (p *Page) settle(kind Action, id string, err error, apply func()) Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.tasks.current(kind, id) {
		slog.Debug("Dropping superseded result", "action", kind, "task", id)
		return OutcomeSuperseded
	}
	defer p.tasks.finish(kind, id)

	switch {
	case err == nil:
		apply()
		return OutcomeOK
	case errors.Is(err, backend.ErrUnauthorized):
		p.deauthOnce.Do(p.deauth)
		return OutcomeDeauthenticated
	default:
		p.err = true
		slog.Error("Attendance action failed", "action", kind, "task", id, "error", err)
		return OutcomeFailed
	}
}
