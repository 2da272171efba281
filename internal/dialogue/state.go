package dialogue

import (
	"time"

	"nestzone-clara-backend/internal/nestzone"
)

// Sender marks who wrote a transcript line.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderClara Sender = "clara"
)

type Message struct {
	Sender Sender    `json:"sender"`
	Text   string    `json:"text"`
	At     time.Time `json:"at"`
}

// Mode is the scripted flow a session is in, if any.
type Mode string

const (
	ModeIdle         Mode = "idle"
	ModeRegistration Mode = "registration"
	ModeLogin        Mode = "login"
)

type FormType string

const (
	FormRegister FormType = "register"
	FormLogin    FormType = "login"
)

// Form is a manual form pre-filled from voice answers. Passwords are never
// stored here; Pending lists what the visitor still has to fill in.
type Form struct {
	Type      FormType `json:"type"`
	FirstName string   `json:"firstName,omitempty"`
	LastName  string   `json:"lastName,omitempty"`
	Email     string   `json:"email,omitempty"`
	Mobile    string   `json:"mobile,omitempty"`
	Username  string   `json:"username,omitempty"`
	Pending   []string `json:"pending,omitempty"`
}

// Account is the logged-in visitor. The token never leaves the server.
type Account struct {
	Username   string    `json:"username"`
	Token      string    `json:"-"`
	LoggedInAt time.Time `json:"loggedInAt"`
}

// State is one visitor's conversation.
type State struct {
	Messages   []Message           `json:"messages"`
	Mode       Mode                `json:"mode"`
	Step       int                 `json:"step"`
	Collected  map[string]string   `json:"collected,omitempty"`
	Form       *Form               `json:"form,omitempty"`
	Properties []nestzone.Property `json:"properties,omitempty"`
	Account    *Account            `json:"account,omitempty"`
}

// NewState starts a conversation with the greeting.
func NewState(greeting string, now time.Time) *State {
	return &State{
		Mode:     ModeIdle,
		Messages: []Message{{Sender: SenderClara, Text: greeting, At: now}},
	}
}

// ResetFlow leaves any scripted flow and drops collected answers and forms.
// The transcript, search results and login survive.
func (s *State) ResetFlow() {
	s.Mode = ModeIdle
	s.Step = 0
	s.Collected = nil
	s.Form = nil
}

// Trim keeps the newest max messages.
func (s *State) Trim(max int) {
	if max <= 0 || len(s.Messages) <= max {
		return
	}
	s.Messages = append([]Message(nil), s.Messages[len(s.Messages)-max:]...)
}

// Clone returns a deep copy that is safe to hand out while the session
// keeps changing.
func (s *State) Clone() State {
	out := State{
		Mode:       s.Mode,
		Step:       s.Step,
		Messages:   append([]Message(nil), s.Messages...),
		Properties: append([]nestzone.Property(nil), s.Properties...),
	}
	if s.Collected != nil {
		out.Collected = make(map[string]string, len(s.Collected))
		for k, v := range s.Collected {
			out.Collected[k] = v
		}
	}
	if s.Form != nil {
		f := s.Form.clone()
		out.Form = &f
	}
	if s.Account != nil {
		a := *s.Account
		out.Account = &a
	}
	return out
}

func (f Form) clone() Form {
	f.Pending = append([]string(nil), f.Pending...)
	return f
}

// CurrentField is the scripted field awaiting an answer, if any.
func (s *State) CurrentField(sc *Script) (Field, bool) {
	fields := sc.fields(s.Mode)
	if s.Step < 0 || s.Step >= len(fields) {
		return Field{}, false
	}
	return fields[s.Step], true
}
