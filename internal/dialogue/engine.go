package dialogue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"nestzone-clara-backend/internal/assistant"
	"nestzone-clara-backend/internal/nestzone"
)

// Directory is the part of the Nestzone backend used for city searches.
type Directory interface {
	SearchLocations(ctx context.Context, term string) ([]nestzone.Location, error)
	SearchProperties(ctx context.Context, filter nestzone.PropertyFilter) ([]nestzone.Property, error)
}

// Accounts is the part of the Nestzone backend used by the forms.
type Accounts interface {
	Register(ctx context.Context, reg nestzone.Registration) (*nestzone.AuthResponse, error)
	Login(ctx context.Context, username, password string) (*nestzone.AuthResponse, error)
	Logout(ctx context.Context, token string) (*nestzone.AuthResponse, error)
}

type Backend interface {
	Directory
	Accounts
}

type OutcomeKind string

const (
	OutcomeIgnored             OutcomeKind = "ignored"
	OutcomeCancelled           OutcomeKind = "cancelled"
	OutcomeRegistrationStarted OutcomeKind = "registration_started"
	OutcomeLoginStarted        OutcomeKind = "login_started"
	OutcomeFieldAccepted       OutcomeKind = "field_accepted"
	OutcomeFieldRejected       OutcomeKind = "field_rejected"
	OutcomeFormReady           OutcomeKind = "form_ready"
	OutcomeProperties          OutcomeKind = "properties"
	OutcomeNoProperties        OutcomeKind = "no_properties"
	OutcomeReply               OutcomeKind = "reply"
	OutcomeReplyFailed         OutcomeKind = "reply_failed"
	OutcomeCaptureFailed       OutcomeKind = "capture_failed"
	OutcomeRegistered          OutcomeKind = "registered"
	OutcomeLoggedIn            OutcomeKind = "logged_in"
	OutcomeLoggedOut           OutcomeKind = "logged_out"
	OutcomeNotLoggedIn         OutcomeKind = "not_logged_in"
	OutcomeSubmitFailed        OutcomeKind = "submit_failed"
)

// Outcome tells the page what happened in one turn: the lines added to the
// transcript, whether to open the microphone again and which form to show.
type Outcome struct {
	Kind       OutcomeKind         `json:"kind"`
	Messages   []Message           `json:"messages"`
	Listen     bool                `json:"listen"`
	Field      string              `json:"field,omitempty"`
	Form       *Form               `json:"form,omitempty"`
	Properties []nestzone.Property `json:"properties,omitempty"`
}

// Engine runs Clara's conversation rules against a session State. It does
// no locking; callers serialise turns per session.
type Engine struct {
	script    *Script
	backend   Backend
	responder assistant.Responder
	log       *zap.Logger
	now       func() time.Time
}

func NewEngine(script *Script, backend Backend, responder assistant.Responder, log *zap.Logger) *Engine {
	if script == nil {
		script = DefaultScript()
	}
	if responder == nil {
		responder = assistant.Unavailable("")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		script:    script,
		backend:   backend,
		responder: responder,
		log:       log,
		now:       time.Now,
	}
}

func (e *Engine) Script() *Script { return e.script }

// NewState starts a conversation with the scripted greeting.
func (e *Engine) NewState() *State { return NewState(e.script.Greeting, e.now()) }

// Handle processes one typed message or voice transcript.
func (e *Engine) Handle(ctx context.Context, s *State, text string) Outcome {
	start := len(s.Messages)
	text = strings.TrimSpace(text)
	if text == "" {
		return e.finish(s, start, Outcome{Kind: OutcomeIgnored})
	}
	e.hear(s, text)

	if IsCancel(text) {
		return e.finish(s, start, e.cancel(s))
	}
	if s.Mode != ModeIdle {
		return e.finish(s, start, e.answer(ctx, s, text))
	}

	var out Outcome
	intent := DetectIntent(text, e.script.Cities)
	switch intent.Kind {
	case IntentRegister:
		out = e.startFlow(s, ModeRegistration)
	case IntentLogin:
		out = e.startFlow(s, ModeLogin)
	case IntentLogout:
		out = e.logout(ctx, s)
	case IntentCity:
		var ok bool
		if out, ok = e.searchCity(ctx, s, intent.City); !ok {
			out = e.chat(ctx, s)
		}
	default:
		out = e.chat(ctx, s)
	}
	return e.finish(s, start, out)
}

// Cancel leaves any flow, as if the visitor had said "cancel".
func (e *Engine) Cancel(s *State) Outcome {
	start := len(s.Messages)
	return e.finish(s, start, e.cancel(s))
}

// CaptureFailed reports a recording that produced no usable transcript.
// Inside a flow the same field is asked for again.
func (e *Engine) CaptureFailed(s *State) Outcome {
	start := len(s.Messages)
	e.say(s, e.script.Replies.NotCaught)
	out := Outcome{Kind: OutcomeCaptureFailed}
	if f, ok := s.CurrentField(e.script); ok {
		out.Listen = true
		out.Field = f.Key
	}
	return e.finish(s, start, out)
}

// Logout ends the visitor's Nestzone session.
func (e *Engine) Logout(ctx context.Context, s *State) Outcome {
	start := len(s.Messages)
	return e.finish(s, start, e.logout(ctx, s))
}

func (e *Engine) cancel(s *State) Outcome {
	s.ResetFlow()
	e.say(s, e.script.Replies.Cancelled)
	return Outcome{Kind: OutcomeCancelled}
}

func (e *Engine) startFlow(s *State, m Mode) Outcome {
	s.ResetFlow()
	s.Mode = m
	s.Collected = map[string]string{}
	f, _ := s.CurrentField(e.script)
	e.say(s, f.Prompt)
	kind := OutcomeRegistrationStarted
	if m == ModeLogin {
		kind = OutcomeLoginStarted
	}
	return Outcome{Kind: kind, Listen: true, Field: f.Key}
}

// answer records a reply to the current scripted question. Rejected answers
// leave the step unchanged so the question is asked again.
func (e *Engine) answer(ctx context.Context, s *State, text string) Outcome {
	f, ok := s.CurrentField(e.script)
	if !ok {
		e.log.Warn("flow step out of range, resetting", zap.String("mode", string(s.Mode)), zap.Int("step", s.Step))
		s.ResetFlow()
		return e.chat(ctx, s)
	}
	value := f.normalize(text)
	if !f.accepts(value) {
		e.say(s, f.Invalid)
		return Outcome{Kind: OutcomeFieldRejected, Listen: true, Field: f.Key}
	}
	if s.Collected == nil {
		s.Collected = map[string]string{}
	}
	s.Collected[f.Key] = value
	s.Step++

	if next, ok := s.CurrentField(e.script); ok {
		e.say(s, next.Prompt)
		return Outcome{Kind: OutcomeFieldAccepted, Listen: true, Field: next.Key}
	}
	form := formFrom(s.Mode, s.Collected)
	s.ResetFlow()
	s.Form = form
	return Outcome{Kind: OutcomeFormReady, Form: form}
}

var (
	registrationPending = []string{"pass", "retypedPass", "roleType", "confirmedTermsAndConditions", "confirmedToGetUpdates"}
	loginPending        = []string{"password"}
)

func formFrom(m Mode, c map[string]string) *Form {
	if m == ModeLogin {
		return &Form{Type: FormLogin, Username: c["username"], Pending: append([]string(nil), loginPending...)}
	}
	return &Form{
		Type:      FormRegister,
		FirstName: c["firstName"],
		LastName:  c["lastName"],
		Email:     c["email"],
		Mobile:    c["mobile"],
		Pending:   append([]string(nil), registrationPending...),
	}
}

// searchCity answers a message naming a supported city. It reports false
// when the directory could not be asked or does not know the city, so the
// message falls through to the general responder.
func (e *Engine) searchCity(ctx context.Context, s *State, city string) (Outcome, bool) {
	log := e.log.With(zap.String("city", city))
	if e.backend == nil {
		return Outcome{}, false
	}
	locs, err := e.backend.SearchLocations(ctx, city)
	if err != nil {
		log.Warn("location search failed", zap.Error(err))
		return Outcome{}, false
	}
	id, ok := nestzone.FindLocationID(locs, city)
	if !ok {
		log.Info("city not found in locations")
		return Outcome{}, false
	}
	props, err := e.backend.SearchProperties(ctx, nestzone.PropertyFilter{LocationID: id})
	if err != nil {
		log.Warn("property search failed", zap.Error(err))
		return Outcome{}, false
	}
	if len(props) == 0 {
		e.say(s, fmt.Sprintf(e.script.Replies.NoProperties, city))
		return Outcome{Kind: OutcomeNoProperties}, true
	}
	log.Debug("properties found", zap.Int("count", len(props)))
	s.Properties = props
	e.say(s, fmt.Sprintf(e.script.Replies.FoundProperties, len(props), city))
	e.say(s, e.advise(ctx, props))
	return Outcome{Kind: OutcomeProperties, Properties: props}, true
}

func (e *Engine) advise(ctx context.Context, props []nestzone.Property) string {
	prompt := fmt.Sprintf(e.script.AdvicePrompt, SummarizeProperties(props, e.script.AdviceLimit))
	reply, err := e.responder.Reply(ctx, []assistant.Turn{{Role: assistant.RoleUser, Text: prompt}})
	if err != nil {
		e.log.Warn("advice generation failed", zap.Error(err))
		return e.script.Replies.AskAboutProperty
	}
	if advice := CleanAdvice(reply); advice != "" {
		return advice
	}
	return e.script.Replies.AskAboutProperty
}

// chat hands the whole transcript, plus the last search results, to the
// responder.
func (e *Engine) chat(ctx context.Context, s *State) Outcome {
	turns := make([]assistant.Turn, 0, len(s.Messages)+len(s.Properties))
	for _, m := range s.Messages {
		role := assistant.RoleAssistant
		if m.Sender == SenderUser {
			role = assistant.RoleUser
		}
		turns = append(turns, assistant.Turn{Role: role, Text: m.Text})
	}
	for _, p := range s.Properties {
		turns = append(turns, assistant.Turn{Role: assistant.RoleAssistant, Text: propertyLine(p)})
	}
	reply, err := e.responder.Reply(ctx, turns)
	if err != nil {
		e.log.Error("reply generation failed", zap.Error(err))
		e.say(s, e.script.Replies.AIError)
		return Outcome{Kind: OutcomeReplyFailed}
	}
	text := StripSelfIntro(reply)
	if text == "" {
		text = e.script.Replies.HereToHelp
	}
	e.say(s, text)
	return Outcome{Kind: OutcomeReply}
}

func (e *Engine) say(s *State, text string) {
	s.Messages = append(s.Messages, Message{Sender: SenderClara, Text: text, At: e.now()})
}

func (e *Engine) hear(s *State, text string) {
	s.Messages = append(s.Messages, Message{Sender: SenderUser, Text: text, At: e.now()})
}

func (e *Engine) finish(s *State, start int, out Outcome) Outcome {
	out.Messages = append([]Message{}, s.Messages[start:]...)
	return out
}
