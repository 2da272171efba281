package dialogue

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"nestzone-clara-backend/internal/nestzone"
)

// ValidationError rejects a manual form before it reaches the backend.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Message }

// RegistrationForm is what the page submits. Empty name, email and mobile
// fields are taken from the answers collected by voice.
type RegistrationForm struct {
	FirstName                   string `json:"firstName"`
	LastName                    string `json:"lastName"`
	Email                       string `json:"email"`
	Mobile                      string `json:"mobile"`
	Pass                        string `json:"pass"`
	RetypedPass                 string `json:"retypedPass"`
	RoleType                    string `json:"roleType"`
	ConfirmedTermsAndConditions bool   `json:"confirmedTermsAndConditions"`
	ConfirmedToGetUpdates       bool   `json:"confirmedToGetUpdates"`
}

type LoginForm struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func (e *Engine) validateRegistration(f RegistrationForm) error {
	switch {
	case !ValidName(f.FirstName):
		return &ValidationError{Field: "firstName", Message: "Please enter a valid first name."}
	case !ValidName(f.LastName):
		return &ValidationError{Field: "lastName", Message: "Please enter a valid last name."}
	case !ValidEmail(f.Email):
		return &ValidationError{Field: "email", Message: "Please enter a valid email address."}
	case !ValidMobile(f.Mobile):
		return &ValidationError{Field: "mobile", Message: "Please enter a valid mobile number."}
	case f.Pass == "":
		return &ValidationError{Field: "pass", Message: "Please choose a password."}
	case f.Pass != f.RetypedPass:
		return &ValidationError{Field: "retypedPass", Message: "Passwords do not match."}
	case !e.script.HasRole(f.RoleType):
		return &ValidationError{Field: "roleType", Message: "Please select a role."}
	case !f.ConfirmedTermsAndConditions:
		return &ValidationError{Field: "confirmedTermsAndConditions", Message: "Please accept the terms and conditions."}
	}
	return nil
}

// SubmitRegistration sends the completed registration form. A
// *ValidationError leaves the session untouched; a backend failure is
// reported in the transcript and the form is kept for another attempt.
func (e *Engine) SubmitRegistration(ctx context.Context, s *State, f RegistrationForm) (Outcome, error) {
	var pending Form
	if s.Form != nil && s.Form.Type == FormRegister {
		pending = *s.Form
	}
	f.FirstName = firstNonEmpty(f.FirstName, pending.FirstName)
	f.LastName = firstNonEmpty(f.LastName, pending.LastName)
	f.Email = firstNonEmpty(f.Email, pending.Email)
	f.Mobile = firstNonEmpty(f.Mobile, pending.Mobile)
	f.RoleType = strings.TrimSpace(f.RoleType)
	if err := e.validateRegistration(f); err != nil {
		return Outcome{}, err
	}

	start := len(s.Messages)
	resp, err := e.backend.Register(ctx, nestzone.Registration{
		FirstName:                   f.FirstName,
		LastName:                    f.LastName,
		Email:                       f.Email,
		Mobile:                      f.Mobile,
		Pass:                        f.Pass,
		RetypedPass:                 f.RetypedPass,
		RoleType:                    f.RoleType,
		ConfirmedTermsAndConditions: f.ConfirmedTermsAndConditions,
		ConfirmedToGetUpdates:       f.ConfirmedToGetUpdates,
	})
	if err != nil {
		e.log.Warn("registration failed", zap.Error(err))
		s.ResetFlow()
		s.Form = &Form{
			Type:      FormRegister,
			FirstName: f.FirstName,
			LastName:  f.LastName,
			Email:     f.Email,
			Mobile:    f.Mobile,
			Pending:   append([]string(nil), registrationPending...),
		}
		e.say(s, failureMessage(err, e.script.Replies.RegisterFailed))
		return e.finish(s, start, Outcome{Kind: OutcomeSubmitFailed, Form: s.Form}), nil
	}
	s.ResetFlow()
	e.say(s, firstNonEmpty(resp.Message, e.script.Replies.Registered))
	return e.finish(s, start, Outcome{Kind: OutcomeRegistered}), nil
}

// SubmitLogin sends the login form and keeps the returned token on the
// session.
func (e *Engine) SubmitLogin(ctx context.Context, s *State, f LoginForm) (Outcome, error) {
	username := strings.TrimSpace(f.Username)
	if username == "" && s.Form != nil && s.Form.Type == FormLogin {
		username = s.Form.Username
	}
	if username == "" {
		return Outcome{}, &ValidationError{Field: "username", Message: "Please enter your email address."}
	}
	if f.Password == "" {
		return Outcome{}, &ValidationError{Field: "password", Message: "Please enter your password."}
	}

	start := len(s.Messages)
	resp, err := e.backend.Login(ctx, username, f.Password)
	if err != nil {
		e.log.Warn("login failed", zap.Error(err))
		s.ResetFlow()
		s.Form = &Form{Type: FormLogin, Username: username, Pending: append([]string(nil), loginPending...)}
		e.say(s, failureMessage(err, e.script.Replies.LoginFailed))
		return e.finish(s, start, Outcome{Kind: OutcomeSubmitFailed, Form: s.Form}), nil
	}
	s.ResetFlow()
	s.Account = &Account{
		Username:   firstNonEmpty(resp.Data.Username, username),
		Token:      resp.AccessToken(),
		LoggedInAt: e.now(),
	}
	e.say(s, firstNonEmpty(resp.Message, e.script.Replies.LoggedIn))
	e.say(s, e.script.Replies.WhatElse)
	return e.finish(s, start, Outcome{Kind: OutcomeLoggedIn}), nil
}

func (e *Engine) logout(ctx context.Context, s *State) Outcome {
	if s.Account == nil {
		e.say(s, e.script.Replies.NotLoggedIn)
		return Outcome{Kind: OutcomeNotLoggedIn}
	}
	resp, err := e.backend.Logout(ctx, s.Account.Token)
	if err != nil && !sessionGone(err) {
		e.log.Warn("logout failed", zap.Error(err))
		e.say(s, failureMessage(err, e.script.Replies.LogoutFailed))
		return Outcome{Kind: OutcomeSubmitFailed}
	}
	s.Account = nil
	msg := e.script.Replies.LoggedOut
	if resp != nil {
		msg = firstNonEmpty(resp.Message, msg)
	}
	e.say(s, msg)
	return Outcome{Kind: OutcomeLoggedOut}
}

// failureMessage prefers the backend's own message for the visitor.
func failureMessage(err error, fallback string) string {
	var apiErr *nestzone.APIError
	if errors.As(err, &apiErr) && strings.TrimSpace(apiErr.Message) != "" {
		return strings.TrimSpace(apiErr.Message)
	}
	return fallback
}

// sessionGone reports a rejected token, which means the backend session
// has already ended.
func sessionGone(err error) bool {
	var apiErr *nestzone.APIError
	return errors.As(err, &apiErr) &&
		(apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden)
}
