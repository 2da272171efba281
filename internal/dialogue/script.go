package dialogue

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed script.yaml
var defaultScript []byte

// Script is everything Clara says that is not generated: prompts, fixed
// replies, the supported city list and the role options.
type Script struct {
	Greeting     string   `yaml:"greeting"`
	Cities       []string `yaml:"cities"`
	Registration []Field  `yaml:"registration"`
	Login        []Field  `yaml:"login"`
	Roles        []Role   `yaml:"roles"`
	AdviceLimit  int      `yaml:"advice_limit"`
	AdvicePrompt string   `yaml:"advice_prompt"`
	Replies      Replies  `yaml:"replies"`
}

// Field is one scripted prompt/validator pair.
type Field struct {
	Key       string `yaml:"key" json:"key"`
	Prompt    string `yaml:"prompt" json:"prompt"`
	Normalize string `yaml:"normalize" json:"-"`
	Validate  string `yaml:"validate" json:"-"`
	Invalid   string `yaml:"invalid" json:"-"`
}

type Role struct {
	Name  string `yaml:"name" json:"name"`
	Value string `yaml:"value" json:"value"`
}

type Replies struct {
	Cancelled        string `yaml:"cancelled"`
	NotCaught        string `yaml:"not_caught"`
	Registered       string `yaml:"registered"`
	RegisterFailed   string `yaml:"register_failed"`
	LoggedIn         string `yaml:"logged_in"`
	LoginFailed      string `yaml:"login_failed"`
	WhatElse         string `yaml:"what_else"`
	LoggedOut        string `yaml:"logged_out"`
	LogoutFailed     string `yaml:"logout_failed"`
	NotLoggedIn      string `yaml:"not_logged_in"`
	HereToHelp       string `yaml:"here_to_help"`
	AskAboutProperty string `yaml:"ask_about_property"`
	FoundProperties  string `yaml:"found_properties"`
	NoProperties     string `yaml:"no_properties"`
	AIError          string `yaml:"ai_error"`
}

// DefaultScript returns the embedded script.
func DefaultScript() *Script {
	s, err := ParseScript(defaultScript)
	if err != nil {
		panic(fmt.Sprintf("embedded dialogue script is invalid: %v", err))
	}
	return s
}

// LoadScript reads a script file, or the embedded default when path is empty.
func LoadScript(path string) (*Script, error) {
	if strings.TrimSpace(path) == "" {
		return ParseScript(defaultScript)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := ParseScript(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func ParseScript(b []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse dialogue script: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	if s.AdviceLimit <= 0 {
		s.AdviceLimit = 5
	}
	return &s, nil
}

func (s *Script) validate() error {
	if strings.TrimSpace(s.Greeting) == "" {
		return fmt.Errorf("dialogue script: greeting is required")
	}
	if len(s.Cities) == 0 {
		return fmt.Errorf("dialogue script: at least one city is required")
	}
	if len(s.Registration) == 0 || len(s.Login) == 0 {
		return fmt.Errorf("dialogue script: registration and login fields are required")
	}
	for _, f := range append(append([]Field(nil), s.Registration...), s.Login...) {
		if f.Key == "" || f.Prompt == "" {
			return fmt.Errorf("dialogue script: field %q needs a key and a prompt", f.Key)
		}
		if _, ok := validators[f.Validate]; !ok {
			return fmt.Errorf("dialogue script: field %q: unknown validator %q", f.Key, f.Validate)
		}
		if _, ok := normalizers[f.Normalize]; !ok {
			return fmt.Errorf("dialogue script: field %q: unknown normalizer %q", f.Key, f.Normalize)
		}
	}
	if !strings.Contains(s.AdvicePrompt, "%s") {
		return fmt.Errorf("dialogue script: advice_prompt must contain %%s for the listings")
	}
	return nil
}

func (s *Script) fields(m Mode) []Field {
	switch m {
	case ModeRegistration:
		return s.Registration
	case ModeLogin:
		return s.Login
	}
	return nil
}

// HasRole reports whether value is one of the selectable role values.
func (s *Script) HasRole(value string) bool {
	for _, r := range s.Roles {
		if r.Value == value {
			return true
		}
	}
	return false
}
