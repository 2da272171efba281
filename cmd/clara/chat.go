package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"nestzone-clara-backend/internal/config"
	"nestzone-clara-backend/internal/dialogue"
	"nestzone-clara-backend/internal/logging"
	"nestzone-clara-backend/internal/server"
)

func newChatCmd() *cobra.Command {
	var logLevel string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to Clara in the terminal",
		Long: `Start a typed conversation with Clara using the configured Nestzone
backend and AI provider. Registration and login forms are completed at the
prompt; passwords are read without echo. Type "exit" to leave.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			log, err := logging.New(logLevel, "console")
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			deps, closers, err := server.BuildDeps(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer func() {
				for _, c := range closers {
					_ = c.Close()
				}
			}()
			engine := dialogue.NewEngine(deps.Script, deps.Backend, deps.Responder, log.Named("dialogue"))
			p := newPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
			return runChat(cmd.Context(), engine, p, cfg.MaxMessages)
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "log level for the chat session")
	return cmd
}

func runChat(ctx context.Context, engine *dialogue.Engine, p *prompter, maxMessages int) error {
	st := engine.NewState()
	p.say(st.Messages)
	for {
		line, ok := p.line("> ")
		if !ok {
			return nil
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "exit", "quit", "/quit":
			return nil
		}
		out := engine.Handle(ctx, st, line)
		p.say(out.Messages)
		if out.Form != nil {
			out = p.completeForm(ctx, engine, st, out.Form)
			p.say(out.Messages)
		}
		st.Trim(maxMessages)
	}
}

// prompter reads answers from the terminal.
type prompter struct {
	in  *bufio.Scanner
	out io.Writer
	fd  int
	tty bool
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	p := &prompter{in: bufio.NewScanner(in), out: out, fd: -1}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.fd = int(f.Fd())
		p.tty = true
	}
	return p
}

// say prints Clara's lines; the visitor's own lines are already on screen.
func (p *prompter) say(msgs []dialogue.Message) {
	for _, m := range msgs {
		if m.Sender == dialogue.SenderClara {
			fmt.Fprintf(p.out, "Clara: %s\n", m.Text)
		}
	}
}

func (p *prompter) line(prompt string) (string, bool) {
	fmt.Fprint(p.out, prompt)
	if !p.in.Scan() {
		return "", false
	}
	return p.in.Text(), true
}

func (p *prompter) password(prompt string) (string, bool) {
	if !p.tty {
		return p.line(prompt)
	}
	fmt.Fprint(p.out, prompt)
	b, err := term.ReadPassword(p.fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", false
	}
	return string(b), true
}

func (p *prompter) yes(prompt string) bool {
	s, _ := p.line(prompt + " [y/N] ")
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "y" || s == "yes"
}

func (p *prompter) role(roles []dialogue.Role) string {
	for i, r := range roles {
		fmt.Fprintf(p.out, "  %d) %s\n", i+1, r.Name)
	}
	s, _ := p.line("Role number: ")
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 || n > len(roles) {
		return ""
	}
	return roles[n-1].Value
}

// completeForm asks for the fields that are never spoken and submits the
// pending form.
func (p *prompter) completeForm(ctx context.Context, engine *dialogue.Engine, st *dialogue.State, form *dialogue.Form) dialogue.Outcome {
	var (
		out dialogue.Outcome
		err error
	)
	switch form.Type {
	case dialogue.FormLogin:
		fmt.Fprintf(p.out, "Logging in as %s\n", form.Username)
		pass, ok := p.password("Password: ")
		if !ok {
			return dialogue.Outcome{}
		}
		out, err = engine.SubmitLogin(ctx, st, dialogue.LoginForm{Password: pass})
	default:
		fmt.Fprintf(p.out, "Registering %s %s <%s>, %s\n", form.FirstName, form.LastName, form.Email, form.Mobile)
		var f dialogue.RegistrationForm
		f.Pass, _ = p.password("Password: ")
		f.RetypedPass, _ = p.password("Retype password: ")
		f.RoleType = p.role(engine.Script().Roles)
		f.ConfirmedTermsAndConditions = p.yes("Do you accept the terms and conditions?")
		f.ConfirmedToGetUpdates = p.yes("Would you like to get updates?")
		out, err = engine.SubmitRegistration(ctx, st, f)
	}
	var verr *dialogue.ValidationError
	if errors.As(err, &verr) {
		fmt.Fprintf(p.out, "%s\n", verr.Message)
		return dialogue.Outcome{}
	}
	if err != nil {
		fmt.Fprintf(p.out, "error: %v\n", err)
	}
	return out
}
