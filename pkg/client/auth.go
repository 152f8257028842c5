package client

import (
	"fmt"
	"io"
	"log"

	"github.com/aeolun/mudclient/pkg/prompt"
	"github.com/aeolun/mudclient/pkg/protocol"
	"github.com/aeolun/mudclient/pkg/terminal"
)

const (
	signupQuestion   = "Are you signing up? (y for yes and n for no): "
	emailPrompt      = "Enter your email: "
	usernamePrompt   = "Enter your username: "
	passwordPrompt   = "Enter your password: "
	confirmPrompt    = "Enter your password again: "
	invalidSignup    = "Invalid response! Type 'y' for yes and 'n' for no."
	passwordMismatch = "The passwords did not match!"
	loginFailed      = "Login Attempt Failed."
)

// AuthKind is the result class of an authentication session
type AuthKind int

const (
	AuthAuthenticated AuthKind = iota
	AuthUnreachable
	AuthAborted
)

func (k AuthKind) String() string {
	switch k {
	case AuthAuthenticated:
		return "authenticated"
	case AuthUnreachable:
		return "unreachable"
	default:
		return "aborted"
	}
}

// AuthOutcome is the result of AuthSession.Authenticate. On success Channel
// is the open connection of the accepted attempt and belongs to the caller.
type AuthOutcome struct {
	Kind    AuthKind
	Motd    string
	Channel Channel
	Err     error // AuthUnreachable, AuthAborted
}

// AuthSession runs the sign-in / sign-up dialogue until the server accepts
// a login.
type AuthSession struct {
	Opener  Opener
	Prompt  prompt.Prompter
	Out     io.Writer
	Styles  terminal.Styles
	Metrics *Metrics
	Logger  *log.Logger
}

func (a *AuthSession) logf(format string, args ...interface{}) {
	if a.Logger != nil {
		a.Logger.Printf(format, args...)
	}
}

// credentials collected for one attempt
type credentials struct {
	email    *string
	username string
	password string
	signup   bool
}

// Authenticate loops over login attempts with a new connection for each.
// There is no attempt limit; it ends when the server accepts, when a
// connection cannot be made, or when prompt input ends.
func (a *AuthSession) Authenticate() AuthOutcome {
	for attempt := 1; ; attempt++ {
		ch, err := a.Opener.Open()
		if err != nil {
			a.logf("Login attempt %d: connect failed: %v", attempt, err)
			a.Metrics.RecordPhaseFailure("login")
			return AuthOutcome{Kind: AuthUnreachable, Err: err}
		}

		creds, err := a.collect()
		if err != nil {
			ch.Close()
			a.logf("Login attempt %d: input ended: %v", attempt, err)
			return AuthOutcome{Kind: AuthAborted, Err: err}
		}

		resp, err := a.attempt(ch, creds)
		if err != nil {
			// A broken attempt connection is retried like a refused login
			a.logf("Login attempt %d: %v", attempt, err)
			fmt.Fprintln(a.Out, a.Styles.Error.Render(loginFailed))
			ch.Close()
			continue
		}

		motd, hasMotd := resp.Motd()
		accepted := resp.Valid && hasMotd
		a.Metrics.RecordLogin(accepted)
		if accepted {
			a.logf("Login attempt %d accepted for %q", attempt, creds.username)
			return AuthOutcome{Kind: AuthAuthenticated, Motd: motd, Channel: ch}
		}

		a.logf("Login attempt %d refused: valid=%v kind=%s", attempt, resp.Valid, resp.Kind)
		fmt.Fprintln(a.Out, a.Styles.Error.Render(loginFailed))
		if reason, ok := resp.ErrorText(); ok {
			fmt.Fprintln(a.Out, reason)
		}
		ch.Close()
	}
}

func (a *AuthSession) attempt(ch Channel, creds credentials) (*protocol.EntryResponseMessage, error) {
	msg := &protocol.LoginAttemptMessage{
		Email:    creds.email,
		Username: creds.username,
		Password: creds.password,
		IsSignup: creds.signup,
	}
	if err := ch.Send(protocol.TypeLoginAttempt, msg); err != nil {
		return nil, err
	}
	return ch.ReadEntryResponse()
}

// collect gathers the credentials for one attempt. Nothing here talks to
// the server.
func (a *AuthSession) collect() (credentials, error) {
	var creds credentials

	signup, err := a.askSignup()
	if err != nil {
		return creds, err
	}
	creds.signup = signup

	if signup {
		email, err := a.Prompt.Prompt(emailPrompt)
		if err != nil {
			return creds, err
		}
		creds.email = &email
	}

	if creds.username, err = a.Prompt.Prompt(usernamePrompt); err != nil {
		return creds, err
	}

	if signup {
		creds.password, err = a.confirmPassword()
	} else {
		creds.password, err = prompt.Secret(a.Prompt, passwordPrompt)
	}
	return creds, err
}

// askSignup asks until one of y, yes, n or no is typed
func (a *AuthSession) askSignup() (bool, error) {
	for first := true; ; first = false {
		if !first {
			fmt.Fprintln(a.Out, a.Styles.Warning.Render(invalidSignup))
		}
		answer, err := a.Prompt.Prompt(signupQuestion)
		if err != nil {
			return false, err
		}
		switch answer {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
	}
}

// confirmPassword asks for the password twice until both entries match
func (a *AuthSession) confirmPassword() (string, error) {
	for first := true; ; first = false {
		if !first {
			fmt.Fprintln(a.Out, a.Styles.Warning.Render(passwordMismatch))
		}
		password, err := prompt.Secret(a.Prompt, passwordPrompt)
		if err != nil {
			return "", err
		}
		again, err := prompt.Secret(a.Prompt, confirmPrompt)
		if err != nil {
			return "", err
		}
		if password == again {
			return password, nil
		}
	}
}
