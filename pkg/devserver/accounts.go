package devserver

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for stored passwords
const (
	argonTime    = 1
	argonMemory  = 19 * 1024 // KiB
	argonThreads = 2
	argonKeyLen  = 32
	saltLen      = 16
)

var (
	ErrAccountExists   = errors.New("that username is already taken")
	ErrBadCredentials  = errors.New("unknown username or wrong password")
	ErrInvalidEmail    = errors.New("a valid email address is required to sign up")
	ErrInvalidUsername = errors.New("usernames must be 1 to 20 characters without spaces")
	ErrShortPassword   = errors.New("passwords must be at least 4 characters")
)

type account struct {
	email string
	salt  []byte
	hash  []byte
}

// Accounts is an in-memory user table. Passwords are kept as argon2id hashes.
type Accounts struct {
	mu    sync.RWMutex
	users map[string]account
}

// NewAccounts creates an empty account table
func NewAccounts() *Accounts {
	return &Accounts{users: make(map[string]account)}
}

// SignUp creates a new account
func (a *Accounts) SignUp(email, username, password string) error {
	if err := validateUsername(username); err != nil {
		return err
	}
	if !strings.Contains(email, "@") {
		return ErrInvalidEmail
	}
	if len(password) < 4 {
		return ErrShortPassword
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}
	hash := hashPassword(password, salt)

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.users[username]; ok {
		return ErrAccountExists
	}
	a.users[username] = account{email: email, salt: salt, hash: hash}
	return nil
}

// SignIn checks a username and password against the table
func (a *Accounts) SignIn(username, password string) error {
	a.mu.RLock()
	acct, ok := a.users[username]
	a.mu.RUnlock()
	if !ok {
		return ErrBadCredentials
	}

	if subtle.ConstantTimeCompare(hashPassword(password, acct.salt), acct.hash) != 1 {
		return ErrBadCredentials
	}
	return nil
}

// Len returns the number of registered accounts
func (a *Accounts) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.users)
}

func hashPassword(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

func validateUsername(username string) error {
	if username == "" || len(username) > 20 || strings.ContainsAny(username, " \t\r\n") {
		return ErrInvalidUsername
	}
	return nil
}
