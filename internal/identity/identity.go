// Package identity resolves who is operating a client and with which role.
// The sync core never looks at the role; the CLI uses it to decide which
// directory edits to offer.
package identity

import (
	"crypto/subtle"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/soyeahso/roster/internal/logging"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// Role is the access level of an authenticated identity.
type Role string

const (
	RoleNone  Role = ""
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Profile is what an external sign-in provider tells us about a person.
type Profile struct {
	Name         string `json:"name" yaml:"name"`
	Email        string `json:"email" yaml:"email"`
	Picture      string `json:"picture,omitempty" yaml:"picture,omitempty"`
	HostedDomain string `json:"hostedDomain,omitempty" yaml:"hostedDomain,omitempty"`
}

// Identity is the opaque value handed to the rest of the program.
type Identity struct {
	IsAuthenticated bool    `json:"isAuthenticated"`
	Role            Role    `json:"role"`
	DisplayName     string  `json:"displayName"`
	Profile         Profile `json:"profile"`
}

// IsAdmin reports whether the identity may edit the shared directory.
func (i Identity) IsAdmin() bool { return i.IsAuthenticated && i.Role == RoleAdmin }

// Authenticator holds the current identity of one client.
type Authenticator struct {
	adminEmails   []string
	adminPassword string
	log           *logging.Logger

	mu      sync.RWMutex
	current Identity
}

// New creates an Authenticator. An empty adminPassword disables password
// login entirely.
func New(adminEmails []string, adminPassword string, log *logging.Logger) *Authenticator {
	emails := make([]string, 0, len(adminEmails))
	for _, e := range adminEmails {
		if e = normalizeEmail(e); e != "" {
			emails = append(emails, e)
		}
	}
	return &Authenticator{
		adminEmails:   emails,
		adminPassword: adminPassword,
		log:           log.Sub("identity"),
	}
}

// Current returns the active identity.
func (a *Authenticator) Current() Identity {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current
}

// LoginWithProfile authenticates a provider profile. Addresses on the admin
// list get the admin role, everyone else is a user.
func (a *Authenticator) LoginWithProfile(p Profile) (Identity, error) {
	email := normalizeEmail(p.Email)
	if email == "" {
		return Identity{}, ErrInvalidCredentials
	}

	role := RoleUser
	if slices.Contains(a.adminEmails, email) {
		role = RoleAdmin
	}
	name := p.Name
	if name == "" {
		name = email
	}
	id := Identity{IsAuthenticated: true, Role: role, DisplayName: name, Profile: p}
	a.set(id)
	a.log.Info().Str("email", email).Str("role", string(role)).Msg("logged in")
	return id, nil
}

// LoginAsAdmin is the fallback admin login by shared password.
func (a *Authenticator) LoginAsAdmin(password string) (Identity, error) {
	if a.adminPassword == "" || password == "" ||
		subtle.ConstantTimeCompare([]byte(password), []byte(a.adminPassword)) != 1 {
		a.log.Warn().Msg("admin login rejected")
		return Identity{}, ErrInvalidCredentials
	}
	id := Identity{
		IsAuthenticated: true,
		Role:            RoleAdmin,
		DisplayName:     "Administrator",
		Profile:         Profile{Name: "Administrator", Email: "admin@system"},
	}
	a.set(id)
	a.log.Info().Msg("logged in as administrator")
	return id, nil
}

// Logout clears the identity.
func (a *Authenticator) Logout() {
	a.set(Identity{})
	a.log.Debug().Msg("logged out")
}

func (a *Authenticator) set(id Identity) {
	a.mu.Lock()
	a.current = id
	a.mu.Unlock()
}

func normalizeEmail(e string) string {
	e = strings.ToLower(strings.TrimSpace(e))
	if !strings.Contains(e, "@") {
		return ""
	}
	return e
}
