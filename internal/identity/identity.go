// Package identity issues player credentials and checks them on every
// request.
package identity

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/DoyleJ11/avalon-server/internal/engine"
)

var ErrAuth = errors.New("failed to auth")
var ErrEmptyName = fmt.Errorf("%w: user name must not be empty", engine.ErrValidation)
var ErrNameTaken = fmt.Errorf("%w: user name already taken", engine.ErrValidation)

type User struct {
	ID   int64  `json:"id"`
	Name string `json:"username"`
}

type Credential struct {
	ID    int64  `json:"id"`
	Token string `json:"token"`
}

type account struct {
	user  User
	token string
}

type Registry struct {
	mu       sync.Mutex
	lastID   int64
	accounts map[int64]account
	names    map[string]bool
}

func NewRegistry() *Registry {
	return &Registry{
		accounts: make(map[int64]account),
		names:    make(map[string]bool),
	}
}

// Create registers a unique user name and returns the credential the player
// presents from then on.
func (r *Registry) Create(name string) (Credential, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Credential{}, ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.names[name] {
		return Credential{}, ErrNameTaken
	}

	r.lastID++
	cred := Credential{ID: r.lastID, Token: uuid.NewString()}
	r.accounts[cred.ID] = account{user: User{ID: cred.ID, Name: name}, token: cred.Token}
	r.names[name] = true
	return cred, nil
}

func (r *Registry) Validate(c Credential) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.accounts[c.ID]
	if !ok || subtle.ConstantTimeCompare([]byte(acc.token), []byte(c.Token)) != 1 {
		return User{}, ErrAuth
	}
	return acc.user, nil
}
