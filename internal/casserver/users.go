package casserver

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tg123/go-htpasswd"
	"golang.org/x/crypto/bcrypt"
)

// UserStore checks username/password pairs against an htpasswd database.
type UserStore struct {
	file *htpasswd.File
}

// LoadUserStore reads a bcrypt htpasswd file.
func LoadUserStore(path string) (*UserStore, error) {
	f, err := htpasswd.New(path, []htpasswd.PasswdParser{htpasswd.AcceptBcrypt}, nil)
	if err != nil {
		return nil, fmt.Errorf("load htpasswd %s: %w", path, err)
	}
	return &UserStore{file: f}, nil
}

// NewUserStore hashes users (name -> plaintext password) into an in-memory
// htpasswd database.
func NewUserStore(users map[string]string) (*UserStore, error) {
	names := make([]string, 0, len(users))
	for name := range users {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		if name == "" || strings.Contains(name, ":") {
			return nil, fmt.Errorf("invalid username %q", name)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(users[name]), bcrypt.MinCost)
		if err != nil {
			return nil, fmt.Errorf("hash password for %s: %w", name, err)
		}
		fmt.Fprintf(&b, "%s:%s\n", name, hash)
	}

	f, err := htpasswd.NewFromReader(strings.NewReader(b.String()), []htpasswd.PasswdParser{htpasswd.AcceptBcrypt}, nil)
	if err != nil {
		return nil, fmt.Errorf("parse generated htpasswd: %w", err)
	}
	return &UserStore{file: f}, nil
}

// Authenticate reports whether password is valid for username.
func (u *UserStore) Authenticate(username, password string) bool {
	if username == "" {
		return false
	}
	return u.file.Match(username, password)
}
