// Package directory is the in-memory user directory behind tokenserver. It
// checks bcrypt credentials at login and serves as the engine's
// UserProvider during refresh.
package directory

import (
	"context"
	"errors"
	"strings"
	"sync"

	goToken "github.com/MrEthical07/goToken"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned for an unknown email or a wrong password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// dummyHash keeps unknown-email logins as slow as wrong-password ones.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("directory-timing-pad"), bcrypt.MinCost)

type entry struct {
	user goToken.UserRecord
	hash []byte
}

// Directory is safe for concurrent use.
type Directory struct {
	mu      sync.RWMutex
	byID    map[string]*entry
	byEmail map[string]*entry
	cost    int
}

// New returns an empty directory hashing new passwords at cost. A cost
// outside bcrypt's range uses bcrypt.DefaultCost.
func New(cost int) *Directory {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Directory{
		byID:    map[string]*entry{},
		byEmail: map[string]*entry{},
		cost:    cost,
	}
}

// AddHashed stores user with an existing bcrypt hash, replacing any entry
// with the same id.
func (d *Directory) AddHashed(user goToken.UserRecord, passwordHash string) error {
	if user.UserID == "" || user.Email == "" {
		return errors.New("directory: user id and email are required")
	}
	if _, err := bcrypt.Cost([]byte(passwordHash)); err != nil {
		return errors.Join(errors.New("directory: invalid password hash"), err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.removeLocked(user.UserID)
	e := &entry{user: user, hash: []byte(passwordHash)}
	d.byID[user.UserID] = e
	d.byEmail[normalizeEmail(user.Email)] = e
	return nil
}

// Add hashes password and stores user.
func (d *Directory) Add(user goToken.UserRecord, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), d.cost)
	if err != nil {
		return err
	}
	return d.AddHashed(user, string(hash))
}

// Remove deletes the user. Sessions already issued fail on their next refresh.
func (d *Directory) Remove(userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removeLocked(userID)
}

func (d *Directory) removeLocked(userID string) {
	if e, ok := d.byID[userID]; ok {
		delete(d.byEmail, normalizeEmail(e.user.Email))
		delete(d.byID, userID)
	}
}

// Authenticate returns the user when email and password match.
func (d *Directory) Authenticate(_ context.Context, email, password string) (goToken.UserRecord, error) {
	d.mu.RLock()
	e, ok := d.byEmail[normalizeEmail(email)]
	d.mu.RUnlock()

	if !ok {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return goToken.UserRecord{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(e.hash, []byte(password)); err != nil {
		return goToken.UserRecord{}, ErrInvalidCredentials
	}
	return cloneUser(e.user), nil
}

// GetUser implements goToken.UserProvider.
func (d *Directory) GetUser(_ context.Context, userID string) (goToken.UserRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.byID[userID]
	if !ok {
		return goToken.UserRecord{}, goToken.ErrUserNotFound
	}
	return cloneUser(e.user), nil
}

// Len returns the number of users.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byID)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func cloneUser(u goToken.UserRecord) goToken.UserRecord {
	u.Roles = append([]string(nil), u.Roles...)
	u.Groups = append([]string(nil), u.Groups...)
	u.Domains = append([]string(nil), u.Domains...)
	return u
}
