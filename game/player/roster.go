package player

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
)

// dummyHash is compared against when the username is unknown so that both
// failure paths cost one bcrypt comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-password"), bcrypt.MinCost)

type member struct {
	user User
	hash []byte
}

// Roster is the fixed set of users who may log in.
type Roster struct {
	mu     sync.RWMutex
	order  []string
	byID   map[string]*member
	byName map[string]string // username → id
}

// NewRoster hashes the demo passwords of accounts with the given bcrypt cost.
// Duplicate ids or usernames are rejected.
func NewRoster(accounts []Account, cost int) (*Roster, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	r := &Roster{
		byID:   make(map[string]*member, len(accounts)),
		byName: make(map[string]string, len(accounts)),
	}
	for _, a := range accounts {
		if a.ID == "" || a.Username == "" {
			return nil, fmt.Errorf("roster: account without id or username")
		}
		if _, dup := r.byID[a.ID]; dup {
			return nil, fmt.Errorf("roster: duplicate id %q", a.ID)
		}
		if _, dup := r.byName[a.Username]; dup {
			return nil, fmt.Errorf("roster: duplicate username %q", a.Username)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(a.Password), cost)
		if err != nil {
			return nil, fmt.Errorf("roster: hash %s: %w", a.Username, err)
		}
		u := a.User.clone()
		if u.Role == "" {
			u.Role = RoleFarmer
		}
		r.byID[u.ID] = &member{user: u, hash: hash}
		r.byName[u.Username] = u.ID
		r.order = append(r.order, u.ID)
	}
	return r, nil
}

// Authenticate checks username and password (both exact, case-sensitive).
// Unknown users and wrong passwords return the same ErrInvalidCredentials.
func (r *Roster) Authenticate(username, password string) (User, error) {
	r.mu.RLock()
	var (
		hash = dummyHash
		m    *member
	)
	if id, ok := r.byName[username]; ok {
		m = r.byID[id]
		hash = m.hash
	}
	r.mu.RUnlock()

	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil || m == nil {
		return User{}, ErrInvalidCredentials
	}
	return r.Get(m.user.ID)
}

// Get returns a snapshot of user id.
func (r *Roster) Get(id string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byID[id]
	if !ok {
		return User{}, fmt.Errorf("%w: %s", ErrUserNotFound, id)
	}
	return m.user.clone(), nil
}

// All returns snapshots of every user in roster order.
func (r *Roster) All() []User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]User, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id].user.clone())
	}
	return out
}

// Farmers returns every user with RoleFarmer in roster order.
func (r *Roster) Farmers() []User {
	all := r.All()
	out := all[:0]
	for _, u := range all {
		if u.Role == RoleFarmer {
			out = append(out, u)
		}
	}
	return out
}

// Update applies fn to user id under the write lock and returns the result.
// Identity fields (id, username, role) survive whatever fn does.
func (r *Roster) Update(id string, fn func(u *User)) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok {
		return User{}, fmt.Errorf("%w: %s", ErrUserNotFound, id)
	}
	u := m.user.clone()
	fn(&u)
	u.ID, u.Username, u.Role = m.user.ID, m.user.Username, m.user.Role
	m.user = u
	return u.clone(), nil
}

// Len returns the number of users.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
