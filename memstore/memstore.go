// Package memstore provides in-memory implementations of the core's
// storage contracts. Suitable for tests and single-process deployments;
// everything is lost on restart.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shelterly/authcore"
	"github.com/shelterly/authcore/session"
)

// UserStore is a mutex-guarded map of user records keyed by ID, with
// linear scans standing in for the secondary indexes a real database keeps.
type UserStore struct {
	mu    sync.RWMutex
	users map[string]*authcore.User
}

// NewUserStore returns an empty UserStore.
func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]*authcore.User)}
}

func (s *UserStore) FindUserByEmail(_ context.Context, email string) (*authcore.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, nil
}

func (s *UserStore) FindUserByID(_ context.Context, id string) (*authcore.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[id]; ok {
		return cloneUser(u), nil
	}
	return nil, nil
}

func (s *UserStore) FindUserByDisplayName(_ context.Context, name string) (*authcore.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.DisplayName, name) {
			return cloneUser(u), nil
		}
	}
	return nil, nil
}

func (s *UserStore) FindUserByResetTokenHash(_ context.Context, hash string) (*authcore.User, error) {
	if hash == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.PasswordResetTokenHash == hash {
			return cloneUser(u), nil
		}
	}
	return nil, nil
}

func (s *UserStore) FindUserByVerifyTokenHash(_ context.Context, hash string) (*authcore.User, error) {
	if hash == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.EmailVerifyTokenHash == hash {
			return cloneUser(u), nil
		}
	}
	return nil, nil
}

func (s *UserStore) SaveUser(_ context.Context, u *authcore.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = cloneUser(u)
	return nil
}

func cloneUser(u *authcore.User) *authcore.User {
	cp := *u
	if u.LockoutUntil != nil {
		t := *u.LockoutUntil
		cp.LockoutUntil = &t
	}
	if u.EmailVerifyExpiresAt != nil {
		t := *u.EmailVerifyExpiresAt
		cp.EmailVerifyExpiresAt = &t
	}
	if u.PasswordResetExpiresAt != nil {
		t := *u.PasswordResetExpiresAt
		cp.PasswordResetExpiresAt = &t
	}
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		cp.LastLoginAt = &t
	}
	cp.TwoFactor.BackupCodeHashes = append([]string(nil), u.TwoFactor.BackupCodeHashes...)
	return &cp
}

// SessionStore implements session.Store with a map keyed by session ID and
// a refresh-hash index. SwapRefreshHash holds the write lock across its
// read-modify-write, so rotation races resolve to a single winner.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
	byHash   map[string]string // refresh hash -> session ID
}

// NewSessionStore returns an empty SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*session.Session),
		byHash:   make(map[string]string),
	}
}

func (s *SessionStore) FindByID(_ context.Context, id string) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	return cloneSession(sess), nil
}

func (s *SessionStore) FindByRefreshTokenHash(_ context.Context, hash string) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byHash[hash]
	if !ok {
		return nil, session.ErrNotFound
	}
	return cloneSession(s.sessions[id]), nil
}

func (s *SessionStore) Save(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.sessions[sess.ID]; ok && prev.RefreshTokenHash != sess.RefreshTokenHash {
		delete(s.byHash, prev.RefreshTokenHash)
	}
	s.sessions[sess.ID] = cloneSession(sess)
	s.byHash[sess.RefreshTokenHash] = sess.ID
	return nil
}

func (s *SessionStore) SwapRefreshHash(_ context.Context, sessionID, providedHash, nextHash, fingerprint string, lastUsedAt, expiresAt time.Time) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, session.ErrNotFound
	}
	if sess.RefreshTokenHash != providedHash {
		return nil, session.ErrHashMismatch
	}

	delete(s.byHash, sess.RefreshTokenHash)
	sess.RefreshTokenHash = nextHash
	sess.DeviceFingerprint = fingerprint
	sess.LastUsedAt = lastUsedAt
	sess.ExpiresAt = expiresAt
	s.byHash[nextHash] = sessionID

	return cloneSession(sess), nil
}

func (s *SessionStore) RevokeAllForUser(_ context.Context, userID, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			sess.Revoke(reason, at)
		}
	}
	return nil
}

func (s *SessionStore) ActiveForUser(_ context.Context, userID string, now time.Time) ([]*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*session.Session
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.Usable(now) {
			out = append(out, cloneSession(sess))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastUsedAt.After(out[j].LastUsedAt)
	})
	return out, nil
}

func cloneSession(sess *session.Session) *session.Session {
	cp := *sess
	if sess.RevokedAt != nil {
		t := *sess.RevokedAt
		cp.RevokedAt = &t
	}
	return &cp
}

// ShelterDirectory keeps shelter records and a staff membership set.
type ShelterDirectory struct {
	mu       sync.RWMutex
	shelters map[string]*authcore.Shelter
	staff    map[string]map[string]struct{} // shelter ID -> user IDs
}

// NewShelterDirectory returns an empty ShelterDirectory.
func NewShelterDirectory() *ShelterDirectory {
	return &ShelterDirectory{
		shelters: make(map[string]*authcore.Shelter),
		staff:    make(map[string]map[string]struct{}),
	}
}

func (d *ShelterDirectory) FindShelterByName(_ context.Context, name string) (*authcore.Shelter, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, sh := range d.shelters {
		if strings.EqualFold(sh.Name, name) {
			cp := *sh
			return &cp, nil
		}
	}
	return nil, nil
}

func (d *ShelterDirectory) CreateShelter(_ context.Context, sh *authcore.Shelter) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *sh
	d.shelters[sh.ID] = &cp
	return nil
}

func (d *ShelterDirectory) IsShelterStaff(_ context.Context, shelterID, userID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	members, ok := d.staff[shelterID]
	if !ok {
		return false, nil
	}
	_, ok = members[userID]
	return ok, nil
}

// AddStaff registers a user as staff of a shelter.
func (d *ShelterDirectory) AddStaff(shelterID, userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.staff[shelterID] == nil {
		d.staff[shelterID] = make(map[string]struct{})
	}
	d.staff[shelterID][userID] = struct{}{}
}
