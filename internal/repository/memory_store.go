package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"sevenvoices/internal/model"
)

// MemoryStore keeps users, sessions and request history in process memory.
// It backs STORAGE_BACKEND=memory and the service tests. Unlike the database
// deployment, it records TTS request history.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]*model.User
	sessions map[string]*model.Session
	requests map[string][]model.TTSRequest
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]*model.User),
		sessions: make(map[string]*model.Session),
		requests: make(map[string][]model.TTSRequest),
	}
}

func (m *MemoryStore) Users() UserRepository                 { return memUsers{m} }
func (m *MemoryStore) Subscriptions() SubscriptionRepository { return memSubscriptions{m} }
func (m *MemoryStore) Sessions() SessionRepository           { return memSessions{m} }
func (m *MemoryStore) TTSRequests() TTSRequestRepository     { return memTTSRequests{m} }

func cloneUser(u *model.User) *model.User {
	c := *u
	return &c
}

func (m *MemoryStore) findUser(match func(u *model.User) bool) *model.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if match(u) {
			return cloneUser(u)
		}
	}
	return nil
}

type memUsers struct{ m *MemoryStore }

func (r memUsers) CreateUser(ctx context.Context, u *model.User) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if u.Email != nil {
		for _, existing := range r.m.users {
			if existing.Email != nil && *existing.Email == *u.Email {
				return ErrDuplicateEmail
			}
		}
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	r.m.users[u.UserID] = cloneUser(u)
	return nil
}

func (r memUsers) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	if u, ok := r.m.users[id]; ok {
		return cloneUser(u), nil
	}
	return nil, nil
}

func (r memUsers) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.m.findUser(func(u *model.User) bool {
		return u.Email != nil && *u.Email == email
	}), nil
}

func (r memUsers) GetUserByProviderID(ctx context.Context, provider model.AuthProvider, providerID string) (*model.User, error) {
	return r.m.findUser(func(u *model.User) bool {
		switch provider {
		case model.ProviderGitHub:
			return u.GitHubID != nil && *u.GitHubID == providerID
		case model.ProviderGoogle:
			return u.GoogleID != nil && *u.GoogleID == providerID
		}
		return false
	}), nil
}

type memSubscriptions struct{ m *MemoryStore }

func (r memSubscriptions) GetUserByStripeCustomerID(ctx context.Context, customerID string) (*model.User, error) {
	return r.m.findUser(func(u *model.User) bool {
		return u.StripeCustomerID != nil && *u.StripeCustomerID == customerID
	}), nil
}

func (r memSubscriptions) update(userID string, fn func(u *model.User)) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	fn(u)
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (r memSubscriptions) UpdateStripeCustomerID(ctx context.Context, userID, customerID string) error {
	return r.update(userID, func(u *model.User) {
		u.StripeCustomerID = &customerID
	})
}

func (r memSubscriptions) UpsertStripeSubscription(ctx context.Context, userID string, upd model.SubscriptionUpdate) error {
	return r.update(userID, func(u *model.User) {
		if upd.SubscriptionID != nil {
			id := *upd.SubscriptionID
			u.StripeSubscriptionID = &id
		}
		if upd.Status != nil {
			u.SubscriptionStatus = *upd.Status
		}
		if upd.Plan != nil {
			u.SubscriptionPlan = *upd.Plan
		}
	})
}

func (r memSubscriptions) DowngradeUserToFreePlan(ctx context.Context, userID string) error {
	return r.update(userID, func(u *model.User) {
		u.SubscriptionPlan = model.PlanFree
		u.SubscriptionStatus = model.StatusCancelled
	})
}

type memSessions struct{ m *MemoryStore }

func (r memSessions) Create(ctx context.Context, s *model.Session) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c := *s
	r.m.sessions[s.Token] = &c
	return nil
}

func (r memSessions) Get(ctx context.Context, token string) (*model.Session, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	if s, ok := r.m.sessions[token]; ok {
		c := *s
		return &c, nil
	}
	return nil, nil
}

func (r memSessions) Touch(ctx context.Context, token string, data model.SessionData, expiresAt time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if s, ok := r.m.sessions[token]; ok {
		s.Data = data
		s.ExpiresAt = expiresAt
	}
	return nil
}

func (r memSessions) Delete(ctx context.Context, token string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	delete(r.m.sessions, token)
	return nil
}

type memTTSRequests struct{ m *MemoryStore }

func (r memTTSRequests) Create(ctx context.Context, req *model.TTSRequest) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	r.m.requests[req.UserID] = append(r.m.requests[req.UserID], *req)
	return nil
}

// ListByUser returns the user's requests newest first.
func (r memTTSRequests) ListByUser(ctx context.Context, userID string) ([]model.TTSRequest, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	out := make([]model.TTSRequest, len(r.m.requests[userID]))
	copy(out, r.m.requests[userID])
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
