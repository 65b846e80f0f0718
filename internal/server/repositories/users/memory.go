package users

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

// MemoryRepository keeps users in process memory. Records are copied on the
// way in and out so callers never share state with the store.
type MemoryRepository struct {
	mu    sync.RWMutex
	byID  map[string]*models.User
	email map[string]string
	now   func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:  make(map[string]*models.User),
		email: make(map[string]string),
		now:   time.Now,
	}
}

func (r *MemoryRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.email[user.Email]; ok {
		return nil, common.ErrorAlreadyExists
	}
	if _, ok := r.byID[user.ID]; ok {
		return nil, common.ErrorAlreadyExists
	}

	ts := r.now()
	user.CreatedAt = ts
	user.UpdatedAt = ts
	user.Version = 1

	r.byID[user.ID] = user.Clone()
	r.email[user.Email] = user.ID
	return user, nil
}

func (r *MemoryRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return u.Clone(), nil
}

func (r *MemoryRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.email[email]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return r.byID[id].Clone(), nil
}

func (r *MemoryRepository) GetUserByVerificationToken(ctx context.Context, token string) (*models.User, error) {
	return r.find(func(u *models.User) bool {
		return token != "" && u.VerificationToken == token
	})
}

func (r *MemoryRepository) GetUserByResetToken(ctx context.Context, token string, now time.Time) (*models.User, error) {
	return r.find(func(u *models.User) bool {
		return token != "" && u.ResetPasswordToken == token &&
			u.ResetPasswordExpire != nil && u.ResetPasswordExpire.After(now)
	})
}

func (r *MemoryRepository) Update(ctx context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.byID[user.ID]
	if !ok || cur.Version != user.Version {
		return nil, common.ErrVersionConflict
	}
	if owner, taken := r.email[user.Email]; taken && owner != user.ID {
		return nil, common.ErrorAlreadyExists
	}

	user.Version++
	user.UpdatedAt = r.now()

	delete(r.email, cur.Email)
	r.email[user.Email] = user.ID
	r.byID[user.ID] = user.Clone()
	return user, nil
}

func (r *MemoryRepository) find(match func(*models.User) bool) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.byID {
		if match(u) {
			return u.Clone(), nil
		}
	}
	return nil, common.ErrorNotFound
}
