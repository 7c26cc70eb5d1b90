package service

import (
	"context"

	"chatcore/internal/domain"
)

// UserService provides user-related operations.
type UserService struct {
	users domain.UserRepository
}

func NewUserService(users domain.UserRepository) *UserService {
	return &UserService{users: users}
}

func (s *UserService) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return s.users.GetByID(ctx, id)
}

// Profile returns the public view of a user.
func (s *UserService) Profile(ctx context.Context, id string) (domain.Profile, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return domain.Profile{}, err
	}
	return u.Profile(), nil
}
