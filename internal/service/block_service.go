package service

import (
	"context"
	"fmt"

	"chatcore/internal/domain"
)

// BlockService manages the block relations a user holds against others.
type BlockService struct {
	users  domain.UserRepository
	blocks domain.BlockRepository
}

func NewBlockService(users domain.UserRepository, blocks domain.BlockRepository) *BlockService {
	return &BlockService{users: users, blocks: blocks}
}

// Block records that blockerID blocked blockedID. Blocking twice is not an
// error.
func (s *BlockService) Block(ctx context.Context, blockerID, blockedID string) (*domain.BlockRelation, error) {
	if blockerID == blockedID {
		return nil, fmt.Errorf("%w: cannot block yourself", domain.ErrInvalidInput)
	}
	if _, err := s.users.GetByID(ctx, blockedID); err != nil {
		return nil, err
	}
	rel := &domain.BlockRelation{BlockerID: blockerID, BlockedID: blockedID}
	if err := s.blocks.Create(ctx, rel); err != nil {
		return nil, err
	}
	return rel, nil
}

func (s *BlockService) Unblock(ctx context.Context, blockerID, blockedID string) error {
	return s.blocks.Delete(ctx, blockerID, blockedID)
}

func (s *BlockService) List(ctx context.Context, blockerID string) ([]*domain.BlockRelation, error) {
	return s.blocks.ListBlockedBy(ctx, blockerID)
}
