package service

import (
	"context"
	"errors"

	"chatcore/internal/domain"
)

// BlockGate answers whether a counterpart has blocked the acting user.
//
// Direction convention: a relation (blocker=X, blocked=Y) means X blocked
// Y. The gate for actor A and counterpart C therefore looks up
// (blocker=C, blocked=A). The reverse relation never suppresses anything
// for A.
type BlockGate struct {
	blocks domain.BlockRepository
}

func NewBlockGate(blocks domain.BlockRepository) *BlockGate {
	return &BlockGate{blocks: blocks}
}

// IsBlockedAgainst reports whether counterpartID has blocked actorID. A
// self-conversation has no counterpart and is never blocked.
func (g *BlockGate) IsBlockedAgainst(ctx context.Context, actorID, counterpartID string) (bool, error) {
	if actorID == counterpartID {
		return false, nil
	}
	_, err := g.blocks.Find(ctx, counterpartID, actorID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
