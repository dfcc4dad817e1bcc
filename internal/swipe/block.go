package swipe

import "context"

// BlockStore persists blocks. InsertBlock returns ErrDuplicateBlock when
// the block already exists.
type BlockStore interface {
	InsertBlock(ctx context.Context, blockerID, blockedID string) error
}
