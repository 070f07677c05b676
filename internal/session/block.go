package session

import (
	"github.com/roach88/cohort/internal/settings"
)

// Block is an ordered group of trials sharing configuration. Blocks
// are created only via Session.CreateBlock with a fixed trial count;
// the trial list never grows or shrinks after creation.
type Block struct {
	session  *Session
	trials   []*Trial
	settings *settings.Settings
}

// Number returns the block's 1-based position in the session's block
// list. The position is derived, not stored, so it stays correct if
// the session resets.
func (b *Block) Number() int {
	for i, blk := range b.session.blocks {
		if blk == b {
			return i + 1
		}
	}
	return 0 // detached: session has been reset
}

// Session returns the owning session.
func (b *Block) Session() *Session {
	return b.session
}

// Settings returns the block's settings node, a child of the session's
// root node.
func (b *Block) Settings() *settings.Settings {
	return b.settings
}

// Trials returns the block's trials in order. The slice is a copy.
func (b *Block) Trials() []*Trial {
	out := make([]*Trial, len(b.trials))
	copy(out, b.trials)
	return out
}

// TrialCount returns the number of trials in the block.
func (b *Block) TrialCount() int {
	return len(b.trials)
}

// Trial returns the 1-based numInBlock-th trial, failing with
// NoSuchTrial for positions outside [1, TrialCount].
func (b *Block) Trial(numInBlock int) (*Trial, error) {
	if numInBlock < 1 || numInBlock > len(b.trials) {
		return nil, newNoSuchTrial("trial position outside block range")
	}
	return b.trials[numInBlock-1], nil
}

// FirstTrial returns the block's first trial.
func (b *Block) FirstTrial() (*Trial, error) {
	return b.Trial(1)
}

// LastTrial returns the block's last trial.
func (b *Block) LastTrial() (*Trial, error) {
	return b.Trial(len(b.trials))
}
