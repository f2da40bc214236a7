package domain

import (
	"time"

	"github.com/google/uuid"
)

type EntryKind string

const (
	EntryKindDeposit     EntryKind = "deposit"
	EntryKindWithdraw    EntryKind = "withdraw"
	EntryKindTransferOut EntryKind = "transfer_out"
	EntryKindTransferIn  EntryKind = "transfer_in"
)

// JournalEntry is the audit row written next to every cash movement. Amount is
// signed from the user's point of view.
type JournalEntry struct {
	ID           string
	Seq          int64
	UserID       uuid.UUID
	Kind         EntryKind
	Amount       Money
	BalanceAfter Money
	TransferID   *uuid.UUID
	CreatedAt    time.Time
}

type TransferRecord struct {
	ID         uuid.UUID
	FromUserID uuid.UUID
	ToUserID   uuid.UUID
	Amount     Money
	CreatedAt  time.Time
}
