package messages

import (
	"errors"

	"github.com/google/uuid"

	"github.com/aldoetobex/legal-case-manager/pkg/models"
)

// Party is one side of a message.
type Party int

const (
	Sender Party = iota + 1
	Recipient
)

var ErrNotInTrash = errors.New("message is not in trash")

// PartyOf returns the side userID is on. ok is false when userID is neither
// sender nor recipient, in which case the message must be treated as absent.
func PartyOf(m *models.Message, userID uuid.UUID) (p Party, ok bool) {
	switch userID {
	case m.SenderID:
		return Sender, true
	case m.RecipientID:
		return Recipient, true
	}
	return 0, false
}

// Counterpart is the user on the other side of p.
func Counterpart(m *models.Message, p Party) uuid.UUID {
	if p == Sender {
		return m.RecipientID
	}
	return m.SenderID
}

// InTrash reports whether p has trashed m.
func InTrash(m *models.Message, p Party) bool {
	if p == Sender {
		return m.IsDeletedBySender
	}
	return m.IsDeletedByRecipient
}

// column is p's trash flag column.
func (p Party) column() string {
	if p == Sender {
		return "is_deleted_by_sender"
	}
	return "is_deleted_by_recipient"
}

func setTrash(m *models.Message, p Party, v bool) {
	if p == Sender {
		m.IsDeletedBySender = v
	} else {
		m.IsDeletedByRecipient = v
	}
}

// BothTrashed reports whether the row may be physically removed.
func BothTrashed(m *models.Message) bool {
	return m.IsDeletedBySender && m.IsDeletedByRecipient
}

// Trash sets p's flag. purge is true when both parties have now trashed m.
func Trash(m *models.Message, p Party) (purge bool) {
	setTrash(m, p, true)
	return BothTrashed(m)
}

// Restore clears p's flag only.
func Restore(m *models.Message, p Party) {
	setTrash(m, p, false)
}

// PermanentDelete decides whether p may purge m. It fails with ErrNotInTrash
// unless m is in p's trash. purge is true when the counterpart has trashed it
// too or no longer exists; otherwise m is left untouched and stays with the
// other party.
func PermanentDelete(m *models.Message, p Party, counterpartExists bool) (purge bool, err error) {
	if !InTrash(m, p) {
		return false, ErrNotInTrash
	}
	return BothTrashed(m) || !counterpartExists, nil
}
