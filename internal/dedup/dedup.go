// Package dedup suppresses repeat webhook deliveries for the same person
// and submission type inside a sliding time window.
package dedup

import (
	"fmt"
	"time"

	"github.com/inquiry-relay/inquiry-relay/internal/extract"
)

// Identity is the dedup partition key. Two submissions collide only when
// both the sender address and the submission type match exactly.
type Identity struct {
	Email string
	Type  string
}

// WindowRecord is one row of dedup state. FirstSeen and FirstMessageID are
// fixed at first contact; LastSeen, LastMessageID and DisplaySubject advance
// on every sighting, and Count accumulates across all of them.
type WindowRecord struct {
	Identity       Identity
	FirstSeen      time.Time
	LastSeen       time.Time
	FirstMessageID string
	LastMessageID  string
	DisplaySubject string
	Count          int
	UpdatedAt      time.Time
}

// Verdict is the outcome of a window check. Prior is the state that
// existed before this submission was recorded, nil for a first contact.
type Verdict struct {
	Identity    Identity
	IsDuplicate bool
	Prior       *WindowRecord
}

// Store is the persistence the engine needs. *store.Store satisfies it.
type Store interface {
	GetWindowRecord(email, submissionType string) (*WindowRecord, error)
	UpsertWindowRecord(email, submissionType, subject, messageID string, seenAt time.Time) error
}

// Engine decides whether a submission is a repeat. The window slides: it
// is anchored to the last sighting, not the first, so a person who keeps
// resubmitting stays suppressed until they go quiet for a full window.
type Engine struct {
	store  Store
	window time.Duration
	now    func() time.Time
}

func New(store Store, window time.Duration) *Engine {
	return &Engine{
		store:  store,
		window: window,
		now:    time.Now,
	}
}

// identityFor derives the partition key from an extracted record. The
// display title is the submission type; a record that somehow carries no
// title partitions on its normalized, lower-cased subject instead, so
// case variants of the same unclassified mail still dedup against each
// other and nothing else.
func identityFor(rec extract.Record) Identity {
	submissionType := rec.DisplayTitle
	if submissionType == "" {
		submissionType = extract.NormalizeIdentity(rec.RawSubject)
	}
	return Identity{
		Email: extract.NormalizeIdentity(rec.OriginatorEmail),
		Type:  submissionType,
	}
}

// Check reports whether rec is a repeat submission without touching the
// window state. A record with no originator address is never a duplicate
// since there is no identity to collide on.
func (e *Engine) Check(rec extract.Record) (Verdict, error) {
	id := identityFor(rec)
	verdict := Verdict{Identity: id}

	if id.Email != "" {
		prior, err := e.store.GetWindowRecord(id.Email, id.Type)
		if err != nil {
			return verdict, fmt.Errorf("failed to load window record: %w", err)
		}
		if prior != nil {
			verdict.Prior = prior
			verdict.IsDuplicate = prior.LastSeen.After(e.now().Add(-e.window))
		}
	}
	return verdict, nil
}

// Record stores this sighting. It is called for duplicates too: every
// repeat pushes the suppression window forward. Identity-less records are
// still counted under their empty key.
func (e *Engine) Record(rec extract.Record) error {
	id := identityFor(rec)
	if err := e.store.UpsertWindowRecord(id.Email, id.Type, rec.RawSubject, rec.SourceMessageID, e.now()); err != nil {
		return fmt.Errorf("failed to record submission: %w", err)
	}
	return nil
}

// Window returns the configured suppression duration.
func (e *Engine) Window() time.Duration {
	return e.window
}
