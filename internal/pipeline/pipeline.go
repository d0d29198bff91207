// Package pipeline wires the mailbox, extractor, dedup engine, store and
// webhook client into the poll-extract-dedup-deliver loop.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/inquiry-relay/inquiry-relay/internal/dedup"
	"github.com/inquiry-relay/inquiry-relay/internal/extract"
	"github.com/inquiry-relay/inquiry-relay/internal/inbox"
	"github.com/inquiry-relay/inquiry-relay/internal/store"
)

// Mailbox is the slice of the inbox monitor the pipeline needs.
type Mailbox interface {
	FetchUnseen(ctx context.Context, limit int) ([]inbox.Message, error)
	MarkSeen(uid uint32) error
	Archive(uid uint32) error
}

// Deduper decides whether a record is a repeat submission. Check is
// read-only; Record stores the sighting once the message row is safely
// persisted.
type Deduper interface {
	Check(rec extract.Record) (dedup.Verdict, error)
	Record(rec extract.Record) error
}

// Deliverer posts a record downstream.
type Deliverer interface {
	Deliver(ctx context.Context, rec extract.Record) error
}

// Storage is the slice of the store the pipeline needs.
type Storage interface {
	IsProcessed(messageID string) (bool, error)
	SaveMessage(m *store.Message) error
	MarkWebhookSent(id int64) error
	MarkFailed(id int64, message string) error
	MarkArchived(id int64) error
	AddLog(level, message string) error
	AddError(stage, message string) error
}

// Stats summarizes one pass over the mailbox.
type Stats struct {
	Fetched    int
	Relayed    int
	Duplicates int
	Skipped    int
	Failed     int
}

type Processor struct {
	mailbox     Mailbox
	store       Storage
	engine      Deduper
	webhook     Deliverer
	batchSize   int
	autoArchive bool
}

func NewProcessor(mailbox Mailbox, st Storage, engine Deduper, webhook Deliverer, batchSize int, autoArchive bool) *Processor {
	return &Processor{
		mailbox:     mailbox,
		store:       st,
		engine:      engine,
		webhook:     webhook,
		batchSize:   batchSize,
		autoArchive: autoArchive,
	}
}

// ProcessOnce runs a single poll cycle. A failure on one message never
// stops the rest of the batch; only a fetch failure aborts the cycle.
func (p *Processor) ProcessOnce(ctx context.Context) (Stats, error) {
	var stats Stats

	messages, err := p.mailbox.FetchUnseen(ctx, p.batchSize)
	if err != nil {
		p.logError("fetch", err)
		return stats, fmt.Errorf("failed to fetch mail: %w", err)
	}
	stats.Fetched = len(messages)

	for _, msg := range messages {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		switch p.processMessage(ctx, msg) {
		case outcomeRelayed:
			stats.Relayed++
		case outcomeDuplicate:
			stats.Duplicates++
		case outcomeSkipped:
			stats.Skipped++
		case outcomeFailed:
			stats.Failed++
		}
	}

	return stats, nil
}

type outcome int

const (
	outcomeRelayed outcome = iota
	outcomeDuplicate
	outcomeSkipped
	outcomeFailed
)

func (p *Processor) processMessage(ctx context.Context, msg inbox.Message) outcome {
	messageID := msg.MessageID
	if messageID == "" {
		// Some form feeds omit Message-ID; fall back to a stable key so
		// restart replay protection still works.
		messageID = fmt.Sprintf("<uid-%d-%d@relay>", msg.UID, msg.ReceivedAt.Unix())
	}

	processed, err := p.store.IsProcessed(messageID)
	if err != nil {
		p.logError("store", err)
		return outcomeFailed
	}
	if processed {
		// Already handled on a previous run; just clear it out of the inbox.
		p.finishMail(msg.UID)
		return outcomeSkipped
	}

	rec := extract.Extract(msg.BodyText(), msg.From, msg.Subject, messageID)

	verdict, err := p.engine.Check(rec)
	if err != nil {
		p.logError("dedup", err)
		return outcomeFailed
	}

	payload, _ := json.Marshal(rec)
	stored := &store.Message{
		MessageID:       messageID,
		Sender:          msg.From,
		Subject:         msg.Subject,
		DisplayTitle:    rec.DisplayTitle,
		OriginatorEmail: verdict.Identity.Email,
		SubmissionType:  verdict.Identity.Type,
		Payload:         string(payload),
		Duplicate:       verdict.IsDuplicate,
		ReceivedAt:      msg.ReceivedAt,
	}

	// The row goes in before anything else changes state. A failure here
	// leaves the mail unread and the window untouched, so the next poll
	// retries from scratch instead of seeing this attempt as a sighting.
	if err := p.store.SaveMessage(stored); err != nil {
		p.logError("store", err)
		return outcomeFailed
	}

	if err := p.engine.Record(rec); err != nil {
		// The saved row blocks a replay, so suppressing delivery here would
		// drop the inquiry for good. Deliver anyway and accept the window
		// missing this sighting.
		p.logError("dedup", err)
	}

	result := outcomeRelayed
	if verdict.IsDuplicate {
		result = outcomeDuplicate
		p.logInfo(fmt.Sprintf("Suppressed duplicate from %s (%s, seen %d times)",
			verdict.Identity.Email, rec.DisplayTitle, verdict.Prior.Count))
	} else {
		if err := p.webhook.Deliver(ctx, rec); err != nil {
			p.logError("webhook", err)
			if dbErr := p.store.MarkFailed(stored.ID, err.Error()); dbErr != nil {
				p.logError("store", dbErr)
			}
			result = outcomeFailed
		} else {
			if dbErr := p.store.MarkWebhookSent(stored.ID); dbErr != nil {
				p.logError("store", dbErr)
			}
			p.logInfo(fmt.Sprintf("Relayed %s from %s", rec.DisplayTitle, verdict.Identity.Email))
		}
	}

	p.finishMail(msg.UID)
	if p.autoArchive {
		if err := p.store.MarkArchived(stored.ID); err != nil {
			p.logError("store", err)
		}
	}
	return result
}

// finishMail takes the message out of the unread set, by moving it to the
// archive folder when enabled or by flagging it read otherwise.
func (p *Processor) finishMail(uid uint32) {
	if p.autoArchive {
		if err := p.mailbox.Archive(uid); err != nil {
			p.logError("archive", err)
		}
		return
	}
	if err := p.mailbox.MarkSeen(uid); err != nil {
		p.logError("archive", err)
	}
}

// Run polls until the context is cancelled. A failed cycle is logged and
// the loop keeps going; transient IMAP or webhook trouble should not kill
// the relay.
func (p *Processor) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		stats, err := p.ProcessOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("Poll failed: %v", err)
		} else if stats.Fetched > 0 {
			log.Printf("Poll: %d fetched, %d relayed, %d duplicates, %d failed",
				stats.Fetched, stats.Relayed, stats.Duplicates, stats.Failed)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Processor) logInfo(msg string) {
	log.Print(msg)
	if err := p.store.AddLog("info", msg); err != nil {
		log.Printf("Warning: failed to record log: %v", err)
	}
}

func (p *Processor) logError(stage string, err error) {
	log.Printf("Error in %s: %v", stage, err)
	if dbErr := p.store.AddError(stage, err.Error()); dbErr != nil {
		log.Printf("Warning: failed to record error: %v", dbErr)
	}
}
