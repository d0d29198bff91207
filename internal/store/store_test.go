package store

import (
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleMessage(messageID string) *Message {
	return &Message{
		MessageID:       messageID,
		Sender:          "forms@example.jp",
		Subject:         "来場予約受付のお知らせ",
		DisplayTitle:    "[桧家住宅] イベントの参加お申し込みがありました",
		OriginatorEmail: "taro@example.com",
		SubmissionType:  "[桧家住宅] イベントの参加お申し込みがありました",
		Payload:         `{"inquiry_id":"ABC-1234"}`,
		ReceivedAt:      time.Date(2025, 9, 20, 10, 0, 0, 0, time.UTC),
	}
}

func TestSaveAndIsProcessed(t *testing.T) {
	s := newTestStore(t)

	processed, err := s.IsProcessed("<m1@example.jp>")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed {
		t.Error("unknown message should not be processed")
	}

	msg := sampleMessage("<m1@example.jp>")
	if err := s.SaveMessage(msg); err != nil {
		t.Fatalf("failed to save message: %v", err)
	}
	if msg.ID == 0 {
		t.Error("save should assign an id")
	}

	processed, err = s.IsProcessed("<m1@example.jp>")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !processed {
		t.Error("saved message should be processed")
	}
}

func TestDuplicateMessageIDRejected(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveMessage(sampleMessage("<m1@example.jp>")); err != nil {
		t.Fatalf("failed to save message: %v", err)
	}
	if err := s.SaveMessage(sampleMessage("<m1@example.jp>")); err == nil {
		t.Error("second save with the same message id should fail")
	}
}

func TestMarkFlags(t *testing.T) {
	s := newTestStore(t)

	msg := sampleMessage("<m1@example.jp>")
	if err := s.SaveMessage(msg); err != nil {
		t.Fatalf("failed to save message: %v", err)
	}
	if err := s.MarkWebhookSent(msg.ID); err != nil {
		t.Fatalf("failed to mark webhook sent: %v", err)
	}
	if err := s.MarkArchived(msg.ID); err != nil {
		t.Fatalf("failed to mark archived: %v", err)
	}

	messages, err := s.RecentMessages(10)
	if err != nil {
		t.Fatalf("failed to list messages: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(messages))
	}
	if !messages[0].WebhookSent || !messages[0].Archived {
		t.Errorf("flags not persisted: %+v", messages[0])
	}
}

func TestMarkFailedRecordsError(t *testing.T) {
	s := newTestStore(t)

	msg := sampleMessage("<m1@example.jp>")
	if err := s.SaveMessage(msg); err != nil {
		t.Fatalf("failed to save message: %v", err)
	}
	if err := s.MarkFailed(msg.ID, "webhook returned status 500"); err != nil {
		t.Fatalf("failed to mark failed: %v", err)
	}

	messages, err := s.RecentMessages(10)
	if err != nil {
		t.Fatalf("failed to list messages: %v", err)
	}
	if len(messages) != 1 || messages[0].Error != "webhook returned status 500" {
		t.Errorf("error not persisted: %+v", messages)
	}
}

func TestWindowRecordLifecycle(t *testing.T) {
	s := newTestStore(t)
	first := time.Date(2025, 9, 20, 10, 0, 0, 0, time.UTC)

	rec, err := s.GetWindowRecord("taro@example.com", "来場予約")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec != nil {
		t.Fatal("unseen identity should have no record")
	}

	if err := s.UpsertWindowRecord("taro@example.com", "来場予約", "来場予約受付のお知らせ", "<m1@example.jp>", first); err != nil {
		t.Fatalf("failed to upsert: %v", err)
	}

	rec, err = s.GetWindowRecord("taro@example.com", "来場予約")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec == nil {
		t.Fatal("record should exist after upsert")
	}
	if rec.Count != 1 {
		t.Errorf("count: got %d, want 1", rec.Count)
	}
	if !rec.LastSeen.Equal(first) {
		t.Errorf("last seen: got %v, want %v", rec.LastSeen, first)
	}
	if !rec.FirstSeen.Equal(first) {
		t.Errorf("first seen: got %v, want %v", rec.FirstSeen, first)
	}
	if rec.FirstMessageID != "<m1@example.jp>" || rec.LastMessageID != "<m1@example.jp>" {
		t.Errorf("message ids not persisted: %+v", rec)
	}

	second := first.Add(3 * time.Hour)
	if err := s.UpsertWindowRecord("taro@example.com", "来場予約", "再送: 来場予約受付のお知らせ", "<m2@example.jp>", second); err != nil {
		t.Fatalf("failed to upsert: %v", err)
	}

	rec, err = s.GetWindowRecord("taro@example.com", "来場予約")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Count != 2 {
		t.Errorf("count: got %d, want 2", rec.Count)
	}
	if !rec.LastSeen.Equal(second) {
		t.Errorf("last seen should advance: got %v, want %v", rec.LastSeen, second)
	}
	if !rec.FirstSeen.Equal(first) {
		t.Errorf("first seen should stay fixed: got %v, want %v", rec.FirstSeen, first)
	}
	if rec.FirstMessageID != "<m1@example.jp>" {
		t.Errorf("first message id should stay fixed, got %q", rec.FirstMessageID)
	}
	if rec.LastMessageID != "<m2@example.jp>" {
		t.Errorf("last message id should advance, got %q", rec.LastMessageID)
	}
	if rec.DisplaySubject != "再送: 来場予約受付のお知らせ" {
		t.Errorf("display subject should advance, got %q", rec.DisplaySubject)
	}

	// A different submission type is a separate row.
	if err := s.UpsertWindowRecord("taro@example.com", "資料請求", "資料請求のお知らせ", "<m3@example.jp>", second); err != nil {
		t.Fatalf("failed to upsert: %v", err)
	}
	rec, err = s.GetWindowRecord("taro@example.com", "資料請求")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Count != 1 {
		t.Errorf("separate partition count: got %d, want 1", rec.Count)
	}
}

func TestRecentWindowsOrder(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2025, 9, 20, 10, 0, 0, 0, time.UTC)

	if err := s.UpsertWindowRecord("a@example.com", "来場予約", "来場予約受付のお知らせ", "<a1@example.jp>", base); err != nil {
		t.Fatalf("failed to upsert: %v", err)
	}
	if err := s.UpsertWindowRecord("b@example.com", "来場予約", "来場予約受付のお知らせ", "<b1@example.jp>", base.Add(time.Hour)); err != nil {
		t.Fatalf("failed to upsert: %v", err)
	}

	windows, err := s.RecentWindows(10)
	if err != nil {
		t.Fatalf("failed to list windows: %v", err)
	}
	if len(windows) != 2 {
		t.Fatalf("got %d windows, want 2", len(windows))
	}
	if windows[0].Identity.Email != "b@example.com" {
		t.Errorf("most recent sighting should come first, got %q", windows[0].Identity.Email)
	}
}

func TestLogsAndErrors(t *testing.T) {
	s := newTestStore(t)

	if err := s.AddLog("info", "poll complete"); err != nil {
		t.Fatalf("failed to add log: %v", err)
	}
	if err := s.AddLog("warn", "slow poll"); err != nil {
		t.Fatalf("failed to add log: %v", err)
	}
	if err := s.AddError("webhook", "connection refused"); err != nil {
		t.Fatalf("failed to add error: %v", err)
	}

	logs, err := s.RecentLogs(10)
	if err != nil {
		t.Fatalf("failed to list logs: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("got %d logs, want 2", len(logs))
	}
	if logs[0].Message != "slow poll" {
		t.Errorf("newest log should come first, got %q", logs[0].Message)
	}

	errs, err := s.RecentErrors(10)
	if err != nil {
		t.Fatalf("failed to list errors: %v", err)
	}
	if len(errs) != 1 || errs[0].Stage != "webhook" {
		t.Errorf("unexpected errors: %+v", errs)
	}
}

func TestGetStats(t *testing.T) {
	s := newTestStore(t)

	fresh := sampleMessage("<m1@example.jp>")
	fresh.WebhookSent = true
	if err := s.SaveMessage(fresh); err != nil {
		t.Fatalf("failed to save message: %v", err)
	}

	dup := sampleMessage("<m2@example.jp>")
	dup.Duplicate = true
	if err := s.SaveMessage(dup); err != nil {
		t.Fatalf("failed to save message: %v", err)
	}

	failed := sampleMessage("<m3@example.jp>")
	failed.Error = "webhook delivery failed"
	if err := s.SaveMessage(failed); err != nil {
		t.Fatalf("failed to save message: %v", err)
	}

	if err := s.UpsertWindowRecord("taro@example.com", "来場予約", "来場予約受付のお知らせ", "<w1@example.jp>", time.Now()); err != nil {
		t.Fatalf("failed to upsert: %v", err)
	}

	stats, err := s.GetStats()
	if err != nil {
		t.Fatalf("failed to get stats: %v", err)
	}
	if stats.Total != 3 || stats.Relayed != 1 || stats.Duplicates != 1 || stats.Failed != 1 || stats.Windows != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}
