package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Record is the structured output of one inquiry message body. Every field
// is always present; an empty string means "not found". Two fields are
// time-dependent when the body carries no explicit value: InquiryID (a
// synthesized INQ-<timestamp> number) and InquiryDatetime (defaults to the
// extraction time). That is expected behavior, not a defect.
type Record struct {
	InquiryID       string `json:"inquiry_id"`
	InquiryDatetime string `json:"inquiry_datetime"`
	FullName        string `json:"full_name"`
	PostalCode      string `json:"postal_code"`
	PostalAddress   string `json:"postal_address"`
	PhonePrimary    string `json:"phone_primary"`
	PhoneSecondary  string `json:"phone_secondary"`
	TriggerSource   string `json:"trigger_source"`
	RawSubject      string `json:"raw_subject"`
	DisplayTitle    string `json:"display_title"`
	ReferenceURL    string `json:"reference_url"`
	TimePreference  string `json:"time_preference"`
	PhoneticName    string `json:"phonetic_name"`
	SourceMessageID string `json:"source_message_id"`
	OriginatorEmail string `json:"originator_email"`
	VisitDate       string `json:"visit_date"`
	VisitTime       string `json:"visit_time"`
	CapturedAt      string `json:"captured_at"`
}

// Fields returns the record as a map with the wire key set. Useful for
// invariant checks and dashboard views; the delivery payload itself is the
// JSON form of the struct.
func (r Record) Fields() map[string]string {
	return map[string]string{
		"inquiry_id":        r.InquiryID,
		"inquiry_datetime":  r.InquiryDatetime,
		"full_name":         r.FullName,
		"postal_code":       r.PostalCode,
		"postal_address":    r.PostalAddress,
		"phone_primary":     r.PhonePrimary,
		"phone_secondary":   r.PhoneSecondary,
		"trigger_source":    r.TriggerSource,
		"raw_subject":       r.RawSubject,
		"display_title":     r.DisplayTitle,
		"reference_url":     r.ReferenceURL,
		"time_preference":   r.TimePreference,
		"phonetic_name":     r.PhoneticName,
		"source_message_id": r.SourceMessageID,
		"originator_email":  r.OriginatorEmail,
		"visit_date":        r.VisitDate,
		"visit_time":        r.VisitTime,
		"captured_at":       r.CapturedAt,
	}
}

// DefaultReferenceURL is returned when the body carries no URL. Downstream
// consumers expect the field to be a URL, so the miss value is a
// placeholder rather than empty.
const DefaultReferenceURL = "https://example.com/123"

// Per-field pattern lists. Order matters: the first pattern that matches
// wins, later patterns are never consulted. Each list goes from the most
// specific form-label shape down to the loosest fallback.
var (
	inquiryIDPattern = regexp.MustCompile(`[A-Z]{2,4}-\d{3,6}`)

	inquiryDatetimePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(\d{4})[/年](\d{1,2})[/月](\d{1,2})[\s日]*(\d{1,2}):(\d{2})`),
		regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})\s+(\d{2}):(\d{2})`),
	}

	namePatterns = []*regexp.Regexp{
		regexp.MustCompile(`▼お名前▼\s*([^\n\r▼]+)`),
		regexp.MustCompile(`お名前[\s:：]*([^\n\r▼]+)`),
		regexp.MustCompile(`氏名[\s:：]*([^\n\r▼]+)`),
		regexp.MustCompile(`名前[\s:：]*([^\n\r▼]+)`),
	}

	// The last entry is a generic address matcher over the whole body. It
	// can capture an unrelated address (a signature block, a quoted reply)
	// when no labeled field exists; that is the accepted heuristic, matching
	// the behavior of the form feeds this was built against.
	emailPatterns = []*regexp.Regexp{
		regexp.MustCompile(`【メールアドレス】\s*([^\n\r\s【】]+@[^\n\r\s【】]+)`),
		regexp.MustCompile(`▼メールアドレス▼\s*([^\n\r\s▼]+@[^\n\r\s▼]+)`),
		regexp.MustCompile(`メールアドレス[\s:：]*([^\n\r\s▼]+@[^\n\r\s▼]+)`),
		regexp.MustCompile(`E-mail[\s:：]*([^\n\r\s▼]+@[^\n\r\s▼]+)`),
		regexp.MustCompile(`Email[\s:：]*([^\n\r\s▼]+@[^\n\r\s▼]+)`),
		regexp.MustCompile(`([a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,})`),
	}

	postalPatterns = []*regexp.Regexp{
		regexp.MustCompile(`▼郵便番号▼\s*(〒?\d{3}-?\d{4})`),
		regexp.MustCompile(`郵便番号[\s:：]*(〒?\d{3}-?\d{4})`),
		regexp.MustCompile(`【郵便番号】[\s　]*(〒?\d{3}-?\d{4})`),
		regexp.MustCompile(`〒(\d{3}-?\d{4})`),
	}

	addressPatterns = []*regexp.Regexp{
		regexp.MustCompile(`▼ご住所▼\s*([^\n\r▼]+)`),
		regexp.MustCompile(`ご住所[\s:：]*([^\n\r▼]+)`),
		regexp.MustCompile(`住所[\s:：]*([^\n\r▼]+)`),
	}

	phonePatterns = []*regexp.Regexp{
		regexp.MustCompile(`【電話番号1】\s*([0-9\-]+)`),
		regexp.MustCompile(`【電話番号】\s*([0-9\-]+)`),
		regexp.MustCompile(`▼電話番号▼\s*([0-9\-]+)`),
		regexp.MustCompile(`電話番号[\s:：]*([0-9\-]+)`),
		regexp.MustCompile(`【電話番号】[\s:：]*([0-9\-]+)`),
		regexp.MustCompile(`TEL[\s:：]*([0-9\-]+)`),
		regexp.MustCompile(`Tel[\s:：]*([0-9\-]+)`),
	}

	phoneSecondaryPatterns = []*regexp.Regexp{
		regexp.MustCompile(`【電話番号2】\s*([0-9\-]+)`),
		regexp.MustCompile(`▼電話番号2▼\s*([0-9\-]+)`),
		regexp.MustCompile(`電話番号2[\s:：]*([0-9\-]+)`),
	}

	furiganaPatterns = []*regexp.Regexp{
		regexp.MustCompile(`▼フリガナ▼\s*([^\n\r▼]+)`),
		regexp.MustCompile(`フリガナ[\s:：]*([^\n\r▼]+)`),
		regexp.MustCompile(`ふりがな[\s:：]*([^\n\r▼]+)`),
		regexp.MustCompile(`カナ[\s:：]*([^\n\r▼]+)`),
	}

	urlPattern = regexp.MustCompile(`https?://[^\s]+`)

	timePreferenceLabels = []*regexp.Regexp{
		regexp.MustCompile(`ご希望時間[\s:：]*([^\n\r]+)`),
		regexp.MustCompile(`希望時間[\s:：]*([^\n\r]+)`),
		regexp.MustCompile(`時間[\s:：]*([^\n\r]+)`),
	}

	visitDateLabels = []*regexp.Regexp{
		regexp.MustCompile(`来場希望日[\s:：]*([^\n\r]+)`),
		regexp.MustCompile(`ご希望日[\s:：]*([^\n\r]+)`),
		regexp.MustCompile(`希望日[\s:：]*([^\n\r]+)`),
		regexp.MustCompile(`第1希望[\s:：]*([^\n\r]+)`),
	}

	visitDateShapes = []*regexp.Regexp{
		regexp.MustCompile(`(\d{4})年(\d{1,2})月(\d{1,2})日`),
		regexp.MustCompile(`(\d{4})[/年](\d{1,2})[/月](\d{1,2})日?`),
		regexp.MustCompile(`(\d{4})-(\d{1,2})-(\d{1,2})`),
	}

	visitTimeLabels = []*regexp.Regexp{
		regexp.MustCompile(`ご希望時間[\s:：]*([^\n\r]+)`),
		regexp.MustCompile(`希望時間[\s:：]*([^\n\r]+)`),
		regexp.MustCompile(`時間[\s:：]*([^\n\r]+)`),
	}

	// Time shapes, including ranges like 14:30～16:00 where only the start
	// of the range is kept.
	visitTimeShapes = []*regexp.Regexp{
		regexp.MustCompile(`(\d{1,2}):(\d{2})(?:～|〜|-|から)?(?:\d{1,2}:\d{2})?`),
		regexp.MustCompile(`(\d{1,2})時(\d{2})分`),
		regexp.MustCompile(`(\d{1,2})[:：時](\d{2})`),
	}
)

// Markers, in check order, that bucket a captured time preference into the
// coarse morning/afternoon labels.
var (
	morningMarkers   = []string{"9:", "10:", "11:", "午前", "AM"}
	afternoonMarkers = []string{"12:", "13:", "14:", "15:", "16:", "17:", "18:", "午後", "PM"}

	// Whole-body fallback markers when no explicit time label exists.
	bodyMorningMarkers   = []string{"午前", "AM", "9:", "10:", "11:"}
	bodyAfternoonMarkers = []string{"午後", "PM", "13:", "14:", "15:", "16:"}
)

const (
	bucketMorning   = "午前"
	bucketAfternoon = "午後"
)

// Extract builds a Record from a raw message. It never fails: every field
// independently degrades to its default or to the empty string. The sender
// address is the last-resort originator identity when the body itself
// contains no email address.
func Extract(body, sender, subject, messageID string) Record {
	return extractAt(body, sender, subject, messageID, time.Now())
}

func extractAt(body, sender, subject, messageID string, now time.Time) Record {
	email := extractEmail(body)
	if email == "" {
		email = strings.ToLower(strings.TrimSpace(sender))
	}

	return Record{
		InquiryID:       extractInquiryID(body, now),
		InquiryDatetime: extractInquiryDatetime(body, now),
		FullName:        firstNormalized(namePatterns, body),
		PostalCode:      extractPostalCode(body),
		PostalAddress:   firstNormalized(addressPatterns, body),
		PhonePrimary:    extractPhone(phonePatterns, body),
		PhoneSecondary:  extractPhone(phoneSecondaryPatterns, body),
		TriggerSource:   extractTrigger(body),
		RawSubject:      subject,
		DisplayTitle:    Classify(body, subject),
		ReferenceURL:    extractURL(body),
		TimePreference:  extractTimePreference(body),
		PhoneticName:    firstNormalized(furiganaPatterns, body),
		SourceMessageID: messageID,
		OriginatorEmail: email,
		VisitDate:       extractVisitDate(body),
		VisitTime:       extractVisitTime(body),
		CapturedAt:      now.UTC().Format(time.RFC3339),
	}
}

// firstNormalized returns the normalized first capture of the first pattern
// that matches, or "".
func firstNormalized(patterns []*regexp.Regexp, body string) string {
	for _, p := range patterns {
		if m := p.FindStringSubmatch(body); m != nil {
			return NormalizeText(m[1])
		}
	}
	return ""
}

func extractInquiryID(body string, now time.Time) string {
	if m := inquiryIDPattern.FindString(body); m != "" {
		return m
	}
	// No explicit number anywhere: synthesize one from the extraction time.
	return "INQ-" + now.Format("200601021504")
}

func extractInquiryDatetime(body string, now time.Time) string {
	for _, p := range inquiryDatetimePatterns {
		if m := p.FindStringSubmatch(body); m != nil {
			return fmt.Sprintf("%s-%s-%s %s:%s", m[1], pad2(m[2]), pad2(m[3]), pad2(m[4]), pad2(m[5]))
		}
	}
	return now.Format("2006-01-02 15:04")
}

func extractEmail(body string) string {
	for _, p := range emailPatterns {
		if m := p.FindStringSubmatch(body); m != nil {
			addr := strings.NewReplacer("▼", "", " ", "", "\t", "").Replace(strings.TrimSpace(m[1]))
			return strings.ToLower(addr)
		}
	}
	return ""
}

func extractPostalCode(body string) string {
	for _, p := range postalPatterns {
		m := p.FindStringSubmatch(body)
		if m == nil {
			continue
		}
		postal := strings.ReplaceAll(m[1], "〒", "")
		postal = NormalizeText(postal)
		postal = strings.ReplaceAll(postal, " ", "")
		if !strings.Contains(postal, "-") && len(postal) == 7 {
			postal = postal[:3] + "-" + postal[3:]
		}
		return postal
	}
	return ""
}

func extractPhone(patterns []*regexp.Regexp, body string) string {
	for _, p := range patterns {
		if m := p.FindStringSubmatch(body); m != nil {
			phone := NormalizeText(m[1])
			return strings.ReplaceAll(phone, " ", "")
		}
	}
	return ""
}

func extractURL(body string) string {
	if m := urlPattern.FindString(body); m != "" {
		return m
	}
	return DefaultReferenceURL
}

func extractTimePreference(body string) string {
	for _, p := range timePreferenceLabels {
		m := p.FindStringSubmatch(body)
		if m == nil {
			continue
		}
		captured := strings.TrimSpace(m[1])
		if containsAny(captured, morningMarkers) {
			return bucketMorning
		}
		if containsAny(captured, afternoonMarkers) {
			return bucketAfternoon
		}
		// Neither bucket's markers: hand the captured text through verbatim.
		return captured
	}

	if containsAny(body, bodyMorningMarkers) {
		return bucketMorning
	}
	if containsAny(body, bodyAfternoonMarkers) {
		return bucketAfternoon
	}
	return bucketAfternoon
}

func extractVisitDate(body string) string {
	for _, p := range visitDateLabels {
		m := p.FindStringSubmatch(body)
		if m == nil {
			continue
		}
		text := stripDecoration(m[1])
		for _, shape := range visitDateShapes {
			if d := shape.FindStringSubmatch(text); d != nil {
				return fmt.Sprintf("%s-%s-%s", d[1], pad2(d[2]), pad2(d[3]))
			}
		}
		// Labeled but unparseable: keep the raw text rather than guessing.
		return text
	}
	return ""
}

func extractVisitTime(body string) string {
	for _, p := range visitTimeLabels {
		m := p.FindStringSubmatch(body)
		if m == nil {
			continue
		}
		text := stripDecoration(m[1])
		for _, shape := range visitTimeShapes {
			if t := shape.FindStringSubmatch(text); t != nil {
				return pad2(t[1]) + ":" + pad2(t[2])
			}
		}
		return text
	}
	return ""
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func pad2(s string) string {
	if n, err := strconv.Atoi(s); err == nil {
		return fmt.Sprintf("%02d", n)
	}
	return s
}
