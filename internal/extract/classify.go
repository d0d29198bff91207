package extract

import (
	"regexp"
	"strings"
)

// titleRule maps a set of trigger keywords to the display title relayed
// downstream. The keyword set is also the dedup partition key for the
// inquiry type, so two rules must never share a title unless their
// submissions really are interchangeable.
type titleRule struct {
	keywords []string
	title    string
}

// Rules are checked in order against the body; the first rule with any
// keyword present wins. Broad buckets (物件, 問い合わせ) deliberately sit
// below the specific ones so that a 来場予約 mail mentioning 物件 still
// classifies as an event signup.
var bodyTitleRules = []titleRule{
	{[]string{"会員登録", "バーズハウス", "会員登録がありました"}, "[バーズハウス] 会員登録がありました"},
	{[]string{"来場予約", "来場希望", "見学予約", "見学希望", "イベント参加", "イベント申込"}, "[桧家住宅] イベントの参加お申し込みがありました"},
	{[]string{"会員情報変更", "情報変更", "会員情報更新"}, "[桧家住宅] 会員情報の変更がありました"},
	{[]string{"退会", "会員退会", "退会しました"}, "[桧家住宅] 会員の退会がありました"},
	{[]string{"分譲住宅", "物件", "住宅", "問い合わせ", "問合せ"}, "[桧家住宅] 分譲住宅へのお問い合わせがありました"},
	{[]string{"資料請求", "資料希望", "カタログ請求"}, "[桧家住宅] 資料請求がありました"},
	{[]string{"お問い合わせフォーム", "コンタクト", "フォーム"}, "[桧家住宅] お問い合わせフォームからの連絡がありました"},
}

// Subject rules run only when no body rule matched, against the
// lower-cased subject line.
var subjectTitleRules = []titleRule{
	{[]string{"イベント", "event", "参加", "申込", "申し込み"}, "[桧家住宅] イベントの参加お申し込みがありました"},
	{[]string{"問い合わせ", "問合せ", "inquiry", "contact"}, "[桧家住宅] お問い合わせがありました"},
}

const fallbackTitle = "[桧家住宅] お問い合わせがありました"

// Classify picks the display title for a message. Body keywords take
// precedence over subject keywords, and an unrecognized message falls back
// to the generic inquiry title rather than being rejected.
func Classify(body, subject string) string {
	for _, rule := range bodyTitleRules {
		if containsAny(body, rule.keywords) {
			return rule.title
		}
	}
	lowered := strings.ToLower(subject)
	for _, rule := range subjectTitleRules {
		if containsAny(lowered, rule.keywords) {
			return rule.title
		}
	}
	return fallbackTitle
}

var triggerLabels = []*regexp.Regexp{
	regexp.MustCompile(`▼会員登録のきっかけ▼\s*([^\n\r▼]+)`),
	regexp.MustCompile(`▼予約のきっかけ▼\s*([^\n\r▼]+)`),
	regexp.MustCompile(`予約のきっかけ[\s:：]*([^\n\r▼]+)`),
	regexp.MustCompile(`きっかけ[\s:：]*([^\n\r▼]+)`),
	regexp.MustCompile(`経由[\s:：]*([^\n\r▼]+)`),
}

// triggerRule maps a body keyword to a canonical source name, used when the
// form carries no explicit "how did you find us" answer.
type triggerRule struct {
	keyword string
	source  string
}

var triggerRules = []triggerRule{
	{"HP検索", "ウェブサイト"},
	{"インスタグラム", "インスタグラム"},
	{"Facebook", "Facebook"},
	{"Google", "ウェブサイト"},
	{"チラシ", "チラシ"},
	{"紹介", "紹介"},
	{"ホームページ", "ウェブサイト"},
	{"ネット", "ウェブサイト"},
	{"みのおキューズモール広告", "みのおキューズモール広告"},
}

const defaultTriggerSource = "ウェブサイト"

// extractTrigger finds how the sender found us. A labeled answer is
// returned as written; without one the body is scanned for known source
// keywords, and a message matching neither reports the website as the
// origin since that is where the forms live.
func extractTrigger(body string) string {
	for _, p := range triggerLabels {
		if m := p.FindStringSubmatch(body); m != nil {
			if answer := NormalizeText(m[1]); answer != "" {
				return answer
			}
		}
	}
	for _, rule := range triggerRules {
		if strings.Contains(body, rule.keyword) {
			return rule.source
		}
	}
	return defaultTriggerSource
}
