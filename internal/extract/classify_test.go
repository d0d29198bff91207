package extract

import "testing"

func TestClassifyBodyRules(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected string
	}{
		{
			name:     "member registration",
			body:     "バーズハウスへの会員登録がありました",
			expected: "[バーズハウス] 会員登録がありました",
		},
		{
			name:     "visit reservation",
			body:     "来場予約を受け付けました",
			expected: "[桧家住宅] イベントの参加お申し込みがありました",
		},
		{
			name:     "event signup",
			body:     "イベント参加のお申し込み",
			expected: "[桧家住宅] イベントの参加お申し込みがありました",
		},
		{
			name:     "member info change",
			body:     "会員情報変更のご連絡",
			expected: "[桧家住宅] 会員情報の変更がありました",
		},
		{
			name:     "withdrawal",
			body:     "会員退会の手続きが完了しました",
			expected: "[桧家住宅] 会員の退会がありました",
		},
		{
			name:     "property inquiry",
			body:     "分譲住宅について質問があります",
			expected: "[桧家住宅] 分譲住宅へのお問い合わせがありました",
		},
		{
			name:     "catalog request",
			body:     "カタログ請求をお願いします",
			expected: "[桧家住宅] 資料請求がありました",
		},
		{
			name:     "contact form",
			body:     "コンタクトフォームより送信されました",
			expected: "[桧家住宅] お問い合わせフォームからの連絡がありました",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.body, "notification")
			if got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestClassifyRuleOrder(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected string
	}{
		{
			name:     "registration beats reservation",
			body:     "会員登録と来場予約",
			expected: "[バーズハウス] 会員登録がありました",
		},
		{
			name:     "reservation beats property mention",
			body:     "見学予約です。物件は第3号地。",
			expected: "[桧家住宅] イベントの参加お申し込みがありました",
		},
		{
			name:     "property bucket beats catalog bucket",
			body:     "住宅の資料請求",
			expected: "[桧家住宅] 分譲住宅へのお問い合わせがありました",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.body, "")
			if got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestClassifySubjectRules(t *testing.T) {
	tests := []struct {
		name     string
		subject  string
		expected string
	}{
		{
			name:     "event subject",
			subject:  "モデルハウスイベントのご案内",
			expected: "[桧家住宅] イベントの参加お申し込みがありました",
		},
		{
			name:     "english event subject upper case",
			subject:  "EVENT Registration",
			expected: "[桧家住宅] イベントの参加お申し込みがありました",
		},
		{
			name:     "contact subject",
			subject:  "Contact from website",
			expected: "[桧家住宅] お問い合わせがありました",
		},
		{
			name:     "unrecognized subject falls back",
			subject:  "ご案内",
			expected: "[桧家住宅] お問い合わせがありました",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify("本文にキーワードなし", tt.subject)
			if got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestClassifyBodyBeatsSubject(t *testing.T) {
	got := Classify("資料請求をお願いします", "イベントのご案内")
	want := "[桧家住宅] 資料請求がありました"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
