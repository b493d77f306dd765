package summarizer

import (
	"strings"
	"testing"
)

const article = `Đội tuyển Việt Nam đã giành chiến thắng 3-1 trước Thái Lan trong trận chung kết tối qua. ` +
	`Huấn luyện viên Kim Sang-sik cho biết các cầu thủ đã thi đấu với tinh thần rất cao. ` +
	`Hơn 40.000 khán giả có mặt tại sân Mỹ Đình để cổ vũ cho đội nhà. ` +
	`Đây là lần thứ ba Việt Nam lên ngôi tại giải đấu khu vực này. ` +
	`Liên đoàn bóng đá sẽ thưởng nóng cho toàn đội ngay sau trận đấu. ` +
	`Nhiều cổ động viên đã đổ ra đường ăn mừng đến tận khuya.`

func TestSummarizeStructure(t *testing.T) {
	t.Parallel()

	out := Summarize("Việt Nam vô địch giải đấu khu vực", article)
	parts := strings.Split(out, "\n\n")
	if len(parts) < 3 {
		t.Fatalf("expected at least 3 sections, got %d: %q", len(parts), out)
	}
	if parts[0] != strings.ToUpper(parts[0]) {
		t.Fatalf("headline should be upper-cased: %q", parts[0])
	}
	if !strings.Contains(parts[0], "VIỆT NAM VÔ ĐỊCH") {
		t.Fatalf("headline should carry the title: %q", parts[0])
	}
	if !strings.HasPrefix(parts[1], "**") || !strings.HasSuffix(parts[1], "**") {
		t.Fatalf("second section must be bold: %q", parts[1])
	}
	last := parts[len(parts)-1]
	if !strings.HasSuffix(last, "?") {
		t.Fatalf("expected a closing question, got %q", last)
	}
	if !containsString(questions["thể thao"], last) {
		t.Fatalf("expected a sports question, got %q", last)
	}
}

func TestSummarizeIsDeterministic(t *testing.T) {
	t.Parallel()

	a := Summarize("Giá vàng tăng kỷ lục", article)
	b := Summarize("Giá vàng tăng kỷ lục", article)
	if a != b {
		t.Fatalf("expected identical output for identical input")
	}
}

func TestSummarizeShortContent(t *testing.T) {
	t.Parallel()

	out := Summarize("A", "")
	if !strings.Contains(out, "**A**") {
		t.Fatalf("short output must still carry a bold summary: %q", out)
	}
	if len(strings.Split(out, "**")) < 3 {
		t.Fatalf("short output must split into three parts on bold markers")
	}
}

func TestSummarizeCapsBodyLength(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("Thị trường chứng khoán tiếp tục biến động mạnh trong phiên giao dịch hôm nay với thanh khoản cao. ", 40)
	out := Summarize("Chứng khoán biến động", long)
	if n := len(strings.Fields(out)); n > maxWords+60 {
		t.Fatalf("output too long: %d words", n)
	}
}

func TestContainsAnyWordRespectsBoundaries(t *testing.T) {
	t.Parallel()

	if containsAnyWord("kết quả tốt đẹp", []string{"tố"}) {
		t.Fatalf("prefix of a longer word must not match")
	}
	if !containsAnyWord("bị tố gian lận", []string{"tố"}) {
		t.Fatalf("standalone word must match")
	}
	if !containsAnyWord("giải đấu, bóng đá.", []string{"bóng đá"}) {
		t.Fatalf("phrase followed by punctuation must match")
	}
}

func TestTitleEmotion(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"Cảnh báo lừa đảo qua điện thoại": "cảnh báo",
		"Việt Nam vô địch AFF Cup":        "tích cực",
		"Bất ngờ với giá nhà quý 3":       "bất ngờ",
		"Thông báo lịch nghỉ Tết":         "thông báo",
		"Thời tiết hôm nay":               "mặc định",
	}
	for title, want := range cases {
		if got := titleEmotion(title); got != want {
			t.Fatalf("%q: expected %s, got %s", title, want, got)
		}
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
