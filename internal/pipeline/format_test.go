package pipeline

import (
	"strings"
	"testing"
)

func TestFormatFallsBackToParagraphs(t *testing.T) {
	t.Parallel()

	in := "Giá vàng hôm nay tăng mạnh.\n\nGiá vàng miếng vượt 90 triệu đồng một lượng.\n\nNhiều người dân đổ xô đi mua. Các cửa hàng đông kín khách.\n\nBạn có định mua vàng lúc này không?"
	out, ok := Format(in)
	if !ok {
		t.Fatalf("expected paragraphs without bold markers to be accepted")
	}
	parts := strings.Split(out, "\n\n")
	if parts[0] != "GIÁ VÀNG HÔM NAY TĂNG MẠNH" {
		t.Fatalf("unexpected title %q", parts[0])
	}
	if parts[1] != "**Giá vàng miếng vượt 90 triệu đồng một lượng.**" {
		t.Fatalf("unexpected summary %q", parts[1])
	}
	if !strings.Contains(out, "Nhiều người dân đổ xô đi mua.\n\n\nCác cửa hàng đông kín khách.") {
		t.Fatalf("body sentences should be separated: %q", out)
	}
	if !strings.HasSuffix(out, "Bạn có định mua vàng lúc này không?\n\n"+Footer) {
		t.Fatalf("expected question then footer at the end: %q", out)
	}
}

func TestFormatBoldLayout(t *testing.T) {
	t.Parallel()

	in := "Tin nóng!\n\n**Bão số 5 đổ bộ vào miền Trung.**\n\nGió giật cấp 12.Mưa lớn kéo dài.\n\nBạn ở đâu trong cơn bão?"
	out, ok := Format(in)
	if !ok {
		t.Fatalf("expected bold layout to be accepted")
	}
	want := strings.Join([]string{
		"TIN NÓNG",
		"**Bão số 5 đổ bộ vào miền Trung.**",
		"Gió giật cấp 12.\n\n\nMưa lớn kéo dài.",
		"Bạn ở đâu trong cơn bão?",
		Footer,
	}, "\n\n")
	if out != want {
		t.Fatalf("unexpected layout:\n%q\nwant\n%q", out, want)
	}
}

func TestFormatSplitsRunOnText(t *testing.T) {
	t.Parallel()

	out, ok := Format("Tiêu đề ngắn. Câu tóm tắt. Thân bài ở đây.")
	if !ok {
		t.Fatalf("expected punctuation split to recover three parts")
	}
	if !strings.HasPrefix(out, "TIÊU ĐỀ NGẮN\n\n**Câu tóm tắt.**") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestFormatRejectsTooFewParts(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "   ", "chỉ một câu", "Một. Hai."} {
		if _, ok := Format(in); ok {
			t.Fatalf("expected %q to be rejected", in)
		}
	}
}

func TestPostProcess(t *testing.T) {
	t.Parallel()

	got := PostProcess("  xin   chào , thế giới .  đây là câu hai!  và câu ba.  \n\n\n\n  đoạn mới")
	want := "Xin chào, thế giới. Đây là câu hai! Và câu ba.\n\nĐoạn mới"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	if PostProcess("   ") != "" {
		t.Fatalf("blank input should stay blank")
	}
}

func TestFormatHashtags(t *testing.T) {
	t.Parallel()

	if got := FormatHashtags([]string{"#giávàng", "##đầutư", " ", "kinhtế"}); got != "#giávàng #đầutư #kinhtế" {
		t.Fatalf("unexpected hashtags %q", got)
	}
	if FormatHashtags(nil) != "" {
		t.Fatalf("no tags should render empty")
	}
}

func TestTruncateParagraphs(t *testing.T) {
	t.Parallel()

	in := "1\n\n2\n\n3\n\n4\n\n5\n\n6\n\n7"
	if got := TruncateParagraphs(in, 5); got != "1\n\n2\n\n3\n\n4\n\n5" {
		t.Fatalf("unexpected %q", got)
	}
}
