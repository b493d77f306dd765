package summarizer

var stopWords = map[string]struct{}{
	"và": {}, "là": {}, "có": {}, "của": {}, "ở": {}, "tại": {}, "trong": {}, "trên": {},
	"cho": {}, "đến": {}, "khi": {}, "bị": {}, "được": {}, "với": {}, "cũng": {}, "đã": {},
	"thì": {}, "một": {}, "những": {}, "các": {}, "rằng": {}, "theo": {}, "không": {},
	"chỉ": {}, "sẽ": {}, "nên": {}, "nếu": {}, "tuy": {}, "bởi": {},
}

type topicRule struct {
	key      string
	keywords []string
}

// Checked in order; the first topic with a matching keyword wins.
var questionTopics = []topicRule{
	{"pháp luật", []string{"luật", "pháp luật", "tòa án", "tội phạm", "công an"}},
	{"kinh tế", []string{"kinh tế", "chứng khoán", "đầu tư", "doanh nghiệp", "tài chính", "giá cả"}},
	{"công nghệ", []string{"công nghệ", "ai", "điện thoại", "phần mềm", "samsung", "apple"}},
	{"xã hội", []string{"xã hội", "cộng đồng", "từ thiện", "hành hung", "vấn đề", "tranh cãi"}},
	{"giải trí", []string{"nghệ sĩ", "ca sĩ", "diễn viên", "phim", "âm nhạc", "showbiz", "sao"}},
	{"sức khỏe", []string{"sức khỏe", "bệnh", "dinh dưỡng", "lão hóa", "bác sĩ", "chăm sóc"}},
	{"thể thao", []string{"bóng đá", "thể thao", "giải đấu", "huấn luyện viên"}},
	{"du lịch", []string{"du lịch", "điểm đến", "khách sạn", "hành trình", "phú quốc", "đà lạt"}},
	{"môi trường", []string{"môi trường", "rác thải", "ô nhiễm", "thực phẩm"}},
}

var questions = map[string][]string{
	"pháp luật": {
		"Bạn nghĩ gì về vụ việc này dưới góc độ pháp lý?",
		"Bạn có đồng tình với cách xử lý của cơ quan chức năng không?",
		"Liệu có nên có những biện pháp răn đe mạnh hơn không?",
	},
	"kinh tế": {
		"Theo bạn, động thái này sẽ tác động như thế nào đến thị trường?",
		"Bạn có lời khuyên nào cho các nhà đầu tư trong bối cảnh này?",
		"Đâu là cơ hội và thách thức của ngành này trong thời gian tới?",
	},
	"công nghệ": {
		"Bạn nghĩ gì về sự phát triển của công nghệ này?",
		"Liệu công nghệ này có thay đổi cuộc sống của chúng ta không?",
		"Bạn đã từng trải nghiệm sản phẩm này chưa?",
	},
	"xã hội": {
		"Bạn có lời khuyên nào để giải quyết vấn đề này không?",
		"Theo bạn, đâu là nguyên nhân cốt lõi của sự việc?",
		"Bạn đã bao giờ trải qua tình huống tương tự chưa?",
	},
	"giải trí": {
		"Bạn có ấn tượng gì về nhân vật hay sự kiện này?",
		"Bạn nghĩ sao về màn trình diễn này?",
		"Bạn đã xem hay nghe tác phẩm này chưa?",
	},
	"sức khỏe": {
		"Bạn nghĩ sao về những lời khuyên sức khỏe này?",
		"Bạn có kinh nghiệm nào trong việc chăm sóc sức khỏe không?",
		"Bạn có đang áp dụng những thói quen này không?",
	},
	"thể thao": {
		"Bạn nghĩ gì về kết quả trận đấu này?",
		"Theo bạn, chiến thuật của đội bóng có điểm gì cần cải thiện?",
		"Khoảnh khắc nào trong trận đấu khiến bạn ấn tượng nhất?",
	},
	"du lịch": {
		"Bạn có gợi ý nào về các điểm đến đẹp khác không?",
		"Bạn đã từng ghé thăm địa điểm này chưa?",
		"Bạn nghĩ đâu là điểm thu hút nhất của địa danh này?",
	},
	"môi trường": {
		"Theo bạn, chúng ta cần làm gì để bảo vệ môi trường?",
		"Bạn nghĩ sao về những giải pháp được đề xuất?",
		"Bạn đã thực hiện những hành động xanh nào?",
	},
	"mặc định": {
		"Bạn nghĩ sao về vấn đề này?",
		"Theo bạn, đâu là giải pháp phù hợp lúc này?",
		"Bạn có đồng tình với nhận định trên không?",
		"Góc nhìn của bạn về sự việc này là gì?",
	},
}

type titleStyle struct {
	tags   []string
	emojis []string
}

type emotionRule struct {
	key      string
	keywords []string
}

var titleEmotions = []emotionRule{
	{"cảnh báo", []string{"lỗi", "bị chặn", "tự tử", "tai nạn", "mất tích", "chết", "tố", "kiện", "bắt", "lừa đảo", "cảnh báo", "khẩn", "thiệt hại", "phẫn nộ", "hành hung"}},
	{"tích cực", []string{"vinh danh", "thành công", "thắng", "vô địch", "kỷ lục", "vượt đỉnh", "tin vui", "lên ngôi", "sáng giá"}},
	{"bất ngờ", []string{"bất ngờ", "hóa ra", "tiết lộ", "ngã ngửa", "chấn động", "sốc"}},
	{"thông báo", []string{"thông báo", "quyết định", "chỉ đạo", "khai mạc"}},
}

var titleStyles = map[string]titleStyle{
	"cảnh báo":  {tags: []string{"🚨 CẢNH BÁO", "🆘 KHẨN CẤP", "⚠️ VÔ CÙNG QUAN TRỌNG"}, emojis: []string{"🚨", "🔥", "😱", "❗"}},
	"tích cực":  {tags: []string{"🎉 TIN VUI", "✨ ĐÁNG MỪNG", "💖 ẤM LÒNG"}, emojis: []string{"🎉", "✨", "⭐", "🥰"}},
	"bất ngờ":   {tags: []string{"🤯 KHÔNG THỂ TIN NỔI", "😲 BẤT NGỜ", "💡 BÍ MẬT ĐÃ HÉ LỘ"}, emojis: []string{"🤯", "😱", "😲", "🤔"}},
	"thông báo": {tags: []string{"📢 THÔNG BÁO MỚI", "✅ ĐÃ CÓ KẾT LUẬN", "📜 QUYẾT ĐỊNH QUAN TRỌNG"}, emojis: []string{"📢", "✅", "📝", "📌"}},
	"mặc định":  {tags: []string{"🆕 TIN MỚI NHẤT", "📰 ĐANG GÂY SỐT", "👀 ĐỪNG BỎ LỠ"}, emojis: []string{"🆕", "🔥", "👀", "💬"}},
}
