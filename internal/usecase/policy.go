package usecase

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"

	"support-agent/internal/domain"
)

// Fixed sentences the agent sends verbatim. They are part of the support
// script and must never be rephrased by the model.
const (
	// SuppressionReply is the single sentence sent once degenerate input
	// exceeds the tolerated streak.
	SuppressionReply = "Câu hỏi của quý khách không phù hợp ạ"

	// EmptyPromptReply answers the first and second non-informative
	// messages without involving the model.
	EmptyPromptReply = "Dạ, Minh là tư vấn viên của NHÀ MỸ CALI Real Estate. Minh có thể giúp gì cho bạn ạ?"

	// HandoffReply connects the customer to the partner realtor once a
	// house-search checklist is complete or a human is otherwise needed.
	HandoffReply = "Minh xin được kết nối bạn với cô Helen Hà Nguyễn (realtor cuả Coldwell Banker Realty) để cô Hà tư vấn giúp bạn cụ thể hơn nhé. Bạn vui lòng đợi, cô Hà sẽ liên hệ bạn trong thời gian sớm nhất nhé. Nếu như bạn cần tư vấn gấp, bạn có thể liên lạc với số hotline - (408) 623-6577 của Nhà Mỹ Cali ạ."

	// ApologyReply covers reasoning failures. The customer is never shown
	// a raw error.
	ApologyReply = "Dạ, Minh xin lỗi bạn nhé, hệ thống của Minh đang gặp chút trục trặc nên chưa trả lời bạn ngay được ạ.\nBạn vui lòng nhắn lại sau ít phút, Minh sẽ hỗ trợ bạn liền nhé 😊!"
)

// SystemPrompt composes the persona and conversation rules handed to the
// reasoning backend as a system instruction.
func SystemPrompt() string {
	sections := []string{
		"Vai trò",
		"Bạn tên là Minh, nhân viên tư vấn và chăm sóc khách hàng của thương hiệu NHÀ MỸ CALI Real Estate. Bạn đã có 10 năm kinh nghiệm chăm sóc khách hàng nên bạn rất biết cách nói chuyện lịch sự, nhã nhặn, thu hút, khiến khách hàng hài lòng.",
		"",
		"Ràng buộc bắt buộc",
		"- BẮT BUỘC gọi tool knowledge_search để lấy kiến thức trả lời cho câu hỏi của khách hàng. Không được dùng kiến thức bên ngoài tool này. Phải gọi tool trước khi soạn câu trả lời, trừ khi chỉ cần hỏi thêm thông tin vì khách cung cấp thiếu.",
		"- Nếu tool không trả về thông tin phù hợp, hỏi lại khách để làm rõ nhu cầu thay vì tự bịa ra thông tin.",
		"- Luôn trả lời bằng tiếng Việt, chi tiết, rõ ràng, từ 100 đến 300 ký tự.",
		"- Không dùng ký tự markdown trong câu trả lời.",
		"- Viết theo phong cách trò chuyện thân mật, gần gũi. Luôn xưng \"Minh\" và gọi khách hàng là \"bạn\".",
		"- Câu trả lời dài hơn 100 ký tự thì ngắt xuống dòng giữa các ý cho dễ đọc.",
		"- Link phải ghi đầy đủ, ví dụ https://example.com/abc",
		"",
		"Nhiệm vụ chính",
		"1. Nếu là tin nhắn đầu tiên và khách chỉ mới chào hỏi, lịch sự chào lại và giới thiệu khéo léo dịch vụ bất động sản, định cư Mỹ, vay vốn mua nhà của NHÀ MỸ CALI. Trường hợp này không cần gọi tool.",
		"2. Nếu nhu cầu của khách chưa rõ, hỏi thêm chi tiết trước khi tư vấn.",
		"3. Trả lời chính xác, chỉ dựa trên kết quả tool knowledge_search.",
		"4. Nếu khách muốn tìm nhà, đề nghị khách cung cấp đủ: số phòng ngủ, số phòng tắm, khu vực. Chưa đủ thì hỏi thêm cho đủ.",
		"5. Nếu khách hỏi nhà ngoài khu vực bang California, trả lời lịch sự rằng NHÀ MỸ CALI chuyên khu vực Bay Area, California là chủ yếu, rồi đề nghị kết nối khách với cô Helen Hà Nguyễn (realtor cuả Coldwell Banker Realty) và đặt escalate thành true.",
		"6. Nếu khách hỏi vấn đề nhạy cảm về tiền bạc như mượn tiền, vay tiền, chỉ đưa thông tin tổng quát từ tool rồi xin phép kết nối khách với cô Helen Hà Nguyễn và đặt escalate thành true.",
		"7. Khi cần khách liên hệ con người, tuyệt đối không nói kiểu chỉ thị \"bạn nên liên hệ\", mà luôn nói Minh xin được kết nối bạn với cô Helen Hà Nguyễn (realtor cuả Coldwell Banker Realty), kèm hotline (408) 623-6577 nếu khách cần gấp.",
		"8. Nếu khách cám ơn, lịch sự hỏi lại khách còn cần tư vấn gì thêm không.",
		"9. Nếu khách chào tạm biệt, chào lại ngắn gọn, cảm ơn khách đã liên hệ.",
		"10. Nếu khách hỏi chủ đề không liên quan đến bất động sản, mua nhà, thuê nhà, định cư Mỹ, vay vốn, từ chối lịch sự và khéo léo dẫn về chủ đề của NHÀ MỸ CALI.",
		"",
		"Định dạng đầu ra",
		"Luôn trả về đúng một đối tượng JSON, không kèm văn bản nào khác, theo dạng:",
		`{"reply": "<câu trả lời cho khách>", "escalate": <true nếu cần kết nối khách với con người, ngược lại false>}`,
	}
	return strings.Join(sections, "\n")
}

// ReplyEnvelope is the JSON object the reasoning backend must emit.
type ReplyEnvelope struct {
	Reply    string `json:"reply"`
	Escalate bool   `json:"escalate"`
}

var fenceRe = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

// ParseEnvelope decodes a model completion into a ReplyEnvelope. Code
// fences around the object are tolerated, unknown fields are not.
func ParseEnvelope(raw string) (ReplyEnvelope, error) {
	text := strings.TrimSpace(raw)
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		text = m[1]
	}

	dec := json.NewDecoder(strings.NewReader(text))
	dec.DisallowUnknownFields()

	var env ReplyEnvelope
	if err := dec.Decode(&env); err != nil {
		return ReplyEnvelope{}, newError(ErrorReasoning, "completion is not a reply envelope", err)
	}
	env.Reply = NormalizeReply(env.Reply)
	return env, nil
}

var (
	boldRe    = regexp.MustCompile(`\*\*(.*?)\*\*`)
	italicRe  = regexp.MustCompile(`\*(.*?)\*`)
	codeRe    = regexp.MustCompile("`([^`]*)`")
	headingRe = regexp.MustCompile(`(?m)^#+\s*`)
)

// NormalizeReply strips the markdown syntax models sneak in despite the
// plain-prose instruction.
func NormalizeReply(text string) string {
	text = boldRe.ReplaceAllString(text, "$1")
	text = italicRe.ReplaceAllString(text, "$1")
	text = codeRe.ReplaceAllString(text, "$1")
	text = headingRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

const (
	minReplyRunes = 100
	maxReplyRunes = 300
)

// ReplyFormatIssues checks a composed reply against the output contract:
// 100 to 300 characters, with line breaks once the reply runs long. It
// covers model output only; the fixed script sentences are not subject to
// it.
func ReplyFormatIssues(text string) []string {
	var issues []string
	n := utf8.RuneCountInString(text)
	if n < minReplyRunes {
		issues = append(issues, "shorter than 100 characters")
	}
	if n > maxReplyRunes {
		issues = append(issues, "longer than 300 characters")
	}
	if n > minReplyRunes && !strings.Contains(text, "\n") {
		issues = append(issues, "long reply without line breaks")
	}
	return issues
}

// Checklist tracks the fields a house-search request must supply before
// the conversation is handed to the realtor.
type Checklist struct {
	Intent       bool
	HasBedrooms  bool
	HasBathrooms bool
	HasArea      bool
}

// Complete reports whether a house search has everything the realtor
// needs.
func (c Checklist) Complete() bool {
	return c.Intent && c.HasBedrooms && c.HasBathrooms && c.HasArea
}

var (
	intentKeywords = []string{"tìm nhà", "mua nhà", "kiếm nhà"}
	areaNames      = []string{
		"san jose", "san francisco", "milpitas", "santa clara", "sunnyvale",
		"fremont", "oakland", "bay area", "california",
	}

	bedroomRe  = regexp.MustCompile(`\d+\s*(phòng ngủ|pn\b)`)
	bathroomRe = regexp.MustCompile(`\d+\s*(phòng tắm|phòng vệ sinh|pt\b|wc)`)
	areaRe     = regexp.MustCompile(`khu vực\s+\p{L}+`)
)

// BuildChecklist scans the user side of the window plus the incoming
// message for house-search intent and the required fields. Agent turns
// never satisfy fields, so the follow-up questions don't count; a handoff
// turn resets the scan so a completed search does not keep forcing the
// handoff for the rest of the window.
func BuildChecklist(window []domain.Turn, incoming string) Checklist {
	var c Checklist
	for _, t := range window {
		if t.Speaker != domain.SpeakerUser {
			if t.Text == HandoffReply {
				c = Checklist{}
			}
			continue
		}
		c.absorb(t.Text)
	}
	c.absorb(incoming)
	return c
}

func (c *Checklist) absorb(text string) {
	lower := strings.ToLower(text)
	for _, kw := range intentKeywords {
		if strings.Contains(lower, kw) {
			c.Intent = true
			break
		}
	}
	if bedroomRe.MatchString(lower) {
		c.HasBedrooms = true
	}
	if bathroomRe.MatchString(lower) {
		c.HasBathrooms = true
	}
	if areaRe.MatchString(lower) {
		c.HasArea = true
		return
	}
	for _, name := range areaNames {
		if strings.Contains(lower, name) {
			c.HasArea = true
			return
		}
	}
}
