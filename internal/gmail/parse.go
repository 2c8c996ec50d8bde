package gmail

import (
	"encoding/base64"
	"regexp"
	"strings"

	gm "google.golang.org/api/gmail/v1"
)

// Attachment describes a file part of a message. Data is set when the
// body was inlined; otherwise ID must be downloaded.
type Attachment struct {
	ID       string
	Filename string
	MimeType string
	Data     []byte
}

// IsPDF reports whether the attachment is a PDF document.
func (a Attachment) IsPDF() bool {
	return strings.EqualFold(a.MimeType, "application/pdf") ||
		strings.HasSuffix(strings.ToLower(a.Filename), ".pdf")
}

// IsImage reports whether the attachment is a JPEG or PNG image.
func (a Attachment) IsImage() bool {
	switch strings.ToLower(a.MimeType) {
	case "image/jpeg", "image/jpg", "image/png":
		return true
	}
	name := strings.ToLower(a.Filename)
	return strings.HasSuffix(name, ".jpg") || strings.HasSuffix(name, ".jpeg") || strings.HasSuffix(name, ".png")
}

// Attachments walks the MIME tree and collects every part with a filename.
func Attachments(part *gm.MessagePart) []Attachment {
	var out []Attachment
	walk(part, func(p *gm.MessagePart) {
		if p.Filename == "" || p.Body == nil {
			return
		}
		a := Attachment{ID: p.Body.AttachmentId, Filename: p.Filename, MimeType: p.MimeType}
		if a.ID == "" && p.Body.Data != "" {
			data, err := DecodeBase64URL(p.Body.Data)
			if err != nil {
				return
			}
			a.Data = data
		}
		if a.ID == "" && a.Data == nil {
			return
		}
		out = append(out, a)
	})
	return out
}

// Bodies returns the decoded text/plain and text/html bodies that are not
// attachments, in tree order.
func Bodies(part *gm.MessagePart) (plain, html []string) {
	walk(part, func(p *gm.MessagePart) {
		if p.Filename != "" || p.Body == nil || p.Body.Data == "" {
			return
		}
		mt := strings.ToLower(p.MimeType)
		if !strings.HasPrefix(mt, "text/plain") && !strings.HasPrefix(mt, "text/html") {
			return
		}
		data, err := DecodeBase64URL(p.Body.Data)
		if err != nil {
			return
		}
		if strings.HasPrefix(mt, "text/html") {
			html = append(html, string(data))
		} else {
			plain = append(plain, string(data))
		}
	})
	return plain, html
}

func walk(p *gm.MessagePart, fn func(*gm.MessagePart)) {
	if p == nil {
		return
	}
	fn(p)
	for _, child := range p.Parts {
		walk(child, fn)
	}
}

// Header returns the first header called name, ignoring case.
func Header(msg *gm.Message, name string) string {
	if msg == nil || msg.Payload == nil {
		return ""
	}
	for _, h := range msg.Payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// DecodeBase64URL decodes Gmail's URL-safe base64, padded or not.
func DecodeBase64URL(s string) ([]byte, error) {
	s = strings.TrimRight(s, "=")
	return base64.RawURLEncoding.DecodeString(s)
}

var urlPattern = regexp.MustCompile(`https?://[^\s"'<>]+`)

// ExtractURLs returns the distinct http(s) links in text, in order of
// appearance, with trailing punctuation removed.
func ExtractURLs(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, u := range urlPattern.FindAllString(text, -1) {
		u = strings.TrimRight(u, ".,;:!?)]}")
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
