package model

// Disposition tells how a content part wants to be presented.
type Disposition int

const (
	DispositionNone Disposition = iota
	DispositionInline
	DispositionAttachment
)

func (d Disposition) String() string {
	switch d {
	case DispositionInline:
		return "inline"
	case DispositionAttachment:
		return "attachment"
	default:
		return "none"
	}
}

// Message is a parsed email message ready for extraction.
type Message struct {
	Origin      string
	Hash        string
	Subject     string
	From        string
	HTMLBody    string
	TextBody    string
	Attachments []*Part
	Root        Node
}

// Body returns the HTML body when present, otherwise the plain text body.
func (m *Message) Body() string {
	if m.HTMLBody != "" {
		return m.HTMLBody
	}
	return m.TextBody
}

// Node is either a *Multipart or a *Part.
type Node interface {
	node()
}

// Multipart is a container part holding nested nodes.
type Multipart struct {
	ContentType string
	Children    []Node
}

// Part is a leaf content part with its transfer-decoded bytes.
type Part struct {
	FileName    string
	ContentType string
	ContentID   string
	Disposition Disposition
	Content     []byte
}

func (*Multipart) node() {}
func (*Part) node()      {}

// Saveable reports whether the part is flagged inline or as an attachment.
func (p *Part) Saveable() bool {
	return p.Disposition == DispositionInline || p.Disposition == DispositionAttachment
}

// Walk visits every leaf under n depth-first in document order. It stops
// early and returns false when fn returns false.
func Walk(n Node, fn func(*Part) bool) bool {
	switch v := n.(type) {
	case *Multipart:
		for _, child := range v.Children {
			if !Walk(child, fn) {
				return false
			}
		}
	case *Part:
		return fn(v)
	}
	return true
}
