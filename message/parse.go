// Package message adapts the MIME parser to the extraction data model.
package message

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/jhillyerd/enmime"

	"github.com/dhcgn/eml-extract/model"
)

// Parser turns raw message bytes into a model.Message.
type Parser interface {
	Parse(raw []byte) (*model.Message, error)
}

// EnmimeParser is the default Parser.
type EnmimeParser struct{}

func (EnmimeParser) Parse(raw []byte) (*model.Message, error) {
	return Parse(raw)
}

// Parse reads raw with enmime and converts the envelope. Attachments share
// their *model.Part pointers with the content tree.
func Parse(raw []byte) (*model.Message, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("read envelope: %w", err)
	}

	parts := make(map[*enmime.Part]*model.Part)
	msg := &model.Message{
		Hash:     Hash(raw),
		Subject:  env.GetHeader("Subject"),
		From:     env.GetHeader("From"),
		HTMLBody: env.HTML,
		TextBody: env.Text,
	}

	if env.Root != nil {
		msg.Root = convert(env.Root, parts)
	}
	for _, a := range env.Attachments {
		msg.Attachments = append(msg.Attachments, leaf(a, parts))
	}

	return msg, nil
}

// Hash is the base64 sha256 digest of raw.
func Hash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func convert(p *enmime.Part, parts map[*enmime.Part]*model.Part) model.Node {
	if p.FirstChild == nil {
		return leaf(p, parts)
	}

	mp := &model.Multipart{ContentType: p.ContentType}
	for child := p.FirstChild; child != nil; child = child.NextSibling {
		mp.Children = append(mp.Children, convert(child, parts))
	}
	return mp
}

func leaf(p *enmime.Part, parts map[*enmime.Part]*model.Part) *model.Part {
	if existing, ok := parts[p]; ok {
		return existing
	}

	part := &model.Part{
		FileName:    p.FileName,
		ContentType: p.ContentType,
		ContentID:   p.ContentID,
		Disposition: disposition(p.Disposition),
		Content:     p.Content,
	}
	parts[p] = part
	return part
}

func disposition(value string) model.Disposition {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "attachment":
		return model.DispositionAttachment
	case "inline":
		return model.DispositionInline
	default:
		return model.DispositionNone
	}
}
