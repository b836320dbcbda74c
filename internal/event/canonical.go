package event

import (
	"strconv"
)

const hexDigits = "0123456789abcdef"

// Commitment produces the serialization whose SHA-256 is the event id:
//
//	[0,"<pubkey>",<created_at>,<kind>,<tags>,"<content>"]
//
// CRITICAL: This is the ONLY input that may be used for id computation.
// Any change to its bytes changes every id.
func Commitment(ev Event) []byte {
	buf := make([]byte, 0, 96+len(ev.Content)+tagsSizeHint(ev.Tags))
	buf = append(buf, "[0,"...)
	buf = appendString(buf, ev.PubKey)
	buf = append(buf, ',')
	buf = strconv.AppendInt(buf, ev.CreatedAt, 10)
	buf = append(buf, ',')
	buf = strconv.AppendInt(buf, int64(ev.Kind), 10)
	buf = append(buf, ',')
	buf = appendTags(buf, ev.Tags)
	buf = append(buf, ',')
	buf = appendString(buf, ev.Content)
	buf = append(buf, ']')
	return buf
}

// Canonical produces the stored textual form of an event. Key order is
// fixed (id, pubkey, created_at, kind, tags, content, sig) and tags are
// never null, so equal events always render to equal bytes.
func Canonical(ev Event) []byte {
	buf := make([]byte, 0, 256+len(ev.Content)+tagsSizeHint(ev.Tags))
	buf = append(buf, `{"id":`...)
	buf = appendString(buf, ev.ID)
	buf = append(buf, `,"pubkey":`...)
	buf = appendString(buf, ev.PubKey)
	buf = append(buf, `,"created_at":`...)
	buf = strconv.AppendInt(buf, ev.CreatedAt, 10)
	buf = append(buf, `,"kind":`...)
	buf = strconv.AppendInt(buf, int64(ev.Kind), 10)
	buf = append(buf, `,"tags":`...)
	buf = appendTags(buf, ev.Tags)
	buf = append(buf, `,"content":`...)
	buf = appendString(buf, ev.Content)
	buf = append(buf, `,"sig":`...)
	buf = appendString(buf, ev.Sig)
	buf = append(buf, '}')
	return buf
}

// MarshalTags renders a tag list the same way both serializations do.
// The store keeps this form in its serialized tags column.
func MarshalTags(tags Tags) []byte {
	return appendTags(make([]byte, 0, tagsSizeHint(tags)+2), tags)
}

func appendTags(buf []byte, tags Tags) []byte {
	buf = append(buf, '[')
	for i, tag := range tags {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, '[')
		for j, v := range tag {
			if j > 0 {
				buf = append(buf, ',')
			}
			buf = appendString(buf, v)
		}
		buf = append(buf, ']')
	}
	return append(buf, ']')
}

// appendString writes s as a JSON string literal.
//
// Escaped: '"', '\\', \n, \r, \t, \b, \f, and any other byte below 0x20 as
// \u00xx. Everything else, including '<', '>', '&', U+2028 and U+2029, is
// written as-is. Multi-byte UTF-8 sequences never contain bytes below 0x80,
// so a byte-level scan is safe.
func appendString(buf []byte, s string) []byte {
	buf = append(buf, '"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			buf = append(buf, '\\', '"')
		case '\\':
			buf = append(buf, '\\', '\\')
		case '\n':
			buf = append(buf, '\\', 'n')
		case '\r':
			buf = append(buf, '\\', 'r')
		case '\t':
			buf = append(buf, '\\', 't')
		case '\b':
			buf = append(buf, '\\', 'b')
		case '\f':
			buf = append(buf, '\\', 'f')
		default:
			if c < 0x20 {
				buf = append(buf, '\\', 'u', '0', '0', hexDigits[c>>4], hexDigits[c&0xf])
				continue
			}
			buf = append(buf, c)
		}
	}
	return append(buf, '"')
}

func tagsSizeHint(tags Tags) int {
	n := 0
	for _, t := range tags {
		n += 4
		for _, v := range t {
			n += len(v) + 3
		}
	}
	return n
}
