package jsontree

import "bytes"

const indentUnit = "  "

const hexDigits = "0123456789abcdef"

// MarshalIndent serializes the tree with two-space indentation, members in
// document order and number literals byte-for-byte as parsed. Output carries
// no trailing newline.
func (n *Node) MarshalIndent() []byte {
	var buf bytes.Buffer
	n.encode(&buf, 0)
	return buf.Bytes()
}

func (n *Node) encode(buf *bytes.Buffer, depth int) {
	if n == nil {
		buf.WriteString("null")
		return
	}

	switch n.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		if n.boolean {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case KindNumber:
		buf.WriteString(n.scalar)
	case KindString:
		encodeString(buf, n.scalar)
	case KindObject:
		if len(n.members) == 0 {
			buf.WriteString("{}")
			return
		}
		buf.WriteByte('{')
		for i, m := range n.members {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteByte('\n')
			writeIndent(buf, depth+1)
			encodeString(buf, m.Key)
			buf.WriteString(": ")
			m.Value.encode(buf, depth+1)
		}
		buf.WriteByte('\n')
		writeIndent(buf, depth)
		buf.WriteByte('}')
	case KindArray:
		if len(n.elems) == 0 {
			buf.WriteString("[]")
			return
		}
		buf.WriteByte('[')
		for i, el := range n.elems {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteByte('\n')
			writeIndent(buf, depth+1)
			el.encode(buf, depth+1)
		}
		buf.WriteByte('\n')
		writeIndent(buf, depth)
		buf.WriteByte(']')
	}
}

func writeIndent(buf *bytes.Buffer, depth int) {
	for i := 0; i < depth; i++ {
		buf.WriteString(indentUnit)
	}
}

// encodeString writes s as a JSON string per RFC 8259: quote, backslash and
// control characters escaped, everything else (UTF-8 included) verbatim.
func encodeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '"' && c != '\\' && c >= 0x20 {
			continue
		}
		buf.WriteString(s[start:i])
		switch c {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			buf.WriteString(`\u00`)
			buf.WriteByte(hexDigits[c>>4])
			buf.WriteByte(hexDigits[c&0xf])
		}
		start = i + 1
	}
	buf.WriteString(s[start:])
	buf.WriteByte('"')
}
