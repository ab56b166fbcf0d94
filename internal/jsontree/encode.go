package jsontree

import (
	"strconv"
	"strings"
)

// Encode renders a Value back to JSON text with insertion-order object
// keys — the "canonical serialization" spec.md §4.4.3 calls for when
// computing a per-path content hash ("insertion-order keys are canonical
// here to match the model").
func Encode(v *Value) string {
	var b strings.Builder
	encodeInto(&b, v)
	return b.String()
}

func encodeInto(b *strings.Builder, v *Value) {
	if v == nil {
		b.WriteString("null")
		return
	}
	switch v.Kind {
	case KindNull:
		b.WriteString("null")
	case KindBool:
		if v.Bool {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case KindNumber:
		if v.Num == "" {
			b.WriteString("0")
		} else {
			b.WriteString(v.Num)
		}
	case KindString:
		b.WriteString(strconv.Quote(v.Str))
	case KindArray:
		b.WriteByte('[')
		for i, item := range v.Array {
			if i > 0 {
				b.WriteByte(',')
			}
			encodeInto(b, item)
		}
		b.WriteByte(']')
	case KindObject:
		b.WriteByte('{')
		for i, m := range v.Object {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Quote(m.Key))
			b.WriteByte(':')
			encodeInto(b, m.Value)
		}
		b.WriteByte('}')
	}
}

// Sketch renders a short, bounded human-readable stand-in for a value,
// used for DeltaEvent "old value" sketches and Remove op payloads so
// consumers get a hint of what was there without the full (possibly
// large) value.
func Sketch(v *Value, maxLen int) string {
	s := Encode(v)
	if len(s) <= maxLen {
		return s
	}
	if maxLen < 1 {
		return ""
	}
	return s[:maxLen] + "…"
}
