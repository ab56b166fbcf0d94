package parser

import "github.com/rivo/uniseg"

// completeUTF8Prefix returns the length of the longest prefix of b that
// ends on a complete UTF-8 code point and does not split a grapheme
// cluster. Probe mode re-decodes the whole buffer on every ingest;
// without this trim, a chunk boundary landing inside a multi-byte
// sequence would hand the decoder a truncated sequence it is free to
// replace with U+FFFD, which spec.md §8 forbids ("never emits a tree
// whose string values contain a replacement character as a result of an
// unfinished UTF-8 sequence at the buffer edge"). The strict-commit path
// never needs this: a commit offset always lands on a single-byte ASCII
// structural character, which can't be a continuation byte of a
// preceding sequence or sit inside a cluster.
func completeUTF8Prefix(b []byte) int {
	n := codepointSafePrefix(b)
	return graphemeSafePrefix(b, n)
}

func codepointSafePrefix(b []byte) int {
	n := len(b)
	for back := 1; back <= 3 && back <= n; back++ {
		c := b[n-back]
		if c < 0x80 || c >= 0xC0 { // ASCII byte or a lead byte
			if utf8SeqLen(c) > back {
				return n - back
			}
			break
		}
		// else: a continuation byte (0x80-0xBF); keep walking back to
		// find the lead byte that started this sequence.
	}
	return n
}

// graphemeSafePrefix trims limit back to the nearest preceding grapheme
// cluster boundary, so a probe never cuts a base rune apart from its
// combining marks or a multi-rune emoji ZWJ sequence mid-cluster.
func graphemeSafePrefix(b []byte, limit int) int {
	last := 0
	state := -1
	rest := b
	for len(rest) > 0 {
		cluster, next, _, newState := uniseg.FirstGraphemeCluster(rest, state)
		state = newState
		boundary := last + len(cluster)
		if boundary > limit {
			return last
		}
		last = boundary
		rest = next
	}
	return last
}

func utf8SeqLen(lead byte) int {
	switch {
	case lead < 0x80:
		return 1
	case lead&0xE0 == 0xC0:
		return 2
	case lead&0xF0 == 0xE0:
		return 3
	case lead&0xF8 == 0xF0:
		return 4
	default:
		return 1 // not a valid lead byte; let the decoder reject it
	}
}
