package parser

import (
	"sync"

	"github.com/deltastream/core/internal/completer"
	"github.com/deltastream/core/internal/errs"
	"github.com/deltastream/core/internal/jsontree"
)

// Config holds the C3 tunables of spec.md §6.
type Config struct {
	MaxBufferBytes int
}

func DefaultConfig() Config {
	return Config{MaxBufferBytes: 1048576}
}

// maxDropCandidates bounds how many pending safe-split offsets a Parser
// remembers between drops. A document nested or comma-separated deeply
// enough to overrun this window still works correctly — it just has
// fewer overflow-drop choices available — so this is a memory bound,
// not a correctness one.
const maxDropCandidates = 256

// ProgressReport is what Ingest returns, summarizing one ingest cycle's
// effect per spec.md §4.3.1.
type ProgressReport struct {
	BytesAppended  int
	BytesDropped   int
	BytesCommitted int
	Probed         bool
	Valid          bool
	State          State
}

// Parser holds one session's cross-chunk parse state: the C3 contract
// of spec.md §4.3.1 (ingest, current_tree, raw_buffer, finalize) plus
// the state machine of §4.3.4.
type Parser struct {
	mu sync.RWMutex

	id        string
	cfg       Config
	completer *completer.Completer

	ring           *RingBuffer
	boundary       boundary
	scannedLen     int
	dropCandidates []int

	tree  *jsontree.Value
	state State

	lastCompletion completer.CompletionResult
}

func New(id string, cfg Config, comp *completer.Completer) *Parser {
	return &Parser{
		id:        id,
		cfg:       cfg,
		completer: comp,
		ring:      NewRingBuffer(),
		state:     Idle,
	}
}

func (p *Parser) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// CurrentTree implements `current_tree() -> PartialTree`: a snapshot of
// the committed/best-effort tree, safe for the caller to read without
// aliasing state the parser may still mutate.
func (p *Parser) CurrentTree() *jsontree.Value {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.tree.Clone()
}

// RawBuffer implements `raw_buffer() -> bytes`: the text accumulated
// but not yet strictly committed.
func (p *Parser) RawBuffer() []byte {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]byte, p.ring.Len())
	copy(out, p.ring.Bytes())
	return out
}

// Ingest implements spec.md §4.3.1's `ingest` and drives the §4.3.4
// state machine. isFinal drains and finalizes the session within this
// same call, matching the table's Active->Draining->Terminal path.
func (p *Parser) Ingest(chunk []byte, isFinal bool) (ProgressReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == Terminal {
		return ProgressReport{}, errs.SessionClosed(p.id)
	}
	if p.state == Idle {
		p.state = Active
	}

	dropped := p.appendAndMaybeTruncate(chunk)
	committed, probed, valid := p.advance()

	report := ProgressReport{
		BytesAppended:  len(chunk),
		BytesDropped:   dropped,
		BytesCommitted: committed,
		Probed:         probed,
		Valid:          valid,
	}

	if isFinal {
		p.state = Draining
		p.finalizeLocked()
	}
	report.State = p.state
	return report, nil
}

// Finalize implements spec.md §4.3.1's `finalize`: complete the
// residual buffer and commit the final tree. Calling it again after
// Terminal is reached returns the same result, not an error — finalize
// is the mechanism that reaches Terminal, not an operation barred by it.
func (p *Parser) Finalize() completer.CompletionResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == Idle || p.state == Active {
		p.state = Draining
	}
	return p.finalizeLocked()
}

func (p *Parser) finalizeLocked() completer.CompletionResult {
	if p.state == Terminal {
		return p.lastCompletion
	}

	residual := string(p.ring.Bytes())
	var result completer.CompletionResult
	if residual != "" {
		result = p.completer.Complete(residual, nil)
		if result.IsValid {
			if tree, err := jsontree.Decode([]byte(result.RepairedJSON)); err == nil {
				p.tree = mergeTrees(p.tree, tree)
			}
		}
	} else {
		// Nothing left unparsed: the document already closed cleanly via
		// a strict commit, so finalize just reports the tree as-is.
		result = completer.CompletionResult{RepairedJSON: jsontree.Encode(p.tree), IsValid: true, Confidence: 1.0}
	}

	p.lastCompletion = result
	p.ring.Advance(p.ring.Len())
	p.dropCandidates = nil
	p.state = Terminal
	return result
}

// appendAndMaybeTruncate appends chunk and, if the buffer now exceeds
// MaxBufferBytes, drops the largest recorded safe-split offset at or
// before the position the new chunk started at, per spec.md §4.3.2. It
// returns the number of bytes dropped.
func (p *Parser) appendAndMaybeTruncate(chunk []byte) int {
	preChunkLen := p.ring.Len()
	p.ring.Append(chunk)

	if p.ring.Len() <= p.cfg.MaxBufferBytes {
		return 0
	}

	offset := -1
	for _, c := range p.dropCandidates {
		if c <= preChunkLen && c > offset {
			offset = c
		}
	}
	if offset <= 0 {
		return 0
	}

	p.ring.Advance(offset)
	p.rebaseCandidates(offset)
	p.scannedLen -= offset
	return offset
}

// advance runs spec.md §4.3.3 steps 2-4 over whatever bytes were
// appended since the last call: find the largest safe commit prefix and
// strictly parse it, or fall back to the Completer in probe mode over
// the whole buffer.
func (p *Parser) advance() (committed int, probed bool, valid bool) {
	buf := p.ring.Bytes()
	newStart := p.scannedLen
	if newStart > len(buf) {
		newStart = len(buf)
	}
	commitOffset := p.boundary.scan(newStart, buf[newStart:], p.recordCandidate)
	p.scannedLen = len(buf)

	if commitOffset > 0 {
		if tree, err := jsontree.Decode(buf[:commitOffset]); err == nil {
			p.tree = mergeTrees(p.tree, tree)
			p.ring.Advance(commitOffset)
			p.rebaseCandidates(commitOffset)
			p.scannedLen -= commitOffset
			return commitOffset, false, true
		}
	}

	probeLen := completeUTF8Prefix(p.ring.Bytes())
	if probeLen == 0 {
		return 0, false, true
	}
	result := p.completer.Complete(string(p.ring.Bytes()[:probeLen]), nil)
	if !result.IsValid {
		return 0, true, false
	}
	tree, err := jsontree.Decode([]byte(result.RepairedJSON))
	if err != nil {
		return 0, true, false
	}
	p.tree = mergeTrees(p.tree, tree)
	return 0, true, true
}

func (p *Parser) recordCandidate(offset int) {
	p.dropCandidates = append(p.dropCandidates, offset)
	if len(p.dropCandidates) > maxDropCandidates {
		p.dropCandidates = p.dropCandidates[len(p.dropCandidates)-maxDropCandidates:]
	}
}

func (p *Parser) rebaseCandidates(n int) {
	out := p.dropCandidates[:0]
	for _, off := range p.dropCandidates {
		if off > n {
			out = append(out, off-n)
		}
	}
	p.dropCandidates = out
}
