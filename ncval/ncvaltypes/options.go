package ncvaltypes

// Options alter how a code region is scanned.
type Options uint32

const (
	// ProcessChunkAsContiguousStream decodes the whole region as one stream
	// instead of bundle by bundle. Used by tests and tooling only.
	ProcessChunkAsContiguousStream Options = 1 << iota
	// CallUserCallbackOnEachInstruction reports every instruction, not just
	// the ones carrying an error bit.
	CallUserCallbackOnEachInstruction
)

func (o Options) Has(flag Options) bool {
	return o&flag != 0
}

// Callback receives one report per instruction or error. begin and end are
// offsets into the code region. Returning false marks the region as rejected.
type Callback func(begin, end int, info Info) bool

// Diagnostic is one recorded callback invocation.
type Diagnostic struct {
	Begin int  `json:"begin"`
	End   int  `json:"end"`
	Info  Info `json:"info"`
}
