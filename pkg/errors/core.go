package errors

// CoreError provides specialized error handling for failures inside the
// storage core (Directory, Segment, Block, TenancyTrie). This structure
// extends the base error system with the context a caller needs to decide
// whether a failure is recoverable (LockBusy, retry) or terminal (NotFound,
// NoSpace).
type CoreError struct {
	// Embed the base error to inherit all standard error functionality
	// including error chaining, structured details, and error codes.
	*baseError

	// Identifies which key was being processed when the error occurred.
	key string

	// Identifies which directory slot (segment index) was involved, if
	// applicable. -1 when not meaningful for this error.
	segmentIndex int

	// Describes what core operation was being performed ("Put", "Get",
	// "Remove", "Split", "Extend") when the error occurred.
	operation string
}

// NewCoreError creates a new core-specific error with the provided context.
func NewCoreError(err error, code ErrorCode, msg string) *CoreError {
	return &CoreError{baseError: NewBaseError(err, code, msg), segmentIndex: -1}
}

// Override base error methods to return *CoreError instead of *baseError.

// WithMessage updates the error message while maintaining the CoreError type.
func (ce *CoreError) WithMessage(msg string) *CoreError {
	ce.baseError.WithMessage(msg)
	return ce
}

// WithCode sets the error code while preserving the CoreError type.
func (ce *CoreError) WithCode(code ErrorCode) *CoreError {
	ce.baseError.WithCode(code)
	return ce
}

// WithDetail adds contextual information while maintaining the CoreError type.
func (ce *CoreError) WithDetail(key string, value any) *CoreError {
	ce.baseError.WithDetail(key, value)
	return ce
}

// WithKey records which key was being processed when the error occurred.
func (ce *CoreError) WithKey(key string) *CoreError {
	ce.key = key
	return ce
}

// WithSegmentIndex captures which directory slot was involved in the error.
func (ce *CoreError) WithSegmentIndex(index int) *CoreError {
	ce.segmentIndex = index
	return ce
}

// WithOperation records what core operation was being performed.
func (ce *CoreError) WithOperation(operation string) *CoreError {
	ce.operation = operation
	return ce
}

// Key returns the key that was being processed when the error occurred.
func (ce *CoreError) Key() string {
	return ce.key
}

// SegmentIndex returns the directory slot associated with the error, or -1.
func (ce *CoreError) SegmentIndex() int {
	return ce.segmentIndex
}

// Operation returns the name of the operation that was being performed.
func (ce *CoreError) Operation() string {
	return ce.operation
}

// Helper functions for creating the §7 error taxonomy with appropriate
// context. BlockFull, PayloadFull and LslotExtended are internal statuses:
// Segment must fully resolve them (by extending or splitting) before a
// KvStore operation returns.

// NewBlockFullError signals that a Block's metadata-bit budget is exhausted
// for the pending insertion.
func NewBlockFullError(operation string) *CoreError {
	return NewCoreError(nil, ErrorCodeBlockFull, "block has no remaining bit budget").
		WithOperation(operation)
}

// NewPayloadFullError signals that a Block's PayloadList has no free entry.
func NewPayloadFullError(operation string) *CoreError {
	return NewCoreError(nil, ErrorCodePayloadFull, "payload list has no free entry").
		WithOperation(operation)
}

// NewLslotExtendedError signals that the target l-slot has been displaced
// into an extension block and the operation must be redirected there.
func NewLslotExtendedError(lslot int) *CoreError {
	return NewCoreError(nil, ErrorCodeLslotExtended, "l-slot has been extended").
		WithDetail("lslot", lslot)
}

// NewSplitRequiredError signals that a Segment exhausted both its home
// blocks' bit budget and its extension ring; the Directory must split it.
func NewSplitRequiredError(operation string) *CoreError {
	return NewCoreError(nil, ErrorCodeSplitRequired, "segment requires split").
		WithOperation(operation)
}

// NewNoSpaceError signals that growth is disabled or the log is exhausted.
func NewNoSpaceError(operation string) *CoreError {
	return NewCoreError(nil, ErrorCodeNoSpace, "no space available and growth is disabled").
		WithOperation(operation)
}

// NewLockBusyError signals that try-once locking found the resource held.
func NewLockBusyError(operation string) *CoreError {
	return NewCoreError(nil, ErrorCodeLockBusy, "resource locked, retry").
		WithOperation(operation)
}

// NewNotFoundError signals that a remove (or lookup) targeted an absent key.
func NewNotFoundError(key string) *CoreError {
	return NewCoreError(nil, ErrorCodeNotFound, "key not found").
		WithKey(key).
		WithOperation("Get")
}

// NewIoError wraps a log read/write failure. Fatal to the operation, not to
// the store: the caller should surface it without retrying.
func NewIoError(cause error, operation string) *CoreError {
	return NewCoreError(cause, ErrorCodeIO, "log I/O failed").
		WithOperation(operation)
}
