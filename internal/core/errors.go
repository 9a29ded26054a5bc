package core

import "errors"

// Error kinds surfaced by the core. The HTTP layer maps these to status
// codes; the core never formats user-facing text.
var (
	// ErrCorruptDocument: the uploaded bytes are not a parseable PDF
	// container. Fatal for the run, no repair is attempted.
	ErrCorruptDocument = errors.New("corrupt document")

	// ErrOCRUnavailable: the OCR engine cannot be invoked (missing binary or
	// language model). Reported per page, never fatal to the document.
	ErrOCRUnavailable = errors.New("ocr unavailable")

	// ErrAnalysisFailure: the content analysis result could not be produced
	// or serialized. Fatal for the run.
	ErrAnalysisFailure = errors.New("analysis failure")

	// ErrPersistenceFailure: a store write failed; the in-flight transition
	// is aborted.
	ErrPersistenceFailure = errors.New("persistence failure")

	// ErrDocumentNotFound: no document with the given id.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrDocumentBusy: the document has an active pipeline run; deletion is
	// rejected until the run reaches a terminal status.
	ErrDocumentBusy = errors.New("document is processing")

	// ErrDocumentNotReady: chat precondition, the document is not procesado.
	ErrDocumentNotReady = errors.New("document not ready")

	// ErrGenerationUnavailable: the generation backend cannot be reached.
	// Retryable by the caller, never mutates document state.
	ErrGenerationUnavailable = errors.New("generation unavailable")
)
