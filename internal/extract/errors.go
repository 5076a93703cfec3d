package extract

import "errors"

var (
	// ErrPDFConversionNeeded marks a PDF with no embedded text layer
	// when the configured model cannot read PDFs natively. The list is
	// left untouched so it can be retried after conversion to images.
	ErrPDFConversionNeeded = errors.New("pdf has no text layer, conversion to images required")

	// ErrUnparseable means the model answered but no record array
	// could be recovered from its reply.
	ErrUnparseable = errors.New("model response is not a parseable record array")
)
