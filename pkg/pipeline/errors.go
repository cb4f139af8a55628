package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies pipeline failures
type ErrorKind int

const (
	KindValidation ErrorKind = iota + 1
	KindFaceDetection
	KindResolution
	KindMatting
	KindProcessing
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindFaceDetection:
		return "face_detection"
	case KindResolution:
		return "resolution"
	case KindMatting:
		return "matting"
	case KindProcessing:
		return "processing"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind by name
func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Failure codes carried by Error.Code
const (
	CodeInvalidRequest   = "invalid-request"
	CodeInvalidFile      = "invalid-file"
	CodeDecodeFailed     = "decode-failed"
	CodeNoFace           = "no-face"
	CodeMultipleFaces    = "multiple-faces"
	CodeDetectorNotReady = "detector-not-ready"
	CodeDetectorFailed   = "detector-failed"
	CodeLowResolution    = "low-resolution"
	CodeMattingNotReady  = "matting-not-ready"
	CodeMattingFailed    = "matting-failed"
	CodeCancelled        = "cancelled"
	CodeInternal         = "internal"
)

// Error is the single typed failure of a pipeline run
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Stage   Stage     `json:"stage"`
	Code    string    `json:"code"`
	DPI     int       `json:"dpi,omitempty"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s failed at %s", e.Kind, e.Stage)
	if e.Code != "" {
		fmt.Fprintf(&b, " (%s)", e.Code)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// AsError extracts a pipeline error from err's chain
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsKind reports whether err is a pipeline error of the given kind
func IsKind(err error, kind ErrorKind) bool {
	pe, ok := AsError(err)
	return ok && pe.Kind == kind
}

// HasCode reports whether err is a pipeline error with the given code
func HasCode(err error, code string) bool {
	pe, ok := AsError(err)
	return ok && pe.Code == code
}
