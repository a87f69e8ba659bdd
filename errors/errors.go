// Package errors defines the error handling used throughout the name
// server, storage server and client code. It uses a structured-error
// idiom: a single Error type carrying typed fields
// (the operation, the filename, the user, a Kind) so that callers can test
// for a Kind without parsing a message string, and so that every error that
// crosses the wire carries a stable numeric code.
package errors

import (
	"bytes"
	"fmt"
	"runtime"

	"scribe.io/log"
)

// Error is the type that implements the error interface for this module.
// Any of its fields may be left at its zero value.
type Error struct {
	// Op is the operation being performed, usually the dispatcher op name
	// (e.g. "CREATE", "WRITE_LOCK"). It should not contain an '@'.
	Op string
	// Filename is the file or folder path the operation concerns.
	Filename string
	// User is the name of the user attempting the operation.
	User string
	// Kind classifies the error for wire encoding and programmatic checks.
	Kind Kind
	// Err is the underlying error that triggered this one, if any.
	Err error
}

var zeroErr Error

// Separator joins nested errors when printed.
var Separator = ":\n\t"

// Kind enumerates the error taxonomy of the system. The numeric values
// double as a stable, low range; the wire error_code sent in an ERROR
// frame is Kind.Code(), which starts at 101 per the protocol's reserved
// error-code range.
type Kind uint8

// The full taxonomy. Order matters: Code() is 100 + iota, so reordering
// these changes the wire contract.
const (
	Other Kind = iota // unclassified

	// Existence
	FileNotFound
	FolderNotFound
	FileExists
	FolderExists
	CheckpointNotFound
	CheckpointExists
	RequestNotFound
	RequestExists
	UserNotFound

	// Authorization
	PermissionDenied
	NotOwner
	AlreadyHasAccess
	UsernameTaken
	SSExists

	// Validation
	InvalidCommand
	InvalidIndex
	InvalidSentence
	InvalidWord
	InvalidPath
	InvalidFilename

	// Concurrency
	SentenceLocked
	UndoNotAvailable

	// Resource / environment
	SSUnavailable
	SSDisconnected
	NetworkError
	FileOperationFailed
	FileEmpty
)

// Code returns the wire error_code for this Kind: 100 + Kind, so the
// classified kinds span 101 (FileNotFound) to 127 (FileEmpty). Other maps to 100, which
// is never sent on the wire (an Other-kind *Error is a bug in the server,
// not a protocol-level condition) but is kept so Code() is total.
func (k Kind) Code() int {
	return 100 + int(k)
}

// KindFromCode inverts Code. ok is false if code is outside the known range.
func KindFromCode(code int) (k Kind, ok bool) {
	v := code - 100
	if v < int(Other) || v > int(FileEmpty) {
		return Other, false
	}
	return Kind(v), true
}

func (k Kind) String() string {
	switch k {
	case Other:
		return "other error"
	case FileNotFound:
		return "file not found"
	case FolderNotFound:
		return "folder not found"
	case FileExists:
		return "file already exists"
	case FolderExists:
		return "folder already exists"
	case CheckpointNotFound:
		return "checkpoint not found"
	case CheckpointExists:
		return "checkpoint already exists"
	case RequestNotFound:
		return "access request not found"
	case RequestExists:
		return "access request already pending"
	case UserNotFound:
		return "user not found"
	case PermissionDenied:
		return "permission denied"
	case NotOwner:
		return "not the owner"
	case AlreadyHasAccess:
		return "already has access"
	case UsernameTaken:
		return "username already connected"
	case SSExists:
		return "storage server already registered"
	case InvalidCommand:
		return "invalid command"
	case InvalidIndex:
		return "invalid index"
	case InvalidSentence:
		return "invalid sentence"
	case InvalidWord:
		return "invalid word"
	case InvalidPath:
		return "invalid path"
	case InvalidFilename:
		return "invalid filename"
	case SentenceLocked:
		return "sentence locked"
	case UndoNotAvailable:
		return "undo not available"
	case SSUnavailable:
		return "storage server unavailable"
	case SSDisconnected:
		return "storage server disconnected"
	case NetworkError:
		return "network error"
	case FileOperationFailed:
		return "file operation failed"
	case FileEmpty:
		return "file is empty"
	}
	return "unknown error kind"
}

// Op is the type of the Op field, defined separately so E can type-switch
// on it without colliding with the Filename/User string arguments.
type Op string

// E builds an error value from its arguments. The type of each argument
// determines which field it sets; if more than one of a type is given,
// only the last is kept. Recognized types:
//
//	errors.Op      the operation being performed
//	errors.Path    a file or folder name
//	errors.User    the acting user
//	errors.Kind    the class of error
//	error          the underlying error
//
// If Kind is unset (or Other) and the wrapped error is itself an *Error,
// the wrapped Kind is promoted, so the innermost classified error decides
// the outer Kind.
func E(args ...interface{}) error {
	if len(args) == 0 {
		return nil
	}
	e := &Error{}
	for _, arg := range args {
		switch a := arg.(type) {
		case Op:
			e.Op = string(a)
		case Path:
			e.Filename = string(a)
		case User:
			e.User = string(a)
		case Kind:
			e.Kind = a
		case *Error:
			cp := *a
			e.Err = &cp
		case error:
			e.Err = a
		case string:
			// Bare strings are ambiguous; log it so callers fix the call site.
			_, file, line, _ := runtime.Caller(1)
			log.Printf("errors.E: bare string %q from %s:%d, wrap in errors.Op/Path/User", a, file, line)
			e.Op = a
		default:
			_, file, line, _ := runtime.Caller(1)
			log.Printf("errors.E: bad call from %s:%d: %v", file, line, args)
			return Errorf("unknown type %T, value %v in error call", arg, arg)
		}
	}
	prev, ok := e.Err.(*Error)
	if !ok {
		return e
	}
	if prev.Filename == e.Filename {
		prev.Filename = ""
	}
	if prev.User == e.User {
		prev.User = ""
	}
	if prev.Kind == e.Kind {
		prev.Kind = Other
	}
	if e.Kind == Other {
		e.Kind = prev.Kind
		prev.Kind = Other
	}
	return e
}

// Path is a distinguishing string type for E, naming a file or folder path.
type Path string

// User is a distinguishing string type for E, naming an acting user.
type User string

func pad(b *bytes.Buffer, str string) {
	if b.Len() == 0 {
		return
	}
	b.WriteString(str)
}

func (e *Error) Error() string {
	b := new(bytes.Buffer)
	if e.Filename != "" {
		b.WriteString(e.Filename)
	}
	if e.User != "" {
		pad(b, ", ")
		b.WriteString("user ")
		b.WriteString(e.User)
	}
	if e.Op != "" {
		pad(b, ": ")
		b.WriteString(e.Op)
	}
	if e.Kind != Other {
		pad(b, ": ")
		b.WriteString(e.Kind.String())
	}
	if e.Err != nil {
		if prevErr, ok := e.Err.(*Error); ok {
			if *prevErr != zeroErr {
				pad(b, Separator)
				b.WriteString(e.Err.Error())
			}
		} else {
			pad(b, ": ")
			b.WriteString(e.Err.Error())
		}
	}
	if b.Len() == 0 {
		return "no error"
	}
	return b.String()
}

// Is reports whether err is an *Error of the given Kind, walking the Err
// chain. Callers test for a specific condition with this rather than
// comparing message strings.
func Is(kind Kind, err error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	if e.Kind == kind {
		return true
	}
	if e.Err != nil {
		return Is(kind, e.Err)
	}
	return false
}

// KindOf returns the Kind of err: the Kind of the outermost *Error in the
// chain whose Kind is not Other. It returns Other if err is nil or carries
// no Kind.
func KindOf(err error) Kind {
	e, ok := err.(*Error)
	if !ok || e == nil {
		return Other
	}
	if e.Kind != Other {
		return e.Kind
	}
	if e.Err != nil {
		return KindOf(e.Err)
	}
	return Other
}

// Str returns an error that formats as the given text, for use as the
// error-typed argument to E.
func Str(text string) error {
	return &errorString{text}
}

type errorString struct{ s string }

func (e *errorString) Error() string { return e.s }

// Errorf is equivalent to fmt.Errorf but returns a value usable directly
// as the error-typed argument to E, so callers need import only this
// package for all error handling.
func Errorf(format string, args ...interface{}) error {
	return &errorString{fmt.Sprintf(format, args...)}
}

// Match reports whether err1, treated as a sparse pattern, matches err2.
// Every field set to a non-zero value on err1 must equal the corresponding
// field on err2; fields left zero on err1 are wildcards. This lets tests
// assert "some error of this Kind, about this file" (err1) against the
// actual error returned by the code under test (err2) without pinning
// every field.
func Match(err1, err2 error) bool {
	e1, ok := err1.(*Error)
	if !ok {
		return false
	}
	e2, ok := err2.(*Error)
	if !ok {
		return false
	}
	if e1.Filename != "" && e1.Filename != e2.Filename {
		return false
	}
	if e1.User != "" && e1.User != e2.User {
		return false
	}
	if e1.Op != "" && e1.Op != e2.Op {
		return false
	}
	if e1.Kind != Other && e1.Kind != e2.Kind {
		return false
	}
	if e1.Err != nil {
		if e2.Err == nil {
			return false
		}
		if ee1, ok := e1.Err.(*Error); ok {
			return Match(ee1, e2.Err)
		}
		return e1.Err.Error() == e2.Err.Error()
	}
	return true
}
