package errors

import (
	"io"
	"testing"
)

func TestSeparator(t *testing.T) {
	defer func(prev string) {
		Separator = prev
	}(Separator)
	Separator = ":: "

	e1 := E(Op("Read"), FileNotFound, Str("no such file"))
	e2 := E(Op("Write"), Path("notes.txt"), User("alice"), e1)

	// The inner FileNotFound is promoted to the outer error, leaving the
	// nested record with only its op and cause.
	want := "notes.txt, user alice: Write: file not found:: Read: no such file"
	if e2.Error() != want {
		t.Errorf("got %q; want %q", e2.Error(), want)
	}
}

func TestDoesNotChangePreviousError(t *testing.T) {
	err := E(PermissionDenied)
	err2 := E(Op("caller"), err)

	want := "caller: permission denied"
	if err2.Error() != want {
		t.Fatalf("got %q; want %q", err2.Error(), want)
	}
	if kind := err.(*Error).Kind; kind != PermissionDenied {
		t.Fatalf("got kind %v; want %v", kind, PermissionDenied)
	}
}

func TestNilArgs(t *testing.T) {
	if E() != nil {
		t.Fatal("E() should return nil")
	}
}

func TestCodeRoundTrip(t *testing.T) {
	for k := Other; k <= FileEmpty; k++ {
		code := k.Code()
		got, ok := KindFromCode(code)
		if !ok {
			t.Errorf("KindFromCode(%d) not ok", code)
			continue
		}
		if got != k {
			t.Errorf("KindFromCode(%d) = %v; want %v", code, got, k)
		}
	}
	if SentenceLocked.Code() < 101 || UndoNotAvailable.Code() > 124 {
		t.Errorf("concurrency kinds drifted outside the 101-124 wire range")
	}
}

type matchTest struct {
	err1, err2 error
	matched    bool
}

var matchTests = []matchTest{
	{nil, nil, false},
	{io.EOF, io.EOF, false},
	{E(io.EOF), io.EOF, false},
	{E(io.EOF), E(io.EOF), true},
	{E(Op("op"), FileNotFound, io.EOF, User("jane"), Path("x")), E(Op("op"), FileNotFound, io.EOF, User("jane"), Path("x")), true},
	{E(Op("op"), FileNotFound, io.EOF, User("jane")), E(Op("op"), FileNotFound, io.EOF, User("jane"), Path("x")), true},
	{E(Op("op")), E(Op("op"), FileNotFound, io.EOF, User("jane"), Path("x")), true},
	{E(io.EOF), E(io.ErrClosedPipe), false},
	{E(Op("op1")), E(Op("op2")), false},
	{E(InvalidCommand), E(PermissionDenied), false},
	{E(User("jane")), E(User("john")), false},
	{E(Path("x")), E(Path("y")), false},
	{E(Path("x"), Str("something")), E(Path("x")), false},
	{E(Op("op1"), E(Path("x"))), E(Op("op1"), User("john"), E(Op("op2"), User("jane"), Path("x"))), true},
	{E(Op("op1"), Path("x")), E(Op("op1"), User("john"), E(Op("op2"), User("jane"), Path("x"))), false},
}

func TestMatch(t *testing.T) {
	for i, test := range matchTests {
		if got := Match(test.err1, test.err2); got != test.matched {
			t.Errorf("case %d: Match(%v, %v) = %v; want %v", i, test.err1, test.err2, got, test.matched)
		}
	}
}

type kindTest struct {
	err  error
	kind Kind
	want bool
}

var kindTests = []kindTest{
	{nil, FileNotFound, false},
	{Str("not an *Error"), FileNotFound, false},
	{E(FileNotFound), FileNotFound, true},
	{E(FileExists), FileNotFound, false},
	{E(Op("nesting"), E(FileNotFound)), FileNotFound, true},
	{E(Op("nesting"), E(FileExists)), FileNotFound, false},
}

func TestKind(t *testing.T) {
	for _, test := range kindTests {
		if got := Is(test.kind, test.err); got != test.want {
			t.Errorf("Is(%v, %v) = %v; want %v", test.kind, test.err, got, test.want)
		}
	}
}

func TestKindOf(t *testing.T) {
	inner := E(SentenceLocked)
	outer := E(Op("lock_sentence"), inner)
	if got := KindOf(outer); got != SentenceLocked {
		t.Errorf("KindOf(outer) = %v; want %v", got, SentenceLocked)
	}
	if got := KindOf(Str("plain")); got != Other {
		t.Errorf("KindOf(plain) = %v; want Other", got)
	}
}
