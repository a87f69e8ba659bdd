package wire_test

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"scribe.io/errors"
	"scribe.io/internal/wire"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := wire.Header{
		MsgType:       wire.MsgRequest,
		OpCode:        wire.OpWrite,
		Username:      "ada",
		Filename:      "notes.txt",
		Foldername:    "projects/scribe",
		CheckpointTag: "v1",
		DataLength:    4,
		ErrorCode:     0,
		SentenceIndex: 2,
		WordIndex:     5,
		Flags:         wire.FlagAll | wire.FlagLong,
	}
	b, err := h.Marshal()
	if err != nil {
		t.Fatal(err)
	}

	got, err := wire.Unmarshal(b)
	if err != nil {
		t.Fatal(err)
	}
	if got != h {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, h)
	}
}

func TestPutFixedRejectsOversizedField(t *testing.T) {
	h := wire.Header{Username: strings.Repeat("x", wire.UsernameSize+1)}
	if _, err := h.Marshal(); err == nil {
		t.Fatal("expected error for oversized username field")
	}
}

func TestUnmarshalRejectsWrongLength(t *testing.T) {
	_, err := wire.Unmarshal([]byte{1, 2, 3})
	if !errors.Is(errors.NetworkError, err) {
		t.Fatalf("got %v, want Kind NetworkError", err)
	}
}

type buf struct {
	bytes.Buffer
}

func TestConnWriteFrameReadFrame(t *testing.T) {
	var b buf
	c := wire.NewConn(&b)

	h := wire.Header{MsgType: wire.MsgRequest, OpCode: wire.OpRead, Username: "grace", Filename: "log.txt"}
	payload := []byte("hello world")
	if err := c.WriteFrame(h, payload); err != nil {
		t.Fatal(err)
	}

	gotH, gotPayload, err := c.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	if gotH.Username != "grace" || gotH.Filename != "log.txt" || gotH.OpCode != wire.OpRead {
		t.Errorf("header mismatch: %+v", gotH)
	}
	if string(gotPayload) != "hello world" {
		t.Errorf("payload = %q, want %q", gotPayload, "hello world")
	}
	if gotH.DataLength != uint32(len(payload)) {
		t.Errorf("DataLength = %d, want %d", gotH.DataLength, len(payload))
	}
}

func TestConnReadFrameNoPayload(t *testing.T) {
	var b buf
	c := wire.NewConn(&b)

	h := wire.Header{MsgType: wire.MsgAck, OpCode: wire.OpHeartbeat}
	if err := c.WriteFrame(h, nil); err != nil {
		t.Fatal(err)
	}
	gotH, gotPayload, err := c.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	if gotPayload != nil {
		t.Errorf("expected nil payload, got %v", gotPayload)
	}
	if gotH.MsgType != wire.MsgAck {
		t.Errorf("MsgType = %v, want MsgAck", gotH.MsgType)
	}
}

// shortReader returns fewer bytes than requested then EOF, simulating a
// connection closed mid-frame.
type shortReader struct {
	data []byte
	read bool
}

func (s *shortReader) Read(p []byte) (int, error) {
	if s.read {
		return 0, io.EOF
	}
	s.read = true
	n := copy(p, s.data)
	return n, nil
}

func (s *shortReader) Write(p []byte) (int, error) { return len(p), nil }

func TestReadFrameShortHeaderIsNetworkError(t *testing.T) {
	c := wire.NewConn(&shortReader{data: []byte{1, 2, 3}})
	_, _, err := c.ReadFrame()
	if !errors.Is(errors.NetworkError, err) {
		t.Fatalf("got %v, want Kind NetworkError", err)
	}
}

func TestOpCodeRangesMatchProtocolLayout(t *testing.T) {
	for _, op := range []wire.OpCode{wire.OpView, wire.OpViewRequests} {
		if op < 10 || op > 29 {
			t.Errorf("client op %v out of range [10,29]", op)
		}
	}
	for _, op := range []wire.OpCode{wire.OpApprove, wire.OpDisconnect} {
		if op < 35 || op > 38 {
			t.Errorf("client op %v out of range [35,38]", op)
		}
	}
	for _, op := range []wire.OpCode{wire.OpRegisterSS, wire.OpSyncRequest} {
		if op < 30 || op > 33 {
			t.Errorf("control op %v out of range [30,33]", op)
		}
	}
	for _, op := range []wire.OpCode{wire.OpSSCreate, wire.OpSSCheckpointOp} {
		if op < 40 || op > 51 {
			t.Errorf("ss-internal op %v out of range [40,51]", op)
		}
	}
}
