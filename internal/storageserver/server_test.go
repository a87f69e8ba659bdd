package storageserver

import (
	"testing"

	"scribe.io/errors"
	"scribe.io/internal/config"
	"scribe.io/internal/wire"
)

func newTestServerSS(t *testing.T) *Server {
	t.Helper()
	return &Server{Store: NewStore(t.TempDir(), config.Default()), Tuning: config.Default()}
}

func TestDispatchCreateThenRead(t *testing.T) {
	s := newTestServerSS(t)
	resp, _ := s.dispatch(wire.Header{OpCode: wire.OpSSCreate, Username: "alice", Filename: "notes.txt"}, nil)
	if resp.MsgType != wire.MsgAck {
		t.Fatalf("create failed: %+v", resp)
	}
	resp, body := s.dispatch(wire.Header{OpCode: wire.OpSSRead, Filename: "notes.txt"}, nil)
	if resp.MsgType != wire.MsgAck || string(body) != "" {
		t.Fatalf("read = %+v %q, want ack/empty", resp, body)
	}
}

func TestDispatchWriteLockWriteWordUnlock(t *testing.T) {
	s := newTestServerSS(t)
	s.dispatch(wire.Header{OpCode: wire.OpSSCreate, Username: "alice", Filename: "notes.txt"}, nil)

	resp, _ := s.dispatch(wire.Header{OpCode: wire.OpSSWriteLock, Username: "alice", Filename: "notes.txt", SentenceIndex: 0}, nil)
	if resp.MsgType != wire.MsgAck {
		t.Fatalf("write_lock failed: %+v", resp)
	}
	resp, _ = s.dispatch(wire.Header{OpCode: wire.OpSSWriteWord, Username: "alice", Filename: "notes.txt", SentenceIndex: 0, WordIndex: 0}, []byte("Hello"))
	if resp.MsgType != wire.MsgAck {
		t.Fatalf("write_word failed: %+v", resp)
	}
	resp, _ = s.dispatch(wire.Header{OpCode: wire.OpSSWriteUnlock, Username: "alice", Filename: "notes.txt", SentenceIndex: 0}, nil)
	if resp.MsgType != wire.MsgAck {
		t.Fatalf("write_unlock failed: %+v", resp)
	}

	_, body := s.dispatch(wire.Header{OpCode: wire.OpSSRead, Filename: "notes.txt"}, nil)
	if string(body) != "Hello" {
		t.Errorf("body = %q, want %q", body, "Hello")
	}
}

func TestDispatchWriteWordWithoutLockDenied(t *testing.T) {
	s := newTestServerSS(t)
	s.dispatch(wire.Header{OpCode: wire.OpSSCreate, Username: "alice", Filename: "notes.txt"}, nil)
	resp, _ := s.dispatch(wire.Header{OpCode: wire.OpSSWriteWord, Username: "alice", Filename: "notes.txt"}, []byte("Hi"))
	if resp.MsgType != wire.MsgError || resp.ErrorCode != int32(errors.PermissionDenied.Code()) {
		t.Fatalf("got %+v, want PermissionDenied", resp)
	}
}

func TestDispatchEtirw(t *testing.T) {
	s := newTestServerSS(t)
	s.dispatch(wire.Header{OpCode: wire.OpSSCreate, Username: "alice", Filename: "notes.txt"}, nil)
	resp, _ := s.dispatch(wire.Header{OpCode: wire.OpSSEtirw, Username: "alice", Filename: "notes.txt"}, []byte("Hi"))
	if resp.MsgType != wire.MsgAck {
		t.Fatalf("etirw failed: %+v", resp)
	}
	if s.Store.Locks.Len() != 0 {
		t.Errorf("locks should be released after ETIRW, got %d", s.Store.Locks.Len())
	}
}

func TestDispatchUndo(t *testing.T) {
	s := newTestServerSS(t)
	s.dispatch(wire.Header{OpCode: wire.OpSSCreate, Username: "alice", Filename: "notes.txt"}, nil)
	s.dispatch(wire.Header{OpCode: wire.OpSSEtirw, Username: "alice", Filename: "notes.txt"}, []byte("Hi"))
	resp, _ := s.dispatch(wire.Header{OpCode: wire.OpSSUndo, Username: "alice", Filename: "notes.txt"}, nil)
	if resp.MsgType != wire.MsgAck {
		t.Fatalf("undo failed: %+v", resp)
	}
	_, body := s.dispatch(wire.Header{OpCode: wire.OpSSRead, Filename: "notes.txt"}, nil)
	if string(body) != "" {
		t.Errorf("body after undo = %q, want empty", body)
	}
}

func TestDispatchInfoReportsCounts(t *testing.T) {
	s := newTestServerSS(t)
	s.dispatch(wire.Header{OpCode: wire.OpSSCreate, Username: "alice", Filename: "notes.txt"}, nil)
	s.dispatch(wire.Header{OpCode: wire.OpSSEtirw, Username: "alice", Filename: "notes.txt"}, []byte("Hi"))
	resp, body := s.dispatch(wire.Header{OpCode: wire.OpSSInfo, Filename: "notes.txt"}, nil)
	if resp.MsgType != wire.MsgAck {
		t.Fatalf("info failed: %+v", resp)
	}
	if string(body) != "2 1 2" {
		t.Errorf("body = %q, want %q", body, "2 1 2")
	}
}

func TestDispatchCheckpointFamily(t *testing.T) {
	s := newTestServerSS(t)
	s.dispatch(wire.Header{OpCode: wire.OpSSCreate, Username: "alice", Filename: "notes.txt"}, nil)
	s.dispatch(wire.Header{OpCode: wire.OpSSEtirw, Username: "alice", Filename: "notes.txt"}, []byte("Hi"))

	resp, _ := s.dispatch(wire.Header{OpCode: wire.OpSSCheckpointOp, Filename: "notes.txt", CheckpointTag: "v1", Flags: uint8(wire.CheckpointCreate)}, nil)
	if resp.MsgType != wire.MsgAck {
		t.Fatalf("checkpoint create failed: %+v", resp)
	}

	s.dispatch(wire.Header{OpCode: wire.OpSSEtirw, Username: "alice", Filename: "notes.txt", WordIndex: 0}, []byte("Bye"))

	resp, body := s.dispatch(wire.Header{OpCode: wire.OpSSCheckpointOp, Filename: "notes.txt", CheckpointTag: "v1", Flags: uint8(wire.CheckpointView)}, nil)
	if resp.MsgType != wire.MsgAck || string(body) != "Hi" {
		t.Fatalf("checkpoint view = %+v %q, want ack/%q", resp, body, "Hi")
	}

	resp, _ = s.dispatch(wire.Header{OpCode: wire.OpSSCheckpointOp, Filename: "notes.txt", CheckpointTag: "v1", Flags: uint8(wire.CheckpointRevert)}, nil)
	if resp.MsgType != wire.MsgAck {
		t.Fatalf("checkpoint revert failed: %+v", resp)
	}
	_, body = s.dispatch(wire.Header{OpCode: wire.OpSSRead, Filename: "notes.txt"}, nil)
	if string(body) != "Hi" {
		t.Errorf("body after revert = %q, want %q", body, "Hi")
	}

	resp, body = s.dispatch(wire.Header{OpCode: wire.OpSSCheckpointOp, Filename: "notes.txt", Flags: uint8(wire.CheckpointList)}, nil)
	if resp.MsgType != wire.MsgAck || string(body) != "v1" {
		t.Fatalf("checkpoint list = %+v %q, want ack/%q", resp, body, "v1")
	}
}

func TestDispatchSyncRequestReturnsDigest(t *testing.T) {
	s := newTestServerSS(t)
	s.dispatch(wire.Header{OpCode: wire.OpSSCreate, Username: "alice", Filename: "notes.txt"}, nil)
	resp, body := s.dispatch(wire.Header{OpCode: wire.OpSyncRequest}, nil)
	if resp.MsgType != wire.MsgAck {
		t.Fatalf("sync request failed: %+v", resp)
	}
	if len(body) == 0 {
		t.Errorf("digest body is empty")
	}
}
