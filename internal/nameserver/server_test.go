package nameserver

import (
	"net"
	"strconv"
	"testing"

	"scribe.io/errors"
	"scribe.io/internal/config"
	"scribe.io/internal/wire"
)

func newTestServer() *Server {
	return &Server{Registry: newTestRegistry(), Tuning: config.Default()}
}

func TestDispatchConnectClientRejectsDuplicate(t *testing.T) {
	s := newTestServer()
	h := wire.Header{OpCode: wire.OpConnectClient, Username: "alice"}
	resp, _ := s.dispatch(h, nil)
	if resp.MsgType != wire.MsgAck {
		t.Fatalf("first connect should ack, got %v", resp.MsgType)
	}
	resp, _ = s.dispatch(h, nil)
	if resp.MsgType != wire.MsgError || resp.ErrorCode != int32(errors.UsernameTaken.Code()) {
		t.Fatalf("second connect should be UsernameTaken, got %+v", resp)
	}
}

func TestDispatchUnknownOpIsInvalidCommand(t *testing.T) {
	s := newTestServer()
	resp, _ := s.dispatch(wire.Header{OpCode: 99}, nil)
	if resp.MsgType != wire.MsgError || resp.ErrorCode != int32(errors.InvalidCommand.Code()) {
		t.Fatalf("got %+v, want InvalidCommand", resp)
	}
}

func TestDispatchCreateFolderAndViewFolder(t *testing.T) {
	s := newTestServer()
	resp, _ := s.dispatch(wire.Header{OpCode: wire.OpCreateFolder, Username: "alice", Foldername: "/", Filename: "projects"}, nil)
	if resp.MsgType != wire.MsgAck {
		t.Fatalf("createfolder failed: %+v", resp)
	}
	resp, body := s.dispatch(wire.Header{OpCode: wire.OpViewFolder, Username: "alice", Foldername: "/"}, nil)
	if resp.MsgType != wire.MsgAck {
		t.Fatalf("viewfolder failed: %+v", resp)
	}
	if string(body) != "/projects/\n" {
		t.Errorf("body = %q", body)
	}
}

func TestDispatchAddAccessRequiresOwner(t *testing.T) {
	s := newTestServer()
	s.Registry.RegisterFile("notes.txt", "/", "alice", 1)

	resp, _ := s.dispatch(wire.Header{
		OpCode: wire.OpAddAccess, Username: "mallory", Foldername: "/", Filename: "notes.txt",
		CheckpointTag: "carol", Flags: wire.FlagRead,
	}, nil)
	if resp.MsgType != wire.MsgError || resp.ErrorCode != int32(errors.NotOwner.Code()) {
		t.Fatalf("got %+v, want NotOwner", resp)
	}

	resp, _ = s.dispatch(wire.Header{
		OpCode: wire.OpAddAccess, Username: "alice", Foldername: "/", Filename: "notes.txt",
		CheckpointTag: "carol", Flags: wire.FlagRead,
	}, nil)
	if resp.MsgType != wire.MsgAck {
		t.Fatalf("owner addaccess should succeed: %+v", resp)
	}
	if err := s.Registry.CheckPermission("/", "notes.txt", "carol", false); err != nil {
		t.Errorf("carol should now have read access: %v", err)
	}
}

func TestDispatchRequestAccessFlow(t *testing.T) {
	s := newTestServer()
	s.Registry.RegisterFile("notes.txt", "/", "alice", 1)

	resp, _ := s.dispatch(wire.Header{
		OpCode: wire.OpRequestAccess, Username: "dave", Foldername: "/", Filename: "notes.txt",
		Flags: wire.FlagRead | wire.FlagWrite,
	}, nil)
	if resp.MsgType != wire.MsgAck {
		t.Fatalf("requestaccess should succeed: %+v", resp)
	}

	resp, body := s.dispatch(wire.Header{OpCode: wire.OpViewRequests, Username: "alice"}, nil)
	if resp.MsgType != wire.MsgAck || len(body) == 0 {
		t.Fatalf("viewrequests should list pending request: %+v %q", resp, body)
	}

	resp, _ = s.dispatch(wire.Header{
		OpCode: wire.OpApprove, Username: "alice", Filename: "notes.txt", CheckpointTag: "dave",
	}, nil)
	if resp.MsgType != wire.MsgAck {
		t.Fatalf("approve should succeed: %+v", resp)
	}
	if err := s.Registry.CheckPermission("/", "notes.txt", "dave", true); err != nil {
		t.Errorf("dave should have write access after approval: %v", err)
	}
}

// startFakeSS runs a minimal storage-server stand-in that ACKs every
// request it receives, so nameserver forwarding logic (CREATE/DELETE/
// routing) can be exercised without the real storageserver package.
func startFakeSS(t *testing.T) (addr string, port int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				c := wire.NewConn(conn)
				for {
					h, _, err := c.ReadFrame()
					if err != nil {
						return
					}
					resp := h
					resp.MsgType = wire.MsgAck
					if err := c.WriteFrame(resp, nil); err != nil {
						return
					}
				}
			}()
		}
	}()
	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	p, _ := strconv.Atoi(portStr)
	return host, p
}

func TestDispatchCreateForwardsToSSAndRegisters(t *testing.T) {
	s := newTestServer()
	ip, port := startFakeSS(t)
	if _, err := s.Registry.RegisterStorageServer(1, ip, 0, port); err != nil {
		t.Fatal(err)
	}

	resp, _ := s.dispatch(wire.Header{OpCode: wire.OpCreate, Username: "alice", Foldername: "/", Filename: "notes.txt"}, nil)
	if resp.MsgType != wire.MsgAck {
		t.Fatalf("create should succeed, got %+v", resp)
	}
	fe, err := s.Registry.FindFile("/", "notes.txt")
	if err != nil {
		t.Fatal(err)
	}
	if fe.SSID != 1 {
		t.Errorf("SSID = %d, want 1", fe.SSID)
	}
}

func TestDispatchReadReturnsEndpoint(t *testing.T) {
	s := newTestServer()
	ip, port := startFakeSS(t)
	s.Registry.RegisterStorageServer(1, ip, 0, port)
	s.Registry.RegisterFile("notes.txt", "/", "alice", 1)

	resp, body := s.dispatch(wire.Header{OpCode: wire.OpRead, Username: "alice", Foldername: "/", Filename: "notes.txt"}, nil)
	if resp.MsgType != wire.MsgAck {
		t.Fatalf("read should succeed, got %+v", resp)
	}
	want := ip + ":" + strconv.Itoa(port)
	if string(body) != want {
		t.Errorf("body = %q, want %q", body, want)
	}
}

func TestDispatchReadDeniedWithoutAccess(t *testing.T) {
	s := newTestServer()
	s.Registry.RegisterFile("notes.txt", "/", "alice", 1)
	resp, _ := s.dispatch(wire.Header{OpCode: wire.OpRead, Username: "carol", Foldername: "/", Filename: "notes.txt"}, nil)
	if resp.MsgType != wire.MsgError || resp.ErrorCode != int32(errors.PermissionDenied.Code()) {
		t.Fatalf("got %+v, want PermissionDenied", resp)
	}
}
