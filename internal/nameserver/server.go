package nameserver

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"scribe.io/errors"
	"scribe.io/internal/access"
	"scribe.io/internal/config"
	"scribe.io/internal/pathutil"
	"scribe.io/internal/wire"
	"scribe.io/log"
)

// Server is the name server process: one accept loop with a dedicated
// handler goroutine per connection, plus the background heartbeat
// monitor. Listening and per-connection dispatch are kept separate.
type Server struct {
	Registry *Registry
	Tuning   config.Tuning

	// ExecAllowed gates the EXEC operation. Empty (the default)
	// disables EXEC entirely.
	ExecAllowed []string

	ln net.Listener
}

// Run accepts connections on addr until ctx is canceled, supervising the
// accept loop and the heartbeat monitor together with an errgroup so
// either's unexpected exit brings down the other.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.ln = ln

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.acceptLoop(ctx) })
	g.Go(func() error { return s.heartbeatMonitor(ctx) })

	<-ctx.Done()
	ln.Close()
	return g.Wait()
}

func (s *Server) acceptLoop(ctx context.Context) error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go s.handleConn(conn)
	}
}

func (s *Server) heartbeatMonitor(ctx context.Context) error {
	ticker := time.NewTicker(s.Tuning.HeartbeatCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, id := range s.Registry.MonitorHeartbeats(s.Tuning.HeartbeatTimeout) {
				log.Info.Printf("storage server %d marked inactive (missed heartbeat)", id)
			}
		}
	}
}

// handleConn is the per-connection dispatcher.
// Requests on one connection are served strictly in order; the username
// bound by CONNECT_CLIENT is remembered so DISCONNECT (or an abrupt
// close) can mark the session gone.
func (s *Server) handleConn(raw net.Conn) {
	defer raw.Close()
	conn := wire.NewConn(raw)
	var username string

	for {
		h, payload, err := conn.ReadFrame()
		if err != nil {
			if username != "" {
				s.Registry.DisconnectClient(username)
			}
			return
		}
		if h.MsgType == wire.MsgStop {
			if username != "" {
				s.Registry.DisconnectClient(username)
			}
			return
		}
		if h.Username != "" {
			username = h.Username
		}
		resp, body := s.dispatch(h, payload)
		if err := conn.WriteFrame(resp, body); err != nil {
			return
		}
	}
}

func errorReply(h wire.Header, err error) wire.Header {
	h.MsgType = wire.MsgError
	h.ErrorCode = int32(errors.KindOf(err).Code())
	return h
}

func ackReply(h wire.Header) wire.Header {
	h.MsgType = wire.MsgAck
	h.ErrorCode = 0
	return h
}

// dispatch is the op_code switch. OpCode is the sum
// type; the default branch is the single InvalidCommand fallback.
func (s *Server) dispatch(h wire.Header, payload []byte) (wire.Header, []byte) {
	switch h.OpCode {
	case wire.OpRegisterSS:
		return s.doRegisterSS(h, payload)
	case wire.OpConnectClient:
		return s.doConnectClient(h)
	case wire.OpHeartbeat:
		return s.doHeartbeat(h)
	case wire.OpView:
		return s.doView(h)
	case wire.OpList:
		return s.doList(h)
	case wire.OpCreate:
		return s.doCreate(h)
	case wire.OpDelete:
		return s.doDelete(h)
	case wire.OpRead, wire.OpWrite, wire.OpStream, wire.OpUndo:
		return s.doRoute(h, h.OpCode == wire.OpWrite || h.OpCode == wire.OpUndo)
	case wire.OpInfo:
		return s.doInfo(h)
	case wire.OpAddAccess:
		return s.doAddAccess(h)
	case wire.OpRemAccess:
		return s.doRemAccess(h)
	case wire.OpCreateFolder:
		return s.doCreateFolder(h)
	case wire.OpMove:
		return s.doMove(h)
	case wire.OpViewFolder:
		return s.doViewFolder(h)
	case wire.OpCheckpoint, wire.OpViewCheckpoint, wire.OpRevert, wire.OpListCheckpoints:
		return s.doCheckpointOp(h)
	case wire.OpRequestAccess:
		return s.doRequestAccess(h)
	case wire.OpViewRequests:
		return s.doViewRequests(h)
	case wire.OpApprove:
		return s.doApprove(h)
	case wire.OpDeny:
		return s.doDeny(h)
	case wire.OpExec:
		return s.doExec(h)
	case wire.OpDisconnect:
		s.Registry.DisconnectClient(h.Username)
		return ackReply(h), nil
	default:
		return errorReply(h, errors.E(errors.Op("dispatch"), errors.InvalidCommand)), nil
	}
}

func (s *Server) doRegisterSS(h wire.Header, payload []byte) (wire.Header, []byte) {
	fields := strings.Fields(string(payload))
	if len(fields) < 3 {
		return errorReply(h, errors.E(errors.Op("REGISTER_SS"), errors.InvalidCommand)), nil
	}
	id, err1 := strconv.Atoi(fields[0])
	nmPort, err2 := strconv.Atoi(fields[1])
	clientPort, err3 := strconv.Atoi(fields[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return errorReply(h, errors.E(errors.Op("REGISTER_SS"), errors.InvalidCommand)), nil
	}
	ip := "0.0.0.0"
	if len(fields) > 3 {
		ip = fields[3]
	}
	entry, err := s.Registry.RegisterStorageServer(id, ip, nmPort, clientPort)
	if err != nil {
		return errorReply(h, err), nil
	}
	if peer, perr := s.Registry.RouteStorageServer(entry.ReplicaID); perr == nil && peer.ServerID != entry.ServerID {
		return ackReply(h), []byte(fmt.Sprintf("SYNC %s %d", peer.IP, peer.ClientPort))
	}
	return ackReply(h), nil
}

func (s *Server) doConnectClient(h wire.Header) (wire.Header, []byte) {
	sid, err := s.Registry.ConnectClient(h.Username)
	if err != nil {
		return errorReply(h, err), nil
	}
	log.Info.Printf("session %s: %s connected", sid, h.Username)
	return ackReply(h), []byte(sid)
}

func (s *Server) doHeartbeat(h wire.Header) (wire.Header, []byte) {
	id, _ := strconv.Atoi(strings.TrimSpace(h.Username))
	replica, _, err := s.Registry.Heartbeat(id)
	if err != nil {
		return errorReply(h, err), nil
	}
	if replica != nil {
		return ackReply(h), []byte(fmt.Sprintf("REPLICA %s %d", replica.IP, replica.ClientPort))
	}
	return ackReply(h), nil
}

func (s *Server) doView(h wire.Header) (wire.Header, []byte) {
	all := h.Flags&wire.FlagAll != 0
	files := s.Registry.FilesVisibleTo(h.Username, all)
	if h.Flags&wire.FlagLong != 0 {
		for _, f := range files {
			s.refreshCounts(f.FolderPath, f.Filename)
		}
		files = s.Registry.FilesVisibleTo(h.Username, all)
	}
	var b strings.Builder
	for _, f := range files {
		fmt.Fprintf(&b, "%s\n", pathutil.Key(f.FolderPath, f.Filename))
	}
	if b.Len() == 0 {
		return ackReply(h), []byte("(no files)\n")
	}
	return ackReply(h), []byte(b.String())
}

// refreshCounts queries the file's home SS for live counts over a new
// connection. The registry mutex is never held across network I/O to
// a storage server.
func (s *Server) refreshCounts(folderPath, filename string) {
	fe, err := s.Registry.FindFile(folderPath, filename)
	if err != nil {
		return
	}
	entry, err := s.Registry.RouteStorageServer(fe.SSID)
	if err != nil {
		return
	}
	raw, err := net.DialTimeout("tcp", net.JoinHostPort(entry.IP, strconv.Itoa(entry.ClientPort)), 2*time.Second)
	if err != nil {
		return
	}
	defer raw.Close()
	c := wire.NewConn(raw)
	req := wire.Header{MsgType: wire.MsgRequest, OpCode: wire.OpSSInfo, Filename: filename}
	if err := c.WriteFrame(req, nil); err != nil {
		return
	}
	resp, body, err := c.ReadFrame()
	if err != nil || resp.MsgType != wire.MsgAck {
		return
	}
	fields := strings.Fields(string(body))
	if len(fields) < 3 {
		return
	}
	size, _ := strconv.Atoi(fields[0])
	words, _ := strconv.Atoi(fields[1])
	chars, _ := strconv.Atoi(fields[2])
	s.Registry.UpdateCachedCounts(folderPath, filename, size, words, chars)
}

func (s *Server) doList(h wire.Header) (wire.Header, []byte) {
	clients := s.Registry.ListClients()
	return ackReply(h), []byte(strings.Join(clients, "\n"))
}

const (
	reservedMeta       = ".meta"
	reservedUndo       = ".undo"
	reservedStats      = ".stats"
	reservedCheckpoint = ".checkpoint."
)

func validCreateName(filename string) error {
	if strings.HasSuffix(filename, reservedMeta) || strings.HasSuffix(filename, reservedUndo) ||
		strings.HasSuffix(filename, reservedStats) || strings.Contains(filename, reservedCheckpoint) {
		return errors.E(errors.Op("CREATE"), errors.Path(filename), errors.InvalidFilename)
	}
	return nil
}

func (s *Server) doCreate(h wire.Header) (wire.Header, []byte) {
	if err := validCreateName(h.Filename); err != nil {
		return errorReply(h, err), nil
	}
	ssID, ok := s.Registry.NextStorageServer()
	if !ok {
		return errorReply(h, errors.E(errors.Op("CREATE"), errors.SSUnavailable)), nil
	}
	ss, err := s.Registry.RouteStorageServer(ssID)
	if err != nil {
		return errorReply(h, err), nil
	}
	if err := forwardSS(ss, wire.OpSSCreate, h.Username, h.Foldername, h.Filename, nil); err != nil {
		return errorReply(h, err), nil
	}
	if _, err := s.Registry.RegisterFile(h.Filename, h.Foldername, h.Username, ssID); err != nil {
		return errorReply(h, err), nil
	}
	return ackReply(h), nil
}

func (s *Server) doDelete(h wire.Header) (wire.Header, []byte) {
	fe, err := s.Registry.FindFile(h.Foldername, h.Filename)
	if err != nil {
		return errorReply(h, err), nil
	}
	if fe.Owner != h.Username {
		return errorReply(h, errors.E(errors.Op("DELETE"), errors.User(h.Username), errors.NotOwner)), nil
	}
	ss, err := s.Registry.RouteStorageServer(fe.SSID)
	if err != nil {
		return errorReply(h, err), nil
	}
	if err := forwardSS(ss, wire.OpSSDelete, h.Username, h.Foldername, h.Filename, nil); err != nil {
		return errorReply(h, err), nil
	}
	if err := s.Registry.DeleteFile(h.Foldername, h.Filename); err != nil {
		return errorReply(h, err), nil
	}
	return ackReply(h), nil
}

// doRoute implements the READ/WRITE/STREAM/UNDO routing contract:
// permission check, then resolve (with failover) the responsible SS and
// hand the client its "<ip>:<port>" endpoint to connect to directly.
func (s *Server) doRoute(h wire.Header, needWrite bool) (wire.Header, []byte) {
	if err := s.Registry.CheckPermission(h.Foldername, h.Filename, h.Username, needWrite); err != nil {
		return errorReply(h, err), nil
	}
	fe, err := s.Registry.FindFile(h.Foldername, h.Filename)
	if err != nil {
		return errorReply(h, err), nil
	}
	ss, err := s.Registry.RouteStorageServer(fe.SSID)
	if err != nil {
		return errorReply(h, err), nil
	}
	return ackReply(h), []byte(fmt.Sprintf("%s:%d", ss.IP, ss.ClientPort))
}

// doCheckpointOp implements the CHECKPOINT/VIEWCHECKPOINT/REVERT/
// LISTCHECKPOINTS family: unlike READ/WRITE, the NM itself relays the
// request to the home SS and returns its reply, rather than handing the
// client an endpoint.
// CHECKPOINT and REVERT require write access; the other two only read.
func (s *Server) doCheckpointOp(h wire.Header) (wire.Header, []byte) {
	needWrite := h.OpCode == wire.OpCheckpoint || h.OpCode == wire.OpRevert
	if err := s.Registry.CheckPermission(h.Foldername, h.Filename, h.Username, needWrite); err != nil {
		return errorReply(h, err), nil
	}
	fe, err := s.Registry.FindFile(h.Foldername, h.Filename)
	if err != nil {
		return errorReply(h, err), nil
	}
	ss, err := s.Registry.RouteStorageServer(fe.SSID)
	if err != nil {
		return errorReply(h, err), nil
	}
	var ssOp wire.OpCode
	var sub wire.CheckpointSub
	switch h.OpCode {
	case wire.OpCheckpoint:
		ssOp, sub = wire.OpSSCheckpointOp, wire.CheckpointCreate
	case wire.OpViewCheckpoint:
		ssOp, sub = wire.OpSSCheckpointOp, wire.CheckpointView
	case wire.OpRevert:
		ssOp, sub = wire.OpSSCheckpointOp, wire.CheckpointRevert
	case wire.OpListCheckpoints:
		ssOp, sub = wire.OpSSCheckpointOp, wire.CheckpointList
	}
	_, body, err := relaySSCheckpoint(ss, ssOp, sub, h.Username, h.Foldername, h.Filename, h.CheckpointTag)
	if err != nil {
		return errorReply(h, err), nil
	}
	return ackReply(h), body
}

func (s *Server) doInfo(h wire.Header) (wire.Header, []byte) {
	fe, err := s.Registry.FindFile(h.Foldername, h.Filename)
	if err != nil {
		return errorReply(h, err), nil
	}
	if err := access.Check(fe.ACL, h.Username, true, false); err != nil {
		return errorReply(h, err), nil
	}
	s.refreshCounts(h.Foldername, h.Filename)
	fe, _ = s.Registry.FindFile(h.Foldername, h.Filename)

	var b strings.Builder
	fmt.Fprintf(&b, "owner: %s\nsize: %d\nwords: %d\nchars: %d\n", fe.Owner, fe.Size, fe.Words, fe.Chars)
	b.WriteString("acl:\n")
	for _, e := range fe.ACL.Entries() {
		fmt.Fprintf(&b, "  %s r=%v w=%v\n", e.User, e.Read, e.Write)
	}
	return ackReply(h), []byte(b.String())
}

func (s *Server) doAddAccess(h wire.Header) (wire.Header, []byte) {
	fe, err := s.Registry.FindFile(h.Foldername, h.Filename)
	if err != nil {
		return errorReply(h, err), nil
	}
	if fe.Owner != h.Username {
		return errorReply(h, errors.E(errors.Op("ADDACCESS"), errors.User(h.Username), errors.NotOwner)), nil
	}
	grantee := h.CheckpointTag // reused field carrying the target username
	read := h.Flags&wire.FlagRead != 0
	write := h.Flags&wire.FlagWrite != 0
	if err := s.Registry.AddAccess(h.Foldername, h.Filename, grantee, read, write); err != nil {
		return errorReply(h, err), nil
	}
	return ackReply(h), nil
}

func (s *Server) doRemAccess(h wire.Header) (wire.Header, []byte) {
	fe, err := s.Registry.FindFile(h.Foldername, h.Filename)
	if err != nil {
		return errorReply(h, err), nil
	}
	if fe.Owner != h.Username {
		return errorReply(h, errors.E(errors.Op("REMACCESS"), errors.User(h.Username), errors.NotOwner)), nil
	}
	grantee := h.CheckpointTag
	if err := s.Registry.RemoveAccess(h.Foldername, h.Filename, grantee); err != nil {
		return errorReply(h, err), nil
	}
	return ackReply(h), nil
}

func (s *Server) doCreateFolder(h wire.Header) (wire.Header, []byte) {
	folderName := pathutil.Join(h.Foldername, h.Filename)
	if _, err := s.Registry.CreateFolder(folderName, h.Username); err != nil {
		return errorReply(h, err), nil
	}
	return ackReply(h), nil
}

func (s *Server) doMove(h wire.Header) (wire.Header, []byte) {
	fe, err := s.Registry.FindFile(h.Foldername, h.Filename)
	if err != nil {
		return errorReply(h, err), nil
	}
	newFolder := h.CheckpointTag // reused field carrying the destination folder
	ss, err := s.Registry.RouteStorageServer(fe.SSID)
	if err == nil {
		forwardSS(ss, wire.OpSSMove, h.Username, h.Foldername, h.Filename, []byte(newFolder))
	}
	if _, err := s.Registry.MoveFile(h.Foldername, h.Filename, newFolder); err != nil {
		return errorReply(h, err), nil
	}
	return ackReply(h), nil
}

func (s *Server) doViewFolder(h wire.Header) (wire.Header, []byte) {
	folders, files, err := s.Registry.ListFolderContents(h.Foldername, h.Username)
	if err != nil {
		return errorReply(h, err), nil
	}
	if len(folders) == 0 && len(files) == 0 {
		return ackReply(h), []byte("(empty folder)\n")
	}
	var b strings.Builder
	for _, f := range folders {
		fmt.Fprintf(&b, "%s/\n", f)
	}
	for _, f := range files {
		fmt.Fprintf(&b, "%s\n", f)
	}
	return ackReply(h), []byte(b.String())
}

func (s *Server) doRequestAccess(h wire.Header) (wire.Header, []byte) {
	fe, err := s.Registry.FindFile(h.Foldername, h.Filename)
	if err != nil {
		return errorReply(h, err), nil
	}
	read := h.Flags&wire.FlagRead != 0
	write := h.Flags&wire.FlagWrite != 0
	if fe.ACL.CanRead(h.Username) && (!write || fe.ACL.CanWrite(h.Username)) {
		h.Flags = 0
		if fe.ACL.CanRead(h.Username) {
			h.Flags |= wire.FlagRead
		}
		if fe.ACL.CanWrite(h.Username) {
			h.Flags |= wire.FlagWrite
		}
		return errorReply(h, errors.E(errors.Op("REQUESTACCESS"), errors.AlreadyHasAccess)), nil
	}
	if err := s.Registry.RequestAccess(h.Foldername, h.Filename, h.Username, read, write); err != nil {
		return errorReply(h, err), nil
	}
	return ackReply(h), nil
}

func (s *Server) doViewRequests(h wire.Header) (wire.Header, []byte) {
	reqs := s.Registry.ViewRequests(h.Username)
	var b strings.Builder
	for _, r := range reqs {
		fmt.Fprintf(&b, "%s requests %s (r=%v w=%v)\n", r.Requester, r.Filename, r.ReadRequested, r.WriteRequested)
	}
	if b.Len() == 0 {
		return ackReply(h), []byte("(no pending requests)\n")
	}
	return ackReply(h), []byte(b.String())
}

func (s *Server) doApprove(h wire.Header) (wire.Header, []byte) {
	requester := h.CheckpointTag
	if err := s.Registry.ApproveRequest(h.Username, h.Filename, requester); err != nil {
		return errorReply(h, err), nil
	}
	return ackReply(h), nil
}

func (s *Server) doDeny(h wire.Header) (wire.Header, []byte) {
	requester := h.CheckpointTag
	if err := s.Registry.DenyRequest(h.Username, h.Filename, requester); err != nil {
		return errorReply(h, err), nil
	}
	return ackReply(h), nil
}

// doExec runs a stored file as a shell script and returns its output.
// With no ExecAllowed entries it replies InvalidCommand; a file not named
// in ExecAllowed is refused with PermissionDenied.
func (s *Server) doExec(h wire.Header) (wire.Header, []byte) {
	if len(s.ExecAllowed) == 0 {
		return errorReply(h, errors.E(errors.Op("EXEC"), errors.InvalidCommand,
			errors.Str("EXEC is disabled"))), nil
	}
	if err := s.Registry.CheckPermission(h.Foldername, h.Filename, h.Username, false); err != nil {
		return errorReply(h, err), nil
	}
	if !execAllowed(s.ExecAllowed, h.Filename) {
		return errorReply(h, errors.E(errors.Op("EXEC"), errors.PermissionDenied,
			errors.Str("EXEC not enabled for this file"))), nil
	}
	fe, err := s.Registry.FindFile(h.Foldername, h.Filename)
	if err != nil {
		return errorReply(h, err), nil
	}
	ss, err := s.Registry.RouteStorageServer(fe.SSID)
	if err != nil {
		return errorReply(h, err), nil
	}
	body, err := requestSSBody(ss, wire.OpSSRead, h.Username, h.Foldername, h.Filename)
	if err != nil {
		return errorReply(h, err), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, "/bin/sh", "-c", string(body)).CombinedOutput()
	if err != nil {
		return errorReply(h, errors.E(errors.Op("EXEC"), errors.FileOperationFailed, err)), nil
	}
	return ackReply(h), out
}

func execAllowed(allowed []string, filename string) bool {
	for _, a := range allowed {
		if a == filename {
			return true
		}
	}
	return false
}

// forwardSS sends one request to ss and requires an ACK, matching the
// dispatcher's "forward to that SS" contract for CREATE/DELETE/MOVE.
func forwardSS(ss *StorageServerEntry, op wire.OpCode, username, folder, filename string, payload []byte) error {
	raw, err := net.DialTimeout("tcp", net.JoinHostPort(ss.IP, strconv.Itoa(ss.ClientPort)), 2*time.Second)
	if err != nil {
		return errors.E(errors.Op("forwardSS"), errors.SSUnavailable, err)
	}
	defer raw.Close()
	c := wire.NewConn(raw)
	req := wire.Header{MsgType: wire.MsgRequest, OpCode: op, Username: username, Foldername: folder, Filename: filename}
	if err := c.WriteFrame(req, payload); err != nil {
		return errors.E(errors.Op("forwardSS"), errors.NetworkError, err)
	}
	resp, _, err := c.ReadFrame()
	if err != nil {
		return errors.E(errors.Op("forwardSS"), errors.NetworkError, err)
	}
	if resp.MsgType != wire.MsgAck {
		k, _ := errors.KindFromCode(int(resp.ErrorCode))
		return errors.E(errors.Op("forwardSS"), k)
	}
	return nil
}

func requestSSBody(ss *StorageServerEntry, op wire.OpCode, username, folder, filename string) ([]byte, error) {
	raw, err := net.DialTimeout("tcp", net.JoinHostPort(ss.IP, strconv.Itoa(ss.ClientPort)), 2*time.Second)
	if err != nil {
		return nil, errors.E(errors.Op("requestSSBody"), errors.SSUnavailable, err)
	}
	defer raw.Close()
	c := wire.NewConn(raw)
	req := wire.Header{MsgType: wire.MsgRequest, OpCode: op, Username: username, Foldername: folder, Filename: filename}
	if err := c.WriteFrame(req, nil); err != nil {
		return nil, errors.E(errors.Op("requestSSBody"), errors.NetworkError, err)
	}
	resp, body, err := c.ReadFrame()
	if err != nil {
		return nil, errors.E(errors.Op("requestSSBody"), errors.NetworkError, err)
	}
	if resp.MsgType != wire.MsgAck {
		k, _ := errors.KindFromCode(int(resp.ErrorCode))
		return nil, errors.E(errors.Op("requestSSBody"), k)
	}
	return body, nil
}

// relaySSCheckpoint forwards one checkpoint-family request to ss and
// returns its reply, used by doCheckpointOp to relay rather than route.
func relaySSCheckpoint(ss *StorageServerEntry, op wire.OpCode, sub wire.CheckpointSub, username, folder, filename, tag string) (wire.Header, []byte, error) {
	raw, err := net.DialTimeout("tcp", net.JoinHostPort(ss.IP, strconv.Itoa(ss.ClientPort)), 2*time.Second)
	if err != nil {
		return wire.Header{}, nil, errors.E(errors.Op("relaySSCheckpoint"), errors.SSUnavailable, err)
	}
	defer raw.Close()
	c := wire.NewConn(raw)
	req := wire.Header{
		MsgType: wire.MsgRequest, OpCode: op, Username: username,
		Foldername: folder, Filename: filename, CheckpointTag: tag, Flags: uint8(sub),
	}
	if err := c.WriteFrame(req, nil); err != nil {
		return wire.Header{}, nil, errors.E(errors.Op("relaySSCheckpoint"), errors.NetworkError, err)
	}
	resp, body, err := c.ReadFrame()
	if err != nil {
		return wire.Header{}, nil, errors.E(errors.Op("relaySSCheckpoint"), errors.NetworkError, err)
	}
	if resp.MsgType != wire.MsgAck {
		k, _ := errors.KindFromCode(int(resp.ErrorCode))
		return wire.Header{}, nil, errors.E(errors.Op("relaySSCheckpoint"), k)
	}
	return resp, body, nil
}
