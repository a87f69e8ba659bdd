package storageserver

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"scribe.io/errors"
	"scribe.io/internal/config"
	"scribe.io/internal/wire"
	"scribe.io/log"
)

// Server is the storage server process: an accept loop serving SS-internal
// operations plus a background goroutine that keeps a long-lived control
// connection to the name server, sending HEARTBEAT on an interval and
// registering at startup. The split between the client-facing accept
// loop and the NM control link mirrors Server.Run in internal/nameserver,
// adapted so the SS is a client of the NM rather than the reverse.
type Server struct {
	Store  *Store
	Tuning config.Tuning

	ID         int
	NMAddr     string
	Host       string // advertised to the name server; defaults to 127.0.0.1
	ClientPort int

	ReplicaIP   string
	ReplicaPort int

	ln net.Listener
}

// Run accepts client connections on addr and, if NMAddr is set, registers
// with the name server and starts sending heartbeats until ctx is
// canceled.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.ln = ln

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.acceptLoop(ctx) })
	if s.NMAddr != "" {
		g.Go(func() error { return s.controlLoop(ctx) })
	}

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

// controlLoop opens the long-lived connection to the NM: REGISTER_SS once,
// then HEARTBEAT on Tuning.HeartbeatSendInterval. If the
// register reply carries a SYNC instruction, it hands off to the sync
// puller instead of blocking the heartbeat cadence on it.
func (s *Server) controlLoop(ctx context.Context) error {
	raw, err := net.DialTimeout("tcp", s.NMAddr, 5*time.Second)
	if err != nil {
		return errors.E(errors.Op("controlLoop"), errors.NetworkError, err)
	}
	defer raw.Close()
	c := wire.NewConn(raw)

	host := s.Host
	if host == "" {
		host = "127.0.0.1"
	}
	payload := fmt.Sprintf("%d %d %d %s", s.ID, 0, s.ClientPort, host)
	req := wire.Header{MsgType: wire.MsgRequest, OpCode: wire.OpRegisterSS}
	if err := c.WriteFrame(req, []byte(payload)); err != nil {
		return errors.E(errors.Op("controlLoop"), errors.NetworkError, err)
	}
	resp, body, err := c.ReadFrame()
	if err != nil {
		return errors.E(errors.Op("controlLoop"), errors.NetworkError, err)
	}
	if resp.MsgType == wire.MsgAck && strings.HasPrefix(string(body), "SYNC ") {
		fields := strings.Fields(string(body))
		if len(fields) == 3 {
			port, _ := strconv.Atoi(fields[2])
			go s.pullSync(fields[1], port)
		}
	}

	ticker := time.NewTicker(s.Tuning.HeartbeatSendInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			hb := wire.Header{MsgType: wire.MsgRequest, OpCode: wire.OpHeartbeat, Username: strconv.Itoa(s.ID)}
			if err := c.WriteFrame(hb, nil); err != nil {
				log.Error.Printf("storage server %d: heartbeat send failed: %v", s.ID, err)
				continue
			}
			resp, body, err := c.ReadFrame()
			if err != nil {
				log.Error.Printf("storage server %d: heartbeat reply failed: %v", s.ID, err)
				continue
			}
			if resp.MsgType == wire.MsgAck && strings.HasPrefix(string(body), "REPLICA ") {
				fields := strings.Fields(string(body))
				if len(fields) == 3 {
					s.ReplicaIP = fields[1]
					s.ReplicaPort, _ = strconv.Atoi(fields[2])
				}
			}
		}
	}
}

// handleConn dispatches SS-internal requests on one connection, releasing
// every lock the bound user held if the connection drops mid-session.
func (s *Server) handleConn(raw net.Conn) {
	defer raw.Close()
	conn := wire.NewConn(raw)
	var username string

	for {
		h, payload, err := conn.ReadFrame()
		if err != nil {
			if username != "" {
				s.Store.CleanupUserLocks(username)
			}
			return
		}
		if h.MsgType == wire.MsgStop {
			if username != "" {
				s.Store.CleanupUserLocks(username)
			}
			return
		}
		if h.Username != "" {
			username = h.Username
		}

		if h.OpCode == wire.OpSSStream {
			s.doStream(conn, h)
			continue
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

func (s *Server) dispatch(h wire.Header, payload []byte) (wire.Header, []byte) {
	switch h.OpCode {
	case wire.OpSSCreate:
		return s.doCreate(h)
	case wire.OpSSDelete:
		return s.doDelete(h)
	case wire.OpSSRead:
		return s.doRead(h)
	case wire.OpSSWriteLock:
		return s.doWriteLock(h)
	case wire.OpSSWriteWord:
		return s.doWriteWord(h, payload)
	case wire.OpSSWriteUnlock:
		return s.doWriteUnlock(h)
	case wire.OpSSEtirw:
		return s.doEtirw(h, payload)
	case wire.OpSSUndo:
		return s.doUndo(h)
	case wire.OpSSInfo:
		return s.doInfo(h)
	case wire.OpSSMove:
		return s.doMove(h)
	case wire.OpSSCheckpointOp:
		return s.doCheckpointOp(h, payload)
	case wire.OpSyncRequest:
		return s.doSyncRequest(h)
	default:
		return errorReply(h, errors.E(errors.Op("dispatch"), errors.InvalidCommand)), nil
	}
}

func (s *Server) doCreate(h wire.Header) (wire.Header, []byte) {
	if err := s.Store.CreateFile(h.Filename, h.Username); err != nil {
		return errorReply(h, err), nil
	}
	return ackReply(h), nil
}

func (s *Server) doDelete(h wire.Header) (wire.Header, []byte) {
	if err := s.Store.DeleteFile(h.Filename); err != nil {
		return errorReply(h, err), nil
	}
	return ackReply(h), nil
}

func (s *Server) doRead(h wire.Header) (wire.Header, []byte) {
	body, err := s.Store.ReadFile(h.Filename)
	if err != nil {
		return errorReply(h, err), nil
	}
	return ackReply(h), []byte(body)
}

// doStream writes the body back as a sequence of MsgResponse frames
// bounded by Tuning.StreamChunkSize, terminated by a zero-length MsgAck
// frame, so a
// client can start consuming a large file before it is fully buffered.
func (s *Server) doStream(conn *wire.Conn, h wire.Header) {
	body, err := s.Store.ReadFile(h.Filename)
	if err != nil {
		conn.WriteFrame(errorReply(h, err), nil)
		return
	}
	chunkSize := s.Tuning.StreamChunkSize
	if chunkSize <= 0 {
		chunkSize = len(body)
		if chunkSize == 0 {
			chunkSize = 1
		}
	}
	data := []byte(body)
	for len(data) > 0 {
		n := chunkSize
		if n > len(data) {
			n = len(data)
		}
		resp := h
		resp.MsgType = wire.MsgResponse
		if err := conn.WriteFrame(resp, data[:n]); err != nil {
			return
		}
		data = data[n:]
	}
	conn.WriteFrame(ackReply(h), nil)
}

func (s *Server) doWriteLock(h wire.Header) (wire.Header, []byte) {
	if _, err := s.Store.LockSentence(h.Filename, int(h.SentenceIndex), h.Username); err != nil {
		return errorReply(h, err), nil
	}
	return ackReply(h), nil
}

func (s *Server) doWriteWord(h wire.Header, payload []byte) (wire.Header, []byte) {
	if err := s.Store.WriteWord(h.Filename, int(h.SentenceIndex), int(h.WordIndex), string(payload), h.Username); err != nil {
		return errorReply(h, err), nil
	}
	return ackReply(h), nil
}

func (s *Server) doWriteUnlock(h wire.Header) (wire.Header, []byte) {
	if err := s.Store.UnlockSentence(h.Filename, int(h.SentenceIndex), h.Username); err != nil {
		return errorReply(h, err), nil
	}
	return ackReply(h), nil
}

func (s *Server) doEtirw(h wire.Header, payload []byte) (wire.Header, []byte) {
	if err := s.Store.Etirw(h.Filename, int(h.SentenceIndex), int(h.WordIndex), string(payload), h.Username); err != nil {
		return errorReply(h, err), nil
	}
	return ackReply(h), nil
}

func (s *Server) doUndo(h wire.Header) (wire.Header, []byte) {
	if err := s.Store.UndoFile(h.Filename); err != nil {
		return errorReply(h, err), nil
	}
	return ackReply(h), nil
}

func (s *Server) doInfo(h wire.Header) (wire.Header, []byte) {
	_, size, words, chars, err := s.Store.Info(h.Filename)
	if err != nil {
		return errorReply(h, err), nil
	}
	return ackReply(h), []byte(fmt.Sprintf("%d %d %d", size, words, chars))
}

// doMove implements the SS side of MOVE: this storage server lays files
// out flat by basename (see Store.MoveFile), so the response is purely an
// acknowledgment that the file is known here.
func (s *Server) doMove(h wire.Header) (wire.Header, []byte) {
	if err := s.Store.MoveFile(h.Filename); err != nil {
		return errorReply(h, err), nil
	}
	return ackReply(h), nil
}

func (s *Server) doCheckpointOp(h wire.Header, payload []byte) (wire.Header, []byte) {
	switch wire.CheckpointSub(h.Flags) {
	case wire.CheckpointCreate:
		if err := s.Store.CreateCheckpoint(h.Filename, h.CheckpointTag); err != nil {
			return errorReply(h, err), nil
		}
		return ackReply(h), nil
	case wire.CheckpointView:
		text, err := s.Store.ViewCheckpoint(h.Filename, h.CheckpointTag)
		if err != nil {
			return errorReply(h, err), nil
		}
		return ackReply(h), []byte(text)
	case wire.CheckpointRevert:
		if err := s.Store.RevertFile(h.Filename, h.CheckpointTag); err != nil {
			return errorReply(h, err), nil
		}
		return ackReply(h), nil
	case wire.CheckpointList:
		tags, err := s.Store.ListCheckpoints(h.Filename)
		if err != nil {
			return errorReply(h, err), nil
		}
		return ackReply(h), []byte(strings.Join(tags, "\n"))
	default:
		return errorReply(h, errors.E(errors.Op("SS_CHECKPOINT_OP"), errors.InvalidCommand)), nil
	}
}
