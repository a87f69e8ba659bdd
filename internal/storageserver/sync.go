package storageserver

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"scribe.io/errors"
	"scribe.io/internal/wire"
	"scribe.io/log"
)

// doSyncRequest answers a peer's digest request with one line per file:
// "filename|owner|modified_unix|size".
func (s *Server) doSyncRequest(h wire.Header) (wire.Header, []byte) {
	names, err := s.Store.Filenames()
	if err != nil {
		return errorReply(h, err), nil
	}
	var b strings.Builder
	for _, name := range names {
		owner, modified, size, err := s.Store.Digest(name)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "%s|%s|%d|%d\n", name, owner, modified.Unix(), size)
	}
	return ackReply(h), []byte(b.String())
}

// pullSync is the recovering side of SYNC: dial
// the named peer, fetch its digest, and adopt any file the peer has that
// this store lacks or holds an older copy of. Timestamp is the sole
// tie-breaker; equal timestamps keep the local copy.
func (s *Server) pullSync(peerIP string, peerPort int) {
	raw, err := net.DialTimeout("tcp", net.JoinHostPort(peerIP, strconv.Itoa(peerPort)), 5*time.Second)
	if err != nil {
		log.Error.Printf("storage server %d: sync dial %s:%d failed: %v", s.ID, peerIP, peerPort, err)
		return
	}
	defer raw.Close()
	c := wire.NewConn(raw)

	req := wire.Header{MsgType: wire.MsgRequest, OpCode: wire.OpSyncRequest}
	if err := c.WriteFrame(req, nil); err != nil {
		log.Error.Printf("storage server %d: sync request failed: %v", s.ID, err)
		return
	}
	resp, body, err := c.ReadFrame()
	if err != nil || resp.MsgType != wire.MsgAck {
		log.Error.Printf("storage server %d: sync digest fetch failed: %v", s.ID, err)
		return
	}

	for _, line := range strings.Split(string(body), "\n") {
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "|", 4)
		if len(fields) != 4 {
			continue
		}
		name, owner := fields[0], fields[1]
		remoteUnix, _ := strconv.ParseInt(fields[2], 10, 64)
		remoteModified := time.Unix(remoteUnix, 0)

		_, localModified, _, err := s.Store.Digest(name)
		if err == nil && !remoteModified.After(localModified) {
			continue // local copy is at least as new
		}

		text, err := s.pullFile(c, name)
		if err != nil {
			log.Error.Printf("storage server %d: sync pull %s failed: %v", s.ID, name, err)
			continue
		}
		if err := s.Store.ImportFile(name, owner, text, remoteModified); err != nil {
			log.Error.Printf("storage server %d: sync import %s failed: %v", s.ID, name, err)
		}
	}
}

func (s *Server) pullFile(c *wire.Conn, name string) (string, error) {
	req := wire.Header{MsgType: wire.MsgRequest, OpCode: wire.OpSSRead, Filename: name}
	if err := c.WriteFrame(req, nil); err != nil {
		return "", errors.E(errors.Op("pullFile"), errors.NetworkError, err)
	}
	resp, body, err := c.ReadFrame()
	if err != nil {
		return "", errors.E(errors.Op("pullFile"), errors.NetworkError, err)
	}
	if resp.MsgType != wire.MsgAck {
		k, _ := errors.KindFromCode(int(resp.ErrorCode))
		return "", errors.E(errors.Op("pullFile"), k)
	}
	return string(body), nil
}
