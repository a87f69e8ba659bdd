// Package clientlib implements a thin client over the wire protocol: a
// persistent connection to the name server plus short-lived direct
// connections to storage servers for READ/WRITE/STREAM/UNDO: discovery
// through the name server, then a direct storage-server hop. One
// long-lived service handle with a small named method per operation.
package clientlib

import (
	"net"
	"strconv"
	"strings"
	"time"

	"scribe.io/errors"
	"scribe.io/internal/wire"
)

// Client is a connected session: one persistent connection to the name
// server, opened by Dial and closed by Disconnect.
type Client struct {
	Username  string
	SessionID string // correlation id returned by CONNECT_CLIENT

	nmAddr string
	nmRaw  net.Conn
	nm     *wire.Conn
}

// Dial opens the control connection to the name server and performs
// CONNECT_CLIENT.
func Dial(nmAddr, username string) (*Client, error) {
	const op = errors.Op("clientlib.Dial")
	raw, err := net.DialTimeout("tcp", nmAddr, 5*time.Second)
	if err != nil {
		return nil, errors.E(op, errors.NetworkError, err)
	}
	c := &Client{Username: username, nmAddr: nmAddr, nmRaw: raw, nm: wire.NewConn(raw)}
	body, err := c.callBody(wire.OpConnectClient, wire.Header{}, nil)
	if err != nil {
		raw.Close()
		return nil, err
	}
	c.SessionID = string(body)
	return c, nil
}

// Disconnect sends DISCONNECT and closes the control connection.
func (c *Client) Disconnect() error {
	defer c.nmRaw.Close()
	return c.call(wire.OpDisconnect, wire.Header{}, nil)
}

// call sends one request to the name server over the control connection
// and discards the reply body, translating an ERROR reply into a Go error.
// callBody does the same and returns the body.
func (c *Client) call(op wire.OpCode, h wire.Header, payload []byte) error {
	_, err := c.callBody(op, h, payload)
	return err
}

func (c *Client) callBody(op wire.OpCode, h wire.Header, payload []byte) ([]byte, error) {
	h.MsgType = wire.MsgRequest
	h.OpCode = op
	h.Username = c.Username
	if err := c.nm.WriteFrame(h, payload); err != nil {
		return nil, errors.E(errors.Op("clientlib.call"), errors.NetworkError, err)
	}
	resp, body, err := c.nm.ReadFrame()
	if err != nil {
		return nil, errors.E(errors.Op("clientlib.call"), errors.NetworkError, err)
	}
	if resp.MsgType == wire.MsgError {
		k, _ := errors.KindFromCode(int(resp.ErrorCode))
		return nil, errors.E(errors.Op(op.String()), k)
	}
	return body, nil
}

// View lists files visible to this user.
func (c *Client) View(all, long bool) (string, error) {
	var flags uint8
	if all {
		flags |= wire.FlagAll
	}
	if long {
		flags |= wire.FlagLong
	}
	body, err := c.callBody(wire.OpView, wire.Header{Flags: flags}, nil)
	return string(body), err
}

// List lists connected clients.
func (c *Client) List() (string, error) {
	body, err := c.callBody(wire.OpList, wire.Header{}, nil)
	return string(body), err
}

// Create sends CREATE; the name server forwards it to a storage server
// and registers the new file.
func (c *Client) Create(folder, filename string) error {
	return c.call(wire.OpCreate, wire.Header{Foldername: folder, Filename: filename}, nil)
}

// Delete sends DELETE (owner only; enforced by the name server).
func (c *Client) Delete(folder, filename string) error {
	return c.call(wire.OpDelete, wire.Header{Foldername: folder, Filename: filename}, nil)
}

// endpoint asks the name server to resolve filename's home storage
// server, returning the "<ip>:<port>" to dial directly.
func (c *Client) endpoint(op wire.OpCode, folder, filename string) (string, error) {
	body, err := c.callBody(op, wire.Header{Foldername: folder, Filename: filename}, nil)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func dialSS(addr string) (*wire.Conn, net.Conn, error) {
	raw, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, nil, errors.E(errors.Op("clientlib.dialSS"), errors.SSUnavailable, err)
	}
	return wire.NewConn(raw), raw, nil
}

func ssCall(conn *wire.Conn, h wire.Header, payload []byte) ([]byte, error) {
	if err := conn.WriteFrame(h, payload); err != nil {
		return nil, errors.E(errors.Op("clientlib.ssCall"), errors.NetworkError, err)
	}
	resp, body, err := conn.ReadFrame()
	if err != nil {
		return nil, errors.E(errors.Op("clientlib.ssCall"), errors.NetworkError, err)
	}
	if resp.MsgType == wire.MsgError {
		k, _ := errors.KindFromCode(int(resp.ErrorCode))
		return nil, errors.E(errors.Op(h.OpCode.String()), k)
	}
	return body, nil
}

// Read resolves filename's storage server and fetches its body directly.
func (c *Client) Read(folder, filename string) (string, error) {
	addr, err := c.endpoint(wire.OpRead, folder, filename)
	if err != nil {
		return "", err
	}
	conn, raw, err := dialSS(addr)
	if err != nil {
		return "", err
	}
	defer raw.Close()
	body, err := ssCall(conn, wire.Header{MsgType: wire.MsgRequest, OpCode: wire.OpSSRead, Username: c.Username, Filename: filename}, nil)
	return string(body), err
}

// Stream resolves filename's storage server and reads its body as a
// sequence of chunks, reassembling them before returning.
func (c *Client) Stream(folder, filename string) (string, error) {
	addr, err := c.endpoint(wire.OpStream, folder, filename)
	if err != nil {
		return "", err
	}
	conn, raw, err := dialSS(addr)
	if err != nil {
		return "", err
	}
	defer raw.Close()
	req := wire.Header{MsgType: wire.MsgRequest, OpCode: wire.OpSSStream, Username: c.Username, Filename: filename}
	if err := conn.WriteFrame(req, nil); err != nil {
		return "", errors.E(errors.Op("clientlib.Stream"), errors.NetworkError, err)
	}
	var b strings.Builder
	for {
		resp, body, err := conn.ReadFrame()
		if err != nil {
			return "", errors.E(errors.Op("clientlib.Stream"), errors.NetworkError, err)
		}
		if resp.MsgType == wire.MsgError {
			k, _ := errors.KindFromCode(int(resp.ErrorCode))
			return "", errors.E(errors.Op("STREAM"), k)
		}
		if resp.MsgType == wire.MsgAck {
			break
		}
		b.Write(body)
	}
	return b.String(), nil
}

// WordEdit is one replacement within a write session: sentence idx, word
// idx, and the new word text.
type WordEdit struct {
	SentenceIndex int
	WordIndex     int
	NewWord       string
}

// Write performs the WRITE_LOCK → WRITE_WORD* → WRITE_UNLOCK session for
// every sentence touched by edits, grouping edits by sentence so each
// sentence is locked once.
func (c *Client) Write(folder, filename string, edits []WordEdit) error {
	addr, err := c.endpoint(wire.OpWrite, folder, filename)
	if err != nil {
		return err
	}
	conn, raw, err := dialSS(addr)
	if err != nil {
		return err
	}
	defer raw.Close()

	locked := make(map[int32]bool)
	for _, e := range edits {
		idx := int32(e.SentenceIndex)
		if !locked[idx] {
			if _, err := ssCall(conn, wire.Header{
				MsgType: wire.MsgRequest, OpCode: wire.OpSSWriteLock, Username: c.Username,
				Filename: filename, SentenceIndex: idx,
			}, nil); err != nil {
				return err
			}
			locked[idx] = true
		}
		if _, err := ssCall(conn, wire.Header{
			MsgType: wire.MsgRequest, OpCode: wire.OpSSWriteWord, Username: c.Username,
			Filename: filename, SentenceIndex: idx, WordIndex: int32(e.WordIndex),
		}, []byte(e.NewWord)); err != nil {
			return err
		}
	}
	for idx := range locked {
		if _, err := ssCall(conn, wire.Header{
			MsgType: wire.MsgRequest, OpCode: wire.OpSSWriteUnlock, Username: c.Username,
			Filename: filename, SentenceIndex: idx,
		}, nil); err != nil {
			return err
		}
	}
	return nil
}

// Etirw performs the abbreviated single-word write: one endpoint
// resolution, then a lock, single replacement, and unlock in one
// storage-server exchange.
func (c *Client) Etirw(folder, filename string, sentenceIdx, wordIdx int, newWord string) error {
	addr, err := c.endpoint(wire.OpWrite, folder, filename)
	if err != nil {
		return err
	}
	conn, raw, err := dialSS(addr)
	if err != nil {
		return err
	}
	defer raw.Close()
	_, err = ssCall(conn, wire.Header{
		MsgType: wire.MsgRequest, OpCode: wire.OpSSEtirw, Username: c.Username,
		Filename: filename, SentenceIndex: int32(sentenceIdx), WordIndex: int32(wordIdx),
	}, []byte(newWord))
	return err
}

// Undo resolves filename's storage server and asks it to restore the
// most recent undo snapshot.
func (c *Client) Undo(folder, filename string) error {
	addr, err := c.endpoint(wire.OpUndo, folder, filename)
	if err != nil {
		return err
	}
	conn, raw, err := dialSS(addr)
	if err != nil {
		return err
	}
	defer raw.Close()
	_, err = ssCall(conn, wire.Header{MsgType: wire.MsgRequest, OpCode: wire.OpSSUndo, Username: c.Username, Filename: filename}, nil)
	return err
}

// Info asks the name server for a file's owner/size/acl summary.
func (c *Client) Info(folder, filename string) (string, error) {
	body, err := c.callBody(wire.OpInfo, wire.Header{Foldername: folder, Filename: filename}, nil)
	return string(body), err
}

// AddAccess grants read/write to grantee; REMACCESS revokes. Both reuse
// the wire header's checkpoint_tag field to carry the grantee's
// username, avoiding a dedicated wire field for a rarely-used operation.
func (c *Client) AddAccess(folder, filename, grantee string, read, write bool) error {
	var flags uint8
	if read {
		flags |= wire.FlagRead
	}
	if write {
		flags |= wire.FlagWrite
	}
	return c.call(wire.OpAddAccess, wire.Header{Foldername: folder, Filename: filename, CheckpointTag: grantee, Flags: flags}, nil)
}

func (c *Client) RemAccess(folder, filename, grantee string) error {
	return c.call(wire.OpRemAccess, wire.Header{Foldername: folder, Filename: filename, CheckpointTag: grantee}, nil)
}

// CreateFolder creates folder as a child of parent.
func (c *Client) CreateFolder(parent, name string) error {
	return c.call(wire.OpCreateFolder, wire.Header{Foldername: parent, Filename: name}, nil)
}

// Move relocates filename from folder to destFolder; destFolder rides
// the reused checkpoint_tag field like AddAccess's grantee.
func (c *Client) Move(folder, filename, destFolder string) error {
	return c.call(wire.OpMove, wire.Header{Foldername: folder, Filename: filename, CheckpointTag: destFolder}, nil)
}

// ViewFolder lists a folder's subfolders and files.
func (c *Client) ViewFolder(folder string) (string, error) {
	body, err := c.callBody(wire.OpViewFolder, wire.Header{Foldername: folder}, nil)
	return string(body), err
}

// Checkpoint, ViewCheckpoint, Revert and ListCheckpoints are all relayed
// by the name server rather than routed to a direct SS connection, so
// these methods just call through like any other NM-mediated operation.
func (c *Client) Checkpoint(folder, filename, tag string) error {
	return c.call(wire.OpCheckpoint, wire.Header{Foldername: folder, Filename: filename, CheckpointTag: tag}, nil)
}

func (c *Client) ViewCheckpoint(folder, filename, tag string) (string, error) {
	body, err := c.callBody(wire.OpViewCheckpoint, wire.Header{Foldername: folder, Filename: filename, CheckpointTag: tag}, nil)
	return string(body), err
}

func (c *Client) Revert(folder, filename, tag string) error {
	return c.call(wire.OpRevert, wire.Header{Foldername: folder, Filename: filename, CheckpointTag: tag}, nil)
}

func (c *Client) ListCheckpoints(folder, filename string) ([]string, error) {
	body, err := c.callBody(wire.OpListCheckpoints, wire.Header{Foldername: folder, Filename: filename}, nil)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, nil
	}
	return strings.Split(string(body), "\n"), nil
}

// RequestAccess files an access request for filename.
func (c *Client) RequestAccess(folder, filename string, read, write bool) error {
	var flags uint8
	if read {
		flags |= wire.FlagRead
	}
	if write {
		flags |= wire.FlagWrite
	}
	return c.call(wire.OpRequestAccess, wire.Header{Foldername: folder, Filename: filename, Flags: flags}, nil)
}

// ViewRequests lists pending access requests on this user's own files.
func (c *Client) ViewRequests() (string, error) {
	body, err := c.callBody(wire.OpViewRequests, wire.Header{}, nil)
	return string(body), err
}

// Approve and Deny resolve a pending request by requester username
// (reusing checkpoint_tag again, as with AddAccess's grantee).
func (c *Client) Approve(filename, requester string) error {
	return c.call(wire.OpApprove, wire.Header{Filename: filename, CheckpointTag: requester}, nil)
}

func (c *Client) Deny(filename, requester string) error {
	return c.call(wire.OpDeny, wire.Header{Filename: filename, CheckpointTag: requester}, nil)
}

// Exec asks the name server to run filename's contents as a shell
// command, gated by the server's ExecAllowed list.
func (c *Client) Exec(folder, filename string) (string, error) {
	body, err := c.callBody(wire.OpExec, wire.Header{Foldername: folder, Filename: filename}, nil)
	return string(body), err
}

// ParseEndpoint splits an "<ip>:<port>" routing reply, for callers that
// want the pieces separately.
func ParseEndpoint(s string) (ip string, port int, err error) {
	host, portStr, splitErr := net.SplitHostPort(s)
	if splitErr != nil {
		return "", 0, errors.E(errors.Op("ParseEndpoint"), errors.InvalidCommand, splitErr)
	}
	p, convErr := strconv.Atoi(portStr)
	if convErr != nil {
		return "", 0, errors.E(errors.Op("ParseEndpoint"), errors.InvalidCommand, convErr)
	}
	return host, p, nil
}
