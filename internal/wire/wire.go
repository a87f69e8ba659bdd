// Package wire implements the framed request/response protocol that ties
// clients, the name server and storage servers together. A message on
// the wire is a fixed-size Header, written in one
// syscall, optionally followed by a payload of Header.DataLength bytes.
//
// The byte-counting technique (fixed-width fields, explicit field sizes)
// keeps every byte accounted for: the record is fixed, not
// self-describing, so all three roles share one compile-time layout.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"scribe.io/errors"
)

// Field widths, in bytes. These are part of the wire contract: every
// participant (client, NM, SS) must agree on them.
const (
	UsernameSize      = 64
	FilenameSize      = 256
	FoldernameSize    = 256
	CheckpointTagSize = 64
)

// MsgType is the header's message-type discriminant.
type MsgType uint8

const (
	_ MsgType = iota
	MsgRequest
	MsgResponse
	MsgAck
	MsgError
	MsgStop
)

func (t MsgType) String() string {
	switch t {
	case MsgRequest:
		return "REQUEST"
	case MsgResponse:
		return "RESPONSE"
	case MsgAck:
		return "ACK"
	case MsgError:
		return "ERROR"
	case MsgStop:
		return "STOP"
	}
	return fmt.Sprintf("MsgType(%d)", uint8(t))
}

// OpCode identifies the requested operation. Three ranges: client ops
// 10-29 and 35-38, control ops 30-33, SS-internal ops 40-51.
type OpCode uint8

// Client-facing NM operations, 10-29.
const (
	OpView OpCode = 10 + iota
	OpList
	OpCreate
	OpDelete
	OpRead
	OpWrite
	OpStream
	OpUndo
	OpInfo
	OpAddAccess
	OpRemAccess
	OpCreateFolder
	OpMove
	OpViewFolder
	OpCheckpoint
	OpViewCheckpoint
	OpRevert
	OpListCheckpoints
	OpRequestAccess
	OpViewRequests
)

// Control operations, 30-33: SS registration and heartbeat with the NM,
// client session setup, and the SS-to-SS sync digest request.
const (
	OpRegisterSS OpCode = 30 + iota
	OpConnectClient
	OpHeartbeat
	OpSyncRequest
)

// Client-facing NM operations continued, 35-38.
const (
	OpApprove OpCode = 35 + iota
	OpDeny
	OpExec
	OpDisconnect
)

// SS-internal operations, 40-51. Clients reach these by connecting
// directly to the storage server named in the NM's routing reply.
const (
	OpSSCreate OpCode = 40 + iota
	OpSSDelete
	OpSSRead
	OpSSStream
	OpSSWriteLock
	OpSSWriteWord
	OpSSWriteUnlock
	OpSSEtirw
	OpSSUndo
	OpSSInfo
	OpSSMove
	OpSSCheckpointOp
)

// CheckpointSub selects the sub-action of an OpSSCheckpointOp request,
// carried in Header.Flags.
type CheckpointSub uint8

const (
	CheckpointCreate CheckpointSub = iota
	CheckpointView
	CheckpointRevert
	CheckpointList
)

var opNames = map[OpCode]string{
	OpView: "VIEW", OpList: "LIST", OpCreate: "CREATE", OpDelete: "DELETE",
	OpRead: "READ", OpWrite: "WRITE", OpStream: "STREAM", OpUndo: "UNDO",
	OpInfo: "INFO", OpAddAccess: "ADDACCESS", OpRemAccess: "REMACCESS",
	OpCreateFolder: "CREATEFOLDER", OpMove: "MOVE", OpViewFolder: "VIEWFOLDER",
	OpCheckpoint: "CHECKPOINT", OpViewCheckpoint: "VIEWCHECKPOINT",
	OpRevert: "REVERT", OpListCheckpoints: "LISTCHECKPOINTS",
	OpRequestAccess: "REQUESTACCESS", OpViewRequests: "VIEWREQUESTS",
	OpRegisterSS: "REGISTER_SS", OpConnectClient: "CONNECT_CLIENT",
	OpHeartbeat: "HEARTBEAT", OpSyncRequest: "SYNC_REQUEST",
	OpApprove: "APPROVE", OpDeny: "DENY", OpExec: "EXEC", OpDisconnect: "DISCONNECT",
	OpSSCreate: "SS_CREATE", OpSSDelete: "SS_DELETE", OpSSRead: "SS_READ",
	OpSSStream: "SS_STREAM", OpSSWriteLock: "SS_WRITE_LOCK",
	OpSSWriteWord: "SS_WRITE_WORD", OpSSWriteUnlock: "SS_WRITE_UNLOCK",
	OpSSEtirw: "SS_ETIRW", OpSSUndo: "SS_UNDO", OpSSInfo: "SS_INFO",
	OpSSMove: "SS_MOVE", OpSSCheckpointOp: "SS_CHECKPOINT_OP",
}

func (o OpCode) String() string {
	if n, ok := opNames[o]; ok {
		return n
	}
	return fmt.Sprintf("OpCode(%d)", uint8(o))
}

// Flag bits for Header.Flags.
const (
	FlagRead  = 1 << 0 // REQUESTACCESS: read requested
	FlagWrite = 1 << 1 // REQUESTACCESS: write requested
	FlagAll   = 1 << 2 // VIEW -a: include dotfiles
	FlagLong  = 1 << 3 // VIEW -l: refresh cached counts
)

// Header is the fixed-size record that precedes every payload.
type Header struct {
	MsgType       MsgType
	OpCode        OpCode
	Username      string
	Filename      string
	Foldername    string
	CheckpointTag string
	DataLength    uint32
	ErrorCode     int32
	SentenceIndex int32
	WordIndex     int32
	Flags         uint8
}

// wireSize is the exact byte length of a marshaled header: the four
// fixed-width string fields plus seven scalar fields (1+1+4+4+4+4+1).
const wireSize = UsernameSize + FilenameSize + FoldernameSize + CheckpointTagSize + 1 + 1 + 4 + 4 + 4 + 4 + 1

func putFixed(b []byte, s string, width int) error {
	if len(s) > width {
		return errors.E(errors.Op("wire.putFixed"), errors.InvalidFilename, errors.Errorf("%q exceeds field width %d", s, width))
	}
	copy(b, s)
	for i := len(s); i < width; i++ {
		b[i] = 0
	}
	return nil
}

func getFixed(b []byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}

// Marshal encodes h into a wireSize-length byte slice.
func (h Header) Marshal() ([]byte, error) {
	b := make([]byte, wireSize)
	off := 0
	if err := putFixed(b[off:off+UsernameSize], h.Username, UsernameSize); err != nil {
		return nil, err
	}
	off += UsernameSize
	if err := putFixed(b[off:off+FilenameSize], h.Filename, FilenameSize); err != nil {
		return nil, err
	}
	off += FilenameSize
	if err := putFixed(b[off:off+FoldernameSize], h.Foldername, FoldernameSize); err != nil {
		return nil, err
	}
	off += FoldernameSize
	if err := putFixed(b[off:off+CheckpointTagSize], h.CheckpointTag, CheckpointTagSize); err != nil {
		return nil, err
	}
	off += CheckpointTagSize

	b[off] = uint8(h.MsgType)
	off++
	b[off] = uint8(h.OpCode)
	off++
	binary.BigEndian.PutUint32(b[off:], h.DataLength)
	off += 4
	binary.BigEndian.PutUint32(b[off:], uint32(h.ErrorCode))
	off += 4
	binary.BigEndian.PutUint32(b[off:], uint32(h.SentenceIndex))
	off += 4
	binary.BigEndian.PutUint32(b[off:], uint32(h.WordIndex))
	off += 4
	b[off] = h.Flags

	return b, nil
}

// Unmarshal decodes a wireSize-length byte slice into a Header.
func Unmarshal(b []byte) (Header, error) {
	if len(b) != wireSize {
		return Header{}, errors.E(errors.Op("wire.Unmarshal"), errors.NetworkError,
			errors.Errorf("short header: got %d bytes, want %d", len(b), wireSize))
	}
	var h Header
	off := 0
	h.Username = getFixed(b[off : off+UsernameSize])
	off += UsernameSize
	h.Filename = getFixed(b[off : off+FilenameSize])
	off += FilenameSize
	h.Foldername = getFixed(b[off : off+FoldernameSize])
	off += FoldernameSize
	h.CheckpointTag = getFixed(b[off : off+CheckpointTagSize])
	off += CheckpointTagSize

	h.MsgType = MsgType(b[off])
	off++
	h.OpCode = OpCode(b[off])
	off++
	h.DataLength = binary.BigEndian.Uint32(b[off:])
	off += 4
	h.ErrorCode = int32(binary.BigEndian.Uint32(b[off:]))
	off += 4
	h.SentenceIndex = int32(binary.BigEndian.Uint32(b[off:]))
	off += 4
	h.WordIndex = int32(binary.BigEndian.Uint32(b[off:]))
	off += 4
	h.Flags = b[off]

	return h, nil
}

// Conn wraps a net.Conn-like stream with framed Read/Write. The header
// is sent first in one write, followed by the payload; reads are
// blocking full-length; any short read/write or a
// closed connection mid-frame surfaces as NetworkError and the caller must
// close the connection (no partial-frame retry).
type Conn struct {
	rw io.ReadWriter
}

// NewConn wraps rw (typically a net.Conn) for framed I/O.
func NewConn(rw io.ReadWriter) *Conn {
	return &Conn{rw: rw}
}

// WriteFrame writes header then payload as two writes, header first.
// It sets the header's DataLength to len(payload), overriding any value
// the caller put there.
func (c *Conn) WriteFrame(h Header, payload []byte) error {
	h.DataLength = uint32(len(payload))
	b, err := h.Marshal()
	if err != nil {
		return err
	}
	if _, err := c.rw.Write(b); err != nil {
		return errors.E(errors.Op("wire.WriteFrame"), errors.NetworkError, err)
	}
	if len(payload) == 0 {
		return nil
	}
	if _, err := c.rw.Write(payload); err != nil {
		return errors.E(errors.Op("wire.WriteFrame"), errors.NetworkError, err)
	}
	return nil
}

// ReadFrame reads one header and its payload, blocking for the full
// length of both. A connection closed mid-frame or a payload short of
// DataLength is reported as NetworkError.
func (c *Conn) ReadFrame() (Header, []byte, error) {
	hb := make([]byte, wireSize)
	if _, err := io.ReadFull(c.rw, hb); err != nil {
		return Header{}, nil, errors.E(errors.Op("wire.ReadFrame"), errors.NetworkError, err)
	}
	h, err := Unmarshal(hb)
	if err != nil {
		return Header{}, nil, err
	}
	if h.DataLength == 0 {
		return h, nil, nil
	}
	payload := make([]byte, h.DataLength)
	if _, err := io.ReadFull(c.rw, payload); err != nil {
		return Header{}, nil, errors.E(errors.Op("wire.ReadFrame"), errors.NetworkError, err)
	}
	return h, payload, nil
}
