package storageserver

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"scribe.io/errors"
	"scribe.io/internal/config"
)

// FileState is the in-memory state of one open file. mu guards the
// Nodes slice itself (structural replacement on undo/revert/sync import);
// mutation of an individual node's text is guarded by that node's own
// mutex.
type FileState struct {
	mu sync.RWMutex

	Nodes    []*SentenceNode
	Owner    string
	Created  time.Time
	Modified time.Time

	UndoText *string
	Stats    map[string]int // per-user edit counts
}

// Store holds every file this storage server is responsible for,
// indexed by filename, plus the shared lock registry. It is the SS-side
// analogue of nameserver.Registry: one coarse mutex for the file
// directory, finer-grained locking within.
type Store struct {
	mu    sync.Mutex
	dir   string
	files map[string]*FileState

	Locks  *LockRegistry
	Tuning config.Tuning
}

func NewStore(dir string, t config.Tuning) *Store {
	return &Store{
		dir:    dir,
		files:  make(map[string]*FileState),
		Locks:  NewLockRegistry(t.LockRegistrySize),
		Tuning: t,
	}
}

func (s *Store) bodyPath(filename string) string  { return filepath.Join(s.dir, filename) }
func (s *Store) metaPath(filename string) string  { return filepath.Join(s.dir, filename+".meta") }
func (s *Store) undoPath(filename string) string  { return filepath.Join(s.dir, filename+".undo") }
func (s *Store) statsPath(filename string) string { return filepath.Join(s.dir, filename+".stats") }
func (s *Store) checkpointPath(filename, tag string) string {
	return filepath.Join(s.dir, filename+".checkpoint."+tag)
}

// CreateFile implements the SS side of CREATE: an empty file with owner
// metadata and an empty body.
func (s *Store) CreateFile(filename, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.files[filename]; exists {
		return errors.E(errors.Op("CreateFile"), errors.Path(filename), errors.FileExists)
	}
	now := time.Now()
	fs := &FileState{
		Nodes:    ParseSentences(""),
		Owner:    owner,
		Created:  now,
		Modified: now,
		Stats:    make(map[string]int),
	}
	s.files[filename] = fs
	if err := s.persistLocked(filename, fs); err != nil {
		return errors.E(errors.Op("CreateFile"), errors.Path(filename), errors.FileOperationFailed, err)
	}
	return nil
}

// getOrLoad returns the in-memory FileState for filename, loading it
// from disk on first access (e.g. after an SS restart or a SYNC pull).
func (s *Store) getOrLoad(filename string) (*FileState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fs, ok := s.files[filename]; ok {
		return fs, nil
	}
	body, exists, err := readFileIfExists(s.bodyPath(filename))
	if err != nil {
		return nil, errors.E(errors.Op("getOrLoad"), errors.Path(filename), errors.FileOperationFailed, err)
	}
	if !exists {
		return nil, errors.E(errors.Op("getOrLoad"), errors.Path(filename), errors.FileNotFound)
	}
	owner, created, modified := s.loadMeta(filename)
	fs := &FileState{
		Nodes:    ParseSentences(string(body)),
		Owner:    owner,
		Created:  created,
		Modified: modified,
		Stats:    s.loadStats(filename),
	}
	if undo, ok, _ := readFileIfExists(s.undoPath(filename)); ok {
		text := string(undo)
		fs.UndoText = &text
	}
	s.files[filename] = fs
	return fs, nil
}

func (s *Store) loadMeta(filename string) (owner string, created, modified time.Time) {
	data, ok, _ := readFileIfExists(s.metaPath(filename))
	if !ok {
		return "", time.Now(), time.Now()
	}
	parts := strings.SplitN(strings.TrimSpace(string(data)), "|", 3)
	if len(parts) != 3 {
		return "", time.Now(), time.Now()
	}
	c, _ := strconv.ParseInt(parts[1], 10, 64)
	m, _ := strconv.ParseInt(parts[2], 10, 64)
	return parts[0], time.Unix(c, 0), time.Unix(m, 0)
}

func (s *Store) loadStats(filename string) map[string]int {
	out := make(map[string]int)
	data, ok, _ := readFileIfExists(s.statsPath(filename))
	if !ok {
		return out
	}
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "|", 2)
		if len(parts) != 2 {
			continue
		}
		n, _ := strconv.Atoi(parts[1])
		out[parts[0]] = n
	}
	return out
}

// persistLocked writes body, meta and stats sidecars atomically. Callers
// must hold s.mu (it is called while the file directory lock is held, to
// keep the on-disk layout consistent with the in-memory map).
func (s *Store) persistLocked(filename string, fs *FileState) error {
	fs.mu.RLock()
	body := Serialize(fs.Nodes)
	fs.mu.RUnlock()

	if err := atomicWrite(s.bodyPath(filename), []byte(body)); err != nil {
		return err
	}
	meta := fmt.Sprintf("%s|%d|%d", fs.Owner, fs.Created.Unix(), fs.Modified.Unix())
	if err := atomicWrite(s.metaPath(filename), []byte(meta)); err != nil {
		return err
	}
	var statsBuf strings.Builder
	for user, count := range fs.Stats {
		fmt.Fprintf(&statsBuf, "%s|%d\n", user, count)
	}
	if err := atomicWrite(s.statsPath(filename), []byte(statsBuf.String())); err != nil {
		return err
	}
	if fs.UndoText != nil {
		if err := atomicWrite(s.undoPath(filename), []byte(*fs.UndoText)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) persist(filename string, fs *FileState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked(filename, fs)
}

// DeleteFile implements the SS side of DELETE.
func (s *Store) DeleteFile(filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[filename]; !ok {
		if _, exists, _ := readFileIfExists(s.bodyPath(filename)); !exists {
			return errors.E(errors.Op("DeleteFile"), errors.Path(filename), errors.FileNotFound)
		}
	}
	delete(s.files, filename)
	for _, p := range []string{s.bodyPath(filename), s.metaPath(filename), s.undoPath(filename), s.statsPath(filename)} {
		os.Remove(p)
	}
	if entries, err := os.ReadDir(s.dir); err == nil {
		prefix := filename + ".checkpoint."
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), prefix) {
				os.Remove(filepath.Join(s.dir, e.Name()))
			}
		}
	}
	return nil
}

// ReadFile returns the current full body text.
func (s *Store) ReadFile(filename string) (string, error) {
	fs, err := s.getOrLoad(filename)
	if err != nil {
		return "", err
	}
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return Serialize(fs.Nodes), nil
}

// Info returns the live size/word/char counts and owner, serving INFO
// and the VIEW -l count refresh.
func (s *Store) Info(filename string) (owner string, size, words, chars int, err error) {
	fs, err := s.getOrLoad(filename)
	if err != nil {
		return "", 0, 0, 0, err
	}
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.Owner, CharCount(fs.Nodes), WordCount(fs.Nodes), CharCount(fs.Nodes), nil
}

// LockSentence takes the sentence at idx for user, recording the session
// in the lock registry with a snapshot of the sentence list.
func (s *Store) LockSentence(filename string, idx int, user string) (*LockSession, error) {
	const op = errors.Op("LockSentence")
	fs, err := s.getOrLoad(filename)
	if err != nil {
		return nil, err
	}
	fs.mu.RLock()
	if idx < 0 || idx >= len(fs.Nodes) {
		fs.mu.RUnlock()
		return nil, errors.E(op, errors.Path(filename), errors.InvalidSentence)
	}
	node := fs.Nodes[idx]
	snapshot := fs.Nodes
	fs.mu.RUnlock()

	node.mu.Lock()
	if node.IsLocked && node.LockedBy != user {
		node.mu.Unlock()
		return nil, errors.E(op, errors.Path(filename), errors.User(user), errors.SentenceLocked)
	}
	node.IsLocked = true
	node.LockedBy = user
	node.mu.Unlock()

	session := &LockSession{
		Filename: filename, User: user, Node: node,
		Snapshot: snapshot, OriginalText: Serialize(snapshot),
	}
	if err := s.Locks.Add(session); err != nil {
		node.mu.Lock()
		node.IsLocked = false
		node.LockedBy = ""
		node.mu.Unlock()
		return nil, err
	}
	return session, nil
}

// UnlockSentence releases a held sentence lock: requires the matching
// user, else PermissionDenied.
func (s *Store) UnlockSentence(filename string, idx int, user string) error {
	const op = errors.Op("UnlockSentence")
	fs, err := s.getOrLoad(filename)
	if err != nil {
		return err
	}
	fs.mu.RLock()
	if idx < 0 || idx >= len(fs.Nodes) {
		fs.mu.RUnlock()
		return errors.E(op, errors.Path(filename), errors.InvalidSentence)
	}
	node := fs.Nodes[idx]
	fs.mu.RUnlock()

	node.mu.Lock()
	defer node.mu.Unlock()
	if !node.IsLocked {
		return nil
	}
	if node.LockedBy != user {
		return errors.E(op, errors.Path(filename), errors.User(user), errors.PermissionDenied)
	}
	node.IsLocked = false
	node.LockedBy = ""
	s.Locks.Remove(filename, user, node)
	return nil
}

// WriteWord replaces one word of a locked sentence: requires an active
// lock by user on the sentence; lazily captures an undo snapshot on the
// first mutation of the session.
func (s *Store) WriteWord(filename string, sentenceIdx, wordIdx int, newWord, user string) error {
	const op = errors.Op("WriteWord")
	fs, err := s.getOrLoad(filename)
	if err != nil {
		return err
	}
	// Resolve the target node through the session's snapshot, not the
	// live list, so structural changes by other users (undo, revert)
	// cannot shift the locked sentence out from under this session.
	var session *LockSession
	for _, cand := range s.Locks.SessionsForUser(user) {
		if cand.Filename != filename {
			continue
		}
		if sentenceIdx >= 0 && sentenceIdx < len(cand.Snapshot) && cand.Snapshot[sentenceIdx] == cand.Node {
			session = cand
			break
		}
	}
	if session == nil {
		fs.mu.RLock()
		out := sentenceIdx < 0 || sentenceIdx >= len(fs.Nodes)
		fs.mu.RUnlock()
		if out {
			return errors.E(op, errors.Path(filename), errors.InvalidSentence)
		}
		return errors.E(op, errors.Path(filename), errors.User(user), errors.PermissionDenied,
			errors.Str("no active lock for this sentence"))
	}
	node := session.Node

	if !session.UndoSaved {
		fs.mu.RLock()
		full := Serialize(fs.Nodes)
		fs.mu.RUnlock()
		fs.mu.Lock()
		fs.UndoText = &full
		fs.mu.Unlock()
		session.UndoSaved = true
	}

	node.mu.Lock()
	ws := splitWords(node.Text)
	if !ws.setOrAppend(wordIdx, newWord) {
		node.mu.Unlock()
		return errors.E(op, errors.Path(filename), errors.InvalidWord)
	}
	node.Text = ws.render()
	node.mu.Unlock()

	fs.mu.Lock()
	fs.Modified = time.Now()
	fs.Stats[user]++
	fs.mu.Unlock()

	if err := s.persist(filename, fs); err != nil {
		return errors.E(op, errors.Path(filename), errors.FileOperationFailed, err)
	}
	return nil
}

// Etirw implements the abbreviated ETIRW session: lock, one replacement,
// unlock, in a single call.
func (s *Store) Etirw(filename string, sentenceIdx, wordIdx int, newWord, user string) error {
	if _, err := s.LockSentence(filename, sentenceIdx, user); err != nil {
		return err
	}
	if err := s.WriteWord(filename, sentenceIdx, wordIdx, newWord, user); err != nil {
		s.UnlockSentence(filename, sentenceIdx, user)
		return err
	}
	return s.UnlockSentence(filename, sentenceIdx, user)
}

// CleanupUserLocks releases every lock user holds, called when a client
// connection drops.
func (s *Store) CleanupUserLocks(user string) {
	for _, session := range s.Locks.SessionsForUser(user) {
		session.Node.mu.Lock()
		if session.Node.LockedBy == user {
			session.Node.IsLocked = false
			session.Node.LockedBy = ""
		}
		session.Node.mu.Unlock()
		s.Locks.Remove(session.Filename, user, session.Node)
	}
}

// UndoFile restores the most recent undo snapshot, clearing the slot
// after use.
func (s *Store) UndoFile(filename string) error {
	const op = errors.Op("UndoFile")
	fs, err := s.getOrLoad(filename)
	if err != nil {
		return err
	}
	fs.mu.Lock()
	if fs.UndoText == nil {
		fs.mu.Unlock()
		return errors.E(op, errors.Path(filename), errors.UndoNotAvailable)
	}
	text := *fs.UndoText
	fs.Nodes = ParseSentences(text)
	fs.UndoText = nil
	fs.Modified = time.Now()
	fs.mu.Unlock()

	if err := s.persist(filename, fs); err != nil {
		return errors.E(op, errors.Path(filename), errors.FileOperationFailed, err)
	}
	return nil
}

// CreateCheckpoint copies the current body into a new checkpoint named
// tag. Only the body is stored; owner, timestamps and edit stats are not
// copied into the checkpoint.
func (s *Store) CreateCheckpoint(filename, tag string) error {
	const op = errors.Op("CreateCheckpoint")
	fs, err := s.getOrLoad(filename)
	if err != nil {
		return err
	}
	if _, exists, _ := readFileIfExists(s.checkpointPath(filename, tag)); exists {
		return errors.E(op, errors.Path(filename), errors.CheckpointExists)
	}
	fs.mu.RLock()
	body := Serialize(fs.Nodes)
	fs.mu.RUnlock()
	if err := atomicWrite(s.checkpointPath(filename, tag), []byte(body)); err != nil {
		return errors.E(op, errors.Path(filename), errors.FileOperationFailed, err)
	}
	return nil
}

// ViewCheckpoint implements the read half of checkpoint viewing.
func (s *Store) ViewCheckpoint(filename, tag string) (string, error) {
	data, exists, err := readFileIfExists(s.checkpointPath(filename, tag))
	if err != nil {
		return "", errors.E(errors.Op("ViewCheckpoint"), errors.Path(filename), errors.FileOperationFailed, err)
	}
	if !exists {
		return "", errors.E(errors.Op("ViewCheckpoint"), errors.Path(filename), errors.CheckpointNotFound)
	}
	return string(data), nil
}

// RevertFile restores a checkpoint: saves an undo snapshot of
// the current body first, then replaces it with the checkpoint's.
func (s *Store) RevertFile(filename, tag string) error {
	const op = errors.Op("RevertFile")
	text, err := s.ViewCheckpoint(filename, tag)
	if err != nil {
		return err
	}
	fs, err := s.getOrLoad(filename)
	if err != nil {
		return err
	}
	fs.mu.Lock()
	current := Serialize(fs.Nodes)
	fs.UndoText = &current
	fs.Nodes = ParseSentences(text)
	fs.Modified = time.Now()
	fs.mu.Unlock()

	if err := s.persist(filename, fs); err != nil {
		return errors.E(op, errors.Path(filename), errors.FileOperationFailed, err)
	}
	return nil
}

// ListCheckpoints implements list_checkpoints: every tag with a sidecar
// file for filename.
func (s *Store) ListCheckpoints(filename string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.E(errors.Op("ListCheckpoints"), errors.Path(filename), errors.FileOperationFailed, err)
	}
	prefix := filename + ".checkpoint."
	var tags []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), prefix) {
			tags = append(tags, strings.TrimPrefix(e.Name(), prefix))
		}
	}
	return tags, nil
}

// MoveFile implements the SS side of MOVE. This storage server lays files
// out flat by basename, so a move between folders leaves the on-disk name
// as it is: MoveFile only checks that filename exists here and changes
// nothing on disk or in memory.
func (s *Store) MoveFile(filename string) error {
	if _, err := s.getOrLoad(filename); err != nil {
		return err
	}
	return nil
}

// Filenames lists every file this store knows about, on disk or loaded,
// for the SYNC digest.
func (s *Store) Filenames() ([]string, error) {
	s.mu.Lock()
	seen := make(map[string]bool, len(s.files))
	names := make([]string, 0, len(s.files))
	for name := range s.files {
		seen[name] = true
		names = append(names, name)
	}
	s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.E(errors.Op("Filenames"), errors.FileOperationFailed, err)
	}
	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, ".meta") || strings.HasSuffix(name, ".undo") ||
			strings.HasSuffix(name, ".stats") || strings.Contains(name, ".checkpoint.") ||
			strings.HasPrefix(name, ".tmp-") {
			continue
		}
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names, nil
}

// Digest reports owner, modified-time and size for filename, used to
// decide a SYNC winner between two replicas of the same file
// (timestamp wins).
func (s *Store) Digest(filename string) (owner string, modified time.Time, size int, err error) {
	fs, err := s.getOrLoad(filename)
	if err != nil {
		return "", time.Time{}, 0, err
	}
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.Owner, fs.Modified, CharCount(fs.Nodes), nil
}

// ImportFile installs body as filename's content with an explicit owner
// and modified time, overwriting whatever is there. Used exclusively by
// the SYNC puller to adopt a peer's newer copy of a file;
// ordinary client writes never set Modified directly.
func (s *Store) ImportFile(filename, owner, body string, modified time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fs, exists := s.files[filename]
	if !exists {
		fs = &FileState{Owner: owner, Created: modified, Stats: make(map[string]int)}
		s.files[filename] = fs
	}
	fs.mu.Lock()
	fs.Nodes = ParseSentences(body)
	fs.Modified = modified
	if owner != "" {
		fs.Owner = owner
	}
	fs.mu.Unlock()
	return s.persistLocked(filename, fs)
}
