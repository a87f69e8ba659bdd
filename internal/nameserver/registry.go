// Package nameserver implements the directory and ACL authority of the
// system: the file/folder registry, the path index, the storage-server
// roster, and the request dispatcher that clients and storage servers
// talk to: a single lock-protected in-memory registry, an index that
// avoids linear scans on the common path, and explicit persistence on
// every mutation.
package nameserver

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"scribe.io/errors"
	"scribe.io/internal/access"
	"scribe.io/internal/config"
	"scribe.io/internal/pathutil"
)

// FileEntry is one registered file.
type FileEntry struct {
	Filename   string
	FolderPath string
	Owner      string
	SSID       int
	Created    time.Time
	Modified   time.Time
	Accessed   time.Time
	Size       int
	Words      int
	Chars      int
	ACL        *access.List
}

// Key returns the trie/LRU lookup key for this entry.
func (f *FileEntry) Key() string { return pathutil.Key(f.FolderPath, f.Filename) }

// FolderEntry is one registered folder.
type FolderEntry struct {
	FolderName string // full path, "/"-separated
	Owner      string
	Created    time.Time
	Modified   time.Time
	ParentIdx  int
	ACL        *access.List
}

// AccessRequest is a pending access grant request. At most one is live
// per (Filename, Requester).
type AccessRequest struct {
	Filename       string
	Requester      string
	RequestTime    time.Time
	ReadRequested  bool
	WriteRequested bool
}

// StorageServerEntry is one registered storage server.
type StorageServerEntry struct {
	ServerID      int
	IP            string
	NMPort        int
	ClientPort    int
	IsActive      bool
	LastHeartbeat time.Time
	ReplicaID     int // 0 means "none known"
}

// PairID returns the server ID this entry should pair with: N pairs
// with N+1 if N is odd, else N-1.
func PairID(id int) int {
	if id%2 == 1 {
		return id + 1
	}
	return id - 1
}

// ClientSession tracks a connected client.
type ClientSession struct {
	Username    string
	Connected   bool
	ConnectedAt time.Time
	SessionID   string // correlation id for log lines spanning this connection
}

// Registry is the NM's single in-memory store. One mutex protects files,
// folders, the storage-server roster, client sessions and the request
// queue together; the LRU cache carries its own mutex.
type Registry struct {
	mu sync.Mutex

	files   []FileEntry
	folders []FolderEntry
	servers map[int]*StorageServerEntry
	clients map[string]*ClientSession
	reqs    []AccessRequest

	trie *trie
	lru  *cachedIndex

	ssCursor int // round-robin cursor over servers, process-wide

	tuning      config.Tuning
	persistPath string
}

// NewRegistry returns an empty Registry configured with t and persisting
// to persistPath on every mutation (persistPath == "" disables writes).
func NewRegistry(t config.Tuning, persistPath string) *Registry {
	return &Registry{
		servers:     make(map[int]*StorageServerEntry),
		clients:     make(map[string]*ClientSession),
		trie:        newTrie(),
		lru:         newCachedIndex(t.LRUCacheSize),
		tuning:      t,
		persistPath: persistPath,
	}
}

// RegisterFile records a new file and indexes its path.
func (r *Registry) RegisterFile(filename, folderPath, owner string, ssID int) (*FileEntry, error) {
	const op = errors.Op("RegisterFile")
	r.mu.Lock()
	defer r.mu.Unlock()

	folderPath = pathutil.Clean(folderPath)
	if folderPath != pathutil.Separator {
		if _, ok := r.findFolderLocked(folderPath); !ok {
			return nil, errors.E(op, errors.Path(folderPath), errors.FolderNotFound)
		}
	}
	key := pathutil.Key(folderPath, filename)
	if _, ok := r.findLocked(key); ok {
		return nil, errors.E(op, errors.Path(filename), errors.FileExists)
	}
	if len(r.files) >= r.tuning.MaxFiles {
		return nil, errors.E(op, errors.Path(filename), errors.FileOperationFailed,
			errors.Str("file registry at capacity"))
	}

	now := r.now()
	entry := FileEntry{
		Filename:   filename,
		FolderPath: folderPath,
		Owner:      owner,
		SSID:       ssID,
		Created:    now,
		Modified:   now,
		Accessed:   now,
		ACL:        access.NewList(owner),
	}
	r.files = append(r.files, entry)
	idx := len(r.files) - 1
	r.trie.insert(key, idx)
	r.lru.add(key, idx)
	r.persistLocked()
	return &r.files[idx], nil
}

// FindFile is the three-tier lookup: LRU, then trie, then a linear scan
// fallback that backfills both caches on a hit and freshens LRU ordering
// on any hit.
func (r *Registry) FindFile(folderPath, filename string) (*FileEntry, error) {
	const op = errors.Op("FindFile")
	r.mu.Lock()
	defer r.mu.Unlock()

	key := pathutil.Key(folderPath, filename)
	idx, ok := r.findLocked(key)
	if !ok {
		return nil, errors.E(op, errors.Path(filename), errors.FileNotFound)
	}
	return &r.files[idx], nil
}

// findLocked performs the LRU -> trie -> linear-scan lookup. Callers must
// hold r.mu.
func (r *Registry) findLocked(key string) (int, bool) {
	if idx, ok := r.lru.get(key); ok {
		if idx >= 0 && idx < len(r.files) && r.files[idx].Key() == key {
			return idx, true
		}
		// Stale LRU entry: the trie is authoritative, so fall through.
	}
	if idx, ok := r.trie.find(key); ok {
		r.lru.add(key, idx)
		return idx, true
	}
	for i := range r.files {
		if r.files[i].Key() == key {
			r.trie.insert(key, i)
			r.lru.add(key, i)
			return i, true
		}
	}
	return 0, false
}

// DeleteFile removes a file from the registry. Caller is responsible
// for the owner check (the dispatcher enforces it before calling, since
// the error must carry the dispatcher's Op name).
func (r *Registry) DeleteFile(folderPath, filename string) error {
	const op = errors.Op("DeleteFile")
	r.mu.Lock()
	defer r.mu.Unlock()

	key := pathutil.Key(folderPath, filename)
	idx, ok := r.findLocked(key)
	if !ok {
		return errors.E(op, errors.Path(filename), errors.FileNotFound)
	}

	r.trie.delete(key)
	r.lru.remove(key)
	r.files = append(r.files[:idx], r.files[idx+1:]...)
	// Every entry after idx shifted down by one; reindex the trie/LRU
	// entries that still point past it.
	for i := idx; i < len(r.files); i++ {
		r.trie.reindex(r.files[i].Key(), i)
		r.lru.reindexIfPresent(r.files[i].Key(), i)
	}
	r.persistLocked()
	return nil
}

// CheckPermission reports whether user may read (or write, if needWrite)
// the file. Owners pass unconditionally.
func (r *Registry) CheckPermission(folderPath, filename, user string, needWrite bool) error {
	const op = errors.Op("CheckPermission")
	r.mu.Lock()
	defer r.mu.Unlock()

	key := pathutil.Key(folderPath, filename)
	idx, ok := r.findLocked(key)
	if !ok {
		return errors.E(op, errors.Path(filename), errors.FileNotFound)
	}
	return access.Check(r.files[idx].ACL, user, true, needWrite)
}

// AddAccess upserts an ACL grant on the file.
func (r *Registry) AddAccess(folderPath, filename, user string, read, write bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := pathutil.Key(folderPath, filename)
	idx, ok := r.findLocked(key)
	if !ok {
		return errors.E(errors.Op("AddAccess"), errors.Path(filename), errors.FileNotFound)
	}
	r.files[idx].ACL.Grant(user, read, write)
	r.persistLocked()
	return nil
}

// RemoveAccess drops a user's ACL grant. The owner cannot be removed.
func (r *Registry) RemoveAccess(folderPath, filename, user string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := pathutil.Key(folderPath, filename)
	idx, ok := r.findLocked(key)
	if !ok {
		return errors.E(errors.Op("RemoveAccess"), errors.Path(filename), errors.FileNotFound)
	}
	if err := r.files[idx].ACL.Revoke(user); err != nil {
		return err
	}
	r.persistLocked()
	return nil
}

// CreateFolder registers a folder; a nested folder requires its parent
// to exist.
func (r *Registry) CreateFolder(folderName, owner string) (*FolderEntry, error) {
	const op = errors.Op("CreateFolder")
	r.mu.Lock()
	defer r.mu.Unlock()

	folderName = pathutil.Clean(folderName)
	if _, ok := r.findFolderLocked(folderName); ok {
		return nil, errors.E(op, errors.Path(folderName), errors.FolderExists)
	}
	parentIdx := -1
	if parent := pathutil.Parent(folderName); parent != pathutil.Separator {
		idx, ok := r.findFolderLocked(parent)
		if !ok {
			return nil, errors.E(op, errors.Path(parent), errors.FolderNotFound)
		}
		parentIdx = idx
	}
	if len(r.folders) >= r.tuning.MaxFolders {
		return nil, errors.E(op, errors.Path(folderName), errors.FileOperationFailed,
			errors.Str("folder registry at capacity"))
	}
	now := r.now()
	entry := FolderEntry{
		FolderName: folderName,
		Owner:      owner,
		Created:    now,
		Modified:   now,
		ParentIdx:  parentIdx,
		ACL:        access.NewList(owner),
	}
	r.folders = append(r.folders, entry)
	r.persistLocked()
	return &r.folders[len(r.folders)-1], nil
}

func (r *Registry) findFolderLocked(folderName string) (int, bool) {
	folderName = pathutil.Clean(folderName)
	if folderName == pathutil.Separator {
		return -1, true // root always exists, has no entry
	}
	for i := range r.folders {
		if r.folders[i].FolderName == folderName {
			return i, true
		}
	}
	return 0, false
}

// ListFolderContents enumerates a folder's direct children.
func (r *Registry) ListFolderContents(folderPath, user string) ([]string, []string, error) {
	const op = errors.Op("ListFolderContents")
	r.mu.Lock()
	defer r.mu.Unlock()

	folderPath = pathutil.Clean(folderPath)
	if folderPath != pathutil.Separator {
		idx, ok := r.findFolderLocked(folderPath)
		if !ok {
			return nil, nil, errors.E(op, errors.Path(folderPath), errors.FolderNotFound)
		}
		if err := access.Check(r.folders[idx].ACL, user, true, false); err != nil {
			return nil, nil, err
		}
	}

	var childFolders []string
	prefix := folderPath
	if prefix != pathutil.Separator {
		prefix += pathutil.Separator
	}
	for _, f := range r.folders {
		if f.FolderName == folderPath {
			continue
		}
		rest := f.FolderName
		if prefix != pathutil.Separator {
			if len(rest) <= len(prefix) || rest[:len(prefix)] != prefix {
				continue
			}
			rest = rest[len(prefix):]
		} else {
			rest = rest[1:]
		}
		if rest == "" || indexOfSlash(rest) >= 0 {
			continue
		}
		childFolders = append(childFolders, f.FolderName)
	}

	var childFiles []string
	for _, f := range r.files {
		if f.FolderPath == folderPath {
			childFiles = append(childFiles, f.Filename)
		}
	}
	return childFolders, childFiles, nil
}

func indexOfSlash(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			return i
		}
	}
	return -1
}

// MoveFile relocates a file to another folder, reindexing its path.
func (r *Registry) MoveFile(oldFolderPath, filename, newFolderPath string) (*FileEntry, error) {
	const op = errors.Op("MoveFile")
	r.mu.Lock()
	defer r.mu.Unlock()

	newFolderPath = pathutil.Clean(newFolderPath)
	if newFolderPath != pathutil.Separator {
		if _, ok := r.findFolderLocked(newFolderPath); !ok {
			return nil, errors.E(op, errors.Path(newFolderPath), errors.FolderNotFound)
		}
	}
	oldKey := pathutil.Key(oldFolderPath, filename)
	idx, ok := r.findLocked(oldKey)
	if !ok {
		return nil, errors.E(op, errors.Path(filename), errors.FileNotFound)
	}
	newKey := pathutil.Key(newFolderPath, filename)
	if _, exists := r.findLocked(newKey); exists {
		return nil, errors.E(op, errors.Path(filename), errors.FileExists)
	}

	r.trie.delete(oldKey)
	r.lru.remove(oldKey)
	r.files[idx].FolderPath = newFolderPath
	r.files[idx].Modified = r.now()
	r.trie.insert(newKey, idx)
	r.lru.add(newKey, idx)
	r.persistLocked()
	return &r.files[idx], nil
}

// RequestAccess enqueues a pending access request: at most one pending
// request per (filename, requester); a repeat updates in place.
func (r *Registry) RequestAccess(folderPath, filename, requester string, read, write bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := pathutil.Key(folderPath, filename)
	if _, ok := r.findLocked(key); !ok {
		return errors.E(errors.Op("RequestAccess"), errors.Path(filename), errors.FileNotFound)
	}
	for i := range r.reqs {
		if r.reqs[i].Filename == filename && r.reqs[i].Requester == requester {
			r.reqs[i].ReadRequested = read
			r.reqs[i].WriteRequested = write
			r.reqs[i].RequestTime = r.now()
			r.persistLocked()
			return nil
		}
	}
	if len(r.reqs) >= r.tuning.MaxPendingAccess {
		return errors.E(errors.Op("RequestAccess"), errors.Path(filename), errors.FileOperationFailed,
			errors.Str("access request queue at capacity"))
	}
	r.reqs = append(r.reqs, AccessRequest{
		Filename: filename, Requester: requester, RequestTime: r.now(),
		ReadRequested: read, WriteRequested: write,
	})
	r.persistLocked()
	return nil
}

// ViewRequests returns all pending requests on files the caller owns.
func (r *Registry) ViewRequests(owner string) []AccessRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []AccessRequest
	for _, req := range r.reqs {
		if idx, ok := r.findByBasenameLocked(req.Filename); ok && r.files[idx].Owner == owner {
			out = append(out, req)
		}
	}
	return out
}

// ApproveRequest grants a pending request: the ACL is upgraded with the
// exact (read, write) originally asked for.
func (r *Registry) ApproveRequest(owner, filename, requester string) error {
	const op = errors.Op("ApproveRequest")
	r.mu.Lock()
	defer r.mu.Unlock()

	i, req, ok := r.findRequestLocked(filename, requester)
	if !ok {
		return errors.E(op, errors.Path(filename), errors.RequestNotFound)
	}
	idx, ok := r.findByBasenameLocked(filename)
	if !ok {
		return errors.E(op, errors.Path(filename), errors.FileNotFound)
	}
	if r.files[idx].Owner != owner {
		return errors.E(op, errors.User(owner), errors.NotOwner)
	}
	r.files[idx].ACL.Grant(req.Requester, req.ReadRequested, req.WriteRequested)
	r.reqs = append(r.reqs[:i], r.reqs[i+1:]...)
	r.persistLocked()
	return nil
}

// DenyRequest removes the pending entry without touching the ACL.
func (r *Registry) DenyRequest(owner, filename, requester string) error {
	const op = errors.Op("DenyRequest")
	r.mu.Lock()
	defer r.mu.Unlock()

	i, _, ok := r.findRequestLocked(filename, requester)
	if !ok {
		return errors.E(op, errors.Path(filename), errors.RequestNotFound)
	}
	idx, ok := r.findByBasenameLocked(filename)
	if ok && r.files[idx].Owner != owner {
		return errors.E(op, errors.User(owner), errors.NotOwner)
	}
	r.reqs = append(r.reqs[:i], r.reqs[i+1:]...)
	r.persistLocked()
	return nil
}

// findByBasenameLocked resolves a bare filename by linear scan; access
// requests carry no folder path, so this is their only lookup route.
func (r *Registry) findByBasenameLocked(filename string) (int, bool) {
	for i := range r.files {
		if r.files[i].Filename == filename {
			return i, true
		}
	}
	return 0, false
}

func (r *Registry) findRequestLocked(filename, requester string) (int, AccessRequest, bool) {
	for i, req := range r.reqs {
		if req.Filename == filename && req.Requester == requester {
			return i, req, true
		}
	}
	return 0, AccessRequest{}, false
}

// RegisterStorageServer records a storage server in the roster.
// Pairing is reciprocal: if the partner ID is already registered
// it is wired to point back immediately.
func (r *Registry) RegisterStorageServer(id int, ip string, nmPort, clientPort int) (*StorageServerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.servers[id]; exists {
		return nil, errors.E(errors.Op("RegisterStorageServer"), errors.SSExists)
	}
	if len(r.servers) >= r.tuning.MaxStorageServers {
		return nil, errors.E(errors.Op("RegisterStorageServer"), errors.FileOperationFailed,
			errors.Str("storage server roster at capacity"))
	}
	entry := &StorageServerEntry{
		ServerID: id, IP: ip, NMPort: nmPort, ClientPort: clientPort,
		IsActive: true, LastHeartbeat: r.now(), ReplicaID: PairID(id),
	}
	r.servers[id] = entry
	if peer, ok := r.servers[entry.ReplicaID]; ok {
		peer.ReplicaID = id
	}
	return entry, nil
}

// Heartbeat refreshes a server's liveness timestamp, reactivating it if
// it was marked down. It returns the replica entry if the partner is
// known and active, matching the dispatcher's "REPLICA <ip> <port>" reply.
func (r *Registry) Heartbeat(id int) (replica *StorageServerEntry, wasRecovered bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.servers[id]
	if !ok {
		return nil, false, errors.E(errors.Op("Heartbeat"), errors.UserNotFound, errors.Str("unknown storage server"))
	}
	wasRecovered = !s.IsActive
	s.IsActive = true
	s.LastHeartbeat = r.now()
	if peer, ok := r.servers[s.ReplicaID]; ok && peer.IsActive {
		replica = peer
	}
	return replica, wasRecovered, nil
}

// MonitorHeartbeats is one monitor sweep: any active server silent for
// longer than timeout flips inactive. It returns the IDs flipped this
// sweep, for the caller to log.
func (r *Registry) MonitorHeartbeats(timeout time.Duration) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var flipped []int
	now := r.now()
	for id, s := range r.servers {
		if s.IsActive && now.Sub(s.LastHeartbeat) > timeout {
			s.IsActive = false
			flipped = append(flipped, id)
		}
	}
	return flipped
}

// RouteStorageServer resolves the server responsible for ssID, failing
// over to its replica when the primary is inactive.
func (r *Registry) RouteStorageServer(ssID int) (*StorageServerEntry, error) {
	const op = errors.Op("RouteStorageServer")
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.servers[ssID]
	if !ok {
		return nil, errors.E(op, errors.SSUnavailable)
	}
	if s.IsActive {
		return s, nil
	}
	if peer, ok := r.servers[s.ReplicaID]; ok && peer.IsActive {
		return peer, nil
	}
	return nil, errors.E(op, errors.SSUnavailable)
}

// NextStorageServer advances the round-robin selection cursor, skipping
// inactive servers. Returns ok=false if no server is active.
func (r *Registry) NextStorageServer() (id int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.servers) == 0 {
		return 0, false
	}
	ids := make([]int, 0, len(r.servers))
	for id := range r.servers {
		ids = append(ids, id)
	}
	sortInts(ids)
	for i := 0; i < len(ids); i++ {
		r.ssCursor = (r.ssCursor + 1) % len(ids)
		candidate := r.servers[ids[r.ssCursor]]
		if candidate.IsActive {
			return candidate.ServerID, true
		}
	}
	return 0, false
}

func sortInts(s []int) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// ConnectClient binds a username to a live session, returning a fresh
// session id for correlating this connection's log lines across the
// lifetime of the session (generated rather than derived from the
// username since a username can reconnect many times).
func (r *Registry) ConnectClient(username string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.clients[username]; ok && s.Connected {
		return "", errors.E(errors.Op("ConnectClient"), errors.User(username), errors.UsernameTaken)
	}
	if len(r.clients) >= r.tuning.MaxClients {
		if _, ok := r.clients[username]; !ok {
			return "", errors.E(errors.Op("ConnectClient"), errors.FileOperationFailed,
				errors.Str("client slot table at capacity"))
		}
	}
	sid := uuid.New().String()
	r.clients[username] = &ClientSession{Username: username, Connected: true, ConnectedAt: r.now(), SessionID: sid}
	return sid, nil
}

// DisconnectClient marks a client session closed.
func (r *Registry) DisconnectClient(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.clients[username]; ok {
		s.Connected = false
	}
}

// ListClients returns the currently-connected client usernames.
func (r *Registry) ListClients() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for name, s := range r.clients {
		if s.Connected {
			out = append(out, name)
		}
	}
	return out
}

// FilesVisibleTo returns every file the user owns or has read access to,
// excluding dotfiles unless all is set.
func (r *Registry) FilesVisibleTo(user string, all bool) []FileEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []FileEntry
	for _, f := range r.files {
		if !all && len(f.Filename) > 0 && f.Filename[0] == '.' {
			continue
		}
		if f.ACL.CanRead(user) {
			out = append(out, f)
		}
	}
	return out
}

// UpdateCachedCounts writes back live counts fetched from a storage
// server (the VIEW -l / INFO "refresh cached counts" behavior).
func (r *Registry) UpdateCachedCounts(folderPath, filename string, size, words, chars int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := pathutil.Key(folderPath, filename)
	if idx, ok := r.findLocked(key); ok {
		r.files[idx].Size = size
		r.files[idx].Words = words
		r.files[idx].Chars = chars
		r.files[idx].Accessed = r.now()
	}
}

func (r *Registry) now() time.Time { return time.Now() }

func (r *Registry) persistLocked() {
	if r.persistPath == "" {
		return
	}
	if err := save(r.persistPath, r.files, r.folders, r.reqs); err != nil {
		// Persistence failures are logged and swallowed: in-memory
		// state stays authoritative until the next successful write,
		// a known durability gap.
		logPersistFailure(err)
	}
}
