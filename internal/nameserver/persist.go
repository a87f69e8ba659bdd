package nameserver

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"scribe.io/internal/access"
	"scribe.io/log"
)

// save serializes the registry to path as one line-oriented file with
// sections files | folders | access_requests. The write is not atomic
// (no write-temp+rename): persistence is not transactional across the
// full blob, and a crash mid-write leaves the next load indeterminate
// beyond the recognized section boundaries.
func save(path string, files []FileEntry, folders []FolderEntry, reqs []AccessRequest) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	fmt.Fprintf(w, "FILES %d\n", len(files))
	for _, fe := range files {
		acl := fe.ACL.Entries()
		fmt.Fprintf(w, "%s|%s|%s|%d|%d|%d|%d|%d|%d|%d|%d\n",
			fe.FolderPath, fe.Filename, fe.Owner, fe.SSID,
			fe.Created.Unix(), fe.Modified.Unix(), fe.Accessed.Unix(),
			fe.Size, fe.Words, fe.Chars, len(acl))
		for _, e := range acl {
			fmt.Fprintf(w, "%s|%s|%s\n", e.User, boolStr(e.Read), boolStr(e.Write))
		}
	}

	fmt.Fprintf(w, "FOLDERS %d\n", len(folders))
	for _, fo := range folders {
		acl := fo.ACL.Entries()
		fmt.Fprintf(w, "%s|%s|%d|%d|%d|%d\n",
			fo.FolderName, fo.Owner, fo.Created.Unix(), fo.Modified.Unix(), fo.ParentIdx, len(acl))
		for _, e := range acl {
			fmt.Fprintf(w, "%s|%s|%s\n", e.User, boolStr(e.Read), boolStr(e.Write))
		}
	}

	fmt.Fprintf(w, "REQUESTS %d\n", len(reqs))
	for _, req := range reqs {
		fmt.Fprintf(w, "%s|%s|%d|%s|%s\n",
			req.Filename, req.Requester, req.RequestTime.Unix(),
			boolStr(req.ReadRequested), boolStr(req.WriteRequested))
	}

	return w.Flush()
}

// load reads back a file written by save. A missing file is not an
// error: a fresh NM starts with empty state. Older files written before
// the folders/requests sections existed load those sections as empty.
func load(path string) (files []FileEntry, folders []FolderEntry, reqs []AccessRequest, err error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil, nil, nil
	}
	if err != nil {
		return nil, nil, nil, err
	}
	lines := strings.Split(string(data), "\n")
	i := 0
	next := func() (string, bool) {
		for i < len(lines) {
			l := lines[i]
			i++
			if l != "" {
				return l, true
			}
		}
		return "", false
	}

	header, ok := next()
	if !ok {
		return nil, nil, nil, nil
	}
	n, ok := sectionCount(header, "FILES")
	if !ok {
		return nil, nil, nil, nil
	}
	for k := 0; k < n; k++ {
		line, ok := next()
		if !ok {
			break
		}
		parts := strings.SplitN(line, "|", 11)
		if len(parts) != 11 {
			continue
		}
		fe := FileEntry{
			FolderPath: parts[0],
			Filename:   parts[1],
			Owner:      parts[2],
			SSID:       atoi(parts[3]),
			Created:    unix(parts[4]),
			Modified:   unix(parts[5]),
			Accessed:   unix(parts[6]),
			Size:       atoi(parts[7]),
			Words:      atoi(parts[8]),
			Chars:      atoi(parts[9]),
			ACL:        access.NewList(parts[2]),
		}
		aclCount := atoi(parts[10])
		for a := 0; a < aclCount; a++ {
			aline, ok := next()
			if !ok {
				break
			}
			ap := strings.SplitN(aline, "|", 3)
			if len(ap) != 3 {
				continue
			}
			fe.ACL.Grant(ap[0], ap[1] == "1", ap[2] == "1")
		}
		files = append(files, fe)
	}

	header, ok = next()
	if !ok {
		return files, nil, nil, nil
	}
	n, ok = sectionCount(header, "FOLDERS")
	if !ok {
		return files, nil, nil, nil
	}
	for k := 0; k < n; k++ {
		line, ok := next()
		if !ok {
			break
		}
		parts := strings.SplitN(line, "|", 6)
		if len(parts) != 6 {
			continue
		}
		fo := FolderEntry{
			FolderName: parts[0],
			Owner:      parts[1],
			Created:    unix(parts[2]),
			Modified:   unix(parts[3]),
			ParentIdx:  atoi(parts[4]),
			ACL:        access.NewList(parts[1]),
		}
		aclCount := atoi(parts[5])
		for a := 0; a < aclCount; a++ {
			aline, ok := next()
			if !ok {
				break
			}
			ap := strings.SplitN(aline, "|", 3)
			if len(ap) != 3 {
				continue
			}
			fo.ACL.Grant(ap[0], ap[1] == "1", ap[2] == "1")
		}
		folders = append(folders, fo)
	}

	header, ok = next()
	if !ok {
		return files, folders, nil, nil
	}
	n, ok = sectionCount(header, "REQUESTS")
	if !ok {
		return files, folders, nil, nil
	}
	for k := 0; k < n; k++ {
		line, ok := next()
		if !ok {
			break
		}
		parts := strings.SplitN(line, "|", 5)
		if len(parts) != 5 {
			continue
		}
		reqs = append(reqs, AccessRequest{
			Filename:       parts[0],
			Requester:      parts[1],
			RequestTime:    unix(parts[2]),
			ReadRequested:  parts[3] == "1",
			WriteRequested: parts[4] == "1",
		})
	}

	return files, folders, reqs, nil
}

// LoadInto rebuilds a Registry's state from persistPath, rebuilding the
// trie from the loaded files.
func (r *Registry) LoadInto(persistPath string) error {
	files, folders, reqs, err := load(persistPath)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files = files
	r.folders = folders
	r.reqs = reqs
	r.trie = newTrie()
	for i, f := range r.files {
		r.trie.insert(f.Key(), i)
	}
	return nil
}

func sectionCount(line, name string) (int, bool) {
	prefix := name + " "
	if !strings.HasPrefix(line, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(line, prefix))
	if err != nil {
		return 0, false
	}
	return n, true
}

func boolStr(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func unix(s string) time.Time {
	n, _ := strconv.ParseInt(s, 10, 64)
	return time.Unix(n, 0)
}

func logPersistFailure(err error) {
	log.Error.Printf("nm_state persist failed: %v", err)
}
