// Package store implements the flat-file credential lookup, hot
// reloading the backing file with fsnotify whenever an operator edits
// it.
package store

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/amoghe/go-crypt"
	"github.com/fsnotify/fsnotify"
	"golang.org/x/crypto/bcrypt"
)

// Credential is one line of the password file: "user:hash:name:priv".
type Credential struct {
	User        string
	Hash        string
	DefaultName string
	Privilege   int
}

// Store is a hot-reloaded, in-memory index over the credential file.
type Store struct {
	mu      sync.RWMutex
	path    string
	byUser  map[string]Credential
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// Open loads the credential file at path and starts watching it for
// changes. The file need not exist yet (an empty store is valid; only
// the "guest" login, handled above the store, works until it does).
func Open(path string) (*Store, error) {
	s := &Store{path: path, byUser: map[string]Credential{}}
	if err := s.reload(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("store: watcher: %w", err)
	}
	if err := watcher.Add(filepathDir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("store: watch %s: %w", path, err)
	}
	s.watcher = watcher
	s.done = make(chan struct{})
	go s.watchLoop()
	return s, nil
}

func filepathDir(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return "."
	}
	return path[:i]
}

func (s *Store) watchLoop() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, s.path) && event.Name != s.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if err := s.reload(); err != nil {
					log.Printf("store: reload %s: %v", s.path, err)
				} else {
					log.Printf("store: reloaded %s", s.path)
				}
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("store: watch error: %v", err)
		case <-s.done:
			return
		}
	}
}

// Close stops the file watcher.
func (s *Store) Close() error {
	if s.watcher == nil {
		return nil
	}
	close(s.done)
	return s.watcher.Close()
}

func (s *Store) reload() error {
	f, err := os.Open(s.path)
	if err != nil {
		return err
	}
	defer f.Close()

	next := map[string]Credential{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.SplitN(line, ":", 4)
		if len(fields) != 4 {
			continue
		}
		priv, _ := strconv.Atoi(fields[3])
		next[strings.ToLower(fields[0])] = Credential{
			User:        fields[0],
			Hash:        fields[1],
			DefaultName: fields[2],
			Privilege:   priv,
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.byUser = next
	s.mu.Unlock()
	return nil
}

// Lookup finds a credential by account name, case-insensitively.
func (s *Store) Lookup(user string) (Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byUser[strings.ToLower(user)]
	return c, ok
}

// Verify checks password against the stored hash. bcrypt hashes
// (identified by the standard "$2" prefix) are preferred for newly
// provisioned accounts; traditional crypt(3) hashes are supported for
// reading legacy password files.
func Verify(password, hash string) bool {
	if strings.HasPrefix(hash, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
	}
	if len(hash) < 2 {
		return false
	}
	got, err := crypt.Crypt(password, hash[:2])
	if err != nil {
		return false
	}
	return got == hash
}

// HashPassword produces a new bcrypt hash suitable for provisioning
// an account, preferring cost-factor hashing over traditional DES
// crypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
