// Package access persists per-platform user approval state, shared by
// every channel adapter. Unknown users go to a pending queue until an
// admin approves them.
package access

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const stampLayout = "2006-01-02 15:04 UTC"

// UserInfo holds display fields captured at request time (username,
// first name) plus the approved_at / request_time stamps.
type UserInfo map[string]string

type storeFile struct {
	Telegram map[string]UserInfo            `json:"telegram"`
	Signal   map[string]UserInfo            `json:"signal"`
	Discord  map[string]UserInfo            `json:"discord"`
	Pending  map[string]map[string]UserInfo `json:"pending"`
}

// Store is the approval database backed by approved_users.json. All
// methods are safe for concurrent use; every mutation saves atomically.
type Store struct {
	mu   sync.Mutex
	path string
	data storeFile
}

// Open loads the store from path, creating the file if missing. A
// corrupt file is logged and replaced with an empty store on next save.
func Open(path string) (*Store, error) {
	s := &Store{path: path, data: emptyData()}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if err := s.saveLocked(); err != nil {
			return nil, err
		}
		return s, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(raw, &s.data); err != nil {
		slog.Error("failed to load access store", "path", path, "error", err)
		s.data = emptyData()
		return s, nil
	}
	s.healMissing()

	approved := len(s.data.Telegram) + len(s.data.Signal) + len(s.data.Discord)
	slog.Info(fmt.Sprintf("Loaded access store: %d users", approved))
	return s, nil
}

func emptyData() storeFile {
	return storeFile{
		Telegram: map[string]UserInfo{},
		Signal:   map[string]UserInfo{},
		Discord:  map[string]UserInfo{},
		Pending: map[string]map[string]UserInfo{
			"telegram": {},
			"signal":   {},
			"discord":  {},
		},
	}
}

// healMissing backfills keys a hand-edited file may have dropped.
func (s *Store) healMissing() {
	if s.data.Telegram == nil {
		s.data.Telegram = map[string]UserInfo{}
	}
	if s.data.Signal == nil {
		s.data.Signal = map[string]UserInfo{}
	}
	if s.data.Discord == nil {
		s.data.Discord = map[string]UserInfo{}
	}
	if s.data.Pending == nil {
		s.data.Pending = map[string]map[string]UserInfo{}
	}
	for _, platform := range []string{"telegram", "signal", "discord"} {
		if s.data.Pending[platform] == nil {
			s.data.Pending[platform] = map[string]UserInfo{}
		}
	}
}

func (s *Store) approvedMap(platform string) map[string]UserInfo {
	switch platform {
	case "telegram":
		return s.data.Telegram
	case "signal":
		return s.data.Signal
	case "discord":
		return s.data.Discord
	}
	return nil
}

// saveLocked writes atomically via temp file + rename. Callers hold mu.
func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "access-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	tmp.Close()

	if err := os.Rename(tmpPath, s.path); err != nil {
		return err
	}
	cleanup = false
	return nil
}

// IsApproved reports whether the user may talk to the agent.
func (s *Store) IsApproved(platform, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.approvedMap(platform)[userID]
	return ok
}

// Approved returns a copy of the platform's approved users.
func (s *Store) Approved(platform string) map[string]UserInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]UserInfo{}
	for uid, info := range s.approvedMap(platform) {
		out[uid] = info
	}
	return out
}

// IsPending reports whether the user already has an approval request.
func (s *Store) IsPending(platform, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data.Pending[platform][userID]
	return ok
}

// ListPending returns a copy of the platform's pending requests.
func (s *Store) ListPending(platform string) map[string]UserInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]UserInfo{}
	for uid, info := range s.data.Pending[platform] {
		out[uid] = info
	}
	return out
}

// Approve moves a user to the approved set, stamping approved_at. A nil
// info adopts whatever the pending request carried.
func (s *Store) Approve(platform, userID string, info UserInfo) error {
	s.mu.Lock()
	approved := s.approvedMap(platform)
	if approved == nil {
		s.mu.Unlock()
		return fmt.Errorf("unknown platform %q", platform)
	}

	if info == nil {
		info = s.data.Pending[platform][userID]
		if info == nil {
			info = UserInfo{}
		}
	}
	delete(s.data.Pending[platform], userID)

	info["approved_at"] = time.Now().UTC().Format(stampLayout)
	approved[userID] = info
	err := s.saveLocked()
	s.mu.Unlock()

	if err != nil {
		return err
	}
	slog.Info(fmt.Sprintf("Approved %s user %s", platform, userID))
	return nil
}

// Revoke removes a user from the approved set. Returns true if the
// user was present.
func (s *Store) Revoke(platform, userID string) bool {
	s.mu.Lock()
	approved := s.approvedMap(platform)
	_, existed := approved[userID]
	delete(approved, userID)
	s.saveLocked()
	s.mu.Unlock()

	if existed {
		slog.Info(fmt.Sprintf("Revoked %s user %s", platform, userID))
	}
	return existed
}

// AddPending records an approval request, stamping request_time.
func (s *Store) AddPending(platform, userID string, info UserInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := s.data.Pending[platform]
	if pending == nil {
		return fmt.Errorf("unknown platform %q", platform)
	}

	if info == nil {
		info = UserInfo{}
	}
	info["request_time"] = time.Now().UTC().Format(stampLayout)
	pending[userID] = info
	return s.saveLocked()
}

// RemovePending drops an approval request without approving it.
func (s *Store) RemovePending(platform, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data.Pending[platform], userID)
	s.saveLocked()
}
