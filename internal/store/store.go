// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/parley-tui/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotFound indicates no conversation matches the given ID or
	// token.
	ErrNotFound = errors.New("conversation not found")

	// ErrIDConflict indicates a commit tried to change an already
	// assigned conversation ID, or to assign an ID another
	// conversation already holds.
	ErrIDConflict = errors.New("conversation ID conflict")
)

// =============================================================================
// STORE
// =============================================================================

// Store is the in-memory conversation list. All methods are safe for
// concurrent use.
type Store struct {
	mu      sync.Mutex
	convs   []*model.Conversation
	buckets map[model.Bucket][]*model.Conversation
	current *model.Conversation

	// now is replaceable for tests.
	now func() time.Time
}

// New creates an empty store.
func New() *Store {
	s := &Store{now: time.Now}
	s.resortLocked()
	return s
}

// WithClock overrides the store's clock. Used by tests to pin bucket
// boundaries.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	s.resortLocked()
	return s
}

// =============================================================================
// CREATION AND BOOTSTRAP
// =============================================================================

// Create adds a new unconfirmed conversation, makes it current, and
// returns it.
func (s *Store) Create() *model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := model.NewLocal()
	conv.Timestamp = model.FormatTimestamp(s.now())
	s.convs = append(s.convs, conv)
	s.current = conv
	s.resortLocked()
	return conv
}

// Bootstrap replaces all confirmed conversations with the given list,
// typically fetched from the service at startup. Unconfirmed local
// conversations survive a bootstrap.
func (s *Store) Bootstrap(convs []*model.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept []*model.Conversation
	for _, c := range s.convs {
		if !c.Confirmed() {
			kept = append(kept, c)
		}
	}
	// Fetched conversations arrive without correlation tokens; assign
	// one so every entry has a stable local handle.
	for _, c := range convs {
		if c.Token == "" {
			c.Token = uuid.NewString()
		}
	}
	s.convs = append(kept, convs...)

	if s.current != nil && !s.containsLocked(s.current) {
		s.current = nil
	}
	s.resortLocked()
}

func (s *Store) containsLocked(conv *model.Conversation) bool {
	for _, c := range s.convs {
		if c == conv {
			return true
		}
	}
	return false
}

// =============================================================================
// LOOKUP
// =============================================================================

// Get returns the conversation with the given service ID.
func (s *Store) Get(id int) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(id)
}

func (s *Store) getLocked(id int) (*model.Conversation, error) {
	if id == 0 {
		return nil, ErrNotFound
	}
	for _, c := range s.convs {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, ErrNotFound
}

// GetByToken returns the conversation with the given correlation token.
func (s *Store) GetByToken(token string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getByTokenLocked(token)
}

func (s *Store) getByTokenLocked(token string) (*model.Conversation, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	for _, c := range s.convs {
		if c.Token == token {
			return c, nil
		}
	}
	return nil, ErrNotFound
}

// Current returns the selected conversation, or nil when none is
// selected.
func (s *Store) Current() *model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Select makes the conversation with the given ID current.
func (s *Store) Select(id int) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, err := s.getLocked(id)
	if err != nil {
		return nil, err
	}
	s.current = conv
	return conv, nil
}

// Deselect clears the current conversation.
func (s *Store) Deselect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
}

// Len returns the total number of conversations.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.convs)
}

// Bucket returns the conversations in one recency bucket, newest
// first. The returned slice is a copy; the conversations are shared.
func (s *Store) Bucket(b model.Bucket) []*model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*model.Conversation(nil), s.buckets[b]...)
}

// All returns every conversation in bucket display order.
func (s *Store) All() []*model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Conversation
	for _, b := range model.Buckets {
		out = append(out, s.buckets[b]...)
	}
	return out
}

// =============================================================================
// MUTATION
// =============================================================================

// Rename sets a conversation's title.
func (s *Store) Rename(id int, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, err := s.getLocked(id)
	if err != nil {
		return err
	}
	conv.Title = title
	s.resortLocked()
	return nil
}

// Remove deletes the conversation with the given ID.
func (s *Store) Remove(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, err := s.getLocked(id)
	if err != nil {
		return err
	}
	return s.removeLocked(conv)
}

// RemoveByToken deletes the conversation with the given correlation
// token.
func (s *Store) RemoveByToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, err := s.getByTokenLocked(token)
	if err != nil {
		return err
	}
	return s.removeLocked(conv)
}

func (s *Store) removeLocked(conv *model.Conversation) error {
	for i, c := range s.convs {
		if c == conv {
			s.convs = append(s.convs[:i], s.convs[i+1:]...)
			if s.current == conv {
				s.current = nil
			}
			s.resortLocked()
			return nil
		}
	}
	return ErrNotFound
}

// =============================================================================
// COMMIT
// =============================================================================

// Commit records a completed exchange on the conversation identified by
// token. For an unconfirmed conversation the service-assigned serial is
// adopted in a single in-place rewrite; the conversation keeps its
// position in the list and no duplicate is created. Once assigned, the
// ID is immutable: a commit carrying a different serial fails with
// ErrIDConflict.
//
// Commit is idempotent with respect to the bot reply: if the transcript
// already ends with an identical exchange, the prior copy is replaced
// rather than appended again.
func (s *Store) Commit(token string, user, bot model.Turn, serial int, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, err := s.getByTokenLocked(token)
	if err != nil {
		return err
	}

	if serial != 0 {
		if conv.Confirmed() && conv.ID != serial {
			return ErrIDConflict
		}
		if !conv.Confirmed() {
			if other, err := s.getLocked(serial); err == nil && other != conv {
				return ErrIDConflict
			}
			conv.ID = serial
		}
	}
	if title != "" && conv.Title == "" {
		conv.Title = title
	}

	s.dropDuplicateExchangeLocked(conv, user, bot)
	conv.AppendTurn(user)
	conv.AppendTurn(bot)
	conv.Timestamp = model.FormatTimestamp(s.now())
	s.resortLocked()
	return nil
}

// dropDuplicateExchangeLocked removes a previously committed copy of
// the same exchange: a bot turn with identical text, together with the
// identical user turn immediately before it.
func (s *Store) dropDuplicateExchangeLocked(conv *model.Conversation, user, bot model.Turn) {
	for i := len(conv.Turns) - 1; i >= 0; i-- {
		if !conv.Turns[i].IsBot() || !conv.Turns[i].Equal(bot) {
			continue
		}
		start := i
		if i > 0 && conv.Turns[i-1].IsUser() && conv.Turns[i-1].Equal(user) {
			start = i - 1
		}
		conv.Turns = append(conv.Turns[:start], conv.Turns[i+1:]...)
		return
	}
}

// CommitSystem appends a locally generated system turn, such as an
// upload failure notice, to the conversation identified by token.
func (s *Store) CommitSystem(token string, turn model.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, err := s.getByTokenLocked(token)
	if err != nil {
		return err
	}
	conv.AppendTurn(turn)
	s.resortLocked()
	return nil
}

// =============================================================================
// ORDERING
// =============================================================================

// resortLocked rebuilds the recency buckets and sorts each one by ID
// descending with unconfirmed conversations last. Runs after every
// mutation. An unconfirmed conversation stays in today no matter how
// old its timestamp gets; only a confirmed one ages across buckets.
func (s *Store) resortLocked() {
	now := s.now()
	buckets := map[model.Bucket][]*model.Conversation{}
	for _, c := range s.convs {
		b := model.BucketToday
		if c.Confirmed() {
			b = model.BucketFor(c.Timestamp, now)
		}
		buckets[b] = append(buckets[b], c)
	}
	for _, list := range buckets {
		sort.SliceStable(list, func(i, j int) bool {
			a, b := list[i], list[j]
			if (a.ID == 0) != (b.ID == 0) {
				return b.ID == 0
			}
			return a.ID > b.ID
		})
	}
	s.buckets = buckets
}
