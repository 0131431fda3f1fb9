package wxr

import "github.com/google/uuid"

// Session holds the identifier counters of one export run. IDs are never reused within a
// session and nothing is persisted across sessions.
type Session struct {
	RunID string

	postIDs   map[int]struct{}
	maxPostID int
	authorID  int
	termID    int
	commentID int
}

// NewSession starts a session with empty counters and a fresh run ID.
func NewSession() *Session {
	return &Session{
		RunID:   uuid.NewString(),
		postIDs: make(map[int]struct{}),
	}
}

// ReservePostID claims id if it is positive and not yet taken.
func (s *Session) ReservePostID(id int) bool {
	if id <= 0 {
		return false
	}
	if _, taken := s.postIDs[id]; taken {
		return false
	}
	s.claim(id)
	return true
}

// NextPostID claims the lowest free ID above the highest ID claimed so far.
func (s *Session) NextPostID() int {
	id := s.maxPostID + 1
	for {
		if _, taken := s.postIDs[id]; !taken {
			break
		}
		id++
	}
	s.claim(id)
	return id
}

func (s *Session) claim(id int) {
	s.postIDs[id] = struct{}{}
	if id > s.maxPostID {
		s.maxPostID = id
	}
}

// NextAuthorID returns the next author ID.
func (s *Session) NextAuthorID() int {
	s.authorID++
	return s.authorID
}

// NextTermID returns the next term ID, shared by categories and coauthor terms.
func (s *Session) NextTermID() int {
	s.termID++
	return s.termID
}

// NextCommentID returns the next comment ID.
func (s *Session) NextCommentID() int {
	s.commentID++
	return s.commentID
}
