// Package session persists each user's current interview session and
// resumes in a key-value store.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/mockmate/internal/interview"
	"github.com/kalambet/mockmate/internal/storage"
)

const (
	keyResumes        = "mockmate_resumes"
	keySessions       = "mockmate_sessions"
	keyCurrentSession = "mockmate_current_session"
)

// Store keeps the current session of one user. Resumes and sessions live
// in two JSON maps keyed by id; the current session id lives under its own
// key. Every key carries the user id.
type Store struct {
	kv   storage.KV
	user string

	mu            sync.RWMutex
	current       *interview.Session
	currentResume *interview.ResumeData
}

// Open loads the current session pointer of userID from kv. The
// pointed-to session becomes current only if it is still active.
func Open(ctx context.Context, kv storage.KV, userID string) (*Store, error) {
	s := &Store{kv: kv, user: userID}

	var id string
	if err := s.read(ctx, s.key(keyCurrentSession), &id); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		return s, nil
	}

	sessions, err := s.sessions(ctx)
	if err != nil {
		return nil, err
	}
	sess, ok := sessions[id]
	if !ok || sess.Status != interview.StatusActive {
		return s, nil
	}
	s.current = sess

	resumes, err := s.resumes(ctx)
	if err != nil {
		return nil, err
	}
	if r, ok := resumes[sess.ResumeID]; ok {
		s.currentResume = r
	}
	return s, nil
}

// Create builds a new active session at the first question. It is not
// persisted until Save.
func (s *Store) Create(resume interview.ResumeData, questions []interview.InterviewQuestion, mode string) *interview.Session {
	qs := make([]interview.InterviewQuestion, len(questions))
	copy(qs, questions)
	return &interview.Session{
		ID:                   uuid.NewString(),
		ResumeID:             resume.ID,
		Questions:            qs,
		CurrentQuestionIndex: 0,
		Messages:             []interview.ChatMessage{},
		Answers:              []interview.AnswerRecord{},
		Mode:                 mode,
		CreatedAt:            time.Now().UTC(),
		Status:               interview.StatusActive,
	}
}

// Get returns a copy of the current session, or nil.
func (s *Store) Get() *interview.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Save upserts sess and makes it current.
func (s *Store) Save(ctx context.Context, sess *interview.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.sessions(ctx)
	if err != nil {
		return err
	}
	sessions[sess.ID] = sess
	if err := s.write(ctx, s.key(keySessions), sessions); err != nil {
		return err
	}
	if err := s.write(ctx, s.key(keyCurrentSession), sess.ID); err != nil {
		return err
	}
	s.current = sess.Clone()
	return nil
}

// Clear forgets the current session. The session itself stays in the
// sessions map.
func (s *Store) Clear(ctx context.Context, keepResume bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Delete(ctx, s.key(keyCurrentSession)); err != nil {
		return fmt.Errorf("clearing current session: %w", err)
	}
	s.current = nil
	if !keepResume {
		s.currentResume = nil
	}
	return nil
}

// SaveResume stores r and makes it the current resume.
func (s *Store) SaveResume(ctx context.Context, r interview.ResumeData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	resumes, err := s.resumes(ctx)
	if err != nil {
		return err
	}
	resumes[r.ID] = &r
	if err := s.write(ctx, s.key(keyResumes), resumes); err != nil {
		return err
	}
	cp := r
	s.currentResume = &cp
	return nil
}

// Resume returns the stored resume with id, or nil if there is none.
func (s *Store) Resume(ctx context.Context, id string) (*interview.ResumeData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resumes, err := s.resumes(ctx)
	if err != nil {
		return nil, err
	}
	return resumes[id], nil
}

// CurrentResume returns the most recently saved or loaded resume, or nil.
func (s *Store) CurrentResume() *interview.ResumeData {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.currentResume == nil {
		return nil
	}
	cp := *s.currentResume
	return &cp
}

// DeleteResume removes the resume with id.
func (s *Store) DeleteResume(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	resumes, err := s.resumes(ctx)
	if err != nil {
		return err
	}
	delete(resumes, id)
	if err := s.write(ctx, s.key(keyResumes), resumes); err != nil {
		return err
	}
	if s.currentResume != nil && s.currentResume.ID == id {
		s.currentResume = nil
	}
	return nil
}

// Session returns any stored session by id, current or not.
func (s *Store) Session(ctx context.Context, id string) (*interview.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions, err := s.sessions(ctx)
	if err != nil {
		return nil, err
	}
	sess, ok := sessions[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return sess, nil
}

func (s *Store) key(base string) string {
	return base + "_" + s.user
}

func (s *Store) sessions(ctx context.Context) (map[string]*interview.Session, error) {
	m := map[string]*interview.Session{}
	if err := s.read(ctx, s.key(keySessions), &m); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	return m, nil
}

func (s *Store) resumes(ctx context.Context) (map[string]*interview.ResumeData, error) {
	m := map[string]*interview.ResumeData{}
	if err := s.read(ctx, s.key(keyResumes), &m); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	return m, nil
}

func (s *Store) read(ctx context.Context, key string, v any) error {
	data, err := s.kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}

func (s *Store) write(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return s.kv.Set(ctx, key, data)
}
