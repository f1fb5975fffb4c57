package memstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/stevenAIEngineer/babaru-regime/internal/config"
	_ "modernc.org/sqlite"
)

// ErrUnknownUser is returned when no identity row exists for a user id.
var ErrUnknownUser = errors.New("memstore: unknown user")

const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Message is one conversation history entry. Entries are immutable once
// appended; only the rolling window may discard old ones.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Identity struct {
	UserID      string
	DisplayName string
	Timezone    string
}

type Progression struct {
	Rank       string
	Points     int
	StreakDays int
}

type Missions struct {
	Active    []string
	Completed []string
	Failed    []string
}

type Profile struct {
	PrimaryGoal              string
	Obstacles                string
	Wins                     string
	CommunicationPreferences string
}

type Relationship struct {
	Familiarity int
	Trust       int
}

// State is the aggregate snapshot of one user across all sub-records.
type State struct {
	Identity     Identity
	Progression  Progression
	Missions     Missions
	Profile      Profile
	Relationship Relationship
	History      []Message
}

// ProgressionPatch updates only non-nil fields.
type ProgressionPatch struct {
	Rank       *string
	Points     *int
	StreakDays *int
}

// ProfilePatch updates only non-nil fields.
type ProfilePatch struct {
	PrimaryGoal              *string
	Obstacles                *string
	Wins                     *string
	CommunicationPreferences *string
}

// Store wraps the SQLite-backed per-user memory.
type Store struct {
	db    *sql.DB
	cfg   config.StoreConfig
	log   *slog.Logger
	clock func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Open initializes the memory store according to config.
func Open(ctx context.Context, cfg config.StoreConfig, log *slog.Logger) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{
		db:    db,
		cfg:   cfg,
		log:   log.With(slog.String("component", "memstore")),
		clock: time.Now,
		locks: make(map[string]*sync.Mutex),
	}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
			s.log.Warn("memstore vacuum failed", slog.String("error", err.Error()))
		}
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS identity (
    user_id TEXT PRIMARY KEY,
    display_name TEXT,
    timezone TEXT
);
CREATE TABLE IF NOT EXISTS progression (
    user_id TEXT PRIMARY KEY,
    rank TEXT DEFAULT 'Newcomer',
    points INTEGER DEFAULT 0,
    streak_days INTEGER DEFAULT 0,
    FOREIGN KEY(user_id) REFERENCES identity(user_id)
);
CREATE TABLE IF NOT EXISTS missions (
    user_id TEXT PRIMARY KEY,
    active TEXT DEFAULT '[]',
    completed TEXT DEFAULT '[]',
    failed TEXT DEFAULT '[]',
    FOREIGN KEY(user_id) REFERENCES identity(user_id)
);
CREATE TABLE IF NOT EXISTS profile (
    user_id TEXT PRIMARY KEY,
    primary_goal TEXT DEFAULT '',
    obstacles TEXT DEFAULT '',
    wins TEXT DEFAULT '',
    communication_preferences TEXT DEFAULT '',
    FOREIGN KEY(user_id) REFERENCES identity(user_id)
);
CREATE TABLE IF NOT EXISTS relationship (
    user_id TEXT PRIMARY KEY,
    familiarity_level INTEGER DEFAULT 1,
    trust_level INTEGER DEFAULT 1,
    FOREIGN KEY(user_id) REFERENCES identity(user_id)
);
CREATE TABLE IF NOT EXISTS conversations (
    user_id TEXT PRIMARY KEY,
    history TEXT DEFAULT '[]',
    last_updated TIMESTAMP,
    FOREIGN KEY(user_id) REFERENCES identity(user_id)
);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// userLock serializes read-modify-write operations for one user id.
func (s *Store) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

// CreateUser provisions all sub-records for a new user in one transaction.
// Calling it for an existing user is a no-op.
func (s *Store) CreateUser(ctx context.Context, userID, displayName, timezone string) error {
	if timezone == "" {
		timezone = "UTC"
	}

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin provisioning: %w", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx, `SELECT user_id FROM identity WHERE user_id = ?`, userID).Scan(&existing)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("check identity: %w", err)
	}

	stmts := []struct {
		query string
		args  []any
	}{
		{`INSERT INTO identity(user_id, display_name, timezone) VALUES(?, ?, ?)`, []any{userID, displayName, timezone}},
		{`INSERT INTO progression(user_id) VALUES(?)`, []any{userID}},
		{`INSERT INTO missions(user_id) VALUES(?)`, []any{userID}},
		{`INSERT INTO profile(user_id) VALUES(?)`, []any{userID}},
		{`INSERT INTO relationship(user_id) VALUES(?)`, []any{userID}},
		{`INSERT INTO conversations(user_id, last_updated) VALUES(?, ?)`, []any{userID, s.clock().UTC()}},
	}
	for _, st := range stmts {
		if _, err := tx.ExecContext(ctx, st.query, st.args...); err != nil {
			return fmt.Errorf("provision user %s: %w", userID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit provisioning: %w", err)
	}
	s.log.Info("user provisioned", slog.String("user_id", userID))
	return nil
}

// UserState assembles an aggregate snapshot. Returns ErrUnknownUser when the
// identity row is absent; never a partial state.
func (s *Store) UserState(ctx context.Context, userID string) (State, error) {
	var st State

	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, display_name, timezone FROM identity WHERE user_id = ?`, userID).
		Scan(&st.Identity.UserID, &st.Identity.DisplayName, &st.Identity.Timezone)
	if errors.Is(err, sql.ErrNoRows) {
		return State{}, ErrUnknownUser
	}
	if err != nil {
		return State{}, fmt.Errorf("read identity: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT rank, points, streak_days FROM progression WHERE user_id = ?`, userID).
		Scan(&st.Progression.Rank, &st.Progression.Points, &st.Progression.StreakDays)
	if err != nil {
		return State{}, fmt.Errorf("read progression: %w", err)
	}

	var active, completed, failed string
	err = s.db.QueryRowContext(ctx,
		`SELECT active, completed, failed FROM missions WHERE user_id = ?`, userID).
		Scan(&active, &completed, &failed)
	if err != nil {
		return State{}, fmt.Errorf("read missions: %w", err)
	}
	if err := decodeList(active, &st.Missions.Active); err != nil {
		return State{}, fmt.Errorf("decode active missions: %w", err)
	}
	if err := decodeList(completed, &st.Missions.Completed); err != nil {
		return State{}, fmt.Errorf("decode completed missions: %w", err)
	}
	if err := decodeList(failed, &st.Missions.Failed); err != nil {
		return State{}, fmt.Errorf("decode failed missions: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT primary_goal, obstacles, wins, communication_preferences FROM profile WHERE user_id = ?`, userID).
		Scan(&st.Profile.PrimaryGoal, &st.Profile.Obstacles, &st.Profile.Wins, &st.Profile.CommunicationPreferences)
	if err != nil {
		return State{}, fmt.Errorf("read profile: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT familiarity_level, trust_level FROM relationship WHERE user_id = ?`, userID).
		Scan(&st.Relationship.Familiarity, &st.Relationship.Trust)
	if err != nil {
		return State{}, fmt.Errorf("read relationship: %w", err)
	}

	var history string
	err = s.db.QueryRowContext(ctx,
		`SELECT history FROM conversations WHERE user_id = ?`, userID).Scan(&history)
	if err != nil {
		return State{}, fmt.Errorf("read conversations: %w", err)
	}
	if err := json.Unmarshal([]byte(history), &st.History); err != nil {
		return State{}, fmt.Errorf("decode history: %w", err)
	}

	return st, nil
}

// UpdateProgression applies a partial update; nil fields are untouched.
func (s *Store) UpdateProgression(ctx context.Context, userID string, patch ProgressionPatch) error {
	var sets []string
	var args []any
	if patch.Rank != nil {
		sets = append(sets, "rank = ?")
		args = append(args, *patch.Rank)
	}
	if patch.Points != nil {
		sets = append(sets, "points = ?")
		args = append(args, *patch.Points)
	}
	if patch.StreakDays != nil {
		sets = append(sets, "streak_days = ?")
		args = append(args, *patch.StreakDays)
	}
	return s.applyPatch(ctx, "progression", userID, sets, args)
}

// UpdateProfile applies a partial update; nil fields are untouched.
func (s *Store) UpdateProfile(ctx context.Context, userID string, patch ProfilePatch) error {
	var sets []string
	var args []any
	if patch.PrimaryGoal != nil {
		sets = append(sets, "primary_goal = ?")
		args = append(args, *patch.PrimaryGoal)
	}
	if patch.Obstacles != nil {
		sets = append(sets, "obstacles = ?")
		args = append(args, *patch.Obstacles)
	}
	if patch.Wins != nil {
		sets = append(sets, "wins = ?")
		args = append(args, *patch.Wins)
	}
	if patch.CommunicationPreferences != nil {
		sets = append(sets, "communication_preferences = ?")
		args = append(args, *patch.CommunicationPreferences)
	}
	return s.applyPatch(ctx, "profile", userID, sets, args)
}

// UpdateMissions replaces only the sequences that are non-nil.
func (s *Store) UpdateMissions(ctx context.Context, userID string, active, completed, failed *[]string) error {
	var sets []string
	var args []any
	for _, col := range []struct {
		name string
		list *[]string
	}{
		{"active", active},
		{"completed", completed},
		{"failed", failed},
	} {
		if col.list == nil {
			continue
		}
		encoded, err := encodeList(*col.list)
		if err != nil {
			return fmt.Errorf("encode %s missions: %w", col.name, err)
		}
		sets = append(sets, col.name+" = ?")
		args = append(args, encoded)
	}
	return s.applyPatch(ctx, "missions", userID, sets, args)
}

func (s *Store) applyPatch(ctx context.Context, table, userID string, sets []string, args []any) error {
	if len(sets) == 0 {
		return nil
	}
	query := "UPDATE " + table + " SET "
	for i, set := range sets {
		if i > 0 {
			query += ", "
		}
		query += set
	}
	query += " WHERE user_id = ?"
	args = append(args, userID)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrUnknownUser
	}
	return nil
}

// AppendHistory appends one message to the user's conversation sequence and
// stamps the last-updated time.
func (s *Store) AppendHistory(ctx context.Context, userID string, msg Message) error {
	return s.appendMessages(ctx, userID, msg)
}

// AppendTurn records a user message and the model's reply as one durable
// write, user entry strictly first.
func (s *Store) AppendTurn(ctx context.Context, userID string, userMsg, modelMsg Message) error {
	return s.appendMessages(ctx, userID, userMsg, modelMsg)
}

func (s *Store) appendMessages(ctx context.Context, userID string, msgs ...Message) error {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT history FROM conversations WHERE user_id = ?`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrUnknownUser
	}
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}

	var history []Message
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		return fmt.Errorf("decode history: %w", err)
	}
	history = append(history, msgs...)
	if s.cfg.HistoryLimit > 0 && len(history) > s.cfg.HistoryLimit {
		history = history[len(history)-s.cfg.HistoryLimit:]
	}

	encoded, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE conversations SET history = ?, last_updated = ? WHERE user_id = ?`,
		string(encoded), s.clock().UTC(), userID)
	if err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return nil
}

// AdjustRelationship adds deltas to familiarity and trust, clamping both to
// the [0, 10] range.
func (s *Store) AdjustRelationship(ctx context.Context, userID string, famDelta, trustDelta int) error {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	var fam, trust int
	err := s.db.QueryRowContext(ctx,
		`SELECT familiarity_level, trust_level FROM relationship WHERE user_id = ?`, userID).
		Scan(&fam, &trust)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrUnknownUser
	}
	if err != nil {
		return fmt.Errorf("read relationship: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE relationship SET familiarity_level = ?, trust_level = ? WHERE user_id = ?`,
		clamp(fam+famDelta), clamp(trust+trustDelta), userID)
	if err != nil {
		return fmt.Errorf("write relationship: %w", err)
	}
	return nil
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}

func decodeList(raw string, target *[]string) error {
	if raw == "" {
		raw = "[]"
	}
	return json.Unmarshal([]byte(raw), target)
}

func encodeList(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	data, err := json.Marshal(list)
	return string(data), err
}
