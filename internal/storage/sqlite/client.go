package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/mysteryisfun/Voice-platform/internal/storage/models"
	"github.com/mysteryisfun/Voice-platform/pkg/logger"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrStaleQuestion is returned when an answer arrives for a question
	// number that is no longer the session's current one.
	ErrStaleQuestion = errors.New("question number does not match session state")
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT,
		company_name TEXT,
		industry TEXT,
		website_url TEXT,
		agent_role TEXT,
		greeting TEXT,
		voice_id TEXT,
		personality TEXT DEFAULT 'professional',
		tone TEXT DEFAULT 'helpful',
		response_style TEXT DEFAULT 'balanced',
		enabled_tools TEXT DEFAULT '[]',
		system_prompt TEXT,
		status TEXT NOT NULL DEFAULT 'created',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_agents_status ON agents(status);
	CREATE INDEX IF NOT EXISTS idx_agents_created ON agents(created_at);

	CREATE TABLE IF NOT EXISTS onboarding_sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_id INTEGER NOT NULL UNIQUE,
		status TEXT NOT NULL DEFAULT 'started',
		current_question_number INTEGER NOT NULL DEFAULT 1,
		current_question TEXT,
		questions_and_answers TEXT NOT NULL DEFAULT '[]',
		initial_context TEXT,
		web_scraping_status TEXT NOT NULL DEFAULT 'pending',
		document_status TEXT NOT NULL DEFAULT 'pending',
		vector_status TEXT NOT NULL DEFAULT 'pending',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		completed_at INTEGER,
		FOREIGN KEY (agent_id) REFERENCES agents(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_agent ON onboarding_sessions(agent_id);

	CREATE TABLE IF NOT EXISTS knowledge_chunks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_id INTEGER NOT NULL,
		chunk_id TEXT NOT NULL UNIQUE,
		source_type TEXT NOT NULL,
		source_url TEXT,
		chunk_index INTEGER NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (agent_id) REFERENCES agents(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_agent ON knowledge_chunks(agent_id);

	CREATE TABLE IF NOT EXISTS voice_sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_id INTEGER NOT NULL,
		room_name TEXT NOT NULL,
		participant TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'created',
		token_expires_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (agent_id) REFERENCES agents(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_voice_sessions_agent ON voice_sessions(agent_id);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// CreateAgentAndSession inserts a blank agent plus its onboarding session in
// one transaction and returns both IDs.
func (c *Client) CreateAgentAndSession(initialContext string) (agentID, sessionID int64, err error) {
	tx, err := c.db.Begin()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()

	res, err := tx.Exec(
		`INSERT INTO agents (status, created_at, updated_at) VALUES (?, ?, ?)`,
		models.AgentStatusCreated, now, now,
	)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to insert agent: %w", err)
	}
	agentID, err = res.LastInsertId()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get agent id: %w", err)
	}

	res, err = tx.Exec(
		`INSERT INTO onboarding_sessions (agent_id, status, initial_context, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		agentID, models.SessionStatusStarted, initialContext, now, now,
	)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to insert session: %w", err)
	}
	sessionID, err = res.LastInsertId()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get session id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit: %w", err)
	}

	logger.Info("Agent and session created",
		zap.Int64("agent_id", agentID),
		zap.Int64("session_id", sessionID),
	)

	return agentID, sessionID, nil
}

func (c *Client) GetSession(sessionID int64) (*models.OnboardingSession, error) {
	row := c.db.QueryRow(
		`SELECT id, agent_id, status, current_question_number, current_question,
		        questions_and_answers, initial_context, web_scraping_status,
		        document_status, vector_status, created_at, updated_at, completed_at
		 FROM onboarding_sessions WHERE id = ?`, sessionID)

	return scanSession(row)
}

func scanSession(row *sql.Row) (*models.OnboardingSession, error) {
	var s models.OnboardingSession
	var currentQuestion, initialContext sql.NullString
	var qaJSON string
	var createdAt, updatedAt int64
	var completedAt sql.NullInt64

	err := row.Scan(
		&s.ID, &s.AgentID, &s.Status, &s.CurrentQuestionNumber, &currentQuestion,
		&qaJSON, &initialContext, &s.WebScrapingStatus,
		&s.DocumentStatus, &s.VectorStatus, &createdAt, &updatedAt, &completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	s.CurrentQuestion = currentQuestion.String
	s.InitialContext = initialContext.String
	if err := json.Unmarshal([]byte(qaJSON), &s.QuestionsAndAnswers); err != nil {
		return nil, fmt.Errorf("failed to decode q&a history: %w", err)
	}
	s.CreatedAt = time.Unix(createdAt, 0)
	s.UpdatedAt = time.Unix(updatedAt, 0)
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0)
		s.CompletedAt = &t
	}

	return &s, nil
}

// SetCurrentQuestion records the question that is pending an answer.
func (c *Client) SetCurrentQuestion(sessionID int64, question string) error {
	res, err := c.db.Exec(
		`UPDATE onboarding_sessions SET current_question = ?, updated_at = ? WHERE id = ?`,
		question, time.Now().Unix(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to set current question: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendAnswer appends a Q&A pair and advances the question counter.
// expectedNumber is an optimistic check: the update only applies while the
// session's current_question_number still equals it, so concurrent
// submissions for the same question cannot interleave.
func (c *Client) AppendAnswer(sessionID int64, expectedNumber int, qa models.QuestionAnswer) (*models.OnboardingSession, error) {
	session, err := c.GetSession(sessionID)
	if err != nil {
		return nil, err
	}

	if session.CurrentQuestionNumber != expectedNumber {
		return nil, ErrStaleQuestion
	}

	history := append(session.QuestionsAndAnswers, qa)
	qaJSON, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("failed to encode q&a history: %w", err)
	}

	res, err := c.db.Exec(
		`UPDATE onboarding_sessions
		 SET questions_and_answers = ?, current_question_number = current_question_number + 1,
		     status = ?, updated_at = ?
		 WHERE id = ? AND current_question_number = ?`,
		string(qaJSON), models.SessionStatusInProgress, time.Now().Unix(),
		sessionID, expectedNumber,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to append answer: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		// Lost the race against a concurrent submission.
		return nil, ErrStaleQuestion
	}

	return c.GetSession(sessionID)
}

// UpdateProcessingStatus updates the per-source ingestion statuses. Empty
// strings leave the corresponding column untouched.
func (c *Client) UpdateProcessingStatus(sessionID int64, webStatus, docStatus, vectorStatus string) error {
	session, err := c.GetSession(sessionID)
	if err != nil {
		return err
	}

	if webStatus == "" {
		webStatus = session.WebScrapingStatus
	}
	if docStatus == "" {
		docStatus = session.DocumentStatus
	}
	if vectorStatus == "" {
		vectorStatus = session.VectorStatus
	}

	// A session that already reached a terminal state keeps it; a late
	// ingestion update must not drag it back to processing.
	status := models.SessionStatusProcessingData
	if session.Status == models.SessionStatusCompleted || session.Status == models.SessionStatusFailed {
		status = session.Status
	}

	_, err = c.db.Exec(
		`UPDATE onboarding_sessions
		 SET web_scraping_status = ?, document_status = ?, vector_status = ?,
		     status = ?, updated_at = ?
		 WHERE id = ?`,
		webStatus, docStatus, vectorStatus,
		status, time.Now().Unix(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to update processing status: %w", err)
	}
	return nil
}

func (c *Client) UpdateSessionStatus(sessionID int64, status string) error {
	res, err := c.db.Exec(
		`UPDATE onboarding_sessions SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().Unix(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CompleteSession marks the session completed and writes the final agent
// configuration in one transaction. Calling it again for the same session
// rewrites the same agent row.
func (c *Client) CompleteSession(sessionID int64, agent *models.Agent) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()

	toolsJSON, err := json.Marshal(agent.EnabledTools)
	if err != nil {
		return fmt.Errorf("failed to encode tools: %w", err)
	}

	res, err := tx.Exec(
		`UPDATE agents
		 SET name = ?, company_name = ?, industry = ?, website_url = ?, agent_role = ?,
		     greeting = ?, voice_id = ?, personality = ?, tone = ?, response_style = ?,
		     enabled_tools = ?, system_prompt = ?, status = ?, updated_at = ?
		 WHERE id = ?`,
		agent.Name, agent.CompanyName, agent.Industry, agent.WebsiteURL, agent.AgentRole,
		agent.Greeting, agent.VoiceID, agent.Personality, agent.Tone, agent.ResponseStyle,
		string(toolsJSON), agent.SystemPrompt, agent.Status, now,
		agent.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update agent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	_, err = tx.Exec(
		`UPDATE onboarding_sessions SET status = ?, completed_at = ?, updated_at = ? WHERE id = ?`,
		models.SessionStatusCompleted, now, now, sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	logger.Info("Onboarding completed",
		zap.Int64("session_id", sessionID),
		zap.Int64("agent_id", agent.ID),
	)

	return nil
}

func (c *Client) GetAgent(agentID int64) (*models.Agent, error) {
	row := c.db.QueryRow(
		`SELECT id, name, company_name, industry, website_url, agent_role, greeting,
		        voice_id, personality, tone, response_style, enabled_tools,
		        system_prompt, status, created_at, updated_at
		 FROM agents WHERE id = ?`, agentID)

	return scanAgent(row)
}

func scanAgent(row *sql.Row) (*models.Agent, error) {
	var a models.Agent
	var name, companyName, industry, websiteURL, agentRole, greeting sql.NullString
	var voiceID, personality, tone, responseStyle, systemPrompt sql.NullString
	var toolsJSON string
	var createdAt, updatedAt int64

	err := row.Scan(
		&a.ID, &name, &companyName, &industry, &websiteURL, &agentRole, &greeting,
		&voiceID, &personality, &tone, &responseStyle, &toolsJSON,
		&systemPrompt, &a.Status, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}

	a.Name = name.String
	a.CompanyName = companyName.String
	a.Industry = industry.String
	a.WebsiteURL = websiteURL.String
	a.AgentRole = agentRole.String
	a.Greeting = greeting.String
	a.VoiceID = voiceID.String
	a.Personality = personality.String
	a.Tone = tone.String
	a.ResponseStyle = responseStyle.String
	a.SystemPrompt = systemPrompt.String
	if err := json.Unmarshal([]byte(toolsJSON), &a.EnabledTools); err != nil {
		a.EnabledTools = nil
	}
	a.CreatedAt = time.Unix(createdAt, 0)
	a.UpdatedAt = time.Unix(updatedAt, 0)

	return &a, nil
}

func (c *Client) ListAgents() ([]models.Agent, error) {
	rows, err := c.db.Query(
		`SELECT id, name, company_name, industry, website_url, agent_role, greeting,
		        voice_id, personality, tone, response_style, enabled_tools,
		        system_prompt, status, created_at, updated_at
		 FROM agents ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var agents []models.Agent
	for rows.Next() {
		var a models.Agent
		var name, companyName, industry, websiteURL, agentRole, greeting sql.NullString
		var voiceID, personality, tone, responseStyle, systemPrompt sql.NullString
		var toolsJSON string
		var createdAt, updatedAt int64

		err := rows.Scan(
			&a.ID, &name, &companyName, &industry, &websiteURL, &agentRole, &greeting,
			&voiceID, &personality, &tone, &responseStyle, &toolsJSON,
			&systemPrompt, &a.Status, &createdAt, &updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}

		a.Name = name.String
		a.CompanyName = companyName.String
		a.Industry = industry.String
		a.WebsiteURL = websiteURL.String
		a.AgentRole = agentRole.String
		a.Greeting = greeting.String
		a.VoiceID = voiceID.String
		a.Personality = personality.String
		a.Tone = tone.String
		a.ResponseStyle = responseStyle.String
		a.SystemPrompt = systemPrompt.String
		json.Unmarshal([]byte(toolsJSON), &a.EnabledTools)
		a.CreatedAt = time.Unix(createdAt, 0)
		a.UpdatedAt = time.Unix(updatedAt, 0)

		agents = append(agents, a)
	}

	return agents, rows.Err()
}

func (c *Client) UpdateAgentStatus(agentID int64, status string) error {
	res, err := c.db.Exec(
		`UPDATE agents SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().Unix(), agentID,
	)
	if err != nil {
		return fmt.Errorf("failed to update agent status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAgent removes the agent row; sessions, chunks and voice sessions
// cascade. The vector namespace is dropped by the caller.
func (c *Client) DeleteAgent(agentID int64) error {
	res, err := c.db.Exec(`DELETE FROM agents WHERE id = ?`, agentID)
	if err != nil {
		return fmt.Errorf("failed to delete agent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	logger.Info("Agent deleted", zap.Int64("agent_id", agentID))
	return nil
}

func (c *Client) InsertKnowledgeChunk(chunk *models.KnowledgeChunk) error {
	_, err := c.db.Exec(
		`INSERT INTO knowledge_chunks (agent_id, chunk_id, source_type, source_url, chunk_index, content, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(chunk_id) DO UPDATE SET content = excluded.content`,
		chunk.AgentID, chunk.ChunkID, chunk.SourceType, chunk.SourceURL,
		chunk.ChunkIndex, chunk.Content, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert knowledge chunk: %w", err)
	}
	return nil
}

func (c *Client) CountKnowledgeChunks(agentID int64) (int, error) {
	var count int
	err := c.db.QueryRow(
		`SELECT COUNT(*) FROM knowledge_chunks WHERE agent_id = ?`, agentID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count knowledge chunks: %w", err)
	}
	return count, nil
}

func (c *Client) DeleteKnowledgeChunks(agentID int64) error {
	_, err := c.db.Exec(`DELETE FROM knowledge_chunks WHERE agent_id = ?`, agentID)
	if err != nil {
		return fmt.Errorf("failed to delete knowledge chunks: %w", err)
	}
	return nil
}

func (c *Client) InsertVoiceSession(session *models.VoiceSession) (int64, error) {
	res, err := c.db.Exec(
		`INSERT INTO voice_sessions (agent_id, room_name, participant, status, token_expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		session.AgentID, session.RoomName, session.Participant, session.Status,
		session.TokenExpiresAt.Unix(), time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert voice session: %w", err)
	}
	return res.LastInsertId()
}

func (c *Client) ListVoiceSessions(agentID int64, limit int) ([]models.VoiceSession, error) {
	rows, err := c.db.Query(
		`SELECT id, agent_id, room_name, participant, status, token_expires_at, created_at
		 FROM voice_sessions WHERE agent_id = ? ORDER BY created_at DESC LIMIT ?`,
		agentID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list voice sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.VoiceSession
	for rows.Next() {
		var s models.VoiceSession
		var expiresAt, createdAt int64

		err := rows.Scan(&s.ID, &s.AgentID, &s.RoomName, &s.Participant, &s.Status, &expiresAt, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan voice session: %w", err)
		}

		s.TokenExpiresAt = time.Unix(expiresAt, 0)
		s.CreatedAt = time.Unix(createdAt, 0)
		sessions = append(sessions, s)
	}

	return sessions, rows.Err()
}
