package models

import "time"

// Agent statuses follow the lifecycle created -> configured -> active/inactive.
const (
	AgentStatusCreated    = "created"
	AgentStatusConfigured = "configured"
	AgentStatusActive     = "active"
	AgentStatusInactive   = "inactive"
	AgentStatusFailed     = "failed"
)

const (
	SessionStatusStarted        = "started"
	SessionStatusInProgress     = "in_progress"
	SessionStatusProcessingData = "processing_data"
	SessionStatusCompleted      = "completed"
	SessionStatusFailed         = "failed"
)

// Per-source ingestion statuses.
const (
	StepStatusPending   = "pending"
	StepStatusRunning   = "running"
	StepStatusSucceeded = "succeeded"
	StepStatusFailed    = "failed"
	StepStatusSkipped   = "skipped"
)

type Agent struct {
	ID            int64
	Name          string
	CompanyName   string
	Industry      string
	WebsiteURL    string
	AgentRole     string
	Greeting      string
	VoiceID       string
	Personality   string
	Tone          string
	ResponseStyle string
	EnabledTools  []string
	SystemPrompt  string
	Status        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type QuestionAnswer struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	Number   int       `json:"number"`
	AskedAt  time.Time `json:"asked_at"`
}

type OnboardingSession struct {
	ID                    int64
	AgentID               int64
	Status                string
	CurrentQuestionNumber int
	CurrentQuestion       string
	QuestionsAndAnswers   []QuestionAnswer
	InitialContext        string
	WebScrapingStatus     string
	DocumentStatus        string
	VectorStatus          string
	CreatedAt             time.Time
	UpdatedAt             time.Time
	CompletedAt           *time.Time
}

type KnowledgeChunk struct {
	ID         int64
	AgentID    int64
	ChunkID    string
	SourceType string
	SourceURL  string
	ChunkIndex int
	Content    string
	CreatedAt  time.Time
}

type VoiceSession struct {
	ID             int64
	AgentID        int64
	RoomName       string
	Participant    string
	Status         string
	TokenExpiresAt time.Time
	CreatedAt      time.Time
}
