package voice

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"go.uber.org/zap"

	"github.com/mysteryisfun/Voice-platform/internal/storage/models"
	"github.com/mysteryisfun/Voice-platform/internal/storage/sqlite"
	"github.com/mysteryisfun/Voice-platform/pkg/logger"
)

// Facade mints room-scoped access credentials for the external voice cloud.
// The media path never touches this service; we only hand the browser a
// room name, a signed token and the websocket URL.
type Facade struct {
	db        *sqlite.Client
	apiKey    string
	apiSecret []byte
	wsURL     string
	tokenTTL  time.Duration
}

func NewFacade(db *sqlite.Client, apiKey, apiSecret, wsURL string, tokenTTL time.Duration) *Facade {
	return &Facade{
		db:        db,
		apiKey:    apiKey,
		apiSecret: []byte(apiSecret),
		wsURL:     wsURL,
		tokenTTL:  tokenTTL,
	}
}

type Session struct {
	SessionID int64     `json:"session_id"`
	AgentID   int64     `json:"agent_id"`
	RoomName  string    `json:"room_name"`
	Token     string    `json:"token"`
	WSURL     string    `json:"ws_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreateSession mints a credential scoped to a fresh room for the agent.
// The token is parsed back before it leaves this function; a room-claim
// mismatch fails here rather than as a 401 at connection time.
func (f *Facade) CreateSession(ctx context.Context, agentID int64, participant string) (*Session, error) {
	agent, err := f.db.GetAgent(agentID)
	if err != nil {
		return nil, err
	}

	if participant == "" {
		participant = fmt.Sprintf("user-%s", uuid.New().String()[:8])
	}

	roomName := fmt.Sprintf("agent-%d-%s", agent.ID, uuid.New().String()[:8])
	expiresAt := time.Now().Add(f.tokenTTL)

	token, err := f.mintToken(roomName, participant, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to mint token: %w", err)
	}

	if err := f.verifyRoomClaim(token, roomName); err != nil {
		return nil, fmt.Errorf("credential contract violated: %w", err)
	}

	sessionID, err := f.db.InsertVoiceSession(&models.VoiceSession{
		AgentID:        agentID,
		RoomName:       roomName,
		Participant:    participant,
		Status:         "created",
		TokenExpiresAt: expiresAt,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Voice session created",
		zap.Int64("agent_id", agentID),
		zap.String("room", roomName),
		zap.String("participant", participant),
	)

	return &Session{
		SessionID: sessionID,
		AgentID:   agentID,
		RoomName:  roomName,
		Token:     token,
		WSURL:     f.wsURL,
		ExpiresAt: expiresAt,
	}, nil
}

func (f *Facade) ListSessions(ctx context.Context, agentID int64, limit int) ([]models.VoiceSession, error) {
	if limit <= 0 {
		limit = 50
	}
	return f.db.ListVoiceSessions(agentID, limit)
}

func (f *Facade) mintToken(roomName, participant string, expiresAt time.Time) (string, error) {
	now := time.Now()

	grant := map[string]interface{}{
		"room":           roomName,
		"roomJoin":       true,
		"canPublish":     true,
		"canSubscribe":   true,
		"canPublishData": true,
	}

	tok, err := jwt.NewBuilder().
		Issuer(f.apiKey).
		Subject(participant).
		Audience([]string{"livekit"}).
		IssuedAt(now).
		NotBefore(now.Add(-10 * time.Second)).
		Expiration(expiresAt).
		Claim("video", grant).
		Build()
	if err != nil {
		return "", fmt.Errorf("failed to build token: %w", err)
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, f.apiSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return string(signed), nil
}

// verifyRoomClaim parses the freshly minted token and checks that its video
// grant names the room we are about to return.
func (f *Facade) verifyRoomClaim(token, roomName string) error {
	parsed, err := jwt.Parse([]byte(token),
		jwt.WithKey(jwa.HS256, f.apiSecret),
		jwt.WithValidate(true),
		jwt.WithAudience("livekit"),
	)
	if err != nil {
		return fmt.Errorf("token failed verification: %w", err)
	}

	raw, ok := parsed.Get("video")
	if !ok {
		return fmt.Errorf("token missing video grant")
	}

	grant, ok := raw.(map[string]interface{})
	if !ok {
		return fmt.Errorf("video grant has unexpected shape")
	}

	if room, _ := grant["room"].(string); room != roomName {
		return fmt.Errorf("room claim %q does not match room %q", room, roomName)
	}

	return nil
}
