// Package twilio provides a room provider backed by Twilio Programmable
// Video. It implements the room.Provider interface.
package twilio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/twilio/twilio-go"
	"github.com/twilio/twilio-go/client/jwt"
	video "github.com/twilio/twilio-go/rest/video/v1"

	"github.com/sofie-labs/facedancer/pkg/provider/room"
)

const (
	defaultEmptyRoomTimeout = 5 * time.Minute
	defaultMaxParticipants  = 2
	defaultTokenTTL         = time.Hour
)

// Config carries the Twilio credentials and room defaults.
type Config struct {
	// AccountSID is the Twilio account SID (AC…).
	AccountSID string

	// APIKey and APISecret are a Twilio API key pair (SK…). They authenticate
	// REST calls and sign access tokens.
	APIKey    string
	APISecret string

	// EmptyRoomTimeout is how long an empty room stays alive before Twilio
	// completes it. Zero means 5 minutes.
	EmptyRoomTimeout time.Duration

	// MaxParticipants caps the room size. Zero means 2 (user + avatar bot).
	MaxParticipants int

	// TokenTTL is the access token lifetime. Zero means 1 hour.
	TokenTTL time.Duration
}

// Provider implements room.Provider on Twilio Programmable Video.
type Provider struct {
	cfg    Config
	client *twilio.RestClient
}

var _ room.Provider = (*Provider)(nil)

// New creates a Twilio room provider. All three credentials are required.
func New(cfg Config) (*Provider, error) {
	if cfg.AccountSID == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, errors.New("twilio: AccountSID, APIKey and APISecret must not be empty")
	}
	if cfg.EmptyRoomTimeout <= 0 {
		cfg.EmptyRoomTimeout = defaultEmptyRoomTimeout
	}
	if cfg.MaxParticipants <= 0 {
		cfg.MaxParticipants = defaultMaxParticipants
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username:   cfg.APIKey,
		Password:   cfg.APISecret,
		AccountSid: cfg.AccountSID,
	})
	return &Provider{cfg: cfg, client: client}, nil
}

// EnsureRoom implements room.Provider. Twilio resolves a fetch by unique name
// to the in-progress room, so an existing room is returned as is.
func (p *Provider) EnsureRoom(ctx context.Context, name string) (room.Room, error) {
	if name == "" {
		return room.Room{}, errors.New("twilio: room name must not be empty")
	}

	if existing, err := p.client.VideoV1.FetchRoom(name); err == nil {
		return convertRoom(existing), nil
	}

	params := &video.CreateRoomParams{}
	params.SetUniqueName(name)
	params.SetEmptyRoomTimeout(int(p.cfg.EmptyRoomTimeout.Minutes()))
	params.SetMaxParticipants(p.cfg.MaxParticipants)

	created, err := p.client.VideoV1.CreateRoom(params)
	if err != nil {
		return room.Room{}, fmt.Errorf("twilio: create room %q: %w", name, err)
	}
	return convertRoom(created), nil
}

// AccessToken implements room.Provider using a Twilio JWT with a video grant.
func (p *Provider) AccessToken(_ context.Context, roomName, identity string) (string, error) {
	if roomName == "" || identity == "" {
		return "", errors.New("twilio: roomName and identity must not be empty")
	}

	token := jwt.CreateAccessToken(jwt.AccessTokenParams{
		AccountSid:    p.cfg.AccountSID,
		SigningKeySid: p.cfg.APIKey,
		Secret:        p.cfg.APISecret,
		Identity:      identity,
		Ttl:           p.cfg.TokenTTL.Seconds(),
	})
	token.AddGrant(&jwt.VideoGrant{Room: roomName})

	signed, err := token.ToJwt()
	if err != nil {
		return "", fmt.Errorf("twilio: sign access token: %w", err)
	}
	return signed, nil
}

// ListRooms implements room.Provider. Only in-progress rooms are returned.
func (p *Provider) ListRooms(context.Context) ([]room.Room, error) {
	params := &video.ListRoomParams{}
	params.SetStatus("in-progress")

	records, err := p.client.VideoV1.ListRoom(params)
	if err != nil {
		return nil, fmt.Errorf("twilio: list rooms: %w", err)
	}

	rooms := make([]room.Room, 0, len(records))
	for i := range records {
		rooms = append(rooms, convertRoom(&records[i]))
	}
	return rooms, nil
}

// EndRoom implements room.Provider by completing the room.
func (p *Provider) EndRoom(_ context.Context, sid string) error {
	params := &video.UpdateRoomParams{}
	params.SetStatus("completed")

	if _, err := p.client.VideoV1.UpdateRoom(sid, params); err != nil {
		return fmt.Errorf("twilio: end room %s: %w", sid, err)
	}
	return nil
}

func convertRoom(r *video.VideoV1Room) room.Room {
	out := room.Room{}
	if r == nil {
		return out
	}
	if r.Sid != nil {
		out.SID = *r.Sid
	}
	if r.UniqueName != nil {
		out.Name = *r.UniqueName
	}
	if r.Status != nil {
		out.Status = *r.Status
	}
	if r.MaxParticipants != nil {
		out.MaxParticipants = *r.MaxParticipants
	}
	if r.DateCreated != nil {
		out.CreatedAt = *r.DateCreated
	}
	return out
}
