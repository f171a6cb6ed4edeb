// Package presence implements the optional Redis-backed presence
// side-channel: a cross-process view of which users are alive in which
// document, supplementing the in-process CursorTracker.isActive for
// deployments running more than one server process. Grounded in
// gateway/backend/internal/cache/presence.go and
// collab-service/backend/internal/cache/presence.go, generalized from
// their uint64 userId to the core's opaque string userId.
package presence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"collabcore/internal/eventbus"
	"collabcore/internal/model"
)

// Member is one alive user within a document.
type Member struct {
	UserID   string
	Username string
}

// Presence is the narrow surface the session fabric / HTTP surface
// needs; RedisPresence is the only implementation, but the interface
// keeps tests from needing a live Redis.
type Presence interface {
	AddMember(ctx context.Context, documentID, userID, username string, ttl time.Duration) error
	RemoveMember(ctx context.Context, documentID, userID string) error
	AliveMembers(ctx context.Context, documentID string) ([]Member, error)
	Documents(ctx context.Context) ([]string, error)
}

const (
	keyRoomFmt  = "presence:room:%s"
	keyMemberFmt = "presence:member:%s:%s"
	keyNamesFmt = "presence:room:names:%s"
)

func roomKey(documentID string) string            { return fmt.Sprintf(keyRoomFmt, documentID) }
func memberKey(documentID, userID string) string  { return fmt.Sprintf(keyMemberFmt, documentID, userID) }
func namesKey(documentID string) string           { return fmt.Sprintf(keyNamesFmt, documentID) }

// RedisPresence is the default Presence implementation.
type RedisPresence struct {
	rdb *redis.Client
}

func NewRedisPresence(rdb *redis.Client) *RedisPresence {
	return &RedisPresence{rdb: rdb}
}

func (p *RedisPresence) AddMember(ctx context.Context, documentID, userID, username string, ttl time.Duration) error {
	pipe := p.rdb.Pipeline()
	pipe.SAdd(ctx, roomKey(documentID), userID)
	pipe.Set(ctx, memberKey(documentID, userID), "1", ttl)
	pipe.HSet(ctx, namesKey(documentID), userID, username)
	_, err := pipe.Exec(ctx)
	return err
}

func (p *RedisPresence) RemoveMember(ctx context.Context, documentID, userID string) error {
	pipe := p.rdb.Pipeline()
	pipe.SRem(ctx, roomKey(documentID), userID)
	pipe.Del(ctx, memberKey(documentID, userID))
	pipe.HDel(ctx, namesKey(documentID), userID)
	_, err := pipe.Exec(ctx)
	return err
}

func (p *RedisPresence) AliveMembers(ctx context.Context, documentID string) ([]Member, error) {
	userIDs, err := p.rdb.SMembers(ctx, roomKey(documentID)).Result()
	if err != nil {
		return nil, err
	}
	if len(userIDs) == 0 {
		return nil, nil
	}

	pipe := p.rdb.Pipeline()
	cmds := make([]*redis.IntCmd, len(userIDs))
	for i, uid := range userIDs {
		cmds[i] = pipe.Exists(ctx, memberKey(documentID, uid))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	alive := make([]string, 0, len(userIDs))
	for i, cmd := range cmds {
		if cmd.Val() == 1 {
			alive = append(alive, userIDs[i])
		}
	}
	if len(alive) == 0 {
		return nil, nil
	}

	names, err := p.rdb.HMGet(ctx, namesKey(documentID), alive...).Result()
	if err != nil {
		return nil, err
	}
	members := make([]Member, 0, len(alive))
	for i, v := range names {
		name, _ := v.(string)
		members = append(members, Member{UserID: alive[i], Username: name})
	}
	return members, nil
}

// namesKeyInfix lets Documents exclude the names-hash keys ("presence:
// room:names:<id>") that also match the room-key glob, since both share
// the "presence:room:" prefix.
const namesKeyInfix = "names:"

func (p *RedisPresence) Documents(ctx context.Context) ([]string, error) {
	var documents []string
	iter := p.rdb.Scan(ctx, 0, "presence:room:*", 0).Iterator()
	for iter.Next(ctx) {
		id := strings.TrimPrefix(iter.Val(), "presence:room:")
		if strings.HasPrefix(id, namesKeyInfix) {
			continue
		}
		documents = append(documents, id)
	}
	return documents, iter.Err()
}

// Sync subscribes to bus and keeps Presence current from
// RemoteUserConnectedEvent/RemoteUserDisconnectedEvent. defaultTTL
// bounds how long a connected
// member survives without a fresh connected event (e.g. after an
// ungraceful process crash).
func Sync(bus eventbus.Subscriber, p Presence, defaultTTL time.Duration, logger func(format string, args ...interface{})) (unsubscribe func()) {
	return bus.Subscribe(func(evt model.Event) {
		switch evt.Type {
		case model.EventRemoteUserConnected:
			payload, ok := evt.Payload.(model.RemoteUserConnectedPayload)
			if !ok {
				return
			}
			if err := p.AddMember(context.Background(), evt.EditorID, payload.User.ID, payload.User.Name, defaultTTL); err != nil && logger != nil {
				logger("presence: add member failed for document=%s user=%s: %v", evt.EditorID, payload.User.ID, err)
			}
		case model.EventRemoteUserDisconnected:
			payload, ok := evt.Payload.(model.RemoteUserDisconnectedPayload)
			if !ok {
				return
			}
			if err := p.RemoveMember(context.Background(), evt.EditorID, payload.UserID); err != nil && logger != nil {
				logger("presence: remove member failed for document=%s user=%s: %v", evt.EditorID, payload.UserID, err)
			}
		}
	})
}
