package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Ledger is the Redis implementation of app.Ledger. Keys:
//
//	quiz:plays:{address}:{tournamentID}:{day}  counter, expires after playTTL
//	quiz:pending:{address}                     counter
//	quiz:registered:{address}                  set of tournament IDs
//
// Daily-play keys carry a TTL only as garbage collection; correctness
// comes from the date in the key.
type Ledger struct {
	client  *redis.Client
	playTTL time.Duration
}

func NewLedger(client *redis.Client, playTTL time.Duration) *Ledger {
	if playTTL <= 0 {
		playTTL = 48 * time.Hour
	}
	return &Ledger{client: client, playTTL: playTTL}
}

func playsKey(address string, tournamentID int64, day string) string {
	return "quiz:plays:" + address + ":" + strconv.FormatInt(tournamentID, 10) + ":" + day
}

func pendingKey(address string) string {
	return "quiz:pending:" + address
}

func registeredKey(address string) string {
	return "quiz:registered:" + address
}

func (l *Ledger) DailyPlays(address string, tournamentID int64, day string) (int, error) {
	v, err := l.client.Get(context.Background(), playsKey(address, tournamentID, day)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return v, nil
}

func (l *Ledger) IncrDailyPlays(address string, tournamentID int64, day string) error {
	ctx := context.Background()
	key := playsKey(address, tournamentID, day)
	pipe := l.client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, l.playTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (l *Ledger) PendingCredits(address string) (int, error) {
	v, err := l.client.Get(context.Background(), pendingKey(address)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return v, nil
}

func (l *Ledger) IncrPendingCredits(address string, delta int) (int, error) {
	ctx := context.Background()
	v, err := l.client.IncrBy(ctx, pendingKey(address), int64(delta)).Result()
	if err != nil {
		return 0, err
	}
	if v < 0 {
		// Rollbacks never push the counter below zero.
		_ = l.client.Set(ctx, pendingKey(address), 0, 0).Err()
		return 0, nil
	}
	return int(v), nil
}

func (l *Ledger) ClearPendingCredits(address string) error {
	return l.client.Del(context.Background(), pendingKey(address)).Err()
}

func (l *Ledger) RegisteredTournaments(address string) ([]int64, error) {
	members, err := l.client.SMembers(context.Background(), registeredKey(address)).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (l *Ledger) MarkRegistered(address string, tournamentID int64) error {
	return l.client.SAdd(context.Background(), registeredKey(address), strconv.FormatInt(tournamentID, 10)).Err()
}
