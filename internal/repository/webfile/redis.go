package webfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/jgivc/fetchbot/internal/common"
	"github.com/jgivc/fetchbot/internal/entity"
)

const (
	KeyWebFiles = "wf" // HASH. session_id: JSON entry
)

type redisRepository struct {
	cl  *redis.Client
	log *slog.Logger
}

func NewRedisRepository(cl *redis.Client, log *slog.Logger) *redisRepository {
	return &redisRepository{
		cl:  cl,
		log: log.With(slog.String("item", "RedisWebFileRepository")),
	}
}

func (r *redisRepository) Save(ctx context.Context, entry *entity.WebFileEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cannot marshal web file %s: %w", entry.SessionID, err)
	}

	if err := r.cl.HSet(ctx, KeyWebFiles, entry.SessionID, data).Err(); err != nil {
		return fmt.Errorf("cannot save web file %s: %w", entry.SessionID, err)
	}

	return nil
}

func (r *redisRepository) Get(ctx context.Context, sid string) (*entity.WebFileEntry, error) {
	data, err := r.cl.HGet(ctx, KeyWebFiles, sid).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, common.ErrFileNotFoundError
		}

		return nil, fmt.Errorf("cannot get web file %s: %w", sid, err)
	}

	var entry entity.WebFileEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("cannot unmarshal web file %s: %w", sid, err)
	}

	return &entry, nil
}

func (r *redisRepository) Delete(ctx context.Context, sid string) error {
	if err := r.cl.HDel(ctx, KeyWebFiles, sid).Err(); err != nil {
		return fmt.Errorf("cannot delete web file %s: %w", sid, err)
	}

	return nil
}

func (r *redisRepository) List(ctx context.Context) ([]*entity.WebFileEntry, error) {
	all, err := r.cl.HGetAll(ctx, KeyWebFiles).Result()
	if err != nil {
		return nil, fmt.Errorf("cannot get web files: %w", err)
	}

	entries := make([]*entity.WebFileEntry, 0, len(all))
	for sid, data := range all {
		var entry entity.WebFileEntry
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			r.log.Error("Cannot unmarshal web file", slog.String("session_id", sid), slog.Any("error", err))

			continue
		}

		entries = append(entries, &entry)
	}

	sortEntries(entries)

	return entries, nil
}
