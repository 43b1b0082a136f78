package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/support-client/internal/domain"
)

// OutboxRepository stores messages waiting to be replayed. List returns
// entries oldest first.
type OutboxRepository interface {
	Enqueue(ctx context.Context, entry domain.OutboxEntry) error
	List(ctx context.Context) ([]domain.OutboxEntry, error)
	Update(ctx context.Context, entry domain.OutboxEntry) error
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}

type memoryOutboxRepository struct {
	mu      sync.Mutex
	entries map[string]domain.OutboxEntry
}

// NewMemoryOutboxRepository keeps the outbox in process memory.
func NewMemoryOutboxRepository() OutboxRepository {
	return &memoryOutboxRepository{entries: make(map[string]domain.OutboxEntry)}
}

func (r *memoryOutboxRepository) Enqueue(ctx context.Context, entry domain.OutboxEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.ID] = cloneEntry(entry)
	return nil
}

func (r *memoryOutboxRepository) List(ctx context.Context) ([]domain.OutboxEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.OutboxEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, cloneEntry(e))
	}
	sortEntries(out)
	return out, nil
}

func (r *memoryOutboxRepository) Update(ctx context.Context, entry domain.OutboxEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[entry.ID]; !ok {
		return ErrNotFound
	}
	r.entries[entry.ID] = cloneEntry(entry)
	return nil
}

func (r *memoryOutboxRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
	return nil
}

func (r *memoryOutboxRepository) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]domain.OutboxEntry)
	return nil
}

type redisOutboxRepository struct {
	client *redis.Client
	prefix string
}

// NewRedisOutboxRepository keeps the outbox in Redis: a list of entry IDs in
// enqueue order plus one JSON value per entry.
func NewRedisOutboxRepository(client *redis.Client, prefix string) OutboxRepository {
	if prefix == "" {
		prefix = "support:outbox"
	}
	return &redisOutboxRepository{client: client, prefix: prefix}
}

func (r *redisOutboxRepository) idsKey() string {
	return r.prefix + ":ids"
}

func (r *redisOutboxRepository) entryKey(id string) string {
	return r.prefix + ":entry:" + id
}

func (r *redisOutboxRepository) Enqueue(ctx context.Context, entry domain.OutboxEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode outbox entry: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.entryKey(entry.ID), payload, 0)
		pipe.LRem(ctx, r.idsKey(), 0, entry.ID)
		pipe.RPush(ctx, r.idsKey(), entry.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("enqueue outbox entry: %w", err)
	}
	return nil
}

func (r *redisOutboxRepository) List(ctx context.Context) ([]domain.OutboxEntry, error) {
	ids, err := r.client.LRange(ctx, r.idsKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list outbox ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.entryKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load outbox entries: %w", err)
	}
	out := make([]domain.OutboxEntry, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var entry domain.OutboxEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, fmt.Errorf("decode outbox entry: %w", err)
		}
		out = append(out, entry)
	}
	sortEntries(out)
	return out, nil
}

func (r *redisOutboxRepository) Update(ctx context.Context, entry domain.OutboxEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode outbox entry: %w", err)
	}
	ok, err := r.client.SetXX(ctx, r.entryKey(entry.ID), payload, 0).Result()
	if err != nil {
		return fmt.Errorf("update outbox entry: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (r *redisOutboxRepository) Delete(ctx context.Context, id string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, r.idsKey(), 0, id)
		pipe.Del(ctx, r.entryKey(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete outbox entry: %w", err)
	}
	return nil
}

func (r *redisOutboxRepository) Clear(ctx context.Context) error {
	ids, err := r.client.LRange(ctx, r.idsKey(), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("list outbox ids: %w", err)
	}
	keys := []string{r.idsKey()}
	for _, id := range ids {
		keys = append(keys, r.entryKey(id))
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("clear outbox: %w", err)
	}
	return nil
}

type postgresOutboxRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresOutboxRepository keeps the outbox in the support_outbox table.
func NewPostgresOutboxRepository(pool *pgxpool.Pool) OutboxRepository {
	return &postgresOutboxRepository{pool: pool}
}

func (r *postgresOutboxRepository) Enqueue(ctx context.Context, entry domain.OutboxEntry) error {
	const query = `
        INSERT INTO support_outbox (id, ticket_id, text, attachments, created_at, attempts, next_attempt_at, last_error)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (id) DO NOTHING`

	attachments, err := encodeAttachments(entry.Attachments)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, query,
		entry.ID,
		entry.TicketID,
		entry.Text,
		attachments,
		entry.CreatedAt,
		entry.Attempts,
		entry.NextAttemptAt,
		entry.LastError,
	)
	return err
}

func (r *postgresOutboxRepository) List(ctx context.Context) ([]domain.OutboxEntry, error) {
	const query = `
        SELECT id, ticket_id, text, attachments, created_at, attempts, next_attempt_at, last_error
        FROM support_outbox ORDER BY created_at, id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.OutboxEntry
	for rows.Next() {
		var entry domain.OutboxEntry
		var attachments []byte
		if err := rows.Scan(
			&entry.ID,
			&entry.TicketID,
			&entry.Text,
			&attachments,
			&entry.CreatedAt,
			&entry.Attempts,
			&entry.NextAttemptAt,
			&entry.LastError,
		); err != nil {
			return nil, err
		}
		if len(attachments) > 0 {
			if err := json.Unmarshal(attachments, &entry.Attachments); err != nil {
				return nil, fmt.Errorf("decode outbox attachments: %w", err)
			}
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (r *postgresOutboxRepository) Update(ctx context.Context, entry domain.OutboxEntry) error {
	const query = `
        UPDATE support_outbox SET attempts=$1, next_attempt_at=$2, last_error=$3
        WHERE id=$4`

	cmd, err := r.pool.Exec(ctx, query, entry.Attempts, entry.NextAttemptAt, entry.LastError, entry.ID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *postgresOutboxRepository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM support_outbox WHERE id=$1`, id)
	return err
}

func (r *postgresOutboxRepository) Clear(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM support_outbox`)
	return err
}

// IsNotFound reports whether err means the row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, pgx.ErrNoRows)
}

func encodeAttachments(attachments []domain.Attachment) ([]byte, error) {
	if attachments == nil {
		attachments = []domain.Attachment{}
	}
	raw, err := json.Marshal(attachments)
	if err != nil {
		return nil, fmt.Errorf("encode outbox attachments: %w", err)
	}
	return raw, nil
}

func sortEntries(entries []domain.OutboxEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
}

func cloneEntry(e domain.OutboxEntry) domain.OutboxEntry {
	if e.Attachments != nil {
		atts := make([]domain.Attachment, len(e.Attachments))
		for i, a := range e.Attachments {
			a.Data = append([]byte(nil), a.Data...)
			atts[i] = a
		}
		e.Attachments = atts
	}
	return e
}
