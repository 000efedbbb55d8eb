package persistence

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/petrijr/retrofit/pkg/api"
)

// RedisStore is a ProgramStore and ParticipantStore backed by Redis.
// It uses a simple key structure:
//
//	<prefix>prog:<id>             => JSON-encoded api.Program
//	<prefix>idx:programs          => SET of all program IDs
//	<prefix>part:<id>             => JSON-encoded api.Participant
//	<prefix>idx:participants      => SET of all participant IDs
//	<prefix>idx:program:<program> => SET of participant IDs for a program
//
// Participant updates use WATCH/MULTI so a concurrent writer turns into
// ErrVersionConflict instead of a lost update.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ ProgramStore = (*RedisStore)(nil)

var _ ParticipantStore = (*RedisStore)(nil)

// NewRedisStore creates a RedisStore.
// prefix is optional but recommended (e.g. "retrofit:").
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "retrofit:"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

func (r *RedisStore) keyProgram(id string) string {
	return r.prefix + "prog:" + id
}

func (r *RedisStore) keyPrograms() string {
	return r.prefix + "idx:programs"
}

func (r *RedisStore) keyParticipant(id string) string {
	return r.prefix + "part:" + id
}

func (r *RedisStore) keyParticipants() string {
	return r.prefix + "idx:participants"
}

func (r *RedisStore) keyProgramParticipants(programID string) string {
	return r.prefix + "idx:program:" + programID
}

func (r *RedisStore) SaveProgram(ctx context.Context, prog api.Program) error {
	data, err := EncodeValue(prog)
	if err != nil {
		return err
	}

	ok, err := r.client.SetNX(ctx, r.keyProgram(prog.ID), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrProgramExists
	}
	return r.client.SAdd(ctx, r.keyPrograms(), prog.ID).Err()
}

func (r *RedisStore) UpdateProgram(ctx context.Context, prog api.Program) error {
	data, err := EncodeValue(prog)
	if err != nil {
		return err
	}

	ok, err := r.client.SetXX(ctx, r.keyProgram(prog.ID), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrProgramNotFound
	}
	return nil
}

func (r *RedisStore) GetProgram(ctx context.Context, id string) (api.Program, error) {
	data, err := r.client.Get(ctx, r.keyProgram(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return api.Program{}, ErrProgramNotFound
		}
		return api.Program{}, err
	}
	return DecodeValue[api.Program](data)
}

func (r *RedisStore) ListPrograms(ctx context.Context) ([]api.Program, error) {
	ids, err := r.client.SMembers(ctx, r.keyPrograms()).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, r.keyProgram(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	out := make([]api.Program, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, err
		}
		prog, err := DecodeValue[api.Program](data)
		if err != nil {
			return nil, err
		}
		out = append(out, prog)
	}
	sortPrograms(out)
	return out, nil
}

func (r *RedisStore) SaveParticipant(ctx context.Context, p *api.Participant) error {
	data, err := EncodeValue(*p)
	if err != nil {
		return err
	}

	ok, err := r.client.SetNX(ctx, r.keyParticipant(p.ID), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrParticipantExists
	}

	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, r.keyParticipants(), p.ID)
	pipe.SAdd(ctx, r.keyProgramParticipants(p.ProgramID), p.ID)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisStore) UpdateParticipant(ctx context.Context, p *api.Participant, expectedVersion int64) error {
	key := r.keyParticipant(p.ID)

	data, err := EncodeValue(*p)
	if err != nil {
		return err
	}

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrParticipantNotFound
			}
			return err
		}
		cur, err := DecodeValue[api.Participant](raw)
		if err != nil {
			return err
		}
		if cur.Version != expectedVersion {
			return ErrVersionConflict
		}
		if len(p.StatusHistory) < len(cur.StatusHistory) {
			return ErrHistoryRewrite
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			if cur.ProgramID != p.ProgramID {
				pipe.SRem(ctx, r.keyProgramParticipants(cur.ProgramID), p.ID)
				pipe.SAdd(ctx, r.keyProgramParticipants(p.ProgramID), p.ID)
			}
			return nil
		})
		return err
	}

	err = r.client.Watch(ctx, txf, key)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrVersionConflict
	}
	return err
}

func (r *RedisStore) GetParticipant(ctx context.Context, id string) (*api.Participant, error) {
	data, err := r.client.Get(ctx, r.keyParticipant(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrParticipantNotFound
		}
		return nil, err
	}
	p, err := DecodeValue[api.Participant](data)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *RedisStore) ListParticipants(ctx context.Context, filter ParticipantFilter) ([]*api.Participant, error) {
	indexKey := r.keyParticipants()
	if filter.ProgramID != "" {
		indexKey = r.keyProgramParticipants(filter.ProgramID)
	}

	ids, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, r.keyParticipant(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	var participants []*api.Participant
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, err
		}
		p, err := DecodeValue[api.Participant](data)
		if err != nil {
			return nil, err
		}
		// Status and hold are filtered on the payload; the indexes only cover programs.
		if !filter.Matches(&p) {
			continue
		}
		participants = append(participants, &p)
	}

	sortParticipants(participants)
	return participants, nil
}
