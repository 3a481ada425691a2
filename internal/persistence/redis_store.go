package persistence

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/volvoxlabs/weft/pkg/api"
)

// RedisInstanceStore is an InstanceStore backed by Redis.
// It uses a simple key structure:
//
//	<prefix>inst:<id>            => gob-encoded redisRunPayload
//	<prefix>idx:all              => SET of all run IDs
//	<prefix>idx:graph:<name>     => SET of run IDs for a given graph
//
// Status is not indexed: it changes on every step, so ListInstances
// filters by the decoded payload instead of chasing stale index members.
type RedisInstanceStore struct {
	client *redis.Client
	prefix string
}

var _ InstanceStore = (*RedisInstanceStore)(nil)

type redisRunPayload struct {
	ID           string
	Graph        string
	GraphVersion string
	Current      string
	Status       string
	Context      []byte
	History      []byte
	Error        string
	CreatedAt    int64
	UpdatedAt    int64
}

// NewRedisInstanceStore creates a RedisInstanceStore.
// prefix is optional but recommended (e.g. "weft:").
func NewRedisInstanceStore(client *redis.Client, prefix string) *RedisInstanceStore {
	if prefix == "" {
		prefix = "weft:"
	}
	return &RedisInstanceStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisInstanceStore) keyInstance(id string) string {
	return s.prefix + "inst:" + id
}

func (s *RedisInstanceStore) keyAll() string {
	return s.prefix + "idx:all"
}

func (s *RedisInstanceStore) keyGraph(name string) string {
	return s.prefix + "idx:graph:" + name
}

func encodeRedisPayload(inst *api.WorkflowInstance) ([]byte, error) {
	row, err := encodeRow(inst)
	if err != nil {
		return nil, err
	}

	payload := redisRunPayload{
		ID:           inst.ID,
		Graph:        inst.Graph,
		GraphVersion: inst.GraphVersion,
		Current:      inst.Current,
		Status:       string(inst.Status),
		Context:      row.context,
		History:      row.history,
		Error:        row.errStr,
		CreatedAt:    inst.CreatedAt.UnixNano(),
		UpdatedAt:    inst.UpdatedAt.UnixNano(),
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&payload); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRedisPayload(data []byte) (*api.WorkflowInstance, error) {
	if len(data) == 0 {
		return nil, ErrInstanceNotFound
	}
	var payload redisRunPayload
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&payload); err != nil {
		return nil, err
	}

	values, err := DecodeContext(payload.Context)
	if err != nil {
		return nil, err
	}
	history, err := DecodeHistory(payload.History)
	if err != nil {
		return nil, err
	}

	inst := &api.WorkflowInstance{
		ID:           payload.ID,
		Graph:        payload.Graph,
		GraphVersion: payload.GraphVersion,
		Current:      payload.Current,
		Status:       api.Status(payload.Status),
		Context:      api.NewContext(values),
		History:      history,
		CreatedAt:    time.Unix(0, payload.CreatedAt),
		UpdatedAt:    time.Unix(0, payload.UpdatedAt),
	}
	if inst.Status.Terminal() {
		inst.Context.Freeze()
	}
	if payload.Error != "" {
		inst.Err = errors.New(payload.Error)
	}
	return inst, nil
}

func (s *RedisInstanceStore) SaveInstance(inst *api.WorkflowInstance) error {
	ctx := context.Background()

	data, err := encodeRedisPayload(inst)
	if err != nil {
		return err
	}

	if err := s.client.Set(ctx, s.keyInstance(inst.ID), data, 0).Err(); err != nil {
		return err
	}

	// Index updates are best-effort; ListInstances filters by payload.
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, s.keyAll(), inst.ID)
	pipe.SAdd(ctx, s.keyGraph(inst.Graph), inst.ID)
	_, _ = pipe.Exec(ctx)

	return nil
}

func (s *RedisInstanceStore) UpdateInstance(inst *api.WorkflowInstance) error {
	ctx := context.Background()

	exists, err := s.client.Exists(ctx, s.keyInstance(inst.ID)).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return ErrInstanceNotFound
	}

	data, err := encodeRedisPayload(inst)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.keyInstance(inst.ID), data, 0).Err()
}

func (s *RedisInstanceStore) GetInstance(id string) (*api.WorkflowInstance, error) {
	ctx := context.Background()

	data, err := s.client.Get(ctx, s.keyInstance(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrInstanceNotFound
		}
		return nil, err
	}
	return decodeRedisPayload(data)
}

func (s *RedisInstanceStore) ListInstances(filter InstanceFilter) ([]*api.WorkflowInstance, error) {
	ctx := context.Background()

	var ids []string
	var err error
	if filter.Graph != "" {
		ids, err = s.client.SMembers(ctx, s.keyGraph(filter.Graph)).Result()
	} else {
		ids, err = s.client.SMembers(ctx, s.keyAll()).Result()
	}
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*api.WorkflowInstance{}, nil
		}
		return nil, err
	}
	if len(ids) == 0 {
		return []*api.WorkflowInstance{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, s.keyInstance(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	var instances []*api.WorkflowInstance
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, err
		}
		inst, err := decodeRedisPayload(data)
		if err != nil {
			return nil, err
		}
		if filter.Status != "" && inst.Status != filter.Status {
			continue
		}
		instances = append(instances, inst)
	}
	return instances, nil
}

func (s *RedisInstanceStore) DeleteInstance(id string) error {
	ctx := context.Background()

	deleted, err := s.client.Del(ctx, s.keyInstance(id)).Result()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return ErrInstanceNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.SRem(ctx, s.keyAll(), id)
	_, _ = pipe.Exec(ctx)
	return nil
}
