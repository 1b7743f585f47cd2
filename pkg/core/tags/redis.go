//
//  Copyright © Manetu Inc. All rights reserved.
//

package tags

import (
	"context"
	"fmt"
	"slices"

	"github.com/manetu/dataguard/pkg/policydomain"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix is the key prefix used when none is configured.
const DefaultRedisPrefix = "dataguard"

// SetClient is the subset of the redis client used by RedisSource.
type SetClient interface {
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
}

// RedisSource reads tag bindings from redis sets.  The set <prefix>:tagged lists every tagged
// resource as "service/seg/seg"; the set <prefix>:tags:<resource> holds that resource's tags.
type RedisSource struct {
	client SetClient
	prefix string
}

// NewRedisSource creates a source over client.
func NewRedisSource(client SetClient, prefix string) *RedisSource {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisSource{client: client, prefix: prefix}
}

// NewRedisSourceFromAddr dials a redis server.
func NewRedisSourceFromAddr(addr, prefix string) *RedisSource {
	return NewRedisSource(redis.NewClient(&redis.Options{Addr: addr}), prefix)
}

func (s *RedisSource) indexKey() string {
	return s.prefix + ":tagged"
}

func (s *RedisSource) tagsKey(member string) string {
	return fmt.Sprintf("%s:tags:%s", s.prefix, member)
}

// Name implements Source.
func (s *RedisSource) Name() string {
	return "redis"
}

// Fetch implements Source.  Members naming unknown services are skipped.  Repeated members or
// tags yield a single binding.
func (s *RedisSource) Fetch(ctx context.Context, resolve HierarchyResolver) ([]policydomain.TagBinding, error) {
	members, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis tag index %s: %w", s.indexKey(), err)
	}
	slices.Sort(members)
	members = slices.Compact(members)

	var bindings []policydomain.TagBinding
	for _, member := range members {
		path, ok := parseMember(member, resolve)
		if !ok {
			logger.Warnf(agent, "fetch", "skipping tagged resource '%s': unknown service or bad path", member)
			continue
		}

		tags, err := s.client.SMembers(ctx, s.tagsKey(member)).Result()
		if err != nil {
			return nil, fmt.Errorf("redis tags for %s: %w", member, err)
		}
		slices.Sort(tags)
		tags = slices.Compact(tags)
		for _, t := range tags {
			bindings = append(bindings, policydomain.TagBinding{Resource: path, Tag: t})
		}
	}

	logger.Debugf(agent, "fetch", "loaded %d bindings for %d resources", len(bindings), len(members))
	return bindings, nil
}

// Bind records tag on the resource "service/seg/seg".
func (s *RedisSource) Bind(ctx context.Context, resource, tag string) error {
	if err := s.client.SAdd(ctx, s.indexKey(), resource).Err(); err != nil {
		return err
	}
	return s.client.SAdd(ctx, s.tagsKey(resource), tag).Err()
}

var _ Source = &RedisSource{}
