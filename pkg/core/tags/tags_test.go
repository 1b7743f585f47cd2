//
//  Copyright © Manetu Inc. All rights reserved.
//

package tags

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/manetu/dataguard/pkg/core/types"
	"github.com/manetu/dataguard/pkg/policydomain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolver(service string) (types.Hierarchy, bool) {
	switch service {
	case "hbase":
		return types.HierarchyFor(types.ServiceHBase)
	case "hdfs":
		return types.HierarchyFor(types.ServiceHDFS)
	}
	return types.Hierarchy{}, false
}

func bind(tag, service string, segments ...string) policydomain.TagBinding {
	return policydomain.TagBinding{Resource: types.NewResourcePath(service, segments...), Tag: tag}
}

func TestTagsFor(t *testing.T) {
	idx := NewIndex(resolver, []policydomain.TagBinding{
		bind("HbaseColTag", "hbase", "temp3", "colfam1", "col1"),
		bind("HbaseColTag", "hbase", "temp3", "colfam1", "col1"),
		bind("HbaseTableTag", "hbase", "temp3"),
		bind("pii", "hbase", "temp3", "colfam1", "col1"),
		bind("raw", "hdfs", "/landing"),
	}, nil)

	assert.Equal(t, 4, idx.Bindings())
	assert.Equal(t, []string{"HbaseColTag", "HbaseTableTag", "pii"}, idx.TagsFor(types.NewResourcePath("hbase", "temp3", "colfam1", "col1")))
	assert.Equal(t, []string{"HbaseTableTag"}, idx.TagsFor(types.NewResourcePath("hbase", "temp3", "colfam1", "col2")))
	assert.Empty(t, idx.TagsFor(types.NewResourcePath("hbase", "temp", "colfam1", "col1")))
	assert.Equal(t, []string{"raw"}, idx.TagsFor(types.NewResourcePath("hdfs", "/landing/2024/file.csv")))
	assert.Nil(t, idx.TagsFor(types.NewResourcePath("unknown", "x")))
}

func TestPoliciesForTag(t *testing.T) {
	policies := []*policydomain.Policy{
		{ID: "10", Tag: "pii", Enabled: true},
		{ID: "9", Tag: "pii", Enabled: true},
		{ID: "11", Tag: "pii", Enabled: false},
		{ID: "1", Resource: map[string]string{"table": "t"}, Enabled: true},
	}
	idx := NewIndex(resolver, nil, policies)

	got := idx.PoliciesForTag("pii")
	require.Len(t, got, 2)
	assert.Equal(t, "9", got[0].ID)
	assert.Equal(t, "10", got[1].ID)
	assert.Empty(t, idx.PoliciesForTag("other"))
}

func TestResolverCache(t *testing.T) {
	cache, err := NewCache(100)
	require.NoError(t, err)
	defer cache.Close()

	path := types.NewResourcePath("hbase", "temp3", "colfam1", "col1")
	v1 := NewResolver(NewIndex(resolver, []policydomain.TagBinding{bind("old", "hbase", "temp3")}, nil), cache, 1)
	assert.Equal(t, []string{"old"}, v1.TagsFor(path))
	cache.Wait()

	cached, ok := cache.Get(1, path)
	require.True(t, ok)
	assert.Equal(t, []string{"old"}, cached)

	// a new snapshot version never sees the old entry
	v2 := NewResolver(NewIndex(resolver, []policydomain.TagBinding{bind("new", "hbase", "temp3")}, nil), cache, 2)
	assert.Equal(t, []string{"new"}, v2.TagsFor(path))

	uncached := NewResolver(v2.Index(), nil, 2)
	assert.Equal(t, []string{"new"}, uncached.TagsFor(path))

	_, err = NewCache(0)
	assert.Error(t, err)
}

func TestCacheHoldsSizeEntries(t *testing.T) {
	cache, err := NewCache(8)
	require.NoError(t, err)
	defer cache.Close()

	var paths []types.ResourcePath
	for i := 0; i < 8; i++ {
		paths = append(paths, types.NewResourcePath("hbase", fmt.Sprintf("t%d", i)))
	}
	for _, p := range paths {
		cache.Set(1, p, []string{"pii"})
		cache.Wait()
	}
	for _, p := range paths {
		tags, ok := cache.Get(1, p)
		require.True(t, ok, p.String())
		assert.Equal(t, []string{"pii"}, tags)
	}
}

func TestStaticSource(t *testing.T) {
	src := NewStaticSource(bind("a", "hbase", "t"), bind("b", "nosuch", "t"))
	assert.Equal(t, "static", src.Name())

	bindings, err := src.Fetch(context.Background(), resolver)
	require.NoError(t, err)
	require.Len(t, bindings, 1)
	assert.Equal(t, "a", bindings[0].Tag)
}

// fakeRedis keeps sets as slices.  SAdd follows redis and ignores existing members; tests may
// seed sets directly to get repeats.
type fakeRedis struct {
	sets map[string][]string
	err  error
}

func (f *fakeRedis) SMembers(_ context.Context, key string) *redis.StringSliceCmd {
	return redis.NewStringSliceResult(f.sets[key], f.err)
}

func (f *fakeRedis) SAdd(_ context.Context, key string, members ...interface{}) *redis.IntCmd {
	if f.sets == nil {
		f.sets = make(map[string][]string)
	}
	var added int64
	for _, m := range members {
		if slices.Contains(f.sets[key], m.(string)) {
			continue
		}
		f.sets[key] = append(f.sets[key], m.(string))
		added++
	}
	return redis.NewIntResult(added, f.err)
}

func TestRedisSource(t *testing.T) {
	ctx := context.Background()
	client := &fakeRedis{}
	src := NewRedisSource(client, "")
	assert.Equal(t, "redis", src.Name())

	require.NoError(t, src.Bind(ctx, "hbase/temp3/colfam1/col1", "HbaseColTag"))
	require.NoError(t, src.Bind(ctx, "hbase/temp3/colfam1/col1", "pii"))
	require.NoError(t, src.Bind(ctx, "hdfs//landing/raw", "raw"))
	require.NoError(t, src.Bind(ctx, "cassandra/ks/t", "ignored"))

	require.NoError(t, src.Bind(ctx, "hbase/temp3/colfam1/col1", "pii"))

	assert.Len(t, client.sets["dataguard:tagged"], 3)
	assert.Len(t, client.sets["dataguard:tags:hbase/temp3/colfam1/col1"], 2)

	bindings, err := src.Fetch(ctx, resolver)
	require.NoError(t, err)
	require.Len(t, bindings, 3)
	assert.Equal(t, bind("HbaseColTag", "hbase", "temp3", "colfam1", "col1"), bindings[0])
	assert.Equal(t, bind("pii", "hbase", "temp3", "colfam1", "col1"), bindings[1])
	assert.Equal(t, bind("raw", "hdfs", "/landing/raw"), bindings[2])
}

func TestRedisSourceRepeatedMembers(t *testing.T) {
	client := &fakeRedis{sets: map[string][]string{
		"dg:tagged":            {"hbase/temp3", "hbase/temp3", "hbase/temp4"},
		"dg:tags:hbase/temp3": {"pii", "raw", "pii"},
		"dg:tags:hbase/temp4": {"raw"},
	}}

	bindings, err := NewRedisSource(client, "dg").Fetch(context.Background(), resolver)
	require.NoError(t, err)
	assert.Equal(t, []policydomain.TagBinding{
		bind("pii", "hbase", "temp3"),
		bind("raw", "hbase", "temp3"),
		bind("raw", "hbase", "temp4"),
	}, bindings)
}

func TestRedisSourceErrors(t *testing.T) {
	src := NewRedisSource(&fakeRedis{err: errors.New("connection refused")}, "dg")
	_, err := src.Fetch(context.Background(), resolver)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dg:tagged")
	assert.Error(t, src.Bind(context.Background(), "hbase/t", "x"))
}
