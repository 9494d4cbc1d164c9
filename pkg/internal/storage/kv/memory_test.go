package kv

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/bytedance/sonic"
)

func TestTTLEncodeDecode(t *testing.T) {
	// 无 TTL 的值原样直通
	raw, wrapped, err := encodeWithTTL([]byte("plain"), 0)
	if err != nil || wrapped {
		t.Fatalf("encode without ttl: wrapped=%v err=%v", wrapped, err)
	}

	value, expired, wasWrapped, err := decodeWithTTL(raw, time.Now())
	if err != nil || expired || wasWrapped || string(value) != "plain" {
		t.Errorf("plain decode = %q expired=%v wrapped=%v err=%v", value, expired, wasWrapped, err)
	}

	// 带 TTL 的值在过期时刻之后判定为已过期
	encoded, wrapped, err := encodeWithTTL([]byte("boxed"), time.Minute)
	if err != nil || !wrapped {
		t.Fatalf("encode with ttl: wrapped=%v err=%v", wrapped, err)
	}

	value, expired, _, err = decodeWithTTL(encoded, time.Now())
	if err != nil || expired || string(value) != "boxed" {
		t.Errorf("fresh decode = %q expired=%v err=%v", value, expired, err)
	}

	_, expired, _, err = decodeWithTTL(encoded, time.Now().Add(2*time.Minute))
	if err != nil || !expired {
		t.Errorf("late decode expired=%v err=%v, want expired", expired, err)
	}
}

func TestMemoryKVBasicOps(t *testing.T) {
	store, err := NewMemoryKV(context.Background(), nil)
	if err != nil {
		t.Fatalf("NewMemoryKV: %v", err)
	}

	ctx := context.Background()

	if err := store.Set(ctx, "quota:u1", []byte("a"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := store.Get(ctx, "quota:u1")
	if err != nil || string(got) != "a" {
		t.Fatalf("get = %q err=%v", got, err)
	}

	exists, err := store.Exists(ctx, "quota:u1")
	if err != nil || !exists {
		t.Errorf("exists = %v err=%v, want true", exists, err)
	}

	if err := store.Delete(ctx, "quota:u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := store.Get(ctx, "quota:u1"); err == nil {
		t.Error("deleted key should not be readable")
	}

	exists, err = store.Exists(ctx, "quota:u1")
	if err != nil || exists {
		t.Errorf("exists after delete = %v err=%v, want false", exists, err)
	}
}

func TestMemoryKVExpiredKeyIsGone(t *testing.T) {
	store := &MemoryKV{}
	ctx := context.Background()

	// 直接放入一个过期时刻在过去的包装值
	tv := ttlValue{V: []byte("stale"), E: time.Now().Add(-time.Minute).Unix()}

	raw, err := sonic.Marshal(tv)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	store.data.Store("quota:old", append([]byte(ttlMagic), raw...))

	fresh, _, err := encodeWithTTL([]byte("ok"), time.Hour)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	store.data.Store("quota:new", fresh)

	// 过期键读取即失败并被惰性删除
	if _, err := store.Get(ctx, "quota:old"); err == nil {
		t.Error("expired key should not be readable")
	}

	if _, loaded := store.data.Load("quota:old"); loaded {
		t.Error("expired key should be lazily deleted on read")
	}

	keys, err := store.Keys(ctx, "quota:*")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}

	if len(keys) != 1 || keys[0] != "quota:new" {
		t.Errorf("keys = %v, want only quota:new", keys)
	}
}

func TestMemoryKVKeysPattern(t *testing.T) {
	store := &MemoryKV{}
	ctx := context.Background()

	seed := map[string]string{
		"quota:u1": "a",
		"quota:u2": "b",
		"other:x":  "c",
	}
	for k, v := range seed {
		if err := store.Set(ctx, k, []byte(v), 0); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}

	keys, err := store.Keys(ctx, "quota:*")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}

	sort.Strings(keys)

	if len(keys) != 2 || keys[0] != "quota:u1" || keys[1] != "quota:u2" {
		t.Errorf("prefix match = %v, want [quota:u1 quota:u2]", keys)
	}

	keys, err = store.Keys(ctx, "*")
	if err != nil || len(keys) != 3 {
		t.Errorf("wildcard match = %v err=%v, want 3 keys", keys, err)
	}

	keys, err = store.Keys(ctx, "other:x")
	if err != nil || len(keys) != 1 {
		t.Errorf("exact match = %v err=%v, want 1 key", keys, err)
	}
}
