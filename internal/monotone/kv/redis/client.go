// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package redis

import (
	"context"

	goredis "github.com/redis/go-redis/v9"
)

// GoRedisEvaler wraps github.com/redis/go-redis/v9's *Client to satisfy
// Evaler, mirroring etalazz-vsa's GoRedisEvaler in
// internal/ratelimiter/persistence/clients.go.
type GoRedisEvaler struct{ c *goredis.Client }

// NewGoRedisEvaler builds an Evaler backed by a real Redis connection at
// addr (e.g. "127.0.0.1:6379").
func NewGoRedisEvaler(addr string) *GoRedisEvaler {
	return &GoRedisEvaler{c: goredis.NewClient(&goredis.Options{Addr: addr})}
}

func (g *GoRedisEvaler) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	return g.c.Eval(ctx, script, keys, args...).Result()
}

func (g *GoRedisEvaler) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return g.c.HGetAll(ctx, key).Result()
}

func (g *GoRedisEvaler) Del(ctx context.Context, keys ...string) error {
	return g.c.Del(ctx, keys...).Err()
}
