// Package redisstore implementa el bloqueo por salón y el almacén de idempotencia sobre
// Redis, para despliegues con varias réplicas de la API.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options conexión a Redis.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// NewClient abre el cliente y verifica la conexión con PING.
func NewClient(ctx context.Context, o Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     o.Addr,
		Password: o.Password,
		DB:       o.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", o.Addr, err)
	}
	return client, nil
}
