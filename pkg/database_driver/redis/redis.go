package redis

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// pingTimeout bounds the connectivity check at startup
const pingTimeout = 2 * time.Second

// Connect opens a client and pings the server once
func Connect(addr, password string, db int) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	logrus.Infof("Connected to redis at %s, db %d", addr, db)
	return client, nil
}

// Disconnect closes the client
func Disconnect(client *goredis.Client) {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil {
		logrus.Error(err)
	}
	logrus.Println("Connection with redis has closed")
}
