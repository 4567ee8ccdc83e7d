package main

import "time"

type Config struct {
	BufferSize           int           `env:"BUFFER_SIZE,default=64"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	ReplyDelay           time.Duration `env:"REPLY_DELAY,default=1800ms"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	LogLevel             string        `env:"LOG_LEVEL,default=info"`
	Host                 string        `env:"HOST,default=localhost"`
	Port                 int           `env:"PORT,default=8080"`
}
