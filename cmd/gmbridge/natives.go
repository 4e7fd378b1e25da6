package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gaspardpetit/gmbridge/internal/logx"
	"github.com/gaspardpetit/gmbridge/internal/natives"
)

// registerNatives exposes the headless host's functions to the game mode.
func registerNatives(r *natives.Registry, started time.Time) {
	log := logx.Component("natives")

	r.Register("GetTickCount", func(context.Context, []any) (int32, error) {
		return int32(time.Since(started).Milliseconds()), nil
	})
	r.Register("print", func(_ context.Context, args []any) (int32, error) {
		if len(args) != 1 {
			return 0, fmt.Errorf("%w: print takes one string", natives.ErrBadArguments)
		}
		s, ok := args[0].(string)
		if !ok {
			return 0, fmt.Errorf("%w: print takes one string", natives.ErrBadArguments)
		}
		log.Info().Str("source", "gamemode").Msg(s)
		return 1, nil
	})
	r.Register("gettime", func(context.Context, []any) (int32, error) {
		return int32(time.Now().Unix()), nil
	})
}
