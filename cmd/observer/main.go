package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"statforge"
	"statforge/internal/net/ws"
)

func main() {
	serverURL := flag.String("url", "ws://localhost:8080/ws", "replication endpoint")
	owner := flag.String("owner", "", "owner id to follow")
	flag.Parse()

	if *owner == "" {
		log.Fatalf("missing -owner")
	}

	u, err := url.Parse(*serverURL)
	if err != nil {
		log.Fatalf("invalid -url: %v", err)
	}
	q := u.Query()
	q.Set("owner", *owner)
	u.RawQuery = q.Encode()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mirror := statforge.NewMirror()
	defer mirror.Close()

	log.Printf("following %s at %s", *owner, u.String())

	client := ws.NewClient(mirror, log.Default())
	done := make(chan error, 1)
	go func() {
		done <- client.Run(ctx, u.String())
	}()

	// Subscriptions attach as paths appear; poll the mirror for new ones
	// and print every settled value change.
	go watch(ctx, mirror)

	if err := <-done; err != nil && ctx.Err() == nil {
		log.Fatalf("%v", err)
	}
}

func watch(ctx context.Context, mirror *statforge.Mirror) {
	seen := make(map[string]bool)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for _, path := range mirror.Paths() {
			if seen[path] {
				continue
			}
			seen[path] = true
			p := path
			fmt.Printf("%s = %.3f\n", p, mirror.Value(p))
			mirror.Subscribe(p, func(value float64) {
				fmt.Printf("%s = %.3f\n", p, value)
			})
		}
	}
}
