// flychat CLI - command line client for flychat rooms
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/fanout/flychat/clients/go/flychat"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	client := flychat.NewClient(os.Getenv("FLYCHAT_URL"))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := os.Args[1]
	switch cmd {
	case "health":
		resp, err := client.Health(ctx)
		exitOnError(err)
		printJSON(resp)

	case "read":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: flychat read <room>")
			os.Exit(1)
		}
		snap, err := client.Snapshot(ctx, os.Args[2])
		exitOnError(err)
		for _, msg := range snap.Messages {
			printMessage(msg)
		}

	case "post":
		if len(os.Args) < 5 {
			fmt.Fprintln(os.Stderr, "Usage: flychat post <room> <from> <text>")
			os.Exit(1)
		}
		msg, err := client.Post(ctx, os.Args[2], os.Args[3], os.Args[4])
		exitOnError(err)
		fmt.Printf("Posted: #%d\n", msg.ID)

	case "tail":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: flychat tail <room>")
			os.Exit(1)
		}
		tail(ctx, client, os.Args[2])

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

// tail follows a room, printing confirmed messages and noting provisional
// ones that never confirm.
func tail(ctx context.Context, client *flychat.Client, room string) {
	tl := flychat.NewTimeline(flychat.DefaultPendingExpiry)

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, m := range tl.Expire() {
					fmt.Printf("  (unconfirmed, dropped) %s: %s\n", m.From, m.Text)
				}
			}
		}
	}()

	err := client.Follow(ctx, room, 0, func(ev flychat.Event) error {
		if ev.Name == flychat.EventStreamReset {
			fmt.Println("-- history truncated --")
		}
		before := tl.LastID()
		if _, err := tl.Apply(ev); err != nil {
			return err
		}
		if ev.Name == flychat.EventMessage && tl.LastID() != before {
			msgs := tl.Messages()
			for _, m := range msgs {
				if m.ID == tl.LastID() {
					printMessage(m)
				}
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		exitOnError(err)
	}
}

func usage() {
	fmt.Println(`flychat CLI

Usage: flychat <command> [options]

Commands:
  post <room> <from> <text>   Post a message
  read <room>                 Print retained messages
  tail <room>                 Follow a room live
  health                      Check server health

Environment:
  FLYCHAT_URL   Server URL (default: http://localhost:8080)`)
}

func printMessage(m flychat.Message) {
	fmt.Printf("[%s] #%d %s: %s\n", m.Date.Local().Format("2006-01-02 15:04:05"), m.ID, m.From, m.Text)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
