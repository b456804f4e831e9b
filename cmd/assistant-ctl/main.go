package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	cli "github.com/spf13/pflag"

	"github.com/furkannumanoglu/ai-personal-assistant/internal/conversation"
	"github.com/furkannumanoglu/ai-personal-assistant/internal/feed"
	"github.com/furkannumanoglu/ai-personal-assistant/internal/ipc"
	"github.com/furkannumanoglu/ai-personal-assistant/internal/session"
)

const usage = `usage: assistant-ctl [flags] <command> [on|off]

commands:
  record          start or stop a main recording
  wake on|off     start or stop wake-word listening
  memory on|off   send recent history with each question
  tts on|off      speak replies
  clear           clear the conversation
  status          print the current state
  history         print the conversation
  watch           stream state and entries until interrupted
`

func main() {
	socket := cli.StringP("socket", "s", ipc.DefaultSocketPath, "Daemon control socket")
	feedURL := cli.StringP("feed", "f", "ws://127.0.0.1:3002/ws", "Daemon event feed url")
	timeout := cli.DurationP("timeout", "t", 5*time.Second, "Request timeout")
	retry := cli.Duration("retry", 2*time.Second, "Redial interval for watch, 0 to exit on disconnect")
	cli.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	cli.Parse()

	args := cli.Args()
	if len(args) == 0 {
		cli.Usage()
		os.Exit(2)
	}

	if args[0] == "watch" {
		if err := watch(*feedURL, *retry); err != nil {
			fmt.Fprintln(os.Stderr, "watch:", err)
			os.Exit(1)
		}
		return
	}

	req := ipc.Request{Cmd: args[0]}
	if len(args) > 1 {
		req.Arg = args[1]
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	reply, err := ipc.SendCommand(ctx, *socket, req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "assistant not reachable:", err)
		os.Exit(1)
	}

	if reply.State != nil {
		printState(*reply.State)
	}
	for _, e := range reply.Entries {
		printEntry(e)
	}
}

func watch(url string, retry time.Duration) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return feed.Watch(ctx, url, retry, func(f feed.Frame) {
		if f.State != nil && f.Type != string(session.EventEntry) {
			printState(*f.State)
		}
		for _, e := range f.Entries {
			printEntry(e)
		}
		if f.Entry != nil {
			printEntry(*f.Entry)
		}
	})
}

func printState(st session.State) {
	fmt.Printf("phase=%s playing=%t memory=%s tts=%s\n",
		st.Phase, st.Playing, onOff(st.MemoryEnabled), onOff(st.TTSEnabled))
}

func printEntry(e conversation.Entry) {
	fmt.Printf("%s %-9s %s\n", e.CreatedAt.Format(time.TimeOnly), strings.ToUpper(string(e.Kind)), e.Text)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
