// Package main is an interactive client driving the sync engine
// against a gateway server. It is a development harness, not a UI: it
// prints the engine's observable state and accepts simple commands.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/driftline/chatsync/internal/config"
	"github.com/driftline/chatsync/internal/gateway"
	"github.com/driftline/chatsync/internal/model"
	"github.com/driftline/chatsync/internal/snapshot"
	syncengine "github.com/driftline/chatsync/internal/sync"
	"github.com/driftline/chatsync/pkg/logger"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	snap, err := snapshot.Open(cfg.SnapshotPath, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open snapshot store: %v\n", err)
		os.Exit(1)
	}
	defer snap.Close()

	gw := gateway.NewHTTPClient(cfg.GatewayURL, cfg.GatewayTimeout)

	engine := syncengine.New(gw, snap, log, syncengine.Config{
		Profile: syncengine.Profile{
			UserID:      cfg.LocalUserID,
			DisplayName: cfg.LocalUserName,
			AvatarRef:   cfg.LocalUserAvatar,
		},
		ReactionErrorTTL: cfg.ReactionErrorTTL,
	})
	defer engine.Close()

	ctx := context.Background()
	engine.Bootstrap(ctx)

	fmt.Println("chatsync — commands: ls | sel <id> | msgs | send <text> | img <ref> | react <msgid> <like|love|laugh> | clearerr | quit")
	repl(ctx, engine)
}

func repl(ctx context.Context, engine *syncengine.Engine) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "quit", "exit":
			return

		case "ls":
			state := engine.State()
			for _, conv := range state.Conversations {
				marker := " "
				if conv.ID == state.SelectedConversation {
					marker = "*"
				}
				fmt.Printf("%s %d  %q (last activity %d, %d participants)\n",
					marker, conv.ID, conv.LastMessagePreview, conv.LastActivityTS, len(conv.Participants))
			}

		case "sel":
			if len(fields) < 2 {
				fmt.Println("usage: sel <id>")
				continue
			}
			id, err := strconv.ParseInt(fields[1], 10, 64)
			if err != nil {
				fmt.Println("invalid conversation id")
				continue
			}
			engine.Registry.Select(ctx, id)
			printMessages(engine)

		case "msgs":
			printMessages(engine)

		case "send":
			if len(fields) < 2 {
				fmt.Println("usage: send <text>")
				continue
			}
			body := strings.Join(fields[1:], " ")
			engine.Timeline.Send(ctx, engine.Registry.Selected(), body, model.KindText)
			reportSend(engine)

		case "img":
			if len(fields) < 2 {
				fmt.Println("usage: img <ref>")
				continue
			}
			engine.Timeline.Send(ctx, engine.Registry.Selected(), fields[1], model.KindImage)
			reportSend(engine)

		case "react":
			if len(fields) < 3 {
				fmt.Println("usage: react <msgid> <like|love|laugh>")
				continue
			}
			reactionType := model.ReactionType(fields[2])
			if !model.ValidReactionType(reactionType) {
				fmt.Println("unknown reaction type")
				continue
			}
			engine.Reactions.Toggle(ctx, fields[1], reactionType)
			counts := engine.Reactions.Counts(fields[1])
			if msg, failed := engine.Reactions.Err(fields[1]); failed {
				fmt.Printf("! %s (counts restored: like %d, love %d, laugh %d)\n",
					msg, counts.Like, counts.Love, counts.Laugh)
			} else {
				fmt.Printf("like %d, love %d, laugh %d\n", counts.Like, counts.Love, counts.Laugh)
			}

		case "clearerr":
			engine.Timeline.ClearSendError()

		default:
			fmt.Println("unknown command")
		}
	}
}

func printMessages(engine *syncengine.Engine) {
	state := engine.State()
	for _, msg := range state.Messages {
		counts := state.Reactions[msg.ID()]
		fmt.Printf("[%s] %s: %s  (like %d, love %d, laugh %d)\n",
			msg.ID(), msg.Sender, msg.Body, counts.Like, counts.Love, counts.Laugh)
	}
	if state.Phase != syncengine.PhaseIdle {
		fmt.Printf("(%s)\n", state.Phase)
	}
}

func reportSend(engine *syncengine.Engine) {
	if errText := engine.Timeline.SendError(); errText != "" {
		fmt.Printf("! send failed: %s (clearerr to dismiss)\n", errText)
	}
}
