package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"

	"lingo-dm/client"
	"lingo-dm/domain"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	server := flag.String("server", "http://localhost:8080", "Server base URL")
	token := flag.String("token", "", "Bearer token (see cmd/tools/gentoken)")
	peer := flag.String("peer", "", "User ID of the conversation peer")
	limit := flag.Int("history", domain.DefaultPageSize, "History page size")
	level := flag.String("level", "WARN", "Log level")
	flag.Parse()

	if *token == "" || *peer == "" {
		return fmt.Errorf("both -token and -peer are required")
	}
	log := logs.GetLoggerFromString(*level)

	ctx := context.Background()
	wsURL := strings.Replace(*server, "http", "ws", 1) + "/ws"
	conn, err := client.Dial(ctx, wsURL, *token, log)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() { _ = conn.Close() }()

	// Backfill before going interactive so the table shows context.
	page, err := client.FetchHistory(ctx, *server, *token, *peer, *limit, 0)
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}
	conn.Timeline().MergeHistory(page)
	renderHistory(conn.Timeline().Snapshot())

	go watchTimeline(conn, *peer)

	color.Gray.Println("Type a message and press Enter. Commands: /history, /quit")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return nil
		case line == "/history":
			renderHistory(conn.Timeline().Snapshot())
			continue
		}

		conn.NotifyTyping(*peer)
		sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		message, err := conn.Send(sendCtx, *peer, line)
		cancel()
		if err != nil {
			color.Red.Printf("send failed: %v\n", err)
			continue
		}
		color.Cyan.Printf("[%s] me: %s\n", formatTime(message.CreatedAt), message.Text)
	}
	return scanner.Err()
}

// watchTimeline prints peer activity as it lands in the local view:
// incoming messages once, and typing transitions as they flip.
func watchTimeline(conn *client.Conn, peer string) {
	printed := make(map[string]struct{})
	typing := false
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-conn.Done():
			color.Red.Println("connection closed")
			return
		case <-ticker.C:
			for _, entry := range conn.Timeline().Snapshot() {
				if entry.Status != client.StatusDelivered || entry.Message.SenderID != peer {
					continue
				}
				if _, seen := printed[entry.Message.MessageID]; seen {
					continue
				}
				printed[entry.Message.MessageID] = struct{}{}
				color.Green.Printf("[%s] %s: %s\n", formatTime(entry.Message.CreatedAt), peer, entry.Message.Text)
			}

			now := conn.Timeline().PeerTyping(time.Now())
			if now != typing {
				typing = now
				if typing {
					color.Yellow.Printf("%s is typing...\n", peer)
				}
			}
		}
	}
}

func renderHistory(entries []client.Entry) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Time", "From", "Status", "Text"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, entry := range entries {
		table.Append([]string{
			formatTime(entry.Message.CreatedAt),
			entry.Message.SenderID,
			string(entry.Status),
			entry.Message.Text,
		})
	}
	table.Render()
}

func formatTime(createdAt int64) string {
	return time.UnixMilli(createdAt).Local().Format("15:04:05")
}
