package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sshwatch/sshwatch/internal/models"
)

func newEventsCmd() *cobra.Command {
	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect the live event stream",
	}

	var token, topic string
	tailCmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow the live event stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			url := fmt.Sprintf("%s/api/log-events/stream?topic=%s&access_token=%s",
				strings.TrimRight(serverURL, "/"), topic, token)

			resp, err := http.Get(url)
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("server returned %s", resp.Status)
			}

			scanner := bufio.NewScanner(resp.Body)
			for scanner.Scan() {
				line := scanner.Text()
				if !strings.HasPrefix(line, "data: ") {
					continue
				}
				printStreamMessage(strings.TrimPrefix(line, "data: "))
			}
			return scanner.Err()
		},
	}
	tailCmd.Flags().StringVar(&token, "token", "", "session token (required)")
	tailCmd.Flags().StringVar(&topic, "topic", "events", "topic to follow: events or suspicious")
	tailCmd.MarkFlagRequired("token")

	eventsCmd.AddCommand(tailCmd)
	return eventsCmd
}

func printStreamMessage(data string) {
	var msg models.StreamMessage
	if err := json.Unmarshal([]byte(data), &msg); err != nil {
		fmt.Println(data)
		return
	}

	switch msg.Type {
	case models.StreamTypeConnected:
		color.Cyan("connected")
	case models.StreamTypeSuspicious:
		e := msg.Event
		if e == nil {
			return
		}
		color.Red("%s  %s@%s from %s  %s/%s  suspicious=%v new_source=%v",
			e.Timestamp.Format("2006-01-02 15:04:05"), e.Username, e.Hostname,
			e.IPAddress, e.EventType, e.Status,
			boolVal(msg.IsSuspicious), boolVal(msg.IsNewLoginSource))
	default:
		e := msg.Event
		if e == nil {
			return
		}
		line := fmt.Sprintf("%s  %s@%s from %s  %s/%s",
			e.Timestamp.Format("2006-01-02 15:04:05"), e.Username, e.Hostname,
			e.IPAddress, e.EventType, e.Status)
		if e.Status == models.StatusFailed {
			color.Yellow("%s", line)
		} else {
			fmt.Println(line)
		}
	}
}

func boolVal(b *bool) bool {
	return b != nil && *b
}
