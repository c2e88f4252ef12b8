package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"cronos/internal/logging"
	"cronos/internal/messaging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	conversePhone1     string
	converseChat1      string
	conversePhone2     string
	converseChat2      string
	converseIterations int
	converseImage      string
	converseVPN        bool
	converseMinPause   time.Duration
	converseMaxPause   time.Duration
)

// converseCmd warms two accounts up by having them chat with each other
var converseCmd = &cobra.Command{
	Use:   "converse",
	Short: "Simulate a conversation between two logged-in sessions",
	Long: `Alternates scripted messages between two sessions: phone1 writes to chat1,
then phone2 answers to chat2, with a random pause after every send. An image
can be attached to every message. All sessions are closed at the end.

Example:
  cronos converse --phone1 5511999990001 --chat1 "Bob" \
                  --phone2 5511999990002 --chat2 "Alice" --iterations 5`,
	RunE: runConverse,
}

func init() {
	converseCmd.Flags().StringVar(&conversePhone1, "phone1", "", "Session of the first participant")
	converseCmd.Flags().StringVar(&converseChat1, "chat1", "", "Contact the first participant writes to")
	converseCmd.Flags().StringVar(&conversePhone2, "phone2", "", "Session of the second participant")
	converseCmd.Flags().StringVar(&converseChat2, "chat2", "", "Contact the second participant writes to")
	converseCmd.Flags().IntVar(&converseIterations, "iterations", 5, "Number of exchanges")
	converseCmd.Flags().StringVar(&converseImage, "image", "", "Image attached to every message")
	converseCmd.Flags().BoolVar(&converseVPN, "vpn", false, "Route the sessions through the VPN")
	converseCmd.Flags().DurationVar(&converseMinPause, "min-pause", time.Second, "Shortest pause after a send")
	converseCmd.Flags().DurationVar(&converseMaxPause, "max-pause", 5*time.Second, "Longest pause after a send")

	for _, name := range []string{"phone1", "chat1", "phone2", "chat2"} {
		_ = converseCmd.MarkFlagRequired(name)
	}
}

var (
	firstLines = []string{
		"Hi, how is it going?",
		"Did you get the picture?",
		"What did you think?",
		"Nice, right?",
		"Talk to you later!",
	}
	secondLines = []string{
		"All good! And you?",
		"Yes, got it.",
		"Looked great!",
		"Really liked it!",
		"Thanks, see you!",
	}
)

// participant is one side of a simulated conversation.
type participant struct {
	identity string
	chat     string
	lines    []string
}

// messageSender is the part of the orchestrator converse needs.
type messageSender interface {
	Send(ctx context.Context, req messaging.Request) messaging.Result
}

func runConverse(cmd *cobra.Command, args []string) error {
	if converseIterations < 1 {
		return errors.New("--iterations must be at least 1")
	}
	if converseMaxPause < converseMinPause {
		return errors.New("--max-pause must not be shorter than --min-pause")
	}

	ctx, cancel := commandContext()
	defer cancel()

	a, err := newApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.close()

	sides := []participant{
		{identity: conversePhone1, chat: converseChat1, lines: firstLines},
		{identity: conversePhone2, chat: converseChat2, lines: secondLines},
	}
	for _, p := range sides {
		if _, status, err := a.manager.GetSession(ctx, p.identity, converseVPN); err != nil {
			return fmt.Errorf("open session %s: %w", p.identity, err)
		} else if !status.LoggedIn() {
			fmt.Println(renderStatus(p.identity, status))
		}
	}

	pause := func(ctx context.Context) error {
		return sleepContext(ctx, randomPause(converseMinPause, converseMaxPause))
	}
	sent, failed, err := converse(ctx, a.sender, sides, converseIterations, converseImage, converseVPN, pause)

	a.manager.CloseAllSessions()
	fmt.Printf("%s %d sent, %d failed\n", titleStyle.Render("conversation finished"), sent, failed)
	return err
}

// converse alternates the participants for the given number of rounds.
// A failed send is logged and the conversation goes on.
func converse(ctx context.Context, sender messageSender, sides []participant, iterations int, image string, useVPN bool, pause func(context.Context) error) (sent, failed int, err error) {
	log := logging.Get(logging.CategoryMessaging)
	for i := 0; i < iterations; i++ {
		for _, p := range sides {
			line := p.lines[i%len(p.lines)]
			log.Info("conversation turn",
				zap.Int("round", i+1),
				zap.String("session", p.identity),
				zap.String("to", p.chat))

			res := sender.Send(ctx, messaging.Request{
				Session: p.identity,
				To:      p.chat,
				UseVPN:  useVPN,
				Message: messaging.Message{Image: image, Text: line},
			})
			if res.Success {
				sent++
			} else {
				failed++
				log.Error("conversation send failed",
					zap.String("session", p.identity),
					zap.String("step", string(res.Step)),
					zap.String("error", res.Error))
			}

			if err := pause(ctx); err != nil {
				return sent, failed, err
			}
		}
	}
	return sent, failed, nil
}

// randomPause returns a duration in [lo, hi].
func randomPause(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int63n(int64(hi-lo+1)))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
