package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mikeboe/research-canvas/pkg/config"
	"github.com/mikeboe/research-canvas/pkg/research"
	"github.com/mikeboe/research-canvas/pkg/state"
)

var (
	sessionID string
	topic     string
	verbose   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "research-helper",
		Short: "A terminal-based research canvas",
		Long: `research-helper drafts a research report together with you: it searches the web,
proposes an outline for your review and writes the approved sections.

Type a message to talk to the agent, /report to print the report and /quit to leave.`,
		RunE: run,
	}

	rootCmd.Flags().StringVarP(&sessionID, "session", "s", "", "Resume an existing session ID")
	rootCmd.Flags().StringVarP(&topic, "topic", "t", "", "Opening message for the session")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log engine activity")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx := cmd.Context()
	rt, err := research.NewRuntime(ctx, config.Load(), nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Session %s\n", sessionID)

	c := &console{
		engine:  rt.Engine,
		session: sessionID,
		in:      bufio.NewReader(cmd.InOrStdin()),
		out:     out,
	}

	// A session left awaiting review picks up there.
	if _, suspended, err := rt.Engine.State(ctx, sessionID); err != nil {
		return err
	} else if suspended {
		if err := c.turn(ctx, research.Input{}); err != nil {
			return err
		}
	}

	if topic != "" {
		if err := c.turn(ctx, research.Input{Message: topic}); err != nil {
			return err
		}
	}
	return c.loop(ctx)
}

type console struct {
	engine  *research.Engine
	session string
	in      *bufio.Reader
	out     io.Writer
}

func (c *console) loop(ctx context.Context) error {
	for {
		fmt.Fprint(c.out, "\n> ")
		line, err := c.in.ReadString('\n')
		line = strings.TrimSpace(line)
		if err != nil && line == "" {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/report":
			st, _, err := c.engine.State(ctx, c.session)
			if err != nil {
				return err
			}
			c.render(st.Markdown())
			continue
		}

		if err := c.turn(ctx, research.Input{Message: line}); err != nil {
			if errors.Is(err, research.ErrStepLimit) || errors.Is(err, research.ErrSessionBusy) {
				fmt.Fprintf(c.out, "Error: %v\n", err)
				continue
			}
			fmt.Fprintf(c.out, "Turn failed, the session is unchanged: %v\n", err)
		}
	}
}

// turn runs the engine until it ends without asking for a review. An empty
// input on a suspended session asks for the review straight away.
func (c *console) turn(ctx context.Context, in research.Input) error {
	pub := &progress{out: c.out}
	for {
		var res *research.Result
		var err error
		if in.Resume == nil && in.Message == "" {
			st, _, lerr := c.engine.State(ctx, c.session)
			if lerr != nil {
				return lerr
			}
			res = &research.Result{State: st, Interrupt: &research.Interrupt{Proposal: st.Proposal}}
		} else {
			res, err = c.engine.Run(ctx, c.session, in, pub)
			if err != nil {
				return err
			}
		}

		if !res.Suspended() {
			if res.Reply != "" {
				c.render(res.Reply)
			}
			return nil
		}

		reviewed, err := reviewProposal(c.in, c.out, res.Interrupt.Proposal)
		if err != nil {
			return err
		}
		in = research.Input{Resume: &reviewed}
	}
}

func (c *console) render(md string) {
	rendered, err := glamour.Render(md, "dark")
	if err != nil {
		fmt.Fprintln(c.out, md)
		return
	}
	fmt.Fprint(c.out, rendered)
}

// progress prints search logs and finished section fields as they arrive.
type progress struct {
	out     io.Writer
	printed map[string]bool
}

func (p *progress) Publish(_ context.Context, ev state.Event) {
	if p.printed == nil {
		p.printed = map[string]bool{}
	}
	switch ev.Type {
	case state.EventState:
		for _, l := range ev.State.Logs {
			if !p.printed[l.Message] {
				p.printed[l.Message] = true
				fmt.Fprintf(p.out, "  … %s\n", l.Message)
			}
		}
		if ev.State.Tool != "" && !p.printed["tool:"+ev.State.Tool] {
			p.printed["tool:"+ev.State.Tool] = true
			fmt.Fprintf(p.out, "  running %s\n", ev.State.Tool)
		}
		if ev.State.Tool == "" {
			for k := range p.printed {
				if strings.HasPrefix(k, "tool:") {
					delete(p.printed, k)
				}
			}
		}
	case state.EventSectionStream:
		if ev.Stream.Done && ev.Stream.Field == "content" {
			fmt.Fprintf(p.out, "  wrote section %d: %s\n", ev.Stream.Idx, ev.Stream.Title)
		}
	}
}
