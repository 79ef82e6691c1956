package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hasanmk52/terra-voyage-sub003/internal/collab/eventbus"
	"github.com/hasanmk52/terra-voyage-sub003/internal/domain"
)

type globalFlags struct {
	server  string
	tripID  string
	token   string
	verbose bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:           "voyagectl",
		Short:         "Terra Voyage collaboration room client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if g.verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
		},
	}
	root.PersistentFlags().StringVar(&g.server, "server", envOr("VOYAGE_SERVER", "http://localhost:8080"), "collaboration server base url")
	root.PersistentFlags().StringVar(&g.tripID, "trip", "", "trip id to join")
	root.PersistentFlags().StringVar(&g.token, "token", os.Getenv("VOYAGE_TOKEN"), "bearer token (default $VOYAGE_TOKEN)")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "debug logging")
	_ = root.MarkPersistentFlagRequired("trip")

	root.AddCommand(newWatchCmd(g))
	root.AddCommand(newEditCmd(g))
	root.AddCommand(newResolveCmd(g))
	return root
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// connect 建立房间连接。handlers 在读 goroutine 上执行
func connect(ctx context.Context, g *globalFlags, handlers eventbus.Handlers) (*eventbus.Client, error) {
	ch, err := eventbus.NewWSChannel(g.server, g.tripID, g.token)
	if err != nil {
		return nil, err
	}
	client := eventbus.New(ch, eventbus.Options{
		TripID:   g.tripID,
		Enabled:  true,
		Handlers: handlers,
		Logger:   logrus.WithField("endpoint", ch.Endpoint()),
	})
	if err := client.Start(ctx); err != nil {
		client.Stop()
		return nil, err
	}
	return client, nil
}

// printer 把服务端事件按行输出为 JSON
func printer(w io.Writer) func(event string, payload any) {
	enc := json.NewEncoder(w)
	return func(event string, payload any) {
		_ = enc.Encode(map[string]any{"event": event, "at": time.Now().UTC().Format(time.RFC3339), "payload": payload})
	}
}

func watchHandlers(emit func(string, any)) eventbus.Handlers {
	return eventbus.Handlers{
		OnCollaborationEvent: func(ev domain.CollaborationEvent) { emit(domain.MsgCollaborationEvent, ev) },
		OnUserPresenceUpdate: func(p domain.UserPresence) { emit(domain.MsgUserPresenceUpdated, p) },
		OnOnlineUsers:        func(users []domain.UserPresence) { emit(domain.MsgOnlineUsers, users) },
		OnUserTyping:         func(p domain.UserTypingPayload) { emit(domain.MsgUserTyping, p) },
		OnUserCursor:         func(p domain.UserCursorPayload) { emit(domain.MsgUserCursor, p) },
		OnConflictDetected:   func(p domain.ConflictDetectedPayload) { emit(domain.MsgConflictDetected, p) },
		OnConflictResolution: func(p domain.ConflictResolutionPayload) { emit(domain.MsgConflictResolution, p) },
		OnConflictResolved:   func(p domain.ConflictResolvedPayload) { emit(domain.MsgConflictResolved, p) },
		OnServerError:        func(msg string) { emit(domain.MsgError, msg) },
	}
}

func newWatchCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Join a trip room and print every event until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client, err := connect(ctx, g, watchHandlers(printer(cmd.OutOrStdout())))
			if err != nil {
				return err
			}
			defer client.Stop()

			<-ctx.Done()
			return nil
		},
	}
}

func newEditCmd(g *globalFlags) *cobra.Command {
	var activityID string
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "edit key=value [key=value...]",
		Short: "Send a trip or activity update",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			changes, err := parseChanges(args)
			if err != nil {
				return err
			}
			client, err := connect(cmd.Context(), g, watchHandlers(printer(cmd.OutOrStdout())))
			if err != nil {
				return err
			}
			defer client.Stop()

			if activityID != "" {
				client.EmitActivityUpdate(activityID, domain.ActivityChanges(changes))
			} else {
				client.EmitTripUpdate(domain.TripChanges(changes))
			}
			// 等待可能的冲突通知
			time.Sleep(wait)
			return nil
		},
	}
	cmd.Flags().StringVar(&activityID, "activity", "", "activity id (omit to update the trip itself)")
	cmd.Flags().DurationVar(&wait, "wait", 2*time.Second, "how long to print events after sending")
	return cmd
}

func newResolveCmd(g *globalFlags) *cobra.Command {
	var strategy, winner string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "resolve <conflict-id> [key=value...]",
		Short: "Resolve a conflict, optionally with the conflicting changes to merge",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st := domain.Strategy(strategy)
			if st != "" && !st.Known() {
				return fmt.Errorf("unknown strategy %q", strategy)
			}
			var input *domain.UserInput
			changes, err := parseChanges(args[1:])
			if err != nil {
				return err
			}
			if winner != "" || len(changes) > 0 {
				input = &domain.UserInput{Winner: winner, ConflictingChanges: changes}
			}

			emit := printer(cmd.OutOrStdout())
			done := make(chan error, 1)
			finish := func(err error) {
				select {
				case done <- err:
				default:
				}
			}
			handlers := eventbus.Handlers{
				OnConflictResolution: func(p domain.ConflictResolutionPayload) {
					emit(domain.MsgConflictResolution, p)
					if p.ConflictID == args[0] && p.Resolution.RequiresUserInput {
						finish(fmt.Errorf("strategy %s needs more input (use --winner or key=value changes)", p.Resolution.Strategy))
					}
				},
				OnConflictResolved: func(p domain.ConflictResolvedPayload) {
					if p.Conflict.ID == args[0] {
						emit(domain.MsgConflictResolved, p)
						finish(nil)
					}
				},
				OnServerError: func(msg string) { finish(fmt.Errorf("server: %s", msg)) },
			}

			client, err := connect(cmd.Context(), g, handlers)
			if err != nil {
				return err
			}
			defer client.Stop()

			client.EmitResolveConflict(args[0], st, input)
			select {
			case err := <-done:
				return err
			case <-time.After(timeout):
				return fmt.Errorf("no resolution for %s within %s", args[0], timeout)
			}
		},
	}
	cmd.Flags().StringVar(&strategy, "strategy", "", "last-write-wins|first-write-wins|manual-merge|user-choice")
	cmd.Flags().StringVar(&winner, "winner", "", "winning user id for user-choice")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "how long to wait for the server")
	return cmd
}

// parseChanges 把 key=value 参数转换为修改集合，value 是合法 JSON 时按 JSON 解析
func parseChanges(args []string) (domain.Fields, error) {
	changes := domain.Fields{}
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid change %q, want key=value", arg)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		changes[key] = v
	}
	return changes, nil
}
