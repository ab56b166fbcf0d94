// Command deltacore is the demo CLI harness of SPEC_FULL.md §3: it
// exercises chunk ingress / event egress (spec.md §6) from stdin/stdout,
// the "external collaborator" this core exposes an interface to, not a
// part of the core itself. Grounded on the teacher's cmd/sidekick/main.go
// for the config -> logging -> wiring -> signal-handled-shutdown shape,
// generalized from "run an HTTP proxy" to "run a CLI harness", and on
// the pack's cobra usage (dhamidi-sai, fakeyudi-handoff,
// jinterlante1206-AleutianLocal, theRebelliousNerd-codenerd) for the
// command surface itself.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	deltacore "github.com/deltastream/core"
	"github.com/deltastream/core/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var pathStyle string

	root := &cobra.Command{
		Use:   "deltacore",
		Short: "Streaming structured-text completion and differential-emission core",
	}
	root.AddCommand(newStreamCmd(&pathStyle))
	return root
}

// newStreamCmd implements the chunk-ingress demo: each line of stdin is
// ingested as one chunk (an empty line signals `is_final=true`, per
// spec.md §6: "the final chunk may have empty content"), and every
// emitted DeltaEvent is written to stdout as one JSON line, matching the
// wire-level shape of spec.md §6.
func newStreamCmd(pathStyle *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Ingest stdin line-by-line as chunks of one session, emit DeltaEvents to stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStream(*pathStyle)
		},
	}
	cmd.Flags().StringVar(pathStyle, "path-style", "dot", "dot, slash, or bracket")
	return cmd
}

func runStream(pathStyle string) error {
	level, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	cfg := config.Default()
	if pathStyle != "" {
		cfg.PathStyle = pathStyle
	}

	engine, err := deltacore.New(cfg, nil)
	if err != nil {
		return fmt.Errorf("construct engine: %w", err)
	}
	defer engine.Close()

	sessionID := uuid.NewString()
	sess, err := engine.CreateSession(sessionID)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	log.Info().Str("session_id", sess.ID()).Msg("deltacore: session started")

	enc := json.NewEncoder(os.Stdout)
	sub, err := engine.Subscribe(sessionID, deltacore.Filter{}, func(ev deltacore.DeltaEvent) {
		if err := enc.Encode(wireEvent(ev)); err != nil {
			log.Error().Err(err).Msg("deltacore: failed to encode event")
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-interrupt
		log.Info().Msg("deltacore: interrupted, finalizing session")
		_, _ = sess.Finalize()
		os.Exit(0)
	}()

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			// An empty line is the final chunk: is_final=true finalizes
			// the session within this Ingest call.
			if _, err := sess.Ingest(nil, true); err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			return nil
		}
		if _, err := sess.Ingest([]byte(line), false); err != nil {
			return fmt.Errorf("ingest: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}

	if _, err := sess.Finalize(); err != nil {
		return fmt.Errorf("finalize: %w", err)
	}
	return nil
}

// wireEvent renders a DeltaEvent into the stable egress shape of
// spec.md §6 ("Events have the following wire-level shape when a
// consumer chooses to serialize them"). Serialization is the caller's
// responsibility, not the core's — this function is that caller.
type wireEventT struct {
	SessionID   string `json:"session_id"`
	Seq         uint64 `json:"seq"`
	TimestampMs int64  `json:"timestamp_ms"`
	Kind        string `json:"kind"`
	Path        string `json:"path"`
	Value       string `json:"value,omitempty"`
	OldValue    string `json:"old_value,omitempty"`
	Error       *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func wireEvent(ev deltacore.DeltaEvent) wireEventT {
	w := wireEventT{
		SessionID:   ev.SessionID,
		Seq:         ev.Seq,
		TimestampMs: ev.TimestampMs,
		Kind:        string(ev.Kind),
		Path:        ev.RenderedPath,
		Value:       ev.Value,
		OldValue:    ev.OldValue,
	}
	if ev.Err != nil {
		w.Error = &struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}{Code: ev.Err.Code, Message: ev.Err.Message}
	}
	return w
}
