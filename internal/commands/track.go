package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dotcommander/missiontrack/internal/delivery"
	"github.com/dotcommander/missiontrack/internal/models"
	"github.com/dotcommander/missiontrack/internal/output"
	"github.com/dotcommander/missiontrack/internal/sanitize"
	"github.com/dotcommander/missiontrack/internal/scheduler"
	"github.com/dotcommander/missiontrack/internal/store"
	"github.com/dotcommander/missiontrack/internal/tracker"
)

// triggerDirect labels journal rows written by track --direct.
const triggerDirect scheduler.Trigger = "direct"

// runTracked feeds a fresh tracker, shuts it down, and prints the delivery
// report. Undelivered events become the command error.
func runTracked(cmd *cobra.Command, feed func(tr *tracker.Tracker) error) error {
	rt, err := loadRuntime(cmd)
	if err != nil {
		return cmdErr(err)
	}

	s := openSession(rt)
	defer s.close()

	if err := feed(s.tracker); err != nil {
		return cmdErr(err)
	}

	rep, err := s.finish()
	if err != nil {
		return cmdErr(err)
	}
	return output.PrintSuccess(rep)
}

// parseMetadata decodes a JSON object. Empty input yields nil.
func parseMetadata(raw string) (models.Metadata, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("metadata must be a JSON object: %w", err)
	}
	return models.MetadataFromAny(m), nil
}

func NewTrackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "track [description] [type] [metadata-json]",
		Short: "Track a single activity event",
		Long: `Track one activity event.

By default the event is queued and sent as a batch of one on exit.
With --direct it is POSTed to the single-event endpoint instead.`,
		Example: `  missiontrack track "Deployed preview" agent_action '{"env":"staging"}'
  missiontrack track --type system_event --desc "Nightly sync finished" --direct`,
		Args: cobra.MaximumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			desc, _ := cmd.Flags().GetString("desc")
			rawType, _ := cmd.Flags().GetString("type")
			rawMeta, _ := cmd.Flags().GetString("metadata")
			direct, _ := cmd.Flags().GetBool("direct")

			if desc == "" && len(args) > 0 {
				desc = args[0]
			}
			if !cmd.Flags().Changed("type") && len(args) > 1 {
				rawType = args[1]
			}
			if rawMeta == "" && len(args) > 2 {
				rawMeta = args[2]
			}

			if strings.TrimSpace(desc) == "" {
				return cmdErr(errors.New("description is required (positional or --desc)"))
			}
			typ, err := models.ParseEventType(rawType)
			if err != nil {
				return cmdErr(err)
			}
			meta, err := parseMetadata(rawMeta)
			if err != nil {
				return cmdErr(err)
			}

			if direct {
				return sendDirect(cmd, typ, desc, meta)
			}
			return runTracked(cmd, func(tr *tracker.Tracker) error {
				tr.Track(typ, desc, meta)
				return nil
			})
		},
	}

	cmd.Flags().String("desc", "", "Event description")
	cmd.Flags().String("type", string(models.EventTypeAgentAction), "Event type")
	cmd.Flags().String("metadata", "", "Metadata as a JSON object")
	cmd.Flags().Bool("direct", false, "POST the event on its own instead of batching")

	return cmd
}

type directResult struct {
	Delivered  bool   `json:"delivered"`
	StatusCode int    `json:"status_code"`
	Endpoint   string `json:"endpoint"`
	DurationMS int64  `json:"duration_ms"`
}

func sendDirect(cmd *cobra.Command, typ models.EventType, desc string, meta models.Metadata) error {
	rt, err := loadRuntime(cmd)
	if err != nil {
		return cmdErr(err)
	}
	ts := rt.tracker
	if !ts.DeliveryEnabled() {
		return cmdErr(&models.ConfigError{Setting: "base_url"})
	}

	started := time.Now()
	ev, err := models.NewEvent(typ, desc, ts.DefaultAgent, ts.DefaultSource, sanitize.New(ts.SensitiveKeys).Sanitize(meta), started)
	if err != nil {
		return cmdErr(err)
	}

	client := delivery.NewHTTPClient(delivery.Options{
		BaseURL: ts.BaseURL,
		Secret:  ts.WebhookSecret,
		Timeout: ts.RequestTimeout,
	})
	ctx, cancel := context.WithTimeout(cmdContext(cmd), ts.RequestTimeout+shutdownGrace)
	defer cancel()
	res := client.SendOne(ctx, ev)

	if !rt.noJournal {
		recordDirect(rt, scheduler.Attempt{
			Trigger:        triggerDirect,
			StartedAt:      started,
			BatchSize:      1,
			Result:         res,
			FirstTimestamp: ev.Timestamp(),
			LastTimestamp:  ev.Timestamp(),
		})
	}

	if !res.OK() {
		return cmdErr(res.Err)
	}
	return output.PrintSuccess(directResult{
		Delivered:  true,
		StatusCode: res.StatusCode,
		Endpoint:   client.BaseURL() + delivery.SinglePath,
		DurationMS: res.Duration.Milliseconds(),
	})
}

func recordDirect(rt runtimeConfig, a scheduler.Attempt) {
	db, closeDB, err := openDB(rt)
	if err != nil {
		slog.Warn("delivery journal unavailable", "error", err)
		return
	}
	defer closeDB()
	if err := store.NewJournal(db).RecordAttempt(context.Background(), a); err != nil {
		slog.Warn("record delivery attempt failed", "error", err)
	}
}
