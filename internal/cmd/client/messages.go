package client

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	transports "github.com/rzbill/courier/internal/cmd/client/transports"
)

func newPublishCommand() *cobra.Command {
	publishCmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish one or more envelopes to a topic",
		RunE: func(cmd *cobra.Command, _ []string) error {
			topic, _ := cmd.Flags().GetString("topic")
			data, _ := cmd.Flags().GetStringArray("data")
			dataB64, _ := cmd.Flags().GetStringArray("data-b64")
			ts, _ := cmd.Flags().GetUint64("ts")
			if topic == "" {
				return fmt.Errorf("--topic is required")
			}
			if len(data) == 0 && len(dataB64) == 0 {
				return fmt.Errorf("at least one --data or --data-b64 is required")
			}
			if ts == 0 {
				ts = uint64(time.Now().UnixNano())
			}
			envs := make([]transports.Envelope, 0, len(data)+len(dataB64))
			for _, d := range data {
				envs = append(envs, transports.Envelope{Topic: topic, TimestampNs: ts, Message: []byte(d)})
			}
			for _, d := range dataB64 {
				b, err := base64.StdEncoding.DecodeString(d)
				if err != nil {
					return fmt.Errorf("invalid --data-b64: %w", err)
				}
				envs = append(envs, transports.Envelope{Topic: topic, TimestampNs: ts, Message: b})
			}
			if err := getTransport().Publish(cmd.Context(), envs); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "status:", "OK", "count:", len(envs))
			return nil
		},
	}
	publishCmd.Flags().String("topic", "", "Content topic")
	publishCmd.Flags().StringArray("data", nil, "Message text (repeat for a batch)")
	publishCmd.Flags().StringArray("data-b64", nil, "Base64 message bytes (repeat for a batch)")
	publishCmd.Flags().Uint64("ts", 0, "Sender timestamp in ns (default now)")
	return publishCmd
}

func newQueryCommand() *cobra.Command {
	queryCmd := &cobra.Command{
		Use:   "query",
		Short: "Read stored envelopes of a topic",
		RunE: func(cmd *cobra.Command, _ []string) error {
			topic, _ := cmd.Flags().GetString("topic")
			limit, _ := cmd.Flags().GetUint32("limit")
			desc, _ := cmd.Flags().GetBool("desc")
			startNs, _ := cmd.Flags().GetUint64("start-ns")
			endNs, _ := cmd.Flags().GetUint64("end-ns")
			cursorTok, _ := cmd.Flags().GetString("cursor")
			allPages, _ := cmd.Flags().GetBool("all-pages")
			if topic == "" {
				return fmt.Errorf("--topic is required")
			}
			req := transports.QueryRequest{Topic: topic, StartTimeNs: startNs, EndTimeNs: endNs, Limit: limit, Descending: desc}
			if cursorTok != "" {
				c, err := parseCursor(cursorTok)
				if err != nil {
					return err
				}
				req.Cursor = c
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			tr := getTransport()
			for {
				items, next, err := tr.Query(cmd.Context(), req)
				if err != nil {
					return err
				}
				for _, e := range items {
					if err := enc.Encode(decodedEnvelope(e)); err != nil {
						return err
					}
				}
				if next == nil {
					return nil
				}
				if !allPages {
					_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "next_cursor:", formatCursor(next))
					return nil
				}
				req.Cursor = next
			}
		},
	}
	queryCmd.Flags().String("topic", "", "Content topic")
	queryCmd.Flags().Uint32("limit", 0, "Page size (0 uses the server default)")
	queryCmd.Flags().Bool("desc", false, "Newest first")
	queryCmd.Flags().Uint64("start-ns", 0, "Inclusive lower timestamp bound in ns")
	queryCmd.Flags().Uint64("end-ns", 0, "Inclusive upper timestamp bound in ns")
	queryCmd.Flags().String("cursor", "", "Resume cursor printed by a previous page")
	queryCmd.Flags().Bool("all-pages", false, "Follow cursors until the topic is exhausted")
	return queryCmd
}

func newSubscribeCommand() *cobra.Command {
	subCmd := &cobra.Command{
		Use:   "subscribe",
		Short: "Stream envelopes published from now on",
		RunE: func(cmd *cobra.Command, _ []string) error {
			topics, _ := cmd.Flags().GetStringArray("topic")
			all, _ := cmd.Flags().GetBool("all")
			filter, _ := cmd.Flags().GetString("filter")
			limit, _ := cmd.Flags().GetInt("limit")
			if all == (len(topics) > 0) {
				return fmt.Errorf("use either --topic (repeatable) or --all")
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			req := transports.SubscribeRequest{Topics: topics, All: all, Filter: filter, Limit: limit}
			return getTransport().Subscribe(cmd.Context(), req, func(e transports.Envelope) error {
				return enc.Encode(decodedEnvelope(e))
			})
		},
	}
	subCmd.Flags().StringArray("topic", nil, "Content topic (repeat)")
	subCmd.Flags().Bool("all", false, "Subscribe to every topic")
	subCmd.Flags().String("filter", "", "CEL expression, e.g. 'size > 10 && topic.startsWith(\"/chat\")'")
	subCmd.Flags().Int("limit", 0, "Stop after N envelopes (0 = until interrupted)")
	return subCmd
}

func newTopicsCommand(baseURL BaseURLFunc) *cobra.Command {
	topicsCmd := &cobra.Command{
		Use:   "topics",
		Short: "List topics, or show one topic's stats",
		RunE: func(cmd *cobra.Command, _ []string) error {
			topic, _ := cmd.Flags().GetString("topic")
			u := baseURL() + "/v1/topics"
			if topic != "" {
				u += "?topic=" + url.QueryEscape(topic)
			}
			return getJSON(cmd.OutOrStdout(), u)
		},
	}
	topicsCmd.Flags().String("topic", "", "Show stats for this topic only")
	return topicsCmd
}

func newStatsCommand(baseURL BaseURLFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show instance stats",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return getJSON(cmd.OutOrStdout(), baseURL()+"/v1/stats")
		},
	}
}

// formatCursor renders c as "<digest b64>:<sender ns>".
func formatCursor(c *transports.Cursor) string {
	return base64.StdEncoding.EncodeToString(c.Digest) + ":" + strconv.FormatUint(c.SenderTimeNs, 10)
}

func parseCursor(s string) (*transports.Cursor, error) {
	digest, ts, ok := strings.Cut(s, ":")
	if !ok {
		return nil, fmt.Errorf("invalid --cursor; expected <digest>:<ns>")
	}
	b, err := base64.StdEncoding.DecodeString(digest)
	if err != nil {
		return nil, fmt.Errorf("invalid --cursor digest: %w", err)
	}
	n, err := strconv.ParseUint(ts, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid --cursor timestamp: %w", err)
	}
	return &transports.Cursor{Digest: b, SenderTimeNs: n}, nil
}
