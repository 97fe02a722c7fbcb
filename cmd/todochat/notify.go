// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/todochat/internal/chat"
	"github.com/holomush/todochat/internal/config"
)

const defaultNotifyTimeout = 10 * time.Second

type notifyConfig struct {
	serverURL string
	token     string
	kind      string
	timeout   time.Duration
}

// NewNotifyCmd creates the notify subcommand.
func NewNotifyCmd() *cobra.Command {
	cfg := &notifyConfig{}

	cmd := &cobra.Command{
		Use:   "notify <room> <message>",
		Short: "Broadcast a system message to a running server",
		Long: `Broadcast a system message to every session in a room of a running
todochat server. The trigger token defaults to $` + config.EnvTriggerToken + `.`,
		Example: `  todochat notify admin-chat "Deploy finished" --kind success`,
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.token == "" {
				cfg.token = os.Getenv(config.EnvTriggerToken)
			}
			return runNotify(cmd, cfg, args[0], strings.Join(args[1:], " "))
		},
	}

	cmd.Flags().StringVar(&cfg.serverURL, "url", "http://localhost:8080", "base URL of the todochat server")
	cmd.Flags().StringVar(&cfg.token, "token", "", "trigger token")
	cmd.Flags().StringVar(&cfg.kind, "kind", "", "notification kind (system, error or success)")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultNotifyTimeout, "request timeout")

	return cmd
}

type notifyResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func runNotify(cmd *cobra.Command, cfg *notifyConfig, room, message string) error {
	if _, err := chat.ParseRoomKind(room); err != nil {
		return err
	}
	if _, err := chat.ParseNotificationKind(cfg.kind); err != nil {
		return err
	}

	endpoint, err := url.JoinPath(cfg.serverURL, "api", room, "send")
	if err != nil {
		return oops.Code("NOTIFY_INVALID_URL").With("url", cfg.serverURL).Wrap(err)
	}
	body, err := json.Marshal(map[string]string{"message": message, "kind": cfg.kind})
	if err != nil {
		return oops.Code("NOTIFY_FAILED").Wrap(err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return oops.Code("NOTIFY_INVALID_URL").With("url", endpoint).Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.token != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return oops.Code("NOTIFY_FAILED").With("url", endpoint).Wrap(err)
	}
	defer func() { _ = resp.Body.Close() }()

	var out notifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return oops.Code("NOTIFY_FAILED").With("status", resp.StatusCode).Wrapf(err, "decode response")
	}
	if resp.StatusCode != http.StatusOK || !out.Success {
		return oops.Code("NOTIFY_REJECTED").
			With("status", resp.StatusCode).
			Errorf("server rejected message: %s", out.Error)
	}

	cmd.Println(out.Message)
	return nil
}
