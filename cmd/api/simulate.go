package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"wps-bot-bridge/pkg/signature"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const callbackPath = "/event/callback"

var simulateTests = []string{"url_verification", "message", "health"}

// simulator signs and posts test events to a running bridge
type simulator struct {
	baseURL   string
	appID     string
	appSecret string
	client    *http.Client
	now       func() time.Time
	out       io.Writer
}

func newSimulateCmd() *cobra.Command {
	var (
		url       string
		appID     string
		appSecret string
		test      string
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Send signed test events to a running bridge",
		Long: `Sends a URL verification handshake, a signed text message event and a
health probe to a running bridge, the way the platform would.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := &simulator{
				baseURL:   strings.TrimSuffix(url, "/"),
				appID:     appID,
				appSecret: appSecret,
				client:    &http.Client{Timeout: 30 * time.Second},
				now:       time.Now,
				out:       cmd.OutOrStdout(),
			}
			return s.run(cmd.Context(), test)
		},
	}

	cmd.Flags().StringVar(&url, "url", "http://localhost:8080", "base URL of the bridge")
	cmd.Flags().StringVar(&appID, "app-id", "", "application id used to sign events")
	cmd.Flags().StringVar(&appSecret, "app-secret", "", "application secret used to sign events")
	cmd.Flags().StringVar(&test, "test", "all", "url_verification | message | health | all")
	return cmd
}

func (s *simulator) run(ctx context.Context, test string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	tests := []string{test}
	if test == "all" {
		tests = simulateTests
	}

	failed := 0
	for _, name := range tests {
		var err error
		switch name {
		case "url_verification":
			err = s.urlVerification(ctx)
		case "message":
			err = s.message(ctx)
		case "health":
			err = s.health(ctx)
		default:
			return fmt.Errorf("unknown test %q", name)
		}
		if err != nil {
			failed++
			fmt.Fprintf(s.out, "FAIL %s: %v\n", name, err)
			continue
		}
		fmt.Fprintf(s.out, "PASS %s\n", name)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d simulations failed", failed, len(tests))
	}
	return nil
}

// post signs body with WPS-3 and sends it to the callback route
func (s *simulator) post(ctx context.Context, body []byte) (int, []byte, error) {
	ts := strconv.FormatInt(s.now().UnixMilli(), 10)
	nonce := uuid.NewString()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+callbackPath, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signature.HeaderAppID, s.appID)
	req.Header.Set(signature.HeaderTimestamp, ts)
	req.Header.Set(signature.HeaderNonce, nonce)
	req.Header.Set(signature.HeaderSignature, signature.ComputeWPS3(s.appSecret, ts, nonce, body))

	logrus.Debugf("POST %s %s", req.URL, body)
	return s.do(req)
}

func (s *simulator) do(req *http.Request) (int, []byte, error) {
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	return resp.StatusCode, raw, err
}

func (s *simulator) urlVerification(ctx context.Context) error {
	challenge := fmt.Sprintf("test_challenge_%d", s.now().Unix())
	body, _ := json.Marshal(map[string]string{
		"event":     "url_verification",
		"challenge": challenge,
	})

	status, raw, err := s.post(ctx, body)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("status %d: %s", status, raw)
	}

	var answer struct {
		Challenge string `json:"challenge"`
	}
	if err := json.Unmarshal(raw, &answer); err != nil {
		return fmt.Errorf("decode answer: %w", err)
	}
	if answer.Challenge != challenge {
		return fmt.Errorf("challenge mismatch: sent %s, got %s", challenge, answer.Challenge)
	}
	return nil
}

func (s *simulator) message(ctx context.Context) error {
	now := s.now()
	event := map[string]interface{}{
		"event": "kso.app_chat.message.create",
		"chat":  map[string]string{"id": "test_chat_123", "type": "p2p"},
		"message": map[string]interface{}{
			"id":   fmt.Sprintf("test_%d", now.UnixNano()),
			"type": "text",
			"content": map[string]interface{}{
				"text": map[string]string{"content": "Hello, this is a test message"},
			},
		},
		"sender":    map[string]string{"id": "user_test", "name": "Test User"},
		"send_time": now.Unix(),
	}
	body, _ := json.Marshal(event)

	status, raw, err := s.post(ctx, body)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("status %d: %s", status, raw)
	}
	return nil
}

func (s *simulator) health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	status, raw, err := s.do(req)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("status %d: %s", status, raw)
	}
	return nil
}
