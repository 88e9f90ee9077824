// intake-watch follows a kiosk's status feed and prints capture events
// Optionally triggers a capture first
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-intake/internal/httpc"
	"github.com/teslashibe/go-intake/internal/log"
	"github.com/teslashibe/go-intake/pkg/web"
)

func main() {
	addr := flag.String("addr", "localhost:8080", "Kiosk control surface address")
	trigger := flag.Bool("capture", false, "Start a capture session before watching")
	raw := flag.Bool("raw", false, "Print raw JSON messages")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	log.Init(*logLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	wsURL := url.URL{Scheme: "ws", Host: *addr, Path: "/ws/status"}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		log.Error("failed to connect", "url", wsURL.String(), "error", err)
		os.Exit(1)
	}
	defer ws.Close()
	log.Info("watching", "url", wsURL.String())

	go func() {
		<-ctx.Done()
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		ws.Close()
	}()

	if *trigger {
		if err := startCapture(ctx, *addr); err != nil {
			log.Error("capture request failed", "error", err)
			os.Exit(1)
		}
	}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Error("connection lost", "error", err)
				os.Exit(1)
			}
			return
		}
		if *raw {
			fmt.Println(string(data))
			continue
		}
		var msg web.EventMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn("undecodable message", "error", err)
			continue
		}
		fmt.Println(describe(msg))
	}
}

// startCapture asks the kiosk to begin a session.
func startCapture(ctx context.Context, addr string) error {
	u := url.URL{Scheme: "http", Host: addr, Path: "/api/capture"}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var body struct {
		SessionID string `json:"session_id"`
		Error     string `json:"error"`
	}
	json.NewDecoder(resp.Body).Decode(&body)
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("status %d: %s", resp.StatusCode, body.Error)
	}
	log.Info("capture started", "session_id", body.SessionID)
	return nil
}

func describe(msg web.EventMessage) string {
	ts := time.Now().Format("15:04:05.000")
	switch {
	case msg.Event != nil:
		ev := msg.Event
		line := fmt.Sprintf("%s [%s] %s -> %s", ts, short(ev.SessionID), ev.Previous, ev.State)
		if ev.Error != "" {
			line += "  (" + ev.Error + ")"
		}
		return line
	case msg.Overlay != nil:
		ov := msg.Overlay
		return fmt.Sprintf("%s [%s] overlay ready: %s, %.0f%% coverage",
			ts, short(ov.SessionID), ov.DominantPart, ov.Coverage*100)
	case msg.Status != nil:
		st := msg.Status
		return fmt.Sprintf("%s status: %s, model %s, rating %d, image %v, audio %v",
			ts, st.Capture.State, st.Model, st.Rating, st.Form.HasImage, st.Form.HasAudio)
	default:
		return fmt.Sprintf("%s %s", ts, msg.Type)
	}
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
