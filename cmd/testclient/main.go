package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"interview-turn-service/internal/models"
)

type frame struct {
	Type       string                       `json:"type"`
	Fragments  []models.RecognitionFragment `json:"fragments,omitempty"`
	TurnID     string                       `json:"turnId,omitempty"`
	Transcript string                       `json:"transcript,omitempty"`
	Submitted  bool                         `json:"submitted,omitempty"`
	Error      string                       `json:"error,omitempty"`
}

// Scripted recognizer output for one answer: interim guesses, then finals.
var script = [][]models.RecognitionFragment{
	{{Text: "I would", IsFinal: false}},
	{{Text: "I would start with", IsFinal: false}},
	{{Text: "I would start with the API.", IsFinal: true}},
	{{Text: "Then a", IsFinal: false}},
	{{Text: "Then a cache in front of the database.", IsFinal: true}},
}

func main() {
	server := flag.String("server", "http://localhost:8080", "HTTP API base URL")
	sessionCode := flag.String("session", "demo-"+time.Now().Format("150405"), "Interview session code")
	timeout := flag.Duration("timeout", 90*time.Second, "How long to wait for the avatar reply")
	flag.Parse()

	base := strings.TrimSuffix(*server, "/")

	body, _ := json.Marshal(map[string]string{"sessionCode": *sessionCode})
	resp, err := http.Post(base+"/v1/recordings", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatalf("failed to start recording: %v", err)
	}
	expectStatus(resp, http.StatusCreated)
	log.Printf("Recording started: session=%s", *sessionCode)

	wsURL := "ws" + strings.TrimPrefix(base, "http") + "/v1/recordings/current/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		log.Fatalf("failed to open stream: %v", err)
	}
	defer conn.Close()

	for i, batch := range script {
		if err := conn.WriteJSON(frame{Type: "fragments", Fragments: withSequence(batch, i)}); err != nil {
			log.Fatalf("failed to send fragments: %v", err)
		}
		log.Printf("Sent fragment %d: %q final=%v", i, batch[0].Text, batch[0].IsFinal)
		time.Sleep(200 * time.Millisecond)
	}

	if err := conn.WriteJSON(frame{Type: "stop"}); err != nil {
		log.Fatalf("failed to send stop: %v", err)
	}
	var stopped frame
	for stopped.Type != "stopped" {
		if err := conn.ReadJSON(&stopped); err != nil {
			log.Fatalf("failed to read stop reply: %v", err)
		}
		if stopped.Type == "error" {
			log.Printf("Stream error: %s", stopped.Error)
		}
	}
	log.Printf("Recording stopped: turnId=%s transcript=%q submitted=%v",
		stopped.TurnID, stopped.Transcript, stopped.Submitted)
	if !stopped.Submitted {
		return
	}

	deadline := time.Now().Add(*timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(base + "/v1/queue/head")
		if err != nil {
			log.Fatalf("failed to poll queue: %v", err)
		}
		if resp.StatusCode == http.StatusNoContent {
			resp.Body.Close()
			time.Sleep(500 * time.Millisecond)
			continue
		}
		expectStatus(resp, http.StatusOK)

		var msg models.ResponseMessage
		err = json.NewDecoder(resp.Body).Decode(&msg)
		resp.Body.Close()
		if err != nil {
			log.Fatalf("failed to decode reply: %v", err)
		}
		log.Printf("Avatar reply: turnId=%s expression=%s animation=%s audio=%d bytes",
			msg.TurnID, msg.FacialExpression, msg.Animation, len(msg.Audio))
		log.Printf("Feedback: %s", msg.Text)

		ack, err := http.Post(base+"/v1/queue/ack", "application/json", nil)
		if err != nil {
			log.Fatalf("failed to acknowledge: %v", err)
		}
		expectStatus(ack, http.StatusOK)
		return
	}
	log.Fatalf("no reply within %v", *timeout)
}

func withSequence(batch []models.RecognitionFragment, seq int) []models.RecognitionFragment {
	out := make([]models.RecognitionFragment, len(batch))
	for i, f := range batch {
		f.Sequence = seq
		out[i] = f
	}
	return out
}

func expectStatus(resp *http.Response, want int) {
	if resp.StatusCode == want {
		return
	}
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	log.Fatal(fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(b))))
}
