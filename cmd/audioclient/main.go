package main

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// WAV header is 44 bytes for standard PCM files
const wavHeaderSize = 44

// Stream audio in chunks to simulate real-time streaming
// At 16kHz 16-bit mono = 32000 bytes/second
// 100ms chunks = 3200 bytes
const chunkSize = 3200
const chunkIntervalMs = 100

type frame struct {
	Type       string `json:"type"`
	TurnID     string `json:"turnId,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	Submitted  bool   `json:"submitted,omitempty"`
	Error      string `json:"error,omitempty"`
}

func main() {
	audioFile := flag.String("audio", "testdata/answer-16khz.wav", "Path to WAV file (16kHz 16-bit mono)")
	server := flag.String("server", "http://localhost:8080", "HTTP API base URL")
	sessionCode := flag.String("session", "audio-"+time.Now().Format("150405"), "Interview session code")
	flag.Parse()

	// Open audio file
	f, err := os.Open(*audioFile)
	if err != nil {
		log.Fatalf("Failed to open audio file: %v", err)
	}
	defer f.Close()

	// Read and validate WAV header
	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		log.Fatalf("Failed to read WAV header: %v", err)
	}

	// Validate it's a WAV file
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		log.Fatal("Not a valid WAV file")
	}

	// Extract audio format info
	audioFormat := binary.LittleEndian.Uint16(header[20:22])
	numChannels := binary.LittleEndian.Uint16(header[22:24])
	sampleRate := binary.LittleEndian.Uint32(header[24:28])
	bitsPerSample := binary.LittleEndian.Uint16(header[34:36])

	log.Printf("WAV file: format=%d channels=%d sampleRate=%d bitsPerSample=%d",
		audioFormat, numChannels, sampleRate, bitsPerSample)

	if audioFormat != 1 { // PCM
		log.Fatal("Only PCM format supported")
	}
	if sampleRate != 16000 {
		log.Printf("Warning: Sample rate is %d Hz, expected 16000 Hz (see SPEECH_SAMPLE_RATE_HZ)", sampleRate)
	}

	base := strings.TrimSuffix(*server, "/")
	body, _ := json.Marshal(map[string]string{"sessionCode": *sessionCode})
	resp, err := http.Post(base+"/v1/recordings", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatalf("Failed to start recording: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		log.Fatalf("Failed to start recording: status %d", resp.StatusCode)
	}

	wsURL := "ws" + strings.TrimPrefix(base, "http") + "/v1/recordings/current/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		log.Fatalf("Failed to open stream: %v", err)
	}
	defer conn.Close()

	// Server replies only with errors until stop.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var fr frame
			if err := conn.ReadJSON(&fr); err != nil {
				return
			}
			switch fr.Type {
			case "error":
				log.Printf("Stream error: %s", fr.Error)
			case "stopped":
				log.Printf("Stream completed: turnId=%s transcript=%q submitted=%v", fr.TurnID, fr.Transcript, fr.Submitted)
			}
		}
	}()

	log.Printf("Streaming audio: session=%s", *sessionCode)

	// Stream audio in chunks
	audioChunk := make([]byte, chunkSize)
	var totalBytes int64
	var chunkNum int
	startTime := time.Now()

	for {
		n, err := f.Read(audioChunk)
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("Failed to read audio: %v", err)
		}

		chunkNum++
		totalBytes += int64(n)

		if err := conn.WriteMessage(websocket.BinaryMessage, audioChunk[:n]); err != nil {
			log.Fatalf("Failed to send audio: %v", err)
		}

		if chunkNum%10 == 0 {
			log.Printf("Sent chunk %d (%d bytes total, offset=%dms)", chunkNum, totalBytes, chunkNum*chunkIntervalMs)
		}

		// Simulate real-time streaming
		time.Sleep(chunkIntervalMs * time.Millisecond)
	}

	elapsed := time.Since(startTime)
	log.Printf("Finished streaming: %d chunks, %d bytes in %v", chunkNum, totalBytes, elapsed)

	log.Println("Stopping recording, waiting for final transcript...")
	if err := conn.WriteJSON(frame{Type: "stop"}); err != nil {
		log.Fatalf("Failed to send stop: %v", err)
	}
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Println("Timed out waiting for the stream to close")
	}
}
