// Local receiver for backhouse webhook deliveries. Point a job alert's
// webhook_url (or a report distribution endpoint) at /hook and inspect what
// arrived via /stats.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sync"
	"time"
)

type envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
}

type delivery struct {
	ReceivedAt string   `json:"received_at"`
	EventType  string   `json:"event_type"`
	Payload    envelope `json:"payload"`
}

type stats struct {
	Count          int64            `json:"count"`
	CountsByType   map[string]int64 `json:"counts_by_type"`
	LastDeliveries []delivery       `json:"last_deliveries"`
	Since          string           `json:"since"`
}

var (
	mu             sync.Mutex
	count          int64
	countsByType   = make(map[string]int64)
	lastDeliveries []delivery
	since          time.Time
	maxStored      = 50
)

func main() {
	since = time.Now().UTC()

	addr := ":8081"
	if v := os.Getenv("ADDR"); v != "" {
		addr = v
	}

	http.HandleFunc("/hook", hookHandler)
	http.HandleFunc("/stats", statsHandler)
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	http.HandleFunc("/reset", func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		count = 0
		countsByType = make(map[string]int64)
		lastDeliveries = nil
		since = time.Now().UTC()
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "reset")
	})

	log.Printf("webhook-receiver listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, nil))
}

func hookHandler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	var env envelope
	eventType := "unknown"
	if err := json.Unmarshal(body, &env); err == nil && env.Type != "" {
		eventType = env.Type
	}

	d := delivery{
		ReceivedAt: time.Now().UTC().Format(time.RFC3339Nano),
		EventType:  eventType,
		Payload:    env,
	}

	mu.Lock()
	count++
	countsByType[eventType]++
	lastDeliveries = append(lastDeliveries, d)
	if len(lastDeliveries) > maxStored {
		lastDeliveries = lastDeliveries[len(lastDeliveries)-maxStored:]
	}
	current := count
	mu.Unlock()

	log.Printf("hook received #%d type=%s: %s", current, eventType, string(body))
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"received":%d}`, current)
}

func statsHandler(w http.ResponseWriter, _ *http.Request) {
	mu.Lock()
	s := stats{
		Count:          count,
		CountsByType:   make(map[string]int64, len(countsByType)),
		LastDeliveries: lastDeliveries,
		Since:          since.Format(time.RFC3339),
	}
	for k, v := range countsByType {
		s.CountsByType[k] = v
	}
	mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s)
}
