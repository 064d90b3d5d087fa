// Command webhook-receiver is a local sink for web3event completion callbacks.
// It checks the HMAC signature when WEBHOOK_SECRET is set and keeps the most
// recent deliveries for inspection at /stats.
package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sync"
	"time"
)

const (
	headerJobID     = "X-Web3Event-Job-ID"
	headerSignature = "X-Web3Event-Signature"
	maxStored       = 50
)

type payload struct {
	JobID    string `json:"job_id"`
	Provider string `json:"provider"`
	City     string `json:"city"`
	Status   string `json:"status"`
	Events   int    `json:"events"`
	Error    string `json:"error,omitempty"`
}

type delivery struct {
	ReceivedAt string  `json:"received_at"`
	JobID      string  `json:"job_id"`
	Verified   bool    `json:"verified"`
	Payload    payload `json:"payload"`
}

type stats struct {
	Count      int64      `json:"count"`
	Rejected   int64      `json:"rejected"`
	Deliveries []delivery `json:"deliveries"`
	Since      string     `json:"since"`
}

type receiver struct {
	secret string

	mu         sync.Mutex
	count      int64
	rejected   int64
	deliveries []delivery
	since      time.Time
}

func main() {
	addr := ":8080"
	if v := os.Getenv("ADDR"); v != "" {
		addr = v
	}

	rcv := &receiver{secret: os.Getenv("WEBHOOK_SECRET"), since: time.Now().UTC()}
	if rcv.secret == "" {
		log.Printf("webhook-receiver: WEBHOOK_SECRET not set; signatures are not checked")
	}

	http.HandleFunc("/hook", rcv.hook)
	http.HandleFunc("/stats", rcv.stats)
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	http.HandleFunc("/reset", rcv.reset)

	log.Printf("webhook-receiver listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, nil))
}

func (rc *receiver) hook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	defer r.Body.Close()
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	verified := false
	if rc.secret != "" {
		if !validSignature(rc.secret, body, r.Header.Get(headerSignature)) {
			rc.mu.Lock()
			rc.rejected++
			rc.mu.Unlock()
			log.Printf("hook rejected: bad signature for job %s", r.Header.Get(headerJobID))
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
		verified = true
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	d := delivery{
		ReceivedAt: time.Now().UTC().Format(time.RFC3339Nano),
		JobID:      r.Header.Get(headerJobID),
		Verified:   verified,
		Payload:    p,
	}

	rc.mu.Lock()
	rc.count++
	rc.deliveries = append(rc.deliveries, d)
	if len(rc.deliveries) > maxStored {
		rc.deliveries = rc.deliveries[len(rc.deliveries)-maxStored:]
	}
	current := rc.count
	rc.mu.Unlock()

	log.Printf("hook received #%d: job=%s provider=%s city=%s status=%s events=%d",
		current, p.JobID, p.Provider, p.City, p.Status, p.Events)
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"received":%d}`, current)
}

func (rc *receiver) stats(w http.ResponseWriter, _ *http.Request) {
	rc.mu.Lock()
	s := stats{
		Count:      rc.count,
		Rejected:   rc.rejected,
		Deliveries: append([]delivery(nil), rc.deliveries...),
		Since:      rc.since.Format(time.RFC3339),
	}
	rc.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s)
}

func (rc *receiver) reset(w http.ResponseWriter, _ *http.Request) {
	rc.mu.Lock()
	rc.count = 0
	rc.rejected = 0
	rc.deliveries = nil
	rc.since = time.Now().UTC()
	rc.mu.Unlock()
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "reset")
}

// validSignature checks the hex HMAC-SHA256 of body.
func validSignature(secret string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
