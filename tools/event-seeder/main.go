// event-seeder posts synthetic Vector-shaped SSH auth batches to a running
// sshwatch instance, for load testing and dashboard QA. Scenario files can
// replay attack patterns (brute force, password spray) on top of the random
// background traffic.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

var (
	serverURL  = flag.String("url", "http://localhost:3000", "sshwatch base URL")
	count      = flag.Int("count", 100, "Number of events to generate")
	interval   = flag.Duration("interval", 100*time.Millisecond, "Interval between batches")
	batchSize  = flag.Int("batch-size", 10, "Number of events per batch")
	timeSpread = flag.Duration("time-spread", 24*time.Hour, "Spread events over this time period (0 for real-time)")
	failRate   = flag.Float64("fail-rate", 0.3, "Fraction of login attempts that fail")
	scenario   = flag.String("scenario", "", "Path to a YAML attack scenario file")
)

// VectorRecord mirrors the shipper payload the ingestion endpoint accepts.
type VectorRecord struct {
	TS         string `json:"ts"`
	Hostname   string `json:"hostname"`
	Process    string `json:"process"`
	Content    string `json:"content"`
	EventType  string `json:"event_type"`
	Status     string `json:"status"`
	Username   string `json:"username"`
	SourceUser string `json:"source_user"`
	IPAddress  string `json:"ip_address"`
	AuthMethod string `json:"auth_method,omitempty"`
}

func main() {
	flag.Parse()

	gofakeit.Seed(time.Now().UnixNano())

	var records []VectorRecord
	if *scenario != "" {
		sc, err := LoadScenario(*scenario)
		if err != nil {
			log.Fatalf("Failed to load scenario: %v", err)
		}
		records = sc.Generate()
		log.Printf("Loaded scenario %q: %d events", sc.Name, len(records))
	} else {
		records = generateBackground(*count)
	}

	log.Printf("Seeding %d events to %s (batch size %d)", len(records), *serverURL, *batchSize)

	client := &http.Client{Timeout: 10 * time.Second}

	successCount := 0
	failCount := 0

	for start := 0; start < len(records); start += *batchSize {
		end := start + *batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		if err := sendBatch(client, *serverURL, batch); err != nil {
			log.Printf("Failed to send batch: %v", err)
			failCount += len(batch)
		} else {
			successCount += len(batch)
			if successCount%50 == 0 {
				log.Printf("Progress: %d/%d events sent", successCount, len(records))
			}
		}

		if *interval > 0 && end < len(records) {
			time.Sleep(*interval)
		}
	}

	log.Printf("Seeding complete: %d sent, %d failed", successCount, failCount)
}

func generateBackground(n int) []VectorRecord {
	records := make([]VectorRecord, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, randomRecord())
	}
	return records
}

func randomRecord() VectorRecord {
	eventTime := time.Now()
	if *timeSpread > 0 {
		eventTime = eventTime.Add(-time.Duration(rand.Int63n(int64(*timeSpread))))
	}

	username := gofakeit.Username()
	ip := gofakeit.IPv4Address()
	hostname := strings.ToLower(gofakeit.NounCommon()) + fmt.Sprintf("-%02d", rand.Intn(20))

	status := "success"
	if rand.Float64() < *failRate {
		status = "failed"
	}
	eventType := "login"
	if status == "success" && rand.Float64() < 0.2 {
		eventType = "logout"
	}

	method := "password"
	if rand.Float64() < 0.5 {
		method = "publickey"
	}

	return VectorRecord{
		TS:         eventTime.UTC().Format(time.RFC3339),
		Hostname:   hostname,
		Process:    "sshd",
		Content:    logLine(eventType, status, method, username, ip),
		EventType:  eventType,
		Status:     status,
		Username:   username,
		SourceUser: username,
		IPAddress:  ip,
		AuthMethod: method,
	}
}

func logLine(eventType, status, method, username, ip string) string {
	port := 1024 + rand.Intn(64000)
	switch {
	case eventType == "logout":
		return fmt.Sprintf("Disconnected from user %s %s port %d", username, ip, port)
	case status == "failed":
		return fmt.Sprintf("Failed %s for %s from %s port %d ssh2", method, username, ip, port)
	default:
		return fmt.Sprintf("Accepted %s for %s from %s port %d ssh2", method, username, ip, port)
	}
}

func sendBatch(client *http.Client, baseURL string, batch []VectorRecord) error {
	body, err := json.Marshal(batch)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(baseURL, "/")+"/api/log-events", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}
