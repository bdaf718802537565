package main

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"gopkg.in/yaml.v3"
)

// Scenario describes an attack pattern to replay against the ingestion
// endpoint. Supported kinds: brute-force (one user, many IPs), spray (one IP,
// many users).
type Scenario struct {
	Name        string `yaml:"name"`
	Kind        string `yaml:"kind"`
	TargetUser  string `yaml:"target_user"`
	SourceIP    string `yaml:"source_ip"`
	IPCount     int    `yaml:"ip_count"`
	UserCount   int    `yaml:"user_count"`
	AttemptsPer int    `yaml:"attempts_per"`
	RawDuration string `yaml:"duration"`
	TargetHost  string `yaml:"target_host"`

	Duration time.Duration `yaml:"-"`
}

func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}

	if sc.Kind != "brute-force" && sc.Kind != "spray" {
		return nil, fmt.Errorf("unknown scenario kind %q", sc.Kind)
	}
	if sc.AttemptsPer <= 0 {
		sc.AttemptsPer = 5
	}
	sc.Duration = 30 * time.Minute
	if sc.RawDuration != "" {
		d, err := time.ParseDuration(sc.RawDuration)
		if err != nil {
			return nil, fmt.Errorf("parse duration: %w", err)
		}
		sc.Duration = d
	}
	if sc.TargetHost == "" {
		sc.TargetHost = "bastion-01"
	}
	return &sc, nil
}

func (sc *Scenario) Generate() []VectorRecord {
	switch sc.Kind {
	case "spray":
		return sc.generateSpray()
	default:
		return sc.generateBruteForce()
	}
}

// generateBruteForce produces failed password attempts against one user from
// many source IPs.
func (sc *Scenario) generateBruteForce() []VectorRecord {
	ipCount := sc.IPCount
	if ipCount <= 0 {
		ipCount = 15
	}
	user := sc.TargetUser
	if user == "" {
		user = "admin"
	}

	records := make([]VectorRecord, 0, ipCount*sc.AttemptsPer)
	for i := 0; i < ipCount; i++ {
		ip := gofakeit.IPv4Address()
		for j := 0; j < sc.AttemptsPer; j++ {
			records = append(records, sc.failedLogin(user, ip))
		}
	}
	return records
}

// generateSpray produces failed attempts from one IP across many usernames.
func (sc *Scenario) generateSpray() []VectorRecord {
	userCount := sc.UserCount
	if userCount <= 0 {
		userCount = 10
	}
	ip := sc.SourceIP
	if ip == "" {
		ip = gofakeit.IPv4Address()
	}

	records := make([]VectorRecord, 0, userCount*sc.AttemptsPer)
	for i := 0; i < userCount; i++ {
		user := gofakeit.Username()
		for j := 0; j < sc.AttemptsPer; j++ {
			records = append(records, sc.failedLogin(user, ip))
		}
	}
	return records
}

func (sc *Scenario) failedLogin(user, ip string) VectorRecord {
	ts := time.Now().Add(-time.Duration(rand.Int63n(int64(sc.Duration))))
	return VectorRecord{
		TS:         ts.UTC().Format(time.RFC3339),
		Hostname:   sc.TargetHost,
		Process:    "sshd",
		Content:    logLine("login", "failed", "password", user, ip),
		EventType:  "login",
		Status:     "failed",
		Username:   user,
		SourceUser: user,
		IPAddress:  ip,
		AuthMethod: "password",
	}
}
