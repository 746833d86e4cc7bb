package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

func main() {
	gateway := flag.String("gateway", "ws://localhost:3001/api/session/stream", "gateway WebSocket URL")
	concurrency := flag.Int("concurrency", 10, "number of concurrent clappers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	windows := flag.Int("windows", 4, "metric windows per session")
	bpm := flag.Float64("bpm", 80, "tempo of the simulated clapping")
	jitter := flag.Float64("jitter", 0.08, "max absolute offset from the beat, seconds")
	engine := flag.String("engine", "", "coach engine requested in the auth frame")
	speedup := flag.Float64("speedup", 8, "send metrics this many times faster than real time")
	flag.Parse()

	fmt.Printf("Load test: %d concurrent sessions for %s\n", *concurrency, *duration)
	fmt.Printf("Gateway: %s | BPM: %.0f | Windows/session: %d\n\n", *gateway, *bpm, *windows)

	p := clapper{bpm: *bpm, jitter: *jitter, windows: *windows, engine: *engine, speedup: *speedup}

	var mu sync.Mutex
	var results []sessionResult
	var wg sync.WaitGroup

	deadline := time.Now().Add(*duration)

	for range *concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for time.Now().Before(deadline) {
				r := p.run(*gateway)
				mu.Lock()
				results = append(results, r)
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	printSummary(results)
}

type clapper struct {
	bpm     float64
	jitter  float64
	windows int
	engine  string
	speedup float64
}

type sessionResult struct {
	success    bool
	authMs     float64
	feedbackMs []float64
	toolCalls  int
	err        string
}

type serverFrame struct {
	Type      string          `json:"type"`
	Content   string          `json:"content"`
	Message   string          `json:"message"`
	ToolTrace json.RawMessage `json:"toolTrace"`
}

type metric struct {
	Timestamp float64 `json:"timestamp"`
	Offset    float64 `json:"offset"`
	BPM       float64 `json:"bpm"`
}

func (c clapper) run(gateway string) sessionResult {
	conn, _, err := websocket.DefaultDialer.Dial(gateway, nil)
	if err != nil {
		return sessionResult{err: fmt.Sprintf("dial: %v", err)}
	}
	defer conn.Close()

	start := time.Now()
	auth := map[string]string{"type": "auth", "sessionId": "load-" + uuid.NewString()}
	if c.engine != "" {
		auth["engine"] = c.engine
	}
	if err = conn.WriteJSON(auth); err != nil {
		return sessionResult{err: fmt.Sprintf("send auth: %v", err)}
	}
	if _, err = expect(conn, "system"); err != nil {
		return sessionResult{err: fmt.Sprintf("auth: %v", err)}
	}
	res := sessionResult{authMs: msSince(start)}

	beat := 60 / c.bpm
	pause := time.Duration(beat / c.speedup * float64(time.Second))
	clock := 0.0
	for w := 0; w < c.windows; w++ {
		var sent time.Time
		for i := 0; i < 5; i++ {
			clock += beat
			m := simulate(clock, c.bpm, c.jitter)
			if err = conn.WriteJSON(map[string]any{"type": "metrics", "metrics": m}); err != nil {
				return sessionResult{err: fmt.Sprintf("send metrics: %v", err)}
			}
			sent = time.Now()
			time.Sleep(pause)
		}
		fb, err := expect(conn, "feedback")
		if err != nil {
			return sessionResult{err: fmt.Sprintf("feedback: %v", err)}
		}
		res.feedbackMs = append(res.feedbackMs, msSince(sent))
		if len(fb.ToolTrace) > 0 {
			res.toolCalls++
		}
	}

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	res.success = true
	return res
}

// expect reads frames until one of type want arrives. Error frames fail the session.
func expect(conn *websocket.Conn, want string) (serverFrame, error) {
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	for {
		var f serverFrame
		if err := conn.ReadJSON(&f); err != nil {
			return f, err
		}
		switch f.Type {
		case want:
			return f, nil
		case "error":
			return f, fmt.Errorf("server error: %s", f.Message)
		}
	}
}

// simulate returns a clap near the beat at clock seconds.
func simulate(clock, bpm, jitter float64) metric {
	offset := (rand.Float64()*2 - 1) * jitter
	return metric{Timestamp: clock + offset, Offset: math.Round(offset*1000) / 1000, BPM: bpm}
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}

func printSummary(results []sessionResult) {
	var succeeded, failed, tools int
	var authAll, fbAll []float64
	errs := map[string]int{}

	for _, r := range results {
		if !r.success {
			failed++
			errs[r.err]++
			continue
		}
		succeeded++
		tools += r.toolCalls
		authAll = append(authAll, r.authMs)
		fbAll = append(fbAll, r.feedbackMs...)
	}

	fmt.Printf("\n=== Load Test Results ===\n")
	fmt.Printf("Sessions completed: %d\n", succeeded)
	fmt.Printf("Sessions failed:    %d\n", failed)
	for e, n := range errs {
		fmt.Printf("  %4d x %s\n", n, e)
	}

	if len(fbAll) == 0 {
		fmt.Println("No successful sessions to report latency")
		return
	}

	fmt.Printf("Windows answered:   %d (%d with a tool call)\n", len(fbAll), tools)
	fmt.Printf("\n%-9s %8s %8s %8s\n", "Stage", "p50", "p95", "p99")
	fmt.Printf("%-9s %6.0fms %6.0fms %6.0fms\n", "Auth", percentile(authAll, 50), percentile(authAll, 95), percentile(authAll, 99))
	fmt.Printf("%-9s %6.0fms %6.0fms %6.0fms\n", "Feedback", percentile(fbAll, 50), percentile(fbAll, 95), percentile(fbAll, 99))
}

func percentile(data []float64, pct float64) float64 {
	sort.Float64s(data)
	idx := int(math.Ceil(pct/100*float64(len(data)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(data) {
		idx = len(data) - 1
	}
	return data[idx]
}
