// Minimal example demonstrating a resilient batch of reporting API calls:
// breaker-guarded retries, response caching and middleware-injected
// credentials, plus a per-request variant and the administrative surface.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/jimc1682000/akamai-reports/logging"
	"github.com/jimc1682000/akamai-reports/traffic"
)

const reportingURL = "https://httpbin.org/json"

func main() {
	logger, err := logging.NewDevelopment()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	cfg := traffic.DefaultConfig()
	cfg.CacheEnabled = true
	cfg.MaxWorkers = 2

	client, err := traffic.New(cfg,
		traffic.WithLogger(logger),
		traffic.WithMiddleware(func(req *http.Request, next traffic.RoundTripper) (*http.Response, error) {
			req.Header.Set("Authorization", "EG1-HMAC-SHA256 example-token")
			return next.RoundTrip(req)
		}),
	)
	if err != nil {
		log.Fatalf("client: %v", err)
	}

	batch := []traffic.RequestDescriptor{
		{
			RequestID:  "edge-traffic",
			EndpointID: "reporting",
			Operation:  "traffic-report",
			Method:     http.MethodGet,
			URL:        reportingURL,
			Params:     map[string]string{"start": "2024-01-01", "end": "2024-01-31"},
		},
		{
			RequestID:  "edge-emissions",
			EndpointID: "reporting",
			Operation:  "emissions-report",
			Method:     http.MethodGet,
			URL:        reportingURL,
			Params:     map[string]string{"start": "2024-01-01", "end": "2024-01-31"},
		},
	}

	results, err := client.Execute(context.Background(), batch, 2*time.Minute)
	if err != nil {
		log.Fatalf("execute: %v", err)
	}
	for id, out := range results {
		if !out.OK() {
			fmt.Printf("%s failed: %v\n", id, out.Err)
			continue
		}
		fmt.Printf("%s ok: %d bytes in %d attempt(s), cached=%v\n",
			id, len(out.Payload), out.Attempts, out.FromCache)
	}

	// Single request, same retry and breaker pipeline.
	out := client.Do(context.Background(), traffic.RequestDescriptor{
		EndpointID: "reporting",
		Operation:  "traffic-report",
		Method:     http.MethodGet,
		URL:        reportingURL,
	})
	fmt.Println("single request from cache:", out.FromCache)

	// Administrative surface.
	stats := client.CacheStats()
	fmt.Printf("cache: %d entries, oldest %v\n", stats.Entries, stats.OldestAge)
	for endpoint, snap := range client.BreakerStates() {
		fmt.Printf("breaker %s: %s (%d/%d failures)\n",
			endpoint, snap.State, snap.Failures, snap.FailureThreshold)
	}
}
