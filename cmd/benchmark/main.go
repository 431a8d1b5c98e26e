// Benchmark tool for load-testing Kestrel with a synthetic advance portfolio.
//
// Usage:
//   go run cmd/benchmark/main.go -url http://localhost:8080 -count 10000
//
// This tool:
//   1. Generates a deterministic synthetic portfolio of advance requests
//   2. Scores each request under RULES_ONLY and/or ML_PLUS_RULES
//   3. Reports band distribution, approval rates, and mode agreement
//   4. Measures latency and throughput
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// AdvanceRequest is the Kestrel /score request format.
type AdvanceRequest struct {
	Amount                float64 `json:"amount"`
	Employer              string  `json:"employer"`
	PayFrequency          string  `json:"pay_frequency"`
	TenureMonths          int     `json:"tenure_months"`
	RepaymentHistoryScore int     `json:"repayment_history_score"`
	Mode                  string  `json:"mode,omitempty"`
}

// ScoreResponse is the Kestrel /score response format.
type ScoreResponse struct {
	RequestID         string   `json:"request_id"`
	Mode              string   `json:"mode"`
	RiskScore         int      `json:"risk_score"`
	RiskBand          string   `json:"risk_band"`
	RecommendedAction string   `json:"recommended_action"`
	TopDrivers        []string `json:"top_drivers"`
	PolicyCitation    string   `json:"policy_citation"`
	MLScore           *float64 `json:"ml_score,omitempty"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	Green int64
	Amber int64
	Red   int64

	TotalProcessed int64
	TotalErrors    int64

	// Mode agreement: both modes land in the same band
	Compared int64
	Agreed   int64

	ProcessingTimeMs int64
}

var employers = []string{
	"Acme Corp", "Globex", "Initech", "Umbrella Logistics",
	"Stark Industries", "Wayne Enterprises", "Pied Piper",
	"Hooli", "Dunder Mifflin", "Vandelay Industries",
}

var payFrequencies = []string{"weekly", "biweekly", "monthly"}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	count := flag.Int("count", 10000, "Number of synthetic requests")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	mode := flag.String("mode", "both", "Scoring mode: RULES_ONLY, ML_PLUS_RULES, or both")
	seed := flag.Int64("seed", 42, "Seed for the synthetic portfolio")
	verbose := flag.Bool("verbose", false, "Print each decision")
	flag.Parse()

	if *mode != "both" && *mode != "RULES_ONLY" && *mode != "ML_PLUS_RULES" {
		fmt.Println("ERROR: -mode must be RULES_ONLY, ML_PLUS_RULES, or both")
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║        KESTREL BENCHMARK - Synthetic Advance Portfolio         ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nKestrel URL: %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Requests:    %d\n", *count)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Mode:        %s\n", *mode)
	fmt.Printf("Seed:        %d\n", *seed)
	fmt.Println()

	// Check Kestrel is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  cd kestrel && go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is healthy")

	// Generate the portfolio up front so runs with the same seed are
	// comparable across builds.
	fmt.Printf("\nGenerating %d synthetic advance requests...\n", *count)
	portfolio := generatePortfolio(*count, *seed)
	fmt.Printf("✓ Portfolio ready\n")

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(portfolio, *baseURL, *tenantID, *mode, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration, *mode)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// generatePortfolio builds a mixed-risk portfolio: most requests are
// routine, with deliberate tails of large amounts, short tenure, and
// weak repayment history.
func generatePortfolio(count int, seed int64) []AdvanceRequest {
	rng := rand.New(rand.NewSource(seed))
	portfolio := make([]AdvanceRequest, count)

	for i := range portfolio {
		var amount float64
		switch r := rng.Float64(); {
		case r < 0.5:
			amount = 100 + rng.Float64()*900 // routine small advance
		case r < 0.85:
			amount = 1000 + rng.Float64()*1000
		default:
			amount = 2000 + rng.Float64()*3000 // high-amount tail
		}

		var tenure int
		switch r := rng.Float64(); {
		case r < 0.15:
			tenure = rng.Intn(3) // new hires
		case r < 0.5:
			tenure = 3 + rng.Intn(9)
		default:
			tenure = 12 + rng.Intn(120)
		}

		var history int
		switch r := rng.Float64(); {
		case r < 0.2:
			history = 300 + rng.Intn(280) // weak tail
		case r < 0.55:
			history = 580 + rng.Intn(70)
		default:
			history = 650 + rng.Intn(201)
		}

		portfolio[i] = AdvanceRequest{
			Amount:                float64(int(amount*100)) / 100,
			Employer:              employers[rng.Intn(len(employers))],
			PayFrequency:          payFrequencies[rng.Intn(len(payFrequencies))],
			TenureMonths:          tenure,
			RepaymentHistoryScore: history,
		}
	}

	return portfolio
}

func runBenchmark(portfolio []AdvanceRequest, baseURL, tenantID, mode string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan AdvanceRequest, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for req := range work {
				start := time.Now()

				var rulesResult, mlResult *ScoreResponse
				var err error

				switch mode {
				case "RULES_ONLY":
					rulesResult, err = scoreAdvance(client, baseURL, tenantID, req, "RULES_ONLY")
				case "ML_PLUS_RULES":
					mlResult, err = scoreAdvance(client, baseURL, tenantID, req, "ML_PLUS_RULES")
				default: // both
					rulesResult, err = scoreAdvance(client, baseURL, tenantID, req, "RULES_ONLY")
					if err == nil {
						mlResult, err = scoreAdvance(client, baseURL, tenantID, req, "ML_PLUS_RULES")
					}
				}

				elapsed := time.Since(start).Milliseconds()
				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s $%.2f -> %v\n", req.Employer, req.Amount, err)
					}
					continue
				}

				// Band distribution is taken from the primary result
				primary := mlResult
				if primary == nil {
					primary = rulesResult
				}

				switch primary.RiskBand {
				case "Green":
					atomic.AddInt64(&metrics.Green, 1)
				case "Amber":
					atomic.AddInt64(&metrics.Amber, 1)
				case "Red":
					atomic.AddInt64(&metrics.Red, 1)
				}

				if rulesResult != nil && mlResult != nil {
					atomic.AddInt64(&metrics.Compared, 1)
					if rulesResult.RiskBand == mlResult.RiskBand {
						atomic.AddInt64(&metrics.Agreed, 1)
					}
				}

				if verbose {
					fmt.Printf("  %-20s | $%8.2f | %-8s | %2dmo | %3d | %-5s (%3d) | %s\n",
						req.Employer,
						req.Amount,
						req.PayFrequency,
						req.TenureMonths,
						req.RepaymentHistoryScore,
						primary.RiskBand,
						primary.RiskScore,
						primary.PolicyCitation,
					)
				}
			}
		}()
	}

	for _, req := range portfolio {
		work <- req
	}
	close(work)

	wg.Wait()

	return metrics
}

func scoreAdvance(client *http.Client, baseURL, tenantID string, req AdvanceRequest, mode string) (*ScoreResponse, error) {
	req.Mode = mode

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/score", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result ScoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration, mode string) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 PORTFOLIO STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	scored := m.Green + m.Amber + m.Red
	fmt.Printf("\n📈 BAND DISTRIBUTION\n")
	if scored > 0 {
		fmt.Printf("   Green (Approve):         %8d (%.2f%%)\n", m.Green, 100*float64(m.Green)/float64(scored))
		fmt.Printf("   Amber (Manual Review):   %8d (%.2f%%)\n", m.Amber, 100*float64(m.Amber)/float64(scored))
		fmt.Printf("   Red   (Decline):         %8d (%.2f%%)\n", m.Red, 100*float64(m.Red)/float64(scored))
	}

	if mode == "both" && m.Compared > 0 {
		agreement := 100 * float64(m.Agreed) / float64(m.Compared)
		fmt.Printf("\n🔍 MODE AGREEMENT\n")
		fmt.Printf("   Same band under both modes: %d / %d (%.2f%%)\n", m.Agreed, m.Compared, agreement)
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		rps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f req/sec\n", rps)
	}

	fmt.Println()
}
