package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"campusbooking/pkg/authn"
	"campusbooking/pkg/config"
)

// devflow fires N booking requests for the same slot at once and prints how
// the API admitted them. Against a quantity-2 resource with N=3 expect two
// admitted and one RESOURCE_UNAVAILABLE.
func main() {
	var (
		apiURL       = flag.String("api-url", "", "API base url (defaults to http://localhost<HTTP_ADDR>)")
		n            = flag.Int("n", 3, "number of simultaneous requests, one user each")
		resourceType = flag.String("resource-type", "equipment", "room or equipment")
		resourceID   = flag.String("resource-id", "PROJ-A", "resource id")
		startFlag    = flag.String("start", "", "slot start, RFC 3339 (defaults to tomorrow 10:00 UTC)")
		duration     = flag.Duration("duration", 2*time.Hour, "slot length")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *apiURL == "" {
		*apiURL = defaultAPIURL(cfg.HTTPAddr)
	}

	start := time.Now().UTC().Truncate(24 * time.Hour).Add(34 * time.Hour)
	if *startFlag != "" {
		start, err = time.Parse(time.RFC3339, *startFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "bad -start: %v\n", err)
			os.Exit(2)
		}
	}

	keys := authn.Keys{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer, Audience: cfg.JWT.Audience}
	client := &http.Client{Timeout: 10 * time.Second}

	type result struct {
		user   string
		status int
		body   string
	}
	results := make([]result, *n)
	ready := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < *n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("devflow-student-%d", i+1)
			body, _ := json.Marshal(map[string]any{
				"resourceType": *resourceType,
				"resourceId":   *resourceID,
				"startTime":    start,
				"endTime":      start.Add(*duration),
				"reason":       "devflow contention check",
			})
			req, _ := http.NewRequest(http.MethodPost, *apiURL+"/v1/bookings", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			if keys.Secret != "" {
				tok, err := keys.Issue(authn.Identity{UserID: user, Role: authn.RoleStudent}, time.Now(), 5*time.Minute)
				if err != nil {
					results[i] = result{user: user, body: err.Error()}
					return
				}
				req.Header.Set("Authorization", "Bearer "+tok)
			} else {
				req.Header.Set("X-User-ID", user)
			}

			<-ready
			resp, err := client.Do(req)
			if err != nil {
				results[i] = result{user: user, body: err.Error()}
				return
			}
			defer resp.Body.Close()
			b, _ := io.ReadAll(resp.Body)
			results[i] = result{user: user, status: resp.StatusCode, body: strings.TrimSpace(string(b))}
		}(i)
	}
	close(ready)
	wg.Wait()

	admitted := 0
	for _, r := range results {
		if r.status == http.StatusCreated {
			admitted++
		}
		fmt.Printf("%s status=%d %s\n", r.user, r.status, r.body)
	}
	fmt.Printf("\n%d of %d requests admitted for %s:%s [%s, %s)\n",
		admitted, *n, *resourceType, *resourceID, start.Format(time.RFC3339), start.Add(*duration).Format(time.RFC3339))
}

func defaultAPIURL(httpAddr string) string {
	// httpAddr is typically ":8081" or "0.0.0.0:8081".
	addr := strings.TrimSpace(httpAddr)
	if addr == "" {
		addr = ":8081"
	}
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	if strings.HasPrefix(addr, "0.0.0.0:") {
		return "http://localhost" + strings.TrimPrefix(addr, "0.0.0.0")
	}
	return "http://" + addr
}
