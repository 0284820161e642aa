// Package restapi reads machines and events from the maintenance
// console's HTTP API.
package restapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/nwcai/pm-rul/internal/machine"
)

// Config holds REST adapter configuration
type Config struct {
	URL            string
	Timeout        time.Duration
	MaxConcurrency int64
	RetryCount     int
	RetryDelay     time.Duration
}

// DefaultConfig returns default configuration
func DefaultConfig(baseURL string) Config {
	return Config{
		URL:            baseURL,
		Timeout:        10 * time.Second,
		MaxConcurrency: 10,
		RetryCount:     1,
		RetryDelay:     100 * time.Millisecond,
	}
}

// errStatus marks a non-retryable HTTP response
type errStatus struct {
	code int
	body string
}

func (e *errStatus) Error() string {
	return fmt.Sprintf("http status %d: %s", e.code, e.body)
}

// Adapter is a data source backed by the console REST API
type Adapter struct {
	config Config
	client *http.Client
	sem    *semaphore.Weighted
}

// NewAdapter creates a new REST adapter
func NewAdapter(config Config) *Adapter {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 1
	}
	return &Adapter{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		sem: semaphore.NewWeighted(config.MaxConcurrency),
	}
}

// ListMachines returns every machine known to the console
func (a *Adapter) ListMachines(ctx context.Context) ([]machine.Machine, error) {
	var rows []MachineRecord
	if err := a.get(ctx, "/api/machine/all", &rows); err != nil {
		return nil, fmt.Errorf("list machines: %w", err)
	}

	machines := make([]machine.Machine, 0, len(rows))
	for _, r := range rows {
		machines = append(machines, r.toMachine())
	}
	return machines, nil
}

// GetMachine returns a single machine. The console answers with an array
// which is empty for unknown ids.
func (a *Adapter) GetMachine(ctx context.Context, id string) (machine.Machine, error) {
	var rows []MachineRecord
	if err := a.get(ctx, "/api/machine/id/"+url.PathEscape(id), &rows); err != nil {
		if isNotFound(err) {
			return machine.Machine{}, fmt.Errorf("%w: %s", machine.ErrNotFound, id)
		}
		return machine.Machine{}, fmt.Errorf("get machine %s: %w", id, err)
	}
	if len(rows) == 0 {
		return machine.Machine{}, fmt.Errorf("%w: %s", machine.ErrNotFound, id)
	}
	return rows[0].toMachine(), nil
}

// ListEvents returns a machine's event history
func (a *Adapter) ListEvents(ctx context.Context, id string) ([]machine.EventRecord, error) {
	var rows []EventRow
	if err := a.get(ctx, "/api/machine/event/"+url.PathEscape(id), &rows); err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", machine.ErrNotFound, id)
		}
		return nil, fmt.Errorf("list events for %s: %w", id, err)
	}

	records := make([]machine.EventRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.toRecord())
	}
	return records, nil
}

// get fetches path and decodes the JSON body into out, retrying transient
// failures
func (a *Adapter) get(ctx context.Context, path string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	// Acquire semaphore to limit concurrency
	if err := a.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("semaphore acquire: %w", err)
	}
	defer a.sem.Release(1)

	var lastErr error
	for attempt := 0; attempt <= a.config.RetryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(a.config.RetryDelay):
			}
		}

		body, err := a.fetch(ctx, path)
		if err == nil {
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}
			return nil
		}

		lastErr = err
		var se *errStatus
		if errors.As(err, &se) && se.code < 500 {
			return err
		}
	}

	return fmt.Errorf("request failed after %d attempts: %w", a.config.RetryCount+1, lastErr)
}

// fetch performs a single GET request
func (a *Adapter) fetch(ctx context.Context, path string) ([]byte, error) {
	fullURL := strings.TrimSuffix(a.config.URL, "/") + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &errStatus{code: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}
	return body, nil
}

func isNotFound(err error) bool {
	var se *errStatus
	return errors.As(err, &se) && se.code == http.StatusNotFound
}
