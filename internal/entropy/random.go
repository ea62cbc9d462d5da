// Package entropy provides true randomness for combat dice via random.org.
// Falls back to crypto/rand when the API is unavailable.
package entropy

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"sync"
	"time"
)

// DefaultEndpoint is the random.org JSON-RPC endpoint.
const DefaultEndpoint = "https://api.random.org/json-rpc/4/invoke"

const (
	faceSides = 6   // pooled draws are d6 faces
	batchSize = 100 // faces fetched per refill
	lowWater  = 10  // refill when the pool drops below this

	// FailureCooldown is how long the client serves crypto/rand draws after a
	// failed refill before it asks random.org again.
	FailureCooldown = 60 * time.Second
)

// Client provides true random d6 faces from random.org with a local pool.
// A nil *Client is valid and draws everything from crypto/rand.
type Client struct {
	apiKey   string
	endpoint string
	client   *http.Client

	mu          sync.Mutex
	pool        []int
	lastFailure time.Time
	now         func() time.Time
}

// NewClient creates a random.org client. Returns nil if apiKey is empty.
func NewClient(apiKey string) *Client {
	if apiKey == "" {
		return nil
	}
	return &Client{
		apiKey:   apiKey,
		endpoint: DefaultEndpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
		now:      time.Now,
	}
}

// WithEndpoint points the client at a different JSON-RPC URL.
func (c *Client) WithEndpoint(url string) *Client {
	if c != nil {
		c.endpoint = url
	}
	return c
}

// Enabled returns true if the client has a valid API key.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

// Intn returns a random int in [0, n). Six-sided draws come from the
// random.org pool when one is available; everything else, and any draw the
// pool cannot serve, uses crypto/rand.
func (c *Client) Intn(n int) int {
	if n <= 0 {
		panic(fmt.Sprintf("entropy: Intn precondition violated: n = %d", n))
	}
	if n != faceSides || !c.Enabled() {
		return cryptoIntn(n)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pool) < lowWater && c.now().Sub(c.lastFailure) >= FailureCooldown {
		if err := c.refill(); err != nil {
			c.lastFailure = c.now()
			slog.Warn("random.org refill failed, using crypto/rand",
				"error", err,
				"retry_in", FailureCooldown,
			)
		}
	}
	if len(c.pool) == 0 {
		return cryptoIntn(n)
	}

	face := c.pool[0]
	c.pool = c.pool[1:]
	return face - 1
}

// Pooled returns how many faces are waiting in the pool.
func (c *Client) Pooled() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pool)
}

func (c *Client) refill() error {
	req := map[string]any{
		"jsonrpc": "2.0",
		"method":  "generateIntegers",
		"params": map[string]any{
			"apiKey": c.apiKey,
			"n":      batchSize,
			"min":    1,
			"max":    faceSides,
		},
		"id": 1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	resp, err := c.client.Post(c.endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch: status %d", resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}

	var result struct {
		Result struct {
			Random struct {
				Data []int `json:"data"`
			} `json:"random"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	if result.Error != nil {
		return fmt.Errorf("api: %s", result.Error.Message)
	}

	added := 0
	for _, f := range result.Result.Random.Data {
		if f >= 1 && f <= faceSides {
			c.pool = append(c.pool, f)
			added++
		}
	}
	if added == 0 {
		return fmt.Errorf("empty batch")
	}
	slog.Debug("random.org pool refilled", "count", added)
	return nil
}

// cryptoIntn draws from crypto/rand.
func cryptoIntn(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		// crypto/rand does not fail on supported platforms.
		return 0
	}
	return int(v.Int64())
}

// NewSeed returns a random non-zero board seed from crypto/rand.
func NewSeed() (int64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("reading seed: %w", err)
	}
	seed := int64(binary.LittleEndian.Uint64(buf[:]) >> 1)
	if seed == 0 {
		seed = 1
	}
	return seed, nil
}
