package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// VaultConfig points at a KV secret holding the model API key and the
// Redis password.
type VaultConfig struct {
	Addr      string
	Token     string
	Namespace string
	Mount     string
	Path      string
	KVVersion int
	Timeout   time.Duration
}

// VaultClient reads a single KV secret over the Vault HTTP API.
type VaultClient struct {
	cfg        VaultConfig
	httpClient *http.Client
}

func NewVaultClient(cfg VaultConfig) (*VaultClient, error) {
	if cfg.Addr == "" || cfg.Token == "" || cfg.Path == "" {
		return nil, errors.New("vault configuration incomplete (addr, token and path are required)")
	}
	if cfg.Mount == "" {
		cfg.Mount = "secret"
	}
	if cfg.KVVersion == 0 {
		cfg.KVVersion = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &VaultClient{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}, nil
}

// Fetch returns the secret's key/value pairs with every value rendered as
// a string.
func (c *VaultClient) Fetch(ctx context.Context) (map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Vault-Token", c.cfg.Token)
	if c.cfg.Namespace != "" {
		req.Header.Set("X-Vault-Namespace", c.cfg.Namespace)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vault request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("vault fetch failed: %s %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var payload struct {
		Data map[string]interface{} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decoding vault response: %w", err)
	}

	data := payload.Data
	if c.cfg.KVVersion != 1 {
		inner, ok := data["data"].(map[string]interface{})
		if !ok {
			return nil, errors.New("vault response missing data for KV v2")
		}
		data = inner
	}
	if data == nil {
		return nil, errors.New("vault response missing data")
	}

	out := make(map[string]string, len(data))
	for key, value := range data {
		out[key] = stringify(value)
	}
	return out, nil
}

func (c *VaultClient) url() string {
	addr := strings.TrimRight(c.cfg.Addr, "/")
	mount := strings.Trim(c.cfg.Mount, "/")
	path := strings.TrimLeft(c.cfg.Path, "/")
	if c.cfg.KVVersion == 1 {
		return fmt.Sprintf("%s/v1/%s/%s", addr, mount, path)
	}
	return fmt.Sprintf("%s/v1/%s/data/%s", addr, mount, path)
}

func stringify(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	}
}
