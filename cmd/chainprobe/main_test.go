package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/0xmhha/chainprobe/internal/config"
	"github.com/0xmhha/chainprobe/pkg/locator"
	"github.com/0xmhha/chainprobe/pkg/search"
	"github.com/0xmhha/chainprobe/pkg/substrate"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyFlags(t *testing.T) {
	t.Run("db path enables the database", func(t *testing.T) {
		cfg := config.NewConfig()
		applyFlags(cfg, &globalOptions{
			rpc:       "ws://node:9944",
			dbPath:    "/tmp/probe",
			logLevel:  "debug",
			logFormat: "console",
		})

		assert.Equal(t, "ws://node:9944", cfg.RPC.Endpoint)
		assert.True(t, cfg.Database.Enabled)
		assert.Equal(t, "/tmp/probe", cfg.Database.Path)
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, "console", cfg.Log.Format)
	})

	t.Run("no-db wins", func(t *testing.T) {
		cfg := config.NewConfig()
		cfg.Database.Enabled = true
		applyFlags(cfg, &globalOptions{dbPath: "/tmp/probe", noDB: true})
		assert.False(t, cfg.Database.Enabled)
	})

	t.Run("empty flags keep the config", func(t *testing.T) {
		cfg := config.NewConfig()
		endpoint := cfg.RPC.Endpoint
		applyFlags(cfg, &globalOptions{})
		assert.Equal(t, endpoint, cfg.RPC.Endpoint)
	})
}

func TestAPIConfig(t *testing.T) {
	cfg := config.NewConfig()
	cfg.API.Host = "0.0.0.0"
	cfg.API.Port = 9000
	cfg.API.EnableGraphQL = false
	cfg.API.RateLimitPerSecond = 5
	cfg.API.RateLimitBurst = 10

	c := apiConfig(cfg, &serveOptions{})
	assert.Equal(t, "0.0.0.0", c.Host)
	assert.Equal(t, 9000, c.Port)
	assert.False(t, c.EnableGraphQL)
	assert.True(t, c.EnableRateLimit)
	assert.Equal(t, 5.0, c.RateLimitPerSecond)
	assert.Equal(t, 10, c.RateLimitBurst)

	c = apiConfig(cfg, &serveOptions{host: "127.0.0.1", port: 8181})
	assert.Equal(t, "127.0.0.1", c.Host)
	assert.Equal(t, 8181, c.Port)
}

func TestProgressPrinter(t *testing.T) {
	var buf bytes.Buffer
	progress := progressPrinter(&buf)

	progress(locator.Window{Low: 0, High: 1000})
	progress(locator.Window{Low: 0, High: 1000})
	progress(locator.Window{Low: 500, High: 1000})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "searching blocks #0 – #1000", lines[0])
	assert.Equal(t, "searching blocks #500 – #1000", lines[1])
}

func TestPrintResult(t *testing.T) {
	hash := common.HexToHash("0xabcdef")

	t.Run("block by timestamp", func(t *testing.T) {
		var buf bytes.Buffer
		blockTime := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
		err := printResult(&buf, &search.BlockByTimestampResult{
			Height:     700,
			BlockHash:  hash,
			Time:       blockTime,
			TargetTime: blockTime.Add(-2 * time.Hour),
			Drift:      "2h after target",
			Policy:     "first_at_or_above",
			Reads:      12,
		}, false)
		require.NoError(t, err)

		out := buf.String()
		assert.Contains(t, out, "#700 "+hash.Hex())
		assert.Contains(t, out, "2024-01-02T03:04:05Z")
		assert.Contains(t, out, "2h after target")
		assert.Contains(t, out, "first_at_or_above")
	})

	t.Run("chain info", func(t *testing.T) {
		var buf bytes.Buffer
		err := printResult(&buf, &search.ChainInfo{
			Name:            "Polkadot",
			SpecName:        "polkadot",
			SpecVersion:     1002000,
			LatestHeight:    1000,
			FinalizedHeight: 998,
		}, false)
		require.NoError(t, err)
		assert.Contains(t, buf.String(), "polkadot v1002000")
		assert.Contains(t, buf.String(), "#998")
	})

	t.Run("no bridge channels", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, printResult(&buf, []search.BridgeChannel{}, false))
		assert.Equal(t, "no bridge channels\n", buf.String())
	})

	t.Run("bridge nonce changes", func(t *testing.T) {
		var buf bytes.Buffer
		err := printResult(&buf, &search.BridgeNonceResult{
			Channel:      hash,
			From:         100,
			To:           200,
			CurrentNonce: 7,
			Changes: []search.NonceChange{
				{Height: 190, BlockHash: hash, Nonce: 7, PreviousNonce: 6},
			},
		}, false)
		require.NoError(t, err)
		assert.Contains(t, buf.String(), "#100 – #200")
		assert.Contains(t, buf.String(), "HEIGHT")
		assert.Contains(t, buf.String(), "190")
	})

	t.Run("json output", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, printResult(&buf, &search.BlockDateResult{Height: 42, Timestamp: 1000}, true))

		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, float64(42), decoded["height"])
		assert.Equal(t, float64(1000), decoded["timestamp"])
	})

	t.Run("unknown types fall back to json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, printResult(&buf, map[string]int{"a": 1}, false))
		assert.JSONEq(t, `{"a":1}`, buf.String())
	})
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	root := newRootCmd()
	root.SetOut(&buf)
	root.SetArgs([]string{"version", "--json"})
	require.NoError(t, root.Execute())

	var info map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &info))
	assert.Equal(t, version, info["version"])
	assert.Equal(t, commit, info["commit"])
}

func TestDecodeKeyCommand(t *testing.T) {
	t.Chdir(t.TempDir())

	var buf bytes.Buffer
	root := newRootCmd()
	root.SetOut(&buf)
	root.SetArgs([]string{"decode-key", "Timestamp.Now", "--json"})
	require.NoError(t, root.Execute())

	var decoded substrate.DecodedKey
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "Timestamp", decoded.Pallet)
	assert.Equal(t, "Now", decoded.Item)
	assert.Empty(t, decoded.Args)
}

func TestDecodeKeyCommandRejectsGarbage(t *testing.T) {
	t.Chdir(t.TempDir())

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"decode-key", "not-a-key"})
	assert.Error(t, root.Execute())
}

func TestDecodeKeyCommandList(t *testing.T) {
	t.Chdir(t.TempDir())

	var buf bytes.Buffer
	root := newRootCmd()
	root.SetOut(&buf)
	root.SetArgs([]string{"decode-key", "--list", "--json"})
	require.NoError(t, root.Execute())

	var names []string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &names))
	assert.Contains(t, names, "Timestamp.Now")
	assert.Contains(t, names, "System.Number")
	assert.IsIncreasing(t, names)

	root = newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"decode-key", "--list", "Timestamp.Now"})
	assert.Error(t, root.Execute())
}
