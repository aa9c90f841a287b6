package keygen

import (
	"bytes"
	"context"
	"encoding/hex"
	"strings"
	"testing"

	"dpk/internal/config"
	"dpk/pkg/partitionkey"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/sha3"
)

func sha3Hex(s string) string {
	sum := sha3.Sum512([]byte(s))
	return hex.EncodeToString(sum[:])
}

func newTestGenerator(skipInvalid bool) *Generator {
	return NewGenerator(config.BatchConfig{
		Workers:      4,
		ChunkSize:    2,
		MaxLineBytes: 1024,
		SkipInvalid:  skipInvalid,
	})
}

func TestGenerator_Run(t *testing.T) {
	input := strings.Join([]string{
		`{"partitionKey":"customKey"}`,
		``,
		`{"data":"test"}`,
		`null`,
		`{"partitionKey":{"key":"value"}}`,
		`  {"b":1,"a":2}  `,
	}, "\n")

	var out bytes.Buffer
	stats, err := newTestGenerator(false).Run(context.Background(), strings.NewReader(input), &out)
	require.NoError(t, err)

	assert.Equal(t, Stats{Lines: 5, Derived: 5}, stats)
	assert.Equal(t, []string{
		"customKey",
		sha3Hex(`{"data":"test"}`),
		partitionkey.TrivialPartitionKey,
		`{"key":"value"}`,
		sha3Hex(`{"b":1,"a":2}`),
	}, strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n"))
}

func TestGenerator_InvalidLineAborts(t *testing.T) {
	input := "{\"a\":1}\n{\"a\":2}\n{broken\n{\"a\":3}\n"

	var out bytes.Buffer
	stats, err := newTestGenerator(false).Run(context.Background(), strings.NewReader(input), &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, partitionkey.ErrInvalidEvent)
	assert.Contains(t, err.Error(), "line 3")

	// 第一批已经写出
	assert.Equal(t, 2, stats.Derived)
	assert.Equal(t, sha3Hex(`{"a":1}`)+"\n"+sha3Hex(`{"a":2}`)+"\n", out.String())
}

func TestGenerator_SkipInvalid(t *testing.T) {
	input := "{\"a\":1}\nnot json\n{\"a\":3}\n"

	var out bytes.Buffer
	stats, err := newTestGenerator(true).Run(context.Background(), strings.NewReader(input), &out)
	require.NoError(t, err)

	assert.Equal(t, Stats{Lines: 3, Derived: 2, Invalid: 1}, stats)
	assert.Equal(t, sha3Hex(`{"a":1}`)+"\n\n"+sha3Hex(`{"a":3}`)+"\n", out.String())
}

func TestGenerator_LineTooLong(t *testing.T) {
	g := NewGenerator(config.BatchConfig{Workers: 1, ChunkSize: 8, MaxLineBytes: 32})
	input := `{"a":1}` + "\n" + `{"data":"` + strings.Repeat("x", 64) + `"}` + "\n"

	var out bytes.Buffer
	_, err := g.Run(context.Background(), strings.NewReader(input), &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2 exceeds max_line_bytes")
}

func TestGenerator_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	_, err := newTestGenerator(false).Run(ctx, strings.NewReader("{\"a\":1}\n"), &out)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, out.String())
}

func TestGenerator_MatchesDeterministic(t *testing.T) {
	var sb strings.Builder
	var want []string
	for i := 0; i < 50; i++ {
		line := `{"seq":` + strings.Repeat("1", i%5+1) + `,"payload":"` + strings.Repeat("p", i*7) + `"}`
		sb.WriteString(line + "\n")

		event, err := partitionkey.DecodeEvent([]byte(line))
		require.NoError(t, err)
		want = append(want, partitionkey.MustDeterministic(event))
	}

	var out bytes.Buffer
	stats, err := NewGenerator(config.BatchConfig{Workers: 8, ChunkSize: 7, MaxLineBytes: 4096}).
		Run(context.Background(), strings.NewReader(sb.String()), &out)
	require.NoError(t, err)
	assert.Equal(t, 50, stats.Derived)
	assert.Equal(t, want, strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n"))
}
