package connections

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scenark/scenark/internal/secrets"
)

func TestStaticResolver_ResolveAndMissing(t *testing.T) {
	r := NewStaticResolver()
	ctx := context.Background()

	r.Add("org-1", &Handle{Integration: "tracker", BaseURL: "https://tracker.test"})
	r.Add("org-1", &Handle{Integration: "chat", BaseURL: "https://chat.test"})

	h, ok := r.Resolve(ctx, "org-1", "tracker")
	require.True(t, ok)
	assert.Equal(t, "https://tracker.test", h.BaseURL)

	assert.True(t, r.IsConnected(ctx, "org-1", "chat"))
	assert.False(t, r.IsConnected(ctx, "org-1", "crm"))
	assert.False(t, r.IsConnected(ctx, "org-2", "tracker"))

	missing := Missing(ctx, r, "org-1", []string{"tracker", "crm", "docs"})
	assert.Equal(t, []string{"crm", "docs"}, missing)

	assert.Empty(t, Missing(ctx, r, "org-1", []string{"tracker", "chat"}))
}

func TestStaticResolver_Remove(t *testing.T) {
	r := NewStaticResolver()
	ctx := context.Background()

	r.Add("org-1", &Handle{Integration: "tracker"})
	require.True(t, r.IsConnected(ctx, "org-1", "tracker"))

	r.Remove("org-1", "tracker")
	assert.False(t, r.IsConnected(ctx, "org-1", "tracker"))
}

func TestLoadStaticResolver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connections.yaml")
	content := `tenants:
  org-1:
    - integration: tracker
      base_url: https://tracker.test
      auth_token: tok-1
    - integration: chat
      base_url: https://chat.test
      headers:
        X-Team: demo
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	r, err := LoadStaticResolver(path)
	require.NoError(t, err)

	h, ok := r.Resolve(context.Background(), "org-1", "chat")
	require.True(t, ok)
	assert.Equal(t, "demo", h.Headers["X-Team"])

	h, ok = r.Resolve(context.Background(), "org-1", "tracker")
	require.True(t, ok)
	assert.Equal(t, "tok-1", h.AuthToken)
}

func TestLoadStaticResolver_MissingFile(t *testing.T) {
	_, err := LoadStaticResolver(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadEncrypted_OpensSealedTokens(t *testing.T) {
	vault, err := secrets.NewAESVault(secrets.VaultConfig{MasterKey: bytes.Repeat([]byte{0x42}, 32)})
	require.NoError(t, err)

	sealed, err := vault.Seal("tok_live_secret")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "connections.yaml")
	content := fmt.Sprintf(`tenants:
  org-1:
    - integration: tracker
      base_url: https://tracker.test
      auth_token_sealed: %s
`, sealed)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	r, err := LoadEncrypted(path, vault)
	require.NoError(t, err)

	h, ok := r.Resolve(context.Background(), "org-1", "tracker")
	require.True(t, ok)
	assert.Equal(t, "tok_live_secret", h.AuthToken)
	assert.Empty(t, h.AuthTokenSealed)
}

func TestLoadStaticResolver_SealedTokenWithoutVault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connections.yaml")
	content := `tenants:
  org-1:
    - integration: tracker
      base_url: https://tracker.test
      auth_token_sealed: AAAA
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	_, err := LoadStaticResolver(path)
	require.Error(t, err)
}
