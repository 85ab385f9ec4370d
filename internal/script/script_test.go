package script

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignatureIsStableAndBounded(t *testing.T) {
	for _, s := range []string{"", "x", DefaultTemplate, "import mlx.core as mx"} {
		sig := Signature(s)
		assert.Equal(t, sig, Signature(s))
		assert.GreaterOrEqual(t, sig, 0)
		assert.Less(t, sig, 99_999)
	}
	assert.NotEqual(t, Signature("policy-a"), Signature("policy-b"))
}

func TestLoadedMessage(t *testing.T) {
	assert.Equal(t, "Loaded policy signature #42.", LoadedMessage(42))
}

func TestLoad(t *testing.T) {
	script, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultTemplate, script)
	assert.Contains(t, script, "class JumpEnv")

	path := filepath.Join(t.TempDir(), "policy.py")
	require.NoError(t, os.WriteFile(path, []byte("print('hi')"), 0o644))
	script, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "print('hi')", script)

	_, err = Load(filepath.Join(t.TempDir(), "missing.py"))
	require.Error(t, err)
}
