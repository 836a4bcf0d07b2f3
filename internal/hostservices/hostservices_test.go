package hostservices

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoppy-fm/hoppy/internal/params"
)

func TestDirKeyStorageLookup(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "host_22_root"), []byte("pem-bytes"), 0o600))

	ks := DirKeyStorage{Dir: dir}
	data, ok := ks.Lookup("host", 22, "root")
	require.True(t, ok)
	assert.Equal(t, "pem-bytes", string(data))

	_, ok = ks.Lookup("other", 22, "root")
	assert.False(t, ok)
}

func TestConnectionMessageGeneric(t *testing.T) {
	p := params.ProtocolParams{Generic: &params.Generic{Address: "172.26.104.1", Port: 22}}
	assert.Equal(t, "Connecting to 172.26.104.1:22…", ConnectionMessage(params.ProtocolSftp, p))
}

func TestConnectionMessageS3(t *testing.T) {
	p := params.ProtocolParams{S3: &params.S3{Bucket: "mybucket"}}
	assert.Equal(t, "Connecting to mybucket…", ConnectionMessage(params.ProtocolS3, p))
}

func TestConnectionMessageKubeDefaultsNamespace(t *testing.T) {
	p := params.ProtocolParams{Kube: &params.Kube{}}
	assert.Equal(t, "Connecting to Kube namespace default…", ConnectionMessage(params.ProtocolKube, p))
}

func TestEndpointLabelSmb(t *testing.T) {
	p := params.ProtocolParams{Smb: &params.Smb{Address: "myserver"}}
	assert.Equal(t, "myserver", EndpointLabel(p))
}

func TestNopNotifierNeverErrors(t *testing.T) {
	assert.NoError(t, NopNotifier{}.Notify("title", "body"))
}

func TestMemBookmarkStorePutGetDeleteNames(t *testing.T) {
	var store MemBookmarkStore

	_, ok := store.Get("home")
	assert.False(t, ok)

	p := params.New(params.ProtocolSftp, params.FromGeneric(params.ProtocolSftp, params.Generic{Address: "172.26.104.1"}))
	store.Put("home", p)

	got, ok := store.Get("home")
	require.True(t, ok)
	assert.Equal(t, "172.26.104.1", got.Params.Generic.Address)
	assert.Equal(t, []string{"home"}, store.Names())

	store.Delete("home")
	_, ok = store.Get("home")
	assert.False(t, ok)
}
