package addr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoppy-fm/hoppy/internal/params"
)

func TestParseGenericBaseCase(t *testing.T) {
	out, err := Parse("172.26.104.1", params.ProtocolSftp)
	require.NoError(t, err)
	assert.Equal(t, params.ProtocolSftp, out.Protocol)
	assert.Equal(t, "172.26.104.1", out.Params.Generic.Address)
	assert.EqualValues(t, 22, out.Params.Generic.Port)
	assert.NotEmpty(t, out.Params.Generic.Username)
}

func TestParseGenericWithUser(t *testing.T) {
	out, err := Parse("root@172.26.104.1", params.ProtocolSftp)
	require.NoError(t, err)
	assert.Equal(t, "root", out.Params.Generic.Username)
	assert.Equal(t, "172.26.104.1", out.Params.Generic.Address)
	assert.EqualValues(t, 22, out.Params.Generic.Port)
	assert.Empty(t, out.EntryDirectory)
}

func TestParseGenericWithUserAndPort(t *testing.T) {
	out, err := Parse("root@172.26.104.1:8022", params.ProtocolSftp)
	require.NoError(t, err)
	assert.EqualValues(t, 8022, out.Params.Generic.Port)
	assert.Equal(t, "root", out.Params.Generic.Username)
}

func TestParseGenericPortOnly(t *testing.T) {
	out, err := Parse("172.26.104.1:4022", params.ProtocolSftp)
	require.NoError(t, err)
	assert.EqualValues(t, 4022, out.Params.Generic.Port)
	assert.NotEmpty(t, out.Params.Generic.Username)
}

func TestParseFtpProtocolPrefixDefaultsPort21NoUser(t *testing.T) {
	out, err := Parse("ftp://172.26.104.1", params.ProtocolSftp)
	require.NoError(t, err)
	assert.Equal(t, params.ProtocolFtp, out.Protocol)
	assert.EqualValues(t, 21, out.Params.Generic.Port)
	assert.Empty(t, out.Params.Generic.Username)
}

func TestParseSftpProtocolPrefixDefaultsCurrentUser(t *testing.T) {
	out, err := Parse("sftp://172.26.104.1", params.ProtocolFtp)
	require.NoError(t, err)
	assert.Equal(t, params.ProtocolSftp, out.Protocol)
	assert.EqualValues(t, 22, out.Params.Generic.Port)
	assert.NotEmpty(t, out.Params.Generic.Username)
}

func TestParseScpProtocolPrefix(t *testing.T) {
	out, err := Parse("scp://172.26.104.1", params.ProtocolSftp)
	require.NoError(t, err)
	assert.Equal(t, params.ProtocolScp, out.Protocol)
	assert.EqualValues(t, 22, out.Params.Generic.Port)
}

func TestParseFtpsProtocolPrefixWithUser(t *testing.T) {
	out, err := Parse("ftps://anon@172.26.104.1", params.ProtocolSftp)
	require.NoError(t, err)
	assert.Equal(t, params.ProtocolFtps, out.Protocol)
	assert.EqualValues(t, 21, out.Params.Generic.Port)
	assert.Equal(t, "anon", out.Params.Generic.Username)
}

func TestParseGenericWithEntryDirectory(t *testing.T) {
	out, err := Parse("root@172.26.104.1:8022:/var", params.ProtocolSftp)
	require.NoError(t, err)
	assert.Equal(t, "/var", out.EntryDirectory)
}

func TestParseGenericEntryDirectoryWithoutPort(t *testing.T) {
	out, err := Parse("172.26.104.1:home", params.ProtocolSftp)
	require.NoError(t, err)
	assert.EqualValues(t, 22, out.Params.Generic.Port)
	assert.Equal(t, "home", out.EntryDirectory)
}

func TestParseBadProtocolErrors(t *testing.T) {
	_, err := Parse("omar://172.26.104.1", params.ProtocolSftp)
	assert.Error(t, err)
}

func TestParseS3Simple(t *testing.T) {
	out, err := Parse("s3://mybucket@eu-central-1", params.ProtocolSftp)
	require.NoError(t, err)
	assert.Equal(t, params.ProtocolS3, out.Protocol)
	assert.Equal(t, "mybucket", out.Params.S3.Bucket)
	assert.Equal(t, "eu-central-1", out.Params.S3.Region)
	assert.Empty(t, out.Params.S3.Profile)
	assert.Empty(t, out.EntryDirectory)
}

func TestParseS3WithProfile(t *testing.T) {
	out, err := Parse("s3://mybucket@eu-central-1:default", params.ProtocolSftp)
	require.NoError(t, err)
	assert.Equal(t, "default", out.Params.S3.Profile)
}

func TestParseS3WithWrkdirOnly(t *testing.T) {
	out, err := Parse("s3://mybucket@eu-central-1:/foobar", params.ProtocolSftp)
	require.NoError(t, err)
	assert.Equal(t, "/foobar", out.EntryDirectory)
	assert.Empty(t, out.Params.S3.Profile)
}

func TestParseS3WithAllArguments(t *testing.T) {
	out, err := Parse("s3://mybucket@eu-central-1:default:/foobar", params.ProtocolSftp)
	require.NoError(t, err)
	assert.Equal(t, "default", out.Params.S3.Profile)
	assert.Equal(t, "/foobar", out.EntryDirectory)
}

func TestParseS3MissingBucketSeparatorErrors(t *testing.T) {
	_, err := Parse("s3://mybucket:default:/foobar", params.ProtocolSftp)
	assert.Error(t, err)
}

func TestParseSmbAddress(t *testing.T) {
	out, err := Parse("smb://myserver/myshare", params.ProtocolSftp)
	require.NoError(t, err)
	assert.Equal(t, "myserver", out.Params.Smb.Address)
	assert.EqualValues(t, 445, out.Params.Smb.Port)
	assert.Equal(t, "myshare", out.Params.Smb.Share)
	assert.NotEmpty(t, out.Params.Smb.Username)
	assert.Empty(t, out.EntryDirectory)
}

func TestParseSmbAddressWithOpts(t *testing.T) {
	out, err := Parse("smb://omar@myserver:4445/myshare/dir/subdir", params.ProtocolSftp)
	require.NoError(t, err)
	assert.Equal(t, "myserver", out.Params.Smb.Address)
	assert.EqualValues(t, 4445, out.Params.Smb.Port)
	assert.Equal(t, "omar", out.Params.Smb.Username)
	assert.Equal(t, "myshare", out.Params.Smb.Share)
	assert.Equal(t, "/dir/subdir", out.EntryDirectory)
}

func TestParseBadPortErrors(t *testing.T) {
	_, err := Parse("scp://172.26.104.1:650000", params.ProtocolSftp)
	assert.Error(t, err)
}

func TestParseKubePodOnly(t *testing.T) {
	out, err := Parse("kube://mypod", params.ProtocolSftp)
	require.NoError(t, err)
	assert.Equal(t, params.ProtocolKube, out.Protocol)
	assert.Equal(t, "mypod", out.Params.Kube.Pod)
	assert.Empty(t, out.Params.Kube.Container)
	assert.Empty(t, out.Params.Kube.Namespace)
}

func TestParseKubeWithContainerNamespaceAndCluster(t *testing.T) {
	out, err := Parse("kube://mypod/container1@ns@https://cluster.example.com", params.ProtocolSftp)
	require.NoError(t, err)
	assert.Equal(t, "mypod", out.Params.Kube.Pod)
	assert.Equal(t, "container1", out.Params.Kube.Container)
	assert.Equal(t, "ns", out.Params.Kube.Namespace)
	assert.Equal(t, "https://cluster.example.com", out.Params.Kube.ClusterURL)
}

func TestParseGenericToleratesWhitespaceAroundDelimiters(t *testing.T) {
	out, err := Parse("  root @ 172.26.104.1 : 8022  ", params.ProtocolSftp)
	require.NoError(t, err)
	assert.Equal(t, "root", out.Params.Generic.Username)
	assert.Equal(t, "172.26.104.1", out.Params.Generic.Address)
	assert.EqualValues(t, 8022, out.Params.Generic.Port)
}

func TestParseSmbToleratesWhitespaceAroundDelimiters(t *testing.T) {
	out, err := Parse(" smb://omar @ myserver : 4445 /myshare ", params.ProtocolSftp)
	require.NoError(t, err)
	assert.Equal(t, "omar", out.Params.Smb.Username)
	assert.Equal(t, "myserver", out.Params.Smb.Address)
	assert.EqualValues(t, 4445, out.Params.Smb.Port)
	assert.Equal(t, "myshare", out.Params.Smb.Share)
}

func TestParseKubeToleratesWhitespaceAroundDelimiters(t *testing.T) {
	out, err := Parse(" kube://mypod / container1 @ ns ", params.ProtocolSftp)
	require.NoError(t, err)
	assert.Equal(t, "mypod", out.Params.Kube.Pod)
	assert.Equal(t, "container1", out.Params.Kube.Container)
	assert.Equal(t, "ns", out.Params.Kube.Namespace)
}
