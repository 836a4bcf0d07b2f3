package webdav

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoppy-fm/hoppy/internal/fsentity"
)

func TestResolveRelativeAndAbsolute(t *testing.T) {
	tr := &Transport{cwd: "/files"}
	assert.Equal(t, "/files/report", tr.resolve("report"))
	assert.Equal(t, "/other", tr.resolve("/other"))
}

func TestUrlForJoinsBasePath(t *testing.T) {
	base, err := url.Parse("https://dav.example.com/remote.php/webdav")
	require.NoError(t, err)
	tr := &Transport{baseURL: base}
	assert.Equal(t, "https://dav.example.com/remote.php/webdav/docs/report.txt", tr.urlFor("/docs/report.txt"))
}

func TestToEntityMapsCollectionsAndSize(t *testing.T) {
	var dirResp davResponse
	dirResp.PropStat.Prop.ResourceType.Collection = &struct{}{}
	dirEntity := toEntity("/docs", dirResp)
	assert.Equal(t, fsentity.KindDirectory, dirEntity.Kind)

	var fileResp davResponse
	fileResp.PropStat.Prop.ContentLength = "128"
	fileEntity := toEntity("/docs/report.txt", fileResp)
	assert.Equal(t, fsentity.KindFile, fileEntity.Kind)
	assert.EqualValues(t, 128, fileEntity.Size)
	assert.Equal(t, ".txt", fileEntity.Ext)
}
