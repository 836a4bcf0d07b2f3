package s3

import (
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go/aws/awserr"
	s3sdk "github.com/aws/aws-sdk-go/service/s3"
	"github.com/stretchr/testify/assert"

	"github.com/hoppy-fm/hoppy/internal/params"
)

func TestResolveRelativeAndAbsolute(t *testing.T) {
	tr := &Transport{cwd: "/prefix"}
	assert.Equal(t, "/prefix/dir", tr.resolve("dir"))
	assert.Equal(t, "/other", tr.resolve("/other"))
}

func TestKeyStripsLeadingSlash(t *testing.T) {
	assert.Equal(t, "a/b/c", key("/a/b/c"))
	assert.Equal(t, "a/b/c", key("a/b/c"))
}

func TestSessionTokenOfPrefersSessionOverSecurity(t *testing.T) {
	session := "session-tok"
	security := "security-tok"
	assert.Equal(t, session, sessionTokenOf(&params.S3{SessionToken: &session, SecurityToken: &security}))
	assert.Equal(t, security, sessionTokenOf(&params.S3{SecurityToken: &security}))
	assert.Equal(t, "", sessionTokenOf(&params.S3{}))
}

func TestIsNotFoundRecognizesAWSErrorCodes(t *testing.T) {
	assert.True(t, isNotFound(awserr.New(s3sdk.ErrCodeNoSuchKey, "missing", nil)))
	assert.True(t, isNotFound(awserr.New("NotFound", "missing", nil)))
	assert.False(t, isNotFound(awserr.New("AccessDenied", "nope", nil)))
	assert.False(t, isNotFound(errors.New("plain error")))
}
