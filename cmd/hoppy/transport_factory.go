package main

import (
	"fmt"

	"github.com/hoppy-fm/hoppy/internal/hostservices"
	"github.com/hoppy-fm/hoppy/internal/params"
	"github.com/hoppy-fm/hoppy/internal/transport"
	"github.com/hoppy-fm/hoppy/internal/transport/ftp"
	"github.com/hoppy-fm/hoppy/internal/transport/kube"
	"github.com/hoppy-fm/hoppy/internal/transport/s3"
	"github.com/hoppy-fm/hoppy/internal/transport/scp"
	"github.com/hoppy-fm/hoppy/internal/transport/sftp"
	"github.com/hoppy-fm/hoppy/internal/transport/smb"
	"github.com/hoppy-fm/hoppy/internal/transport/webdav"
)

// newTransport builds the backend Transport matching protocol, wiring the
// key-lookup collaborator into the two protocols that authenticate with a
// private key (spec §3/§4.I).
func newTransport(protocol params.Protocol, keys hostservices.KeyStorage) (transport.Transport, error) {
	switch protocol {
	case params.ProtocolSftp:
		return sftp.New(keys), nil
	case params.ProtocolScp:
		return scp.New(keys), nil
	case params.ProtocolFtp:
		return ftp.New(false), nil
	case params.ProtocolFtps:
		return ftp.New(true), nil
	case params.ProtocolS3:
		return s3.New(), nil
	case params.ProtocolSmb:
		return smb.New(), nil
	case params.ProtocolWebDAV:
		return webdav.New(), nil
	case params.ProtocolKube:
		return kube.New(), nil
	default:
		return nil, fmt.Errorf("unsupported protocol %s", protocol)
	}
}
