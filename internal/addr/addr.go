// Package addr parses the protocol-qualified connection string accepted by
// the CLI (spec §4.I) into a params.FileTransferParams, one regex per
// protocol family, ported from the distillation's parser.rs grammar.
package addr

import (
	"fmt"
	"os/user"
	"regexp"
	"strconv"
	"strings"

	"github.com/hoppy-fm/hoppy/internal/params"
)

var (
	protocolRegex = regexp.MustCompile(`^(?:([a-z0-9]+)://)?(.+)$`)
	genericRegex  = regexp.MustCompile(`^(?:([^@]+)@)?([^:]+)(?::([0-9]+))?(?::(.+))?$`)
	s3Regex       = regexp.MustCompile(`^([^@]+)@([^:]+)(?::([a-zA-Z0-9][^:]*))?(?::(.+))?$`)
	smbRegex      = regexp.MustCompile(`^(?:([^@]+)@)?([^/:]+)(?::([0-9]{1,5}))?/([^/]+)(?:(/.+))?$`)
	kubeRegex     = regexp.MustCompile(`^([^/@]+)(?:/([^@]+))?(?:@([^@]+))?(?:@(.+))?$`)

	// spaceBeforeDelim and spaceAfterDelim collapse whitespace immediately
	// adjacent to a structural delimiter (@, : or /) so the grammar above,
	// which expects delimiters to abut their tokens, stays a total
	// function regardless of whitespace the user added around them. Only
	// delimiter-adjacent whitespace is touched; whitespace elsewhere (e.g.
	// inside a directory name) is left alone.
	spaceBeforeDelim = regexp.MustCompile(`\s+([@:/])`)
	spaceAfterDelim  = regexp.MustCompile(`([@:/])\s+`)
)

func normalizeDelimiterWhitespace(s string) string {
	s = spaceBeforeDelim.ReplaceAllString(s, "$1")
	s = spaceAfterDelim.ReplaceAllString(s, "$1")
	return s
}

// defaultPorts is consulted when the connection string has no explicit
// port; sftp/scp/ftp match their conventional service port, everything
// else falls back to 22 (the original's "doesn't matter" default).
var defaultPorts = map[params.Protocol]uint16{
	params.ProtocolSftp: 22,
	params.ProtocolScp:  22,
	params.ProtocolFtp:  21,
	params.ProtocolFtps: 21,
}

// Parse parses s into a FileTransferParams, using defaultProtocol when s
// carries no "proto://" prefix.
func Parse(s string, defaultProtocol params.Protocol) (params.FileTransferParams, error) {
	protocol, rest, err := splitProtocol(normalizeDelimiterWhitespace(strings.TrimSpace(s)), defaultProtocol)
	if err != nil {
		return params.FileTransferParams{}, err
	}
	switch protocol {
	case params.ProtocolS3:
		return parseS3(rest)
	case params.ProtocolSmb:
		return parseSmb(rest)
	case params.ProtocolKube:
		return parseKube(rest)
	default:
		return parseGeneric(rest, protocol)
	}
}

func splitProtocol(s string, defaultProtocol params.Protocol) (params.Protocol, string, error) {
	m := protocolRegex.FindStringSubmatch(s)
	if m == nil {
		return 0, "", fmt.Errorf("invalid address %q", s)
	}
	tag, rest := strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
	if tag == "" {
		return defaultProtocol, rest, nil
	}
	protocol, ok := parseProtocolTag(tag)
	if !ok {
		return 0, "", fmt.Errorf("unknown protocol %q", tag)
	}
	return protocol, rest, nil
}

func parseProtocolTag(tag string) (params.Protocol, bool) {
	switch tag {
	case "sftp":
		return params.ProtocolSftp, true
	case "scp":
		return params.ProtocolScp, true
	case "ftp":
		return params.ProtocolFtp, true
	case "ftps":
		return params.ProtocolFtps, true
	case "s3":
		return params.ProtocolS3, true
	case "smb":
		return params.ProtocolSmb, true
	case "webdav", "dav":
		return params.ProtocolWebDAV, true
	case "kube":
		return params.ProtocolKube, true
	default:
		return 0, false
	}
}

func parseGeneric(s string, protocol params.Protocol) (params.FileTransferParams, error) {
	m := genericRegex.FindStringSubmatch(s)
	if m == nil {
		return params.FileTransferParams{}, fmt.Errorf("bad remote host syntax %q", s)
	}
	rawUser := strings.TrimSpace(m[1])
	address := strings.TrimSpace(m[2])
	rawPort := strings.TrimSpace(m[3])
	entryDir := strings.TrimSpace(m[4])
	if address == "" {
		return params.FileTransferParams{}, fmt.Errorf("missing address in %q", s)
	}

	var username string
	if rawUser != "" {
		username = rawUser
	} else if protocol == params.ProtocolScp || protocol == params.ProtocolSftp {
		username = currentUsername()
	}

	port, err := resolvePort(rawPort, protocol)
	if err != nil {
		return params.FileTransferParams{}, err
	}

	p := params.FromGeneric(protocol, params.Generic{
		Address:  address,
		Port:     port,
		Username: username,
	})
	out := params.New(protocol, p)
	if entryDir != "" {
		out = out.WithEntryDirectory(entryDir)
	}
	return out, nil
}

func parseS3(s string) (params.FileTransferParams, error) {
	m := s3Regex.FindStringSubmatch(s)
	if m == nil {
		return params.FileTransferParams{}, fmt.Errorf("bad remote host syntax %q", s)
	}
	bucket := strings.TrimSpace(m[1])
	region := strings.TrimSpace(m[2])
	profile := strings.TrimSpace(m[3])
	entryDir := strings.TrimSpace(m[4])

	p := params.FromS3(params.S3{
		Bucket:  bucket,
		Region:  region,
		Profile: profile,
	})
	out := params.New(params.ProtocolS3, p)
	if entryDir != "" {
		out = out.WithEntryDirectory(entryDir)
	}
	return out, nil
}

func parseSmb(s string) (params.FileTransferParams, error) {
	m := smbRegex.FindStringSubmatch(s)
	if m == nil {
		return params.FileTransferParams{}, fmt.Errorf("bad remote host syntax %q", s)
	}
	rawUser := strings.TrimSpace(m[1])
	address := strings.TrimSpace(m[2])
	rawPort := strings.TrimSpace(m[3])
	share := strings.TrimSpace(m[4])
	entryDir := strings.TrimSpace(m[5])
	if address == "" {
		return params.FileTransferParams{}, fmt.Errorf("missing address in %q", s)
	}
	if share == "" {
		return params.FileTransferParams{}, fmt.Errorf("missing share in %q", s)
	}

	username := rawUser
	if username == "" {
		username = currentUsername()
	}
	port := uint16(445)
	if rawPort != "" {
		n, err := strconv.ParseUint(rawPort, 10, 16)
		if err != nil {
			return params.FileTransferParams{}, fmt.Errorf("bad port %q: %w", rawPort, err)
		}
		port = uint16(n)
	}

	p := params.FromSmb(params.Smb{
		Address:  address,
		Port:     port,
		Share:    share,
		Username: username,
	})
	out := params.New(params.ProtocolSmb, p)
	if entryDir != "" {
		out = out.WithEntryDirectory(entryDir)
	}
	return out, nil
}

// parseKube parses "pod[/container][@namespace][@cluster_url]".
func parseKube(s string) (params.FileTransferParams, error) {
	m := kubeRegex.FindStringSubmatch(s)
	if m == nil {
		return params.FileTransferParams{}, fmt.Errorf("bad remote host syntax %q", s)
	}
	pod := strings.TrimSpace(m[1])
	container := strings.TrimSpace(m[2])
	namespace := strings.TrimSpace(m[3])
	clusterURL := strings.TrimSpace(m[4])
	if pod == "" {
		return params.FileTransferParams{}, fmt.Errorf("missing pod in %q", s)
	}

	p := params.FromKube(params.Kube{
		Pod:        pod,
		Container:  container,
		Namespace:  namespace,
		ClusterURL: clusterURL,
	})
	return params.New(params.ProtocolKube, p), nil
}

func resolvePort(rawPort string, protocol params.Protocol) (uint16, error) {
	if rawPort == "" {
		if port, ok := defaultPorts[protocol]; ok {
			return port, nil
		}
		return 22, nil
	}
	n, err := strconv.ParseUint(rawPort, 10, 16)
	if err != nil || n == 0 || n > 65535 {
		return 0, fmt.Errorf("bad port %q", rawPort)
	}
	return uint16(n), nil
}

func currentUsername() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return sanitizeWindowsDomain(u.Username)
	}
	return ""
}

// sanitizeWindowsDomain strips a "DOMAIN\\" prefix os/user can return on
// Windows, so the username matches what a unix-style connection string
// expects.
func sanitizeWindowsDomain(username string) string {
	if i := strings.LastIndex(username, `\`); i >= 0 {
		return username[i+1:]
	}
	return username
}
