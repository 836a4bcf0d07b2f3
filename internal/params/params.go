// Package params holds the per-protocol connection parameters a Transport
// is constructed from (spec §3 ProtocolParams / FileTransferParams).
package params

// Protocol tags the transport kind a FileTransferParams targets.
type Protocol int

const (
	ProtocolSftp Protocol = iota
	ProtocolScp
	ProtocolFtp
	ProtocolFtps
	ProtocolS3
	ProtocolSmb
	ProtocolWebDAV
	ProtocolKube
)

func (p Protocol) String() string {
	switch p {
	case ProtocolSftp:
		return "sftp"
	case ProtocolScp:
		return "scp"
	case ProtocolFtp:
		return "ftp"
	case ProtocolFtps:
		return "ftps"
	case ProtocolS3:
		return "s3"
	case ProtocolSmb:
		return "smb"
	case ProtocolWebDAV:
		return "webdav"
	case ProtocolKube:
		return "kube"
	default:
		return "unknown"
	}
}

// Generic holds connection data shared by SFTP/SCP/FTP/FTPS.
type Generic struct {
	Address  string
	Port     uint16
	Username string
	Password *string
}

func (g *Generic) passwordMissing() bool    { return g.Password == nil }
func (g *Generic) setDefaultSecret(s string) { g.Password = &s }

// S3 holds AWS S3 (and S3-compatible) connection data.
type S3 struct {
	Bucket          string
	Region          string
	Endpoint        string
	Profile         string
	AccessKey       string
	SecretAccessKey *string
	SecurityToken   *string
	SessionToken    *string
	NewPathStyle    bool
}

func (s *S3) passwordMissing() bool {
	return s.SecretAccessKey == nil && s.SecurityToken == nil
}
func (s *S3) setDefaultSecret(secret string) { s.SecretAccessKey = &secret }

// Smb holds SMB/CIFS connection data. Port defaults to 445.
type Smb struct {
	Address   string
	Port      uint16
	Share     string
	Username  string
	Password  *string
	Workgroup string
}

func (s *Smb) passwordMissing() bool    { return s.Password == nil }
func (s *Smb) setDefaultSecret(secret string) { s.Password = &secret }

// WebDAV holds WebDAV connection data: always uri + username + password.
type WebDAV struct {
	URI      string
	Username string
	Password string
}

func (w *WebDAV) passwordMissing() bool       { return w.Password == "" }
func (w *WebDAV) setDefaultSecret(secret string) { w.Password = secret }

// Kube holds Kubernetes exec/cp connection data.
type Kube struct {
	Pod        string
	Container  string
	Namespace  string
	ClusterURL string
	Username   string
	ClientCert string
	ClientKey  string
}

func (k *Kube) passwordMissing() bool        { return false }
func (k *Kube) setDefaultSecret(secret string) {}

// secretHolder is satisfied by every *ProtocolParams variant.
type secretHolder interface {
	passwordMissing() bool
	setDefaultSecret(string)
}

// ProtocolParams is a tagged variant: exactly one of the pointer fields is
// non-nil, matching the Kind it was constructed with.
type ProtocolParams struct {
	Kind    Protocol
	Generic *Generic
	S3      *S3
	Smb     *Smb
	WebDAV  *WebDAV
	Kube    *Kube
}

func FromGeneric(kind Protocol, g Generic) ProtocolParams {
	return ProtocolParams{Kind: kind, Generic: &g}
}

func FromS3(s S3) ProtocolParams {
	return ProtocolParams{Kind: ProtocolS3, S3: &s}
}

func FromSmb(s Smb) ProtocolParams {
	return ProtocolParams{Kind: ProtocolSmb, Smb: &s}
}

func FromWebDAV(w WebDAV) ProtocolParams {
	return ProtocolParams{Kind: ProtocolWebDAV, WebDAV: &w}
}

func FromKube(k Kube) ProtocolParams {
	return ProtocolParams{Kind: ProtocolKube, Kube: &k}
}

// holder returns the active variant as a secretHolder, or nil if the
// ProtocolParams is malformed (no variant set).
func (p *ProtocolParams) holder() secretHolder {
	switch {
	case p.Generic != nil:
		return p.Generic
	case p.S3 != nil:
		return p.S3
	case p.Smb != nil:
		return p.Smb
	case p.WebDAV != nil:
		return p.WebDAV
	case p.Kube != nil:
		return p.Kube
	default:
		return nil
	}
}

// PasswordMissing returns true ONLY if the supposed secret is missing.
func (p *ProtocolParams) PasswordMissing() bool {
	if h := p.holder(); h != nil {
		return h.passwordMissing()
	}
	return true
}

// SetDefaultSecret supplies a deferred credential to the active variant's
// default secret field.
func (p *ProtocolParams) SetDefaultSecret(secret string) {
	if h := p.holder(); h != nil {
		h.setDefaultSecret(secret)
	}
}

// FileTransferParams bundles a protocol-qualified ProtocolParams with the
// optional entry directory (remote) and local working directory (spec §3).
type FileTransferParams struct {
	Protocol        Protocol
	Params          ProtocolParams
	EntryDirectory  string
	LocalDirectory  string
}

func New(protocol Protocol, p ProtocolParams) FileTransferParams {
	return FileTransferParams{Protocol: protocol, Params: p}
}

func (f FileTransferParams) WithEntryDirectory(dir string) FileTransferParams {
	f.EntryDirectory = dir
	return f
}

func (f FileTransferParams) WithLocalDirectory(dir string) FileTransferParams {
	f.LocalDirectory = dir
	return f
}

func (f *FileTransferParams) PasswordMissing() bool { return f.Params.PasswordMissing() }

func (f *FileTransferParams) SetDefaultSecret(secret string) { f.Params.SetDefaultSecret(secret) }
