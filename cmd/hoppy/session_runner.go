package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/hoppy-fm/hoppy/internal/addr"
	"github.com/hoppy-fm/hoppy/internal/explorer"
	"github.com/hoppy-fm/hoppy/internal/formatter"
	"github.com/hoppy-fm/hoppy/internal/fsentity"
	"github.com/hoppy-fm/hoppy/internal/hostservices"
	"github.com/hoppy-fm/hoppy/internal/params"
	"github.com/hoppy-fm/hoppy/internal/session"
	"github.com/hoppy-fm/hoppy/internal/transferengine"
	"github.com/hoppy-fm/hoppy/internal/transport"
	"github.com/hoppy-fm/hoppy/internal/transport/local"
)

// pane bundles one side's transport, explorer and last-listed files so
// the shell can resolve a name such as "get report.txt" (remote to local)
// or "put report.txt" (local to remote) against that side's listing.
type pane struct {
	label string
	t     transport.Transport
	exp   *explorer.Explorer
}

// shell drives the dual-pane session once both ends are connected. It is
// the headless host a real TUI renderer would sit behind (spec §1): it
// reads line commands from stdin instead of decoding key events, and
// prints listings instead of drawing cells.
type shell struct {
	log    *logrus.Logger
	sess   *session.Session
	engine *transferengine.Engine
	fmt    *formatter.Formatter

	local  pane
	remote pane
	bridge *pane // optional second remote (spec §1: "acting as a bridge")

	focus *pane
}

// runSession resolves the connection string(s), connects local and
// remote transports, and enters the interactive shell.
func runSession(log *logrus.Logger, conns []string, passwords []string, localDir string) error {
	ctx := context.Background()

	localT, err := connectLocal(ctx, localDir)
	if err != nil {
		return fatalf("local directory: %v", err)
	}

	sess := session.New(log)

	sh := &shell{
		log:    log,
		sess:   sess,
		engine: transferengine.New(),
		fmt:    formatter.Default(),
		local:  pane{label: "local", t: localT, exp: explorer.New()},
	}
	sh.focus = &sh.local

	if len(conns) == 0 {
		sess.ConnectOK()
		pwd, _ := localT.Pwd()
		sh.println("no remote given, browsing %s only", pwd)
		return sh.run()
	}

	keys := defaultKeyStorage()

	remoteParams, err := parseConnString(conns[0], firstOr(passwords, 0))
	if err != nil {
		return fmt.Errorf("connection string %q: %w", conns[0], err)
	}
	remote, err := connectParams(ctx, remoteParams, keys)
	if err != nil {
		sess.ConnectFail(err.Error())
		return fatalf("connecting %s: %v", conns[0], err)
	}
	sh.remote = pane{label: "remote", t: remote, exp: explorer.New()}
	if remoteParams.EntryDirectory != "" {
		if _, err := remote.ChangeDir(remoteParams.EntryDirectory); err != nil {
			log.WithError(err).Warn("could not enter requested remote directory")
		}
	}

	if len(conns) == 2 {
		bridgeParams, err := parseConnString(conns[1], firstOr(passwords, 1))
		if err != nil {
			return fmt.Errorf("connection string %q: %w", conns[1], err)
		}
		bridge, err := connectParams(ctx, bridgeParams, keys)
		if err != nil {
			sess.ConnectFail(err.Error())
			return fatalf("connecting %s: %v", conns[1], err)
		}
		if bridgeParams.EntryDirectory != "" {
			if _, err := bridge.ChangeDir(bridgeParams.EntryDirectory); err != nil {
				log.WithError(err).Warn("could not enter requested bridge directory")
			}
		}
		sh.bridge = &pane{label: "bridge", t: bridge, exp: explorer.New()}
	}

	sess.ConnectOK()
	return sh.run()
}

func firstOr(s []string, i int) string {
	if i < len(s) {
		return s[i]
	}
	return ""
}

func connectLocal(ctx context.Context, dir string) (*local.Transport, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		dir = wd
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	t := local.New()
	if _, err := t.Connect(ctx, params.FromGeneric(params.ProtocolSftp, params.Generic{Address: dir})); err != nil {
		return nil, err
	}
	return t, nil
}

func defaultKeyStorage() hostservices.KeyStorage {
	dir, err := os.UserConfigDir()
	if err != nil {
		return hostservices.DirKeyStorage{}
	}
	return hostservices.DirKeyStorage{Dir: filepath.Join(dir, "hoppy", "keys")}
}

// parseConnString resolves a connection string into its FileTransferParams
// (spec §4.I); failures here are argument errors, not runtime ones.
func parseConnString(conn, password string) (params.FileTransferParams, error) {
	fp, err := addr.Parse(conn, params.ProtocolSftp)
	if err != nil {
		return params.FileTransferParams{}, err
	}
	if password != "" {
		fp.SetDefaultSecret(password)
	}
	return fp, nil
}

func connectParams(ctx context.Context, fp params.FileTransferParams, keys hostservices.KeyStorage) (transport.Transport, error) {
	t, err := newTransport(fp.Protocol, keys)
	if err != nil {
		return nil, err
	}
	if _, err := t.Connect(ctx, fp.Params); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *shell) println(format string, args ...interface{}) {
	fmt.Fprintf(os.Stdout, format+"\n", args...)
}

func (s *shell) run() error {
	s.println("connected. type 'help' for commands, 'quit' to exit.")
	reader := bufio.NewScanner(os.Stdin)
	for {
		s.println("%s> ", s.focus.label)
		if !reader.Scan() {
			break
		}
		line := strings.TrimSpace(reader.Text())
		if line == "" {
			continue
		}
		if done, err := s.dispatch(line); err != nil {
			s.println("error: %v", err)
		} else if done {
			break
		}
	}
	if err := reader.Err(); err != nil {
		return fatalf("reading command: %v", err)
	}
	s.sess.RequestDisconnect()
	s.sess.ConfirmDisconnect(true)
	s.local.t.Disconnect()
	if s.remote.t != nil {
		s.remote.t.Disconnect()
	}
	if s.bridge != nil {
		s.bridge.t.Disconnect()
	}
	return nil
}

func (s *shell) dispatch(line string) (quit bool, err error) {
	fields := strings.Fields(line)
	cmd, rest := fields[0], fields[1:]
	switch cmd {
	case "quit", "q", "exit":
		return true, nil
	case "help":
		s.println("ls | cd <dir> | pwd | mkdir <name> | rm <name> | pane <local|remote|bridge> | get <name> | put <name> | bridge <name> | find <pattern> | quit")
		return false, nil
	case "pwd":
		pwd, err := s.focus.t.Pwd()
		if err != nil {
			return false, err
		}
		s.println(pwd)
		return false, nil
	case "ls":
		return false, s.list(s.focus)
	case "cd":
		if len(rest) != 1 {
			return false, fmt.Errorf("usage: cd <dir>")
		}
		newPwd, err := s.focus.t.ChangeDir(rest[0])
		if err != nil {
			return false, err
		}
		s.focus.exp.Pushd(newPwd)
		return false, s.list(s.focus)
	case "mkdir":
		if len(rest) != 1 {
			return false, fmt.Errorf("usage: mkdir <name>")
		}
		return false, s.focus.t.Mkdir(rest[0])
	case "rm":
		if len(rest) != 1 {
			return false, fmt.Errorf("usage: rm <name>")
		}
		entry, err := s.lookup(s.focus, rest[0])
		if err != nil {
			return false, err
		}
		return false, s.engine.Delete(s.focus.t, entry)
	case "pane":
		if len(rest) != 1 {
			return false, fmt.Errorf("usage: pane <local|remote|bridge>")
		}
		return false, s.switchPane(rest[0])
	case "get":
		if len(rest) != 1 {
			return false, fmt.Errorf("usage: get <name>")
		}
		return false, s.transfer(s.remote, s.local, rest[0])
	case "put":
		if len(rest) != 1 {
			return false, fmt.Errorf("usage: put <name>")
		}
		return false, s.transfer(s.local, s.remote, rest[0])
	case "bridge":
		if s.bridge == nil {
			return false, fmt.Errorf("no second connection string was given")
		}
		if len(rest) != 1 {
			return false, fmt.Errorf("usage: bridge <name>")
		}
		return false, s.transfer(s.remote, *s.bridge, rest[0])
	case "find":
		if len(rest) != 1 {
			return false, fmt.Errorf("usage: find <pattern>")
		}
		return false, s.find(rest[0])
	default:
		return false, fmt.Errorf("unknown command %q, try 'help'", cmd)
	}
}

func (s *shell) switchPane(name string) error {
	switch name {
	case "local":
		s.focus = &s.local
	case "remote":
		if s.remote.t == nil {
			return fmt.Errorf("no remote connection")
		}
		s.focus = &s.remote
	case "bridge":
		if s.bridge == nil {
			return fmt.Errorf("no bridge connection")
		}
		s.focus = s.bridge
	default:
		return fmt.Errorf("unknown pane %q", name)
	}
	return nil
}

func (s *shell) list(p *pane) error {
	pwd, err := p.t.Pwd()
	if err != nil {
		return err
	}
	entries, err := p.t.ListDir(pwd)
	if err != nil {
		return err
	}
	p.exp.SetFiles(entries)
	for _, e := range p.exp.IterFiles() {
		s.println(s.fmt.Format(e))
	}
	return nil
}

// find runs a recursive pattern search on the focused pane's transport and
// materializes the results into that pane's explorer (spec §8 S5), so the
// usual name-based lookup/get/put commands can act on a hit by name.
func (s *shell) find(pattern string) error {
	entries, err := s.engine.Find(s.focus.t, pattern)
	if err != nil {
		return err
	}
	s.focus.exp.SetFiles(entries)
	for _, e := range s.focus.exp.IterFiles() {
		s.println(s.fmt.Format(e))
	}
	return nil
}

func (s *shell) lookup(p *pane, name string) (fsentity.Entity, error) {
	for _, e := range p.exp.IterFilesAll() {
		if e.Name == name {
			return e, nil
		}
	}
	return p.t.Stat(name)
}

func (s *shell) transfer(from, to pane, name string) error {
	entry, err := s.lookup(&from, name)
	if err != nil {
		return err
	}
	destDir, err := to.t.Pwd()
	if err != nil {
		return err
	}
	state := transferengine.NewTransferState(entry.Size)
	s.sess.BeginTransfer(state)
	defer s.sess.CompleteTransfer()

	err = s.engine.Send(from.t, to.t, entry, destDir, "", transferengine.Policy{Mode: transferengine.OverwriteAlways}, state, func(ev transferengine.ProgressEvent) {
		s.log.WithFields(logrus.Fields{"path": ev.Path, "written": ev.BytesWritten, "total": ev.BytesTotal}).Debug("progress")
	})
	if err != nil {
		return err
	}
	return s.list(&to)
}
