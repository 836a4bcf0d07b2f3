// Command hoppy is the CLI entrypoint (spec §6): flag and positional
// parsing, connection setup through internal/addr and a per-protocol
// transport factory, and a line-oriented interactive shell driving
// internal/session, internal/explorer and internal/transferengine. TUI
// rendering and input decoding are out of scope for the core (spec §1);
// this shell is the headless host a real renderer would sit behind.
package main

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Exit codes per spec §6.
const (
	exitOK      = 0
	exitBadArgs = 1
	exitFatal   = 2
)

// fatalRuntimeError marks an error that should exit 2 (unrecoverable
// runtime error, fatal popup acknowledged) rather than 1 (bad arguments).
type fatalRuntimeError struct{ err error }

func (e *fatalRuntimeError) Error() string { return e.err.Error() }
func (e *fatalRuntimeError) Unwrap() error { return e.err }

func fatalf(format string, args ...interface{}) error {
	return &fatalRuntimeError{err: fmt.Errorf(format, args...)}
}

func isFatalRuntime(err error) bool {
	var f *fatalRuntimeError
	return errors.As(err, &f)
}

var (
	flagPasswords  []string
	flagBookmarks  []string
	flagConfigure  bool
	flagQuiet      bool
	flagTheme      string
	flagVerbose    bool
	flagSkipUpdate bool
)

var rootCmd = &cobra.Command{
	Use:   "hoppy [flags] [connection1] [connection2] [localdir]",
	Short: "dual-pane terminal file transfer client",
	Long: "hoppy browses and transfers files between a local directory and a\n" +
		"remote endpoint (SFTP, SCP, FTP/FTPS, S3, SMB, WebDAV, Kubernetes\n" +
		"exec/cp), or bridges two remotes, through one connection string\n" +
		"grammar (spec §4.I/§6).",
	Args:          cobra.MaximumNArgs(3),
	SilenceUsage:  true,
	SilenceErrors: false,
	RunE:          runRoot,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringArrayVarP(&flagPasswords, "password", "P", nil, "password for a connection string, positionally paired, may repeat")
	flags.StringArrayVarP(&flagBookmarks, "bookmark", "b", nil, "connect to a saved bookmark by name, may repeat")
	flags.BoolVarP(&flagConfigure, "config", "c", false, "enter configuration mode")
	flags.BoolVarP(&flagQuiet, "quiet", "q", false, "suppress non-error logs")
	flags.StringVarP(&flagTheme, "theme", "t", "", "theme file passed through to the renderer")
	flags.BoolVarP(&flagVerbose, "verbose", "v", false, "verbose logs")
	flags.BoolVarP(&flagSkipUpdate, "skip-update-check", "u", false, "skip the startup update check")
}

// Execute runs the command tree and maps the result onto the exit codes
// spec §6 defines: 0 clean, 1 bad arguments, 2 unrecoverable runtime
// error. Errors marked fatal (such as a failed connection) exit 2; any
// other error is treated as a bad-arguments exit, matching cobra's own
// argument-count/usage errors.
func Execute() int {
	err := rootCmd.Execute()
	switch {
	case err == nil:
		return exitOK
	case isFatalRuntime(err):
		return exitFatal
	default:
		return exitBadArgs
	}
}

func configureLogging() *logrus.Logger {
	log := logrus.StandardLogger()
	switch {
	case flagQuiet:
		log.SetLevel(logrus.ErrorLevel)
	case flagVerbose:
		log.SetLevel(logrus.DebugLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}
	return log
}

func runRoot(cmd *cobra.Command, args []string) error {
	log := configureLogging()

	if flagConfigure {
		fmt.Fprintln(cmd.OutOrStdout(), "configuration mode is handled by the config collaborator, not the core; nothing to do here")
		return nil
	}
	if len(flagBookmarks) > 0 {
		return fmt.Errorf("bookmark lookup requires a bookmark store, none is wired into this build")
	}

	conns, localDir, err := splitPositionals(args)
	if err != nil {
		return err
	}
	if flagSkipUpdate {
		log.Debug("skipping update check")
	}
	if flagTheme != "" {
		log.WithField("theme", flagTheme).Debug("theme forwarded to renderer")
	}

	return runSession(log, conns, flagPasswords, localDir)
}

// splitPositionals applies spec §6's positional grammar: up to two
// connection strings followed by an optional local directory.
func splitPositionals(args []string) (conns []string, localDir string, err error) {
	switch len(args) {
	case 0:
		return nil, "", nil
	case 1:
		return args[:1], "", nil
	case 2:
		return args[:2], "", nil
	case 3:
		return args[:2], args[2], nil
	default:
		return nil, "", fmt.Errorf("too many positional arguments")
	}
}
