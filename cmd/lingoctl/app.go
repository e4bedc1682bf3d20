package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	lc "github.com/panyam/lingoclient"
	"github.com/panyam/lingoclient/api"
	"github.com/panyam/lingoclient/config"
	"github.com/panyam/lingoclient/stores/fs"
)

// readPassword is swapped out in tests.
var readPassword = term.ReadPassword

var errUsage = errors.New("usage")

const usage = `Usage: lingoctl [flags] <command> [args]

Commands:
  login                      log in with a platform code
  logout                     clear stored credentials
  whoami                     show the stored user
  call METHOD PATH [JSON]    call any API path
  endpoint NAME [JSON]       call a named endpoint
  endpoints                  list named endpoints
  keys                       list stored keys

Flags:
`

type app struct {
	cfg      *config.Config
	backend  *fs.Backend
	store    *lc.Store
	client   *lc.Client
	registry *lc.Registry
	logger   *slog.Logger

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("lingoctl", flag.ContinueOnError)
	flags.SetOutput(stderr)
	verbose := flags.Bool("v", false, "verbose logging")
	flags.Usage = func() {
		fmt.Fprint(stderr, usage)
		flags.PrintDefaults()
	}

	cfg, rest, err := config.Load(flags, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "lingoctl: %v\n", err)
		return 2
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	a, err := newApp(cfg, logger, stdin, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "lingoctl: %v\n", err)
		return 1
	}

	if err := a.dispatch(ctx, rest); err != nil {
		if errors.Is(err, errUsage) {
			flags.Usage()
			return 2
		}
		fmt.Fprintf(stderr, "lingoctl: %v\n", err)
		return 1
	}
	return 0
}

func newApp(cfg *config.Config, logger *slog.Logger, stdin io.Reader, stdout, stderr io.Writer) (*app, error) {
	backend, err := fs.NewBackend(cfg.StorePath, fs.WithSecret(cfg.StoreKey))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	a := &app{
		cfg:      cfg,
		backend:  backend,
		store:    lc.NewStore(backend, lc.WithStoreLogger(logger)),
		registry: api.Registry(),
		logger:   logger,
		stdin:    stdin,
		stdout:   stdout,
		stderr:   stderr,
	}

	resolver := cfg.Resolver()
	resolver.Logger = logger

	// A configured code replaces the prompt.
	opts := []lc.ClientOption{
		lc.WithLogger(logger),
		lc.WithCodeSource(lc.CodeSourceFunc(a.promptCode)),
	}
	opts = append(opts, cfg.ClientOptions()...)
	a.client = lc.NewClient(resolver, a.store, opts...)
	return a, nil
}

func (a *app) dispatch(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, args := args[0], args[1:]
	switch cmd {
	case "login":
		return a.login(ctx)
	case "logout":
		return a.logout(ctx)
	case "whoami":
		return a.whoami(ctx)
	case "call":
		return a.call(ctx, args)
	case "endpoint":
		return a.endpoint(ctx, args)
	case "endpoints":
		return a.endpoints()
	case "keys":
		return a.keys(ctx)
	case "help":
		return errUsage
	}
	return fmt.Errorf("unknown command %q", cmd)
}

// promptCode reads a platform login code, without echo on a terminal.
func (a *app) promptCode(ctx context.Context) (string, error) {
	fmt.Fprint(a.stderr, "Login code: ")

	if f, ok := a.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		code, err := readPassword(int(f.Fd()))
		fmt.Fprintln(a.stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read login code: %w", err)
		}
		return checkCode(string(code))
	}

	line, err := bufio.NewReader(a.stdin).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
		return "", fmt.Errorf("failed to read login code: %w", err)
	}
	return checkCode(line)
}

func checkCode(code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", errors.New("no login code entered")
	}
	return code, nil
}

func (a *app) login(ctx context.Context) error {
	if _, err := a.client.Tokens().Login(ctx); err != nil {
		return err
	}
	cred, err := a.client.Tokens().Credential(ctx)
	if err != nil {
		return err
	}
	name := "unknown user"
	if cred != nil && cred.User != nil {
		name = cred.User.Nickname
		if name == "" {
			name = cred.User.ID
		}
	}
	fmt.Fprintf(a.stdout, "Logged in as %s\n", name)
	return nil
}

func (a *app) logout(ctx context.Context) error {
	if err := a.client.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, "Logged out")
	return nil
}

func (a *app) whoami(ctx context.Context) error {
	cred, err := a.client.Tokens().Credential(ctx)
	if err != nil {
		return err
	}
	if !cred.HasAccessToken() {
		return lc.ErrLoginRequired
	}

	w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	if cred.User != nil {
		fmt.Fprintf(w, "User ID:\t%s\n", cred.User.ID)
		if cred.User.Nickname != "" {
			fmt.Fprintf(w, "Nickname:\t%s\n", cred.User.Nickname)
		}
	}
	if openID, err := lc.KeyOpenID.Get(ctx, a.store); err == nil && openID != "" {
		fmt.Fprintf(w, "OpenID:\t%s\n", openID)
	}
	if !cred.ExpiresAt.IsZero() {
		state := "valid"
		if !time.Now().Before(cred.ExpiresAt) {
			state = "expired"
		}
		fmt.Fprintf(w, "Expires:\t%s (%s)\n", cred.ExpiresAt.Local().Format(time.RFC3339), state)
	}
	fmt.Fprintf(w, "Environment:\t%s\n", a.cfg.Env)
	return w.Flush()
}

func (a *app) call(ctx context.Context, args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return errUsage
	}
	params, err := parseParams(args[2:])
	if err != nil {
		return err
	}
	resp, err := a.client.Do(ctx, lc.Call{
		Method: strings.ToUpper(args[0]),
		Path:   args[1],
		Params: params,
	}, nil)
	if err != nil {
		return err
	}
	return a.print(resp)
}

func (a *app) endpoint(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errUsage
	}
	params, err := parseParams(args[1:])
	if err != nil {
		return err
	}
	resp, err := a.registry.Call(ctx, a.client, args[0], params, nil)
	if err != nil {
		return err
	}
	return a.print(resp)
}

func (a *app) endpoints() error {
	w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	for _, name := range a.registry.Names() {
		d, _ := a.registry.Lookup(name)
		access := ""
		if d.Public {
			access = "public"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, d.Method, d.Path, access)
	}
	return w.Flush()
}

func (a *app) keys(ctx context.Context) error {
	keys, err := a.store.Keys(ctx)
	if err != nil {
		return err
	}
	for _, k := range keys {
		fmt.Fprintln(a.stdout, k)
	}
	return nil
}

func parseParams(args []string) (map[string]any, error) {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return nil, nil
	}
	var params map[string]any
	dec := json.NewDecoder(strings.NewReader(args[0]))
	dec.UseNumber()
	if err := dec.Decode(&params); err != nil {
		return nil, fmt.Errorf("params must be a JSON object: %w", err)
	}
	return params, nil
}

func (a *app) print(resp *lc.Response) error {
	if len(resp.Data) == 0 {
		if resp.Message != "" {
			fmt.Fprintln(a.stdout, resp.Message)
		}
		return nil
	}
	var out bytes.Buffer
	if err := json.Indent(&out, resp.Data, "", "  "); err != nil {
		return fmt.Errorf("failed to format response: %w", err)
	}
	out.WriteByte('\n')
	_, err := out.WriteTo(a.stdout)
	return err
}
