package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"docchat/internal/api"
	"docchat/internal/app"
)

const (
	modeClient   = "client"
	modeLocal    = "local"
	modeServer   = "server"
	modeLogin    = "login"
	modeRegister = "register"
	modeLogout   = "logout"
	modeRooms    = "rooms"
	modeUpload   = "upload"
	modeAsk      = "ask"
	modeVersion  = "version"
)

type options struct {
	config   string
	apiURL   string
	dataDir  string
	profile  string
	addr     string
	logLevel string
	email    string
	password string
	name     string
	wait     bool
}

func main() {
	mode, args := parseMode(os.Args[1:])
	if mode == modeVersion {
		fmt.Println("docchat", app.Version)
		return
	}

	var opts options
	flagSet := flag.NewFlagSet("docchat "+mode, flag.ExitOnError)
	flagSet.StringVar(&opts.config, "config", "", "config file (yaml or toml)")
	flagSet.StringVar(&opts.apiURL, "api-url", "", "backend API root, e.g. http://localhost:8000/api/v1")
	flagSet.StringVar(&opts.dataDir, "data-dir", "", "directory for the token store and logs")
	flagSet.StringVar(&opts.profile, "profile", "", "token profile name")
	flagSet.StringVar(&opts.addr, "addr", "", "listen address (server mode)")
	flagSet.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")
	flagSet.StringVar(&opts.email, "email", "", "account email (login, register)")
	flagSet.StringVar(&opts.password, "password", "", "account password; prompted when empty")
	flagSet.StringVar(&opts.name, "name", "", "display name (register)")
	flagSet.BoolVar(&opts.wait, "wait", false, "wait for the uploaded document to finish processing")
	flagSet.Parse(args)

	cfg, err := app.Load(opts.config)
	if err != nil {
		fatal(err)
	}
	applyFlags(flagSet, cfg, opts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rest := flagSet.Args()
	switch mode {
	case modeServer:
		err = runServerMode(ctx, cfg)
	case modeLocal:
		err = runLocalMode(ctx, cfg)
	case modeClient:
		err = app.RunClient(ctx, cfg)
	default:
		err = runHeadless(ctx, cfg, mode, opts, rest)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "docchat: %s\n", describe(err))
	os.Exit(1)
}

// describe prefers the user-facing message for API and guard errors.
func describe(err error) string {
	if errors.Is(err, app.ErrNotLoggedIn) {
		return err.Error()
	}
	msg := api.ErrorMessage(err)
	if msg == api.MsgUnexpectedErr {
		return err.Error()
	}
	return msg
}

// applyFlags copies only the flags given on the command line, so file and
// env values survive unset flags.
func applyFlags(fs *flag.FlagSet, cfg *app.Config, opts options) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "api-url":
			cfg.API.URL = opts.apiURL
		case "data-dir":
			cfg.Data.Dir = opts.dataDir
			cfg.Data.DBPath = ""
			cfg.Log.File = ""
			cfg.Server.DBPath = ""
		case "profile":
			cfg.Data.Profile = opts.profile
		case "addr":
			cfg.Server.Addr = opts.addr
		case "log-level":
			cfg.Log.Level = opts.logLevel
		}
	})
	cfg.FillPaths()
}

func runServerMode(ctx context.Context, cfg *app.Config) error {
	logger := app.NewStderrLogger(cfg, nil)
	handle, err := app.RunServer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	logger.Info("docchat dev server listening", "addr", handle.Addr(), "api", handle.BaseURL(), "db", cfg.Server.DBPath)
	return handle.Wait()
}

func runLocalMode(ctx context.Context, cfg *app.Config) error {
	logger, closeLog, err := app.NewFileLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	cfg.Server.Addr = "127.0.0.1:0"
	handle, err := app.RunServer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stopServer(handle)

	if err := app.WaitForServer(handle.Addr(), 5*time.Second); err != nil {
		return err
	}
	cfg.API.URL = handle.BaseURL()
	logger.Info("local server ready", "api", cfg.API.URL)

	if err := app.RunClient(ctx, cfg); err != nil {
		return err
	}
	stopServer(handle)
	return handle.Wait()
}

func runHeadless(ctx context.Context, cfg *app.Config, mode string, opts options, args []string) error {
	logger := app.NewStderrLogger(cfg, nil)
	client, err := app.OpenClient(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	out := os.Stdout
	switch mode {
	case modeLogin, modeRegister:
		email := opts.email
		if email == "" {
			if email, err = prompt("Email: "); err != nil {
				return err
			}
		}
		password := opts.password
		if password == "" {
			if password, err = promptPassword("Password: "); err != nil {
				return err
			}
		}
		if mode == modeRegister {
			name := opts.name
			if name == "" {
				if name, err = prompt("Name: "); err != nil {
					return err
				}
			}
			err = client.Register(ctx, name, email, password)
		} else {
			err = client.Login(ctx, email, password)
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "Signed in.")
		return nil
	case modeLogout:
		if err := client.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "Signed out.")
		return nil
	case modeRooms:
		return client.ListRooms(ctx, out)
	case modeUpload:
		if len(args) != 2 {
			return errors.New("usage: docchat upload [--wait] <room-id> <file>")
		}
		return client.Upload(ctx, api.ID(args[0]), args[1], opts.wait, out)
	case modeAsk:
		if len(args) < 2 {
			return errors.New("usage: docchat ask <room-id> <question>")
		}
		return client.Ask(ctx, api.ID(args[0]), strings.Join(args[1:], " "), out)
	}
	return fmt.Errorf("unknown command %q", mode)
}

func prompt(label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func promptPassword(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return prompt(label)
	}
	fmt.Fprint(os.Stderr, label)
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func parseMode(args []string) (string, []string) {
	if len(args) == 0 {
		return modeClient, args
	}
	switch mode := strings.ToLower(args[0]); mode {
	case modeClient, modeLocal, modeServer, modeLogin, modeRegister, modeLogout,
		modeRooms, modeUpload, modeAsk, modeVersion:
		return mode, args[1:]
	case "-v", "--version":
		return modeVersion, args[1:]
	}
	return modeClient, args
}

func stopServer(handle *app.ServerHandle) {
	if handle == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := handle.Stop(shutdownCtx); err != nil {
		slog.Default().Warn("stop server", "error", err)
	}
}
