package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/illarion/dekvault/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "setup":
		runSetup(ctx, os.Args[2:])
	case "unlock":
		runUnlock(ctx, os.Args[2:])
	case "recover":
		runRecover(ctx, os.Args[2:])
	case "status":
		runStatus(ctx, os.Args[2:])
	case "mode":
		runMode(ctx, os.Args[2:])
	case "passwd":
		runPasswd(ctx, os.Args[2:])
	case "wipe":
		runWipe(ctx, os.Args[2:])
	case "shell":
		runShell(ctx, os.Args[2:])
	case "compact":
		runCompact(ctx, os.Args[2:])
	case "completion":
		runCompletion(ctx, os.Args[2:])
	case "help", "-h", "--help":
		if len(os.Args) <= 2 {
			printUsage()
			return
		}
		printCommandHelp(os.Args[2])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// newFlagSet returns a flag set carrying the global flags
func newFlagSet(name string) (*flag.FlagSet, *cmd.Globals) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	g := &cmd.Globals{}
	fs.StringVar(&g.ConfigFile, "config", "", "Config file (default: search standard locations)")
	fs.StringVar(&g.Identity, "identity", "", "User identity (overrides config)")
	return fs, g
}

func parse(fs *flag.FlagSet, args []string) {
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func runSetup(ctx context.Context, args []string) {
	fs, g := newFlagSet("setup")
	noPassphrase := fs.Bool("no-passphrase", false, "Unlock with the recovery phrase only")
	parse(fs, args)

	cmd.Setup(ctx, *g, *noPassphrase)
}

func runUnlock(ctx context.Context, args []string) {
	fs, g := newFlagSet("unlock")
	parse(fs, args)

	cmd.Unlock(ctx, *g)
}

func runRecover(ctx context.Context, args []string) {
	fs, g := newFlagSet("recover")
	parse(fs, args)

	cmd.Recover(ctx, *g)
}

func runStatus(ctx context.Context, args []string) {
	fs, g := newFlagSet("status")
	parse(fs, args)

	cmd.Status(ctx, *g)
}

func runMode(ctx context.Context, args []string) {
	fs, g := newFlagSet("mode")
	parse(fs, args)

	if fs.NArg() > 1 {
		fmt.Fprintln(os.Stderr, "Usage: dekvault mode [session|device]")
		os.Exit(1)
	}
	cmd.Mode(ctx, *g, fs.Arg(0))
}

func runPasswd(ctx context.Context, args []string) {
	fs, g := newFlagSet("passwd")
	remove := fs.Bool("remove", false, "Remove the passphrase")
	parse(fs, args)

	cmd.Passwd(ctx, *g, *remove)
}

func runWipe(ctx context.Context, args []string) {
	fs, g := newFlagSet("wipe")
	force := fs.Bool("force", false, "Wipe without confirmation")
	parse(fs, args)

	cmd.Wipe(ctx, *g, *force)
}

func runShell(ctx context.Context, args []string) {
	fs, g := newFlagSet("shell")
	parse(fs, args)

	cmd.Shell(ctx, *g)
}

func runCompact(ctx context.Context, args []string) {
	fs, g := newFlagSet("compact")
	parse(fs, args)

	cmd.Compact(ctx, *g)
}

func runCompletion(_ context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: dekvault completion <bash|zsh|fish>")
		os.Exit(1)
	}
	cmd.Completion(args[0])
}

func printUsage() {
	fmt.Println("dekvault - zero-knowledge vault for your data encryption key")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  dekvault <command> [--config file] [--identity id] [arguments]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  setup       Create the key and print the recovery phrase")
	fmt.Println("  unlock      Verify the passphrase and load the key")
	fmt.Println("  recover     Restore the key on this device with the recovery phrase")
	fmt.Println("  status      Show vault status")
	fmt.Println("  mode        Show or set persistence mode (session|device)")
	fmt.Println("  passwd      Change or remove the passphrase")
	fmt.Println("  wipe        Destroy the vault everywhere")
	fmt.Println("  shell       Interactive session holding the unlocked key")
	fmt.Println("  compact     Compact the local database")
	fmt.Println("  completion  Generate shell completions")
	fmt.Println("  help        Show help for a command")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  dekvault setup                  # Create key, choose a passphrase")
	fmt.Println("  dekvault recover                # New device: restore with recovery phrase")
	fmt.Println("  dekvault mode session           # Keep nothing on this device")
	fmt.Println("  dekvault status                 # Check vault status")
	fmt.Println()
	fmt.Println("Use 'dekvault help <command>' for more information about a command.")
}

func printCommandHelp(command string) {
	switch command {
	case "setup":
		fmt.Println("dekvault setup [--no-passphrase]")
		fmt.Println()
		fmt.Println("Creates a new data encryption key for the identity.")
		fmt.Println("Prints a 12-word recovery phrase exactly once. Write it down:")
		fmt.Println("it is the only way to restore the key on another device.")
		fmt.Println()
		fmt.Println("The key is stored wrapped in the remote store, and on this device")
		fmt.Println("when the persistence mode is 'device'.")
		fmt.Println()
		fmt.Println("Flags:")
		fmt.Println("  --no-passphrase  Do not set a passphrase; unlock with the recovery phrase")
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  dekvault setup")
		fmt.Println("  DEKVAULT_SECRET=... dekvault setup   # Non-interactive")
	case "unlock":
		fmt.Println("dekvault unlock")
		fmt.Println()
		fmt.Println("Opens the key with the passphrase or the recovery phrase and prints")
		fmt.Println("its fingerprint. In device mode the key is stored on this device.")
		fmt.Println("Reads the secret from DEKVAULT_SECRET if set.")
	case "recover":
		fmt.Println("dekvault recover")
		fmt.Println()
		fmt.Println("Fetches the key from the remote store and opens it with the recovery")
		fmt.Println("phrase. Use this on a new device. Reads the phrase from DEKVAULT_SECRET")
		fmt.Println("if set.")
	case "status":
		fmt.Println("dekvault status")
		fmt.Println()
		fmt.Println("Shows vault status including:")
		fmt.Println("  - Identity, device and persistence mode")
		fmt.Println("  - Where the key was loaded from and whether it is stored here")
		fmt.Println("  - Encryption details")
		fmt.Println("  - Local storage warnings and git exposure of the database")
		fmt.Println()
		fmt.Println("Does not require a secret.")
	case "mode":
		fmt.Println("dekvault mode [session|device]")
		fmt.Println()
		fmt.Println("Without an argument prints the current persistence mode.")
		fmt.Println()
		fmt.Println("  session  The key is never stored on this device; every start")
		fmt.Println("           fetches it from the remote store. Switching removes")
		fmt.Println("           the local copy.")
		fmt.Println("  device   The wrapped key is kept on this device. Switching asks")
		fmt.Println("           for the secret and stores the key right away.")
	case "passwd":
		fmt.Println("dekvault passwd [--remove]")
		fmt.Println()
		fmt.Println("Changes the passphrase. Requires the current passphrase or the recovery")
		fmt.Println("phrase. The recovery phrase itself never changes.")
		fmt.Println()
		fmt.Println("Flags:")
		fmt.Println("  --remove  Remove the passphrase; unlock with the recovery phrase only")
	case "wipe":
		fmt.Println("dekvault wipe [--force]")
		fmt.Println()
		fmt.Println("Deletes the key from this device and the remote store.")
		fmt.Println("Anything encrypted with it becomes unrecoverable.")
		fmt.Println()
		fmt.Println("Flags:")
		fmt.Println("  --force  Wipe without confirmation")
	case "shell":
		fmt.Println("dekvault shell")
		fmt.Println()
		fmt.Println("Starts an interactive session that keeps one vault open, so the key")
		fmt.Println("stays unlocked between commands: unlock, recover, lock, status, mode,")
		fmt.Println("fingerprint, retry, quit.")
		fmt.Println()
		fmt.Println("If metrics_addr is configured, Prometheus metrics are served on")
		fmt.Println("/metrics for the lifetime of the shell.")
	case "compact":
		fmt.Println("dekvault compact")
		fmt.Println()
		fmt.Println("Compacts the local database to reclaim unused disk space.")
		fmt.Println()
		fmt.Println("Does not require a secret.")
	case "completion":
		fmt.Println("dekvault completion <bash|zsh|fish>")
		fmt.Println()
		fmt.Println("Outputs shell completion script for the specified shell.")
		fmt.Println()
		fmt.Println("Setup:")
		fmt.Println("  # Bash - add to ~/.bashrc")
		fmt.Println("  eval \"$(dekvault completion bash)\"")
		fmt.Println()
		fmt.Println("  # Zsh - add to ~/.zshrc")
		fmt.Println("  eval \"$(dekvault completion zsh)\"")
		fmt.Println()
		fmt.Println("  # Fish - add to ~/.config/fish/config.fish")
		fmt.Println("  dekvault completion fish | source")
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
	}
}
