package cmd

import (
	"fmt"
	"os"
)

// Completion outputs shell completion scripts
func Completion(shell string) {
	switch shell {
	case "bash":
		fmt.Print(bashCompletion)
	case "zsh":
		fmt.Print(zshCompletion)
	case "fish":
		fmt.Print(fishCompletion)
	default:
		fmt.Fprintf(os.Stderr, "Unknown shell: %s\nSupported: bash, zsh, fish\n", shell)
		os.Exit(1)
	}
}

const bashCompletion = `_dekvault() {
    local cur prev words cword
    _init_completion || return

    local commands="setup unlock recover status mode passwd wipe shell compact help completion"
    local globals="--config --identity"

    if [[ $cword -eq 1 ]]; then
        COMPREPLY=($(compgen -W "$commands" -- "$cur"))
        return
    fi

    case "$prev" in
        --config)
            _filedir yaml
            return
            ;;
        --identity)
            return
            ;;
    esac

    local cmd="${words[1]}"
    case "$cmd" in
        setup)
            COMPREPLY=($(compgen -W "$globals --no-passphrase" -- "$cur"))
            ;;
        mode)
            if [[ "$cur" == -* ]]; then
                COMPREPLY=($(compgen -W "$globals" -- "$cur"))
            else
                COMPREPLY=($(compgen -W "session device" -- "$cur"))
            fi
            ;;
        passwd)
            COMPREPLY=($(compgen -W "$globals --remove" -- "$cur"))
            ;;
        wipe)
            COMPREPLY=($(compgen -W "$globals --force" -- "$cur"))
            ;;
        unlock|recover|status|shell|compact)
            COMPREPLY=($(compgen -W "$globals" -- "$cur"))
            ;;
        help)
            COMPREPLY=($(compgen -W "$commands" -- "$cur"))
            ;;
        completion)
            COMPREPLY=($(compgen -W "bash zsh fish" -- "$cur"))
            ;;
    esac
}

complete -F _dekvault dekvault
`

const zshCompletion = `#compdef dekvault

_dekvault() {
    local -a commands
    commands=(
        'setup:Create the vault key and recovery phrase'
        'unlock:Verify the passphrase and load the key'
        'recover:Restore the key on this device with the recovery phrase'
        'status:Show vault status'
        'mode:Show or set persistence mode'
        'passwd:Change or remove the passphrase'
        'wipe:Destroy the vault everywhere'
        'shell:Interactive session holding the unlocked key'
        'compact:Compact the local database'
        'help:Show help for a command'
        'completion:Generate shell completions'
    )

    local -a globals
    globals=(
        '--config[Config file]:config file:_files -g "*.yaml"'
        '--identity[User identity]:identity:'
    )

    _arguments -C \
        '1: :->command' \
        '*: :->args'

    case "$state" in
        command)
            _describe -t commands 'dekvault commands' commands
            ;;
        args)
            case "${words[2]}" in
                setup)
                    _arguments $globals '--no-passphrase[Unlock with the recovery phrase only]'
                    ;;
                mode)
                    _arguments $globals '1:mode:(session device)'
                    ;;
                passwd)
                    _arguments $globals '--remove[Remove the passphrase]'
                    ;;
                wipe)
                    _arguments $globals '--force[Wipe without confirmation]'
                    ;;
                unlock|recover|status|shell|compact)
                    _arguments $globals
                    ;;
                help)
                    _describe -t commands 'dekvault commands' commands
                    ;;
                completion)
                    _values 'shell' bash zsh fish
                    ;;
            esac
            ;;
    esac
}

_dekvault "$@"
`

const fishCompletion = `# dekvault fish completions

set -l commands setup unlock recover status mode passwd wipe shell compact help completion

complete -c dekvault -f

# Commands
complete -c dekvault -n "not __fish_seen_subcommand_from $commands" -a setup -d 'Create the vault key'
complete -c dekvault -n "not __fish_seen_subcommand_from $commands" -a unlock -d 'Verify passphrase and load key'
complete -c dekvault -n "not __fish_seen_subcommand_from $commands" -a recover -d 'Restore key with recovery phrase'
complete -c dekvault -n "not __fish_seen_subcommand_from $commands" -a status -d 'Show vault status'
complete -c dekvault -n "not __fish_seen_subcommand_from $commands" -a mode -d 'Show or set persistence mode'
complete -c dekvault -n "not __fish_seen_subcommand_from $commands" -a passwd -d 'Change or remove passphrase'
complete -c dekvault -n "not __fish_seen_subcommand_from $commands" -a wipe -d 'Destroy the vault'
complete -c dekvault -n "not __fish_seen_subcommand_from $commands" -a shell -d 'Interactive session'
complete -c dekvault -n "not __fish_seen_subcommand_from $commands" -a compact -d 'Compact local database'
complete -c dekvault -n "not __fish_seen_subcommand_from $commands" -a help -d 'Show help'
complete -c dekvault -n "not __fish_seen_subcommand_from $commands" -a completion -d 'Generate completions'

# Global flags
complete -c dekvault -n "__fish_seen_subcommand_from $commands" -l config -r -F -d 'Config file'
complete -c dekvault -n "__fish_seen_subcommand_from $commands" -l identity -x -d 'User identity'

# Command flags and arguments
complete -c dekvault -n "__fish_seen_subcommand_from setup" -l no-passphrase -d 'Recovery phrase only'
complete -c dekvault -n "__fish_seen_subcommand_from mode" -a "session device"
complete -c dekvault -n "__fish_seen_subcommand_from passwd" -l remove -d 'Remove the passphrase'
complete -c dekvault -n "__fish_seen_subcommand_from wipe" -l force -d 'Wipe without confirmation'

# help completions
complete -c dekvault -n "__fish_seen_subcommand_from help" -a "$commands"

# completion completions
complete -c dekvault -n "__fish_seen_subcommand_from completion" -a "bash zsh fish"
`
