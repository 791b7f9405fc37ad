package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra/doc"

	"github.com/praxiomlabs/expect/cmd/expect/command"
	"github.com/praxiomlabs/expect/internal/version"
)

func main() {
	rootCmd := command.Root()

	if err := doc.GenMarkdownTree(rootCmd, "./docs"); err != nil {
		fatal(err)
	}

	header := &doc.GenManHeader{
		Title:   "EXPECT",
		Section: "1",
		Source:  "expect " + version.String(),
		Manual:  "Expect Manual",
	}
	if err := doc.GenManTree(rootCmd, header, "./etc/man/man1"); err != nil {
		fatal(err)
	}

	if err := rootCmd.GenBashCompletionFile("./etc/completion/expect.bash_completion.sh"); err != nil {
		fatal(err)
	}
	if err := rootCmd.GenZshCompletionFile("./etc/completion/expect.zsh_completion"); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	slog.Error("generate docs", "error", err)
	os.Exit(1)
}
