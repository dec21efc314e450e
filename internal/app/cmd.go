package app

import (
	"fmt"
	"io"
	"text/tabwriter"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	CommandServe       Command = "serve"
	CommandWorker      Command = "worker"
	CommandMigrate     Command = "migrate"
	CommandSeed        Command = "seed"
	CommandHealthcheck Command = "healthcheck"
	CommandHelp        Command = "help"
)

// commandSpecs はサブコマンドと説明の一覧。Usageの表示順でもある。
var commandSpecs = []struct {
	cmd     Command
	summary string
}{
	{CommandServe, "APIサーバーとブロードキャストHubを起動する (既定)"},
	{CommandWorker, "期限切れセッションの定期削除を実行する"},
	{CommandMigrate, "未適用のデータベースマイグレーションを適用する"},
	{CommandSeed, "SEED_ADMIN_EMAIL/SEED_ADMIN_PASSWORDで管理者を作成する"},
	{CommandHealthcheck, "ローカルの/healthを叩く (distrolessのDocker HEALTHCHECK用)"},
	{CommandHelp, "このヘルプを表示する"},
}

// ParseCommand はコマンドライン引数の先頭からサブコマンドを解析する。
// 引数が無い場合はserveとし、未知のサブコマンドはエラーにする。
// 2番目以降の引数は無視する。
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 {
		return CommandServe, nil
	}
	switch args[0] {
	case "-h", "--help":
		return CommandHelp, nil
	}
	for _, spec := range commandSpecs {
		if string(spec.cmd) == args[0] {
			return spec.cmd, nil
		}
	}
	return "", fmt.Errorf("unknown command %q", args[0])
}

// Usage はサブコマンドの一覧をwに書き出す。
func Usage(w io.Writer) {
	fmt.Fprintln(w, "usage: fanzone [command]")
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, spec := range commandSpecs {
		fmt.Fprintf(tw, "  %s\t%s\n", spec.cmd, spec.summary)
	}
	tw.Flush()
}
