package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe は埋め込みAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandRender は1ページのコメントツリーを描画して標準出力に書き出すことを示す。
	CommandRender Command = "render"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "serve":
		return CommandServe
	case "render":
		return CommandRender
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}
