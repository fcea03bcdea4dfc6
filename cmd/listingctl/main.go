// Package main は listingctl コマンドのエントリーポイントです。
package main

import "github.com/byessilyurt/sahibinden-instagram-generator/internal/cli"

func main() {
	cli.Execute()
}
