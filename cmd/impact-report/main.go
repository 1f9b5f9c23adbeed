package main

import (
	"os"

	"github.com/selectstar/dbt-impact-report-action/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
