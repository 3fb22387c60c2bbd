// Командный вычислитель: читает HTML-файл, вычисляет плейсхолдеры {{ ... }}
// и печатает преобразованный документ в stdout. Вызывается серверной
// стороной через мост (см. Bridge) при экспорте документов.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nikitaxru/labtemplar"
)

var rootCmd = &cobra.Command{
	Use:          "labtemplar <файл.html>",
	Short:        "Вычисляет математические плейсхолдеры {{ ... }} в HTML-документе",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         run,
}

func run(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("чтение %s: %w", args[0], err)
	}
	fmt.Fprint(cmd.OutOrStdout(), labtemplar.Transform(string(data)))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
