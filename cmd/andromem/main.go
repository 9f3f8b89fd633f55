package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/soloaderhq/andromem"
)

var (
	lookupSymbol string
	callExport   string
	listExports  bool
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:          "andromem <shared library>",
	Short:        "Load an Android-ABI shared library and resolve or call its exports, without writing to disk",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		var opts []andromem.Option
		if verbose {
			logger, err := zap.NewDevelopment()
			if err != nil {
				return err
			}
			opts = append(opts, andromem.WithLogger(logger))
		}

		library, err := andromem.OpenLibrary(args[0], opts...)
		if err != nil {
			return err
		}
		defer library.Close()

		if listExports {
			for _, name := range library.ExportedSymbols() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		}

		if lookupSymbol != "" {
			addr, err := library.LookupSymbol(lookupSymbol)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%#x\n", addr)
			return nil
		}

		if err := library.CallExport(callExport); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "ok")
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVar(&callExport, "call", "StartW", "Zero-argument entry symbol to resolve and call")
	rootCmd.Flags().StringVar(&lookupSymbol, "lookup", "", "Resolve a symbol and print its address instead of calling it")
	rootCmd.Flags().BoolVar(&listExports, "list-exports", false, "List every symbol name reachable via the library's GNU hash table")
	rootCmd.Flags().BoolVar(&verbose, "verbose", false, "Log a debug-level load summary (image base and relocation counts)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
	}
}
