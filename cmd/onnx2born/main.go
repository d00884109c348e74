// Command onnx2born inspects ONNX models and reports what the converter
// can lower.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/born-ml/onnx2born"
	"github.com/born-ml/onnx2born/internal/convert"
)

func main() {
	root := &cobra.Command{
		Use:           "onnx2born",
		Short:         "Translate ONNX models into executable operator units",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(inspectCmd(), opsCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func inspectCmd() *cobra.Command {
	var verify bool
	cmd := &cobra.Command{
		Use:   "inspect <model.onnx>",
		Short: "Show a model's producer, opset, interface and size",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := onnx2born.Info(args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "graph:    %s\n", info.GraphName)
			fmt.Fprintf(w, "producer: %s %s\n", info.Producer, info.ProducerVersion)
			fmt.Fprintf(w, "ir/opset: %d / %d\n", info.IRVersion, info.Opset)
			fmt.Fprintf(w, "inputs:   %s\n", strings.Join(info.Inputs, ", "))
			fmt.Fprintf(w, "outputs:  %s\n", strings.Join(info.Outputs, ", "))
			fmt.Fprintf(w, "nodes:    %d\n", info.NodeCount)
			fmt.Fprintf(w, "weights:  %d\n", info.WeightCount)
			fmt.Fprintf(w, "size:     %s\n", humanize.Bytes(uint64(info.ByteSize)))
			if !verify {
				return nil
			}
			model, err := onnx2born.Load(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "units:    %d (translation ok)\n", len(model.Units()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&verify, "verify", false, "also run the translation pass and report the unit count")
	return cmd
}

func opsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ops",
		Short: "List the operator kinds the converter lowers",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			for _, kind := range convert.RegisteredKinds() {
				fmt.Fprintln(cmd.OutOrStdout(), kind)
			}
		},
	}
}
