package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gogpu/parallax"
	"github.com/gogpu/parallax/ir"
	"github.com/gogpu/parallax/spirv"
)

// NewDisCommand creates the dis command.
func NewDisCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dis <file.spv>",
		Short: "Disassemble a SPIR-V binary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			text, err := spirv.DisassembleBytes(data)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), text)
			return err
		},
	}
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file.spv>...",
		Short: "Check SPIR-V binaries for structural invariants",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok := color.New(color.FgGreen).SprintFunc()
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				words, err := spirv.BytesToWords(data)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				if err := spirv.Verify(words); err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %d words, bound %d\n", ok("✓"), path, len(words), words[3])
			}
			return nil
		},
	}
}

// NewFingerprintCommand creates the fingerprint command.
func NewFingerprintCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint <ir-file>...",
		Short: "Print the content fingerprint of IR modules",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				m, err := ir.ReadFile(path)
				if err != nil {
					return err
				}
				fp, err := ir.Fingerprint(m)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", fp, path)
			}
			return nil
		},
	}
}

// abiView is the YAML shape printed by the abi command.
type abiView struct {
	Module        string    `yaml:"module"`
	EntryPoint    string    `yaml:"entry_point"`
	WorkgroupSize [3]uint32 `yaml:"workgroup_size,flow"`
	Element       struct {
		Type   string `yaml:"type"`
		Stride uint32 `yaml:"stride"`
	} `yaml:"element"`
	Data struct {
		Group   uint32 `yaml:"group"`
		Binding uint32 `yaml:"binding"`
		Usage   string `yaml:"usage"`
	} `yaml:"data"`
	PushConstants struct {
		Size        uint32 `yaml:"size"`
		CountOffset uint32 `yaml:"count_offset"`
	} `yaml:"push_constants"`
}

// NewABICommand creates the abi command.
func NewABICommand() *cobra.Command {
	return &cobra.Command{
		Use:   "abi <ir-file>",
		Short: "Print the binding layout of the kernel compiled from an IR module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := ir.ReadFile(args[0])
			if err != nil {
				return err
			}
			k, err := parallax.Compile(m)
			if err != nil {
				return err
			}
			var v abiView
			v.Module = k.Name
			v.EntryPoint = k.ABI.EntryPoint
			v.WorkgroupSize = k.ABI.WorkgroupSize
			v.Element.Type = k.ABI.ElementType
			v.Element.Stride = k.ABI.ElementStride
			v.Data.Group = k.ABI.DataGroup
			v.Data.Binding = k.ABI.DataLayout.Binding
			v.Data.Usage = fmt.Sprintf("%#x", uint64(k.ABI.BufferUsage))
			v.PushConstants.Size = k.ABI.PushConstantSize
			v.PushConstants.CountOffset = k.ABI.CountOffset

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(&v); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}
