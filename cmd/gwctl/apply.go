package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/hedgehog/gwcore/pkg/gwconfig"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// applyDocument is the YAML envelope gwctl reads from disk: a
// generation number plus the gateway configuration itself. Config is
// decoded as a real gwconfig.ExternalConfig (its yaml tags are what give
// an operator's file lowercase field names) and then re-encoded through
// encoding/json -- the same bridge pkg/api's structToValue/valueToMap
// use server-side -- before crossing the wire as a structpb.Struct.
type applyDocument struct {
	GenID  uint64                  `yaml:"gen_id"`
	Config gwconfig.ExternalConfig `yaml:"config"`
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a gateway configuration from a YAML file",
	Long: `Apply a gateway configuration generation.

Example:
  gwctl apply -f config.yaml`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML file to apply (required)")
	_ = applyCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(applyCmd)
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")
	addr, _ := cmd.Flags().GetString("addr")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("read %s: %w", filename, err)
	}

	var doc applyDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse %s: %w", filename, err)
	}

	configJSON, err := json.Marshal(doc.Config)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	var configMap map[string]interface{}
	if err := json.Unmarshal(configJSON, &configMap); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	c, err := dialControl(addr)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	resp, err := c.ApplyConfig(ctx, doc.GenID, configMap)
	if err != nil {
		return fmt.Errorf("apply: %w", err)
	}

	out, _ := json.MarshalIndent(resp.AsMap(), "", "  ")
	fmt.Printf("applied generation %d\n%s\n", doc.GenID, out)
	return nil
}
