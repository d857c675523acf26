package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var getCurrentCmd = &cobra.Command{
	Use:   "get-current",
	Short: "Print the currently applied configuration",
	RunE:  runGetCurrent,
}

var getGenerationCmd = &cobra.Command{
	Use:   "get-generation",
	Short: "Print the currently applied configuration generation",
	RunE:  runGetGeneration,
}

func init() {
	rootCmd.AddCommand(getCurrentCmd, getGenerationCmd)
}

func runGetCurrent(cmd *cobra.Command, args []string) error {
	return withClient(cmd, func(ctx context.Context, c *controlClient) error {
		resp, err := c.GetCurrentConfig(ctx)
		if err != nil {
			return fmt.Errorf("get-current: %w", err)
		}
		return printStruct(resp.AsMap())
	})
}

func runGetGeneration(cmd *cobra.Command, args []string) error {
	return withClient(cmd, func(ctx context.Context, c *controlClient) error {
		resp, err := c.GetGeneration(ctx)
		if err != nil {
			return fmt.Errorf("get-generation: %w", err)
		}
		return printStruct(resp.AsMap())
	})
}

func withClient(cmd *cobra.Command, fn func(ctx context.Context, c *controlClient) error) error {
	addr, _ := cmd.Flags().GetString("addr")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	c, err := dialControl(addr)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return fn(ctx, c)
}

func printStruct(m map[string]interface{}) error {
	out, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
