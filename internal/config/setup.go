package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// RunSetupWizard asks for the connection settings, validates them and
// saves the configuration.
func RunSetupWizard(cfg *Config, in io.Reader, out io.Writer) error {
	return runSetupWizard(cfg, bufio.NewReader(in), out)
}

func runSetupWizard(cfg *Config, reader *bufio.Reader, out io.Writer) error {
	fmt.Fprintln(out, "rconsole setup")
	fmt.Fprintln(out, "Press enter to keep the value in brackets.")
	fmt.Fprintln(out)

	fmt.Fprintln(out, "── RCON Server ──")

	server := cfg.GetServer()
	server.Address = promptString(reader, out, "Server address", server.Address)
	server.Port = promptInt(reader, out, "RCON port", server.Port)
	if pw := promptPassword(reader, out, "RCON password"); pw != "" {
		server.Password = pw
	}
	server.MultiPacket = promptBool(reader, out, "Reassemble multi-packet responses", server.MultiPacket)
	cfg.SetServer(server)

	fmt.Fprintln(out)
	fmt.Fprintln(out, "── Command History ──")

	cfg.mu.Lock()
	cfg.History.Enabled = promptBool(reader, out, "Keep a local command history", cfg.History.Enabled)
	if cfg.History.Enabled {
		cfg.History.Path = promptString(reader, out, "History database file", cfg.History.Path)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "── HTTP Gateway ──")

	cfg.API.Port = promptInt(reader, out, "Gateway port", cfg.API.Port)
	cfg.API.Token = promptString(reader, out, "Gateway bearer token", cfg.API.Token)

	fmt.Fprintln(out)
	fmt.Fprintln(out, "── MQTT Audit ──")

	cfg.MQTT.Enabled = promptBool(reader, out, "Publish audit events over MQTT", cfg.MQTT.Enabled)
	if cfg.MQTT.Enabled {
		cfg.MQTT.BrokerURL = promptString(reader, out, "Broker host", cfg.MQTT.BrokerURL)
		cfg.MQTT.Port = promptInt(reader, out, "Broker port", cfg.MQTT.Port)
	}
	cfg.mu.Unlock()

	result := Validate(cfg)
	if !result.IsValid() {
		fmt.Fprintln(out, "\nConfiguration has errors:")
		for _, e := range result.Errors {
			fmt.Fprintf(out, "  - [%s] %s\n", e.Field, e.Message)
		}
		retry := promptString(reader, out, "Would you like to try again? (yes/no)", "no")
		if strings.ToLower(retry) == "yes" {
			return runSetupWizard(cfg, reader, out)
		}
		return fmt.Errorf("configuration validation failed: %w", result.Err())
	}

	for _, w := range result.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}

	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Configuration saved to %s\n", cfg.Path())
	return nil
}

func promptString(reader *bufio.Reader, out io.Writer, prompt string, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(out, "  %s [%s]: ", prompt, defaultVal)
	} else {
		fmt.Fprintf(out, "  %s: ", prompt)
	}

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}

func promptPassword(reader *bufio.Reader, out io.Writer, prompt string) string {
	fmt.Fprintf(out, "  %s (blank keeps current): ", prompt)
	input, _ := reader.ReadString('\n')
	return strings.TrimRight(input, "\r\n")
}

func promptInt(reader *bufio.Reader, out io.Writer, prompt string, defaultVal int) int {
	fmt.Fprintf(out, "  %s [%d]: ", prompt, defaultVal)

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}

	val, err := strconv.Atoi(input)
	if err != nil {
		fmt.Fprintf(out, "    Invalid number, using default: %d\n", defaultVal)
		return defaultVal
	}
	return val
}

func promptBool(reader *bufio.Reader, out io.Writer, prompt string, defaultVal bool) bool {
	defaultStr := "no"
	if defaultVal {
		defaultStr = "yes"
	}

	fmt.Fprintf(out, "  %s [%s]: ", prompt, defaultStr)

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(strings.ToLower(input))

	if input == "" {
		return defaultVal
	}

	return input == "yes" || input == "y" || input == "true" || input == "1"
}
